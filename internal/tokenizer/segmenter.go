package tokenizer

import "math"

// FrequencyTable supplies the learned unigram counts a flatcase token is
// segmented against.
type FrequencyTable interface {
	Frequency(token string) int64
	TotalCount() int64
}

// SegmentConfig controls when and how aggressively flatcase segmentation
// runs.
type SegmentConfig struct {
	// Threshold is the minimum TotalCount() below which flatcase tokens
	// are left unchanged — there isn't enough signal yet to trust a
	// decomposition.
	Threshold int64
	// MinPartFrequency is the minimum frequency a candidate part must
	// have to be considered at all.
	MinPartFrequency int64
	// Margin is how many nats the segmented joint log-probability must
	// beat the unsegmented token's own log-probability by before the
	// segmentation is accepted.
	Margin float64
}

// DefaultSegmentConfig matches the values spec'd for the flatcase
// segmenter: threshold 10,000, minimum part frequency 2, margin 1.0 nat.
func DefaultSegmentConfig() SegmentConfig {
	return SegmentConfig{
		Threshold:        10000,
		MinPartFrequency: 2,
		Margin:           1.0,
	}
}

// Segment attempts a Viterbi-style decomposition of a lowercase flatcase
// token into known sub-words. Below cfg.Threshold total corpus tokens, or
// when no accepted decomposition beats the unsegmented token by cfg.Margin,
// it returns the token unchanged as a single-element slice.
func Segment(token string, freq FrequencyTable, cfg SegmentConfig) []string {
	if freq == nil || freq.TotalCount() < cfg.Threshold || len(token) < 2 {
		return []string{token}
	}

	total := float64(freq.TotalCount())
	n := len(token)

	// best[i] is the highest joint log-probability for token[:i]; from[i]
	// is the start index of the last segment in that optimal split.
	best := make([]float64, n+1)
	from := make([]int, n+1)
	for i := range best {
		best[i] = math.Inf(-1)
	}
	best[0] = 0

	for end := 1; end <= n; end++ {
		for start := 0; start < end; start++ {
			if best[start] == math.Inf(-1) {
				continue
			}
			part := token[start:end]
			count := freq.Frequency(part)
			if count < cfg.MinPartFrequency {
				continue
			}
			logProb := best[start] + math.Log(float64(count)/total)
			if logProb > best[end] {
				best[end] = logProb
				from[end] = start
			}
		}
	}

	if best[n] == math.Inf(-1) {
		return []string{token}
	}

	unsegmentedLogProb := math.Log(float64(freq.Frequency(token)+1) / total)
	if best[n]-unsegmentedLogProb < cfg.Margin {
		return []string{token}
	}

	var parts []string
	for i := n; i > 0; i = from[i] {
		parts = append([]string{token[from[i]:i]}, parts...)
	}
	return parts
}

// MapFrequencyTable is an in-memory FrequencyTable, typically built from
// internal/database's token_frequencies table for one corpus.
type MapFrequencyTable struct {
	counts map[string]int64
	total  int64
}

// NewMapFrequencyTable builds a FrequencyTable from a token->count map.
func NewMapFrequencyTable(counts map[string]int64) *MapFrequencyTable {
	var total int64
	for _, c := range counts {
		total += c
	}
	return &MapFrequencyTable{counts: counts, total: total}
}

// Frequency returns the observed count for token, or 0 if never seen.
func (m *MapFrequencyTable) Frequency(token string) int64 {
	return m.counts[token]
}

// TotalCount returns the sum of all observed unigram counts.
func (m *MapFrequencyTable) TotalCount() int64 {
	return m.total
}

package ranker

import (
	"math"
	"time"

	"github.com/synapsedb/synapse/pkg/config"
)

// recencyDecay computes the multiplicative recency factor for a memory of
// the given age: exponential half-life decay floored at cfg.RecencyFloor,
// unless the memory is within the auto-skip window, in which case recency
// never discounts a fresh write.
func recencyDecay(age time.Duration, cfg *config.RankerConfig) float64 {
	ageHours := age.Hours()
	if cfg.RecencyAutoSkipHours > 0 && ageHours <= cfg.RecencyAutoSkipHours {
		return 1.0
	}
	if cfg.RecencyHalfLifeHours <= 0 {
		return 1.0
	}
	decay := math.Pow(2, -ageHours/cfg.RecencyHalfLifeHours)
	if decay < cfg.RecencyFloor {
		return cfg.RecencyFloor
	}
	return decay
}

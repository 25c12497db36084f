package scope

import "testing"

func TestSanitizeDirectoryName(t *testing.T) {
	cases := map[string]string{
		"My Project":     "my-project",
		"repo.name":      "repo-name",
		"already-lower":  "already-lower",
		"weird!@#chars":  "weirdchars",
		"under_score_ok": "under_score_ok",
	}
	for in, want := range cases {
		if got := sanitizeDirectoryName(in); got != want {
			t.Errorf("sanitizeDirectoryName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDetectScopeIDManualFallsBackWithoutID(t *testing.T) {
	d := NewDetector(StrategyManual)
	if id := d.DetectScopeID(); id == "" {
		t.Error("expected manual strategy without an explicit id to fall back to a non-empty scope id")
	}
}

func TestDetectScopeIDManualUsesExplicitID(t *testing.T) {
	d := NewDetector(StrategyManual)
	d.ManualID = "proj-fixed"
	if id := d.DetectScopeID(); id != "proj-fixed" {
		t.Errorf("DetectScopeID() = %q, want proj-fixed", id)
	}
}

func TestDetectScopeIDCachesPerDirectory(t *testing.T) {
	d := NewDetector(StrategyGitDirectory)
	first := d.DetectScopeID()
	second := d.DetectScopeID()
	if first != second {
		t.Errorf("expected repeated calls in the same directory to agree, got %q then %q", first, second)
	}
}

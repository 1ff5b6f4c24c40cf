package check

import (
	"os"
	"time"
)

// Verdict is the outcome of the config freshness gate.
type Verdict int

const (
	Stale Verdict = iota
	Fresh
)

func (v Verdict) String() string {
	if v == Fresh {
		return "fresh"
	}
	return "stale"
}

// FreshnessReport describes how a verdict was reached.
type FreshnessReport struct {
	Verdict Verdict
	// Age is zero when the file could not be inspected.
	Age time.Duration
	// Err holds the stat error; nil when the file is simply absent.
	Err error
}

// ConfigFreshness decides whether the gossip config at path is recent
// enough to skip peer acquisition. Missing, unreadable and non-regular
// files are stale. A modification time in the future counts as age zero.
func ConfigFreshness(path string, maxAge time.Duration, now time.Time) FreshnessReport {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FreshnessReport{Verdict: Stale}
		}
		return FreshnessReport{Verdict: Stale, Err: err}
	}
	if !info.Mode().IsRegular() {
		return FreshnessReport{Verdict: Stale}
	}

	age := max(now.Sub(info.ModTime()), 0)
	if age <= maxAge {
		return FreshnessReport{Verdict: Fresh, Age: age}
	}
	return FreshnessReport{Verdict: Stale, Age: age}
}

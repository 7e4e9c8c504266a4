// Package timeline merges and downsamples the timestamp axis for a
// valuation walk. It knows nothing about trades or prices beyond which
// timestamps must never be smoothed away.
package timeline

import (
	"sort"
	"time"
)

// Merge unions any number of timestamp slices into one ascending,
// deduplicated timeline. Timestamps are deduplicated at second
// granularity (price feeds report whole seconds).
func Merge(groups ...[]time.Time) []time.Time {
	seen := make(map[int64]time.Time)
	for _, g := range groups {
		for _, ts := range g {
			key := ts.Unix()
			if _, ok := seen[key]; !ok {
				seen[key] = ts.UTC()
			}
		}
	}

	out := make([]time.Time, 0, len(seen))
	for _, ts := range seen {
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// KeepSet builds the must-keep lookup used by Downsample from a set of
// timestamps (typically trade timestamps).
func KeepSet(ts []time.Time) map[int64]struct{} {
	keep := make(map[int64]struct{}, len(ts))
	for _, t := range ts {
		keep[t.Unix()] = struct{}{}
	}
	return keep
}

// Downsample thins an ascending timeline to roughly one point per
// resolution interval. Timestamps in mustKeep are always retained and
// reset the reference point, so no trade event is ever dropped no matter
// how coarse the resolution. The final timestamp is always retained.
// A resolution <= 0 returns the input unchanged.
func Downsample(ts []time.Time, resolution time.Duration, mustKeep map[int64]struct{}) []time.Time {
	if resolution <= 0 || len(ts) == 0 {
		return ts
	}

	out := make([]time.Time, 0, len(ts))
	var lastKept time.Time
	haveKept := false

	for i, t := range ts {
		_, forced := mustKeep[t.Unix()]
		last := i == len(ts)-1

		switch {
		case forced, last, !haveKept:
			// keep
		case t.Sub(lastKept) >= resolution:
			// keep
		default:
			continue
		}

		out = append(out, t)
		lastKept = t
		haveKept = true
	}
	return out
}

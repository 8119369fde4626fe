// Package randutil provides weighted random choice, bounded delays and
// wall-clock helpers used by the engagement engine.
package randutil

import (
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Weighted draws a key from a relative weight map. Returns false when the
// map holds no positive weight.
func Weighted(rng *rand.Rand, weights map[string]float64) (string, bool) {
	return WeightedAt(weights, rng.Float64())
}

// WeightedAt selects with a fixed uniform draw r in [0,1): the chosen key is
// the first, in sorted key order, whose cumulative weight reaches r × total.
// Deterministic for a given r, which keeps the choice testable.
func WeightedAt(weights map[string]float64, r float64) (string, bool) {
	keys := make([]string, 0, len(weights))
	total := 0.0
	for k, w := range weights {
		if w > 0 {
			keys = append(keys, k)
			total += w
		}
	}
	if total <= 0 {
		return "", false
	}
	sort.Strings(keys)

	threshold := r * total
	cumulative := 0.0
	for _, k := range keys {
		cumulative += weights[k]
		if cumulative >= threshold {
			return k, true
		}
	}
	// Guard against float drift; the last positive key closes the range.
	return keys[len(keys)-1], true
}

// DelayWithin returns a random delay between min and max minutes inclusive.
// When max < min the min value wins rather than erroring out.
func DelayWithin(rng *rand.Rand, minMinutes, maxMinutes int) time.Duration {
	if minMinutes < 0 {
		minMinutes = 0
	}
	if maxMinutes < minMinutes {
		return time.Duration(minMinutes) * time.Minute
	}
	span := maxMinutes - minMinutes
	if span == 0 {
		return time.Duration(minMinutes) * time.Minute
	}
	return time.Duration(minMinutes+rng.Intn(span+1)) * time.Minute
}

// Clamp bounds v into [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// InCooldown reports whether now still falls inside the cooldown window that
// started at lastMs. A zero lastMs means no prior action.
func InCooldown(nowMs, lastMs int64, window time.Duration) bool {
	if lastMs <= 0 {
		return false
	}
	return nowMs-lastMs < window.Milliseconds()
}

// ParseClock parses "HH:MM" into minutes since midnight.
func ParseClock(clock string) (int, error) {
	parts := strings.SplitN(clock, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock %q", clock)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", clock)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", clock)
	}
	return h*60 + m, nil
}

// InWindow reports whether now, converted to tz, falls inside [start, end).
// An end before start wraps the window past midnight. Equal bounds mean the
// window never closes.
func InWindow(now time.Time, start, end, tz string) (bool, error) {
	loc := time.UTC
	if tz != "" {
		var err error
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return false, fmt.Errorf("load timezone %q: %w", tz, err)
		}
	}
	startMin, err := ParseClock(start)
	if err != nil {
		return false, err
	}
	endMin, err := ParseClock(end)
	if err != nil {
		return false, err
	}

	local := now.In(loc)
	cur := local.Hour()*60 + local.Minute()

	switch {
	case startMin == endMin:
		return true, nil
	case startMin < endMin:
		return cur >= startMin && cur < endMin, nil
	default: // wraps midnight
		return cur >= startMin || cur < endMin, nil
	}
}

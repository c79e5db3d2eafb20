package cyclelog

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RollCycle is the time span covered by one cycle file.
type RollCycle int

const (
	Minutely RollCycle = iota
	Hourly
	Daily
)

func (r RollCycle) String() string {
	switch r {
	case Minutely:
		return "MINUTELY"
	case Hourly:
		return "HOURLY"
	default:
		return "DAILY"
	}
}

// Duration is the length of one cycle.
func (r RollCycle) Duration() time.Duration {
	switch r {
	case Minutely:
		return time.Minute
	case Hourly:
		return time.Hour
	default:
		return 24 * time.Hour
	}
}

func (r RollCycle) layout() string {
	switch r {
	case Minutely:
		return "20060102-1504"
	case Hourly:
		return "20060102-15"
	default:
		return "20060102"
	}
}

// Cycle returns the cycle number containing t.
func (r RollCycle) Cycle(t time.Time) int64 {
	return t.Unix() / int64(r.Duration()/time.Second)
}

// Start returns the first instant of cycle.
func (r RollCycle) Start(cycle int64) time.Time {
	return time.Unix(cycle*int64(r.Duration()/time.Second), 0).UTC()
}

// FileName is the cycle data file name, sortable in cycle order.
func (r RollCycle) FileName(cycle int64) string {
	return r.Start(cycle).Format(r.layout()) + cycleExt
}

// ParseFileName returns the cycle of a data file name.
func (r RollCycle) ParseFileName(name string) (int64, error) {
	stem, ok := strings.CutSuffix(name, cycleExt)
	if !ok {
		return 0, fmt.Errorf("cyclelog: %q is not a cycle file", name)
	}
	t, err := time.ParseInLocation(r.layout(), stem, time.UTC)
	if err != nil {
		return 0, fmt.Errorf("cyclelog: parse cycle %q: %w", name, err)
	}
	return r.Cycle(t), nil
}

// Retention bounds how many cycles a partition keeps. Keep 0 keeps
// everything.
type Retention struct {
	Roll RollCycle
	Keep int
}

// ParseRetention reads "10m", "12h" or "4d" into a retention keeping that
// many minutely, hourly or daily cycles. "0" or "" keeps daily cycles
// forever.
func ParseRetention(s string) (Retention, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return Retention{Roll: Daily}, nil
	}
	unit := s[len(s)-1]
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n < 0 {
		return Retention{}, fmt.Errorf("cyclelog: invalid retention %q", s)
	}
	switch unit {
	case 'm':
		return Retention{Roll: Minutely, Keep: n}, nil
	case 'h':
		return Retention{Roll: Hourly, Keep: n}, nil
	case 'd':
		return Retention{Roll: Daily, Keep: n}, nil
	}
	return Retention{}, fmt.Errorf("cyclelog: invalid retention unit in %q, want m, h or d", s)
}

// KeepIn converts the retention window into a count of roll cycles,
// rounding up. A log created under another retention keeps its own roll
// cycle and only the window length follows the configuration.
func (r Retention) KeepIn(roll RollCycle) int {
	if r.Keep <= 0 || roll == r.Roll {
		return r.Keep
	}
	window := time.Duration(r.Keep) * r.Roll.Duration()
	return int((window + roll.Duration() - 1) / roll.Duration())
}

func (r Retention) String() string {
	if r.Keep == 0 {
		return "forever"
	}
	return fmt.Sprintf("%d x %s", r.Keep, r.Roll)
}

// ExpiredCycles returns the cycles, in input order, that fall out of a
// window of keep cycles ending at current. keep <= 0 expires nothing.
func ExpiredCycles(cycles []int64, current int64, keep int) []int64 {
	if keep <= 0 {
		return nil
	}
	oldest := current - int64(keep) + 1
	var out []int64
	for _, c := range cycles {
		if c < oldest {
			out = append(out, c)
		}
	}
	return out
}

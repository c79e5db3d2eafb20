package streamlog

import (
	"fmt"
	"time"
)

// Latency is the lag of a group on a partition with the append time of the
// last record the group committed there. Timestamp is zero, and Key empty,
// when the group is caught up or committed nothing.
type Latency struct {
	Lag       LogLag
	Timestamp time.Time
	// Key is computed from the last committed record by the key function
	// given to GetLatencyPerPartition.
	Key string
}

// Age is how far the group is behind the head at now, zero without a
// committed record.
func (l Latency) Age(now time.Time) time.Duration {
	if l.Timestamp.IsZero() || now.Before(l.Timestamp) {
		return 0
	}
	return now.Sub(l.Timestamp)
}

func (l Latency) String() string {
	if l.Timestamp.IsZero() {
		return fmt.Sprintf("Latency(%s)", l.Lag)
	}
	return fmt.Sprintf("Latency(%s, ts=%s, key=%q)", l.Lag, l.Timestamp.UTC().Format(time.RFC3339Nano), l.Key)
}

// LatencyOf aggregates per-partition latencies: lags are summed and the
// oldest committed record gives the timestamp and key.
func LatencyOf(latencies ...Latency) Latency {
	var out Latency
	for _, l := range latencies {
		out.Lag = SumLags(out.Lag, l.Lag)
		if l.Timestamp.IsZero() {
			continue
		}
		if out.Timestamp.IsZero() || l.Timestamp.Before(out.Timestamp) {
			out.Timestamp = l.Timestamp
			out.Key = l.Key
		}
	}
	return out
}

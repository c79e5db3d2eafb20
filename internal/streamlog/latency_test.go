package streamlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLatencyOf(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	got := LatencyOf(
		Latency{Lag: LogLag{Lower: 2, Upper: 3}, Timestamp: t0.Add(time.Minute), Key: "late"},
		Latency{Lag: LogLag{Lower: 2, Upper: 2}},
		Latency{Lag: LogLag{Lower: 1, Upper: 2}, Timestamp: t0, Key: "early"},
		Latency{Lag: LagOf(1)},
	)
	require.Equal(t, LogLag{Lower: 5, Upper: 8}, got.Lag)
	require.Equal(t, int64(3), got.Lag.Lag())
	require.Equal(t, t0, got.Timestamp)
	require.Equal(t, "early", got.Key)

	require.Equal(t, Latency{}, LatencyOf())
}

func TestLatencyAge(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.Equal(t, time.Duration(0), Latency{}.Age(t0))
	l := Latency{Lag: LagOf(1), Timestamp: t0}
	require.Equal(t, 5*time.Second, l.Age(t0.Add(5*time.Second)))
	require.Equal(t, time.Duration(0), l.Age(t0.Add(-time.Second)))
	require.Contains(t, l.String(), "2026-03-01T10:00:00Z")
}

package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/flolog/internal/streamlog"
)

func TestObserver(t *testing.T) {
	m := New(prometheus.NewRegistry())
	p := streamlog.PartitionOf("orders", 1)
	m.Appended(p, 10)
	m.Appended(p, 5)
	m.Consumed("g", p, 10)
	m.Committed("g", 3)
	m.TailerOpened("g")
	m.TailerOpened("g")
	m.TailerClosed("g")
	m.Rebalanced("g")

	require.Equal(t, 2.0, testutil.ToFloat64(m.AppendedRecords.WithLabelValues("orders", "1")))
	require.Equal(t, 15.0, testutil.ToFloat64(m.AppendedBytes.WithLabelValues("orders")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.ConsumedRecords.WithLabelValues("orders", "g")))
	require.Equal(t, 3.0, testutil.ToFloat64(m.Commits.WithLabelValues("g")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.OpenTailers.WithLabelValues("g")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Rebalances.WithLabelValues("g")))
}

func TestStorageHook(t *testing.T) {
	m := New(nil)
	m.ObserveWrite(time.Millisecond, 8)
	m.ObserveBatchCommit(time.Millisecond, 3, 24)
	m.ObserveRead(time.Microsecond, 8)
	require.Equal(t, 1.0, testutil.ToFloat64(m.StorageOps.WithLabelValues("batch")))
	require.Equal(t, 24.0, testutil.ToFloat64(m.StorageBytes.WithLabelValues("batch")))
	require.Equal(t, 3, testutil.CollectAndCount(m.StorageDuration))
}

type fakeLags struct {
	logs   []string
	groups map[string][]string
	lags   map[string][]streamlog.LogLag
}

func (f fakeLags) ListAll() ([]string, error) { return f.logs, nil }

func (f fakeLags) ListConsumerGroups(name string) ([]string, error) {
	if name == "broken" {
		return nil, errors.New("boom")
	}
	return f.groups[name], nil
}

func (f fakeLags) GetLagPerPartition(name, group string) ([]streamlog.LogLag, error) {
	return f.lags[name+"/"+group], nil
}

func TestLagCollector(t *testing.T) {
	src := fakeLags{
		logs:   []string{"orders", "broken"},
		groups: map[string][]string{"orders": {"a", "b"}},
		lags: map[string][]streamlog.LogLag{
			"orders/a": {{Lower: 1, Upper: 4}, {Lower: 0, Upper: 2}},
			"orders/b": {{Lower: 4, Upper: 4}, {Lower: 2, Upper: 2}},
		},
	}
	c := NewLagCollector(src, nil)
	expected := `
# HELP flolog_group_lag_records Records appended but not committed by the group.
# TYPE flolog_group_lag_records gauge
flolog_group_lag_records{group="a",log="orders",partition="0"} 3
flolog_group_lag_records{group="a",log="orders",partition="1"} 2
flolog_group_lag_records{group="b",log="orders",partition="0"} 0
flolog_group_lag_records{group="b",log="orders",partition="1"} 0
# HELP flolog_lag_scrape_errors Logs whose lag could not be read during the last scrape.
# TYPE flolog_lag_scrape_errors gauge
flolog_lag_scrape_errors 1
# HELP flolog_log_end_offset Records appended to the partition.
# TYPE flolog_log_end_offset gauge
flolog_log_end_offset{log="orders",partition="0"} 4
flolog_log_end_offset{log="orders",partition="1"} 2
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected)))
}

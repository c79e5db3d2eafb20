package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rzbill/flolog/internal/streamlog"
	logpkg "github.com/rzbill/flolog/pkg/log"
)

// LagSource is the part of streamlog.Manager the lag collector reads.
type LagSource interface {
	ListAll() ([]string, error)
	ListConsumerGroups(name string) ([]string, error)
	GetLagPerPartition(name, group string) ([]streamlog.LogLag, error)
}

// LagCollector reports the committed and appended counts of every group on
// every log at scrape time.
type LagCollector struct {
	src    LagSource
	logger logpkg.Logger

	lag      *prometheus.Desc
	upper    *prometheus.Desc
	failures *prometheus.Desc
}

// NewLagCollector returns a collector over src. Register it once.
func NewLagCollector(src LagSource, logger logpkg.Logger) *LagCollector {
	if logger == nil {
		logger = logpkg.NewNop()
	}
	return &LagCollector{
		src:    src,
		logger: logger.WithComponent("metrics"),
		lag: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "group_lag_records"),
			"Records appended but not committed by the group.", []string{"log", "group", "partition"}, nil),
		upper: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "log_end_offset"),
			"Records appended to the partition.", []string{"log", "partition"}, nil),
		failures: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "lag_scrape_errors"),
			"Logs whose lag could not be read during the last scrape.", nil, nil),
	}
}

func (c *LagCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.lag
	ch <- c.upper
	ch <- c.failures
}

func (c *LagCollector) Collect(ch chan<- prometheus.Metric) {
	failures := 0
	names, err := c.src.ListAll()
	if err != nil {
		c.logger.Warn("list logs for lag", logpkg.Err(err))
		failures++
	}
	for _, name := range names {
		groups, err := c.src.ListConsumerGroups(name)
		if err != nil {
			c.logger.Warn("list groups for lag", logpkg.Str("log", name), logpkg.Err(err))
			failures++
			continue
		}
		reported := false
		for _, group := range groups {
			lags, err := c.src.GetLagPerPartition(name, group)
			if err != nil {
				c.logger.Warn("read lag", logpkg.Str("log", name), logpkg.Str("group", group), logpkg.Err(err))
				failures++
				continue
			}
			for i, l := range lags {
				p := partitionLabel(i)
				ch <- prometheus.MustNewConstMetric(c.lag, prometheus.GaugeValue, float64(l.Lag()), name, group, p)
				if !reported {
					ch <- prometheus.MustNewConstMetric(c.upper, prometheus.GaugeValue, float64(l.Upper), name, p)
				}
			}
			reported = true
		}
	}
	ch <- prometheus.MustNewConstMetric(c.failures, prometheus.GaugeValue, float64(failures))
}

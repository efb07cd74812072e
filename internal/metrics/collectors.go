package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// FlowStats is the subset of congestion.Stats the collector needs,
// expressed structurally so this package does not import congestion.
type FlowStats struct {
	Cwnd          int64
	MaxWnd        int64
	BDP           int64
	InFlight      int64
	AvgDelay      time.Duration
	InRecovery    bool
	AchievedBytes int64
}

// FlowProvider is consulted on every Prometheus scrape to list the
// currently open flows and their live state, rather than requiring the
// congestion package to push a sample on every ACK.
type FlowProvider interface {
	ListFlows() map[string]FlowStats
}

// FlowCollector is a custom prometheus.Collector exporting live
// per-flow window state.
type FlowCollector struct {
	provider FlowProvider

	cwndDesc       *prometheus.Desc
	maxwndDesc     *prometheus.Desc
	bdpDesc        *prometheus.Desc
	inFlightDesc   *prometheus.Desc
	avgDelayDesc   *prometheus.Desc
	inRecoveryDesc *prometheus.Desc
	achievedDesc   *prometheus.Desc
}

// NewFlowCollector creates a collector reading from provider.
func NewFlowCollector(provider FlowProvider) *FlowCollector {
	namespace := "nscc"
	subsystem := "flow"

	return &FlowCollector{
		provider: provider,

		cwndDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "cwnd_bytes"),
			"Current congestion window",
			[]string{"flow"}, nil,
		),
		maxwndDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "maxwnd_bytes"),
			"Current window ceiling (multiplier * bdp)",
			[]string{"flow"}, nil,
		),
		bdpDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "bdp_bytes"),
			"Bandwidth-delay product at the flow's current base_rtt",
			[]string{"flow"}, nil,
		),
		inFlightDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "in_flight_bytes"),
			"Bytes sent but not yet acknowledged",
			[]string{"flow"}, nil,
		),
		avgDelayDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "avg_delay_seconds"),
			"Dual-timescale EWMA queuing delay estimate",
			[]string{"flow"}, nil,
		),
		inRecoveryDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "in_recovery"),
			"1 if the flow is currently in SLEEK loss recovery mode",
			[]string{"flow"}, nil,
		),
		achievedDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "quick_adapt_achieved_bytes"),
			"Bytes acknowledged since the last Quick Adapt evaluation window started",
			[]string{"flow"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *FlowCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.cwndDesc
	ch <- c.maxwndDesc
	ch <- c.bdpDesc
	ch <- c.inFlightDesc
	ch <- c.avgDelayDesc
	ch <- c.inRecoveryDesc
	ch <- c.achievedDesc
}

// Collect implements prometheus.Collector.
func (c *FlowCollector) Collect(ch chan<- prometheus.Metric) {
	for flowID, s := range c.provider.ListFlows() {
		ch <- prometheus.MustNewConstMetric(c.cwndDesc, prometheus.GaugeValue, float64(s.Cwnd), flowID)
		ch <- prometheus.MustNewConstMetric(c.maxwndDesc, prometheus.GaugeValue, float64(s.MaxWnd), flowID)
		ch <- prometheus.MustNewConstMetric(c.bdpDesc, prometheus.GaugeValue, float64(s.BDP), flowID)
		ch <- prometheus.MustNewConstMetric(c.inFlightDesc, prometheus.GaugeValue, float64(s.InFlight), flowID)
		ch <- prometheus.MustNewConstMetric(c.avgDelayDesc, prometheus.GaugeValue, s.AvgDelay.Seconds(), flowID)

		inRecovery := 0.0
		if s.InRecovery {
			inRecovery = 1.0
		}
		ch <- prometheus.MustNewConstMetric(c.inRecoveryDesc, prometheus.GaugeValue, inRecovery, flowID)
		ch <- prometheus.MustNewConstMetric(c.achievedDesc, prometheus.GaugeValue, float64(s.AchievedBytes), flowID)
	}
}

// PathQuality is the subset of multipath.PathQuality the collector
// needs, expressed structurally so this package does not import
// multipath.
type PathQuality struct {
	Score                float64
	ECNRate              float64
	NACKRate             float64
	ConsecutiveTimeouts  int
	IsActive             bool
}

// PathProvider is consulted on every scrape for the multipath engine's
// current per-path scores.
type PathProvider interface {
	ListPaths() map[string]PathQuality
}

// PathCollector is a custom prometheus.Collector exporting the
// multipath engine's live path quality scores.
type PathCollector struct {
	provider PathProvider

	scoreDesc    *prometheus.Desc
	ecnRateDesc  *prometheus.Desc
	nackRateDesc *prometheus.Desc
	timeoutsDesc *prometheus.Desc
	activeDesc   *prometheus.Desc
}

// NewPathCollector creates a collector reading from provider.
func NewPathCollector(provider PathProvider) *PathCollector {
	namespace := "nscc"
	subsystem := "multipath"

	return &PathCollector{
		provider: provider,

		scoreDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "path_score"),
			"Current EWMA quality score for the path, higher is better",
			[]string{"path"}, nil,
		),
		ecnRateDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "path_ecn_rate"),
			"Fraction of recent feedback events on the path that carried ECN",
			[]string{"path"}, nil,
		),
		nackRateDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "path_nack_rate"),
			"Fraction of recent feedback events on the path that were NACKs",
			[]string{"path"}, nil,
		),
		timeoutsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "path_consecutive_timeouts"),
			"Current consecutive-timeout streak on the path",
			[]string{"path"}, nil,
		),
		activeDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "path_active"),
			"1 if this is the engine's currently selected path",
			[]string{"path"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *PathCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.scoreDesc
	ch <- c.ecnRateDesc
	ch <- c.nackRateDesc
	ch <- c.timeoutsDesc
	ch <- c.activeDesc
}

// Collect implements prometheus.Collector.
func (c *PathCollector) Collect(ch chan<- prometheus.Metric) {
	for pathID, q := range c.provider.ListPaths() {
		ch <- prometheus.MustNewConstMetric(c.scoreDesc, prometheus.GaugeValue, q.Score, pathID)
		ch <- prometheus.MustNewConstMetric(c.ecnRateDesc, prometheus.GaugeValue, q.ECNRate, pathID)
		ch <- prometheus.MustNewConstMetric(c.nackRateDesc, prometheus.GaugeValue, q.NACKRate, pathID)
		ch <- prometheus.MustNewConstMetric(c.timeoutsDesc, prometheus.GaugeValue, float64(q.ConsecutiveTimeouts), pathID)

		active := 0.0
		if q.IsActive {
			active = 1.0
		}
		ch <- prometheus.MustNewConstMetric(c.activeDesc, prometheus.GaugeValue, active, pathID)
	}
}

package agent

import (
	"github.com/dipsingh/nscc/internal/congestion"
	"github.com/dipsingh/nscc/internal/metrics"
)

// multiTraceSink fans a Flow's trace events out to more than one sink,
// so a caller-supplied TraceSink and the manager's own metrics sink can
// both observe the same stream without either knowing about the other.
type multiTraceSink struct {
	sinks []congestion.TraceSink
}

func (m multiTraceSink) LogSample(s congestion.Sample) {
	for _, sink := range m.sinks {
		if sink != nil {
			sink.LogSample(s)
		}
	}
}

func (m multiTraceSink) LogQAEvent(e congestion.QAEvent) {
	for _, sink := range m.sinks {
		if sink != nil {
			sink.LogQAEvent(e)
		}
	}
}

// metricsTraceSink adapts a Flow's TraceSink callbacks into Prometheus
// recordings, the same shape engineAdapter uses to bridge Notify into
// path-switch metrics. Quick Adapt firings are not recorded here: they
// reach Metrics through the hook OpenFlow registers with
// Flow.SetQuickAdaptHook instead, since LogQAEvent and that hook are
// meant for two different consumers, not the same one twice.
type metricsTraceSink struct {
	metrics *metrics.Metrics
	flowID  string
}

func (s metricsTraceSink) LogSample(sample congestion.Sample) {
	s.metrics.RecordAction(s.flowID, sample.Quadrant.String())
	s.metrics.RecordDelay(s.flowID, sample.RawDelay.Seconds(), sample.AvgDelay.Seconds())
	if sample.IncFast != 0 {
		s.metrics.RecordFastIncrease()
	}
}

func (s metricsTraceSink) LogQAEvent(congestion.QAEvent) {}

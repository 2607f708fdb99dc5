// Package metrics provides Prometheus instrumentation for the simulation engine.
//
// Metrics live on a private registry and are never served over the network;
// the CLI reads them back with Gather.
package metrics

import (
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/verte-zerg/klsim/internal/model"
)

const namespace = "klsim"

// Rejection reasons.
const (
	ReasonUnsafe    = "unsafe"
	ReasonRateLimit = "rate_limit"
	ReasonBlocked   = "blocked"
)

// Recorder holds the engine collectors. A nil *Recorder records nothing.
type Recorder struct {
	registry *prometheus.Registry

	keystrokesAccepted prometheus.Counter
	keystrokesRejected *prometheus.CounterVec
	autoBlocks         prometheus.Counter
	avTransitions      *prometheus.CounterVec
	riskLevel          prometheus.Gauge
	patternScore       prometheus.Histogram
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		keystrokesAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keystrokes_accepted_total",
			Help:      "Keystrokes appended to the captured stream.",
		}),
		keystrokesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keystrokes_rejected_total",
			Help:      "Edits rejected at ingestion by reason.",
		}, []string{"reason"}),
		autoBlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auto_blocks_total",
			Help:      "Times auto-block halted input.",
		}),
		avTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "av_transitions_total",
			Help:      "Antivirus lifecycle transitions by target state.",
		}, []string{"status"}),
		riskLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "risk_level",
			Help:      "Current risk level (1 low, 2 medium, 3 high).",
		}),
		patternScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pattern_score",
			Help:      "Pattern score of accepted edits.",
			Buckets:   []float64{0, 10, 20, 30, 40, 60, 80, 100},
		}),
	}
	r.registry.MustRegister(
		r.keystrokesAccepted,
		r.keystrokesRejected,
		r.autoBlocks,
		r.avTransitions,
		r.riskLevel,
		r.patternScore,
	)
	return r
}

// KeystrokeAccepted counts an accepted keystroke.
func (r *Recorder) KeystrokeAccepted() {
	if r == nil {
		return
	}
	r.keystrokesAccepted.Inc()
}

// KeystrokeRejected counts a rejected edit.
func (r *Recorder) KeystrokeRejected(reason string) {
	if r == nil {
		return
	}
	r.keystrokesRejected.WithLabelValues(reason).Inc()
}

// AutoBlocked counts an auto-block.
func (r *Recorder) AutoBlocked() {
	if r == nil {
		return
	}
	r.autoBlocks.Inc()
}

// AVTransition counts a lifecycle transition into status.
func (r *Recorder) AVTransition(status model.AVStatus) {
	if r == nil {
		return
	}
	r.avTransitions.WithLabelValues(string(status)).Inc()
}

// Risk records the latest classification.
func (r *Recorder) Risk(level model.RiskLevel, score int) {
	if r == nil {
		return
	}
	r.riskLevel.Set(float64(level))
	r.patternScore.Observe(float64(score))
}

// Sample is a flattened metric value.
type Sample struct {
	Name   string
	Labels string
	Value  float64
}

// Gather returns all counter and gauge samples sorted by name.
func (r *Recorder) Gather() ([]Sample, error) {
	if r == nil {
		return nil, nil
	}
	families, err := r.registry.Gather()
	if err != nil {
		return nil, err
	}
	var out []Sample
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			s := Sample{Name: mf.GetName(), Labels: labelString(m.GetLabel())}
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				s.Value = m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				s.Value = m.GetGauge().GetValue()
			case dto.MetricType_HISTOGRAM:
				s.Name += "_count"
				s.Value = float64(m.GetHistogram().GetSampleCount())
			default:
				continue
			}
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].Labels < out[j].Labels
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func labelString(pairs []*dto.LabelPair) string {
	if len(pairs) == 0 {
		return ""
	}
	s := ""
	for i, p := range pairs {
		if i > 0 {
			s += ","
		}
		s += p.GetName() + "=" + p.GetValue()
	}
	return s
}

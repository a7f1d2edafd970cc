package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder tracks user-turn outcomes and completion latency.
type Recorder struct {
	turns    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewRecorder registers the chat metrics with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		turns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chat_agent",
				Name:      "user_turns_total",
				Help:      "User turns by outcome (answered, stalled, rejected, failed)",
			},
			[]string{"outcome"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "chat_agent",
				Name:      "user_turn_duration_seconds",
				Help:      "Time spent handling a user turn, including the provider call",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"outcome"},
		),
	}
}

// ObserveTurn records one finished user turn. A nil Recorder is a no-op.
func (r *Recorder) ObserveTurn(outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.turns.WithLabelValues(outcome).Inc()
	r.duration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

package simulator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var actionsAttempted = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "subsim_actions_attempted_total",
	Help: "Number of actions attempted",
}, []string{"kind", "status"})

var actionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "subsim_action_duration_seconds",
	Help:    "Duration of action attempts",
	Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
}, []string{"kind"})

var votesCast = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "subsim_votes_cast_total",
	Help: "Number of votes cast",
}, []string{"direction"})

var ticksRun = promauto.NewCounter(prometheus.CounterOpts{
	Name: "subsim_ticks_total",
	Help: "Number of scheduler ticks run",
})

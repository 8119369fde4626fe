package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var ticksEvaluated = promauto.NewCounter(prometheus.CounterOpts{
	Name: "botengine_scheduler_ticks_evaluated_total",
	Help: "Total per-bot tick evaluations.",
})

var tickResults = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "botengine_scheduler_tick_results_total",
	Help: "Tick evaluation outcomes by status.",
}, []string{"status"})

var actionsScheduled = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "botengine_scheduler_actions_scheduled_total",
	Help: "Scheduled actions by kind.",
}, []string{"kind"})

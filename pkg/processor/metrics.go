package processor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var actionsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "botengine_processor_actions_total",
	Help: "Processed scheduled actions by outcome.",
}, []string{"outcome"})

var generationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "botengine_processor_generation_seconds",
	Help:    "Latency of text generation calls.",
	Buckets: prometheus.DefBuckets,
})

package tasks

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var processed = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tasks_processed_total",
		Help: "Background tasks processed grouped by kind and status",
	},
	[]string{"kind", "status"},
)

// MustRegisterMetrics registers task metrics with reg.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if err := reg.Register(processed); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			panic(err)
		}
	}
}

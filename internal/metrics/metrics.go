// Package metrics exposes Prometheus collectors for the realtime layer.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_commands_total",
		Help: "Commands handled, by command name and outcome.",
	}, []string{"command", "status"})

	BroadcastsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_broadcasts_total",
		Help: "Events pushed, by scope.",
	}, []string{"scope"})

	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_connections",
		Help: "Currently open websocket connections.",
	})
)

func Handler() http.Handler {
	return promhttp.Handler()
}

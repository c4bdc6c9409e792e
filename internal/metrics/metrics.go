package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// MessagesSubmitted counts messages durably persisted via Submit.
	MessagesSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatline_messages_submitted_total",
		Help: "Messages durably persisted by the broadcast engine.",
	})

	// MessagesDelivered counts successful per-member deliveries.
	MessagesDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatline_messages_delivered_total",
		Help: "Per-member message deliveries that reached the send buffer.",
	})

	// DeliveriesDropped counts per-member deliveries dropped because the
	// member disconnected or its send buffer was full.
	DeliveriesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatline_deliveries_dropped_total",
		Help: "Per-member message deliveries dropped during broadcast.",
	})

	// ConnectedClients tracks currently open websocket connections.
	ConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatline_connected_clients",
		Help: "Currently connected websocket clients.",
	})
)

// Handler exposes Prometheus metrics at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexusdex_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nexusdex_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"method", "route"},
	)

	WebsocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nexusdex_websocket_clients",
			Help: "Connected websocket clients",
		},
	)

	// Chain metrics
	BlocksCommitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nexusdex_blocks_committed_total",
			Help: "Total number of committed blocks",
		},
	)

	BlockHeight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nexusdex_block_height",
			Help: "Height of the last committed block",
		},
	)

	FinalizeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nexusdex_finalize_block_duration_seconds",
			Help:    "Time to execute and persist one block",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	// Transaction metrics
	TxsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexusdex_txs_total",
			Help: "Executed transactions by type and result code",
		},
		[]string{"type", "result"},
	)

	MempoolSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nexusdex_mempool_size",
			Help: "Pending transactions per proposal bucket",
		},
		[]string{"class"},
	)

	// Exchange metrics
	FillsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexusdex_fills_total",
			Help: "Total number of fills by pair",
		},
		[]string{"pair"},
	)

	RestingOrders = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nexusdex_resting_orders",
			Help: "Orders currently resting on all books",
		},
	)

	// Feed metrics
	FeedMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexusdex_feed_messages_published_total",
			Help: "Messages written to the event feed",
		},
		[]string{"result"}, // ok, error
	)
)

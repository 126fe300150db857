package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RewardsPending tracks the number of rewards waiting for payout
	RewardsPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "h2e_rewards_pending",
		Help: "The number of reward records currently pending payout",
	})

	// PayoutsTotal tracks payout outcomes by status
	PayoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "h2e_payouts_total",
			Help: "The total number of payout attempts",
		},
		[]string{"status"}, // processed, failed, lost_claim, claim_error
	)

	// BroadcastSeconds tracks time taken to broadcast one payout
	BroadcastSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "h2e_broadcast_seconds",
		Help:    "Time taken to broadcast one reward payout in seconds",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~51s
	})

	// AnnounceRequestsTotal tracks transaction announces by status
	AnnounceRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "h2e_announce_requests_total",
			Help: "The total number of transaction announce requests",
		},
		[]string{"status"},
	)

	// NodesHealthy tracks how many configured nodes look healthy
	NodesHealthy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "h2e_nodes_healthy",
		Help: "The number of dHealth nodes without a recent failure",
	})

	// WebhookEventsTotal tracks incoming Strava webhook events
	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "h2e_webhook_events_total",
			Help: "The total number of Strava webhook events",
		},
		[]string{"result"}, // received, ignored
	)
)

// SetPendingRewards sets the pending rewards gauge
func SetPendingRewards(n int) {
	RewardsPending.Set(float64(n))
}

// RecordPayout records a payout attempt with the given status
func RecordPayout(status string) {
	PayoutsTotal.WithLabelValues(status).Inc()
}

// ObserveBroadcastDuration records the time taken to broadcast a payout
func ObserveBroadcastDuration(d time.Duration) {
	BroadcastSeconds.Observe(d.Seconds())
}

// RecordAnnounce records a transaction announce with the given status
func RecordAnnounce(status string) {
	AnnounceRequestsTotal.WithLabelValues(status).Inc()
}

// SetNodesHealthy sets the healthy node count gauge
func SetNodesHealthy(n int) {
	NodesHealthy.Set(float64(n))
}

// RecordWebhookEvent records an incoming webhook event
func RecordWebhookEvent(result string) {
	WebhookEventsTotal.WithLabelValues(result).Inc()
}

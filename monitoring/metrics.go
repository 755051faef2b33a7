package monitoring

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	reservationOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reservation_operations_total",
			Help: "Reservation operations by outcome",
		},
		[]string{"operation", "status"},
	)

	webhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhook_events_total",
			Help: "Payment webhook deliveries by applied result",
		},
		[]string{"result"},
	)

	scanResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credential_scan_results_total",
			Help: "Door scan outcomes by reason",
		},
		[]string{"result"},
	)

	inventoryRemaining = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "inventory_remaining_units",
			Help: "Remaining sellable units per event tier",
		},
		[]string{"event_id", "tier_id"},
	)

	admissionWaiting = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "admission_waiting_total",
			Help: "Users waiting for admission per event",
		},
		[]string{"event_id"},
	)

	gatewayCallDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gateway_call_duration_seconds",
			Help:    "Duration of payment gateway calls",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		},
	)
)

// Monitor periodically projects hot Redis state into Prometheus gauges. The
// Track methods only touch package-level vectors, so a nil *Monitor is safe
// to call in tests.
type Monitor struct {
	redis *redis.Client
}

func NewMonitor(redisClient *redis.Client) *Monitor {
	monitor := &Monitor{redis: redisClient}

	// Start metrics collection
	go monitor.collectMetrics()

	return monitor
}

func (m *Monitor) collectMetrics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		ctx := context.Background()
		m.collectInventoryMetrics(ctx)
		m.collectAdmissionMetrics(ctx)
	}
}

func (m *Monitor) collectInventoryMetrics(ctx context.Context) {
	keys, _ := m.redis.Keys(ctx, "inventory:*").Result()
	for _, key := range keys {
		// inventory:{event}:{tier}
		rest := key[len("inventory:"):]
		sep := -1
		for i, r := range rest {
			if r == ':' {
				sep = i
				break
			}
		}
		if sep < 0 {
			continue
		}
		remaining, err := m.redis.HGet(ctx, key, "remaining").Int64()
		if err != nil {
			continue
		}
		inventoryRemaining.WithLabelValues(rest[:sep], rest[sep+1:]).Set(float64(remaining))
	}
}

func (m *Monitor) collectAdmissionMetrics(ctx context.Context) {
	keys, _ := m.redis.Keys(ctx, "admit:waiting:*").Result()
	for _, key := range keys {
		eventID := key[len("admit:waiting:"):]
		length, _ := m.redis.LLen(ctx, key).Result()
		admissionWaiting.WithLabelValues(eventID).Set(float64(length))
	}
}

// TrackReservation records a reservation operation outcome.
func (m *Monitor) TrackReservation(operation, result string) {
	reservationOps.WithLabelValues(operation, result).Inc()
}

// TrackWebhook records how a webhook delivery was applied.
func (m *Monitor) TrackWebhook(result string) {
	webhookEvents.WithLabelValues(result).Inc()
}

// TrackScan records a door scan outcome.
func (m *Monitor) TrackScan(result string) {
	scanResults.WithLabelValues(result).Inc()
}

// TrackGatewayCall records the duration of a payment gateway round trip.
func (m *Monitor) TrackGatewayCall(duration time.Duration) {
	gatewayCallDuration.Observe(duration.Seconds())
}

package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики движка матчинга и доставки
// ============================================================
//
// Использование:
// - Grafana дашборды для визуализации циклов и раундов доставки
// - Alertmanager для уведомлений об отказах бирж и Discord

// ============ Метрики цикла матчинга ============

// CycleDuration - длительность полного цикла проверки алертов
var CycleDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "spotalert",
		Subsystem: "matching",
		Name:      "cycle_duration_seconds",
		Help:      "Duration of a full alert matching cycle in seconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	},
)

// CandleFetchLatency - время запроса свечей к бирже
var CandleFetchLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "spotalert",
		Subsystem: "matching",
		Name:      "candle_fetch_latency_ms",
		Help:      "Time to fetch candlesticks from exchange in milliseconds",
		Buckets:   []float64{50, 100, 200, 500, 1000, 2000, 5000, 10000},
	},
	[]string{"exchange"},
)

// PairCheckFailures - отказы проверки (exchange, pair); один отказ не
// прерывает цикл для остальных пар
var PairCheckFailures = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "spotalert",
		Subsystem: "matching",
		Name:      "pair_check_failures_total",
		Help:      "Number of failed per-pair checks (isolated, cycle continues)",
	},
	[]string{"exchange"},
)

// AlertsEvaluated - число проверенных алертов по типам
var AlertsEvaluated = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "spotalert",
		Subsystem: "matching",
		Name:      "alerts_evaluated_total",
		Help:      "Total number of evaluated alerts",
	},
	[]string{"type"},
)

// AlertsFired - сработавшие алерты по типам и исходу
var AlertsFired = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "spotalert",
		Subsystem: "matching",
		Name:      "alerts_fired_total",
		Help:      "Total number of fired alerts",
	},
	[]string{"type", "outcome"}, // outcome: matched, margin
)

// EligiblePairs - число (exchange, pair) комбинаций в последнем цикле
var EligiblePairs = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "spotalert",
		Subsystem: "matching",
		Name:      "eligible_pairs",
		Help:      "Number of (exchange, pair) combinations in the last cycle",
	},
)

// AlertsSwept - алерты, удаленные retention sweep'ом
var AlertsSwept = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "spotalert",
		Subsystem: "matching",
		Name:      "alerts_swept_total",
		Help:      "Number of alerts removed by retention sweeps",
	},
	[]string{"reason"}, // reason: repeat_exhausted, window_elapsed
)

// ============ Метрики доставки ============

// DispatchRounds - число выполненных раундов доставки
var DispatchRounds = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "spotalert",
		Subsystem: "delivery",
		Name:      "dispatch_rounds_total",
		Help:      "Number of executed dispatch rounds",
	},
)

// DispatchCoalesced - запуски, коалесцированные в уже идущий раунд
var DispatchCoalesced = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "spotalert",
		Subsystem: "delivery",
		Name:      "dispatch_coalesced_total",
		Help:      "Number of dispatch requests coalesced into an in-flight round",
	},
)

// NotificationsCreated - созданные уведомления по типам
var NotificationsCreated = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "spotalert",
		Subsystem: "delivery",
		Name:      "notifications_created_total",
		Help:      "Number of notifications enqueued",
	},
	[]string{"type"},
)

// DeliveryOutcomes - исходы доставки уведомлений
var DeliveryOutcomes = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "spotalert",
		Subsystem: "delivery",
		Name:      "outcomes_total",
		Help:      "Delivery outcomes per notification",
	},
	[]string{"outcome"}, // delivered, transient, blocked, recipient_gone, migrated
)

// SendLatency - время одной отправки в Discord
var SendLatency = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "spotalert",
		Subsystem: "delivery",
		Name:      "send_latency_ms",
		Help:      "Time of a single Discord send in milliseconds",
		Buckets:   []float64{50, 100, 200, 500, 1000, 2000, 5000, 10000},
	},
)

// NotificationsSwept - уведомления, удаленные retention sweep'ом
var NotificationsSwept = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "spotalert",
		Subsystem: "delivery",
		Name:      "notifications_swept_total",
		Help:      "Number of notifications removed by retention sweeps",
	},
)

// ============ Вспомогательные функции ============

// RecordCandleFetch записывает латентность запроса свечей
func RecordCandleFetch(exchange string, latencyMs float64) {
	CandleFetchLatency.WithLabelValues(exchange).Observe(latencyMs)
}

// RecordPairCheckFailure записывает изолированный отказ проверки пары
func RecordPairCheckFailure(exchange string) {
	PairCheckFailures.WithLabelValues(exchange).Inc()
}

// RecordAlertOutcome записывает исход проверки алерта
func RecordAlertOutcome(alertType string, outcome Outcome) {
	AlertsEvaluated.WithLabelValues(alertType).Inc()
	switch outcome {
	case OutcomeMatched:
		AlertsFired.WithLabelValues(alertType, "matched").Inc()
	case OutcomeMargin:
		AlertsFired.WithLabelValues(alertType, "margin").Inc()
	}
}

// RecordNotificationCreated записывает постановку уведомления в очередь
func RecordNotificationCreated(notifType string) {
	NotificationsCreated.WithLabelValues(notifType).Inc()
}

// RecordDeliveryOutcome записывает исход доставки
func RecordDeliveryOutcome(outcome string) {
	DeliveryOutcomes.WithLabelValues(outcome).Inc()
}

// RecordSweep записывает результат retention sweep'а алертов
func RecordSweep(reason string, count int) {
	if count > 0 {
		AlertsSwept.WithLabelValues(reason).Add(float64(count))
	}
}

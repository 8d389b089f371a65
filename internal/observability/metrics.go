package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics exposed by the engine.
type Metrics struct {
	// --- Orders ---
	OrdersPlaced    *prometheus.CounterVec
	OrdersCanceled  *prometheus.CounterVec
	OrdersExpired   *prometheus.CounterVec
	OrdersTriggered *prometheus.CounterVec
	Rejections      *prometheus.CounterVec
	RestingOrders   *prometheus.GaugeVec

	// --- Fills ---
	FillsTotal      *prometheus.CounterVec
	FillBaseVolume  *prometheus.CounterVec
	FillQuoteVolume *prometheus.CounterVec
	FillDuration    *prometheus.HistogramVec

	// --- Risk ---
	LiquidationsTotal    *prometheus.CounterVec
	LiquidationDeficit   *prometheus.CounterVec
	InsuranceFundBalance prometheus.Gauge

	// --- Funding & settlement ---
	FundingUpdates *prometheus.CounterVec
	FundingRate    *prometheus.GaugeVec
	PnlSettlements *prometheus.CounterVec

	// --- AMM ---
	MarkPrice   *prometheus.GaugeVec
	OraclePrice *prometheus.GaugeVec

	// --- Outbound ---
	EventsPublished *prometheus.CounterVec
	PublishDrops    prometheus.Counter
	PersistWrites   prometheus.Counter
	PersistErrors   *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics on the default
// registry.
func NewMetrics() *Metrics {
	fillBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005,
	}

	return &Metrics{
		OrdersPlaced: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_orders_placed_total",
			Help: "Orders accepted by the engine",
		}, []string{"market", "order_type"}),

		OrdersCanceled: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_orders_canceled_total",
			Help: "Orders removed before full fill",
		}, []string{"market", "reason"}),

		OrdersExpired: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_orders_expired_total",
			Help: "Orders removed past max_ts",
		}, []string{"market"}),

		OrdersTriggered: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_orders_triggered_total",
			Help: "Trigger orders activated",
		}, []string{"market"}),

		Rejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_rejections_total",
			Help: "Operations rejected, by rejection code",
		}, []string{"operation", "code"}),

		RestingOrders: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "perp_resting_orders",
			Help: "Orders currently resting on the book",
		}, []string{"market"}),

		FillsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_fills_total",
			Help: "Fill legs committed",
		}, []string{"market", "source"}),

		FillBaseVolume: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_fill_base_volume",
			Help: "Filled base amount (base precision units)",
		}, []string{"market", "source"}),

		FillQuoteVolume: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_fill_quote_volume",
			Help: "Filled quote value (quote precision units)",
		}, []string{"market", "source"}),

		FillDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "perp_fill_duration_seconds",
			Help:    "Time to plan and commit one fill operation",
			Buckets: fillBuckets,
		}, []string{"market"}),

		LiquidationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_liquidations_total",
			Help: "Liquidation transfers executed",
		}, []string{"market"}),

		LiquidationDeficit: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_liquidation_deficit_total",
			Help: "Deficit covered by the insurance fund (quote units)",
		}, []string{"market"}),

		InsuranceFundBalance: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "perp_insurance_fund_balance",
			Help: "Current insurance fund balance (quote units)",
		}),

		FundingUpdates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_funding_updates_total",
			Help: "Funding periods settled",
		}, []string{"market"}),

		FundingRate: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "perp_funding_rate",
			Help: "Last funding rate (rate precision units)",
		}, []string{"market"}),

		PnlSettlements: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_pnl_settlements_total",
			Help: "PnL settlements executed",
		}, []string{"market"}),

		MarkPrice: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "perp_mark_price",
			Help: "AMM reserve price (price precision units)",
		}, []string{"market"}),

		OraclePrice: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "perp_oracle_price",
			Help: "Last validated oracle price (price precision units)",
		}, []string{"market"}),

		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_events_published_total",
			Help: "Events published to NATS",
		}, []string{"event_type"}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "perp_publish_drops_total",
			Help: "Events dropped due to full publish buffer",
		}),

		PersistWrites: promauto.NewCounter(prometheus.CounterOpts{
			Name: "perp_persist_events_written_total",
			Help: "Events written to Postgres",
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),
	}
}

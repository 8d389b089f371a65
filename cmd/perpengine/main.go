package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"PerpEngine/internal/engine"
	"PerpEngine/internal/event"
	"PerpEngine/internal/market"
	"PerpEngine/internal/observability"
	"PerpEngine/internal/oracle"
	"PerpEngine/internal/persistence"
	"PerpEngine/internal/publish"
	"PerpEngine/internal/server"
)

// Config is loaded from environment variables. Postgres and NATS are
// optional: an empty DSN or URL disables that surface, leaving a
// self-contained in-memory engine.
type Config struct {
	HTTPAddr    string
	MetricsAddr string

	PostgresDSN string
	NATSURL     string

	PersistBufferSize   int
	PersistBatchSize    int
	PersistFlushTimeout time.Duration
	PublishBufferSize   int

	MigrationsDir string

	// Markets is a comma-separated list of index:symbol:oraclePrice.
	Markets string

	SlotDuration  time.Duration
	KeeperCadence time.Duration
}

func DefaultConfig() Config {
	return Config{
		HTTPAddr:            envOrDefault("PERP_HTTP_ADDR", ":8080"),
		MetricsAddr:         envOrDefault("PERP_METRICS_ADDR", ":9091"),
		PostgresDSN:         os.Getenv("PERP_POSTGRES_DSN"),
		NATSURL:             os.Getenv("PERP_NATS_URL"),
		PersistBufferSize:   envIntOrDefault("PERP_PERSIST_BUFFER_SIZE", 8192),
		PersistBatchSize:    envIntOrDefault("PERP_PERSIST_BATCH_SIZE", 50),
		PersistFlushTimeout: 10 * time.Millisecond,
		PublishBufferSize:   envIntOrDefault("PERP_PUBLISH_BUFFER_SIZE", 4096),
		MigrationsDir:       envOrDefault("PERP_MIGRATIONS_DIR", "migrations"),
		Markets:             envOrDefault("PERP_MARKETS", "0:SOL-PERP:150000000"),
		SlotDuration:        400 * time.Millisecond,
		KeeperCadence:       time.Duration(envIntOrDefault("PERP_KEEPER_CADENCE_SECONDS", 10)) * time.Second,
	}
}

func main() {
	log := observability.NewLogger("perpengine")
	cfg := DefaultConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	metrics := observability.NewMetrics()
	health := observability.NewHealthChecker()

	errChan := make(chan error, 8)

	// --- Sinks: event log to Postgres, outbound events to NATS ---
	var sinks event.Multi

	if cfg.PostgresDSN != "" {
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres open")
		}
		defer db.Close()
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.PingContext(ctx); err != nil {
			log.Fatal().Err(err).Msg("postgres ping")
		}
		log.Info().Msg("postgres connected")

		migrator := persistence.NewMigrator(db, cfg.MigrationsDir, observability.NewLogger("migrator"))
		if err := migrator.Up(ctx); err != nil {
			log.Fatal().Err(err).Msg("run migrations")
		}

		worker := persistence.NewWorker(db, cfg.PersistBufferSize, cfg.PersistBatchSize,
			cfg.PersistFlushTimeout, observability.NewLogger("persistence"), metrics)
		sinks = append(sinks, worker)
		go func() {
			errChan <- worker.Run(ctx)
		}()
	} else {
		log.Warn().Msg("PERP_POSTGRES_DSN not set, event log disabled")
	}

	if cfg.NATSURL != "" {
		nc, js, err := publish.Connect(cfg.NATSURL)
		if err != nil {
			log.Fatal().Err(err).Msg("nats connect")
		}
		defer nc.Close()
		log.Info().Msg("nats connected")

		if err := publish.EnsureEventStream(ctx, js); err != nil {
			log.Fatal().Err(err).Msg("ensure event stream")
		}

		publisher := publish.NewPublisher(js, cfg.PublishBufferSize,
			observability.NewLogger("publisher"), metrics)
		sinks = append(sinks, publisher)
		go func() {
			errChan <- publisher.Run(ctx)
		}()
	} else {
		log.Warn().Msg("PERP_NATS_URL not set, outbound publishing disabled")
	}

	var sink event.Sink
	if len(sinks) > 0 {
		sink = sinks
	}

	// --- Engine ---
	clock := engine.NewSystemClock(cfg.SlotDuration)
	src := oracle.NewStaticSource()

	eng := engine.New(engine.DefaultConfig(), engine.Deps{
		Log:     observability.NewLogger("engine"),
		Clock:   clock,
		Oracle:  oracle.NewAdapter(src, oracle.DefaultGuardConfig()),
		Sink:    sink,
		Metrics: metrics,
	})

	markets, err := parseMarkets(cfg.Markets)
	if err != nil {
		log.Fatal().Err(err).Msg("parse PERP_MARKETS")
	}
	for _, spec := range markets {
		// Seed the oracle at the configured price; the HTTP feed takes over
		// from there.
		src.Set(spec.Index, spec.OraclePrice, uint64(spec.OraclePrice/1000), clock.Slot())
		if err := eng.AddMarket(market.DefaultMarket(spec.Index, spec.Symbol, spec.OraclePrice)); err != nil {
			log.Fatal().Err(err).Uint16("market", spec.Index).Msg("add market")
		}
	}

	oracleSet := func(marketIndex uint16, price int64, confidence uint64) {
		src.Set(marketIndex, price, confidence, clock.Slot())
	}

	// --- HTTP API ---
	srv := server.New(eng, oracleSet, observability.NewLogger("http"))
	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Router()}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("http server: %w", err)
		}
	}()

	// --- Metrics and probes ---
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsMux.HandleFunc("/healthz", health.LivenessHandler)
	metricsMux.HandleFunc("/readyz", health.ReadinessHandler)
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}
	go func() {
		log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server listening")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	// --- Keeper cranks: order expiry and funding ---
	go runKeeper(ctx, eng, cfg.KeeperCadence, observability.NewLogger("keeper"))

	health.SetReady(true)
	log.Info().
		Str("http", cfg.HTTPAddr).
		Str("metrics", cfg.MetricsAddr).
		Int("markets", len(markets)).
		Msg("perpengine ready")

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errChan:
		log.Error().Err(err).Msg("goroutine failed, shutting down")
	}

	health.SetReady(false)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	metricsServer.Shutdown(shutdownCtx)

	log.Info().Msg("shutdown complete")
}

// runKeeper periodically expires stale orders and cranks funding. Timing
// rejections from funding are the normal idle case.
func runKeeper(ctx context.Context, eng *engine.Engine, cadence time.Duration, log zerolog.Logger) {
	ticker := time.NewTicker(cadence)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, mi := range eng.MarketIndexes() {
				if n, err := eng.ExpireOrders(mi); err != nil {
					log.Warn().Err(err).Uint16("market", mi).Msg("expire sweep failed")
				} else if n > 0 {
					log.Info().Uint16("market", mi).Int("expired", n).Msg("orders expired")
				}

				if _, err := eng.UpdateFundingRate(mi); err != nil {
					if !errors.Is(err, engine.ErrFundingWasNotUpdated) && !errors.Is(err, engine.ErrOracleInvalid) {
						log.Warn().Err(err).Uint16("market", mi).Msg("funding crank failed")
					}
				}
			}
		}
	}
}

type marketSpec struct {
	Index       uint16
	Symbol      string
	OraclePrice int64
}

// parseMarkets parses "index:symbol:oraclePrice" entries.
func parseMarkets(s string) ([]marketSpec, error) {
	var out []marketSpec
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("market entry %q: want index:symbol:oraclePrice", entry)
		}
		idx, err := strconv.ParseUint(parts[0], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("market entry %q: bad index: %w", entry, err)
		}
		px, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil || px <= 0 {
			return nil, fmt.Errorf("market entry %q: bad oracle price", entry)
		}
		out = append(out, marketSpec{Index: uint16(idx), Symbol: parts[1], OraclePrice: px})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no markets configured")
	}
	return out, nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

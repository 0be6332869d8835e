package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"identityvault/internal/identity/cache"
	"identityvault/internal/identity/events"
	identityhandler "identityvault/internal/identity/handler"
	"identityvault/internal/identity/importer"
	"identityvault/internal/identity/journal"
	identitymetrics "identityvault/internal/identity/metrics"
	"identityvault/internal/identity/orchestrator"
	"identityvault/internal/identity/poller"
	"identityvault/internal/identity/service"
	"identityvault/internal/identity/store"
	jwttoken "identityvault/internal/jwt_token"
	"identityvault/internal/ledger"
	"identityvault/internal/ledger/memory"
	"identityvault/internal/platform/config"
	"identityvault/internal/platform/httpserver"
	"identityvault/internal/platform/kafka"
	"identityvault/internal/platform/logger"
	"identityvault/internal/platform/metrics"
	"identityvault/internal/platform/middleware"
	vaultredis "identityvault/internal/platform/redis"
	"identityvault/pkg/address"
	"identityvault/pkg/platform/httputil"
)

const shutdownTimeout = 10 * time.Second

// chainGateway is what the server needs from either ledger implementation.
type chainGateway interface {
	orchestrator.Gateway
	NetworkStatus(ctx context.Context) (*ledger.NetworkStatus, error)
}

// infra holds optional connections so they can be health-checked and closed.
type infra struct {
	db       *sql.DB
	pool     *pgxpool.Pool
	redis    *vaultredis.Client
	producer *kafka.Producer
	closers  []func()
}

func (i *infra) close() {
	for n := len(i.closers) - 1; n >= 0; n-- {
		i.closers[n]()
	}
}

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("identityvault exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpMetrics := metrics.New(reg)
	identityMetrics := identitymetrics.New(reg)

	deps := &infra{}
	defer deps.close()

	gateway, err := buildGateway(ctx, cfg.Ledger, log, deps)
	if err != nil {
		return err
	}
	signer, err := buildSigner(cfg.Ledger, log)
	if err != nil {
		return err
	}

	records, journalStore, err := buildStores(ctx, cfg.Postgres, log, deps)
	if err != nil {
		return err
	}
	viewCache, err := buildCache(ctx, cfg, log, deps)
	if err != nil {
		return err
	}

	notifiers := events.FanOut{events.NewLogNotifier(log)}
	var worker *events.Worker
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers)
		if err != nil {
			return err
		}
		deps.producer = producer
		deps.closers = append(deps.closers, producer.Close)
		if err := producer.EnsureTopic(ctx, cfg.Kafka.Topic, 1, 1); err != nil {
			return err
		}
		queue := events.NewQueue(1024, log)
		worker = events.NewWorker(events.NewKafkaSink(producer, cfg.Kafka.Topic), queue, log)
		notifiers = append(notifiers, queue)
		log.Info("kafka notification sink enabled", "topic", cfg.Kafka.Topic)
	}

	journalHook := journal.NewHook(journalStore, log)
	orch := orchestrator.New(gateway, records, viewCache,
		orchestrator.WithSettleDelays(cfg.Sync.StoreSettleDelay, cfg.Sync.ShareSettleDelay),
		orchestrator.WithNotifier(notifiers),
		orchestrator.WithTransitionHooks(identityMetrics, journalHook),
		orchestrator.WithLogger(log),
		orchestrator.WithTracer(otel.Tracer("identityvault/orchestrator")),
	)

	refresh := poller.New(orch, gateway, cfg.Poller.Interval, cfg.Poller.WatchAddresses,
		poller.WithLogger(log),
		poller.WithObserver(identityMetrics),
	)
	if signer.Connected() {
		_ = refresh.Watch(address.FromCommon(signer.From))
	}

	// A typed nil would defeat RequireAuth's nil check.
	var validator middleware.JWTValidator
	if cfg.JWTSigningKey != "" {
		validator = jwttoken.NewJWTService(cfg.JWTSigningKey, jwttoken.TokenIssuer, jwttoken.TokenAudience)
	} else {
		log.Warn("JWT_SIGNING_KEY not set; chain write routes are unauthenticated")
	}

	h := identityhandler.New(
		service.New(records, service.WithLogger(log)),
		orch,
		importer.New(orch),
		refresh,
		journalHook,
		signer,
		validator,
		log,
	)

	r := chi.NewRouter()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.Logger(log))
	r.Use(middleware.LatencyMiddleware(httpMetrics))
	r.Get("/healthz", deps.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	h.Register(r)

	srv := httpserver.New(cfg.Addr, r)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting identityvault", "addr", cfg.Addr, "ledger_mode", cfg.Ledger.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return refresh.Run(gctx)
	})
	if worker != nil {
		g.Go(func() error {
			return worker.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func buildGateway(ctx context.Context, cfg config.LedgerConfig, log *slog.Logger, deps *infra) (chainGateway, error) {
	switch cfg.Mode {
	case config.LedgerModeMemory:
		log.Warn("using in-memory ledger; nothing is written to a real chain")
		return memory.New(cfg.ContractAddress, cfg.ChainID, memory.WithReadLag(cfg.ReadLag))
	case config.LedgerModeEthereum:
		client, err := ethclient.DialContext(ctx, cfg.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", cfg.RPCURL, err)
		}
		deps.closers = append(deps.closers, client.Close)
		chainID, err := client.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("query chain id: %w", err)
		}
		if chainID.Int64() != cfg.ChainID {
			return nil, fmt.Errorf("rpc reports chain id %s, configured %d", chainID, cfg.ChainID)
		}
		return ledger.NewEthGateway(client, cfg.ContractAddress,
			ledger.WithGasLimits(cfg.StoreGasLimit, cfg.ShareGasLimit),
			ledger.WithLogger(log),
		)
	default:
		return nil, fmt.Errorf("unknown LEDGER_MODE %q", cfg.Mode)
	}
}

// buildSigner loads the operator key. The in-memory ledger gets a throwaway
// key when none is configured.
func buildSigner(cfg config.LedgerConfig, log *slog.Logger) (ledger.Signer, error) {
	chainID := big.NewInt(cfg.ChainID)
	if cfg.OperatorPrivateKey != "" {
		return ledger.NewKeyedSigner(cfg.OperatorPrivateKey, chainID)
	}
	if cfg.Mode != config.LedgerModeMemory {
		log.Warn("OPERATOR_PRIVATE_KEY not set; chain write routes will answer 503")
		return ledger.Signer{}, nil
	}
	key, err := crypto.GenerateKey()
	if err != nil {
		return ledger.Signer{}, fmt.Errorf("generate operator key: %w", err)
	}
	signer, err := ledger.SignerFromKey(key, chainID)
	if err != nil {
		return ledger.Signer{}, err
	}
	log.Info("generated ephemeral operator account", "address", address.FromCommon(signer.From))
	return signer, nil
}

func buildStores(ctx context.Context, cfg config.PostgresConfig, log *slog.Logger, deps *infra) (store.Store, journal.Store, error) {
	if cfg.URL == "" {
		log.Info("DATABASE_URL not set; identity records and journal are kept in memory")
		return store.NewInMemoryStore(), journal.NewInMemoryStore(), nil
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	deps.db = db
	deps.closers = append(deps.closers, func() { _ = db.Close() })
	if err := db.PingContext(ctx); err != nil {
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	records := store.NewPostgres(db)
	if err := records.EnsureSchema(ctx); err != nil {
		return nil, nil, err
	}

	pool, err := pgxpool.New(ctx, cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("open journal pool: %w", err)
	}
	deps.pool = pool
	deps.closers = append(deps.closers, pool.Close)
	journalStore := journal.NewPostgres(pool)
	if err := journalStore.EnsureSchema(ctx); err != nil {
		return nil, nil, err
	}
	return records, journalStore, nil
}

func buildCache(ctx context.Context, cfg config.Server, log *slog.Logger, deps *infra) (cache.ViewCache, error) {
	client, err := vaultredis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return cache.NewInMemoryCache(cfg.Sync.ViewCacheTTL), nil
	}
	deps.redis = client
	deps.closers = append(deps.closers, func() { _ = client.Close() })
	log.Info("ledger view cache backed by redis")
	return cache.NewRedisCache(client.Client, cfg.Sync.ViewCacheTTL), nil
}

func (i *infra) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true
	record := func(name string, err error) {
		if err != nil {
			checks[name] = err.Error()
			healthy = false
			return
		}
		checks[name] = "ok"
	}
	if i.db != nil {
		record("postgres", i.db.PingContext(ctx))
	}
	if i.pool != nil {
		record("journal", i.pool.Ping(ctx))
	}
	if i.redis != nil {
		record("redis", i.redis.Health(ctx))
	}
	if i.producer != nil {
		record("kafka", i.producer.Ping(ctx))
	}

	status := http.StatusOK
	body := map[string]any{"status": "ok", "checks": checks}
	if !healthy {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
	}
	httputil.WriteJSON(w, status, body)
}

package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"discard/internal/compliance/adapters"
	complianceHandler "discard/internal/compliance/handler"
	complianceMetrics "discard/internal/compliance/metrics"
	complianceService "discard/internal/compliance/service"
	complianceStore "discard/internal/compliance/store"
	"discard/internal/elgamal"
	nullifierHandler "discard/internal/nullifier/handler"
	nullifierMetrics "discard/internal/nullifier/metrics"
	nullifierService "discard/internal/nullifier/service"
	nullifierStore "discard/internal/nullifier/store"
	"discard/internal/platform/config"
	"discard/internal/platform/postgres"
	redisclient "discard/internal/platform/redis"
	shieldingHandler "discard/internal/shielding/handler"
	shieldingMetrics "discard/internal/shielding/metrics"
	shieldingService "discard/internal/shielding/service"
	shieldingStore "discard/internal/shielding/store"
	"discard/internal/stealth/cache"
	stealthHandler "discard/internal/stealth/handler"
	"discard/internal/stealth/keys"
	stealthMetrics "discard/internal/stealth/metrics"
	stealthService "discard/internal/stealth/service"
	stealthStore "discard/internal/stealth/store"
	"discard/internal/sweeper"
	sweeperMetrics "discard/internal/sweeper/metrics"
	httptransport "discard/internal/transport/http"
	"discard/pkg/platform/audit"
	auditpublisher "discard/pkg/platform/audit/publisher"
	"discard/pkg/platform/audit/publishers/durable"
	kafkapub "discard/pkg/platform/audit/publishers/kafka"
	auditmemory "discard/pkg/platform/audit/store/memory"
	auditpg "discard/pkg/platform/audit/store/postgres"
	"discard/pkg/platform/audit/worker"
)

type auditEmitter interface {
	Emit(ctx context.Context, event audit.Event) error
}

type application struct {
	addressHandler    *stealthHandler.Handler
	complianceHandler *complianceHandler.Handler
	shieldingHandler  *shieldingHandler.Handler
	nullifierHandler  *nullifierHandler.Handler
	healthChecks      map[string]httptransport.HealthCheck
	sweeper           *sweeper.Sweeper
	relay             *worker.Worker
	closers           []func() error
}

func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

func wire(ctx context.Context, cfg config.Config, log *slog.Logger, reg prometheus.Registerer) (*application, error) {
	app := &application{healthChecks: map[string]httptransport.HealthCheck{}}
	ok := false
	defer func() {
		if !ok {
			app.close()
		}
	}()

	db, err := openPostgres(ctx, cfg, app)
	if err != nil {
		return nil, err
	}
	emitter, err := buildAudit(cfg, db, log, reg, app)
	if err != nil {
		return nil, err
	}

	nullifierSt, err := buildNullifierStore(ctx, cfg, db, reg, app)
	if err != nil {
		return nil, err
	}
	nullifiers := nullifierService.New(nullifierSt,
		nullifierService.WithLogger(log),
		nullifierService.WithAuditPublisher(emitter),
		nullifierService.WithMetrics(nullifierMetrics.New(reg)),
	)

	sealer, err := buildSealer(cfg, log)
	if err != nil {
		return nil, err
	}
	var addressSt stealthService.Store = stealthStore.NewInMemoryStore()
	if db != nil && cfg.StorageBackend == config.BackendPostgres {
		addressSt = stealthStore.NewPostgres(db)
	}
	stealth, err := stealthService.New(addressSt, sealer,
		stealthService.WithLogger(log),
		stealthService.WithAuditPublisher(emitter),
		stealthService.WithMetrics(stealthMetrics.New(reg)),
		stealthService.WithCache(cache.New(cfg.Stealth.CacheSize, cfg.Stealth.CacheTTL)),
		stealthService.WithCommitmentSalt([]byte(cfg.Stealth.CommitmentSalt)),
		stealthService.WithLifetimes(cfg.Stealth.AddressTTL, cfg.Stealth.GracePeriod),
		stealthService.WithHistoryLimits(cfg.Stealth.HistoryDefault, cfg.Stealth.HistoryMax),
	)
	if err != nil {
		return nil, err
	}

	var proofSt complianceService.Store = complianceStore.NewInMemoryStore()
	complianceOpts := []complianceService.Option{
		complianceService.WithLogger(log),
		complianceService.WithAuditPublisher(emitter),
		complianceService.WithMetrics(complianceMetrics.New(reg)),
		complianceService.WithNullifiers(nullifiers),
		complianceService.WithAddresses(adapters.NewStealthAdapter(stealth)),
		complianceService.WithValidity(cfg.Compliance.DefaultValidity, cfg.Compliance.MaxValidity),
	}
	if db != nil && cfg.StorageBackend == config.BackendPostgres {
		proofSt = complianceStore.NewPostgres(db)
		complianceOpts = append(complianceOpts, complianceService.WithDB(db))
	}
	compliance := complianceService.New(proofSt, complianceOpts...)

	poolKey, err := buildPoolKey(cfg, log)
	if err != nil {
		return nil, err
	}
	var poolSt shieldingService.Store = shieldingStore.NewInMemoryStore()
	shieldingOpts := []shieldingService.Option{
		shieldingService.WithLogger(log),
		shieldingService.WithAuditPublisher(emitter),
		shieldingService.WithMetrics(shieldingMetrics.New(reg)),
		shieldingService.WithIntentValidity(cfg.Shielding.IntentValidity),
		shieldingService.WithMaxCASRetries(cfg.Shielding.MaxCASRetries),
	}
	if db != nil && cfg.StorageBackend == config.BackendPostgres {
		poolSt = shieldingStore.NewPostgres(db)
		shieldingOpts = append(shieldingOpts, shieldingService.WithDB(db))
	}
	shielding, err := shieldingService.New(poolSt, nullifiers, compliance, stealth, cfg.Shielding.PoolID, poolKey, shieldingOpts...)
	if err != nil {
		return nil, err
	}

	if cfg.Sweeper.Enabled {
		app.sweeper, err = sweeper.New(nullifiers, compliance, stealth,
			sweeper.WithLogger(log),
			sweeper.WithMetrics(sweeperMetrics.New(reg)),
			sweeper.WithInterval(cfg.Sweeper.Interval),
			sweeper.WithRetention(cfg.Nullifier.Retention),
		)
		if err != nil {
			return nil, err
		}
	}

	app.addressHandler = stealthHandler.New(stealth, log)
	app.complianceHandler = complianceHandler.New(compliance, log)
	app.shieldingHandler = shieldingHandler.New(shielding, log)
	app.nullifierHandler = nullifierHandler.New(nullifiers, log)
	ok = true
	return app, nil
}

func openPostgres(ctx context.Context, cfg config.Config, app *application) (*sql.DB, error) {
	if cfg.StorageBackend != config.BackendPostgres && cfg.NullifierBackend != config.BackendPostgres {
		return nil, nil
	}
	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, db.Close)
	if err := postgres.Migrate(ctx, db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	app.healthChecks["postgres"] = db.PingContext
	return db, nil
}

func buildNullifierStore(ctx context.Context, cfg config.Config, db *sql.DB, reg prometheus.Registerer, app *application) (nullifierService.Store, error) {
	switch cfg.NullifierBackend {
	case config.BackendPostgres:
		return nullifierStore.NewPostgres(db), nil
	case config.BackendRedis:
		client, err := redisclient.New(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, client.Close)
		app.healthChecks["redis"] = client.Health
		if err := client.RegisterPoolMetrics(reg); err != nil {
			return nil, err
		}
		return nullifierStore.NewRedis(client.Client), nil
	default:
		return nullifierStore.NewInMemoryStore(), nil
	}
}

// buildAudit writes audit events to the outbox when PostgreSQL is available
// and relays them to Kafka when brokers are configured.
func buildAudit(cfg config.Config, db *sql.DB, log *slog.Logger, reg prometheus.Registerer, app *application) (auditEmitter, error) {
	var producer *kafkapub.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		p, err := kafkapub.Dial(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.ClientID, kafkapub.WithLogger(log))
		if err != nil {
			return nil, err
		}
		producer = p
		app.closers = append(app.closers, p.Close)
	}

	if db != nil && cfg.StorageBackend == config.BackendPostgres {
		outbox := auditpg.New(db)
		if producer != nil {
			app.relay = worker.NewWorker(outbox, producer,
				worker.WithDB(db),
				worker.WithInterval(cfg.Kafka.RelayInterval),
				worker.WithLogger(log),
			)
		}
		return durable.New(outbox,
			durable.WithLogger(log),
			durable.WithMetrics(durable.NewMetrics(reg)),
		), nil
	}

	var store audit.Store = auditmemory.NewInMemoryStore()
	if producer != nil {
		store = producer
	}
	pub := auditpublisher.NewPublisher(store,
		auditpublisher.WithAsyncBuffer(1024),
		auditpublisher.WithLogger(log),
	)
	app.closers = append(app.closers, pub.Close)
	return pub, nil
}

func buildSealer(cfg config.Config, log *slog.Logger) (*keys.SeedSealer, error) {
	if cfg.Stealth.SeedKeyHex != "" {
		return keys.NewSeedSealerHex(cfg.Stealth.SeedKeyHex)
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate seed sealing key: %w", err)
	}
	log.Warn("STEALTH_SEED_KEY not set; using an ephemeral key, sealed seeds will not survive a restart")
	return keys.NewSeedSealer(key)
}

func buildPoolKey(cfg config.Config, log *slog.Logger) (*elgamal.PublicKey, error) {
	if cfg.Shielding.PoolPublicKeyHex != "" {
		pub, err := elgamal.ParsePublicKeyHex(cfg.Shielding.PoolPublicKeyHex)
		if err != nil {
			return nil, fmt.Errorf("SHIELD_POOL_PUBLIC_KEY: %w", err)
		}
		return pub, nil
	}
	if cfg.StorageBackend == config.BackendPostgres {
		return nil, errors.New("SHIELD_POOL_PUBLIC_KEY is required with the postgres backend")
	}
	kp, err := elgamal.GenerateKeypair()
	if err != nil {
		return nil, fmt.Errorf("generate pool keypair: %w", err)
	}
	log.Warn("SHIELD_POOL_PUBLIC_KEY not set; generated an ephemeral pool key, the pool balance cannot be audited",
		"pool_public_key", kp.PublicKey.String(),
	)
	return kp.PublicKey, nil
}

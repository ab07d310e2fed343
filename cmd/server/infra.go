package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"landdocs/internal/blob"
	cfstore "landdocs/internal/casefile/store"
	"landdocs/internal/issuance/builder"
	"landdocs/internal/issuance/service"
	issuancestore "landdocs/internal/issuance/store"
	"landdocs/internal/platform/config"
	"landdocs/internal/platform/postgres"
	"landdocs/internal/platform/redis"
	audit "landdocs/pkg/platform/audit"
	"landdocs/pkg/platform/audit/publisher"
	kafkaaudit "landdocs/pkg/platform/audit/store/kafka"
	memaudit "landdocs/pkg/platform/audit/store/memory"
	pgaudit "landdocs/pkg/platform/audit/store/postgres"
	"landdocs/pkg/platform/audit/worker"
)

const (
	relayBatch        = 100
	breakerThreshold  = 5
	breakerCooldown   = 30 * time.Second
	replicationFactor = 1
)

type caseFileRepository interface {
	builder.Repository
	service.CaseFiles
}

type infra struct {
	storeKind string
	ledger    service.Ledger
	caseFiles caseFileRepository
	blobs     blob.Store
	audit     *publisher.Publisher
	relay     *worker.Worker

	db      *sql.DB
	redis   *redis.Client
	closers []func()
}

// buildInfra picks backends from cfg. Without DATABASE_URL everything stays
// in process, which only holds for a single replica.
func buildInfra(ctx context.Context, cfg config.Server, log *slog.Logger, reg prometheus.Registerer) (*infra, error) {
	in := &infra{}
	if err := in.openStores(ctx, cfg, log); err != nil {
		in.close()
		return nil, err
	}
	if err := in.openBlobs(ctx, cfg); err != nil {
		in.close()
		return nil, err
	}
	if err := in.openAudit(ctx, cfg, log, reg); err != nil {
		in.close()
		return nil, err
	}
	return in, nil
}

func (in *infra) openStores(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	ledgerOpts := []issuancestore.Option{
		issuancestore.WithLockTimeout(cfg.Issuance.LockTimeout),
		issuancestore.WithTxTimeout(cfg.Issuance.TxTimeout),
	}
	if cfg.Database.URL == "" {
		if cfg.IsProduction() {
			return fmt.Errorf("DATABASE_URL is required in production")
		}
		if cfg.Database.CaseFileSeed == "" {
			return fmt.Errorf("CASEFILE_SEED is required when DATABASE_URL is not set")
		}
		seed, err := cfstore.ReadSeedFile(cfg.Database.CaseFileSeed)
		if err != nil {
			return err
		}
		repo := cfstore.NewInMemory()
		repo.Load(seed)
		log.Warn("DATABASE_URL not set, using in-memory stores",
			"seed", cfg.Database.CaseFileSeed, "case_files", len(seed.CaseFiles))
		in.storeKind = "memory"
		in.ledger = issuancestore.NewInMemory(ledgerOpts...)
		in.caseFiles = repo
		return nil
	}

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	in.db = db
	in.closers = append(in.closers, func() { _ = db.Close() })
	if err := postgres.Migrate(ctx, db, issuancestore.Schema, pgaudit.Schema); err != nil {
		return err
	}
	repo, err := cfstore.NewGorm(db)
	if err != nil {
		return err
	}
	if !cfg.IsProduction() {
		if err := repo.AutoMigrate(ctx); err != nil {
			return fmt.Errorf("migrate case-file tables: %w", err)
		}
		if cfg.Database.CaseFileSeed != "" {
			seed, err := cfstore.ReadSeedFile(cfg.Database.CaseFileSeed)
			if err != nil {
				return err
			}
			if err := repo.Load(ctx, seed); err != nil {
				return err
			}
			log.Info("case-file seed loaded", "seed", cfg.Database.CaseFileSeed, "case_files", len(seed.CaseFiles))
		}
	}
	in.storeKind = "postgres"
	in.ledger = issuancestore.NewPostgres(db, ledgerOpts...)
	in.caseFiles = repo
	return nil
}

func (in *infra) openBlobs(ctx context.Context, cfg config.Server) error {
	switch cfg.Blob.Backend {
	case config.BlobFilesystem:
		fs, err := blob.NewFS(cfg.Blob.Dir)
		if err != nil {
			return err
		}
		in.blobs = fs
	case config.BlobRedis:
		rc, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		in.redis = rc
		in.closers = append(in.closers, func() { _ = rc.Close() })
		in.blobs = blob.NewRedis(rc.Client, "landdocs:artifact:")
	default:
		in.blobs = blob.NewMemory()
	}
	return nil
}

// openAudit chooses the sink behind the publisher. With Postgres the outbox
// is the sink and a relay forwards it to Kafka when brokers are configured.
// Without Postgres, Kafka is written directly.
func (in *infra) openAudit(ctx context.Context, cfg config.Server, log *slog.Logger, reg prometheus.Registerer) error {
	var sink audit.Store
	var kafka *kafkaaudit.Store
	if len(cfg.Audit.KafkaBrokers) > 0 {
		k, err := kafkaaudit.New(cfg.Audit.KafkaBrokers, cfg.Audit.Topic)
		if err != nil {
			return err
		}
		in.closers = append(in.closers, k.Close)
		if err := k.EnsureTopic(ctx, int32(cfg.Audit.Partitions), replicationFactor); err != nil {
			return err
		}
		kafka = k
	}

	switch {
	case in.db != nil:
		outbox := pgaudit.New(in.db)
		sink = outbox
		if kafka != nil {
			in.relay = worker.NewWorker(outbox, kafka, log, cfg.Audit.RelayInterval, relayBatch)
		}
	case kafka != nil:
		sink = kafka
	default:
		sink = memaudit.NewInMemoryStore()
	}

	in.audit = publisher.NewPublisher(sink,
		publisher.WithLogger(log),
		publisher.WithAsyncBuffer(cfg.Audit.Buffer),
		publisher.WithMetrics(publisher.NewMetrics(reg)),
		publisher.WithCircuitBreaker(publisher.NewCircuitBreaker(breakerThreshold, breakerCooldown)),
	)
	// Registered last so it runs first and drains before the sinks close.
	in.closers = append(in.closers, in.audit.Close)
	return nil
}

func (in *infra) health(ctx context.Context) error {
	if in.db != nil {
		if err := in.db.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if in.redis != nil {
		if err := in.redis.Health(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (in *infra) close() {
	for i := len(in.closers) - 1; i >= 0; i-- {
		in.closers[i]()
	}
}

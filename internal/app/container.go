package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/partsdesk/partsdesk/internal/audit"
	audithttp "github.com/partsdesk/partsdesk/internal/audit/http"
	"github.com/partsdesk/partsdesk/internal/catalog"
	"github.com/partsdesk/partsdesk/internal/events"
	"github.com/partsdesk/partsdesk/internal/inventory"
	"github.com/partsdesk/partsdesk/internal/invoice"
	jobmetrics "github.com/partsdesk/partsdesk/internal/jobs"
	"github.com/partsdesk/partsdesk/internal/observability"
	"github.com/partsdesk/partsdesk/internal/platform/cache"
	"github.com/partsdesk/partsdesk/internal/platform/db"
	"github.com/partsdesk/partsdesk/internal/report"
	"github.com/partsdesk/partsdesk/internal/shared"
	"github.com/partsdesk/partsdesk/jobs"
)

// Container owns the process-wide dependencies shared by the binaries.
type Container struct {
	Config      *Config
	Logger      *slog.Logger
	Pool        *pgxpool.Pool
	Redis       *redis.Client
	Metrics     *observability.Metrics
	JobMetrics  *jobmetrics.Metrics
	Idempotency *shared.IdempotencyStore
	Catalog     *catalog.Service
	Inventory   *inventory.Service
	Invoices    *invoice.Service
	Reports     *report.Service
	Audit       *audit.Service

	closers []func()
}

// Build connects to PostgreSQL, Redis and Kafka and assembles the services.
// Redis is optional for the API: without it the read caches are disabled.
func Build(ctx context.Context, cfg *Config, logger *slog.Logger) (*Container, error) {
	c := &Container{Config: cfg, Logger: logger, Metrics: observability.NewMetrics()}
	c.JobMetrics = jobmetrics.NewMetrics(c.Metrics.Registerer())

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{})
	if err != nil {
		return nil, err
	}
	c.Pool = pool
	c.closers = append(c.closers, pool.Close)

	redisClient, err := cache.New(ctx, cfg.CacheOptions())
	if err != nil {
		logger.Warn("redis unavailable, caches disabled", slog.Any("error", err))
	} else {
		c.Redis = redisClient
		c.closers = append(c.closers, func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		})
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.EventsEnabled() {
		kafka, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		if err != nil {
			c.Close()
			return nil, err
		}
		publisher = kafka
		c.closers = append(c.closers, func() {
			if err := kafka.Close(); err != nil {
				logger.Warn("kafka close", slog.Any("error", err))
			}
		})
	}

	c.Idempotency = shared.NewIdempotencyStore(pool)
	c.Catalog = catalog.NewService(catalog.NewRepository(pool), logger)

	ledger := inventory.NewLedger(inventory.LedgerConfig{
		AllowNegativeStock: cfg.AllowNegativeStock,
		Observer:           c.Metrics,
	})
	c.Inventory = inventory.NewService(
		inventory.NewRepository(pool),
		ledger,
		c.versioned("partsdesk:stock", cfg.StockCacheTTL),
		logger,
	)
	c.Reports = report.NewService(
		report.NewRepository(pool),
		c.versioned("partsdesk:reports", cfg.ReportCacheTTL),
		logger,
	)
	c.Audit = audit.NewService(audit.NewRepository(pool))
	c.Invoices = invoice.NewService(invoice.NewRepository(pool), c.Catalog, ledger, invoice.Options{
		Config:       invoice.Config{AllowEditSubmitted: cfg.AllowEditSubmitted},
		Publisher:    publisher,
		Audit:        shared.NewAuditLogger(pool),
		Metrics:      c.Metrics,
		Invalidators: []invoice.Invalidator{c.Inventory, c.Reports},
		Logger:       logger,
	})
	return c, nil
}

func (c *Container) versioned(namespace string, ttl time.Duration) *cache.Versioned {
	if c.Redis == nil {
		return nil
	}
	return cache.NewVersioned(c.Redis, namespace, ttl)
}

// Router builds the HTTP API. jobHandler may be nil.
func (c *Container) Router(jobHandler *jobs.Handler) http.Handler {
	ready := []Pinger{c.Pool}
	if c.Redis != nil {
		ready = append(ready, redisPinger{client: c.Redis})
	}
	return NewRouter(RouterParams{
		Logger:           c.Logger,
		Config:           c.Config,
		InvoiceHandler:   invoice.NewHandler(c.Logger, c.Invoices),
		InventoryHandler: inventory.NewHandler(c.Logger, c.Inventory),
		CatalogHandler:   catalog.NewHandler(c.Logger, c.Catalog),
		ReportHandler:    report.NewHandler(c.Logger, c.Reports),
		AuditHandler:     audithttp.NewHandler(c.Logger, c.Audit),
		JobHandler:       jobHandler,
		Metrics:          c.Metrics,
		Ready:            ready,
	})
}

// Close releases resources in reverse acquisition order.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

package factory

import (
	"context"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/crm"
	"github.com/lychee-technology/crm/internal"
	"go.uber.org/zap"
)

// NewServices builds the four record services for cfg.Store.Backend.
// Each call returns independent store instances; nothing is shared between
// calls.
//
// Usage:
//
//	cfg := crm.DefaultConfig()
//	services, err := factory.NewServices(ctx, cfg)
//	if err != nil {
//	    // handle error
//	}
//	defer services.Shutdown()
func NewServices(ctx context.Context, cfg *crm.Config) (*crm.Services, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Store.Backend {
	case crm.BackendMemory:
		return NewMemoryServices(ctx, cfg)
	case crm.BackendSQLite:
		return NewSQLiteServices(ctx, cfg)
	case crm.BackendRemote:
		return NewRemoteServices(cfg), nil
	case crm.BackendPostgres:
		pool, err := internal.NewPostgresPool(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		services, err := NewPostgresServices(ctx, cfg, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		services.Close = func() error {
			pool.Close()
			return nil
		}
		return services, nil
	default:
		return nil, fmt.Errorf("unsupported backend %q", cfg.Store.Backend)
	}
}

func loadFixtures(ctx context.Context, cfg *crm.Config) (*internal.Fixtures, error) {
	src, err := internal.NewFixtureSource(ctx, cfg.Fixtures)
	if err != nil {
		return nil, fmt.Errorf("failed to open fixture source: %w", err)
	}
	fixtures, err := internal.LoadFixtures(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("failed to load fixtures: %w", err)
	}
	return fixtures, nil
}

// NewMemoryServices builds mock services seeded from the configured fixtures.
func NewMemoryServices(ctx context.Context, cfg *crm.Config) (*crm.Services, error) {
	fixtures, err := loadFixtures(ctx, cfg)
	if err != nil {
		return nil, err
	}
	latency := cfg.Store.MockLatency
	return &crm.Services{
		Contacts:   internal.NewRecordService(internal.ContactKind, internal.NewMemoryTable(internal.ContactKind, fixtures.Contacts, latency)),
		Deals:      internal.NewRecordService(internal.DealKind, internal.NewMemoryTable(internal.DealKind, fixtures.Deals, latency)),
		Activities: internal.NewRecordService(internal.ActivityKind, internal.NewMemoryTable(internal.ActivityKind, fixtures.Activities, latency)),
		Tasks:      internal.NewRecordService(internal.TaskKind, internal.NewMemoryTable(internal.TaskKind, fixtures.Tasks, latency)),
	}, nil
}

// NewSQLiteServices builds mock services whose state is snapshotted to the
// configured SQLite file. Fixtures seed buckets that do not exist yet.
func NewSQLiteServices(ctx context.Context, cfg *crm.Config) (*crm.Services, error) {
	fixtures, err := loadFixtures(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store, err := internal.OpenSnapshotStore(cfg.SQLite.Path)
	if err != nil {
		return nil, err
	}
	latency := cfg.Store.MockLatency

	contacts, err := internal.NewSnapshotTable(internal.ContactKind, store, fixtures.Contacts, latency)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	deals, err := internal.NewSnapshotTable(internal.DealKind, store, fixtures.Deals, latency)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	activities, err := internal.NewSnapshotTable(internal.ActivityKind, store, fixtures.Activities, latency)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	tasks, err := internal.NewSnapshotTable(internal.TaskKind, store, fixtures.Tasks, latency)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	zap.S().Infow("sqlite snapshot store ready", "path", store.Path())

	return &crm.Services{
		Contacts:   internal.NewRecordService(internal.ContactKind, contacts),
		Deals:      internal.NewRecordService(internal.DealKind, deals),
		Activities: internal.NewRecordService(internal.ActivityKind, activities),
		Tasks:      internal.NewRecordService(internal.TaskKind, tasks),
		Close:      store.Close,
	}, nil
}

// NewRemoteServices builds services backed by the record API.
func NewRemoteServices(cfg *crm.Config) *crm.Services {
	rc := cfg.Remote
	client := internal.NewRecordClient(internal.RecordClientOptions{
		BaseURL:   rc.BaseURL,
		ProjectID: rc.ProjectID,
		PublicKey: rc.PublicKey,
		Timeout:   rc.Timeout,
		Breaker: internal.BreakerPolicy{
			Threshold: rc.BreakerThreshold,
			Window:    rc.BreakerWindow,
			OpenFor:   rc.BreakerOpenFor,
		},
	})
	tables := rc.TableNames
	return &crm.Services{
		Contacts:   internal.NewRecordService(internal.ContactKind, internal.NewRemoteTable(internal.ContactKind, client, tables.Contacts)),
		Deals:      internal.NewRecordService(internal.DealKind, internal.NewRemoteTable(internal.DealKind, client, tables.Deals)),
		Activities: internal.NewRecordService(internal.ActivityKind, internal.NewRemoteTable(internal.ActivityKind, client, tables.Activities)),
		Tasks:      internal.NewRecordService(internal.TaskKind, internal.NewRemoteTable(internal.TaskKind, client, tables.Tasks)),
	}
}

type queryPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var tableCollector = collectTablesFromPool

func collectTablesFromPool(ctx context.Context, pool queryPool) ([]string, error) {
	rows, err := pool.Query(ctx, `SELECT table_name FROM information_schema.tables
		WHERE table_schema = 'public' AND table_type = 'BASE TABLE';`)
	if err != nil {
		return nil, fmt.Errorf("failed to verify database connection: %w", err)
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, tableName)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return tables, nil
}

// NewPostgresServices builds services over pool. The four record tables
// must exist (see `tools init-db`).
func NewPostgresServices(ctx context.Context, cfg *crm.Config, pool *pgxpool.Pool) (*crm.Services, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool is required")
	}
	names := cfg.Database.TableNames
	tables, err := tableCollector(ctx, pool)
	if err != nil {
		return nil, err
	}
	for _, want := range []string{names.Contacts, names.Deals, names.Activities, names.Tasks} {
		if !slices.Contains(tables, want) {
			return nil, fmt.Errorf("required table %s is missing in the database", want)
		}
	}
	zap.S().Infow("postgres record tables verified", "tables", len(tables))

	return &crm.Services{
		Contacts:   internal.NewRecordService(internal.ContactKind, internal.NewPostgresTable(internal.ContactKind, pool, names.Contacts)),
		Deals:      internal.NewRecordService(internal.DealKind, internal.NewPostgresTable(internal.DealKind, pool, names.Deals)),
		Activities: internal.NewRecordService(internal.ActivityKind, internal.NewPostgresTable(internal.ActivityKind, pool, names.Activities)),
		Tasks:      internal.NewRecordService(internal.TaskKind, internal.NewPostgresTable(internal.TaskKind, pool, names.Tasks)),
	}, nil
}

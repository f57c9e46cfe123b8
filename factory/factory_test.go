package factory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/crm"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Unit tests for collectTablesFromPool (uses pgxmock)
// ---------------------------------------------------------------------------

func TestCollectTablesFromPool_QueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT table_name FROM information_schema.tables`).WillReturnError(assert.AnError)

	_, err = collectTablesFromPool(context.Background(), mock)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to verify database connection")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCollectTablesFromPool_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := pgxmock.NewRows([]string{"table_name"}).
		AddRow("crm_contacts").
		AddRow("crm_deals")
	mock.ExpectQuery(`SELECT table_name FROM information_schema.tables`).WillReturnRows(rows)

	tables, err := collectTablesFromPool(context.Background(), mock)
	require.NoError(t, err)
	assert.Equal(t, []string{"crm_contacts", "crm_deals"}, tables)
	require.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// Unit tests for NewPostgresServices (uses the table collector hook)
// ---------------------------------------------------------------------------

func withTableCollector(t *testing.T, collector func(context.Context, queryPool) ([]string, error)) {
	t.Helper()
	original := tableCollector
	tableCollector = collector
	t.Cleanup(func() {
		tableCollector = original
	})
}

// lazyPool returns a pool that never connects unless queried.
func lazyPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	pool, err := pgxpool.New(context.Background(), "postgres://crm@127.0.0.1:1/crm?sslmode=disable")
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestNewPostgresServices_NilPool(t *testing.T) {
	services, err := NewPostgresServices(context.Background(), crm.DefaultConfig(), nil)
	assert.Nil(t, services)
	assert.Error(t, err)
}

func TestNewPostgresServices_TableCollectorError(t *testing.T) {
	withTableCollector(t, func(context.Context, queryPool) ([]string, error) {
		return nil, assert.AnError
	})

	services, err := NewPostgresServices(context.Background(), crm.DefaultConfig(), lazyPool(t))
	assert.Nil(t, services)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestNewPostgresServices_MissingRequiredTables(t *testing.T) {
	withTableCollector(t, func(context.Context, queryPool) ([]string, error) {
		return []string{"crm_contacts", "crm_deals", "crm_activities"}, nil
	})

	services, err := NewPostgresServices(context.Background(), crm.DefaultConfig(), lazyPool(t))
	assert.Nil(t, services)
	assert.ErrorContains(t, err, "required table crm_tasks is missing")
}

func TestNewPostgresServices_Success(t *testing.T) {
	withTableCollector(t, func(context.Context, queryPool) ([]string, error) {
		return []string{"crm_contacts", "crm_deals", "crm_activities", "crm_tasks", "other"}, nil
	})

	services, err := NewPostgresServices(context.Background(), crm.DefaultConfig(), lazyPool(t))
	require.NoError(t, err)
	assert.NotNil(t, services.Contacts)
	assert.NotNil(t, services.Deals)
	assert.NotNil(t, services.Activities)
	assert.NotNil(t, services.Tasks)
	assert.NoError(t, services.Shutdown())
}

// ---------------------------------------------------------------------------
// NewServices per backend
// ---------------------------------------------------------------------------

func TestNewServices_NilConfig(t *testing.T) {
	_, err := NewServices(context.Background(), nil)
	assert.Error(t, err)
}

func TestNewServices_InvalidConfig(t *testing.T) {
	cfg := crm.DefaultConfig()
	cfg.Store.Backend = crm.BackendRemote

	_, err := NewServices(context.Background(), cfg)
	var cfgErr *crm.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "remote.baseURL", cfgErr.Field)
}

func TestNewServices_Memory(t *testing.T) {
	ctx := context.Background()
	services, err := NewServices(ctx, crm.DefaultConfig())
	require.NoError(t, err)

	contacts, err := services.Contacts.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, contacts, 5)

	// every call owns its own store
	other, err := NewServices(ctx, crm.DefaultConfig())
	require.NoError(t, err)
	_, err = services.Contacts.Delete(ctx, 1)
	require.NoError(t, err)
	contacts, err = other.Contacts.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, contacts, 5)
}

func TestNewServices_MissingFixtureDirectory(t *testing.T) {
	cfg := crm.DefaultConfig()
	cfg.Fixtures.Source = filepath.Join(t.TempDir(), "absent")

	_, err := NewServices(context.Background(), cfg)
	assert.ErrorContains(t, err, "failed to open fixture source")
}

func TestNewServices_SQLitePersists(t *testing.T) {
	ctx := context.Background()
	cfg := crm.DefaultConfig()
	cfg.Store.Backend = crm.BackendSQLite
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "crm.db")

	services, err := NewServices(ctx, cfg)
	require.NoError(t, err)
	_, err = services.Deals.Update(ctx, 1, crm.DealPatch{Stage: crm.Some(crm.StageClosedWon)})
	require.NoError(t, err)
	require.NoError(t, services.Shutdown())

	reopened, err := NewServices(ctx, cfg)
	require.NoError(t, err)
	defer reopened.Shutdown()

	deal, err := reopened.Deals.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, crm.StageClosedWon, deal.Stage)
}

func TestNewServices_Remote(t *testing.T) {
	cfg := crm.DefaultConfig()
	cfg.Store.Backend = crm.BackendRemote
	cfg.Remote.BaseURL = "http://127.0.0.1:1"

	services, err := NewServices(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotNil(t, services.Tasks)
	assert.Nil(t, services.Close)
}

package e2e_harness

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/lychee-technology/crm"
	"github.com/lychee-technology/crm/factory"
	"github.com/lychee-technology/crm/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestE2EPostgresAndS3Fixtures(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E harness in -short mode")
	}
	ctx := context.Background()
	h := &TestHarness{}

	require.NoError(t, h.StartPostgres(ctx), "start postgres")
	defer h.StopPostgres(ctx)

	endpoint, err := h.StartS3(ctx)
	require.NoError(t, err, "start minio")
	defer h.StopS3(ctx)

	cfg := crm.DefaultConfig()
	cfg.Store.Backend = crm.BackendPostgres
	cfg.Database = h.DatabaseConfig()

	fixtures, err := internal.LoadFixtures(ctx, internal.EmbeddedFixtures())
	require.NoError(t, err)
	require.NoError(t, SeedPostgres(ctx, h.PGDB, cfg.Database.TableNames, fixtures))
	// seeding twice skips existing ids
	require.NoError(t, SeedPostgres(ctx, h.PGDB, cfg.Database.TableNames, fixtures))

	services, err := factory.NewServices(ctx, cfg)
	require.NoError(t, err)
	defer services.Shutdown()

	contacts, err := services.Contacts.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, contacts, 5)

	// new ids continue after the seeded ones
	created, err := services.Tasks.Create(ctx, crm.Task{Title: "Quarterly review", Status: crm.TaskPending, Priority: crm.PriorityLow})
	require.NoError(t, err)
	assert.Equal(t, int64(6), created.ID)

	updated, err := services.Deals.Update(ctx, 2, crm.DealPatch{Stage: crm.Some(crm.StageNegotiation)})
	require.NoError(t, err)
	assert.Equal(t, crm.StageNegotiation, updated.Stage)

	res, err := services.Activities.Delete(ctx, 1, 99)
	require.Error(t, err)
	assert.Equal(t, []int64{1}, res.Deleted)

	// export the live records and read them back as a fixture source
	t.Setenv("AWS_ACCESS_KEY_ID", s3AccessKey)
	t.Setenv("AWS_SECRET_ACCESS_KEY", s3SecretKey)
	client, err := internal.NewS3Client(ctx, "us-east-1", endpoint)
	require.NoError(t, err)
	require.NoError(t, EnsureBucket(ctx, client, "crm-fixtures"))

	cols, err := internal.LoadCollections(ctx, services, internal.LoadAllSet)
	require.NoError(t, err)
	snapshot := &internal.Fixtures{Contacts: cols.Contacts, Deals: cols.Deals, Activities: cols.Activities, Tasks: cols.Tasks}
	_, err = internal.UploadFixtures(ctx, manager.NewUploader(client), "crm-fixtures", "e2e", snapshot)
	require.NoError(t, err)

	src, err := internal.NewFixtureSource(ctx, crm.FixtureConfig{Source: "s3://crm-fixtures/e2e", S3Region: "us-east-1", S3Endpoint: endpoint})
	require.NoError(t, err)
	reloaded, err := internal.LoadFixtures(ctx, src)
	require.NoError(t, err)
	assert.Len(t, reloaded.Tasks, 6)
	assert.Len(t, reloaded.Activities, 5)
}

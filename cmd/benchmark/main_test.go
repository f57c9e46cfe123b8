package main

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/lychee-technology/crm"
	"github.com/lychee-technology/crm/factory"
	"github.com/lychee-technology/crm/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildersAreDeterministic(t *testing.T) {
	a := buildContacts(rand.New(rand.NewSource(7)), 20)
	b := buildContacts(rand.New(rand.NewSource(7)), 20)
	assert.Equal(t, a, b)
	for _, c := range a {
		assert.Contains(t, crm.Industries, c.Industry)
		assert.Zero(t, c.ID)
	}
}

func TestBuildDealsReferenceContacts(t *testing.T) {
	deals := buildDeals(rand.New(rand.NewSource(1)), 50, []int64{10, 11})
	for _, d := range deals {
		id, ok := d.ContactID.Get()
		require.True(t, ok)
		assert.Contains(t, []int64{10, 11}, id)
		assert.GreaterOrEqual(t, d.Probability, 0)
		assert.LessOrEqual(t, d.Probability, 100)
	}

	deals = buildDeals(rand.New(rand.NewSource(1)), 5, nil)
	for _, d := range deals {
		assert.False(t, d.ContactID.Valid)
	}
}

func TestPercentile(t *testing.T) {
	samples := []time.Duration{5, 1, 4, 2, 3, 10, 9, 8, 7, 6}
	assert.Equal(t, time.Duration(5), percentile(samples, 50))
	assert.Equal(t, time.Duration(10), percentile(samples, 95))
	assert.Equal(t, time.Duration(10), percentile(samples, 100))
	assert.Equal(t, time.Duration(1), percentile(samples, 0))
	assert.Zero(t, percentile(nil, 50))
}

func TestCreateAllAssignsIDsInOrder(t *testing.T) {
	ctx := context.Background()
	services, err := factory.NewMemoryServices(ctx, crm.DefaultConfig())
	require.NoError(t, err)

	stats := &latencies{}
	records := buildTasks(rand.New(rand.NewSource(3)), 25, []int64{1, 2}, nil)
	ids, err := createAll(ctx, services.Tasks, internal.TaskKind.ID, records, 4, stats, "task.create")
	require.NoError(t, err)
	require.Len(t, ids, 25)
	assert.Len(t, stats.samples["task.create"], 25)

	seen := map[int64]bool{}
	for i, id := range ids {
		assert.Greater(t, id, int64(5))
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true

		task, err := services.Tasks.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, records[i].Title, task.Title)
	}
}

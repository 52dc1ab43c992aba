package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joselopes-lab/brokerdesk/pkg/domain"
	"github.com/joselopes-lab/brokerdesk/pkg/models"
)

func TestMemoryStore_GetAndQuery(t *testing.T) {
	mem := NewMemoryStore()
	ctx := context.Background()

	stage := models.Stage{BrokerID: "b1", ID: "new", Title: "New", Order: 1}
	require.NoError(t, mem.BatchWrite(ctx, []domain.Write{{
		Kind:       domain.WriteInsert,
		Collection: models.CollectionStages,
		ID:         stage.DocID(),
		Doc:        stage,
	}}))

	var got models.Stage
	require.NoError(t, mem.Get(ctx, models.CollectionStages, "b1:new", &got))
	assert.Equal(t, "New", got.Title)

	err := mem.Get(ctx, models.CollectionStages, "missing", &got)
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)

	var stages []models.Stage
	require.NoError(t, mem.Query(ctx, models.CollectionStages,
		[]domain.Filter{domain.Eq("brokerId", "b1")}, &stages))
	assert.Len(t, stages, 1)

	require.NoError(t, mem.Query(ctx, models.CollectionStages,
		[]domain.Filter{domain.Eq("brokerId", "b2")}, &stages))
	assert.Empty(t, stages)
}

func TestMemoryStore_BatchIsAtomic(t *testing.T) {
	mem := NewMemoryStore()
	ctx := context.Background()

	first := models.Stage{BrokerID: "b1", ID: "new", Title: "New", Order: 1}
	require.NoError(t, mem.BatchWrite(ctx, []domain.Write{{
		Kind:       domain.WriteInsert,
		Collection: models.CollectionStages,
		ID:         first.DocID(),
		Doc:        first,
	}}))

	// Second entry collides; the first entry must not land either.
	fresh := models.Stage{BrokerID: "b1", ID: "contacted", Title: "Contacted", Order: 2}
	err := mem.BatchWrite(ctx, []domain.Write{
		{Kind: domain.WriteInsert, Collection: models.CollectionStages, ID: fresh.DocID(), Doc: fresh},
		{Kind: domain.WriteInsert, Collection: models.CollectionStages, ID: first.DocID(), Doc: first},
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateID)
	assert.Equal(t, 1, mem.Count(models.CollectionStages))
}

func TestMemoryStore_UpdatePreconditions(t *testing.T) {
	mem := NewMemoryStore()
	ctx := context.Background()

	lead := models.Lead{ID: "l1", BrokerID: "b1", Name: "Ana", Status: "new", CreatedAt: time.Now().UTC()}
	require.NoError(t, mem.BatchWrite(ctx, []domain.Write{{
		Kind:       domain.WriteInsert,
		Collection: models.CollectionLeads,
		ID:         lead.ID,
		Doc:        lead,
	}}))

	// Matching precondition applies, including dotted-path fields.
	require.NoError(t, mem.BatchWrite(ctx, []domain.Write{{
		Kind:       domain.WriteUpdate,
		Collection: models.CollectionLeads,
		ID:         "l1",
		Fields: map[string]any{
			"status":           "contacted",
			"timePerStage.new": 2.5,
		},
		Preconditions: []domain.Filter{domain.Eq("status", "new")},
	}}))

	var got models.Lead
	require.NoError(t, mem.Get(ctx, models.CollectionLeads, "l1", &got))
	assert.Equal(t, "contacted", got.Status)
	assert.InDelta(t, 2.5, got.TimePerStage["new"], 1e-9)

	// Stale precondition aborts the whole batch, insert included.
	entry := models.TransitionEntry{ID: "t1", LeadID: "l1", FromStage: "new", ToStage: "qualified"}
	err := mem.BatchWrite(ctx, []domain.Write{
		{
			Kind:          domain.WriteUpdate,
			Collection:    models.CollectionLeads,
			ID:            "l1",
			Fields:        map[string]any{"status": "qualified"},
			Preconditions: []domain.Filter{domain.Eq("status", "new")},
		},
		{
			Kind:       domain.WriteInsert,
			Collection: models.CollectionTransitions,
			ID:         entry.ID,
			Doc:        entry,
		},
	})
	assert.ErrorIs(t, err, domain.ErrPreconditionFailed)
	assert.Equal(t, 0, mem.Count(models.CollectionTransitions))

	require.NoError(t, mem.Get(ctx, models.CollectionLeads, "l1", &got))
	assert.Equal(t, "contacted", got.Status)
}

func TestMemoryStore_PutAndDelete(t *testing.T) {
	mem := NewMemoryStore()
	ctx := context.Background()

	stage := models.Stage{BrokerID: "b1", ID: "new", Title: "New", Order: 1}
	require.NoError(t, mem.BatchWrite(ctx, []domain.Write{{
		Kind:       domain.WritePut,
		Collection: models.CollectionStages,
		ID:         stage.DocID(),
		Doc:        stage,
	}}))

	stage.Title = "Inbox"
	require.NoError(t, mem.BatchWrite(ctx, []domain.Write{{
		Kind:       domain.WritePut,
		Collection: models.CollectionStages,
		ID:         stage.DocID(),
		Doc:        stage,
	}}))

	var got models.Stage
	require.NoError(t, mem.Get(ctx, models.CollectionStages, "b1:new", &got))
	assert.Equal(t, "Inbox", got.Title)

	require.NoError(t, mem.BatchWrite(ctx, []domain.Write{{
		Kind:       domain.WriteDelete,
		Collection: models.CollectionStages,
		ID:         "b1:new",
	}}))
	assert.Equal(t, 0, mem.Count(models.CollectionStages))
}

func TestMemoryStore_CountDocuments(t *testing.T) {
	mem := NewMemoryStore()
	ctx := context.Background()

	leads := []models.Lead{
		{ID: "l1", BrokerID: "b1", Name: "Ana", Status: "new"},
		{ID: "l2", BrokerID: "b1", Name: "Bia", Status: "new"},
		{ID: "l3", BrokerID: "b1", Name: "Caio", Status: "contacted"},
		{ID: "l4", BrokerID: "b2", Name: "Davi", Status: "new"},
	}
	for _, lead := range leads {
		require.NoError(t, mem.BatchWrite(ctx, []domain.Write{{
			Kind:       domain.WriteInsert,
			Collection: models.CollectionLeads,
			ID:         lead.ID,
			Doc:        lead,
		}}))
	}

	n, err := mem.CountDocuments(ctx, models.CollectionLeads, []domain.Filter{
		domain.Eq("brokerId", "b1"),
		domain.Eq("status", "new"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = mem.CountDocuments(ctx, models.CollectionLeads, []domain.Filter{
		domain.Eq("brokerId", "b2"),
		domain.Eq("status", "contacted"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestMemoryStore_Increment(t *testing.T) {
	mem := NewMemoryStore()
	ctx := context.Background()

	// Absent document starts from zero.
	v, err := mem.Increment(ctx, models.CollectionCursors, "SP-Campinas", "position", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	v, err = mem.Increment(ctx, models.CollectionCursors, "SP-Campinas", "position", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	// Cursors are independent per id.
	v, err = mem.Increment(ctx, models.CollectionCursors, "RJ-Niterói", "position", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), v)
}

func TestMemoryStore_ElemMatch(t *testing.T) {
	mem := NewMemoryStore()
	ctx := context.Background()

	broker := models.Broker{
		ID:     "b1",
		Name:   "Alice",
		Active: true,
		ServiceAreas: []models.ServiceArea{
			{State: "SP", City: "Campinas"},
			{State: "SP", City: "São Paulo"},
		},
	}
	require.NoError(t, mem.BatchWrite(ctx, []domain.Write{{
		Kind:       domain.WriteInsert,
		Collection: models.CollectionBrokers,
		ID:         broker.ID,
		Doc:        broker,
	}}))

	var brokers []models.Broker
	require.NoError(t, mem.Query(ctx, models.CollectionBrokers, []domain.Filter{
		domain.Eq("active", true),
		domain.ElemMatch("serviceAreas", map[string]any{"state": "SP", "city": "Campinas"}),
	}, &brokers))
	assert.Len(t, brokers, 1)

	// State and city must match on the same element.
	require.NoError(t, mem.Query(ctx, models.CollectionBrokers, []domain.Filter{
		domain.ElemMatch("serviceAreas", map[string]any{"state": "RJ", "city": "Campinas"}),
	}, &brokers))
	assert.Empty(t, brokers)
}

func TestMemoryStore_Subscribe(t *testing.T) {
	mem := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := mem.Subscribe(ctx, models.CollectionLeads)
	require.NoError(t, err)

	lead := models.Lead{ID: "l1", BrokerID: "b1", Name: "Ana", Status: "new"}
	require.NoError(t, mem.BatchWrite(ctx, []domain.Write{{
		Kind:       domain.WriteInsert,
		Collection: models.CollectionLeads,
		ID:         lead.ID,
		Doc:        lead,
	}}))

	select {
	case ev := <-events:
		assert.Equal(t, models.CollectionLeads, ev.Collection)
		assert.Equal(t, "l1", ev.ID)
		assert.Equal(t, "insert", ev.Operation)
	case <-time.After(time.Second):
		t.Fatal("no change event delivered")
	}
}

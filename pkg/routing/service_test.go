package routing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joselopes-lab/brokerdesk/pkg/domain"
	"github.com/joselopes-lab/brokerdesk/pkg/logger"
	"github.com/joselopes-lab/brokerdesk/pkg/models"
	"github.com/joselopes-lab/brokerdesk/pkg/store"
	"github.com/joselopes-lab/brokerdesk/pkg/testdata"
)

// recordingSink captures notifications for assertions.
type recordingSink struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingSink) Notify(ctx context.Context, brokerID, subject, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, brokerID)
	return nil
}

func setupTestService(t *testing.T) (*Service, *store.MemoryStore, *recordingSink) {
	mem := store.NewMemoryStore()
	sink := &recordingSink{}
	svc := NewService(mem, sink, logger.New("error", "text"), "BR")
	return svc, mem, sink
}

func insertBroker(t *testing.T, mem *store.MemoryStore, b models.Broker) {
	t.Helper()
	require.NoError(t, mem.BatchWrite(context.Background(), []domain.Write{{
		Kind:       domain.WriteInsert,
		Collection: models.CollectionBrokers,
		ID:         b.ID,
		Doc:        b,
	}}))
}

func saoPauloBroker(id, name string) models.Broker {
	return models.Broker{
		ID:     id,
		Name:   name,
		Phone:  "+5511998765432",
		Active: true,
		ServiceAreas: []models.ServiceArea{
			{State: "SP", City: "São Paulo"},
		},
	}
}

func captureRequest(city, state string) models.PublicLeadRequest {
	return models.PublicLeadRequest{
		Name:             "Carlos Lima",
		ContactPhone:     "+5511912345678",
		ContactEmail:     "carlos@example.com",
		PropertyInterest: "2-bedroom apartment",
		PropertyCity:     city,
		PropertyState:    state,
	}
}

func TestRouteLead_RoundRobinFairness(t *testing.T) {
	svc, mem, _ := setupTestService(t)
	ctx := context.Background()

	insertBroker(t, mem, saoPauloBroker("broker-a", "Alice"))
	insertBroker(t, mem, saoPauloBroker("broker-b", "Bruno"))
	insertBroker(t, mem, saoPauloBroker("broker-c", "Clara"))

	assigned := make(map[string]int)
	var order []string
	for i := 0; i < 9; i++ {
		resp, err := svc.RouteLead(ctx, captureRequest("São Paulo", "SP"))
		require.NoError(t, err)

		var lead models.Lead
		require.NoError(t, mem.Get(ctx, models.CollectionLeads, resp.LeadID, &lead))
		assigned[lead.BrokerID]++
		order = append(order, lead.BrokerID)
	}

	// Exact fairness: 9 leads over 3 brokers is 3 each, rotating in
	// stable id order.
	assert.Equal(t, map[string]int{"broker-a": 3, "broker-b": 3, "broker-c": 3}, assigned)
	assert.Equal(t, []string{
		"broker-a", "broker-b", "broker-c",
		"broker-a", "broker-b", "broker-c",
		"broker-a", "broker-b", "broker-c",
	}, order)
}

func TestRouteLead_IndependentCursorsPerCity(t *testing.T) {
	svc, mem, _ := setupTestService(t)
	ctx := context.Background()

	insertBroker(t, mem, saoPauloBroker("broker-a", "Alice"))
	insertBroker(t, mem, saoPauloBroker("broker-b", "Bruno"))

	campinas := models.Broker{
		ID:     "broker-z",
		Name:   "Zeca",
		Phone:  "+5519998765432",
		Active: true,
		ServiceAreas: []models.ServiceArea{
			{State: "SP", City: "Campinas"},
		},
	}
	insertBroker(t, mem, campinas)

	// Campinas traffic must not advance the São Paulo rotation.
	_, err := svc.RouteLead(ctx, captureRequest("Campinas", "SP"))
	require.NoError(t, err)
	_, err = svc.RouteLead(ctx, captureRequest("Campinas", "SP"))
	require.NoError(t, err)

	var order []string
	for i := 0; i < 4; i++ {
		resp, err := svc.RouteLead(ctx, captureRequest("São Paulo", "SP"))
		require.NoError(t, err)
		var lead models.Lead
		require.NoError(t, mem.Get(ctx, models.CollectionLeads, resp.LeadID, &lead))
		order = append(order, lead.BrokerID)
	}
	assert.Equal(t, []string{"broker-a", "broker-b", "broker-a", "broker-b"}, order)
}

func TestRouteLead_SkipsIneligibleBrokers(t *testing.T) {
	svc, mem, _ := setupTestService(t)
	ctx := context.Background()

	insertBroker(t, mem, saoPauloBroker("broker-a", "Alice"))

	inactive := saoPauloBroker("broker-b", "Bruno")
	inactive.Active = false
	insertBroker(t, mem, inactive)

	elsewhere := saoPauloBroker("broker-c", "Clara")
	elsewhere.ServiceAreas = []models.ServiceArea{{State: "RJ", City: "Niterói"}}
	insertBroker(t, mem, elsewhere)

	// Serves the city but under a different state.
	wrongState := saoPauloBroker("broker-d", "Dora")
	wrongState.ServiceAreas = []models.ServiceArea{{State: "RJ", City: "São Paulo"}}
	insertBroker(t, mem, wrongState)

	for i := 0; i < 3; i++ {
		resp, err := svc.RouteLead(ctx, captureRequest("São Paulo", "SP"))
		require.NoError(t, err)
		assert.Equal(t, "Alice", resp.BrokerName)
	}
}

func TestRouteLead_NoBrokerAvailable(t *testing.T) {
	svc, mem, sink := setupTestService(t)
	ctx := context.Background()

	insertBroker(t, mem, saoPauloBroker("broker-a", "Alice"))

	_, err := svc.RouteLead(ctx, captureRequest("Manaus", "AM"))
	require.Error(t, err)
	assert.True(t, domain.IsNoBrokerAvailable(err))
	assert.Contains(t, err.Error(), "Manaus")

	// No lead persisted, no cursor burned, nobody notified.
	assert.Equal(t, 0, mem.Count(models.CollectionLeads))
	assert.Equal(t, 0, mem.Count(models.CollectionCursors))
	assert.Empty(t, sink.calls)
}

func TestRouteLead_PersistsAssignedLead(t *testing.T) {
	svc, mem, sink := setupTestService(t)
	ctx := context.Background()

	insertBroker(t, mem, saoPauloBroker("broker-a", "Alice"))

	resp, err := svc.RouteLead(ctx, captureRequest("São Paulo", "SP"))
	require.NoError(t, err)
	require.NotEmpty(t, resp.LeadID)
	assert.Equal(t, "Alice", resp.BrokerName)

	var lead models.Lead
	require.NoError(t, mem.Get(ctx, models.CollectionLeads, resp.LeadID, &lead))
	assert.Equal(t, "broker-a", lead.BrokerID)
	assert.Equal(t, "Carlos Lima", lead.Name)
	assert.Equal(t, models.SourcePublicSite, lead.Source)
	assert.Equal(t, "new", lead.Status)
	assert.Equal(t, "Alice", lead.BrokerName)
	assert.Equal(t, "+5511998765432", lead.BrokerPhone)

	assert.Equal(t, []string{"broker-a"}, sink.calls)
}

func TestRouteLead_HandoffLink(t *testing.T) {
	svc, mem, _ := setupTestService(t)
	ctx := context.Background()

	insertBroker(t, mem, saoPauloBroker("broker-a", "Alice"))

	resp, err := svc.RouteLead(ctx, captureRequest("São Paulo", "SP"))
	require.NoError(t, err)

	assert.Contains(t, resp.WhatsAppHandoffURL, "https://wa.me/5511998765432?text=")
	assert.Contains(t, resp.WhatsAppHandoffURL, "Carlos+Lima")
	assert.NotContains(t, resp.WhatsAppHandoffURL, " ")
}

func TestRouteLead_BrokenBrokerPhoneKeepsLead(t *testing.T) {
	svc, mem, _ := setupTestService(t)
	ctx := context.Background()

	broken := saoPauloBroker("broker-a", "Alice")
	broken.Phone = "not-a-phone"
	insertBroker(t, mem, broken)

	resp, err := svc.RouteLead(ctx, captureRequest("São Paulo", "SP"))
	require.NoError(t, err)

	assert.Empty(t, resp.WhatsAppHandoffURL)
	assert.Equal(t, 1, mem.Count(models.CollectionLeads))
}

func TestRouteLead_StorageFailure(t *testing.T) {
	svc, mem, _ := setupTestService(t)
	ctx := context.Background()

	insertBroker(t, mem, saoPauloBroker("broker-a", "Alice"))

	mem.SetWriteError(errors.New("connection reset"))
	defer mem.SetWriteError(nil)

	_, err := svc.RouteLead(ctx, captureRequest("São Paulo", "SP"))
	assert.True(t, domain.IsStorageFailure(err))
}

func TestRouteLead_GeneratedBrokers(t *testing.T) {
	svc, mem, _ := setupTestService(t)
	ctx := context.Background()

	gen := testdata.NewGenerator(42)
	area := models.ServiceArea{State: "MG", City: "Belo Horizonte"}
	for i := 0; i < 4; i++ {
		insertBroker(t, mem, gen.Broker(fmt.Sprintf("broker-%d", i), area))
	}

	assigned := make(map[string]int)
	for i := 0; i < 12; i++ {
		req := gen.PublicLead(area.State, area.City)
		resp, err := svc.RouteLead(ctx, req)
		require.NoError(t, err)

		var lead models.Lead
		require.NoError(t, mem.Get(ctx, models.CollectionLeads, resp.LeadID, &lead))
		assigned[lead.BrokerID]++
	}

	for id, n := range assigned {
		assert.Equal(t, 3, n, "broker %s", id)
	}
}

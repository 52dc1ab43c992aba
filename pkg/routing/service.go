// Package routing assigns inbound public leads to brokers serving the
// requested city, rotating fairly between them.
package routing

import (
	"context"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/joselopes-lab/brokerdesk/pkg/domain"
	"github.com/joselopes-lab/brokerdesk/pkg/logger"
	"github.com/joselopes-lab/brokerdesk/pkg/models"
	"github.com/joselopes-lab/brokerdesk/pkg/whatsapp"
)

// Service routes public inbound leads to brokers.
type Service struct {
	store         domain.DocumentStore
	notifier      domain.NotificationSink
	logger        logger.Logger
	defaultRegion string
	now           func() time.Time
}

// NewService creates a new routing service. notifier may be nil, which
// disables broker notifications.
func NewService(store domain.DocumentStore, notifier domain.NotificationSink, log logger.Logger, defaultRegion string) *Service {
	return &Service{
		store:         store,
		notifier:      notifier,
		logger:        log,
		defaultRegion: defaultRegion,
		now:           time.Now,
	}
}

// SetNow overrides the clock. For tests.
func (s *Service) SetNow(now func() time.Time) {
	s.now = now
}

// RouteLead picks the next broker serving the property's city by round
// robin, persists the new lead assigned to that broker, and returns the
// WhatsApp handoff link.
//
// The rotation cursor is a durable counter in the document store,
// advanced by an atomic increment, so fairness survives restarts and
// concurrent instances. The eligible set is recomputed on every call;
// a broker joining or leaving between calls shifts the modulus, which
// transiently skews the rotation and is accepted.
func (s *Service) RouteLead(ctx context.Context, req models.PublicLeadRequest) (*models.RouteLeadResponse, error) {
	eligible, err := s.eligibleBrokers(ctx, req.PropertyState, req.PropertyCity)
	if err != nil {
		return nil, err
	}
	if len(eligible) == 0 {
		return nil, domain.NewNoBrokerAvailableError(req.PropertyState, req.PropertyCity)
	}

	cityKey := models.CityKey(req.PropertyState, req.PropertyCity)
	position, err := s.store.Increment(ctx, models.CollectionCursors, cityKey, "position", 1)
	if err != nil {
		return nil, domain.NewStorageFailureError(err)
	}
	selected := eligible[int((position-1)%int64(len(eligible)))]

	now := s.now().UTC()
	lead := models.Lead{
		ID:               bson.NewObjectID().Hex(),
		BrokerID:         selected.ID,
		Name:             req.Name,
		ContactPhone:     req.ContactPhone,
		ContactEmail:     req.ContactEmail,
		PropertyInterest: req.PropertyInterest,
		Source:           models.SourcePublicSite,
		Status:           "new",
		BrokerName:       selected.Name,
		BrokerPhone:      selected.Phone,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err = s.store.BatchWrite(ctx, []domain.Write{{
		Kind:       domain.WriteInsert,
		Collection: models.CollectionLeads,
		ID:         lead.ID,
		Doc:        lead,
	}})
	if err != nil {
		return nil, domain.NewStorageFailureError(err)
	}

	message := whatsapp.HandoffMessage(
		selected.Name, req.Name, req.ContactPhone,
		req.PropertyInterest, req.PropertyCity, req.PropertyState)
	handoffURL, err := whatsapp.HandoffLink(selected.Phone, s.defaultRegion, message)
	if err != nil {
		// The lead is already assigned; a broken broker phone must not
		// lose it. The caller just gets no deep link.
		s.logger.Warn("handoff link unavailable",
			"broker_id", selected.ID, "error", err)
		handoffURL = ""
	}

	s.notify(ctx, selected.ID, lead)

	s.logger.Info("lead routed",
		"lead_id", lead.ID,
		"broker_id", selected.ID,
		"city_key", cityKey,
		"eligible", len(eligible),
		"position", position)

	return &models.RouteLeadResponse{
		LeadID:             lead.ID,
		BrokerName:         selected.Name,
		WhatsAppHandoffURL: handoffURL,
	}, nil
}

// eligibleBrokers returns the active brokers serving the city, ordered
// by id so the rotation index is stable between calls.
func (s *Service) eligibleBrokers(ctx context.Context, state, city string) ([]models.Broker, error) {
	var brokers []models.Broker
	err := s.store.Query(ctx, models.CollectionBrokers, []domain.Filter{
		domain.Eq("active", true),
		domain.ElemMatch("serviceAreas", map[string]any{"state": state, "city": city}),
	}, &brokers)
	if err != nil {
		return nil, domain.NewStorageFailureError(err)
	}
	sort.Slice(brokers, func(i, j int) bool { return brokers[i].ID < brokers[j].ID })
	return brokers, nil
}

func (s *Service) notify(ctx context.Context, brokerID string, lead models.Lead) {
	if s.notifier == nil {
		return
	}
	body := "New lead assigned: " + lead.Name
	if lead.PropertyInterest != "" {
		body += " (" + lead.PropertyInterest + ")"
	}
	if err := s.notifier.Notify(ctx, brokerID, "New lead", body); err != nil {
		s.logger.Warn("broker notification failed", "broker_id", brokerID, "error", err)
	}
}

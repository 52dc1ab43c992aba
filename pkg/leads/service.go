// Package leads handles the broker-facing lead operations: manual
// entry and the kanban board read model. Stage moves live in the
// transition package.
package leads

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/joselopes-lab/brokerdesk/pkg/domain"
	"github.com/joselopes-lab/brokerdesk/pkg/logger"
	"github.com/joselopes-lab/brokerdesk/pkg/models"
	"github.com/joselopes-lab/brokerdesk/pkg/phone"
	"github.com/joselopes-lab/brokerdesk/pkg/pipeline"
)

// Service handles lead reads and manual creation for brokers.
type Service struct {
	store         domain.DocumentStore
	pipelines     *pipeline.Service
	logger        logger.Logger
	defaultRegion string
	now           func() time.Time
}

// NewService creates a new lead service.
func NewService(store domain.DocumentStore, pipelines *pipeline.Service, log logger.Logger, defaultRegion string) *Service {
	return &Service{
		store:         store,
		pipelines:     pipelines,
		logger:        log,
		defaultRegion: defaultRegion,
		now:           time.Now,
	}
}

// SetNow overrides the clock. For tests.
func (s *Service) SetNow(now func() time.Time) {
	s.now = now
}

// Create registers a manually entered lead in the broker's entry stage.
func (s *Service) Create(ctx context.Context, brokerID string, req models.CreateLeadRequest) (*models.Lead, error) {
	entry, err := s.pipelines.EntryStage(ctx, brokerID)
	if err != nil {
		return nil, err
	}

	source := req.Source
	if source == "" {
		source = models.SourceSite
	}

	contactPhone := req.ContactPhone
	if contactPhone != "" {
		// Store E.164 when the number parses; keep the raw input
		// otherwise so a typo is still visible to the broker.
		if normalized, err := phone.NormalizeE164(contactPhone, s.defaultRegion); err == nil {
			contactPhone = normalized
		}
	}

	now := s.now().UTC()
	lead := models.Lead{
		ID:               bson.NewObjectID().Hex(),
		BrokerID:         brokerID,
		Name:             req.Name,
		ContactPhone:     contactPhone,
		ContactEmail:     req.ContactEmail,
		PropertyInterest: req.PropertyInterest,
		Source:           source,
		Status:           entry.ID,
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

	s.logger.Info("lead created", "lead_id", lead.ID, "broker_id", brokerID, "source", source)
	return &lead, nil
}

// Get returns one lead, checking it belongs to the broker.
func (s *Service) Get(ctx context.Context, brokerID, leadID string) (*models.Lead, error) {
	var lead models.Lead
	if err := s.store.Get(ctx, models.CollectionLeads, leadID, &lead); err != nil {
		if errors.Is(err, domain.ErrDocumentNotFound) {
			return nil, domain.NewNotFoundError("lead")
		}
		return nil, domain.NewStorageFailureError(err)
	}
	lead.ID = leadID
	if lead.BrokerID != brokerID {
		return nil, domain.NewNotFoundError("lead")
	}
	return &lead, nil
}

// Board returns the broker's kanban board: every pipeline stage in
// order with its leads, newest first. Leads whose status no longer maps
// to a stage (data edited outside the service) surface in trailing
// columns rather than disappearing.
func (s *Service) Board(ctx context.Context, brokerID string) (*models.BoardResponse, error) {
	stages, err := s.pipelines.GetOrCreate(ctx, brokerID)
	if err != nil {
		return nil, err
	}

	var all []models.Lead
	err = s.store.Query(ctx, models.CollectionLeads,
		[]domain.Filter{domain.Eq("brokerId", brokerID)}, &all)
	if err != nil {
		return nil, domain.NewStorageFailureError(err)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	byStage := make(map[string][]models.Lead)
	for _, lead := range all {
		byStage[lead.Status] = append(byStage[lead.Status], lead)
	}

	columns := make([]models.StageColumn, 0, len(stages))
	for _, st := range stages {
		columns = append(columns, models.StageColumn{
			Stage: st,
			Leads: orEmpty(byStage[st.ID]),
		})
		delete(byStage, st.ID)
	}

	orphaned := make([]string, 0, len(byStage))
	for status := range byStage {
		orphaned = append(orphaned, status)
	}
	sort.Strings(orphaned)
	for i, status := range orphaned {
		columns = append(columns, models.StageColumn{
			Stage: models.Stage{
				BrokerID: brokerID,
				ID:       status,
				Title:    status,
				Order:    len(stages) + i + 1,
			},
			Leads: byStage[status],
		})
	}

	return &models.BoardResponse{Columns: columns}, nil
}

func orEmpty(leads []models.Lead) []models.Lead {
	if leads == nil {
		return []models.Lead{}
	}
	return leads
}

// Package transition moves leads between pipeline stages, accounting
// dwell time and appending the immutable transition history.
package transition

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/joselopes-lab/brokerdesk/pkg/domain"
	"github.com/joselopes-lab/brokerdesk/pkg/logger"
	"github.com/joselopes-lab/brokerdesk/pkg/models"
	"github.com/joselopes-lab/brokerdesk/pkg/pipeline"
)

const hoursPerDay = 24

// Service performs stage moves for leads.
type Service struct {
	store     domain.DocumentStore
	pipelines *pipeline.Service
	logger    logger.Logger
	now       func() time.Time
}

// NewService creates a new transition service.
func NewService(store domain.DocumentStore, pipelines *pipeline.Service, log logger.Logger) *Service {
	return &Service{
		store:     store,
		pipelines: pipelines,
		logger:    log,
		now:       time.Now,
	}
}

// SetNow overrides the clock. For tests.
func (s *Service) SetNow(now func() time.Time) {
	s.now = now
}

// MoveLead moves a lead to another stage of its broker's pipeline. It
// adds the elapsed dwell time to the stage being left, stamps the total
// closing duration on the first entry into a terminal stage, and appends
// the history entry, all in one atomic batch conditioned on the lead's
// status still being the one just read, so two concurrent moves of the
// same lead cannot both apply.
func (s *Service) MoveLead(ctx context.Context, leadID, toStageID, actorID string) (*models.Lead, error) {
	var lead models.Lead
	if err := s.store.Get(ctx, models.CollectionLeads, leadID, &lead); err != nil {
		if errors.Is(err, domain.ErrDocumentNotFound) {
			return nil, domain.NewNotFoundError("lead")
		}
		return nil, domain.NewStorageFailureError(err)
	}
	lead.ID = leadID

	if toStageID == lead.Status {
		return nil, domain.NewValidationError(fmt.Sprintf("lead is already in stage %q", toStageID))
	}

	stage, err := s.pipelines.StageByID(ctx, lead.BrokerID, toStageID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, domain.NewValidationError(fmt.Sprintf("stage %q does not exist in this pipeline", toStageID))
		}
		return nil, err
	}

	stageStartedAt, err := s.stageStartedAt(ctx, &lead)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	dwellHours := now.Sub(stageStartedAt).Hours()
	if dwellHours < 0 {
		dwellHours = 0
	}
	newDwell := lead.TimePerStage[lead.Status] + dwellHours

	fields := map[string]any{
		"status":                     toStageID,
		"timePerStage." + lead.Status: newDwell,
		"updatedAt":                  now,
	}

	var closedAfter *float64
	if stage.IsTerminal() && lead.TotalClosingDurationDays == nil {
		days := now.Sub(lead.CreatedAt).Hours() / hoursPerDay
		closedAfter = &days
		fields["totalClosingDurationDays"] = days
	}

	entry := models.TransitionEntry{
		ID:        bson.NewObjectID().Hex(),
		LeadID:    leadID,
		FromStage: lead.Status,
		ToStage:   toStageID,
		ChangedAt: now,
		ChangedBy: actorID,
	}

	writes := []domain.Write{
		{
			Kind:          domain.WriteUpdate,
			Collection:    models.CollectionLeads,
			ID:            leadID,
			Fields:        fields,
			Preconditions: []domain.Filter{domain.Eq("status", lead.Status)},
		},
		{
			Kind:       domain.WriteInsert,
			Collection: models.CollectionTransitions,
			ID:         entry.ID,
			Doc:        entry,
		},
	}

	if err := s.store.BatchWrite(ctx, writes); err != nil {
		if errors.Is(err, domain.ErrPreconditionFailed) {
			return nil, domain.NewConflictError("lead was moved by another request; reload and retry")
		}
		return nil, domain.NewStorageFailureError(err)
	}

	if lead.TimePerStage == nil {
		lead.TimePerStage = make(map[string]float64)
	}
	lead.TimePerStage[entry.FromStage] = newDwell
	lead.Status = toStageID
	lead.UpdatedAt = now
	if closedAfter != nil {
		lead.TotalClosingDurationDays = closedAfter
	}

	s.logger.Info("lead moved",
		"lead_id", leadID,
		"from", entry.FromStage,
		"to", toStageID,
		"actor", actorID,
		"dwell_hours", dwellHours)
	return &lead, nil
}

// History returns a lead's transition entries ordered oldest first.
func (s *Service) History(ctx context.Context, leadID string) ([]models.TransitionEntry, error) {
	var lead models.Lead
	if err := s.store.Get(ctx, models.CollectionLeads, leadID, &lead); err != nil {
		if errors.Is(err, domain.ErrDocumentNotFound) {
			return nil, domain.NewNotFoundError("lead")
		}
		return nil, domain.NewStorageFailureError(err)
	}
	return s.entries(ctx, leadID)
}

// stageStartedAt is the ChangedAt of the newest transition entry, or the
// lead's CreatedAt when the lead has never moved.
func (s *Service) stageStartedAt(ctx context.Context, lead *models.Lead) (time.Time, error) {
	entries, err := s.entries(ctx, lead.ID)
	if err != nil {
		return time.Time{}, err
	}
	if len(entries) == 0 {
		return lead.CreatedAt, nil
	}
	return entries[len(entries)-1].ChangedAt, nil
}

func (s *Service) entries(ctx context.Context, leadID string) ([]models.TransitionEntry, error) {
	var entries []models.TransitionEntry
	err := s.store.Query(ctx, models.CollectionTransitions,
		[]domain.Filter{domain.Eq("leadId", leadID)}, &entries)
	if err != nil {
		return nil, domain.NewStorageFailureError(err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ChangedAt.Before(entries[j].ChangedAt)
	})
	return entries, nil
}

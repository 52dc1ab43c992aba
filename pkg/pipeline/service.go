// Package pipeline owns each broker's ordered stage list: default
// seeding on first access and the diff-based editor save.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/joselopes-lab/brokerdesk/pkg/domain"
	"github.com/joselopes-lab/brokerdesk/pkg/logger"
	"github.com/joselopes-lab/brokerdesk/pkg/models"
)

// ErrNothingToSave is returned by SaveEdits when the proposed pipeline
// is identical to the stored one.
var ErrNothingToSave = errors.New("nothing to save")

// Service handles pipeline configuration for brokers.
type Service struct {
	store    domain.DocumentStore
	cache    domain.CacheRepository
	logger   logger.Logger
	cacheTTL time.Duration
}

// NewService creates a new pipeline service. cache may be nil, which
// disables the read cache.
func NewService(store domain.DocumentStore, cache domain.CacheRepository, log logger.Logger, cacheTTL time.Duration) *Service {
	return &Service{
		store:    store,
		cache:    cache,
		logger:   log,
		cacheTTL: cacheTTL,
	}
}

func cacheKey(brokerID string) string {
	return "pipeline:" + brokerID
}

// GetOrCreate returns the broker's stages ordered by rank, seeding the
// five default stages on first access. Concurrent first accesses race on
// the insert batch; the loser sees a duplicate id, backs off, and reads
// the winner's set, so exactly one default pipeline ever exists.
func (s *Service) GetOrCreate(ctx context.Context, brokerID string) ([]models.Stage, error) {
	if brokerID == "" {
		return nil, domain.NewValidationError("broker id is required")
	}

	if cached, ok := s.fromCache(ctx, brokerID); ok {
		return cached, nil
	}

	stages, err := s.load(ctx, brokerID)
	if err != nil {
		return nil, err
	}
	if len(stages) > 0 {
		s.toCache(ctx, brokerID, stages)
		return stages, nil
	}

	defaults := models.DefaultStages(brokerID)
	writes := make([]domain.Write, len(defaults))
	for i, st := range defaults {
		writes[i] = domain.Write{
			Kind:       domain.WriteInsert,
			Collection: models.CollectionStages,
			ID:         st.DocID(),
			Doc:        st,
		}
	}

	if err := s.store.BatchWrite(ctx, writes); err != nil {
		if errors.Is(err, domain.ErrDuplicateID) {
			// Another request seeded the pipeline first.
			stages, err = s.load(ctx, brokerID)
			if err != nil {
				return nil, err
			}
			return stages, nil
		}
		return nil, domain.NewStorageFailureError(err)
	}

	s.logger.Info("seeded default pipeline", "broker_id", brokerID)
	s.toCache(ctx, brokerID, defaults)
	return defaults, nil
}

// SaveEdits applies the editor's full proposed stage list plus the ids
// to delete as one atomic batch. Stage order is the position in the
// edited slice, re-ranked 1..n. Every stored stage must appear in the
// list or among the deleted ids; a partial list is rejected, otherwise
// the re-ranking would collide with the untouched stages. Deleting a
// stage that still has leads assigned is also rejected.
func (s *Service) SaveEdits(ctx context.Context, brokerID string, edits []models.StageEdit, deletedIDs []string) ([]models.Stage, error) {
	if brokerID == "" {
		return nil, domain.NewValidationError("broker id is required")
	}
	if len(edits) == 0 {
		return nil, domain.NewValidationError("a pipeline must retain at least one stage")
	}

	current, err := s.load(ctx, brokerID)
	if err != nil {
		return nil, err
	}
	currentByID := make(map[string]models.Stage, len(current))
	for _, st := range current {
		currentByID[st.ID] = st
	}

	deleted := make(map[string]bool, len(deletedIDs))
	for _, id := range deletedIDs {
		deleted[id] = true
	}

	// Refuse to delete a stage while leads still rest in it. Pipeline
	// history for leads that already passed through is left untouched.
	for _, id := range deletedIDs {
		if _, exists := currentByID[id]; !exists {
			continue
		}
		count, err := s.countLeadsInStage(ctx, brokerID, id)
		if err != nil {
			return nil, err
		}
		if count > 0 {
			return nil, domain.NewValidationError(
				fmt.Sprintf("stage %q still has %d lead(s) assigned; move them before deleting", id, count))
		}
	}

	taken := make(map[string]bool, len(current))
	for _, st := range current {
		if !deleted[st.ID] {
			taken[st.ID] = true
		}
	}

	seen := make(map[string]bool, len(edits))
	desired := make([]models.Stage, 0, len(edits))
	for i, edit := range edits {
		if edit.Title == "" {
			return nil, domain.NewValidationError("stage title must not be empty")
		}

		var id string
		if edit.IsNew() {
			id = mintStageID(edit.Title, taken)
			taken[id] = true
		} else {
			id = edit.ID
			if _, exists := currentByID[id]; !exists {
				return nil, domain.NewValidationError(fmt.Sprintf("unknown stage id %q", id))
			}
			if deleted[id] {
				return nil, domain.NewValidationError(fmt.Sprintf("stage %q is both edited and deleted", id))
			}
		}
		if seen[id] {
			return nil, domain.NewValidationError(fmt.Sprintf("duplicate stage id %q", id))
		}
		seen[id] = true

		desired = append(desired, models.Stage{
			BrokerID: brokerID,
			ID:       id,
			Title:    edit.Title,
			Order:    i + 1,
			Color:    edit.Color,
		})
	}

	// The request must account for every stored stage, or the dense
	// 1..n re-ranking above would collide with whatever it omitted.
	for _, st := range current {
		if !seen[st.ID] && !deleted[st.ID] {
			return nil, domain.NewValidationError(
				fmt.Sprintf("stage %q is missing from the request; list it or delete it", st.ID))
		}
	}

	var writes []domain.Write
	for _, id := range deletedIDs {
		st, exists := currentByID[id]
		if !exists {
			continue
		}
		writes = append(writes, domain.Write{
			Kind:       domain.WriteDelete,
			Collection: models.CollectionStages,
			ID:         st.DocID(),
		})
	}
	for _, st := range desired {
		prev, exists := currentByID[st.ID]
		if !exists {
			writes = append(writes, domain.Write{
				Kind:       domain.WriteInsert,
				Collection: models.CollectionStages,
				ID:         st.DocID(),
				Doc:        st,
			})
			continue
		}
		if prev.Title != st.Title || prev.Order != st.Order || prev.Color != st.Color {
			writes = append(writes, domain.Write{
				Kind:       domain.WritePut,
				Collection: models.CollectionStages,
				ID:         st.DocID(),
				Doc:        st,
			})
		}
	}

	if len(writes) == 0 {
		return nil, ErrNothingToSave
	}

	if err := s.store.BatchWrite(ctx, writes); err != nil {
		return nil, domain.NewStorageFailureError(err)
	}

	s.invalidate(ctx, brokerID)
	s.logger.Info("pipeline saved",
		"broker_id", brokerID,
		"stages", len(desired),
		"deleted", len(deletedIDs))
	return desired, nil
}

// StageByID returns one stage of the broker's pipeline.
func (s *Service) StageByID(ctx context.Context, brokerID, stageID string) (*models.Stage, error) {
	stages, err := s.GetOrCreate(ctx, brokerID)
	if err != nil {
		return nil, err
	}
	for _, st := range stages {
		if st.ID == stageID {
			return &st, nil
		}
	}
	return nil, domain.NewNotFoundError("stage")
}

// EntryStage returns the stage a newly created lead starts in: the one
// with rank 1.
func (s *Service) EntryStage(ctx context.Context, brokerID string) (*models.Stage, error) {
	stages, err := s.GetOrCreate(ctx, brokerID)
	if err != nil {
		return nil, err
	}
	return &stages[0], nil
}

func (s *Service) load(ctx context.Context, brokerID string) ([]models.Stage, error) {
	var stages []models.Stage
	err := s.store.Query(ctx, models.CollectionStages,
		[]domain.Filter{domain.Eq("brokerId", brokerID)}, &stages)
	if err != nil {
		return nil, domain.NewStorageFailureError(err)
	}
	sort.Slice(stages, func(i, j int) bool { return stages[i].Order < stages[j].Order })
	return stages, nil
}

func (s *Service) countLeadsInStage(ctx context.Context, brokerID, stageID string) (int64, error) {
	n, err := s.store.CountDocuments(ctx, models.CollectionLeads, []domain.Filter{
		domain.Eq("brokerId", brokerID),
		domain.Eq("status", stageID),
	})
	if err != nil {
		return 0, domain.NewStorageFailureError(err)
	}
	return n, nil
}

func (s *Service) fromCache(ctx context.Context, brokerID string) ([]models.Stage, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, cacheKey(brokerID))
	if err != nil || raw == "" {
		return nil, false
	}
	var stages []models.Stage
	if err := json.Unmarshal([]byte(raw), &stages); err != nil {
		return nil, false
	}
	if len(stages) == 0 {
		return nil, false
	}
	return stages, true
}

func (s *Service) toCache(ctx context.Context, brokerID string, stages []models.Stage) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(stages)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cacheKey(brokerID), raw, s.cacheTTL); err != nil {
		s.logger.Warn("pipeline cache set failed", "broker_id", brokerID, "error", err)
	}
}

func (s *Service) invalidate(ctx context.Context, brokerID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cacheKey(brokerID)); err != nil {
		s.logger.Warn("pipeline cache invalidation failed", "broker_id", brokerID, "error", err)
	}
}

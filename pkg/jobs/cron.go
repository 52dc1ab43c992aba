// Package jobs schedules the background work that keeps dashboard
// reads cheap. Every job is safe to run more than once.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/joselopes-lab/brokerdesk/pkg/domain"
	"github.com/joselopes-lab/brokerdesk/pkg/logger"
	"github.com/joselopes-lab/brokerdesk/pkg/models"
)

// snapshotTTL keeps yesterday's snapshot alive until the next run
// lands, plus slack for a missed schedule.
const snapshotTTL = 49 * time.Hour

// PipelineStats is the per-broker snapshot cached for dashboards.
type PipelineStats struct {
	BrokerID    string         `json:"brokerId"`
	TotalLeads  int            `json:"totalLeads"`
	ByStage     map[string]int `json:"byStage"`
	GeneratedAt time.Time      `json:"generatedAt"`
}

// CronManager owns the scheduled jobs.
type CronManager struct {
	cron   *cron.Cron
	store  domain.DocumentStore
	cache  domain.CacheRepository
	logger logger.Logger
}

// NewCronManager creates a cron manager. Jobs are registered by Start.
func NewCronManager(store domain.DocumentStore, cache domain.CacheRepository, log logger.Logger) *CronManager {
	return &CronManager{
		cron:   cron.New(),
		store:  store,
		cache:  cache,
		logger: log,
	}
}

// Start registers the nightly stats snapshot on the given cron
// schedule and starts the scheduler.
func (m *CronManager) Start(statsSchedule string) error {
	_, err := m.cron.AddFunc(statsSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := m.RunStatsSnapshot(ctx); err != nil {
			m.logger.Error("pipeline stats snapshot failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule stats snapshot: %w", err)
	}

	m.cron.Start()
	m.logger.Info("cron scheduler started", "stats_schedule", statsSchedule)
	return nil
}

// Stop halts the scheduler and waits for running jobs to finish.
func (m *CronManager) Stop() {
	ctx := m.cron.Stop()
	<-ctx.Done()
	m.logger.Info("cron scheduler stopped")
}

// RunStatsSnapshot recomputes per-broker lead counts per stage and
// caches one snapshot per broker under stats:pipeline:<brokerID>.
func (m *CronManager) RunStatsSnapshot(ctx context.Context) error {
	started := time.Now()

	var brokers []models.Broker
	if err := m.store.Query(ctx, models.CollectionBrokers, nil, &brokers); err != nil {
		return fmt.Errorf("failed to list brokers: %w", err)
	}

	snapshots := 0
	for _, broker := range brokers {
		if err := m.snapshotBroker(ctx, broker.ID); err != nil {
			m.logger.Error("failed to snapshot broker pipeline",
				"broker_id", broker.ID,
				"error", err)
			continue
		}
		snapshots++
	}

	m.logger.Info("pipeline stats snapshot complete",
		"brokers", len(brokers),
		"snapshots", snapshots,
		"duration", time.Since(started).String())
	return nil
}

func (m *CronManager) snapshotBroker(ctx context.Context, brokerID string) error {
	var leads []models.Lead
	filters := []domain.Filter{domain.Eq("brokerId", brokerID)}
	if err := m.store.Query(ctx, models.CollectionLeads, filters, &leads); err != nil {
		return fmt.Errorf("failed to query leads: %w", err)
	}

	stats := PipelineStats{
		BrokerID:    brokerID,
		TotalLeads:  len(leads),
		ByStage:     make(map[string]int),
		GeneratedAt: time.Now().UTC(),
	}
	for _, lead := range leads {
		stats.ByStage[lead.Status]++
	}

	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}
	return m.cache.Set(ctx, "stats:pipeline:"+brokerID, data, snapshotTTL)
}

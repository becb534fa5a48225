package services

import (
	"context"
	"log"
	"time"

	"github.com/osoriofleet/fleetkm/server/internal/config"
)

// PeriodicRunService drives the daily batch on a schedule. Each tick analyzes
// the previous UTC day, which is the most recent fully closed window.
type PeriodicRunService struct {
	analysis *AnalysisService
	config   *config.BatchConfig

	// Background run control
	stopChan chan struct{}
	running  bool
}

// NewPeriodicRunService creates a new periodic run service
func NewPeriodicRunService(analysis *AnalysisService, cfg *config.BatchConfig) *PeriodicRunService {
	return &PeriodicRunService{
		analysis: analysis,
		config:   cfg,
		stopChan: make(chan struct{}),
	}
}

// StartPeriodicRuns begins scheduled batch runs at the configured interval
func (p *PeriodicRunService) StartPeriodicRuns(ctx context.Context) error {
	if p.running {
		return nil // Already running
	}

	p.running = true

	interval := p.config.RunInterval
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	log.Printf("Starting periodic batch runs every %v", interval)

	go p.runLoop(ctx, interval)

	return nil
}

// Stop gracefully stops the scheduled runs
func (p *PeriodicRunService) Stop() {
	if !p.running {
		return
	}

	p.running = false
	close(p.stopChan)
	log.Printf("Stopped periodic batch service")
}

// runLoop runs the scheduled batch in background
func (p *PeriodicRunService) runLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run once immediately so a restarted server catches up without
	// waiting a full interval
	p.runPreviousDay(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Printf("Periodic batch stopping due to context cancellation")
			return
		case <-p.stopChan:
			log.Printf("Periodic batch stopping due to stop signal")
			return
		case <-ticker.C:
			p.runPreviousDay(ctx)
		}
	}
}

// runPreviousDay analyzes the last fully closed UTC day
func (p *PeriodicRunService) runPreviousDay(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()

	day := time.Now().UTC().AddDate(0, 0, -1)
	if _, err := p.analysis.RunDay(runCtx, day); err != nil {
		log.Printf("Scheduled batch run failed: %v", err)
	}
}

// IsRunning returns whether scheduled runs are active
func (p *PeriodicRunService) IsRunning() bool {
	return p.running
}

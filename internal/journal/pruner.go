package journal

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Pruner periodically removes journal records older than the retention window.
type Pruner struct {
	store     *Store
	retention time.Duration
	scheduler *cron.Cron
	logger    *slog.Logger
}

func NewPruner(store *Store, retention time.Duration, logger *slog.Logger) *Pruner {
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pruner{
		store:     store,
		retention: retention,
		scheduler: cron.New(),
		logger:    logger.With("component", "journal-pruner"),
	}
}

// Start schedules the prune job using a standard five-field cron spec.
func (p *Pruner) Start(spec string) error {
	if spec == "" {
		spec = "@hourly"
	}
	if _, err := p.scheduler.AddFunc(spec, p.runOnce); err != nil {
		return err
	}
	p.scheduler.Start()
	p.logger.Info("journal pruning scheduled", "spec", spec, "retention", p.retention)
	return nil
}

func (p *Pruner) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if _, err := p.Prune(ctx); err != nil {
		p.logger.Error("journal prune failed", "error", err)
	}
}

func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	removed, err := p.store.Prune(ctx, time.Now().Add(-p.retention))
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		p.logger.Info("journal pruned", "removed", removed)
	}
	return removed, nil
}

// Stop waits for a running prune to finish.
func (p *Pruner) Stop() {
	<-p.scheduler.Stop().Done()
}

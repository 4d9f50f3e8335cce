package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/princinho/adminportal/metrics"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const pruneTimeout = time.Minute

// Pruner removes expired refresh tokens across all accounts.
type Pruner interface {
	Prune(ctx context.Context) (int64, error)
}

// RefreshTokenPruner runs a Pruner on a cron schedule.
type RefreshTokenPruner struct {
	pruner   Pruner
	schedule string
	log      *zap.Logger
	cron     *cron.Cron
}

func NewRefreshTokenPruner(pruner Pruner, schedule string, log *zap.Logger) (*RefreshTokenPruner, error) {
	if log == nil {
		log = zap.NewNop()
	}
	c := cron.New()
	p := &RefreshTokenPruner{pruner: pruner, schedule: schedule, log: log, cron: c}
	if _, err := c.AddFunc(schedule, func() { _ = p.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("schedule refresh token pruning %q: %w", schedule, err)
	}
	return p, nil
}

// RunOnce prunes immediately.
func (p *RefreshTokenPruner) RunOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pruneTimeout)
	defer cancel()

	start := time.Now()
	n, err := p.pruner.Prune(ctx)
	if err != nil {
		p.log.Error("refresh token pruning failed", zap.Error(err))
		return err
	}
	metrics.PrunedRefreshTokens.Add(float64(n))
	p.log.Info("refresh tokens pruned",
		zap.Int64("accounts", n),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}

// Run starts the scheduler and blocks until ctx is done, then waits for a
// running prune to finish.
func (p *RefreshTokenPruner) Run(ctx context.Context) error {
	p.cron.Start()
	p.log.Info("refresh token pruner started", zap.String("schedule", p.schedule))
	<-ctx.Done()
	<-p.cron.Stop().Done()
	p.log.Info("refresh token pruner stopped")
	return nil
}

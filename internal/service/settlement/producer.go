package settlement

import (
	"context"
	"time"

	"github.com/nvoloshin/callmeter/internal/logger"
	"github.com/nvoloshin/callmeter/internal/metrics"
	"github.com/nvoloshin/callmeter/internal/models"
	"github.com/nvoloshin/callmeter/internal/pricing"
	"github.com/nvoloshin/callmeter/internal/repository"
)

type settingsSource interface {
	CoinsPerMinute(ctx context.Context) (int64, error)
}

type job struct {
	session  models.CallSession
	snapshot pricing.Snapshot
}

// Producer drives the settlement cadence: on every tick it freezes one
// pricing snapshot and fans the active sessions out to the workers. The loop
// is serial, so a pass that outlives the interval makes the ticker drop
// ticks instead of stacking passes.
type Producer struct {
	interval time.Duration
	storage  repository.Storage
	settings settingsSource
	metrics  *metrics.Metrics
	logger   logger.Logger
}

func (p *Producer) Produce(ctx context.Context, out chan<- job) <-chan struct{} {
	idleStopped := make(chan struct{})
	p.logger.Debug("Starting settlement producer", "interval", p.interval)

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				p.logger.Debug("Settlement producer stopped by context")
				return

			case <-ticker.C:
				p.runPass(ctx, out)
			}
		}
	}()

	return idleStopped
}

func (p *Producer) runPass(ctx context.Context, out chan<- job) {
	snapshot, ok := p.buildSnapshot(ctx)
	if !ok {
		// storage trouble; the next tick retries, checkpoints are safe
		return
	}

	sessions, err := p.storage.Session().ListActive(ctx)
	if err != nil {
		p.logger.Error("Failed to list active sessions", "error", err)
		return
	}

	p.logger.Debug("Settlement pass", "sessions", len(sessions), "degraded", snapshot.Degraded)

	for _, session := range sessions {
		select {
		case <-ctx.Done():
			p.logger.Debug("Settlement producer stopped by context while dispatching")
			return
		case out <- job{session: session, snapshot: snapshot}:
		}
	}

	p.metrics.SettlementPasses.Inc()
}

// buildSnapshot reads the rate configuration once per pass so every session
// in the pass is billed against the same rates.
func (p *Producer) buildSnapshot(ctx context.Context) (pricing.Snapshot, bool) {
	coinsPerMinute, err := p.settings.CoinsPerMinute(ctx)
	if err != nil {
		p.logger.Error("Failed to read coins per minute", "error", err)
		return pricing.Snapshot{}, false
	}

	packages, err := p.storage.Catalog().ListActivePackages(ctx)
	if err != nil {
		p.logger.Error("Failed to list packages", "error", err)
		return pricing.Snapshot{}, false
	}

	snapshot := pricing.NewSnapshot(coinsPerMinute, packages)
	if snapshot.Degraded {
		p.logger.Warn("Pricing degraded, billing at flat rate", "coins_per_minute", snapshot.CoinsPerMinute)
		p.metrics.DegradedPasses.Inc()
	}

	return snapshot, true
}

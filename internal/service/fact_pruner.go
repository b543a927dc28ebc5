package service

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/student-memory-service/internal/monitoring"
	registrystore "github.com/chirino/student-memory-service/internal/registry/store"
)

// FactPruner enforces the per-student active fact cap. Overflowing facts are
// deactivated oldest first and never deleted.
type FactPruner struct {
	store     registrystore.FactStore
	maxActive int
	batchSize int
	interval  time.Duration
	// maxBatches bounds one pass so a large backlog cannot hold the store.
	maxBatches int
}

// NewFactPruner creates a pruner. A maxActive of 0 disables it.
func NewFactPruner(store registrystore.FactStore, maxActive, batchSize int, interval time.Duration) *FactPruner {
	return &FactPruner{
		store:      store,
		maxActive:  maxActive,
		batchSize:  batchSize,
		interval:   interval,
		maxBatches: 100,
	}
}

// Start runs a pass immediately and then every interval until ctx is cancelled.
func (p *FactPruner) Start(ctx context.Context) {
	if p == nil || p.store == nil || p.maxActive <= 0 || p.batchSize <= 0 || p.interval <= 0 {
		return
	}
	log.Info("Fact pruner started", "maxActive", p.maxActive, "interval", p.interval)
	p.RunOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.RunOnce(ctx)
		}
	}
}

// RunOnce deactivates overflowing facts in batches until none remain.
// It returns the number of facts deactivated.
func (p *FactPruner) RunOnce(ctx context.Context) int64 {
	var total int64
	for i := 0; i < p.maxBatches; i++ {
		if ctx.Err() != nil {
			break
		}
		n, err := p.store.DeactivateOverflowFacts(ctx, p.maxActive, p.batchSize)
		if err != nil {
			if registrystore.IsTransient(err) {
				log.Warn("Fact pruning skipped: store unavailable", "err", err)
			} else {
				log.Error("Fact pruning failed", "err", err)
			}
			break
		}
		total += n
		if n < int64(p.batchSize) {
			break
		}
	}
	if total > 0 {
		if monitoring.FactsDeactivatedTotal != nil {
			monitoring.FactsDeactivatedTotal.Add(float64(total))
		}
		log.Info("Deactivated overflowing facts", "count", total, "maxActive", p.maxActive)
	}
	return total
}

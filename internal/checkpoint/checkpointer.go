package checkpoint

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/priyam-jain-2002/vibemarket/internal/model"
)

// Checkpointer owns a run's in-memory checkpoint. Every update takes the same
// mutex and is persisted before it returns, so stores only ever see one
// writer per run.
type Checkpointer struct {
	mu    sync.Mutex
	store Store
	cp    *model.RunCheckpoint
	now   func() time.Time
}

// NewCheckpointer wraps cp, which the Checkpointer takes ownership of.
func NewCheckpointer(store Store, cp *model.RunCheckpoint) *Checkpointer {
	if cp.ProcessedIdentityKeys == nil {
		cp.ProcessedIdentityKeys = make(map[string]struct{})
	}
	return &Checkpointer{store: store, cp: cp, now: time.Now}
}

// Snapshot returns a copy of the current checkpoint.
func (c *Checkpointer) Snapshot() *model.RunCheckpoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cp.Clone()
}

// IsProcessed reports whether key is already in the processed set.
func (c *Checkpointer) IsProcessed(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cp.IsProcessed(key)
}

// Remaining returns the pending leads that are not yet processed.
func (c *Checkpointer) Remaining() []model.Lead {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Lead, 0, len(c.cp.Pending))
	for _, l := range c.cp.Pending {
		if !c.cp.IsProcessed(l.IdentityKey) {
			out = append(out, l)
		}
	}
	return out
}

// MarkProcessed adds key to the processed set and records the budget spent
// so far. Keys are never removed.
func (c *Checkpointer) MarkProcessed(ctx context.Context, key string, budgetSpent float64) error {
	return c.update(ctx, func(cp *model.RunCheckpoint) {
		cp.ProcessedIdentityKeys[key] = struct{}{}
		if budgetSpent > cp.BudgetSpent {
			cp.BudgetSpent = budgetSpent
		}
	})
}

// SetCursor records page as fully harvested and appends the leads it admitted
// to the pending list in the same write.
func (c *Checkpointer) SetCursor(ctx context.Context, page int, token string, admitted ...model.Lead) error {
	return c.update(ctx, func(cp *model.RunCheckpoint) {
		cp.Cursor = page
		cp.PageToken = token
		cp.Pending = append(cp.Pending, admitted...)
	})
}

// AddPending appends leads to the pending list without moving the cursor.
func (c *Checkpointer) AddPending(ctx context.Context, leads ...model.Lead) error {
	if len(leads) == 0 {
		return nil
	}
	return c.update(ctx, func(cp *model.RunCheckpoint) {
		cp.Pending = append(cp.Pending, leads...)
	})
}

// SetPending replaces the pending list.
func (c *Checkpointer) SetPending(ctx context.Context, leads []model.Lead) error {
	return c.update(ctx, func(cp *model.RunCheckpoint) {
		cp.Pending = append([]model.Lead(nil), leads...)
	})
}

// SetStage moves the run to stage.
func (c *Checkpointer) SetStage(ctx context.Context, stage model.Stage) error {
	return c.update(ctx, func(cp *model.RunCheckpoint) {
		cp.Stage = stage
	})
}

// SetBudgetSpent records spent without marking a key, e.g. after generation.
func (c *Checkpointer) SetBudgetSpent(ctx context.Context, spent float64) error {
	return c.update(ctx, func(cp *model.RunCheckpoint) {
		if spent > cp.BudgetSpent {
			cp.BudgetSpent = spent
		}
	})
}

// update applies fn and persists. Saves run detached from ctx cancellation so
// a cancelled run still records what its in-flight work finished.
func (c *Checkpointer) update(ctx context.Context, fn func(*model.RunCheckpoint)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	fn(c.cp)
	c.cp.LastUpdated = c.now().UTC()

	if err := c.store.Save(context.WithoutCancel(ctx), c.cp.Clone()); err != nil {
		zap.L().Warn("checkpoint: save failed",
			zap.String("run_id", c.cp.RunID),
			zap.String("stage", string(c.cp.Stage)),
			zap.Error(err),
		)
		return eris.Wrap(err, "checkpoint: persist")
	}
	return nil
}

package pipeline

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/priyam-jain-2002/vibemarket/internal/cost"
	"github.com/priyam-jain-2002/vibemarket/internal/model"
)

// tally accumulates a run's Summary. Classification workers report into it
// concurrently; the same mutex serializes sink writes.
type tally struct {
	mu sync.Mutex
	s  *model.Summary
}

func newTally(runID string, ceiling float64) *tally {
	s := model.NewSummary(runID)
	s.BudgetCeiling = ceiling
	return &tally{s: s}
}

func (t *tally) harvested() {
	t.mu.Lock()
	t.s.Harvested++
	t.mu.Unlock()
}

func (t *tally) admitted() {
	t.mu.Lock()
	t.s.New++
	t.mu.Unlock()
}

func (t *tally) duplicate() {
	t.mu.Lock()
	t.s.Duplicates++
	t.mu.Unlock()
}

func (t *tally) fail(kind model.FailureKind) {
	t.failN(kind, 1)
}

func (t *tally) failN(kind model.FailureKind, n int) {
	if n <= 0 {
		return
	}
	t.mu.Lock()
	t.s.Failures[kind] += n
	t.mu.Unlock()
}

// record counts a finished lead. Classification failures are counted from
// the orchestrator's report instead, so only generation failures count here.
func (t *tally) record(rec model.Record) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.s.Processed++
	if rec.Analysis != nil {
		t.s.Bands[rec.Analysis.Band]++
	}
	if rec.Message != nil {
		t.s.Messages++
	}
	if rec.Incomplete {
		t.s.Incomplete++
	}
	if rec.Failure != nil && rec.Failure.Kind == model.FailureGeneration {
		t.s.Failures[model.FailureGeneration]++
	}
}

func (t *tally) emit(ctx context.Context, sink Sink, rec model.Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return sink.Emit(ctx, rec)
}

func (t *tally) finish(status model.RunStatus, budget *cost.Budget, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.Status = status
	t.s.BudgetSpent = budget.Spent()
	t.s.BudgetExceeded = budget.Exceeded()
	if err != nil {
		t.s.Error = err.Error()
	}
}

// summary returns a copy of the counters.
func (t *tally) summary() *model.Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := *t.s
	out.Bands = make(map[model.Band]int, len(t.s.Bands))
	for k, v := range t.s.Bands {
		out.Bands[k] = v
	}
	out.Failures = make(map[model.FailureKind]int, len(t.s.Failures))
	for k, v := range t.s.Failures {
		out.Failures[k] = v
	}
	return &out
}

func logSummary(log *zap.Logger, s *model.Summary) {
	fields := []zap.Field{
		zap.String("status", string(s.Status)),
		zap.Int("harvested", s.Harvested),
		zap.Int("new", s.New),
		zap.Int("duplicates", s.Duplicates),
		zap.Int("processed", s.Processed),
		zap.Int("qualified", s.Qualified()),
		zap.Int("messages", s.Messages),
		zap.Int("incomplete", s.Incomplete),
		zap.Float64("budget_spent", s.BudgetSpent),
		zap.Bool("budget_exceeded", s.BudgetExceeded),
	}
	for band, n := range s.Bands {
		fields = append(fields, zap.Int("band_"+string(band), n))
	}
	for kind, n := range s.Failures {
		fields = append(fields, zap.Int("failed_"+string(kind), n))
	}
	if s.Error != "" {
		log.Warn("pipeline: run stopped", fields...)
		return
	}
	log.Info("pipeline: run finished", fields...)
}

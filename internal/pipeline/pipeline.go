// Package pipeline wires the lead stages together for one run: harvest,
// normalize, dedup, classify, band, generate and emit. Progress is
// checkpointed after every page and every lead so a run can be resumed.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/priyam-jain-2002/vibemarket/internal/checkpoint"
	"github.com/priyam-jain-2002/vibemarket/internal/classify"
	"github.com/priyam-jain-2002/vibemarket/internal/connector"
	"github.com/priyam-jain-2002/vibemarket/internal/cost"
	"github.com/priyam-jain-2002/vibemarket/internal/dedup"
	"github.com/priyam-jain-2002/vibemarket/internal/model"
	"github.com/priyam-jain-2002/vibemarket/internal/outreach"
)

var (
	// ErrRunExists means Run was given an id that already has a checkpoint.
	ErrRunExists = eris.New("pipeline: run already has a checkpoint")

	// ErrNoCheckpoint means Resume found nothing to resume.
	ErrNoCheckpoint = eris.New("pipeline: no checkpoint for run")

	// ErrSourceMismatch means the connector does not serve the checkpointed source.
	ErrSourceMismatch = eris.New("pipeline: connector source does not match checkpoint")
)

// Sink receives every finished record. Records arrive in completion order,
// possibly from several goroutines at once; Pipeline serializes Emit calls.
type Sink interface {
	Emit(ctx context.Context, rec model.Record) error
	Close() error
}

// Options tunes a Pipeline.
type Options struct {
	Query string
	Limit int
	// DedupScope is checkpoint.ScopeAll or checkpoint.ScopeRun.
	DedupScope  string
	Credentials connector.Credentials
	// Classify is the orchestrator config. OnResult and Marker are owned by
	// the pipeline and overwritten.
	Classify classify.Config
	Now      func() time.Time
}

// Pipeline runs the lead stages. Generator may be nil to skip outreach.
type Pipeline struct {
	conn       connector.Connector
	classifier classify.Classifier
	generator  *outreach.Generator
	store      checkpoint.Store
	sink       Sink
	budget     *cost.Budget
	opts       Options
}

// New creates a Pipeline. budget is shared by classification and generation.
func New(
	conn connector.Connector,
	classifier classify.Classifier,
	generator *outreach.Generator,
	store checkpoint.Store,
	sink Sink,
	budget *cost.Budget,
	opts Options,
) *Pipeline {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DedupScope == "" {
		opts.DedupScope = checkpoint.ScopeAll
	}
	if budget == nil {
		budget = cost.NewBudget(0, 0)
	}
	return &Pipeline{
		conn:       conn,
		classifier: classifier,
		generator:  generator,
		store:      store,
		sink:       sink,
		budget:     budget,
		opts:       opts,
	}
}

// run is the per-invocation state shared by the stages.
type run struct {
	ckpt    *checkpoint.Checkpointer
	seen    *dedup.Set
	tally   *tally
	log     *zap.Logger
	query   string
	startAt int
	token   string
}

// Run starts a new run with id runID.
func (p *Pipeline) Run(ctx context.Context, runID string) (*model.Summary, error) {
	existing, err := p.store.Load(ctx, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: load checkpoint %s", runID)
	}
	if existing != nil {
		return nil, eris.Wrapf(ErrRunExists, "pipeline: run %s", runID)
	}

	cp := model.NewRunCheckpoint(runID)
	cp.Query = p.opts.Query
	cp.Source = p.conn.Source()

	r, err := p.prepare(ctx, cp)
	if err != nil {
		return nil, err
	}
	if err := r.ckpt.SetStage(ctx, model.StageHarvesting); err != nil {
		return nil, eris.Wrap(err, "pipeline: write initial checkpoint")
	}
	r.log.Info("pipeline: starting run", zap.String("query", r.query), zap.Int("limit", p.opts.Limit))
	return p.execute(ctx, r, true)
}

// Resume continues runID from its last checkpoint. A run stopped while
// harvesting picks up at the page after the cursor; one stopped while
// classifying goes straight to the pending leads not yet processed.
func (p *Pipeline) Resume(ctx context.Context, runID string) (*model.Summary, error) {
	cp, err := p.store.Load(ctx, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: load checkpoint %s", runID)
	}
	if cp == nil {
		return nil, eris.Wrapf(ErrNoCheckpoint, "pipeline: run %s", runID)
	}
	if cp.Source != "" && cp.Source != p.conn.Source() {
		return nil, eris.Wrapf(ErrSourceMismatch, "pipeline: checkpoint source %s, connector %s", cp.Source, p.conn.Source())
	}

	p.budget.Restore(cp.BudgetSpent)
	r, err := p.prepare(ctx, cp)
	if err != nil {
		return nil, err
	}
	r.log.Info("pipeline: resuming run",
		zap.String("stage", string(cp.Stage)),
		zap.Int("cursor", cp.Cursor),
		zap.Int("processed", len(cp.ProcessedIdentityKeys)),
		zap.Int("pending", len(cp.Pending)),
		zap.Float64("budget_spent", cp.BudgetSpent),
	)

	switch cp.Stage {
	case model.StageComplete:
		r.tally.finish(model.RunStatusComplete, p.budget, nil)
		r.log.Info("pipeline: run already complete")
		return r.tally.summary(), nil
	case model.StageClassifying:
		return p.execute(ctx, r, false)
	default:
		// Harvesting, and aborted runs, which only stop while harvesting.
		r.startAt = cp.Cursor + 1
		r.token = cp.PageToken
		return p.execute(ctx, r, true)
	}
}

// prepare seeds dedup from the store and the checkpoint's own pending leads.
func (p *Pipeline) prepare(ctx context.Context, cp *model.RunCheckpoint) (*run, error) {
	keys, err := checkpoint.SeedKeys(ctx, p.store, cp.RunID, p.opts.DedupScope)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: seed dedup")
	}
	seen := dedup.New()
	seen.SeedPrior(keys...)
	seen.SeedRun(cp.Pending...)

	query := cp.Query
	if query == "" {
		query = p.opts.Query
	}
	return &run{
		ckpt:  checkpoint.NewCheckpointer(p.store, cp),
		seen:  seen,
		tally: newTally(cp.RunID, p.budget.Ceiling()),
		log:   zap.L().With(zap.String("run_id", cp.RunID), zap.String("source", string(cp.Source))),
		query: query,
	}, nil
}

func (p *Pipeline) execute(ctx context.Context, r *run, harvest bool) (*model.Summary, error) {
	if harvest {
		if err := p.harvest(ctx, r); err != nil {
			return p.stop(r, err)
		}
		if err := r.ckpt.SetStage(ctx, model.StageClassifying); err != nil {
			r.tally.fail(model.FailureCheckpoint)
		}
	}

	if err := p.classify(ctx, r); err != nil {
		return p.stop(r, err)
	}

	if err := r.ckpt.SetStage(ctx, model.StageComplete); err != nil {
		r.tally.fail(model.FailureCheckpoint)
	}
	if err := r.ckpt.SetPending(ctx, nil); err != nil {
		r.tally.fail(model.FailureCheckpoint)
	}
	r.tally.finish(model.RunStatusComplete, p.budget, nil)
	s := r.tally.summary()
	logSummary(r.log, s)
	return s, nil
}

// stop ends a run on a run-level failure. The checkpoint keeps its stage so
// the run stays resumable; authentication failures mark it aborted.
func (p *Pipeline) stop(r *run, err error) (*model.Summary, error) {
	status := model.RunStatusFailed
	switch {
	case errors.Is(err, connector.ErrAuthentication):
		status = model.RunStatusAuthFailed
		if cerr := r.ckpt.SetStage(context.Background(), model.StageAborted); cerr != nil {
			r.tally.fail(model.FailureCheckpoint)
		}
	case errors.Is(err, cost.ErrBudgetExceeded):
		status = model.RunStatusBudgetExceeded
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = model.RunStatusCancelled
	}
	r.tally.finish(status, p.budget, err)
	s := r.tally.summary()
	logSummary(r.log, s)
	return s, err
}

// Package classify runs leads through the classification service with bounded
// concurrency, retries, budget reservations and per-lead checkpointing.
package classify

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/priyam-jain-2002/vibemarket/internal/cost"
	"github.com/priyam-jain-2002/vibemarket/internal/model"
	"github.com/priyam-jain-2002/vibemarket/internal/resilience"
	"github.com/priyam-jain-2002/vibemarket/internal/scoring"
)

// Result is one successful (or billed but malformed) service reply.
type Result struct {
	Assessment scoring.Assessment
	CostUSD    float64
}

// Classifier is the classification service boundary.
type Classifier interface {
	// Estimate returns the most a Classify call for lead can cost.
	Estimate(lead model.Lead) float64
	Classify(ctx context.Context, lead model.Lead) (*Result, error)
}

// Marker records a lead as processed. checkpoint.Checkpointer implements it.
type Marker interface {
	MarkProcessed(ctx context.Context, key string, budgetSpent float64) error
}

// Outcome is the terminal result for one lead.
type Outcome struct {
	Lead     model.Lead
	Analysis *model.Analysis
	Err      error
	Kind     Kind
	Attempts int
	CostUSD  float64
}

// Config tunes an Orchestrator.
type Config struct {
	// Concurrency is the most requests in flight. Default 4.
	Concurrency int
	// RatePerSec limits request starts; 0 disables the limiter.
	RatePerSec float64
	Retry      resilience.RetryConfig
	// RequestTimeout bounds one lead's attempts, including backoff.
	RequestTimeout time.Duration
	Breaker        *resilience.CircuitBreaker

	// OnResult receives every terminal outcome before it is checkpointed. Its
	// context is detached from the run and bounded by RequestTimeout.
	OnResult func(ctx context.Context, out Outcome)
	Marker   Marker
	Now      func() time.Time
}

// Report summarizes a Run. Outcomes are keyed by identity key.
type Report struct {
	Outcomes       map[string]Outcome
	Undispatched   []model.Lead
	Failures       map[Kind]int
	CheckpointErrs int
	BudgetExceeded bool
	Cancelled      bool
}

// Succeeded counts leads that received an Analysis.
func (r *Report) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Analysis != nil {
			n++
		}
	}
	return n
}

// Orchestrator fans leads out to a Classifier.
type Orchestrator struct {
	classifier Classifier
	budget     *cost.Budget
	cfg        Config
	limiter    *rate.Limiter
}

// New creates an Orchestrator. budget may be shared with other stages.
func New(classifier Classifier, budget *cost.Budget, cfg Config) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if budget == nil {
		budget = cost.NewBudget(0, 0)
	}
	if cfg.Retry.OnRetry == nil {
		cfg.Retry.OnRetry = resilience.RetryLogger("classifier", "classify")
	}

	o := &Orchestrator{classifier: classifier, budget: budget, cfg: cfg}
	if cfg.RatePerSec > 0 {
		o.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}
	return o
}

type indexedLead struct {
	idx  int
	lead model.Lead
}

// Run classifies leads. Cancelling ctx stops new dispatch; requests already in
// flight finish on a detached context and are checkpointed. A reservation
// blocked only by in-flight holds waits for them. When committed spend leaves
// no room, dispatch stops and the error wraps ErrBudgetExceeded.
// The Report is always returned with whatever finished.
func (o *Orchestrator) Run(ctx context.Context, leads []model.Lead) (*Report, error) {
	log := zap.L().With(zap.String("stage", "classify"))
	report := &Report{
		Outcomes: make(map[string]Outcome, len(leads)),
		Failures: make(map[Kind]int),
	}

	var (
		mu           sync.Mutex
		stop         atomic.Bool
		undispatched []indexedLead
	)
	skip := func(il indexedLead) {
		mu.Lock()
		undispatched = append(undispatched, il)
		mu.Unlock()
	}

	g := new(errgroup.Group)
	g.SetLimit(o.cfg.Concurrency)

	for i, lead := range leads {
		il := indexedLead{idx: i, lead: lead}
		if ctx.Err() != nil || stop.Load() {
			skip(il)
			continue
		}
		if o.limiter != nil {
			if err := o.limiter.Wait(ctx); err != nil {
				skip(il)
				continue
			}
		}

		g.Go(func() error {
			// A slot may free up only after cancellation or budget exhaustion.
			if ctx.Err() != nil || stop.Load() {
				skip(il)
				return nil
			}

			out := o.classify(ctx, il.lead)
			if out.Kind == KindBudget {
				stop.Store(true)
				skip(il)
				return nil
			}

			done := context.WithoutCancel(ctx)
			if o.cfg.OnResult != nil {
				resultCtx, cancel := context.WithTimeout(done, o.cfg.RequestTimeout)
				o.cfg.OnResult(resultCtx, out)
				cancel()
			}
			var markErr error
			if o.cfg.Marker != nil {
				markErr = o.cfg.Marker.MarkProcessed(done, il.lead.IdentityKey, o.budget.Spent())
			}

			mu.Lock()
			report.Outcomes[il.lead.IdentityKey] = out
			if out.Err != nil {
				report.Failures[out.Kind]++
			}
			if markErr != nil {
				report.CheckpointErrs++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(undispatched, func(i, j int) bool { return undispatched[i].idx < undispatched[j].idx })
	for _, il := range undispatched {
		report.Undispatched = append(report.Undispatched, il.lead)
	}
	report.BudgetExceeded = stop.Load()
	report.Cancelled = ctx.Err() != nil

	log.Info("classification finished",
		zap.Int("leads", len(leads)),
		zap.Int("succeeded", report.Succeeded()),
		zap.Int("failed", len(report.Outcomes)-report.Succeeded()),
		zap.Int("undispatched", len(report.Undispatched)),
		zap.Float64("budget_spent", o.budget.Spent()),
	)

	switch {
	case report.BudgetExceeded:
		report.Failures[KindBudget] += len(report.Undispatched)
		return report, eris.Wrapf(ErrBudgetExceeded, "classify: %d leads left undispatched", len(report.Undispatched))
	case report.Cancelled:
		return report, eris.Wrap(ctx.Err(), "classify: cancelled")
	}
	return report, nil
}

// classify runs every attempt for one lead under its own timeout, detached
// from cancellation of the run.
func (o *Orchestrator) classify(parent context.Context, lead model.Lead) Outcome {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), o.cfg.RequestTimeout)
	defer cancel()

	out := Outcome{Lead: lead}

	retry := o.cfg.Retry
	malformed := 0
	retry.ShouldRetry = func(err error, _ int) bool {
		if KindOf(err) == KindMalformed {
			malformed++
		}
		return shouldRetry(err, malformed)
	}

	res, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*Result, error) {
		out.Attempts++
		hold, err := o.budget.Reserve(ctx, o.classifier.Estimate(lead))
		if errors.Is(err, cost.ErrBudgetExceeded) {
			return nil, NewError(KindBudget, err)
		}
		if err != nil {
			return nil, NewError(KindTransient, resilience.NewTransientError(err, 0))
		}

		r, err := o.call(ctx, lead)
		actual := 0.0
		if r != nil {
			actual = r.CostUSD
		}
		out.CostUSD += hold.Commit(actual)
		return r, err
	})
	if err != nil {
		out.Err = err
		out.Kind = KindOf(err)
		zap.L().Debug("classify: lead failed",
			zap.String("identity_key", lead.IdentityKey),
			zap.String("kind", string(out.Kind)),
			zap.Int("attempts", out.Attempts),
			zap.Error(err),
		)
		return out
	}

	analysis := scoring.Evaluate(res.Assessment, lead, o.cfg.Now())
	analysis.CostUSD = out.CostUSD
	out.Analysis = &analysis
	return out
}

func (o *Orchestrator) call(ctx context.Context, lead model.Lead) (*Result, error) {
	if o.cfg.Breaker == nil {
		return o.classifier.Classify(ctx, lead)
	}
	return resilience.ExecuteVal(ctx, o.cfg.Breaker, func(ctx context.Context) (*Result, error) {
		return o.classifier.Classify(ctx, lead)
	})
}

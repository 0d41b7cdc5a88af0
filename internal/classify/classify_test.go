package classify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/priyam-jain-2002/vibemarket/internal/cost"
	"github.com/priyam-jain-2002/vibemarket/internal/model"
	"github.com/priyam-jain-2002/vibemarket/internal/resilience"
	"github.com/priyam-jain-2002/vibemarket/internal/scoring"
)

type fakeClassifier struct {
	estimate float64
	costUSD  float64
	delay    time.Duration
	// reply decides the response of the n-th attempt (1-based) for a lead.
	reply func(ctx context.Context, lead model.Lead, attempt int) error

	mu       sync.Mutex
	attempts map[string]int
	calls    atomic.Int64
	inFlight atomic.Int64
	peak     atomic.Int64
}

func (f *fakeClassifier) Estimate(model.Lead) float64 { return f.estimate }

func (f *fakeClassifier) Classify(ctx context.Context, lead model.Lead) (*Result, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	f.mu.Lock()
	if f.attempts == nil {
		f.attempts = make(map[string]int)
	}
	f.attempts[lead.IdentityKey]++
	attempt := f.attempts[lead.IdentityKey]
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.reply != nil {
		if err := f.reply(ctx, lead, attempt); err != nil {
			if KindOf(err) == KindMalformed {
				return &Result{CostUSD: f.costUSD}, err
			}
			return nil, err
		}
	}
	return &Result{CostUSD: f.costUSD, Assessment: scoring.Assessment{
		PainPoints:  []string{"lost orders"},
		PainClarity: "EXPLICIT",
		Urgency:     "HIGH",
		Authority:   "DECISION_MAKER",
	}}, nil
}

func (f *fakeClassifier) attemptsFor(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[key]
}

type fakeMarker struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (m *fakeMarker) MarkProcessed(_ context.Context, key string, _ float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, key)
	return m.err
}

func (m *fakeMarker) marked() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.keys...)
}

func makeLeads(n int) []model.Lead {
	out := make([]model.Lead, n)
	for i := range out {
		out[i] = model.Lead{
			IdentityKey: fmt.Sprintf("k%02d", i),
			Name:        fmt.Sprintf("Lead %d", i),
			Title:       "Founder",
			RawContent:  "We lose orders every week and it is costing us real money.",
		}
	}
	return out
}

func testConfig() Config {
	return Config{
		Concurrency:    2,
		Retry:          resilience.RetryConfig{MaxAttempts: 3, Sleep: resilience.NoSleep},
		RequestTimeout: 5 * time.Second,
	}
}

func TestOrchestrator_ClassifiesAll(t *testing.T) {
	t.Parallel()
	fc := &fakeClassifier{estimate: 0.01, costUSD: 0.004, delay: 5 * time.Millisecond}
	marker := &fakeMarker{}

	var mu sync.Mutex
	var seen []string
	cfg := testConfig()
	cfg.Marker = marker
	cfg.RatePerSec = 1000
	cfg.OnResult = func(_ context.Context, out Outcome) {
		mu.Lock()
		seen = append(seen, out.Lead.IdentityKey)
		mu.Unlock()
	}
	budget := cost.NewBudget(1.0, 0)

	rep, err := New(fc, budget, cfg).Run(context.Background(), makeLeads(8))
	require.NoError(t, err)
	assert.Len(t, rep.Outcomes, 8)
	assert.Equal(t, 8, rep.Succeeded())
	assert.Empty(t, rep.Undispatched)
	assert.ElementsMatch(t, marker.marked(), seen)
	assert.Len(t, seen, 8)
	assert.LessOrEqual(t, fc.peak.Load(), int64(2))

	out := rep.Outcomes["k03"]
	require.NotNil(t, out.Analysis)
	assert.Equal(t, model.BandAPlus, out.Analysis.Band)
	assert.Equal(t, "k03", out.Analysis.LeadIdentityKey)
	assert.InDelta(t, 0.004, out.Analysis.CostUSD, 1e-12)
	assert.InDelta(t, 0.032, budget.Spent(), 1e-9)
}

func TestOrchestrator_RetryPolicy(t *testing.T) {
	t.Parallel()
	fc := &fakeClassifier{costUSD: 0.001}
	fc.reply = func(_ context.Context, lead model.Lead, attempt int) error {
		switch lead.IdentityKey {
		case "k00": // recovers
			if attempt == 1 {
				return NewError(KindTransient, resilience.NewTransientError(errors.New("503"), 503))
			}
		case "k01": // never recovers
			return NewError(KindRateLimited, resilience.NewTransientError(errors.New("429"), 429))
		case "k02":
			return NewError(KindMalformed, errors.New("bad json"))
		case "k03":
			return NewError(KindPermanent, errors.New("400"))
		}
		return nil
	}

	rep, err := New(fc, nil, testConfig()).Run(context.Background(), makeLeads(5))
	require.NoError(t, err)

	assert.Equal(t, 2, fc.attemptsFor("k00"))
	assert.NotNil(t, rep.Outcomes["k00"].Analysis)

	assert.Equal(t, 3, fc.attemptsFor("k01"))
	assert.Equal(t, KindRateLimited, rep.Outcomes["k01"].Kind)

	assert.Equal(t, 2, fc.attemptsFor("k02"), "malformed retries exactly once")
	assert.Equal(t, KindMalformed, rep.Outcomes["k02"].Kind)
	assert.InDelta(t, 0.002, rep.Outcomes["k02"].CostUSD, 1e-12, "both malformed attempts are billed")

	assert.Equal(t, 1, fc.attemptsFor("k03"))
	assert.Equal(t, KindPermanent, rep.Outcomes["k03"].Kind)

	assert.Equal(t, map[Kind]int{KindRateLimited: 1, KindMalformed: 1, KindPermanent: 1}, rep.Failures)
	assert.Equal(t, 2, rep.Succeeded())
}

func TestOrchestrator_BudgetStopsDispatch(t *testing.T) {
	t.Parallel()
	fc := &fakeClassifier{estimate: 1.0, costUSD: 1.0}
	marker := &fakeMarker{}
	cfg := testConfig()
	cfg.Concurrency = 1
	cfg.Marker = marker
	budget := cost.NewBudget(2.5, 0)

	leads := makeLeads(5)
	rep, err := New(fc, budget, cfg).Run(context.Background(), leads)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBudgetExceeded)

	assert.True(t, rep.BudgetExceeded)
	assert.Len(t, rep.Outcomes, 2)
	assert.Equal(t, leads[2:], rep.Undispatched)
	assert.Equal(t, []string{"k00", "k01"}, marker.marked(), "undispatched leads are not checkpointed")
	assert.Equal(t, 3, rep.Failures[KindBudget])
	assert.LessOrEqual(t, budget.Spent(), 2.5)
	assert.True(t, budget.Exceeded())
}

func TestOrchestrator_CancelFinishesInFlight(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var inFlightCtxErr error
	fc := &fakeClassifier{}
	fc.reply = func(ctx context.Context, _ model.Lead, _ int) error {
		cancel()
		inFlightCtxErr = ctx.Err()
		return nil
	}
	marker := &fakeMarker{}
	cfg := testConfig()
	cfg.Concurrency = 1
	cfg.Marker = marker

	rep, err := New(fc, nil, cfg).Run(ctx, makeLeads(4))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, rep.Cancelled)

	assert.NoError(t, inFlightCtxErr, "in-flight requests run detached")
	assert.Equal(t, int64(1), fc.calls.Load())
	assert.Equal(t, []string{"k00"}, marker.marked())
	assert.Len(t, rep.Undispatched, 3)
}

func TestOrchestrator_RequestTimeout(t *testing.T) {
	t.Parallel()
	fc := &fakeClassifier{}
	fc.reply = func(ctx context.Context, _ model.Lead, _ int) error {
		<-ctx.Done()
		return ctx.Err()
	}
	cfg := testConfig()
	cfg.RequestTimeout = 20 * time.Millisecond

	rep, err := New(fc, nil, cfg).Run(context.Background(), makeLeads(1))
	require.NoError(t, err)
	out := rep.Outcomes["k00"]
	assert.Nil(t, out.Analysis)
	assert.Equal(t, KindTransient, out.Kind)
}

func TestOrchestrator_CircuitBreaker(t *testing.T) {
	t.Parallel()
	fc := &fakeClassifier{}
	fc.reply = func(context.Context, model.Lead, int) error {
		return NewError(KindTransient, resilience.NewTransientError(errors.New("503"), 503))
	}
	cfg := testConfig()
	cfg.Concurrency = 1
	cfg.Retry.MaxAttempts = 1
	cfg.Breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:             "classifier",
		FailureThreshold: 2,
		ResetTimeout:     time.Hour,
	})

	rep, err := New(fc, nil, cfg).Run(context.Background(), makeLeads(5))
	require.NoError(t, err)
	assert.Equal(t, int64(2), fc.calls.Load(), "open circuit short-circuits the rest")
	assert.Equal(t, 5, rep.Failures[KindTransient])
	assert.Equal(t, resilience.CircuitOpen, cfg.Breaker.State())
}

func TestOrchestrator_CheckpointErrorsCounted(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Marker = &fakeMarker{err: errors.New("disk full")}

	rep, err := New(&fakeClassifier{}, nil, cfg).Run(context.Background(), makeLeads(3))
	require.NoError(t, err)
	assert.Equal(t, 3, rep.CheckpointErrs)
	assert.Equal(t, 3, rep.Succeeded())
}

func TestOrchestrator_InFlightHoldsDoNotStopDispatch(t *testing.T) {
	t.Parallel()
	fc := &fakeClassifier{estimate: 0.4, costUSD: 0.01, delay: 5 * time.Millisecond}
	cfg := testConfig()
	cfg.Concurrency = 3
	budget := cost.NewBudget(1.0, 0)

	rep, err := New(fc, budget, cfg).Run(context.Background(), makeLeads(10))
	require.NoError(t, err)
	assert.False(t, rep.BudgetExceeded)
	assert.Empty(t, rep.Undispatched)
	assert.Len(t, rep.Outcomes, 10)
	assert.Equal(t, 10, rep.Succeeded())
	assert.Zero(t, rep.Failures[KindBudget])
	assert.InDelta(t, 0.1, budget.Spent(), 1e-9)
	assert.False(t, budget.Exceeded())
}

func TestOrchestrator_MalformedCountedApartFromOtherRetries(t *testing.T) {
	t.Parallel()
	fc := &fakeClassifier{costUSD: 0.001}
	fc.reply = func(_ context.Context, _ model.Lead, attempt int) error {
		switch attempt {
		case 1:
			return NewError(KindTransient, resilience.NewTransientError(errors.New("503"), 503))
		case 2:
			return NewError(KindMalformed, errors.New("bad json"))
		}
		return nil
	}
	cfg := testConfig()
	cfg.Retry.MaxAttempts = 5

	rep, err := New(fc, nil, cfg).Run(context.Background(), makeLeads(1))
	require.NoError(t, err)
	out := rep.Outcomes["k00"]
	require.NotNil(t, out.Analysis, "one malformed reply after a transient error still earns a retry")
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, 3, fc.attemptsFor("k00"))
	assert.Empty(t, rep.Failures)
}

func TestOrchestrator_OnResultContextHasDeadline(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu        sync.Mutex
		deadlines []bool
		ctxErrs   []error
	)
	cfg := testConfig()
	cfg.Concurrency = 1
	cfg.RequestTimeout = time.Minute
	cfg.OnResult = func(rctx context.Context, _ Outcome) {
		cancel()
		_, ok := rctx.Deadline()
		mu.Lock()
		deadlines = append(deadlines, ok)
		ctxErrs = append(ctxErrs, rctx.Err())
		mu.Unlock()
	}

	_, err := New(&fakeClassifier{}, nil, cfg).Run(ctx, makeLeads(3))
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, deadlines, 1)
	assert.True(t, deadlines[0], "result handling is bounded by the request timeout")
	assert.NoError(t, ctxErrs[0], "result handling is detached from run cancellation")
}

func TestOrchestrator_BudgetWaitTimeoutIsNotExhaustion(t *testing.T) {
	t.Parallel()
	budget := cost.NewBudget(1.0, 0)
	hold, err := budget.Reserve(context.Background(), 0.75)
	require.NoError(t, err)
	defer hold.Release()

	fc := &fakeClassifier{estimate: 0.5, costUSD: 0.01}
	cfg := testConfig()
	cfg.RequestTimeout = 20 * time.Millisecond

	rep, err := New(fc, budget, cfg).Run(context.Background(), makeLeads(2))
	require.NoError(t, err)
	assert.False(t, rep.BudgetExceeded)
	assert.Empty(t, rep.Undispatched)
	assert.Equal(t, 2, rep.Failures[KindTransient])
	assert.Zero(t, fc.calls.Load(), "no request is sent without a reservation")
	assert.False(t, budget.Exceeded())
}

package cost

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
)

// ErrBudgetExceeded is returned when a reservation would push spending past
// the ceiling.
var ErrBudgetExceeded = eris.New("cost: budget ceiling exceeded")

// Budget tracks spending against a ceiling. Callers reserve a worst-case
// amount before a call and commit the actual cost afterwards, so concurrent
// callers can never overshoot the ceiling in aggregate.
type Budget struct {
	mu       sync.Mutex
	ceiling  float64
	spent    float64
	reserved float64
	holds    int
	exceeded bool
	// released is closed and replaced whenever a hold is given back.
	released chan struct{}
}

// NewBudget creates a Budget. A ceiling <= 0 means unlimited. spent seeds
// the budget with what a resumed run already paid.
func NewBudget(ceiling, spent float64) *Budget {
	return &Budget{ceiling: ceiling, spent: spent}
}

// Reservation is a hold on part of the budget.
type Reservation struct {
	b      *Budget
	amount float64
	done   bool
}

// Reserve holds amount against the ceiling. When committed spend leaves no
// room for amount it fails with ErrBudgetExceeded and marks the budget
// exceeded. When only other callers' holds are in the way it waits for one of
// them to commit or release, or for ctx to end.
func (b *Budget) Reserve(ctx context.Context, amount float64) (*Reservation, error) {
	if amount < 0 {
		amount = 0
	}
	for {
		b.mu.Lock()
		if b.ceiling > 0 && b.spent+amount > b.ceiling {
			b.exceeded = true
			spent := b.spent
			b.mu.Unlock()
			return nil, eris.Wrapf(ErrBudgetExceeded, "reserve %.4f with %.4f spent of %.4f", amount, spent, b.ceiling)
		}
		if b.ceiling <= 0 || b.spent+b.reserved+amount <= b.ceiling {
			b.reserved += amount
			b.holds++
			b.mu.Unlock()
			return &Reservation{b: b, amount: amount}, nil
		}
		if b.released == nil {
			b.released = make(chan struct{})
		}
		wait := b.released
		b.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, eris.Wrap(ctx.Err(), "cost: waiting for in-flight reservations")
		}
	}
}

// Commit releases the hold and records actual as spent, capped at the
// reserved amount. It returns the amount recorded. Safe to call once; later
// calls are no-ops.
func (r *Reservation) Commit(actual float64) float64 {
	b := r.b
	b.mu.Lock()
	defer b.mu.Unlock()

	if r.done {
		return 0
	}
	r.done = true
	b.reserved -= r.amount
	if b.holds--; b.holds == 0 {
		b.reserved = 0
	}
	actual = max(min(actual, r.amount), 0)
	b.spent += actual
	if b.released != nil {
		close(b.released)
		b.released = nil
	}
	return actual
}

// Release drops the hold without spending anything.
func (r *Reservation) Release() {
	r.Commit(0)
}

// Spent returns the committed spend.
func (b *Budget) Spent() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.spent
}

// Ceiling returns the configured ceiling (0 = unlimited).
func (b *Budget) Ceiling() float64 {
	return b.ceiling
}

// Exceeded reports whether any reservation has been refused.
func (b *Budget) Exceeded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.exceeded
}

// Restore raises spent to what a resumed run had already paid.
func (b *Budget) Restore(spent float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if spent > b.spent {
		b.spent = spent
	}
}

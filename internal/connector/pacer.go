package connector

import (
	"context"
	"math/rand/v2"
	"time"
)

// Pacer is invoked before every network-visible action.
type Pacer interface {
	Wait(ctx context.Context) error
}

// RandomPacer waits a uniformly random duration in [Min, Max].
type RandomPacer struct {
	Min time.Duration
	Max time.Duration
}

// NewRandomPacer builds a RandomPacer from millisecond bounds.
func NewRandomPacer(minMs, maxMs int) RandomPacer {
	return RandomPacer{
		Min: time.Duration(minMs) * time.Millisecond,
		Max: time.Duration(max(minMs, maxMs)) * time.Millisecond,
	}
}

// Delay draws the next delay.
func (p RandomPacer) Delay() time.Duration {
	if p.Max <= p.Min {
		return p.Min
	}
	return p.Min + rand.N(p.Max-p.Min+1)
}

func (p RandomPacer) Wait(ctx context.Context) error {
	d := p.Delay()
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NoPacer never waits.
type NoPacer struct{}

func (NoPacer) Wait(ctx context.Context) error { return ctx.Err() }

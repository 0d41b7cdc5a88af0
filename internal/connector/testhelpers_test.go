package connector

import (
	"errors"
	"iter"
	"testing"

	"github.com/priyam-jain-2002/vibemarket/internal/resilience"
)

func testSession() SessionConfig {
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = 3
	retry.Sleep = resilience.NoSleep
	return SessionConfig{UserAgent: "vibemarket-test", Pacer: NoPacer{}, Retry: retry}
}

// drain collects a search sequence.
func drain(t *testing.T, seq iter.Seq2[Fragment, error]) ([]Fragment, []error) {
	t.Helper()
	var frags []Fragment
	var errs []error
	for f, err := range seq {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		frags = append(frags, f)
	}
	return frags, errs
}

func anyIs(errs []error, target error) bool {
	for _, e := range errs {
		if errors.Is(e, target) {
			return true
		}
	}
	return false
}

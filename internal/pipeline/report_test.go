package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/priyam-jain-2002/vibemarket/internal/model"
)

func rec(key string, band model.Band, spec float64) model.Record {
	r := model.Record{Lead: model.Lead{IdentityKey: key}}
	if band != "" {
		r.Analysis = &model.Analysis{LeadIdentityKey: key, Band: band, SpecificityScore: spec}
	}
	return r
}

func TestRank(t *testing.T) {
	t.Parallel()
	records := []model.Record{
		rec("f", "", 0),
		rec("c", model.BandB, 0.9),
		rec("b", model.BandAPlus, 0.5),
		rec("e", model.BandA, 0.7),
		rec("a", model.BandAPlus, 0.5),
		rec("d", model.BandAPlus, 0.8),
	}
	Rank(records)

	var keys []string
	for _, r := range records {
		keys = append(keys, r.Lead.IdentityKey)
	}
	assert.Equal(t, []string{"d", "a", "b", "e", "c", "f"}, keys)
}

func TestFormatSummary(t *testing.T) {
	t.Parallel()
	s := model.NewSummary("run-9")
	s.Status = model.RunStatusBudgetExceeded
	s.Harvested = 12
	s.Processed = 7
	s.Bands[model.BandAPlus] = 2
	s.Failures[model.FailureBudget] = 3
	s.Failures[model.FailureExtraction] = 1
	s.BudgetSpent = 1.5
	s.BudgetCeiling = 2
	s.BudgetExceeded = true
	s.Error = "classify: 3 leads left undispatched"

	out := FormatSummary(s)
	assert.Contains(t, out, "# Run run-9: budget_exceeded")
	assert.Contains(t, out, "- Harvested: 12")
	assert.Contains(t, out, "- A_PLUS: 2\n- A: 0\n- B: 0\n- C: 0")
	assert.Contains(t, out, "- budget: 3\n- extraction: 1")
	assert.Contains(t, out, "- Spent: $1.5000 of $2.00")
	assert.Contains(t, out, "Ceiling reached")
	assert.Contains(t, out, "Error: classify: 3 leads left undispatched")

	empty := FormatSummary(model.NewSummary("run-0"))
	assert.Contains(t, empty, "None.")
	assert.Contains(t, empty, "(no ceiling)")
}

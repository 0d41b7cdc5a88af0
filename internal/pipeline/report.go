package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/priyam-jain-2002/vibemarket/internal/model"
)

// Rank orders records best first: band, then specificity, then identity key.
// Records without an Analysis sort last.
func Rank(records []model.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if (a.Analysis == nil) != (b.Analysis == nil) {
			return a.Analysis != nil
		}
		if a.Analysis != nil {
			if ra, rb := a.Analysis.Band.Rank(), b.Analysis.Band.Rank(); ra != rb {
				return ra > rb
			}
			if a.Analysis.SpecificityScore != b.Analysis.SpecificityScore {
				return a.Analysis.SpecificityScore > b.Analysis.SpecificityScore
			}
		}
		return a.Lead.IdentityKey < b.Lead.IdentityKey
	})
}

var bandOrder = []model.Band{model.BandAPlus, model.BandA, model.BandB, model.BandC}

// FormatSummary renders a human-readable run report.
func FormatSummary(s *model.Summary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Run %s: %s\n\n", s.RunID, s.Status)

	b.WriteString("## Leads\n")
	fmt.Fprintf(&b, "- Harvested: %d\n", s.Harvested)
	fmt.Fprintf(&b, "- New: %d\n", s.New)
	fmt.Fprintf(&b, "- Duplicates: %d\n", s.Duplicates)
	fmt.Fprintf(&b, "- Processed: %d\n", s.Processed)
	fmt.Fprintf(&b, "- Messages: %d (%d incomplete)\n\n", s.Messages, s.Incomplete)

	b.WriteString("## Bands\n")
	for _, band := range bandOrder {
		fmt.Fprintf(&b, "- %s: %d\n", band, s.Bands[band])
	}
	b.WriteString("\n")

	b.WriteString("## Failures\n")
	if len(s.Failures) == 0 {
		b.WriteString("None.\n")
	} else {
		kinds := make([]string, 0, len(s.Failures))
		for k := range s.Failures {
			kinds = append(kinds, string(k))
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Fprintf(&b, "- %s: %d\n", k, s.Failures[model.FailureKind(k)])
		}
	}
	b.WriteString("\n")

	b.WriteString("## Budget\n")
	if s.BudgetCeiling > 0 {
		fmt.Fprintf(&b, "- Spent: $%.4f of $%.2f\n", s.BudgetSpent, s.BudgetCeiling)
	} else {
		fmt.Fprintf(&b, "- Spent: $%.4f (no ceiling)\n", s.BudgetSpent)
	}
	if s.BudgetExceeded {
		b.WriteString("- Ceiling reached; resume with a higher ceiling to finish.\n")
	}
	if s.Error != "" {
		fmt.Fprintf(&b, "\nError: %s\n", s.Error)
	}
	return b.String()
}

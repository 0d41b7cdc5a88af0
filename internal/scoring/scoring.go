// Package scoring turns a raw model assessment into qualification signals and
// assigns the band. Everything here is pure: the same inputs always produce the
// same band.
package scoring

import (
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/priyam-jain-2002/vibemarket/internal/model"
)

// Assessment is the structured reply of the classification service. Labels are
// kept as strings because the service is not trusted to stay inside the enums.
type Assessment struct {
	Score            string   `json:"score"`
	PainPoints       []string `json:"pain_points"`
	PainClarity      string   `json:"pain_clarity"`
	Urgency          string   `json:"urgency"`
	Authority        string   `json:"authority"`
	SpecificityScore float64  `json:"specificity_score"`
	IndustryFit      bool     `json:"industry_fit"`
	SizeFit          bool     `json:"size_fit"`
	Disqualify       bool     `json:"disqualify"`
	DisqualifyReason string   `json:"disqualify_reason"`
	Reasoning        string   `json:"reasoning"`
	KeySignals       []string `json:"key_signals"`
	MissingSignals   []string `json:"missing_signals"`
}

// Signals are the inputs of the banding rules.
type Signals struct {
	Urgency      model.Urgency
	Authority    model.Authority
	Specificity  float64
	ExplicitPain bool
	NonBuyer     bool
}

// Band applies the banding rules, checked from the top band down. The first
// rule that holds in full wins.
func Band(s Signals) model.Band {
	if !s.ExplicitPain || s.NonBuyer || s.Authority == model.AuthorityNone {
		return model.BandC
	}

	switch {
	case s.Authority == model.AuthorityDecisionMaker && s.Urgency == model.UrgencyHigh:
		return model.BandAPlus
	case (s.Authority == model.AuthorityDecisionMaker || s.Authority == model.AuthorityInfluencer) &&
		(s.Urgency == model.UrgencyMedium || s.Urgency == model.UrgencyHigh):
		return model.BandA
	case s.Urgency == model.UrgencyLow || s.Authority == model.AuthorityUnknown:
		return model.BandB
	default:
		return model.BandC
	}
}

// NormalizeUrgency maps a raw label onto the urgency enum. "NONE" and anything
// unrecognized count as LOW.
func NormalizeUrgency(raw string) model.Urgency {
	switch label(raw) {
	case "HIGH":
		return model.UrgencyHigh
	case "MEDIUM":
		return model.UrgencyMedium
	default:
		return model.UrgencyLow
	}
}

// NormalizeAuthority maps a raw label onto the authority enum. "LOW" (junior,
// assistant, student) means no purchasing authority; unrecognized labels are
// UNKNOWN.
func NormalizeAuthority(raw string) model.Authority {
	switch label(raw) {
	case "DECISION_MAKER":
		return model.AuthorityDecisionMaker
	case "INFLUENCER":
		return model.AuthorityInfluencer
	case "LOW", "NONE":
		return model.AuthorityNone
	default:
		return model.AuthorityUnknown
	}
}

// NormalizeClarity maps a raw pain clarity label; unrecognized labels are NONE.
func NormalizeClarity(raw string) model.PainClarity {
	switch label(raw) {
	case "EXPLICIT":
		return model.PainExplicit
	case "IMPLICIT":
		return model.PainImplicit
	default:
		return model.PainNone
	}
}

func label(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, "-", "_")
	return strings.ReplaceAll(s, " ", "_")
}

// NormalizeSpecificity maps the service's 1-10 scale onto 0-1. Values already
// inside [0,1] are taken as-is and out-of-range values are clamped.
func NormalizeSpecificity(raw float64) float64 {
	if math.IsNaN(raw) || raw <= 0 {
		return 0
	}
	if raw <= 1 {
		return raw
	}
	return math.Min(raw, 10) / 10
}

// titleCues are whole words in a title that mark a non-buyer.
var titleCues = map[string]bool{
	"student":    true,
	"students":   true,
	"researcher": true,
	"intern":     true,
	"professor":  true,
	"undergrad":  true,
}

// contentCues are phrases in the content of someone studying a problem
// rather than buying a fix for it.
var contentCues = []string{
	"for my thesis",
	"my dissertation",
	"school project",
	"class assignment",
	"phd research",
}

// IsNonBuyer reports whether the lead's title or content marks them as a
// non-buyer.
func IsNonBuyer(lead model.Lead) bool {
	words := strings.FieldsFunc(strings.ToLower(lead.Title), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, w := range words {
		if titleCues[w] {
			return true
		}
	}
	content := strings.ToLower(lead.RawContent)
	for _, cue := range contentCues {
		if strings.Contains(content, cue) {
			return true
		}
	}
	return false
}

// SignalsFrom derives banding signals from an assessment of lead.
func SignalsFrom(a Assessment, lead model.Lead) Signals {
	return Signals{
		Urgency:      NormalizeUrgency(a.Urgency),
		Authority:    NormalizeAuthority(a.Authority),
		Specificity:  NormalizeSpecificity(a.SpecificityScore),
		ExplicitPain: NormalizeClarity(a.PainClarity) == model.PainExplicit && len(cleanList(a.PainPoints)) > 0,
		NonBuyer:     a.Disqualify || IsNonBuyer(lead),
	}
}

// Evaluate builds the Analysis for lead from an assessment. The service's own
// score label is ignored; the band always comes from Band.
func Evaluate(a Assessment, lead model.Lead, analyzedAt time.Time) model.Analysis {
	s := SignalsFrom(a, lead)
	return model.Analysis{
		LeadIdentityKey:  lead.IdentityKey,
		Band:             Band(s),
		PainPoints:       cleanList(a.PainPoints),
		Urgency:          s.Urgency,
		Authority:        s.Authority,
		SpecificityScore: s.Specificity,
		Reasoning:        strings.TrimSpace(a.Reasoning),
		AnalyzedAt:       analyzedAt.UTC(),
		PainClarity:      NormalizeClarity(a.PainClarity),
		KeySignals:       cleanList(a.KeySignals),
		MissingSignals:   cleanList(a.MissingSignals),
		IndustryFit:      a.IndustryFit,
		SizeFit:          a.SizeFit,
		Disqualified:     s.NonBuyer,
		DisqualifyReason: strings.TrimSpace(a.DisqualifyReason),
	}
}

// cleanList trims entries and drops empty ones, keeping order.
func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

package model

import "time"

// Band is the ordinal quality classification of a lead (A_PLUS > A > B > C).
type Band string

const (
	BandAPlus Band = "A_PLUS"
	BandA     Band = "A"
	BandB     Band = "B"
	BandC     Band = "C"
)

// Rank returns the ordinal position of the band; higher is better.
func (b Band) Rank() int {
	switch b {
	case BandAPlus:
		return 4
	case BandA:
		return 3
	case BandB:
		return 2
	case BandC:
		return 1
	default:
		return 0
	}
}

// Qualifies reports whether the band earns an outreach message.
func (b Band) Qualifies() bool {
	return b == BandAPlus || b == BandA
}

// Urgency of the pain expressed by a lead.
type Urgency string

const (
	UrgencyLow    Urgency = "LOW"
	UrgencyMedium Urgency = "MEDIUM"
	UrgencyHigh   Urgency = "HIGH"
)

// Authority of the lead over a purchase decision.
type Authority string

const (
	AuthorityDecisionMaker Authority = "DECISION_MAKER"
	AuthorityInfluencer    Authority = "INFLUENCER"
	AuthorityNone          Authority = "NONE"
	AuthorityUnknown       Authority = "UNKNOWN"
)

// PainClarity records how directly a lead states their pain.
type PainClarity string

const (
	PainExplicit PainClarity = "EXPLICIT"
	PainImplicit PainClarity = "IMPLICIT"
	PainNone     PainClarity = "NONE"
)

// Analysis is the qualification result for one Lead. It references the lead
// by identity key and is never mutated after creation.
type Analysis struct {
	LeadIdentityKey  string      `json:"lead_identity_key"`
	Band             Band        `json:"band"`
	PainPoints       []string    `json:"pain_points"`
	Urgency          Urgency     `json:"urgency"`
	Authority        Authority   `json:"authority"`
	SpecificityScore float64     `json:"specificity_score"`
	Reasoning        string      `json:"reasoning"`
	AnalyzedAt       time.Time   `json:"analyzed_at"`
	PainClarity      PainClarity `json:"pain_clarity"`
	KeySignals       []string    `json:"key_signals,omitempty"`
	MissingSignals   []string    `json:"missing_signals,omitempty"`
	IndustryFit      bool        `json:"industry_fit"`
	SizeFit          bool        `json:"size_fit"`
	Disqualified     bool        `json:"disqualified"`
	DisqualifyReason string      `json:"disqualify_reason,omitempty"`
	CostUSD          float64     `json:"cost_usd"`
}

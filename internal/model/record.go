package model

// FailureKind names a counted failure category in a run summary.
type FailureKind string

const (
	FailureAuthentication    FailureKind = "authentication"
	FailureRateLimited       FailureKind = "rate_limited"
	FailureExtraction        FailureKind = "extraction"
	FailureClassifyTransient FailureKind = "classify_transient"
	FailureClassifyMalformed FailureKind = "classify_malformed"
	FailureClassifyPermanent FailureKind = "classify_permanent"
	FailureBudget            FailureKind = "budget"
	FailureGeneration        FailureKind = "generation"
	FailureDuplicateConflict FailureKind = "duplicate_conflict"
	FailureCheckpoint        FailureKind = "checkpoint"
	FailureSink              FailureKind = "sink"
)

// Failure describes why a record has no Analysis or no message.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

// Record is the per-lead tuple handed to the output sink. Records may arrive in
// any order and must be keyed by Lead.IdentityKey.
type Record struct {
	Lead       Lead             `json:"lead"`
	Analysis   *Analysis        `json:"analysis,omitempty"`
	Message    *OutreachMessage `json:"message,omitempty"`
	Failure    *Failure         `json:"failure,omitempty"`
	Incomplete bool             `json:"incomplete,omitempty"`
}

// RunStatus is the terminal state of a pipeline run.
type RunStatus string

const (
	RunStatusComplete       RunStatus = "complete"
	RunStatusBudgetExceeded RunStatus = "budget_exceeded"
	RunStatusCancelled      RunStatus = "cancelled"
	RunStatusAuthFailed     RunStatus = "auth_failed"
	RunStatusFailed         RunStatus = "failed"
)

// Summary is the user-visible outcome of a run: counts per band and per
// failure kind. Every failure is counted here.
type Summary struct {
	RunID          string              `json:"run_id"`
	Status         RunStatus           `json:"status"`
	Harvested      int                 `json:"harvested"`
	New            int                 `json:"new"`
	Duplicates     int                 `json:"duplicates"`
	Processed      int                 `json:"processed"`
	Messages       int                 `json:"messages"`
	Incomplete     int                 `json:"incomplete"`
	Bands          map[Band]int        `json:"bands"`
	Failures       map[FailureKind]int `json:"failures"`
	BudgetSpent    float64             `json:"budget_spent"`
	BudgetCeiling  float64             `json:"budget_ceiling"`
	BudgetExceeded bool                `json:"budget_exceeded"`
	Error          string              `json:"error,omitempty"`
}

// NewSummary returns a Summary with initialized counters.
func NewSummary(runID string) *Summary {
	return &Summary{
		RunID:    runID,
		Bands:    make(map[Band]int),
		Failures: make(map[FailureKind]int),
	}
}

// Qualified returns the number of A_PLUS and A leads.
func (s *Summary) Qualified() int {
	return s.Bands[BandAPlus] + s.Bands[BandA]
}

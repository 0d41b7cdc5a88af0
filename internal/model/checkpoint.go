package model

import (
	"encoding/json"
	"sort"
	"time"
)

// Stage is the pipeline stage a run checkpoint was written from.
type Stage string

const (
	StageHarvesting  Stage = "harvesting"
	StageClassifying Stage = "classifying"
	StageComplete    Stage = "complete"
	StageAborted     Stage = "aborted"
)

// RunCheckpoint is the persisted progress marker of a single pipeline run.
// ProcessedIdentityKeys only grows; a key present in it is never reprocessed.
type RunCheckpoint struct {
	RunID                 string              `json:"run_id"`
	Stage                 Stage               `json:"stage"`
	ProcessedIdentityKeys map[string]struct{} `json:"-"`
	BudgetSpent           float64             `json:"budget_spent"`
	LastUpdated           time.Time           `json:"last_updated"`
	Query                 string              `json:"query,omitempty"`
	Source                Source              `json:"source,omitempty"`
	Cursor                int                 `json:"cursor"`
	PageToken             string              `json:"page_token,omitempty"`
	Pending               []Lead              `json:"pending,omitempty"`
}

// NewRunCheckpoint returns an empty checkpoint for runID.
func NewRunCheckpoint(runID string) *RunCheckpoint {
	return &RunCheckpoint{
		RunID:                 runID,
		Stage:                 StageHarvesting,
		ProcessedIdentityKeys: make(map[string]struct{}),
	}
}

// IsProcessed reports whether key is in the processed set.
func (c *RunCheckpoint) IsProcessed(key string) bool {
	_, ok := c.ProcessedIdentityKeys[key]
	return ok
}

// Keys returns the processed identity keys in sorted order.
func (c *RunCheckpoint) Keys() []string {
	keys := make([]string, 0, len(c.ProcessedIdentityKeys))
	for k := range c.ProcessedIdentityKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy safe to hand to another goroutine.
func (c *RunCheckpoint) Clone() *RunCheckpoint {
	out := *c
	out.ProcessedIdentityKeys = make(map[string]struct{}, len(c.ProcessedIdentityKeys))
	for k := range c.ProcessedIdentityKeys {
		out.ProcessedIdentityKeys[k] = struct{}{}
	}
	out.Pending = append([]Lead(nil), c.Pending...)
	return &out
}

type checkpointAlias RunCheckpoint

type checkpointJSON struct {
	*checkpointAlias
	ProcessedIdentityKeys []string `json:"processed_identity_keys"`
}

// MarshalJSON encodes the processed set as a sorted array so the layout is
// stable across writes.
func (c RunCheckpoint) MarshalJSON() ([]byte, error) {
	alias := checkpointAlias(c)
	return json.Marshal(checkpointJSON{
		checkpointAlias:       &alias,
		ProcessedIdentityKeys: c.Keys(),
	})
}

// UnmarshalJSON rebuilds the processed set from its array form.
func (c *RunCheckpoint) UnmarshalJSON(data []byte) error {
	aux := checkpointJSON{checkpointAlias: (*checkpointAlias)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.ProcessedIdentityKeys = make(map[string]struct{}, len(aux.ProcessedIdentityKeys))
	for _, k := range aux.ProcessedIdentityKeys {
		c.ProcessedIdentityKeys[k] = struct{}{}
	}
	return nil
}

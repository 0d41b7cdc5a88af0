package model

import "time"

// Source identifies where a lead came from.
type Source string

const (
	SourceManual   Source = "manual"
	SourceLinkedIn Source = "linkedin"
	SourceReddit   Source = "reddit"
)

// Lead is a harvested or manually supplied candidate. Leads are immutable once
// created; downstream stages pair them with an Analysis instead of mutating them.
type Lead struct {
	IdentityKey string    `json:"identity_key" yaml:"identity_key"`
	Name        string    `json:"name" yaml:"name"`
	Title       string    `json:"title" yaml:"title"`
	Company     string    `json:"company" yaml:"company"`
	Source      Source    `json:"source" yaml:"source"`
	RawContent  string    `json:"raw_content" yaml:"raw_content"`
	CapturedAt  time.Time `json:"captured_at" yaml:"captured_at"`
	OriginURL   string    `json:"origin_url,omitempty" yaml:"origin_url,omitempty"`
}

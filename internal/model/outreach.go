package model

import "time"

// VibeProfile is the tonal classification used to style an outreach draft.
type VibeProfile string

const (
	VibeCasual    VibeProfile = "casual"
	VibeFormal    VibeProfile = "formal"
	VibeUrgent    VibeProfile = "urgent"
	VibeExploring VibeProfile = "exploring"
)

// OutreachMessage is a personalized draft generated for an A_PLUS or A lead.
type OutreachMessage struct {
	LeadIdentityKey string      `json:"lead_identity_key"`
	BodyText        string      `json:"body_text"`
	VibeProfile     VibeProfile `json:"vibe_profile"`
	GeneratedAt     time.Time   `json:"generated_at"`
	Generator       string      `json:"generator"`
}

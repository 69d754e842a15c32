package model

import "time"

// Panic alert status constants.
const (
	PanicActive   = "active"
	PanicResolved = "resolved"
)

// PanicAlert is an emergency alert triggered by the press-and-hold button.
// While one is active, medication alarm audio is suppressed.
type PanicAlert struct {
	ID          int64      `json:"id"`
	ProfileID   int64      `json:"profile_id"`
	Status      string     `json:"status"`
	TriggeredAt time.Time  `json:"triggered_at"`
	ResolvedAt  *time.Time `json:"resolved_at"`
}

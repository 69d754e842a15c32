package model

import "time"

// Profile is a monitored family member. In caregiver mode the alarm
// scheduler is bound to exactly one profile at a time.
type Profile struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	Name      string     `json:"name"`
	BirthDate *time.Time `json:"birth_date"`
	Relation  string     `json:"relation"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

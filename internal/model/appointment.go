package model

import "time"

type Appointment struct {
	ID        int64     `json:"id"`
	ProfileID int64     `json:"profile_id"`
	Doctor    string    `json:"doctor"`
	Specialty string    `json:"specialty"`
	Location  string    `json:"location"`
	StartsAt  time.Time `json:"starts_at"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

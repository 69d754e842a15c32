package model

import "time"

// Medication form constants. Unit-based forms decrement stock on confirm;
// liquids, drops and injections do not.
const (
	FormTablet    = "comprimido"
	FormCapsule   = "capsula"
	FormDrops     = "gotas"
	FormLiquid    = "liquido"
	FormInjection = "injecao"
	FormOintment  = "pomada"
)

type Medication struct {
	ID            int64          `json:"id"`
	ProfileID     int64          `json:"profile_id"`
	Name          string         `json:"name"`
	Dosage        string         `json:"dosage"`
	Form          string         `json:"form"`
	Active        bool           `json:"active"`
	StockQuantity int            `json:"stock_quantity"`
	StartDate     time.Time      `json:"start_date"`
	EndDate       *time.Time     `json:"end_date"`
	Schedules     []DoseSchedule `json:"schedules"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// IsUnitForm reports whether confirming a dose consumes one unit of stock.
func (m *Medication) IsUnitForm() bool {
	switch m.Form {
	case FormDrops, FormLiquid, FormInjection, FormOintment:
		return false
	}
	return true
}

// DoseSchedule is one daily occurrence of a medication, as a local
// wall-clock "HH:MM". Schedules carry no identity across edits: updating a
// medication replaces its whole schedule list.
type DoseSchedule struct {
	ID           int64     `json:"id"`
	MedicationID int64     `json:"medication_id"`
	TimeOfDay    string    `json:"time_of_day"`
	CreatedAt    time.Time `json:"created_at"`
}

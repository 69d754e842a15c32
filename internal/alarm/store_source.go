package alarm

import (
	"time"

	"github.com/avelar/famcare/internal/model"
	"github.com/avelar/famcare/internal/store"
)

// StoreSource implements DataSource over the SQLite store layer.
type StoreSource struct {
	meds   *store.MedicationStore
	logs   *store.DoseLogStore
	audits *store.SnoozeAuditStore
}

func NewStoreSource(meds *store.MedicationStore, logs *store.DoseLogStore, audits *store.SnoozeAuditStore) *StoreSource {
	return &StoreSource{meds: meds, logs: logs, audits: audits}
}

func (s *StoreSource) ListMedications(profileID int64) ([]model.Medication, error) {
	return s.meds.ListByProfile(profileID)
}

func (s *StoreSource) ListTodayLogs(profileID int64, dayStart, dayEnd time.Time) ([]model.DoseLog, error) {
	return s.logs.ListForDay(profileID, dayStart, dayEnd)
}

func (s *StoreSource) InsertDoseLog(profileID, medicationID, scheduleID int64, status string, scheduledFor time.Time, takenAt *time.Time) (*model.DoseLog, error) {
	return s.logs.Insert(profileID, medicationID, scheduleID, status, scheduledFor, takenAt)
}

func (s *StoreSource) DecrementStock(medicationID int64) error {
	return s.meds.DecrementStock(medicationID)
}

func (s *StoreSource) InsertSnoozeAudit(profileID, medicationID, scheduleID int64, minutes int) error {
	_, err := s.audits.Insert(profileID, medicationID, scheduleID, minutes)
	return err
}

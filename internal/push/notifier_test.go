package push

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/avelar/famcare/internal/alarm"
	"github.com/avelar/famcare/internal/model"
)

type fakeSender struct {
	sent   []Payload
	failOn map[string]error // endpoint -> error
}

func (f *fakeSender) Send(sub *model.PushSubscription, payload Payload) error {
	if err, ok := f.failOn[sub.Endpoint]; ok {
		return err
	}
	f.sent = append(f.sent, payload)
	return nil
}

type fakeSubs struct {
	subs    []model.PushSubscription
	deleted []string
}

func (f *fakeSubs) ListByProfile(profileID int64) ([]model.PushSubscription, error) {
	return f.subs, nil
}

func (f *fakeSubs) DeleteByEndpoint(endpoint string) error {
	f.deleted = append(f.deleted, endpoint)
	return nil
}

func testDoses() []alarm.ActiveDose {
	at := time.Date(2025, 3, 10, 8, 0, 0, 0, time.Local)
	return []alarm.ActiveDose{
		{
			Medication:   model.Medication{ID: 1, Name: "Losartana", Dosage: "50mg", Form: model.FormTablet},
			Schedule:     model.DoseSchedule{ID: 100, MedicationID: 1, TimeOfDay: "08:00"},
			ScheduledFor: at,
		},
	}
}

func TestNotifyDosesSendsToEachSubscription(t *testing.T) {
	sender := &fakeSender{}
	subs := &fakeSubs{subs: []model.PushSubscription{
		{ID: 1, Endpoint: "https://push.example/a"},
		{ID: 2, Endpoint: "https://push.example/b"},
	}}
	n := NewDoseNotifier(sender, subs, slog.New(slog.DiscardHandler))

	n.NotifyDoses(1, testDoses())

	if len(sender.sent) != 2 {
		t.Fatalf("sent = %d payloads, want 2", len(sender.sent))
	}
	p := sender.sent[0]
	if p.Title != "Medication due" {
		t.Errorf("title = %q", p.Title)
	}
	if p.Tag != model.NotifTypeDoseDue {
		t.Errorf("tag = %q, want %q", p.Tag, model.NotifTypeDoseDue)
	}
}

func TestNotifyDosesPrunesExpiredSubscription(t *testing.T) {
	sender := &fakeSender{failOn: map[string]error{
		"https://push.example/stale": ErrExpired,
	}}
	subs := &fakeSubs{subs: []model.PushSubscription{
		{ID: 1, Endpoint: "https://push.example/stale"},
		{ID: 2, Endpoint: "https://push.example/fresh"},
	}}
	n := NewDoseNotifier(sender, subs, slog.New(slog.DiscardHandler))

	n.NotifyDoses(1, testDoses())

	if len(subs.deleted) != 1 || subs.deleted[0] != "https://push.example/stale" {
		t.Errorf("deleted = %v, want the stale endpoint", subs.deleted)
	}
	if len(sender.sent) != 1 {
		t.Errorf("sent = %d payloads, want 1", len(sender.sent))
	}
}

func TestNotifyDosesOtherSendErrorsDoNotPrune(t *testing.T) {
	sender := &fakeSender{failOn: map[string]error{
		"https://push.example/flaky": errors.New("push service returned 500"),
	}}
	subs := &fakeSubs{subs: []model.PushSubscription{
		{ID: 1, Endpoint: "https://push.example/flaky"},
	}}
	n := NewDoseNotifier(sender, subs, slog.New(slog.DiscardHandler))

	n.NotifyDoses(1, testDoses())

	if len(subs.deleted) != 0 {
		t.Errorf("deleted = %v, want none", subs.deleted)
	}
}

func TestNotifyDosesMultipleMedications(t *testing.T) {
	sender := &fakeSender{}
	subs := &fakeSubs{subs: []model.PushSubscription{{ID: 1, Endpoint: "https://push.example/a"}}}
	n := NewDoseNotifier(sender, subs, slog.New(slog.DiscardHandler))

	at := time.Date(2025, 3, 10, 8, 0, 0, 0, time.Local)
	doses := []alarm.ActiveDose{
		{Medication: model.Medication{ID: 1, Name: "Losartana", Dosage: "50mg"}, ScheduledFor: at},
		{Medication: model.Medication{ID: 2, Name: "Metformina", Dosage: "850mg"}, ScheduledFor: at},
	}
	n.NotifyDoses(1, doses)

	if len(sender.sent) != 1 {
		t.Fatalf("sent = %d payloads, want 1", len(sender.sent))
	}
	if sender.sent[0].Title != "2 medications due" {
		t.Errorf("title = %q", sender.sent[0].Title)
	}
}

func TestNotifyDosesEmptySet(t *testing.T) {
	sender := &fakeSender{}
	subs := &fakeSubs{subs: []model.PushSubscription{{ID: 1, Endpoint: "https://push.example/a"}}}
	n := NewDoseNotifier(sender, subs, slog.New(slog.DiscardHandler))

	n.NotifyDoses(1, nil)

	if len(sender.sent) != 0 {
		t.Errorf("sent = %d payloads, want 0", len(sender.sent))
	}
}

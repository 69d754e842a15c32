package push

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/avelar/famcare/internal/alarm"
	"github.com/avelar/famcare/internal/model"
)

// sender sends one payload to one subscription. Satisfied by *Service.
type sender interface {
	Send(sub *model.PushSubscription, payload Payload) error
}

// subscriptionSource resolves the devices to notify for a profile.
type subscriptionSource interface {
	ListByProfile(profileID int64) ([]model.PushSubscription, error)
	DeleteByEndpoint(endpoint string) error
}

// DoseNotifier delivers dose-due push notifications when the alarm
// scheduler starts ringing. It implements alarm.Notifier.
type DoseNotifier struct {
	sender sender
	subs   subscriptionSource
	logger *slog.Logger
}

func NewDoseNotifier(svc sender, subs subscriptionSource, logger *slog.Logger) *DoseNotifier {
	return &DoseNotifier{
		sender: svc,
		subs:   subs,
		logger: logger.With("component", "push_notifier"),
	}
}

// NotifyDoses sends one notification covering every dose in the firing set.
// Expired subscriptions are pruned; other send failures are logged and
// skipped, push delivery is best-effort alongside the in-app alarm.
func (n *DoseNotifier) NotifyDoses(profileID int64, doses []alarm.ActiveDose) {
	if len(doses) == 0 {
		return
	}

	subs, err := n.subs.ListByProfile(profileID)
	if err != nil {
		n.logger.Error("list subscriptions", "profile_id", profileID, "error", err)
		return
	}
	if len(subs) == 0 {
		return
	}

	payload := dosePayload(doses)
	for i := range subs {
		sub := &subs[i]
		if err := n.sender.Send(sub, payload); err != nil {
			if errors.Is(err, ErrExpired) {
				if err := n.subs.DeleteByEndpoint(sub.Endpoint); err != nil {
					n.logger.Error("prune expired subscription", "endpoint", sub.Endpoint, "error", err)
				}
				continue
			}
			n.logger.Error("send dose notification", "endpoint", sub.Endpoint, "error", err)
		}
	}
}

func dosePayload(doses []alarm.ActiveDose) Payload {
	minute := doses[0].ScheduledFor.Format("15:04")

	if len(doses) == 1 {
		d := doses[0]
		return Payload{
			Title: "Medication due",
			Body:  fmt.Sprintf("%s (%s) scheduled for %s", d.Medication.Name, d.Medication.Dosage, minute),
			URL:   "/alarm",
			Tag:   model.NotifTypeDoseDue,
		}
	}

	names := make([]string, 0, len(doses))
	for _, d := range doses {
		names = append(names, d.Medication.Name)
	}
	return Payload{
		Title: fmt.Sprintf("%d medications due", len(doses)),
		Body:  fmt.Sprintf("%s scheduled for %s", strings.Join(names, ", "), minute),
		URL:   "/alarm",
		Tag:   model.NotifTypeDoseDue,
	}
}

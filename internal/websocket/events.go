package websocket

import (
	"github.com/avelar/famcare/internal/alarm"
	"github.com/avelar/famcare/internal/model"
)

// BroadcastAlarm pushes the current alarm snapshot to all connected
// devices. Sent on every state transition: ring, confirm, snooze, mute,
// panic pause.
func (h *Hub) BroadcastAlarm(snap alarm.Snapshot) {
	meds := make([]map[string]any, 0, len(snap.ActiveDoses))
	for _, d := range snap.ActiveDoses {
		meds = append(meds, map[string]any{
			"medication_id": d.Medication.ID,
			"schedule_id":   d.Schedule.ID,
			"name":          d.Medication.Name,
			"dosage":        d.Medication.Dosage,
			"scheduled_for": d.ScheduledFor,
		})
	}

	h.Broadcast(NewMessage("alarm", "changed", 0, map[string]any{
		"state":         string(snap.State),
		"muted":         snap.Muted,
		"panic_active":  snap.PanicActive,
		"audio_playing": snap.AudioPlaying,
		"doses":         meds,
	}))
}

// BroadcastPanic pushes a panic alert state change. Satisfies
// panicalert.Broadcaster.
func (h *Hub) BroadcastPanic(alert *model.PanicAlert) {
	action := "triggered"
	if alert.Status == model.PanicResolved {
		action = "resolved"
	}
	h.Broadcast(NewMessage("panic_alert", action, alert.ID, map[string]any{
		"profile_id": alert.ProfileID,
		"status":     alert.Status,
	}))
}

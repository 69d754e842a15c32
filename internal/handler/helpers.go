package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/avelar/famcare/internal/websocket"
)

// alarmRefresher lets handlers push data mutations into the alarm
// scheduler so the next evaluation sees current data. Satisfied by
// *alarm.Scheduler.
type alarmRefresher interface {
	Refresh() error
}

// broadcaster fans change messages out to connected devices. Satisfied by
// *websocket.Hub.
type broadcaster interface {
	Broadcast(msg websocket.Message)
}

func parseIDParam(r *http.Request) (int64, error) {
	idStr := r.PathValue("id")
	return strconv.ParseInt(idStr, 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

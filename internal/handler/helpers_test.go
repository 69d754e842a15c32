package handler

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/avelar/famcare/internal/auth"
	"github.com/avelar/famcare/internal/database"
	"github.com/avelar/famcare/internal/model"
	"github.com/avelar/famcare/internal/store"
	"github.com/avelar/famcare/internal/websocket"
)

// stubRefresher records alarm refresh calls made by handlers.
type stubRefresher struct {
	calls int
}

func (r *stubRefresher) Refresh() error {
	r.calls++
	return nil
}

// stubBroadcaster collects messages handlers would fan out to devices.
type stubBroadcaster struct {
	msgs []websocket.Message
}

func (b *stubBroadcaster) Broadcast(msg websocket.Message) {
	b.msgs = append(b.msgs, msg)
}

func (b *stubBroadcaster) types() []string {
	out := make([]string, 0, len(b.msgs))
	for _, m := range b.msgs {
		out = append(out, m.Type)
	}
	return out
}

func setupHandlerDB(t *testing.T) (*sql.DB, int64, int64) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	u, err := store.NewUserStore(db).Create("ana@example.com", "Ana", "secret123")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	p, err := store.NewProfileStore(db).Create(u.ID, "Vovó Maria", nil, "mother")
	if err != nil {
		t.Fatalf("create profile: %v", err)
	}
	return db, u.ID, p.ID
}

// authedRequest builds a JSON request carrying an authenticated session
// context, the way RequireAuth populates it in production.
func authedRequest(t *testing.T, method, target string, body any, userID, profileID int64) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, target, &buf)
	ctx := auth.WithAuth(req.Context(), auth.AuthContext{
		UserID:    userID,
		ProfileID: profileID,
		Plan:      model.PlanFree,
		SessionID: 1,
	})
	return req.WithContext(ctx)
}

package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/avelar/famcare/internal/alarm"
	"github.com/avelar/famcare/internal/alert"
	"github.com/avelar/famcare/internal/config"
	"github.com/avelar/famcare/internal/handler"
	"github.com/avelar/famcare/internal/middleware"
	"github.com/avelar/famcare/internal/panicalert"
	"github.com/avelar/famcare/internal/push"
	"github.com/avelar/famcare/internal/store"
	ws "github.com/avelar/famcare/internal/websocket"
)

type Server struct {
	db           *sql.DB
	hub          *ws.Hub
	scheduler    *alarm.Scheduler
	panicManager *panicalert.Manager

	authH        *handler.AuthHandler
	profileH     *handler.ProfileHandler
	medicationH  *handler.MedicationHandler
	doseLogH     *handler.DoseLogHandler
	alarmH       *handler.AlarmHandler
	appointmentH *handler.AppointmentHandler
	panicH       *handler.PanicHandler
	pushH        *handler.PushHandler

	sessionStore *store.SessionStore
	userStore    *store.UserStore
	rateLimiter  *middleware.RateLimiter
	logger       *slog.Logger
}

func New(db *sql.DB, cfg *config.Config, snoozeCache *alarm.SnoozeCache, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	userStore := store.NewUserStore(db)
	sessionStore := store.NewSessionStore(db)
	profileStore := store.NewProfileStore(db)
	medicationStore := store.NewMedicationStore(db)
	doseLogStore := store.NewDoseLogStore(db)
	snoozeAuditStore := store.NewSnoozeAuditStore(db)
	appointmentStore := store.NewAppointmentStore(db)
	panicStore := store.NewPanicAlertStore(db)
	pushStore := store.NewPushStore(db)

	// Alarm scheduler over the SQLite-backed data source.
	source := alarm.NewStoreSource(medicationStore, doseLogStore, snoozeAuditStore)
	scheduler := alarm.NewScheduler(source, snoozeCache, logger.With("component", "alarm"))
	scheduler.SetInterval(cfg.AlarmInterval)
	scheduler.SetOnChange(hub.BroadcastAlarm)

	if cfg.AbuseDetectorURL != "" {
		scheduler.SetReporter(alert.NewClient(alert.Config{
			URL:    cfg.AbuseDetectorURL,
			APIKey: cfg.AbuseDetectorKey,
		}, logger))
	}

	// Push delivery is optional; without VAPID keys the app degrades to
	// in-app alerting only.
	var pushSvc *push.Service
	var pushH *handler.PushHandler
	if cfg.VAPIDPublicKey != "" && cfg.VAPIDPrivateKey != "" {
		pushSvc = push.NewService(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey)
		scheduler.SetNotifier(push.NewDoseNotifier(pushSvc, pushStore, logger))
		pushH = handler.NewPushHandler(pushStore, pushSvc, logger.With("component", "push_handler"))
	}

	panicManager := panicalert.NewManager(panicStore, logger)
	panicManager.SetAudioPauser(scheduler)
	panicManager.SetBroadcaster(hub)

	return &Server{
		db:           db,
		hub:          hub,
		scheduler:    scheduler,
		panicManager: panicManager,
		authH:        handler.NewAuthHandler(userStore, sessionStore, profileStore, logger.With("component", "auth")),
		profileH:     handler.NewProfileHandler(profileStore, sessionStore, scheduler, logger.With("component", "profile")),
		medicationH:  handler.NewMedicationHandler(medicationStore, scheduler, hub, logger.With("component", "medication")),
		doseLogH:     handler.NewDoseLogHandler(doseLogStore, medicationStore, scheduler, hub, logger.With("component", "dose_log")),
		alarmH:       handler.NewAlarmHandler(scheduler, logger.With("component", "alarm_handler")),
		appointmentH: handler.NewAppointmentHandler(appointmentStore, hub, logger.With("component", "appointment")),
		panicH:       handler.NewPanicHandler(panicManager, logger.With("component", "panic_handler")),
		pushH:        pushH,
		sessionStore: sessionStore,
		userStore:    userStore,
		rateLimiter:  middleware.NewRateLimiter(),
		logger:       logger,
	}
}

// Scheduler returns the alarm scheduler so main can start and stop it.
func (s *Server) Scheduler() *alarm.Scheduler {
	return s.scheduler
}

// RestoreAlarmBinding rebinds the scheduler to the profile of the most
// recently active session so alarms keep firing after a restart without
// anyone re-selecting a profile.
func (s *Server) RestoreAlarmBinding() error {
	profileID, err := s.sessionStore.LastActiveProfileID()
	if err != nil {
		return err
	}
	if profileID == 0 {
		return nil
	}
	s.logger.Info("restoring alarm binding", "profile_id", profileID)
	return s.scheduler.BindProfile(profileID)
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes
	outerMux.HandleFunc("POST /api/auth/register", s.rateLimitedHandler(s.authH.Register))
	outerMux.HandleFunc("POST /api/auth/login", s.rateLimitedHandler(s.authH.Login))
	outerMux.HandleFunc("GET /health", s.healthHandler)

	// Authenticated routes
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.sessionStore, s.userStore)
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/auth/logout", s.authH.Logout)
	mux.HandleFunc("GET /api/auth/me", s.authH.Me)

	// Profiles
	mux.HandleFunc("GET /api/profiles", s.profileH.List)
	mux.HandleFunc("POST /api/profiles", s.profileH.Create)
	mux.HandleFunc("PUT /api/profiles/{id}", s.profileH.Update)
	mux.HandleFunc("DELETE /api/profiles/{id}", s.profileH.Delete)
	mux.HandleFunc("POST /api/profiles/{id}/select", s.profileH.Select)

	// Everything below needs a selected profile.
	profileMux := http.NewServeMux()

	// Medications
	profileMux.HandleFunc("GET /api/medications", s.medicationH.List)
	profileMux.HandleFunc("POST /api/medications", s.medicationH.Create)
	profileMux.HandleFunc("GET /api/medications/{id}", s.medicationH.Get)
	profileMux.HandleFunc("PUT /api/medications/{id}", s.medicationH.Update)
	profileMux.HandleFunc("DELETE /api/medications/{id}", s.medicationH.Delete)
	profileMux.HandleFunc("POST /api/medications/{id}/deactivate", s.medicationH.Deactivate)
	profileMux.HandleFunc("POST /api/medications/{id}/activate", s.medicationH.Activate)

	// Dose logs
	profileMux.HandleFunc("GET /api/dose-logs", s.doseLogH.List)
	profileMux.HandleFunc("POST /api/dose-logs", s.doseLogH.Create)

	// Alarm
	profileMux.HandleFunc("GET /api/alarm", s.alarmH.Snapshot)
	profileMux.HandleFunc("POST /api/alarm/confirm", s.alarmH.Confirm)
	profileMux.HandleFunc("POST /api/alarm/snooze", s.alarmH.Snooze)
	profileMux.HandleFunc("POST /api/alarm/mute", s.alarmH.Mute)
	profileMux.HandleFunc("POST /api/alarm/unmute", s.alarmH.Unmute)

	// Appointments
	profileMux.HandleFunc("GET /api/appointments", s.appointmentH.List)
	profileMux.HandleFunc("POST /api/appointments", s.appointmentH.Create)
	profileMux.HandleFunc("PUT /api/appointments/{id}", s.appointmentH.Update)
	profileMux.HandleFunc("DELETE /api/appointments/{id}", s.appointmentH.Delete)

	// Panic alerts
	profileMux.HandleFunc("GET /api/panic", s.panicH.Status)
	profileMux.HandleFunc("POST /api/panic", s.panicH.Trigger)
	profileMux.HandleFunc("POST /api/panic/resolve", s.panicH.Resolve)

	mux.Handle("/api/", middleware.RequireProfile(profileMux))

	// Push subscriptions are per user, not per profile.
	if s.pushH != nil {
		mux.HandleFunc("POST /api/push/subscribe", s.pushH.Subscribe)
		mux.HandleFunc("DELETE /api/push/subscriptions/{id}", s.pushH.Unsubscribe)
		mux.HandleFunc("GET /api/push/subscriptions", s.pushH.ListSubscriptions)
		mux.HandleFunc("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)
	}

	// WebSocket
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub))
}

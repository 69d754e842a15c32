package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

// Config holds abuse-detector reporting configuration. An empty URL
// disables reporting entirely.
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// snoozeEvent is the wire format sent to the abuse detector. Every event
// carries a client-generated id so the detector can dedupe retried posts.
type snoozeEvent struct {
	EventID     string  `json:"event_id"`
	ProfileID   int64   `json:"profile_id"`
	ScheduleIDs []int64 `json:"schedule_ids"`
	Minutes     int     `json:"minutes"`
	OccurredAt  string  `json:"occurred_at"`
}

// Client reports snooze activity to a remote abuse-detection endpoint.
// Reporting is advisory: failures are logged and never surface to the
// alarm flow. Implements alarm.AbuseReporter.
type Client struct {
	cfg         Config
	httpClient  *http.Client
	logger      *slog.Logger
	now         func() time.Time
	backoffBase time.Duration
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:         cfg,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		logger:      logger.With("component", "alert_client"),
		now:         time.Now,
		backoffBase: 500 * time.Millisecond,
	}
}

// ReportSnoozes posts one snooze event covering every schedule in the
// batch. Retries transient failures with bounded exponential backoff,
// then gives up.
func (c *Client) ReportSnoozes(profileID int64, scheduleIDs []int64, minutes int) {
	if c.cfg.URL == "" || len(scheduleIDs) == 0 {
		return
	}

	event := snoozeEvent{
		EventID:     uuid.NewString(),
		ProfileID:   profileID,
		ScheduleIDs: scheduleIDs,
		Minutes:     minutes,
		OccurredAt:  c.now().UTC().Format(time.RFC3339),
	}

	body, err := json.Marshal(event)
	if err != nil {
		c.logger.Error("marshal snooze event", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	backoff := retry.WithMaxRetries(3, retry.NewExponential(c.backoffBase))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		return c.post(ctx, body)
	})
	if err != nil {
		c.logger.Error("report snoozes", "event_id", event.EventID, "profile_id", profileID, "error", err)
		return
	}

	c.logger.Debug("snooze event reported", "event_id", event.EventID, "schedules", len(scheduleIDs), "minutes", minutes)
}

func (c *Client) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return retry.RetryableError(fmt.Errorf("post snooze event: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return retry.RetryableError(fmt.Errorf("abuse detector returned %d", resp.StatusCode))
	default:
		return fmt.Errorf("abuse detector returned %d", resp.StatusCode)
	}
}

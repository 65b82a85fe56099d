// Package calendar writes homework due dates into a Google Calendar through
// the Calendar v3 REST API, using an operator-provisioned OAuth token.
package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	defaultAPIBase = "https://www.googleapis.com/calendar/v3"

	// Homework events span one lesson.
	eventDuration = 45 * time.Minute
)

// Config holds the calendar target and the token location.
type Config struct {
	// CalendarID is the target calendar, "primary" for the account default.
	CalendarID string

	// TokenPath is the JSON token file written by the authorization flow.
	TokenPath string

	// Timezone is an IANA name attached to event times, e.g. "Europe/Moscow".
	Timezone string

	// Timeout bounds one API round trip.
	Timeout time.Duration
}

// Client creates events on a single calendar. It is safe for concurrent use;
// token refreshes are serialized.
type Client struct {
	cfg  Config
	http *http.Client

	// apiBase is overridable in tests.
	apiBase string

	mu  sync.Mutex
	tok *storedToken

	logger zerolog.Logger
}

// NewClient builds a Client. The token file is read lazily on first use, so
// construction succeeds even before the operator has authorized.
func NewClient(cfg Config) *Client {
	if cfg.CalendarID == "" {
		cfg.CalendarID = "primary"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		apiBase: defaultAPIBase,
		logger:  log.With().Str("component", "calendar").Logger(),
	}
}

// accessToken returns a valid bearer token, loading and refreshing the stored
// token as needed.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tok == nil {
		tok, err := loadToken(c.cfg.TokenPath)
		if err != nil {
			return "", err
		}
		c.tok = tok
	}
	if c.tok.valid() {
		return c.tok.AccessToken, nil
	}

	if err := refreshToken(ctx, c.http, c.tok); err != nil {
		return "", err
	}
	if err := saveToken(c.cfg.TokenPath, c.tok); err != nil {
		c.logger.Warn().Err(err).Msg("failed to persist refreshed token")
	}
	return c.tok.AccessToken, nil
}

type eventTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone,omitempty"`
}

type eventReminder struct {
	Method  string `json:"method"`
	Minutes int    `json:"minutes"`
}

type eventBody struct {
	Summary     string    `json:"summary"`
	Description string    `json:"description"`
	Start       eventTime `json:"start"`
	End         eventTime `json:"end"`
	Reminders   struct {
		UseDefault bool            `json:"useDefault"`
		Overrides  []eventReminder `json:"overrides"`
	} `json:"reminders"`
	ColorID string `json:"colorId"`
}

// CreateEvent inserts a homework event starting at the lesson time and
// returns the event's web link. Reminders fire one hour and one day ahead.
func (c *Client) CreateEvent(ctx context.Context, subject, task string, start time.Time) (string, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return "", err
	}

	body := eventBody{
		Summary:     fmt.Sprintf("📚 %s: %s", subject, task),
		Description: fmt.Sprintf("Предмет: %s\nЗадание: %s", subject, task),
		Start:       eventTime{DateTime: start.Format(time.RFC3339), TimeZone: c.cfg.Timezone},
		End:         eventTime{DateTime: start.Add(eventDuration).Format(time.RFC3339), TimeZone: c.cfg.Timezone},
		ColorID:     "9",
	}
	body.Reminders.UseDefault = false
	body.Reminders.Overrides = []eventReminder{
		{Method: "popup", Minutes: 60},
		{Method: "popup", Minutes: 1440},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	endpoint := fmt.Sprintf("%s/calendars/%s/events", c.apiBase, url.PathEscape(c.cfg.CalendarID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("insert event: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", fmt.Errorf("%w: calendar API status %d", ErrNotAuthorized, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("calendar API status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var created struct {
		HTMLLink string `json:"htmlLink"`
	}
	if err := json.Unmarshal(data, &created); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	c.logger.Info().
		Str("subject", subject).
		Time("start", start).
		Msg("calendar event created")
	return created.HTMLLink, nil
}

// Package google implements the calendar gateway against the Google
// Calendar v3 REST API.
package google

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/oauth2"

	"github.com/qnz18/qzwhatnext/internal/calendar/application"
)

const (
	defaultBaseURL = "https://www.googleapis.com/calendar/v3"
	requestTimeout = 10 * time.Second
	maxAttempts    = 3
	retryBaseDelay = 200 * time.Millisecond
	listPageSize   = 250
)

const listFields = "items(id,etag,status,summary,start,end,updated,extendedProperties/private),nextPageToken"

// tokenSourceProvider yields a per-user OAuth token source.
type tokenSourceProvider interface {
	TokenSource(ctx context.Context, userID uuid.UUID) (oauth2.TokenSource, error)
}

// Client talks to the Google Calendar API with the user's stored grant.
// Requests run through a shared circuit breaker; 5xx and 429 responses
// are retried with jittered backoff before surfacing as transient.
type Client struct {
	oauth      tokenSourceProvider
	baseURL    string
	calendarID string
	breaker    *gobreaker.CircuitBreaker[*apiResponse]
	logger     *slog.Logger
}

func NewClient(oauth tokenSourceProvider, calendarID string, logger *slog.Logger) *Client {
	return NewClientWithBaseURL(oauth, calendarID, logger, defaultBaseURL)
}

// NewClientWithBaseURL exists for tests that point the client at a local
// fake server.
func NewClientWithBaseURL(oauth tokenSourceProvider, calendarID string, logger *slog.Logger, baseURL string) *Client {
	if calendarID == "" {
		calendarID = "primary"
	}
	if logger == nil {
		logger = slog.Default()
	}
	breaker := gobreaker.NewCircuitBreaker[*apiResponse](gobreaker.Settings{
		Name:    "google-calendar",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Client{
		oauth:      oauth,
		baseURL:    baseURL,
		calendarID: calendarID,
		breaker:    breaker,
		logger:     logger,
	}
}

// oauthTransport injects the bearer token into every request.
type oauthTransport struct {
	base   http.RoundTripper
	source oauth2.TokenSource
}

func (t *oauthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	tok, err := t.source.Token()
	if err != nil {
		return nil, err
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	return t.base.RoundTrip(clone)
}

func (c *Client) GetEvent(ctx context.Context, userID uuid.UUID, eventID string) (*application.Event, error) {
	endpoint := fmt.Sprintf("%s/calendars/%s/events/%s",
		c.baseURL, url.PathEscape(c.calendarID), url.PathEscape(eventID))

	resp, err := c.do(ctx, userID, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	var res eventResource
	if err := json.Unmarshal(resp.body, &res); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	return decodeEvent(res)
}

func (c *Client) ListEvents(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]application.Event, error) {
	base := fmt.Sprintf("%s/calendars/%s/events", c.baseURL, url.PathEscape(c.calendarID))

	var out []application.Event
	pageToken := ""
	for {
		query := url.Values{}
		query.Set("timeMin", from.UTC().Format(time.RFC3339))
		query.Set("timeMax", to.UTC().Format(time.RFC3339))
		query.Set("singleEvents", "true")
		query.Set("orderBy", "startTime")
		query.Set("maxResults", strconv.Itoa(listPageSize))
		query.Set("fields", listFields)
		if pageToken != "" {
			query.Set("pageToken", pageToken)
		}

		resp, err := c.do(ctx, userID, http.MethodGet, base+"?"+query.Encode(), nil)
		if err != nil {
			return nil, err
		}

		var page struct {
			Items         []eventResource `json:"items"`
			NextPageToken string          `json:"nextPageToken"`
		}
		if err := json.Unmarshal(resp.body, &page); err != nil {
			return nil, fmt.Errorf("failed to decode event list: %w", err)
		}
		for _, res := range page.Items {
			ev, err := decodeEvent(res)
			if err != nil {
				c.logger.Warn("skipping undecodable event",
					slog.String("event_id", res.ID),
					slog.String("error", err.Error()))
				continue
			}
			out = append(out, *ev)
		}

		pageToken = page.NextPageToken
		if pageToken == "" {
			return out, nil
		}
	}
}

func (c *Client) InsertEvent(ctx context.Context, userID uuid.UUID, draft application.EventDraft) (*application.Event, error) {
	endpoint := fmt.Sprintf("%s/calendars/%s/events", c.baseURL, url.PathEscape(c.calendarID))

	resp, err := c.do(ctx, userID, http.MethodPost, endpoint, encodeDraft(draft))
	if err != nil {
		return nil, err
	}
	var res eventResource
	if err := json.Unmarshal(resp.body, &res); err != nil {
		return nil, fmt.Errorf("failed to decode created event: %w", err)
	}
	return decodeEvent(res)
}

func (c *Client) PatchEvent(ctx context.Context, userID uuid.UUID, eventID string, draft application.EventDraft) (*application.Event, error) {
	endpoint := fmt.Sprintf("%s/calendars/%s/events/%s",
		c.baseURL, url.PathEscape(c.calendarID), url.PathEscape(eventID))

	resp, err := c.do(ctx, userID, http.MethodPatch, endpoint, encodeDraft(draft))
	if err != nil {
		return nil, err
	}
	var res eventResource
	if err := json.Unmarshal(resp.body, &res); err != nil {
		return nil, fmt.Errorf("failed to decode patched event: %w", err)
	}
	return decodeEvent(res)
}

func (c *Client) DeleteEvent(ctx context.Context, userID uuid.UUID, eventID string) error {
	endpoint := fmt.Sprintf("%s/calendars/%s/events/%s",
		c.baseURL, url.PathEscape(c.calendarID), url.PathEscape(eventID))

	_, err := c.do(ctx, userID, http.MethodDelete, endpoint, nil)
	return err
}

func (c *Client) FreeBusy(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]application.BusyInterval, error) {
	payload := map[string]any{
		"timeMin": from.UTC().Format(time.RFC3339),
		"timeMax": to.UTC().Format(time.RFC3339),
		"items":   []map[string]string{{"id": c.calendarID}},
	}
	resp, err := c.do(ctx, userID, http.MethodPost, c.baseURL+"/freeBusy", payload)
	if err != nil {
		return nil, err
	}

	var res struct {
		Calendars map[string]struct {
			Busy []struct {
				Start string `json:"start"`
				End   string `json:"end"`
			} `json:"busy"`
		} `json:"calendars"`
	}
	if err := json.Unmarshal(resp.body, &res); err != nil {
		return nil, fmt.Errorf("failed to decode freebusy response: %w", err)
	}

	var out []application.BusyInterval
	for _, cal := range res.Calendars {
		for _, b := range cal.Busy {
			start, err := time.Parse(time.RFC3339, b.Start)
			if err != nil {
				continue
			}
			end, err := time.Parse(time.RFC3339, b.End)
			if err != nil {
				continue
			}
			out = append(out, application.BusyInterval{Start: start.UTC(), End: end.UTC()})
		}
	}
	return out, nil
}

func (c *Client) Timezone(ctx context.Context, userID uuid.UUID) (string, error) {
	endpoint := fmt.Sprintf("%s/calendars/%s", c.baseURL, url.PathEscape(c.calendarID))

	resp, err := c.do(ctx, userID, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	var res struct {
		TimeZone string `json:"timeZone"`
	}
	if err := json.Unmarshal(resp.body, &res); err != nil {
		return "", fmt.Errorf("failed to decode calendar metadata: %w", err)
	}
	return res.TimeZone, nil
}

type apiResponse struct {
	status int
	body   []byte
}

// transientStatusError marks a retryable provider response.
type transientStatusError struct {
	status int
	body   []byte
}

func (e *transientStatusError) Error() string {
	return fmt.Sprintf("calendar api returned %d: %s", e.status, e.body)
}

func (c *Client) do(ctx context.Context, userID uuid.UUID, method, endpoint string, payload any) (*apiResponse, error) {
	source, err := c.oauth.TokenSource(ctx, userID)
	if err != nil {
		return nil, err
	}
	httpClient := &http.Client{
		Timeout:   requestTimeout,
		Transport: &oauthTransport{base: http.DefaultTransport, source: source},
	}

	var body []byte
	if payload != nil {
		if body, err = json.Marshal(payload); err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay<<(attempt-1) + rand.N(100*time.Millisecond)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, err := c.breaker.Execute(func() (*apiResponse, error) {
			return c.roundTrip(ctx, httpClient, method, endpoint, body)
		})
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var transient *transientStatusError
		switch {
		case errors.As(err, &transient):
			c.logger.Warn("retrying calendar request",
				slog.String("method", method),
				slog.Int("status", transient.status),
				slog.Int("attempt", attempt+1))
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return nil, fmt.Errorf("%w: circuit open", application.ErrTransient)
		default:
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %v", application.ErrTransient, lastErr)
}

func (c *Client) roundTrip(ctx context.Context, httpClient *http.Client, method, endpoint string, body []byte) (*apiResponse, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return &apiResponse{status: resp.StatusCode, body: respBody}, nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, application.ErrEventGone
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, &transientStatusError{status: resp.StatusCode, body: respBody}
	default:
		return nil, fmt.Errorf("calendar api returned %d: %s", resp.StatusCode, respBody)
	}
}

type eventResource struct {
	ID                 string              `json:"id,omitempty"`
	Etag               string              `json:"etag,omitempty"`
	Status             string              `json:"status,omitempty"`
	Summary            string              `json:"summary,omitempty"`
	Start              *eventTime          `json:"start,omitempty"`
	End                *eventTime          `json:"end,omitempty"`
	Updated            string              `json:"updated,omitempty"`
	Recurrence         []string            `json:"recurrence,omitempty"`
	ExtendedProperties *extendedProperties `json:"extendedProperties,omitempty"`
}

type eventTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

type extendedProperties struct {
	Private map[string]string `json:"private,omitempty"`
}

func encodeDraft(d application.EventDraft) eventResource {
	res := eventResource{
		Summary:    d.Summary,
		Start:      &eventTime{DateTime: d.Start.UTC().Format(time.RFC3339), TimeZone: "UTC"},
		End:        &eventTime{DateTime: d.End.UTC().Format(time.RFC3339), TimeZone: "UTC"},
		Recurrence: d.Recurrence,
	}
	if len(d.Private) > 0 {
		res.ExtendedProperties = &extendedProperties{Private: d.Private}
	}
	return res
}

func decodeEvent(res eventResource) (*application.Event, error) {
	ev := &application.Event{
		ID:         res.ID,
		Etag:       res.Etag,
		Status:     res.Status,
		Summary:    res.Summary,
		Recurrence: res.Recurrence,
	}
	if res.ExtendedProperties != nil {
		ev.Private = res.ExtendedProperties.Private
	}
	if res.Updated != "" {
		if updated, err := time.Parse(time.RFC3339, res.Updated); err == nil {
			u := updated.UTC()
			ev.Updated = &u
		}
	}

	var err error
	if ev.Start, err = parseEventTime(res.Start); err != nil {
		return nil, fmt.Errorf("invalid event start: %w", err)
	}
	if ev.End, err = parseEventTime(res.End); err != nil {
		return nil, fmt.Errorf("invalid event end: %w", err)
	}
	return ev, nil
}

// parseEventTime accepts both timed and all-day boundaries.
func parseEventTime(t *eventTime) (time.Time, error) {
	if t == nil {
		return time.Time{}, nil
	}
	if t.DateTime != "" {
		parsed, err := time.Parse(time.RFC3339, t.DateTime)
		if err != nil {
			return time.Time{}, err
		}
		return parsed.UTC(), nil
	}
	if t.Date != "" {
		parsed, err := time.Parse("2006-01-02", t.Date)
		if err != nil {
			return time.Time{}, err
		}
		return parsed.UTC(), nil
	}
	return time.Time{}, nil
}

package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/qnz18/qzwhatnext/internal/calendar/application"
)

type staticTokens struct{}

func (staticTokens) TokenSource(context.Context, uuid.UUID) (oauth2.TokenSource, error) {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test-access"}), nil
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClientWithBaseURL(staticTokens{}, "primary", nil, server.URL)
}

func TestClientInsertEvent(t *testing.T) {
	ctx := context.Background()

	var gotAuth string
	var gotBody eventResource
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/calendars/primary/events", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		json.NewEncoder(w).Encode(eventResource{
			ID:      "created-1",
			Etag:    `"v1"`,
			Status:  "confirmed",
			Summary: gotBody.Summary,
			Start:   gotBody.Start,
			End:     gotBody.End,
			Updated: "2026-03-02T09:00:00Z",
		})
	}))

	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	ev, err := client.InsertEvent(ctx, uuid.New(), application.EventDraft{
		Summary: "write report",
		Start:   start,
		End:     start.Add(30 * time.Minute),
		Private: map[string]string{application.MetaManaged: application.ManagedValue},
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer test-access", gotAuth)
	assert.Equal(t, "created-1", ev.ID)
	assert.Equal(t, `"v1"`, ev.Etag)
	assert.Equal(t, start, ev.Start)
	require.NotNil(t, gotBody.ExtendedProperties)
	assert.Equal(t, application.ManagedValue, gotBody.ExtendedProperties.Private[application.MetaManaged])
}

func TestClientGetEventGone(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))

	_, err := client.GetEvent(context.Background(), uuid.New(), "missing")
	assert.ErrorIs(t, err, application.ErrEventGone)
}

func TestClientRetriesServerErrors(t *testing.T) {
	attempts := 0
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			http.Error(w, "backend error", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(eventResource{
			ID:    "evt-1",
			Start: &eventTime{DateTime: "2026-03-02T09:00:00Z"},
			End:   &eventTime{DateTime: "2026-03-02T09:30:00Z"},
		})
	}))

	ev, err := client.GetEvent(context.Background(), uuid.New(), "evt-1")
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, "evt-1", ev.ID)
}

func TestClientExhaustedRetriesAreTransient(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend error", http.StatusServiceUnavailable)
	}))

	_, err := client.GetEvent(context.Background(), uuid.New(), "evt-1")
	assert.ErrorIs(t, err, application.ErrTransient)
}

func TestClientListEventsPaginates(t *testing.T) {
	pages := 0
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("singleEvents"))
		assert.Equal(t, "startTime", r.URL.Query().Get("orderBy"))
		assert.NotEmpty(t, r.URL.Query().Get("timeMin"))

		pages++
		switch r.URL.Query().Get("pageToken") {
		case "":
			json.NewEncoder(w).Encode(map[string]any{
				"items": []eventResource{{
					ID:    "evt-1",
					Start: &eventTime{DateTime: "2026-03-02T09:00:00Z"},
					End:   &eventTime{DateTime: "2026-03-02T10:00:00Z"},
				}},
				"nextPageToken": "page-2",
			})
		case "page-2":
			json.NewEncoder(w).Encode(map[string]any{
				"items": []eventResource{{
					ID:    "evt-2",
					Start: &eventTime{Date: "2026-03-03"},
					End:   &eventTime{Date: "2026-03-04"},
				}},
			})
		default:
			t.Errorf("unexpected page token %q", r.URL.Query().Get("pageToken"))
		}
	}))

	from := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	events, err := client.ListEvents(context.Background(), uuid.New(), from, from.Add(7*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, 2, pages)
	assert.Equal(t, "evt-1", events[0].ID)
	// All-day events come back as midnight-to-midnight UTC.
	assert.Equal(t, time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), events[1].Start)
}

func TestClientTimezone(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/calendars/primary", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{"timeZone": "Europe/Berlin"})
	}))

	tz, err := client.Timezone(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", tz)
}

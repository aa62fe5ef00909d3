package jellyfin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewClient(ClientConfig{
		BaseURL:  srv.URL,
		Token:    "secret-token",
		UserID:   "user-1",
		DeviceID: "device-1",
	}, nil)
	return client, srv
}

func TestItemFetchesChaptersAndUserData(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Users/user-1/Items/item-42", r.URL.Path)
		assert.Contains(t, r.Header.Get("Authorization"), `Token="secret-token"`)
		assert.Contains(t, r.Header.Get("Authorization"), `DeviceId="device-1"`)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Item{
			ID:           "item-42",
			Name:         "Pilot",
			Type:         TypeEpisode,
			RunTimeTicks: 12_000_000_000,
			Chapters: []Chapter{
				{StartPositionTicks: 0, Name: "Opening"},
				{StartPositionTicks: 3_000_000_000, Name: "Part 1"},
			},
			UserData: &UserData{PlaybackPositionTicks: 600_000_000},
		})
	})

	item, err := client.Item(context.Background(), "item-42")
	require.NoError(t, err)
	assert.Equal(t, "Pilot", item.Name)
	assert.True(t, item.IsEpisode())
	assert.Len(t, item.Chapters, 2)
	assert.Equal(t, int64(600_000_000), item.UserData.PlaybackPositionTicks)
}

func TestItemServerError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})

	_, err := client.Item(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestNextUpAbsentIsNotAnError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Shows/NextUp", r.URL.Path)
		assert.Equal(t, "series-7", r.URL.Query().Get("SeriesId"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ItemsResult{Items: []Item{}})
	})

	next, err := client.NextUp(context.Background(), "series-7", "ep-3")
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestNextUpReturnsFirstItem(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ItemsResult{Items: []Item{
			{ID: "ep-4", Type: TypeEpisode, IndexNumber: 4},
		}})
	})

	next, err := client.NextUp(context.Background(), "series-7", "ep-3")
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, "ep-4", next.ID)
}

func TestPlaybackReports(t *testing.T) {
	var paths []string
	var bodies []map[string]any

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		bodies = append(bodies, body)
		w.WriteHeader(http.StatusNoContent)
	})

	ctx := context.Background()
	require.NoError(t, client.ReportPlaybackStart(ctx, "item-1", "sess-1", PlayMethodDirectPlay, 80))
	require.NoError(t, client.ReportPlaybackProgress(ctx, "item-1", "sess-1", 450_000_000))
	require.NoError(t, client.ReportPlaybackStopped(ctx, "item-1", "sess-1", 900_000_000))

	require.Equal(t, []string{
		"/Sessions/Playing",
		"/Sessions/Playing/Progress",
		"/Sessions/Playing/Stopped",
	}, paths)

	assert.Equal(t, "sess-1", bodies[0]["PlaySessionId"])
	assert.Equal(t, PlayMethodDirectPlay, bodies[0]["PlayMethod"])
	assert.Equal(t, float64(450_000_000), bodies[1]["PositionTicks"])
	assert.Equal(t, float64(900_000_000), bodies[2]["PositionTicks"])
}

func TestStreamURL(t *testing.T) {
	client := NewClient(ClientConfig{
		BaseURL:  "https://media.example.org/",
		Token:    "tkn",
		UserID:   "u",
		DeviceID: "d",
	}, nil)

	u := client.StreamURL("item-9")
	assert.True(t, strings.HasPrefix(u, "https://media.example.org/Videos/item-9/stream?"))
	assert.Contains(t, u, "static=true")
	assert.Contains(t, u, "api_key=tkn")
}

func TestSocketURL(t *testing.T) {
	client := NewClient(ClientConfig{
		BaseURL:  "http://media.example.org",
		Token:    "tkn",
		DeviceID: "d",
	}, nil)

	u := client.SocketURL()
	assert.True(t, strings.HasPrefix(u, "ws://media.example.org/socket?"), u)
	assert.Contains(t, u, "deviceId=d")
}

// Package jellyfin is a thin client for the subset of the Jellyfin HTTP API
// the playback core talks to: item details, next-up lookup, stream URLs and
// playback start/progress/stopped reporting.
package jellyfin

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ClientConfig holds connection settings for the media server.
type ClientConfig struct {
	BaseURL    string
	Token      string
	UserID     string
	DeviceID   string
	DeviceName string
	Client     string
	Version    string
	Timeout    time.Duration
}

// Client talks to a Jellyfin-compatible media server.
type Client struct {
	resty   *resty.Client
	baseURL string
	token   string
	userID  string
	device  string
	logger  *slog.Logger
}

// NewClient creates a media-server client. A nil logger falls back to the
// default slog logger.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Client == "" {
		cfg.Client = "fincast"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.DeviceName == "" {
		cfg.DeviceName = "fincast"
	}

	base := strings.TrimRight(cfg.BaseURL, "/")

	auth := fmt.Sprintf(
		`MediaBrowser Client=%q, Device=%q, DeviceId=%q, Version=%q, Token=%q`,
		cfg.Client, cfg.DeviceName, cfg.DeviceID, cfg.Version, cfg.Token,
	)

	rc := resty.New().
		SetBaseURL(base).
		SetTimeout(cfg.Timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		SetHeader("Accept", "application/json").
		SetHeader("Authorization", auth)

	rc.AddRetryCondition(func(r *resty.Response, err error) bool {
		if err != nil {
			return true
		}
		return r.StatusCode() >= 500 || r.StatusCode() == 429
	})

	return &Client{
		resty:   rc,
		baseURL: base,
		token:   cfg.Token,
		userID:  cfg.UserID,
		device:  cfg.DeviceID,
		logger:  logger,
	}
}

// Item fetches full item details, including Chapters and UserData.
func (c *Client) Item(ctx context.Context, itemID string) (*Item, error) {
	var item Item
	resp, err := c.resty.R().
		SetContext(ctx).
		SetResult(&item).
		Get(fmt.Sprintf("/Users/%s/Items/%s", c.userID, itemID))
	if err != nil {
		return nil, fmt.Errorf("fetch item %s: %w", itemID, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch item %s: server returned %s", itemID, resp.Status())
	}
	return &item, nil
}

// NextUp resolves the episode that follows the given one within its series.
// It returns nil without error when the series has no next episode; absence
// is a valid terminal state, not a failure.
func (c *Client) NextUp(ctx context.Context, seriesID, afterItemID string) (*Item, error) {
	var result ItemsResult
	resp, err := c.resty.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"UserId":      c.userID,
			"SeriesId":    seriesID,
			"Limit":       "1",
			"Fields":      "UserData,Chapters",
			"StartItemId": afterItemID,
		}).
		SetResult(&result).
		Get("/Shows/NextUp")
	if err != nil {
		return nil, fmt.Errorf("fetch next up for %s: %w", seriesID, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch next up for %s: server returned %s", seriesID, resp.Status())
	}
	if len(result.Items) == 0 {
		return nil, nil
	}
	next := result.Items[0]
	return &next, nil
}

// Search queries the user's library for playable items matching a term.
func (c *Client) Search(ctx context.Context, term string, limit int) ([]Item, error) {
	if limit <= 0 {
		limit = 25
	}
	var result ItemsResult
	resp, err := c.resty.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"searchTerm":       term,
			"IncludeItemTypes": "Movie,Episode",
			"Recursive":        "true",
			"Limit":            fmt.Sprintf("%d", limit),
			"Fields":           "UserData",
		}).
		SetResult(&result).
		Get(fmt.Sprintf("/Users/%s/Items", c.userID))
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", term, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("search %q: server returned %s", term, resp.Status())
	}
	return result.Items, nil
}

// StreamURL computes the direct-play stream URL for an item.
func (c *Client) StreamURL(itemID string) string {
	q := url.Values{}
	q.Set("static", "true")
	q.Set("api_key", c.token)
	q.Set("deviceId", c.device)
	return fmt.Sprintf("%s/Videos/%s/stream?%s", c.baseURL, itemID, q.Encode())
}

// SocketURL computes the remote-control websocket endpoint.
func (c *Client) SocketURL() string {
	ws := c.baseURL
	switch {
	case strings.HasPrefix(ws, "https://"):
		ws = "wss://" + strings.TrimPrefix(ws, "https://")
	case strings.HasPrefix(ws, "http://"):
		ws = "ws://" + strings.TrimPrefix(ws, "http://")
	}
	q := url.Values{}
	q.Set("api_key", c.token)
	q.Set("deviceId", c.device)
	return fmt.Sprintf("%s/socket?%s", ws, q.Encode())
}

// ReportPlaybackStart tells the server a play session has begun.
func (c *Client) ReportPlaybackStart(ctx context.Context, itemID, sessionID, playMethod string, volume int) error {
	resp, err := c.resty.R().
		SetContext(ctx).
		SetBody(startRequest{
			ItemID:        itemID,
			PlaySessionID: sessionID,
			PlayMethod:    playMethod,
			VolumeLevel:   volume,
			CanSeek:       true,
		}).
		Post("/Sessions/Playing")
	if err != nil {
		return fmt.Errorf("report playback start: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("report playback start: server returned %s", resp.Status())
	}
	return nil
}

// ReportPlaybackProgress tells the server where playback currently is.
func (c *Client) ReportPlaybackProgress(ctx context.Context, itemID, sessionID string, positionTicks int64) error {
	resp, err := c.resty.R().
		SetContext(ctx).
		SetBody(progressRequest{
			ItemID:        itemID,
			PlaySessionID: sessionID,
			PositionTicks: positionTicks,
		}).
		Post("/Sessions/Playing/Progress")
	if err != nil {
		return fmt.Errorf("report playback progress: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("report playback progress: server returned %s", resp.Status())
	}
	return nil
}

// ReportPlaybackStopped tells the server a play session ended at the given
// position. The server pairs this with the start report to compute watch
// statistics, so every session must send it exactly once.
func (c *Client) ReportPlaybackStopped(ctx context.Context, itemID, sessionID string, positionTicks int64) error {
	resp, err := c.resty.R().
		SetContext(ctx).
		SetBody(progressRequest{
			ItemID:        itemID,
			PlaySessionID: sessionID,
			PositionTicks: positionTicks,
		}).
		Post("/Sessions/Playing/Stopped")
	if err != nil {
		return fmt.Errorf("report playback stopped: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("report playback stopped: server returned %s", resp.Status())
	}
	return nil
}

package jellyfin

import "time"

// Item types as reported by the server.
const (
	TypeMovie   = "Movie"
	TypeEpisode = "Episode"
	TypeSeries  = "Series"
)

// Item is the subset of the server's item DTO the playback core needs.
type Item struct {
	ID                string     `json:"Id"`
	Name              string     `json:"Name"`
	Type              string     `json:"Type"`
	SeriesID          string     `json:"SeriesId,omitempty"`
	SeriesName        string     `json:"SeriesName,omitempty"`
	SeasonName        string     `json:"SeasonName,omitempty"`
	IndexNumber       int        `json:"IndexNumber,omitempty"`
	ParentIndexNumber int        `json:"ParentIndexNumber,omitempty"`
	RunTimeTicks      int64      `json:"RunTimeTicks,omitempty"`
	Chapters          []Chapter  `json:"Chapters,omitempty"`
	UserData          *UserData  `json:"UserData,omitempty"`
	MediaSources      []MediaSrc `json:"MediaSources,omitempty"`
}

// IsEpisode reports whether the item is a series episode.
func (i *Item) IsEpisode() bool {
	return i != nil && i.Type == TypeEpisode
}

// Chapter is one chapter marker. Start positions are in server ticks and are
// ordered ascending; the final chapter runs to the end of the item.
type Chapter struct {
	StartPositionTicks int64  `json:"StartPositionTicks"`
	Name               string `json:"Name,omitempty"`
	ImagePath          string `json:"ImagePath,omitempty"`
}

// UserData carries the per-user playback facts for an item.
type UserData struct {
	PlaybackPositionTicks int64      `json:"PlaybackPositionTicks"`
	PlayCount             int        `json:"PlayCount"`
	Played                bool       `json:"Played"`
	LastPlayedDate        *time.Time `json:"LastPlayedDate,omitempty"`
}

// MediaSrc identifies one playable source of an item.
type MediaSrc struct {
	ID        string `json:"Id"`
	Container string `json:"Container,omitempty"`
	Path      string `json:"Path,omitempty"`
}

// ItemsResult is the server's paged item envelope.
type ItemsResult struct {
	Items            []Item `json:"Items"`
	TotalRecordCount int    `json:"TotalRecordCount"`
}

// Play methods reported to the server.
const (
	PlayMethodDirectPlay   = "DirectPlay"
	PlayMethodDirectStream = "DirectStream"
	PlayMethodTranscode    = "Transcode"
)

// startRequest is the body of a playback-started report.
type startRequest struct {
	ItemID        string `json:"ItemId"`
	PlaySessionID string `json:"PlaySessionId"`
	PlayMethod    string `json:"PlayMethod"`
	VolumeLevel   int    `json:"VolumeLevel"`
	CanSeek       bool   `json:"CanSeek"`
}

// progressRequest is the body of a progress or stopped report.
type progressRequest struct {
	ItemID        string `json:"ItemId"`
	PlaySessionID string `json:"PlaySessionId"`
	PositionTicks int64  `json:"PositionTicks"`
	IsPaused      bool   `json:"IsPaused,omitempty"`
}

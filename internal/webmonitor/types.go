package webmonitor

import (
	"fmt"

	"github.com/dj-oyu/ai-wifi-cam/liveview/internal/snapshot"
)

// SnapshotSummary is the gallery entry shape served by /api/snapshots.
type SnapshotSummary struct {
	Ordinal   int    `json:"ordinal"`
	Timestamp string `json:"timestamp"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Filename  string `json:"filename"`
	URL       string `json:"url"`
}

// SnapshotDetail adds the inline image for the modal.
type SnapshotDetail struct {
	SnapshotSummary
	ImageDataURL string `json:"image_data_url"`
}

// SettingsResult is the reply to POST /api/settings.
type SettingsResult struct {
	Sent   bool   `json:"sent"`
	Reason string `json:"reason,omitempty"`
}

// FullscreenResult is the reply to POST /api/fullscreen.
type FullscreenResult struct {
	Changed    bool `json:"changed"`
	Fullscreen bool `json:"fullscreen"`
}

func summarize(s snapshot.Snapshot, _ int) SnapshotSummary {
	return SnapshotSummary{
		Ordinal:   s.Ordinal,
		Timestamp: s.Timestamp,
		Width:     s.Width,
		Height:    s.Height,
		Filename:  s.Filename(),
		URL:       fmt.Sprintf("/api/snapshots/%d", s.Ordinal),
	}
}

func detail(s snapshot.Snapshot) SnapshotDetail {
	return SnapshotDetail{SnapshotSummary: summarize(s, 0), ImageDataURL: s.ImageDataURL}
}

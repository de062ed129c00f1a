package models

import "time"

// Track identifies one discovered source audio file.
type Track struct {
	ID             string         `json:"id"`
	Path           string         `json:"path"`
	Filename       string         `json:"filename"`
	DisplayName    string         `json:"display_name"`
	Artist         *string        `json:"artist,omitempty"`
	Album          *string        `json:"album,omitempty"`
	ProbedDuration *time.Duration `json:"probed_duration,omitempty"`
	FilesizeBytes  int64          `json:"filesize_bytes"`
}

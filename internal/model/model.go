package model

import "time"

// State is the lifecycle state of an artifact at a given instant.
// Only StateDeleted is persisted; Active and Expired are derived.
type State string

const (
	StateActive  State = "active"
	StateExpired State = "expired"
	StateDeleted State = "deleted"
)

// AccessAction names an entry in the access log.
type AccessAction string

const (
	ActionUpload   AccessAction = "upload"
	ActionDownload AccessAction = "download"
	ActionDelete   AccessAction = "delete"
)

// AccessLog is one best-effort audit entry.
type AccessLog struct {
	ArtifactID   string
	Action       AccessAction
	IPAddress    string
	UserAgent    string
	Success      bool
	ErrorMessage string
	CreatedAt    time.Time
}

// Stats aggregates the registry for the stats endpoint and periodic emission.
type Stats struct {
	ActiveFiles    int64      `json:"active_files"`
	DeletedFiles   int64      `json:"deleted_files"`
	TotalFiles     int64      `json:"total_files"`
	TotalSizeBytes int64      `json:"total_size_bytes"`
	AvgDownloads   float64    `json:"avg_downloads"`
	LastUpload     *time.Time `json:"last_upload,omitempty"`
}

package model

import "time"

// Artifact is the metadata record of one uploaded file.
// It carries no database-specific tags; the repository layer maps it to rows.
// StorageKey is never exposed to clients: the ID is the download capability.
type Artifact struct {
	ID             string     `json:"id"`
	StorageKey     string     `json:"-"`
	OriginalName   string     `json:"original_filename"`
	SizeBytes      int64      `json:"file_size"`
	ContentType    string     `json:"mime_type"`
	MaxDownloads   int        `json:"max_downloads"`
	DownloadCount  int        `json:"download_count"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	IPAddress      string     `json:"-"`
	UserAgent      string     `json:"-"`
	IsDeleted      bool       `json:"is_deleted"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// RemainingDownloads never goes below zero.
func (a *Artifact) RemainingDownloads() int {
	if r := a.MaxDownloads - a.DownloadCount; r > 0 {
		return r
	}
	return 0
}

// TimeUntilExpiry returns nil when the artifact has no time-based expiry.
func (a *Artifact) TimeUntilExpiry(now time.Time) *time.Duration {
	if a.ExpiresAt == nil {
		return nil
	}
	d := a.ExpiresAt.Sub(now)
	if d < 0 {
		d = 0
	}
	return &d
}

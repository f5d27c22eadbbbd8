package lifecycle

import (
	"time"

	"shareapi/internal/model"
)

// EvaluateState derives the lifecycle state of a record at now.
// Only Deleted is persisted; Expired is computed.
func EvaluateState(a model.Artifact, now time.Time) model.State {
	if a.IsDeleted {
		return model.StateDeleted
	}
	if a.DownloadCount >= a.MaxDownloads {
		return model.StateExpired
	}
	if a.ExpiresAt != nil && now.After(*a.ExpiresAt) {
		return model.StateExpired
	}
	return model.StateActive
}

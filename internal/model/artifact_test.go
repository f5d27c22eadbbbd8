package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestArtifact_RemainingDownloads(t *testing.T) {
	a := &Artifact{MaxDownloads: 3, DownloadCount: 1}
	assert.Equal(t, 2, a.RemainingDownloads())

	a.DownloadCount = 5
	assert.Equal(t, 0, a.RemainingDownloads())
}

func TestArtifact_TimeUntilExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	a := &Artifact{}
	assert.Nil(t, a.TimeUntilExpiry(now))

	future := now.Add(time.Hour)
	a.ExpiresAt = &future
	d := a.TimeUntilExpiry(now)
	if assert.NotNil(t, d) {
		assert.Equal(t, time.Hour, *d)
	}

	past := now.Add(-time.Hour)
	a.ExpiresAt = &past
	d = a.TimeUntilExpiry(now)
	if assert.NotNil(t, d) {
		assert.Equal(t, time.Duration(0), *d)
	}
}

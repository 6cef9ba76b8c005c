package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"letssora/internal/infra"
	"letssora/internal/storage"
)

func TestBuildWithoutDatabase(t *testing.T) {
	cfg := &infra.Config{
		GenAIBaseURL:       "https://example.test/openai/v1",
		GenAIAPIKey:        "key",
		GenAITokenProvider: "static",
		ImageModel:         "gpt-image-1",
		VideoModel:         "sora-2",
		MediaBackend:       infra.MediaBackendFilesystem,
		StoragePath:        t.TempDir(),
		StorageBaseURL:     "http://localhost:3001/media",
		DefaultOwnerID:     "default",
		UpstreamTimeout:    time.Minute,
		PollInterval:       2 * time.Second,
		PollTimeout:        time.Minute,
		SessionTTL:         30 * time.Minute,
		MaxOwnerSessions:   4,
	}
	s, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer s.Close()

	assert.IsType(t, &storage.FileStore{}, s.Media)
	assert.True(t, s.History.HasMediaStore())
	assert.Equal(t, "https://example.test/openai/v1", s.Client.BaseURL())

	opts := s.LifecycleOptions("alice", nil)
	assert.Equal(t, 2*time.Second, opts.PollInterval)
	assert.Equal(t, time.Minute, opts.MaxPollDuration)
	assert.Equal(t, "alice", opts.OwnerID)
	assert.Equal(t, 30*time.Minute, opts.SessionTTL)
	assert.Equal(t, 4, opts.MaxOwnerSessions)
	deps := s.LifecycleDeps()
	assert.NotNil(t, deps.Images)
	assert.NotNil(t, deps.Videos)
	assert.NotNil(t, deps.Persister)
}

func TestBuildRejectsUnknownMediaBackend(t *testing.T) {
	_, err := Build(context.Background(), &infra.Config{
		GenAIBaseURL: "https://example.test",
		MediaBackend: "ftp",
	}, nil)
	require.Error(t, err)
}

package video

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"letssora/internal/domain"
	"letssora/internal/normalize"
	"letssora/internal/providers/genai"
)

type stubClient struct {
	created     []genai.VideoParams
	createDoc   normalize.Document
	statusDoc   normalize.Document
	statusErr   error
	content     []byte
	contentType string
	contentErr  error
	contentHits int
}

func (s *stubClient) CreateVideo(ctx context.Context, p genai.VideoParams) (normalize.Document, error) {
	s.created = append(s.created, p)
	return s.createDoc, nil
}

func (s *stubClient) GetVideo(ctx context.Context, id string) (normalize.Document, error) {
	return s.statusDoc, s.statusErr
}

func (s *stubClient) VideoContent(ctx context.Context, id string) (*genai.Content, error) {
	s.contentHits++
	if s.contentErr != nil {
		return nil, s.contentErr
	}
	return &genai.Content{Body: io.NopCloser(bytes.NewReader(s.content)), ContentType: s.contentType}, nil
}

func TestSubmitAppliesDefaults(t *testing.T) {
	client := &stubClient{createDoc: normalize.Document{"id": "job-1", "status": "queued"}}
	jobs := NewJobs(client, Options{})

	job, err := jobs.Submit(context.Background(), Request{Prompt: "a red balloon"})
	require.NoError(t, err)
	assert.Equal(t, "job-1", job.ID)
	require.Len(t, client.created, 1)
	assert.Equal(t, "720x1280", client.created[0].Size)
	assert.Equal(t, 4, client.created[0].Seconds)
}

func TestStatusWithLocatorSkipsContentLookup(t *testing.T) {
	client := &stubClient{statusDoc: normalize.Document{"status": "completed", "url": "https://example/v.mp4"}}
	doc, err := NewJobs(client, Options{}).Status(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "https://example/v.mp4", doc["url"])
	assert.Zero(t, client.contentHits)
}

func TestStatusBinaryContentUsesProxyPath(t *testing.T) {
	client := &stubClient{
		statusDoc:   normalize.Document{"id": "job-1", "status": "completed"},
		content:     []byte("mp4"),
		contentType: "video/mp4",
	}
	doc, err := NewJobs(client, Options{}).Status(context.Background(), "job-1")
	require.NoError(t, err)
	res := normalize.Normalize(doc, domain.ModeVideo)
	assert.Equal(t, "/api/video-content/job-1", res.MediaURL)
}

func TestStatusJSONContentMerged(t *testing.T) {
	client := &stubClient{
		statusDoc:   normalize.Document{"id": "job-1", "status": "succeeded"},
		content:     []byte(`{"generations":[{"url":"https://example/gen.mp4"}]}`),
		contentType: "application/json",
	}
	doc, err := NewJobs(client, Options{}).Status(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "https://example/gen.mp4", normalize.Normalize(doc, domain.ModeVideo).MediaURL)
	assert.Equal(t, "job-1", doc.ID())
}

func TestStatusContentLookupFailureKeepsDocument(t *testing.T) {
	client := &stubClient{
		statusDoc:  normalize.Document{"id": "job-1", "status": "completed"},
		contentErr: errors.New("boom"),
	}
	doc, err := NewJobs(client, Options{}).Status(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "completed", doc.Status())
}

func TestStatusInProgressSkipsContentLookup(t *testing.T) {
	client := &stubClient{statusDoc: normalize.Document{"status": "in_progress", "progress": 30}}
	_, err := NewJobs(client, Options{}).Status(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Zero(t, client.contentHits)
}

package video

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"

	"letssora/internal/domain"
	"letssora/internal/infra"
	"letssora/internal/normalize"
	"letssora/internal/providers/genai"
)

// Client is the subset of the upstream API used for video jobs.
type Client interface {
	CreateVideo(ctx context.Context, p genai.VideoParams) (normalize.Document, error)
	GetVideo(ctx context.Context, id string) (normalize.Document, error)
	VideoContent(ctx context.Context, id string) (*genai.Content, error)
}

// Options configures request defaults.
type Options struct {
	DefaultSize    string
	DefaultSeconds int
	// ContentPath maps a job id to the URL clients use to fetch the finished
	// asset through this service.
	ContentPath func(id string) string
	Logger      *infra.Logger
}

// Request is a single video submission.
type Request struct {
	Prompt  string
	Size    string
	Seconds int
}

// Job is the accepted submission. Document is the raw response, which may
// already describe a finished job.
type Job struct {
	ID       string
	Document normalize.Document
}

// Jobs submits and tracks video jobs. It holds no per-job state.
type Jobs struct {
	client         Client
	defaultSize    string
	defaultSeconds int
	contentPath    func(string) string
	logger         *infra.Logger
}

func NewJobs(client Client, opts Options) *Jobs {
	size := strings.TrimSpace(opts.DefaultSize)
	if size == "" {
		size = "720x1280"
	}
	seconds := opts.DefaultSeconds
	if seconds <= 0 {
		seconds = 4
	}
	contentPath := opts.ContentPath
	if contentPath == nil {
		contentPath = func(id string) string { return "/api/video-content/" + url.PathEscape(id) }
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &Jobs{
		client:         client,
		defaultSize:    size,
		defaultSeconds: seconds,
		contentPath:    contentPath,
		logger:         logger,
	}
}

// Submit creates a job. A job id is always returned on success.
func (j *Jobs) Submit(ctx context.Context, req Request) (*Job, error) {
	if j == nil || j.client == nil {
		return nil, errors.New("video: jobs not configured")
	}
	params := genai.VideoParams{
		Prompt:  req.Prompt,
		Size:    strings.TrimSpace(req.Size),
		Seconds: req.Seconds,
	}
	if params.Size == "" {
		params.Size = j.defaultSize
	}
	if params.Seconds <= 0 {
		params.Seconds = j.defaultSeconds
	}
	doc, err := j.client.CreateVideo(ctx, params)
	if err != nil {
		return nil, err
	}
	j.logger.Info().Str("job_id", doc.ID()).Str("status", doc.Status()).Msg("video: job submitted")
	return &Job{ID: doc.ID(), Document: doc}, nil
}

// Poll returns the raw status document of a job.
func (j *Jobs) Poll(ctx context.Context, id string) (normalize.Document, error) {
	return j.client.GetVideo(ctx, id)
}

// Content opens the finished asset. Callers must close the body.
func (j *Jobs) Content(ctx context.Context, id string) (*genai.Content, error) {
	return j.client.VideoContent(ctx, id)
}

// FetchContent reads the finished asset fully.
func (j *Jobs) FetchContent(ctx context.Context, id string) ([]byte, string, error) {
	content, err := j.Content(ctx, id)
	if err != nil {
		return nil, "", err
	}
	defer content.Body.Close()
	data, err := io.ReadAll(content.Body)
	if err != nil {
		return nil, "", err
	}
	return data, content.ContentType, nil
}

// Status polls a job and, when the upstream reports success without a media
// locator, checks the content endpoint: JSON content is merged into the
// document and binary content is referenced through ContentPath.
func (j *Jobs) Status(ctx context.Context, id string) (normalize.Document, error) {
	doc, err := j.Poll(ctx, id)
	if err != nil {
		return nil, err
	}
	norm := normalize.Normalize(doc, domain.ModeVideo)
	if norm.State != normalize.StateSucceeded || norm.HasMedia() {
		return doc, nil
	}

	content, err := j.Content(ctx, id)
	if err != nil {
		j.logger.Warn().Err(err).Str("job_id", id).Msg("video: content lookup failed")
		return doc, nil
	}
	defer content.Body.Close()

	if content.IsJSON() {
		data, err := io.ReadAll(content.Body)
		if err == nil {
			if extra, err := normalize.Decode(data); err == nil {
				return doc.Merge(extra), nil
			}
		}
		j.logger.Warn().Str("job_id", id).Msg("video: content lookup returned unreadable JSON")
		return doc, nil
	}
	return doc.Merge(normalize.Document{
		"video_url":    j.contentPath(id),
		"content_type": content.ContentType,
	}), nil
}

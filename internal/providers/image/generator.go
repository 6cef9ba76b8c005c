package image

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"letssora/internal/domain"
	"letssora/internal/infra"
	"letssora/internal/normalize"
	"letssora/internal/providers/genai"
)

// Client is the subset of the upstream API the generator needs.
type Client interface {
	GenerateImage(ctx context.Context, p genai.ImageParams) (normalize.Document, error)
	EditImage(ctx context.Context, p genai.ImageParams, references [][]byte) (normalize.Document, error)
}

// Options configures request defaults.
type Options struct {
	DefaultSize    string
	DefaultQuality string
	Logger         *infra.Logger
}

// Request is a single image submission. References are ordered; the first is
// the primary image.
type Request struct {
	Prompt     string
	Size       string
	Quality    string
	References [][]byte
}

// Result is always terminal: the image API returns the finished artifact in
// the same call.
type Result struct {
	domain.GenerationResult
	Edited bool
	Raw    normalize.Document
}

// Generator submits image requests, routing to the edit endpoint when
// reference images are present.
type Generator struct {
	client         Client
	defaultSize    string
	defaultQuality string
	logger         *infra.Logger
}

func NewGenerator(client Client, opts Options) *Generator {
	size := strings.TrimSpace(opts.DefaultSize)
	if size == "" {
		size = "1024x1024"
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &Generator{
		client:         client,
		defaultSize:    size,
		defaultQuality: strings.TrimSpace(opts.DefaultQuality),
		logger:         logger,
	}
}

// ErrNoImage is returned when a successful response carries no image.
var ErrNoImage = errors.New("image: response contained no image")

func (g *Generator) Submit(ctx context.Context, req Request) (*Result, error) {
	if g == nil || g.client == nil {
		return nil, errors.New("image: generator not configured")
	}
	params := genai.ImageParams{
		Prompt:  req.Prompt,
		Size:    firstNonEmpty(req.Size, g.defaultSize),
		Quality: firstNonEmpty(req.Quality, g.defaultQuality),
	}

	var (
		doc    normalize.Document
		err    error
		edited = len(req.References) > 0
	)
	if edited {
		doc, err = g.client.EditImage(ctx, params, req.References)
	} else {
		doc, err = g.client.GenerateImage(ctx, params)
	}
	if err != nil {
		return nil, err
	}

	norm := normalize.Normalize(doc, domain.ModeImage)
	switch {
	case norm.State == normalize.StateFailed:
		return nil, &genai.UpstreamError{StatusCode: http.StatusBadGateway, Message: norm.ErrorMessage}
	case !norm.HasMedia():
		return nil, ErrNoImage
	}

	result := &Result{
		GenerationResult: domain.GenerationResult{
			MediaURL:           norm.MediaURL,
			MediaInlinePayload: norm.MediaInlinePayload,
			ContentType:        domain.ModeImage.ContentType(),
			RevisedPrompt:      norm.RevisedPrompt,
		},
		Edited: edited,
		Raw:    doc,
	}
	if len(norm.MediaInlinePayload) > 0 {
		result.ContentType = http.DetectContentType(norm.MediaInlinePayload)
	}
	g.logger.Debug().
		Bool("edited", edited).
		Int("references", len(req.References)).
		Str("size", params.Size).
		Msg("image: generation completed")
	return result, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"letssora/internal/domain"
	"letssora/internal/infra"
	"letssora/internal/infra/credentials"
	"letssora/internal/normalize"
	"letssora/internal/observability"
)

// Options controls how the upstream client is configured.
type Options struct {
	BaseURL    string
	ImageModel string
	VideoModel string
	Tokens     credentials.TokenSource
	HTTPClient *http.Client
	Logger     *infra.Logger
	// TrustedHosts lists extra hosts, besides the BaseURL host, that may
	// receive the bearer token when a download is rejected anonymously.
	TrustedHosts []string
}

// Client speaks the OpenAI-compatible image and video endpoints. It keeps no
// state between calls; a token is requested from the TokenSource before every
// request.
type Client struct {
	baseURL    string
	imageModel string
	videoModel string
	tokens     credentials.TokenSource
	httpClient *http.Client
	logger     *infra.Logger
	authHosts  map[string]struct{}
}

// ImageParams describes one image generation or edit call.
type ImageParams struct {
	Prompt  string
	Size    string
	Quality string
}

// VideoParams describes one video job submission.
type VideoParams struct {
	Prompt  string
	Size    string
	Seconds int
}

// Content is a streamed binary response. Callers must close Body.
type Content struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
}

// IsJSON reports whether the upstream labelled the content as JSON.
func (c *Content) IsJSON() bool {
	return strings.Contains(strings.ToLower(c.ContentType), "application/json")
}

// NewClient constructs a client with sane defaults. Callers may provide a nil
// HTTP client; a reusable one with a generous timeout will be created.
func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("genai: base URL is required")
	}
	if opts.Tokens == nil {
		return nil, errors.New("genai: token source is required")
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	imageModel := opts.ImageModel
	if imageModel == "" {
		imageModel = "gpt-image-1"
	}
	videoModel := opts.VideoModel
	if videoModel == "" {
		videoModel = "sora-2"
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("genai: invalid base URL %q", baseURL)
	}
	authHosts := map[string]struct{}{strings.ToLower(base.Host): {}}
	for _, host := range opts.TrustedHosts {
		if host = strings.ToLower(strings.TrimSpace(host)); host != "" {
			authHosts[host] = struct{}{}
		}
	}
	return &Client{
		baseURL:    baseURL,
		imageModel: imageModel,
		videoModel: videoModel,
		tokens:     opts.Tokens,
		httpClient: client,
		logger:     logger,
		authHosts:  authHosts,
	}, nil
}

func (c *Client) ImageModel() string { return c.imageModel }
func (c *Client) VideoModel() string { return c.videoModel }
func (c *Client) BaseURL() string    { return c.baseURL }

type imageGenerationRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	Size    string `json:"size,omitempty"`
	Quality string `json:"quality,omitempty"`
	N       int    `json:"n"`
}

// GenerateImage calls /images/generations and returns the raw response.
func (c *Client) GenerateImage(ctx context.Context, p ImageParams) (normalize.Document, error) {
	ctx, span := observability.StartSpan(ctx, "genai_submit_image",
		attribute.String(observability.AttrModel, c.imageModel))
	doc, err := c.postJSON(ctx, "/images/generations", imageGenerationRequest{
		Model:   c.imageModel,
		Prompt:  p.Prompt,
		Size:    p.Size,
		Quality: p.Quality,
		N:       1,
	})
	observability.EndSpan(span, err)
	return doc, err
}

// EditImage calls /images/edits with the reference images as multipart parts.
// The first reference is the primary image.
func (c *Client) EditImage(ctx context.Context, p ImageParams, references [][]byte) (normalize.Document, error) {
	if len(references) == 0 {
		return nil, errors.New("genai: edit requires at least one reference image")
	}
	ctx, span := observability.StartSpan(ctx, "genai_edit_image",
		attribute.String(observability.AttrModel, c.imageModel),
		attribute.Int("generation.reference_count", len(references)))

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	fields := [][2]string{
		{"model", c.imageModel},
		{"prompt", p.Prompt},
		{"size", p.Size},
		{"quality", p.Quality},
		{"n", "1"},
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := writer.WriteField(f[0], f[1]); err != nil {
			observability.EndSpan(span, err)
			return nil, fmt.Errorf("genai: build edit form: %w", err)
		}
	}
	for i, ref := range references {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image[]"; filename="reference-%d.png"`, i))
		header.Set("Content-Type", http.DetectContentType(ref))
		part, err := writer.CreatePart(header)
		if err == nil {
			_, err = part.Write(ref)
		}
		if err != nil {
			observability.EndSpan(span, err)
			return nil, fmt.Errorf("genai: build edit form: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		observability.EndSpan(span, err)
		return nil, fmt.Errorf("genai: build edit form: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/images/edits", &body, writer.FormDataContentType())
	if err != nil {
		observability.EndSpan(span, err)
		return nil, err
	}
	doc, err := decodeDocument(resp)
	observability.EndSpan(span, err)
	return doc, err
}

type videoRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	Size    string `json:"size,omitempty"`
	Seconds string `json:"seconds,omitempty"`
}

// CreateVideo submits a video job and returns the raw job document.
func (c *Client) CreateVideo(ctx context.Context, p VideoParams) (normalize.Document, error) {
	ctx, span := observability.StartSpan(ctx, "genai_submit_video",
		attribute.String(observability.AttrModel, c.videoModel))
	req := videoRequest{Model: c.videoModel, Prompt: p.Prompt, Size: p.Size}
	if p.Seconds > 0 {
		req.Seconds = strconv.Itoa(p.Seconds)
	}
	doc, err := c.postJSON(ctx, "/videos", req)
	if err == nil && doc.ID() == "" {
		err = &UpstreamError{StatusCode: http.StatusBadGateway, Message: "video job response did not include an id"}
	}
	observability.EndSpan(span, err)
	return doc, err
}

// GetVideo fetches the current status document of a job.
func (c *Client) GetVideo(ctx context.Context, id string) (normalize.Document, error) {
	ctx, span := observability.StartSpan(ctx, "genai_poll_video",
		attribute.String(observability.AttrJobID, id))
	resp, err := c.do(ctx, http.MethodGet, "/videos/"+url.PathEscape(id), nil, "")
	if err != nil {
		observability.EndSpan(span, err)
		return nil, err
	}
	doc, err := decodeDocument(resp)
	observability.EndSpan(span, err)
	return doc, err
}

// VideoContent opens the finished asset of a job.
func (c *Client) VideoContent(ctx context.Context, id string) (*Content, error) {
	ctx, span := observability.StartSpan(ctx, "genai_video_content",
		attribute.String(observability.AttrJobID, id))
	resp, err := c.do(ctx, http.MethodGet, "/videos/"+url.PathEscape(id)+"/content", nil, "")
	observability.EndSpan(span, err)
	if err != nil {
		return nil, err
	}
	return contentFrom(resp, domain.ModeVideo.ContentType()), nil
}

// Download fetches an arbitrary media URL. The first attempt is anonymous; a
// 401 or 403 is retried once with the upstream bearer token, but only when
// the URL points at the upstream host or a trusted host. Other hosts get the
// rejection back as an *UpstreamError.
func (c *Client) Download(ctx context.Context, rawURL string) (*Content, error) {
	target, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		return nil, &domain.ValidationError{Field: "url", Message: "must be an absolute http(s) URL"}
	}
	ctx, span := observability.StartSpan(ctx, "genai_download", attribute.String("url.host", target.Host))

	resp, err := c.fetch(ctx, target.String(), "")
	if err == nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) && c.trusted(target) {
		drain(resp)
		c.logger.Debug().Int("status", resp.StatusCode).Str("host", target.Host).Msg("genai: download rejected, retrying with auth")
		var token string
		token, err = c.tokens.Token(ctx)
		if err == nil {
			resp, err = c.fetch(ctx, target.String(), token)
		} else {
			err = fmt.Errorf("genai: acquire token: %w", err)
		}
	}
	if err == nil {
		err = checkStatus(resp)
	}
	observability.EndSpan(span, err)
	if err != nil {
		return nil, err
	}
	return contentFrom(resp, domain.ModeVideo.ContentType()), nil
}

func (c *Client) trusted(target *url.URL) bool {
	_, ok := c.authHosts[strings.ToLower(target.Host)]
	return ok
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) (normalize.Document, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("genai: marshal request: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPost, path, bytes.NewReader(body), "application/json")
	if err != nil {
		return nil, err
	}
	return decodeDocument(resp)
}

// do issues an authenticated request and returns the response only for 2xx
// statuses; anything else becomes an *UpstreamError.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	timing := observability.StartTiming(ctx, "upstream", strings.TrimPrefix(path, "/"))
	defer timing.Stop()

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("genai: acquire token: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("genai: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("method", method).Str("path", path).Msg("genai: transport error")
		return nil, &UpstreamError{Message: err.Error(), Err: err}
	}
	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("genai: upstream call")
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) fetch(ctx context.Context, target, token string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("genai: create request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UpstreamError{Message: err.Error(), Err: err}
	}
	return resp, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return newUpstreamError(resp.StatusCode, data)
}

func decodeDocument(resp *http.Response) (normalize.Document, error) {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Message: "read response: " + err.Error(), Err: err}
	}
	doc, err := normalize.Decode(data)
	if err != nil {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Message: "invalid JSON response", Body: string(data), Err: err}
	}
	return doc, nil
}

func contentFrom(resp *http.Response, fallbackType string) *Content {
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = fallbackType
	}
	return &Content{Body: resp.Body, ContentType: contentType, ContentLength: resp.ContentLength}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

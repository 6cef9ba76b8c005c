package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"letssora/internal/domain"
	"letssora/internal/normalize"
	"letssora/internal/providers/genai"
	"letssora/internal/providers/video"
)

type generateVideoRequest struct {
	Prompt          string `json:"prompt"`
	Size            string `json:"size"`
	DurationSeconds int    `json:"durationSeconds"`
}

type saveVideoRequest struct {
	VideoInlinePayload string `json:"videoInlinePayload"`
}

type videoStatusResponse struct {
	ID                 string   `json:"id"`
	Status             string   `json:"status"`
	RawStatus          string   `json:"rawStatus,omitempty"`
	Progress           *float64 `json:"progress,omitempty"`
	MediaURL           string   `json:"mediaUrl,omitempty"`
	MediaInlinePayload []byte   `json:"mediaInlinePayload,omitempty"`
	Error              string   `json:"error,omitempty"`
}

// GenerateVideo submits a video job and returns the upstream job document.
func (a *App) GenerateVideo(w http.ResponseWriter, r *http.Request) {
	var body generateVideoRequest
	if err := decode(w, r, &body); err != nil {
		a.fail(w, r, err, "Failed to generate video")
		return
	}
	req := domain.GenerationRequest{
		Mode:            domain.ModeVideo,
		Prompt:          body.Prompt,
		Size:            body.Size,
		DurationSeconds: body.DurationSeconds,
	}
	if err := req.Validate(); err != nil {
		a.fail(w, r, err, "Failed to generate video")
		return
	}
	job, err := a.Videos.Submit(r.Context(), video.Request{
		Prompt:  req.Prompt,
		Size:    req.Size,
		Seconds: req.DurationSeconds,
	})
	if err != nil {
		a.fail(w, r, err, "Failed to generate video")
		return
	}
	doc := job.Document.Merge(normalize.Document{"id": job.ID})
	a.json(w, http.StatusOK, doc)
}

// VideoStatus reports the normalized state of a job.
func (a *App) VideoStatus(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		a.error(w, http.StatusBadRequest, "Video id is required", "")
		return
	}
	doc, err := a.Videos.Status(r.Context(), id)
	if err != nil {
		a.fail(w, r, err, "Failed to get video status")
		return
	}
	norm := normalize.Normalize(doc, domain.ModeVideo)
	resp := videoStatusResponse{
		ID:                 id,
		Status:             string(norm.State),
		RawStatus:          norm.RawStatus,
		Progress:           norm.Progress,
		MediaURL:           norm.MediaURL,
		MediaInlinePayload: norm.MediaInlinePayload,
	}
	if norm.State == normalize.StateFailed {
		resp.Error = norm.ErrorMessage
	}
	a.json(w, http.StatusOK, resp)
}

// VideoContent streams a finished job's asset without exposing upstream
// credentials to the browser.
func (a *App) VideoContent(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		a.error(w, http.StatusBadRequest, "Video id is required", "")
		return
	}
	content, err := a.Videos.Content(r.Context(), id)
	if err != nil {
		a.fail(w, r, err, "Failed to fetch video content")
		return
	}
	a.stream(w, r, content, "")
}

// SaveVideo turns an inline payload into a downloadable file.
func (a *App) SaveVideo(w http.ResponseWriter, r *http.Request) {
	var body saveVideoRequest
	if err := decode(w, r, &body); err != nil {
		a.fail(w, r, err, "Failed to save video")
		return
	}
	data, err := normalize.DecodeInline(body.VideoInlinePayload)
	if err != nil {
		a.error(w, http.StatusBadRequest, "Video data is required", "videoInlinePayload")
		return
	}
	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", attachment(fmt.Sprintf("video-%d.mp4", a.now().Unix())))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// DownloadVideo proxies a remote media URL to dodge cross-origin restrictions.
func (a *App) DownloadVideo(w http.ResponseWriter, r *http.Request) {
	target := strings.TrimSpace(r.URL.Query().Get("url"))
	if target == "" {
		a.error(w, http.StatusBadRequest, "URL parameter is required", "url")
		return
	}
	content, err := a.Downloader.Download(r.Context(), target)
	if err != nil {
		a.fail(w, r, err, "Failed to download video")
		return
	}
	a.stream(w, r, content, fmt.Sprintf("video-%d.mp4", a.now().Unix()))
}

func (a *App) stream(w http.ResponseWriter, r *http.Request, content *genai.Content, filename string) {
	defer content.Body.Close()
	contentType := content.ContentType
	if contentType == "" {
		contentType = "video/mp4"
	}
	w.Header().Set("Content-Type", contentType)
	if content.ContentLength > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(content.ContentLength, 10))
	}
	if filename != "" {
		w.Header().Set("Content-Disposition", attachment(filename))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, content.Body); err != nil {
		a.log().Warn().Err(err).Str("path", r.URL.Path).Msg("stream interrupted")
	}
}

func attachment(filename string) string {
	return fmt.Sprintf("attachment; filename=%q", filename)
}

package handlers

import (
	"net/http"

	"letssora/internal/domain"
	"letssora/internal/normalize"
	"letssora/internal/providers/image"
)

type generateImageRequest struct {
	Prompt          string   `json:"prompt"`
	Size            string   `json:"size"`
	Quality         string   `json:"quality"`
	ReferenceImages []string `json:"referenceImages"`
}

type refineImageRequest struct {
	Prompt                     string `json:"prompt"`
	PreviousImageInlinePayload string `json:"previousImageInlinePayload"`
	Size                       string `json:"size"`
	Quality                    string `json:"quality"`
}

type imageResponse struct {
	Status string `json:"status"`
	Edited bool   `json:"edited"`
	domain.GenerationResult
}

// GenerateImage creates an image, or edits the supplied reference images when
// present. The first reference is the primary image.
func (a *App) GenerateImage(w http.ResponseWriter, r *http.Request) {
	var body generateImageRequest
	if err := decode(w, r, &body); err != nil {
		a.fail(w, r, err, "Failed to generate image")
		return
	}
	refs, err := decodeReferences(body.ReferenceImages)
	if err != nil {
		a.fail(w, r, err, "Failed to generate image")
		return
	}
	a.submitImage(w, r, domain.GenerationRequest{
		Mode:            domain.ModeImage,
		Prompt:          body.Prompt,
		Size:            body.Size,
		Quality:         body.Quality,
		ReferenceImages: refs,
	}, "Failed to generate image")
}

// RefineImage edits a previously generated image with a new prompt.
func (a *App) RefineImage(w http.ResponseWriter, r *http.Request) {
	var body refineImageRequest
	if err := decode(w, r, &body); err != nil {
		a.fail(w, r, err, "Failed to refine image")
		return
	}
	prev, err := normalize.DecodeInline(body.PreviousImageInlinePayload)
	if err != nil {
		a.fail(w, r, &domain.ValidationError{Field: "previousImageInlinePayload", Message: "Previous image is required"}, "Failed to refine image")
		return
	}
	a.submitImage(w, r, domain.GenerationRequest{
		Mode:            domain.ModeImage,
		Prompt:          body.Prompt,
		Size:            body.Size,
		Quality:         body.Quality,
		ReferenceImages: [][]byte{prev},
	}, "Failed to refine image")
}

func (a *App) submitImage(w http.ResponseWriter, r *http.Request, req domain.GenerationRequest, summary string) {
	if err := req.Validate(); err != nil {
		a.fail(w, r, err, summary)
		return
	}
	res, err := a.Images.Submit(r.Context(), image.Request{
		Prompt:     req.Prompt,
		Size:       req.Size,
		Quality:    req.Quality,
		References: req.ReferenceImages,
	})
	if err != nil {
		a.fail(w, r, err, summary)
		return
	}
	a.json(w, http.StatusOK, imageResponse{
		Status:           "completed",
		Edited:           res.Edited,
		GenerationResult: res.GenerationResult,
	})
}

func decodeReferences(raw []string) ([][]byte, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	refs := make([][]byte, 0, len(raw))
	for _, item := range raw {
		data, err := normalize.DecodeInline(item)
		if err != nil {
			return nil, &domain.ValidationError{Field: "referenceImages", Message: "Reference images must be base64 encoded"}
		}
		refs = append(refs, data)
	}
	return refs, nil
}

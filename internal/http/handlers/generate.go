package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/brimobile1016/VEO3-NEW01/internal/domain"
)

const maxUploadBytes = 32 << 20

type generateParams struct {
	APIKey      string `json:"apiKey"`
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspectRatio"`
	Model       string `json:"model"`
	Resolution  string `json:"outputResolution"`
}

// GenerateImage serves the synchronous still-image path: the provider call
// is not long-running, so the storage-resolved URL is returned inline.
func (a *App) GenerateImage(w http.ResponseWriter, r *http.Request) {
	var params generateParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		a.error(w, http.StatusBadRequest, domain.ErrValidation, "invalid payload")
		return
	}

	req := domain.GenerationRequest{
		Prompt:      params.Prompt,
		AspectRatio: defaultString(params.AspectRatio, a.Config.DefaultAspectRatio),
		Model:       defaultString(params.Model, a.Config.ImageModel),
		Resolution:  defaultString(params.Resolution, a.Config.DefaultResolution),
	}
	job, err := a.Orchestrator.GenerateImage(r.Context(), params.APIKey, req)
	if err != nil {
		a.jobError(w, err)
		return
	}

	a.json(w, http.StatusOK, map[string]string{
		"imageUrl": job.Result.URL,
		"fileName": job.Result.FileName,
	})
}

// GenerateVideo accepts the asynchronous video path and answers with a job
// identifier; completion is observed via the status endpoint.
func (a *App) GenerateVideo(w http.ResponseWriter, r *http.Request) {
	apiKey, req, err := a.decodeVideoRequest(r)
	if err != nil {
		a.error(w, http.StatusBadRequest, domain.ErrValidation, err.Error())
		return
	}

	job, err := a.Orchestrator.SubmitVideo(r.Context(), apiKey, req)
	if err != nil {
		a.jobError(w, err)
		return
	}

	a.json(w, http.StatusAccepted, map[string]string{
		"jobId":  job.ID,
		"status": string(job.Status),
	})
}

// JobStatus exposes the job-status contract: callers can distinguish still
// running, failed and done unambiguously.
func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, err := a.Orchestrator.Status(r.Context(), jobID)
	if err != nil {
		a.notFound(w, "job not found")
		return
	}

	view := map[string]any{
		"jobId":     job.ID,
		"kind":      string(job.Kind),
		"status":    string(job.Status),
		"createdAt": job.CreatedAt.Format(time.RFC3339),
		"updatedAt": job.UpdatedAt.Format(time.RFC3339),
	}
	if job.Result != nil {
		urlField := "videoUrl"
		if job.Kind == domain.JobKindImage {
			urlField = "imageUrl"
		}
		view[urlField] = job.Result.URL
		view["fileName"] = job.Result.FileName
	}
	if job.Error != nil {
		view["error"] = job.Error.Message
		view["errorKind"] = string(job.Error.Kind)
	}
	a.json(w, http.StatusOK, view)
}

func (a *App) decodeVideoRequest(r *http.Request) (string, domain.GenerationRequest, error) {
	var params generateParams
	var req domain.GenerationRequest

	contentType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if strings.HasPrefix(contentType, "multipart/") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return "", req, errInvalidPayload
		}
		params.APIKey = r.FormValue("apiKey")
		params.Prompt = r.FormValue("prompt")
		params.AspectRatio = r.FormValue("aspectRatio")
		params.Model = defaultString(r.FormValue("model"), r.FormValue("veoModel"))

		if file, header, err := r.FormFile("image"); err == nil {
			defer file.Close()
			data, readErr := io.ReadAll(io.LimitReader(file, maxUploadBytes))
			if readErr != nil {
				return "", req, errInvalidPayload
			}
			req.Image = data
			req.ImageMIME = header.Header.Get("Content-Type")
			if req.ImageMIME == "" && len(data) > 0 {
				req.ImageMIME = http.DetectContentType(data)
			}
		}
	} else {
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			return "", req, errInvalidPayload
		}
	}

	req.Prompt = params.Prompt
	req.AspectRatio = defaultString(params.AspectRatio, a.Config.DefaultAspectRatio)
	req.Model = defaultString(params.Model, a.Config.VideoModel)
	return params.APIKey, req, nil
}

var errInvalidPayload = errors.New("invalid payload")

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

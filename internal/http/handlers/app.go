package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"cartoonify/internal/composite"
	"cartoonify/internal/domain"
	"cartoonify/internal/infra"
	"cartoonify/internal/jobs"
	"cartoonify/internal/middleware"
)

// JobService is the orchestrator surface the API drives.
type JobService interface {
	Submit(ctx context.Context, up jobs.Upload) (*domain.Job, error)
	Trigger(ctx context.Context, jobID string) (*domain.Job, error)
	Get(ctx context.Context, jobID string) (*domain.Job, error)
	List(ctx context.Context) ([]*domain.Job, error)
}

// FaceComposer renders a stylized face onto a job's illustration.
type FaceComposer interface {
	Compose(ctx context.Context, jobID string, placement composite.Placement, scale float64) ([]byte, error)
}

// ArtifactReader loads stored artifacts by reference.
type ArtifactReader interface {
	Read(ctx context.Context, key string) ([]byte, error)
}

type App struct {
	Jobs           JobService
	Composer       FaceComposer
	Artifacts      ArtifactReader
	Logger         infra.Logger
	StorageBaseURL string
	MaxUploadBytes int64
}

// NewApp wires the handlers. A zero maxUpload selects 10 MiB.
func NewApp(svc JobService, composer FaceComposer, artifacts ArtifactReader, logger *infra.Logger, storageBaseURL string, maxUpload int64) *App {
	app := &App{
		Jobs:           svc,
		Composer:       composer,
		Artifacts:      artifacts,
		StorageBaseURL: strings.TrimRight(storageBaseURL, "/"),
		MaxUploadBytes: maxUpload,
	}
	if logger != nil {
		app.Logger = logger.With().Str("component", "http").Logger()
	} else {
		app.Logger = zerolog.Nop()
	}
	if app.MaxUploadBytes <= 0 {
		app.MaxUploadBytes = 10 << 20
	}
	return app
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// error writes a localized error body. key is an English message key from
// the catalog in messages.go.
func (a *App) error(w http.ResponseWriter, r *http.Request, status int, code, key string, args ...any) {
	a.json(w, status, errorResponse{Error: a.tr(r, key, args...), Code: code})
}

func (a *App) tr(r *http.Request, key string, args ...any) string {
	return printer(middleware.LocaleFromContext(r.Context())).Sprintf(key, args...)
}

// fail maps an error kind onto a status code and localized message.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, r, http.StatusNotFound, "not_found", msgRequestNotFound)
	case errors.Is(err, domain.ErrInvalidState):
		a.error(w, r, http.StatusBadRequest, "invalid_state", msgInvalidState)
	case errors.Is(err, domain.ErrDecode):
		a.error(w, r, http.StatusUnprocessableEntity, "decode_error", msgUndecodable)
	case errors.Is(err, domain.ErrProcessing):
		a.logError(r, err)
		a.error(w, r, http.StatusServiceUnavailable, "processing_error", msgProcessingFailed)
	default:
		a.logError(r, err)
		a.error(w, r, http.StatusInternalServerError, "internal", msgInternal)
	}
}

func (a *App) logError(r *http.Request, err error) {
	a.Logger.Error().
		Err(err).
		Str("request_id", middleware.RequestIDFromContext(r.Context())).
		Str("path", r.URL.Path).
		Msg("request failed")
}

// artifactURL turns a storage reference into a public URL.
func (a *App) artifactURL(ref string) *string {
	if ref == "" {
		return nil
	}
	url := a.StorageBaseURL + "/" + strings.TrimLeft(ref, "/")
	return &url
}

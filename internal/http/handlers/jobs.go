package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strconv"
	"time"

	"cartoonify/internal/composite"
	"cartoonify/internal/domain"
	"cartoonify/internal/jobs"
	"cartoonify/pkg/zip"

	"github.com/go-chi/chi/v5"
)

type jobResponse struct {
	ID             string           `json:"id"`
	UploadedPhoto  *string          `json:"uploaded_photo"`
	Illustration   *string          `json:"illustration"`
	ResultImage    *string          `json:"result_image"`
	Status         domain.JobStatus `json:"status"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	ErrorMessage   *string          `json:"error_message"`
	FaceConfidence *float64         `json:"face_confidence"`
}

func (a *App) toResponse(job *domain.Job) jobResponse {
	resp := jobResponse{
		ID:             job.ID,
		UploadedPhoto:  a.artifactURL(job.PhotoRef),
		Illustration:   a.artifactURL(job.TemplateRef),
		ResultImage:    a.artifactURL(job.ResultRef),
		Status:         job.Status,
		CreatedAt:      job.CreatedAt,
		UpdatedAt:      job.UpdatedAt,
		FaceConfidence: job.FaceConfidence,
	}
	if job.ErrorMessage != "" {
		msg := job.ErrorMessage
		resp.ErrorMessage = &msg
	}
	return resp
}

type processResponse struct {
	Message   string           `json:"message"`
	RequestID string           `json:"request_id"`
	Status    domain.JobStatus `json:"status"`
}

// multipartOverhead leaves room for boundaries and headers around two files.
const multipartOverhead = 1 << 20

func (a *App) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 2*a.MaxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.error(w, r, http.StatusRequestEntityTooLarge, "too_large", msgPhotoTooLarge, humanSize(a.MaxUploadBytes))
			return
		}
		a.error(w, r, http.StatusBadRequest, "bad_request", msgInvalidForm)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	photo, invalid, err := a.readImagePart(r, "uploaded_photo", msgPhotoTooLarge)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if invalid == nil && photo == nil {
		invalid = &uploadError{status: http.StatusBadRequest, code: "bad_request", key: msgPhotoRequired}
	}
	var illustration []byte
	if invalid == nil {
		illustration, invalid, err = a.readImagePart(r, "illustration", msgIllusTooLarge)
		if err != nil {
			a.fail(w, r, err)
			return
		}
	}
	if invalid != nil {
		if invalid.status == http.StatusRequestEntityTooLarge {
			a.error(w, r, invalid.status, invalid.code, invalid.key, humanSize(a.MaxUploadBytes))
			return
		}
		a.error(w, r, invalid.status, invalid.code, invalid.key)
		return
	}

	job, err := a.Jobs.Submit(r.Context(), jobs.Upload{Photo: photo, Template: illustration})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, a.toResponse(job))
}

type uploadError struct {
	status int
	code   string
	key    string
}

// readImagePart returns the bytes of an optional JPEG or PNG file field.
// Validation failures come back as an uploadError, not an error.
func (a *App) readImagePart(r *http.Request, field, tooLargeKey string) ([]byte, *uploadError, error) {
	files := r.MultipartForm.File[field]
	if len(files) == 0 {
		return nil, nil, nil
	}
	tooLarge := &uploadError{status: http.StatusRequestEntityTooLarge, code: "too_large", key: tooLargeKey}
	fh := files[0]
	if fh.Size > a.MaxUploadBytes {
		return nil, tooLarge, nil
	}
	data, err := readFileHeader(fh, a.MaxUploadBytes)
	if err != nil {
		return nil, nil, err
	}
	if int64(len(data)) > a.MaxUploadBytes {
		return nil, tooLarge, nil
	}
	switch http.DetectContentType(data) {
	case "image/jpeg", "image/png":
		return data, nil, nil
	default:
		return nil, &uploadError{status: http.StatusBadRequest, code: "unsupported_type", key: msgUnsupportedType}, nil
	}
}

func readFileHeader(fh *multipart.FileHeader, limit int64) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read upload %s: %w", fh.Filename, err)
	}
	return data, nil
}

func (a *App) Process(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := a.Jobs.Trigger(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidState) {
			if current, getErr := a.Jobs.Get(r.Context(), id); getErr == nil {
				a.error(w, r, http.StatusBadRequest, "invalid_state", msgAlreadyInState, current.Status)
				return
			}
		}
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, processResponse{
		Message:   a.tr(r, msgProcessingStarted),
		RequestID: job.ID,
		Status:    job.Status,
	})
}

func (a *App) Result(w http.ResponseWriter, r *http.Request) {
	job, err := a.Jobs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, a.toResponse(job))
}

func (a *App) Requests(w http.ResponseWriter, r *http.Request) {
	list, err := a.Jobs.List(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	items := make([]jobResponse, 0, len(list))
	for _, job := range list {
		items = append(items, a.toResponse(job))
	}
	a.json(w, http.StatusOK, items)
}

// ResultArchive bundles the photo, the illustration and the result of a
// completed job into one zip file.
func (a *App) ResultArchive(w http.ResponseWriter, r *http.Request) {
	job, err := a.Jobs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if job.Status != domain.JobStatusCompleted {
		a.error(w, r, http.StatusConflict, "not_ready", msgResultNotReady)
		return
	}
	refs := []struct{ name, ref string }{
		{"photo", job.PhotoRef},
		{"illustration", job.TemplateRef},
		{"result", job.ResultRef},
	}
	var assets []zip.Asset
	for _, item := range refs {
		if item.ref == "" {
			continue
		}
		data, err := a.Artifacts.Read(r.Context(), item.ref)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		assets = append(assets, zip.Asset{
			Filename: item.name + path.Ext(item.ref),
			MIME:     http.DetectContentType(data),
			Data:     data,
			Modified: job.UpdatedAt,
		})
	}
	archive, err := zip.ArchiveAssets(assets)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=request-%s.zip", job.ID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

// Compose returns the stylized face placed on the job's illustration.
// Query parameters: position (center, top, bottom or "x,y") and scale.
func (a *App) Compose(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	q := r.URL.Query()
	placement, err := composite.ParsePlacement(q.Get("position"))
	if err != nil {
		a.error(w, r, http.StatusBadRequest, "bad_request", msgInvalidPosition)
		return
	}
	scale := composite.DefaultScale
	if raw := q.Get("scale"); raw != "" {
		scale, err = strconv.ParseFloat(raw, 64)
		if err != nil || !(scale > 0) || scale > composite.MaxScale {
			a.error(w, r, http.StatusBadRequest, "bad_request", msgInvalidScale)
			return
		}
	}
	if _, err := a.Jobs.Get(r.Context(), id); err != nil {
		a.fail(w, r, err)
		return
	}
	data, err := a.Composer.Compose(r.Context(), id, placement, scale)
	if err != nil {
		if errors.Is(err, jobs.ErrNoFace) {
			a.error(w, r, http.StatusUnprocessableEntity, "no_face", msgNoFace)
			return
		}
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

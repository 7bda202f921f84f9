package domain

import (
	"fmt"
	"strings"
	"time"
)

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// NoFaceMessage is the user-facing failure recorded when detection finds no face.
const NoFaceMessage = "No face detected in the photo. Please upload a clear photo with a visible face."

// ParseJobStatus converts a stored status into a JobStatus, rejecting unknown values.
func ParseJobStatus(s string) (JobStatus, error) {
	switch st := JobStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return st, nil
	default:
		return "", fmt.Errorf("unknown job status %q", s)
	}
}

// Valid reports whether s is one of the four lifecycle states.
func (s JobStatus) Valid() bool {
	_, err := ParseJobStatus(string(s))
	return err == nil
}

// Terminal reports whether no transition may leave s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransition reports whether the lifecycle allows moving from s to next.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusProcessing
	case JobStatusProcessing:
		return next == JobStatusCompleted || next == JobStatusFailed
	default:
		return false
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s JobStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("unknown job status %q", string(s))
	}
	return []byte(s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *JobStatus) UnmarshalText(b []byte) error {
	st, err := ParseJobStatus(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// Job tracks one photo stylization request. Jobs are created pending and only
// move forward through orchestrator-controlled transitions.
type Job struct {
	ID             string    `json:"id"`
	PhotoRef       string    `json:"photo_ref"`
	TemplateRef    string    `json:"template_ref,omitempty"`
	ResultRef      string    `json:"result_ref,omitempty"`
	Status         JobStatus `json:"status"`
	FaceConfidence *float64  `json:"face_confidence,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Clone returns a deep copy so callers never share a record with the store.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	out := *j
	if j.FaceConfidence != nil {
		v := *j.FaceConfidence
		out.FaceConfidence = &v
	}
	return &out
}

// HasTemplate reports whether an illustration template was supplied.
func (j *Job) HasTemplate() bool {
	return j != nil && j.TemplateRef != ""
}

// BoundingBox is a face candidate in pixel coordinates of the source image.
type BoundingBox struct {
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Confidence float64 `json:"confidence"`
}

// Area returns width*height.
func (b BoundingBox) Area() int {
	return b.Width * b.Height
}

// Overlaps reports whether b and o share at least one pixel.
func (b BoundingBox) Overlaps(o BoundingBox) bool {
	return b.X < o.X+o.Width && o.X < b.X+b.Width &&
		b.Y < o.Y+o.Height && o.Y < b.Y+b.Height
}

// NotFoundJob reports a lookup miss for id.
func NotFoundJob(op, id string) error {
	return Errorf(ErrNotFound, op, "job %s not found", id)
}

// InvalidJobState reports that a job's current status forbids the requested
// transition.
func InvalidJobState(op string, current JobStatus) error {
	return Errorf(ErrInvalidState, op, "job is already %s", current)
}

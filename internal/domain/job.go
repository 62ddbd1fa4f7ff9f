package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobKind enumerates supported generation job categories.
type JobKind string

const (
	JobKindImage JobKind = "image"
	JobKindVideo JobKind = "video"
)

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusDone       JobStatus = "done"
	JobStatusError      JobStatus = "error"
)

// Terminal reports whether no further transitions are allowed from the status.
func (s JobStatus) Terminal() bool {
	return s == JobStatusDone || s == JobStatusError
}

// GenerationRequest is the validated, immutable snapshot of caller input.
// The provider credential is deliberately not part of it: the key is passed
// per call and never persisted alongside the job.
type GenerationRequest struct {
	Prompt      string
	AspectRatio string
	Model       string
	Resolution  string
	Image       []byte
	ImageMIME   string
}

// JobResult holds the storage-resolved location of a finished artifact.
type JobResult struct {
	URL      string
	FileName string
}

// JobError records why a job ended in the error state.
type JobError struct {
	Kind    ErrorKind
	Message string
}

// Job is the unit of asynchronous generation work tracked by the registry.
type Job struct {
	ID        string
	Kind      JobKind
	Status    JobStatus
	Request   GenerationRequest
	Result    *JobResult
	Error     *JobError
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewJob creates a pending job with a fresh identifier.
func NewJob(kind JobKind, req GenerationRequest) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    JobStatusPending,
		Request:   req,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// MarkProcessing transitions the job from pending to processing.
func (j *Job) MarkProcessing() error {
	if j.Status != JobStatusPending {
		return fmt.Errorf("job %s: cannot start processing from %q", j.ID, j.Status)
	}
	j.Status = JobStatusProcessing
	j.touch()
	return nil
}

// Succeed transitions the job to done with its result. Exactly one of
// Result/Error is ever populated on a terminal job.
func (j *Job) Succeed(url, fileName string) error {
	if j.Status.Terminal() {
		return fmt.Errorf("job %s: already terminal (%q)", j.ID, j.Status)
	}
	j.Status = JobStatusDone
	j.Result = &JobResult{URL: url, FileName: fileName}
	j.Error = nil
	j.touch()
	return nil
}

// Fail transitions the job to the error state with the given classification.
func (j *Job) Fail(kind ErrorKind, message string) error {
	if j.Status.Terminal() {
		return fmt.Errorf("job %s: already terminal (%q)", j.ID, j.Status)
	}
	j.Status = JobStatusError
	j.Error = &JobError{Kind: kind, Message: message}
	j.Result = nil
	j.touch()
	return nil
}

// Clone returns a deep copy so registry callers never alias shared state.
func (j *Job) Clone() *Job {
	out := *j
	if j.Result != nil {
		r := *j.Result
		out.Result = &r
	}
	if j.Error != nil {
		e := *j.Error
		out.Error = &e
	}
	if len(j.Request.Image) > 0 {
		out.Request.Image = append([]byte(nil), j.Request.Image...)
	}
	return &out
}

func (j *Job) touch() {
	j.UpdatedAt = time.Now().UTC()
}

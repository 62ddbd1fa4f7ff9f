// Package orchestrator owns the long-running generation lifecycle: it submits
// work to the media provider, polls video operations to completion with a
// bounded deadline, persists the resulting artifact through the storage sink
// and exposes job status via the registry.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/brimobile1016/VEO3-NEW01/internal/domain"
	"github.com/brimobile1016/VEO3-NEW01/internal/infra"
	"github.com/brimobile1016/VEO3-NEW01/internal/providers/genai"
	"github.com/brimobile1016/VEO3-NEW01/internal/retry"
	"github.com/brimobile1016/VEO3-NEW01/internal/storage"
)

// Provider is the media-generation boundary consumed by the orchestrator.
// *genai.Client satisfies it; tests substitute fakes.
type Provider interface {
	GenerateImage(ctx context.Context, apiKey string, req genai.ImageRequest) (*genai.Artifact, error)
	StartVideo(ctx context.Context, apiKey string, req genai.VideoRequest) (*genai.Operation, error)
	PollVideo(ctx context.Context, apiKey string, op *genai.Operation) (*genai.Operation, error)
	Download(ctx context.Context, apiKey, uri string) ([]byte, string, error)
}

// Options wires the orchestrator's collaborators and tuning knobs.
type Options struct {
	Registry domain.Registry
	Provider Provider
	Sink     storage.Sink
	Logger   infra.Logger

	// BaseContext bounds all background video runs; cancelling it (process
	// shutdown) resolves in-flight jobs to a terminal error.
	BaseContext context.Context

	// ImageModel is used for the stage-one still when a video request
	// carries no source image.
	ImageModel string

	PollInterval  time.Duration
	PollTimeout   time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

// Orchestrator runs one pipeline per accepted job. All job state lives in the
// registry; the orchestrator never holds a job reference across a suspension
// point.
type Orchestrator struct {
	registry domain.Registry
	provider Provider
	sink     storage.Sink
	logger   infra.Logger

	baseCtx    context.Context
	imageModel string

	pollInterval  time.Duration
	pollTimeout   time.Duration
	retryAttempts int
	retryDelay    time.Duration

	wg sync.WaitGroup
}

// New constructs an orchestrator, applying defaults for unset knobs.
func New(opts Options) *Orchestrator {
	baseCtx := opts.BaseContext
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	imageModel := opts.ImageModel
	if imageModel == "" {
		imageModel = "imagen-4.0-generate-001"
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = 8 * time.Second
	}
	pollTimeout := opts.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = 10 * time.Minute
	}
	retryAttempts := opts.RetryAttempts
	if retryAttempts <= 0 {
		retryAttempts = retry.DefaultAttempts
	}
	retryDelay := opts.RetryDelay
	if retryDelay < 0 {
		retryDelay = retry.DefaultDelay
	}
	return &Orchestrator{
		registry:      opts.Registry,
		provider:      opts.Provider,
		sink:          opts.Sink,
		logger:        opts.Logger,
		baseCtx:       baseCtx,
		imageModel:    imageModel,
		pollInterval:  pollInterval,
		pollTimeout:   pollTimeout,
		retryAttempts: retryAttempts,
		retryDelay:    retryDelay,
	}
}

// GenerateImage runs the synchronous image pipeline: provider call, storage
// write, public URL resolution. The terminal job snapshot is returned; on
// failure the classified error is both recorded on the job and returned.
func (o *Orchestrator) GenerateImage(ctx context.Context, apiKey string, req domain.GenerationRequest) (*domain.Job, error) {
	if err := validate(apiKey, req); err != nil {
		return nil, err
	}

	job := domain.NewJob(domain.JobKindImage, req)
	if err := o.registry.Create(ctx, job); err != nil {
		return nil, domain.WrapError(domain.ErrInternal, "failed to register job", err)
	}

	if err := o.runImage(ctx, job.ID, apiKey, req); err != nil {
		derr := asDomainError(err)
		o.fail(job.ID, derr)
		return o.snapshot(job.ID), derr
	}
	return o.snapshot(job.ID), nil
}

// SubmitVideo validates the request, registers a pending job and starts the
// asynchronous video pipeline. The pending job snapshot is returned
// immediately; progress is observable through Status.
func (o *Orchestrator) SubmitVideo(ctx context.Context, apiKey string, req domain.GenerationRequest) (*domain.Job, error) {
	if err := validate(apiKey, req); err != nil {
		return nil, err
	}

	job := domain.NewJob(domain.JobKindVideo, req)
	if err := o.registry.Create(ctx, job); err != nil {
		return nil, domain.WrapError(domain.ErrInternal, "failed to register job", err)
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.runVideo(job.ID, apiKey, req)
	}()

	return job, nil
}

// Status returns the current job view or domain.ErrNotFound.
func (o *Orchestrator) Status(ctx context.Context, jobID string) (*domain.Job, error) {
	return o.registry.Get(ctx, jobID)
}

// Jobs lists all tracked jobs, for diagnostics.
func (o *Orchestrator) Jobs(ctx context.Context) ([]*domain.Job, error) {
	return o.registry.List(ctx)
}

// Wait blocks until all background video runs have resolved their jobs.
// Cancel the base context first to unblock in-flight polling.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func validate(apiKey string, req domain.GenerationRequest) error {
	if strings.TrimSpace(apiKey) == "" {
		return domain.NewError(domain.ErrValidation, "API key is required")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return domain.NewError(domain.ErrValidation, "prompt is required")
	}
	return nil
}

func (o *Orchestrator) runImage(ctx context.Context, jobID, apiKey string, req domain.GenerationRequest) error {
	if err := o.markProcessing(jobID); err != nil {
		return err
	}

	// Generation calls are billable and never retried.
	artifact, err := o.provider.GenerateImage(ctx, apiKey, genai.ImageRequest{
		Prompt:      req.Prompt,
		Model:       req.Model,
		AspectRatio: req.AspectRatio,
		Resolution:  req.Resolution,
	})
	if err != nil {
		return classify(err, domain.ErrSubmitFailed, "image generation failed")
	}
	if artifact == nil || len(artifact.Data) == 0 {
		return domain.NewError(domain.ErrNoArtifact, "no image was produced, try again")
	}

	fileName := artifactFileName("image", artifact.MIME)
	key := "images/" + fileName
	if err := o.sink.Put(ctx, key, artifact.Data, artifact.MIME); err != nil {
		return domain.WrapError(domain.ErrStorageWrite, "failed to store generated image", err)
	}

	url := o.sink.PublicURL(key)
	return o.succeed(jobID, url, fileName)
}

// runVideo drives a single video job from submission to a terminal state. It
// must always resolve the job: every failure path, including panics and the
// polling deadline, ends in a terminal error.
func (o *Orchestrator) runVideo(jobID, apiKey string, req domain.GenerationRequest) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error().Str("job_id", jobID).Interface("panic", r).Msg("orchestrator: video run panicked")
			o.fail(jobID, domain.NewError(domain.ErrInternal, fmt.Sprintf("internal fault: %v", r)))
		}
	}()

	ctx, cancel := context.WithTimeout(o.baseCtx, o.pollTimeout)
	defer cancel()

	if err := o.processVideo(ctx, jobID, apiKey, req); err != nil {
		derr := asDomainError(err)
		o.logger.Error().Err(err).Str("job_id", jobID).Str("kind", string(derr.Kind)).Msg("orchestrator: video job failed")
		o.fail(jobID, derr)
		return
	}
	o.logger.Info().Str("job_id", jobID).Msg("orchestrator: video job done")
}

func (o *Orchestrator) processVideo(ctx context.Context, jobID, apiKey string, req domain.GenerationRequest) error {
	seed, err := o.resolveSeedImage(ctx, apiKey, req)
	if err != nil {
		return err
	}

	// Submission is billable and never retried.
	op, err := o.provider.StartVideo(ctx, apiKey, genai.VideoRequest{
		Prompt:      req.Prompt,
		Model:       req.Model,
		AspectRatio: req.AspectRatio,
		Image:       seed,
	})
	if err != nil {
		return classify(err, domain.ErrSubmitFailed, "video submission failed")
	}
	if err := o.markProcessing(jobID); err != nil {
		return err
	}

	op, err = o.pollUntilDone(ctx, apiKey, op)
	if err != nil {
		return err
	}
	if op.Video == nil {
		return domain.NewError(domain.ErrNoArtifact, "no video was produced, try again")
	}

	data := op.Video.Data
	mime := op.Video.MIME
	if len(data) == 0 {
		if op.Video.URI == "" {
			return domain.NewError(domain.ErrNoArtifact, "no video was produced, try again")
		}
		data, mime, err = o.downloadArtifact(ctx, apiKey, op.Video.URI)
		if err != nil {
			return err
		}
	}
	if mime == "" {
		mime = "video/mp4"
	}

	fileName := artifactFileName("video", mime)
	key := "videos/" + fileName
	if err := o.sink.Put(ctx, key, data, mime); err != nil {
		return domain.WrapError(domain.ErrStorageWrite, "failed to store generated video", err)
	}

	url := o.sink.PublicURL(key)
	return o.succeed(jobID, url, fileName)
}

// resolveSeedImage returns the caller-supplied source image, or generates a
// still from the prompt to seed the video with. Stage-one failures carry the
// same taxonomy as a direct submission failure.
func (o *Orchestrator) resolveSeedImage(ctx context.Context, apiKey string, req domain.GenerationRequest) (*genai.Artifact, error) {
	if len(req.Image) > 0 {
		return &genai.Artifact{Data: req.Image, MIME: req.ImageMIME}, nil
	}
	artifact, err := o.provider.GenerateImage(ctx, apiKey, genai.ImageRequest{
		Prompt:      req.Prompt,
		Model:       o.imageModel,
		AspectRatio: req.AspectRatio,
	})
	if err != nil {
		return nil, classify(err, domain.ErrSubmitFailed, "video submission failed")
	}
	if artifact == nil || len(artifact.Data) == 0 {
		// Veo accepts text-only prompts; proceed without a seed frame.
		return nil, nil
	}
	return artifact, nil
}

// pollUntilDone polls the operation at a fixed interval until the provider
// reports completion. ctx carries the poll deadline and the shutdown signal,
// so the loop is always bounded.
func (o *Orchestrator) pollUntilDone(ctx context.Context, apiKey string, op *genai.Operation) (*genai.Operation, error) {
	for !op.Done {
		select {
		case <-ctx.Done():
			return nil, domain.WrapError(domain.ErrPollFailed, "video generation did not finish in time", ctx.Err())
		case <-time.After(o.pollInterval):
		}

		next, err := retry.Do(ctx, o.retryAttempts, o.retryDelay, func(ctx context.Context) (*genai.Operation, error) {
			return o.provider.PollVideo(ctx, apiKey, op)
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, domain.WrapError(domain.ErrPollFailed, "video generation did not finish in time", err)
			}
			return nil, classify(err, domain.ErrPollFailed, "checking video progress failed")
		}
		op = next
	}
	return op, nil
}

func (o *Orchestrator) downloadArtifact(ctx context.Context, apiKey, uri string) ([]byte, string, error) {
	type blob struct {
		data []byte
		mime string
	}
	result, err := retry.Do(ctx, o.retryAttempts, o.retryDelay, func(ctx context.Context) (blob, error) {
		data, mime, err := o.provider.Download(ctx, apiKey, uri)
		return blob{data: data, mime: mime}, err
	})
	if err != nil {
		return nil, "", classify(err, domain.ErrPollFailed, "downloading the generated video failed")
	}
	return result.data, result.mime, nil
}

func (o *Orchestrator) markProcessing(jobID string) error {
	_, err := o.registry.Update(o.updateCtx(), jobID, func(j *domain.Job) error {
		return j.MarkProcessing()
	})
	if err != nil {
		return domain.WrapError(domain.ErrInternal, "failed to update job state", err)
	}
	return nil
}

func (o *Orchestrator) succeed(jobID, url, fileName string) error {
	_, err := o.registry.Update(o.updateCtx(), jobID, func(j *domain.Job) error {
		return j.Succeed(url, fileName)
	})
	if err != nil {
		return domain.WrapError(domain.ErrInternal, "failed to record job result", err)
	}
	return nil
}

// fail resolves the job to its terminal error state. It deliberately runs on
// a fresh context: the job context may already be cancelled, and the job must
// never be left in pending/processing.
func (o *Orchestrator) fail(jobID string, derr *domain.Error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := o.registry.Update(ctx, jobID, func(j *domain.Job) error {
		return j.Fail(derr.Kind, derr.Message)
	}); err != nil {
		o.logger.Error().Err(err).Str("job_id", jobID).Msg("orchestrator: failed to record job error")
	}
}

func (o *Orchestrator) updateCtx() context.Context {
	return context.Background()
}

func (o *Orchestrator) snapshot(jobID string) *domain.Job {
	job, err := o.registry.Get(o.updateCtx(), jobID)
	if err != nil {
		return nil
	}
	return job
}

// classify maps a provider error to the job error taxonomy. Credential
// rejections are always distinguished; everything else takes the fallback
// kind with a stable caller-safe message, the raw cause staying wrapped for
// logs only.
func classify(err error, fallback domain.ErrorKind, message string) *domain.Error {
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) && apiErr.InvalidCredential() {
		return domain.WrapError(domain.ErrInvalidCredential, "the provider rejected the API key", err)
	}
	return domain.WrapError(fallback, message, err)
}

func asDomainError(err error) *domain.Error {
	var derr *domain.Error
	if errors.As(err, &derr) {
		return derr
	}
	return domain.WrapError(domain.ErrInternal, "unexpected internal error", err)
}

func artifactFileName(prefix, mime string) string {
	return fmt.Sprintf("generated_%s_%d%s", prefix, time.Now().UnixMilli(), extensionForMIME(mime))
}

func extensionForMIME(mime string) string {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "video/webm":
		return ".webm"
	case "video/mp4":
		return ".mp4"
	case "image/png", "":
		return ".png"
	default:
		if _, subtype, ok := strings.Cut(mime, "/"); ok && subtype != "" {
			return "." + subtype
		}
		return ".bin"
	}
}

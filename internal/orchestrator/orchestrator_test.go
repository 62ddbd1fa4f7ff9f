package orchestrator

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brimobile1016/VEO3-NEW01/internal/domain"
	"github.com/brimobile1016/VEO3-NEW01/internal/providers/genai"
	"github.com/brimobile1016/VEO3-NEW01/internal/registry"
	"github.com/brimobile1016/VEO3-NEW01/internal/storage"
)

type fakeProvider struct {
	mu sync.Mutex

	generateImage func(req genai.ImageRequest) (*genai.Artifact, error)
	startVideo    func(req genai.VideoRequest) (*genai.Operation, error)
	pollVideo     func(op *genai.Operation) (*genai.Operation, error)
	download      func(uri string) ([]byte, string, error)

	imageCalls    int
	startCalls    int
	pollCalls     int
	downloadCalls int
}

func (f *fakeProvider) GenerateImage(ctx context.Context, apiKey string, req genai.ImageRequest) (*genai.Artifact, error) {
	f.mu.Lock()
	f.imageCalls++
	f.mu.Unlock()
	if f.generateImage == nil {
		return &genai.Artifact{Data: []byte("png"), MIME: "image/png"}, nil
	}
	return f.generateImage(req)
}

func (f *fakeProvider) StartVideo(ctx context.Context, apiKey string, req genai.VideoRequest) (*genai.Operation, error) {
	f.mu.Lock()
	f.startCalls++
	f.mu.Unlock()
	if f.startVideo == nil {
		return &genai.Operation{Name: "operations/test"}, nil
	}
	return f.startVideo(req)
}

func (f *fakeProvider) PollVideo(ctx context.Context, apiKey string, op *genai.Operation) (*genai.Operation, error) {
	f.mu.Lock()
	f.pollCalls++
	f.mu.Unlock()
	if f.pollVideo == nil {
		return &genai.Operation{Name: op.Name, Done: true, Video: &genai.Video{Data: []byte("mp4"), MIME: "video/mp4"}}, nil
	}
	return f.pollVideo(op)
}

func (f *fakeProvider) Download(ctx context.Context, apiKey, uri string) ([]byte, string, error) {
	f.mu.Lock()
	f.downloadCalls++
	f.mu.Unlock()
	if f.download == nil {
		return []byte("mp4"), "video/mp4", nil
	}
	return f.download(uri)
}

type fakeSink struct {
	mu     sync.Mutex
	puts   map[string][]byte
	putErr error
}

func newFakeSink() *fakeSink {
	return &fakeSink{puts: map[string][]byte{}}
}

func (s *fakeSink) EnsureBucket(ctx context.Context) error { return nil }

func (s *fakeSink) Put(ctx context.Context, key string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.puts[key] = data
	return nil
}

func (s *fakeSink) PublicURL(key string) string {
	return "https://cdn.example.com/" + key
}

func (s *fakeSink) List(ctx context.Context, prefix string) ([]storage.Object, error) {
	return nil, nil
}

func (s *fakeSink) Remove(ctx context.Context, key string) error { return nil }

func newTestOrchestrator(t *testing.T, provider Provider, sink *fakeSink, reg domain.Registry) *Orchestrator {
	t.Helper()
	return New(Options{
		Registry:      reg,
		Provider:      provider,
		Sink:          sink,
		Logger:        zerolog.New(io.Discard),
		PollInterval:  2 * time.Millisecond,
		PollTimeout:   2 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    0,
	})
}

func waitTerminal(t *testing.T, reg domain.Registry, jobID string) *domain.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := reg.Get(context.Background(), jobID)
		require.NoError(t, err)
		if job.Status.Terminal() {
			return job
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("job did not reach a terminal state")
	return nil
}

// Scenario A: submit succeeds, two polls report in-progress, the third is
// done with an artifact; the job must end done with a non-empty URL.
func TestVideoJobCompletesAfterPolling(t *testing.T) {
	reg := registry.NewMemory()
	sink := newFakeSink()
	polls := 0
	provider := &fakeProvider{
		pollVideo: func(op *genai.Operation) (*genai.Operation, error) {
			polls++
			if polls < 3 {
				return &genai.Operation{Name: op.Name}, nil
			}
			return &genai.Operation{Name: op.Name, Done: true, Video: &genai.Video{URI: "files/video-1"}}, nil
		},
	}
	o := newTestOrchestrator(t, provider, sink, reg)

	job, err := o.SubmitVideo(context.Background(), "key", domain.GenerationRequest{Prompt: "a cat", Model: "veo-3.0-generate-001"})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, job.Status)

	final := waitTerminal(t, reg, job.ID)
	assert.Equal(t, domain.JobStatusDone, final.Status)
	require.NotNil(t, final.Result)
	assert.NotEmpty(t, final.Result.URL)
	assert.True(t, strings.HasPrefix(final.Result.FileName, "generated_video_"))
	assert.Nil(t, final.Error)
	assert.Equal(t, 3, polls)
	assert.Equal(t, 1, provider.downloadCalls)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Len(t, sink.puts, 1)
	for key := range sink.puts {
		assert.True(t, strings.HasPrefix(key, "videos/"))
	}
}

// A video request without a source image first generates a still to seed the
// submission with.
func TestVideoJobSeedsMissingImage(t *testing.T) {
	reg := registry.NewMemory()
	sink := newFakeSink()
	var seeded *genai.Artifact
	provider := &fakeProvider{}
	provider.startVideo = func(req genai.VideoRequest) (*genai.Operation, error) {
		seeded = req.Image
		return &genai.Operation{Name: "operations/test"}, nil
	}
	o := newTestOrchestrator(t, provider, sink, reg)

	job, err := o.SubmitVideo(context.Background(), "key", domain.GenerationRequest{Prompt: "a cat"})
	require.NoError(t, err)
	waitTerminal(t, reg, job.ID)

	assert.Equal(t, 1, provider.imageCalls)
	require.NotNil(t, seeded)
	assert.Equal(t, []byte("png"), seeded.Data)
}

func TestVideoJobUsesCallerImageWithoutStageOne(t *testing.T) {
	reg := registry.NewMemory()
	sink := newFakeSink()
	var seeded *genai.Artifact
	provider := &fakeProvider{}
	provider.startVideo = func(req genai.VideoRequest) (*genai.Operation, error) {
		seeded = req.Image
		return &genai.Operation{Name: "operations/test"}, nil
	}
	o := newTestOrchestrator(t, provider, sink, reg)

	job, err := o.SubmitVideo(context.Background(), "key", domain.GenerationRequest{
		Prompt:    "a cat",
		Image:     []byte("caller-frame"),
		ImageMIME: "image/jpeg",
	})
	require.NoError(t, err)
	waitTerminal(t, reg, job.ID)

	assert.Equal(t, 0, provider.imageCalls)
	require.NotNil(t, seeded)
	assert.Equal(t, []byte("caller-frame"), seeded.Data)
}

// Scenario B: an empty prompt fails validation before any job exists and
// before any provider call is made.
func TestImageEmptyPromptFailsFast(t *testing.T) {
	reg := registry.NewMemory()
	provider := &fakeProvider{}
	o := newTestOrchestrator(t, provider, newFakeSink(), reg)

	_, err := o.GenerateImage(context.Background(), "key", domain.GenerationRequest{Prompt: "  "})
	require.Error(t, err)
	assert.Equal(t, domain.ErrValidation, domain.KindOf(err))
	assert.Equal(t, 0, provider.imageCalls)

	jobs, err := reg.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestMissingAPIKeyFailsFast(t *testing.T) {
	reg := registry.NewMemory()
	o := newTestOrchestrator(t, &fakeProvider{}, newFakeSink(), reg)

	_, err := o.SubmitVideo(context.Background(), "", domain.GenerationRequest{Prompt: "a cat"})
	require.Error(t, err)
	assert.Equal(t, domain.ErrValidation, domain.KindOf(err))

	jobs, err := reg.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

// Scenario C: the provider rejecting the key classifies as invalid_credential,
// distinct from a generic submission failure, and the message says so.
func TestVideoInvalidCredential(t *testing.T) {
	reg := registry.NewMemory()
	provider := &fakeProvider{
		generateImage: func(req genai.ImageRequest) (*genai.Artifact, error) {
			return nil, &genai.APIError{StatusCode: http.StatusBadRequest, Message: "API key not valid. Please pass a valid API key."}
		},
	}
	o := newTestOrchestrator(t, provider, newFakeSink(), reg)

	job, err := o.SubmitVideo(context.Background(), "bad-key", domain.GenerationRequest{Prompt: "a cat"})
	require.NoError(t, err)

	final := waitTerminal(t, reg, job.ID)
	assert.Equal(t, domain.JobStatusError, final.Status)
	require.NotNil(t, final.Error)
	assert.Equal(t, domain.ErrInvalidCredential, final.Error.Kind)
	assert.Contains(t, strings.ToLower(final.Error.Message), "api key")
	assert.Nil(t, final.Result)
	assert.Equal(t, 0, provider.startCalls)
}

// Scenario D: the operation finishes but carries no generated video.
func TestVideoNoArtifactProduced(t *testing.T) {
	reg := registry.NewMemory()
	provider := &fakeProvider{
		pollVideo: func(op *genai.Operation) (*genai.Operation, error) {
			return &genai.Operation{Name: op.Name, Done: true}, nil
		},
	}
	o := newTestOrchestrator(t, provider, newFakeSink(), reg)

	job, err := o.SubmitVideo(context.Background(), "key", domain.GenerationRequest{Prompt: "a cat"})
	require.NoError(t, err)

	final := waitTerminal(t, reg, job.ID)
	assert.Equal(t, domain.JobStatusError, final.Status)
	require.NotNil(t, final.Error)
	assert.Equal(t, domain.ErrNoArtifact, final.Error.Kind)
}

// Scenario E: storage write failure after a successful generation; no partial
// public URL may ever surface.
func TestVideoStorageWriteFailure(t *testing.T) {
	reg := registry.NewMemory()
	sink := newFakeSink()
	sink.putErr = io.ErrClosedPipe
	o := newTestOrchestrator(t, &fakeProvider{}, sink, reg)

	job, err := o.SubmitVideo(context.Background(), "key", domain.GenerationRequest{Prompt: "a cat"})
	require.NoError(t, err)

	final := waitTerminal(t, reg, job.ID)
	assert.Equal(t, domain.JobStatusError, final.Status)
	require.NotNil(t, final.Error)
	assert.Equal(t, domain.ErrStorageWrite, final.Error.Kind)
	assert.Nil(t, final.Result)
}

func TestVideoPollFailuresExhaustRetries(t *testing.T) {
	reg := registry.NewMemory()
	provider := &fakeProvider{
		pollVideo: func(op *genai.Operation) (*genai.Operation, error) {
			return nil, &genai.APIError{StatusCode: http.StatusInternalServerError, Message: "backend error"}
		},
	}
	o := newTestOrchestrator(t, provider, newFakeSink(), reg)

	job, err := o.SubmitVideo(context.Background(), "key", domain.GenerationRequest{Prompt: "a cat"})
	require.NoError(t, err)

	final := waitTerminal(t, reg, job.ID)
	require.NotNil(t, final.Error)
	assert.Equal(t, domain.ErrPollFailed, final.Error.Kind)
	assert.Equal(t, 3, provider.pollCalls)
}

func TestVideoPollDeadlineResolvesJob(t *testing.T) {
	reg := registry.NewMemory()
	provider := &fakeProvider{
		pollVideo: func(op *genai.Operation) (*genai.Operation, error) {
			return &genai.Operation{Name: op.Name}, nil
		},
	}
	o := New(Options{
		Registry:      reg,
		Provider:      provider,
		Sink:          newFakeSink(),
		Logger:        zerolog.New(io.Discard),
		PollInterval:  2 * time.Millisecond,
		PollTimeout:   30 * time.Millisecond,
		RetryAttempts: 1,
	})

	job, err := o.SubmitVideo(context.Background(), "key", domain.GenerationRequest{Prompt: "a cat"})
	require.NoError(t, err)

	final := waitTerminal(t, reg, job.ID)
	assert.Equal(t, domain.JobStatusError, final.Status)
	require.NotNil(t, final.Error)
	assert.Equal(t, domain.ErrPollFailed, final.Error.Kind)
}

func TestShutdownCancelsInflightJobs(t *testing.T) {
	reg := registry.NewMemory()
	baseCtx, cancel := context.WithCancel(context.Background())
	provider := &fakeProvider{
		pollVideo: func(op *genai.Operation) (*genai.Operation, error) {
			return &genai.Operation{Name: op.Name}, nil
		},
	}
	o := New(Options{
		Registry:      reg,
		Provider:      provider,
		Sink:          newFakeSink(),
		Logger:        zerolog.New(io.Discard),
		BaseContext:   baseCtx,
		PollInterval:  2 * time.Millisecond,
		PollTimeout:   time.Minute,
		RetryAttempts: 1,
	})

	job, err := o.SubmitVideo(context.Background(), "key", domain.GenerationRequest{Prompt: "a cat"})
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	cancel()
	o.Wait()

	final, err := reg.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusError, final.Status)
}

func TestImageSyncSuccess(t *testing.T) {
	reg := registry.NewMemory()
	sink := newFakeSink()
	o := newTestOrchestrator(t, &fakeProvider{}, sink, reg)

	job, err := o.GenerateImage(context.Background(), "key", domain.GenerationRequest{Prompt: "a bird", Model: "imagen-4.0-generate-001"})
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, domain.JobStatusDone, job.Status)
	require.NotNil(t, job.Result)
	assert.True(t, strings.HasPrefix(job.Result.URL, "https://cdn.example.com/images/"))
	assert.True(t, strings.HasSuffix(job.Result.FileName, ".png"))
}

func TestImageSyncProviderFailureRecordedAndReturned(t *testing.T) {
	reg := registry.NewMemory()
	provider := &fakeProvider{
		generateImage: func(req genai.ImageRequest) (*genai.Artifact, error) {
			return nil, &genai.APIError{StatusCode: http.StatusServiceUnavailable, Message: "overloaded"}
		},
	}
	o := newTestOrchestrator(t, provider, newFakeSink(), reg)

	job, err := o.GenerateImage(context.Background(), "key", domain.GenerationRequest{Prompt: "a bird"})
	require.Error(t, err)
	assert.Equal(t, domain.ErrSubmitFailed, domain.KindOf(err))
	require.NotNil(t, job)
	assert.Equal(t, domain.JobStatusError, job.Status)
	// Generation calls are never retried.
	assert.Equal(t, 1, provider.imageCalls)
}

func TestStatusUnknownJob(t *testing.T) {
	o := newTestOrchestrator(t, &fakeProvider{}, newFakeSink(), registry.NewMemory())
	_, err := o.Status(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// Package genai is a thin REST client for the Google generative-language API.
// Image generation (Imagen) is a synchronous predict call; video generation
// (Veo) is a long-running operation that the caller submits, polls and
// downloads. Credentials are supplied per call and never stored.
package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/brimobile1016/VEO3-NEW01/internal/infra"
)

// Options controls how the client is configured.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client performs HTTP calls against the generative-language endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

// ImageRequest captures the inputs for a still-image generation.
type ImageRequest struct {
	Prompt      string
	Model       string
	AspectRatio string
	Resolution  string
}

// VideoRequest captures the inputs for a video generation. Image optionally
// seeds the video with a source frame.
type VideoRequest struct {
	Prompt      string
	Model       string
	AspectRatio string
	Image       *Artifact
}

// Artifact is inline media returned by or fed into the API.
type Artifact struct {
	Data []byte
	MIME string
}

// Operation is the handle for a long-running video generation.
type Operation struct {
	Name  string
	Done  bool
	Video *Video
}

// Video points at a finished artifact, either inline or by URI.
type Video struct {
	URI  string
	Data []byte
	MIME string
}

// APIError is the decoded provider error envelope.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("provider status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider status %d", e.StatusCode)
}

// InvalidCredential reports whether the provider rejected the supplied key.
func (e *APIError) InvalidCredential() bool {
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return true
	}
	return strings.Contains(strings.ToLower(e.Message), "api key")
}

type inlineImage struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
	MimeType           string `json:"mimeType,omitempty"`
}

type predictInstance struct {
	Prompt string       `json:"prompt"`
	Image  *inlineImage `json:"image,omitempty"`
}

type predictParameters struct {
	SampleCount     int    `json:"sampleCount,omitempty"`
	AspectRatio     string `json:"aspectRatio,omitempty"`
	SampleImageSize string `json:"sampleImageSize,omitempty"`
}

type predictRequest struct {
	Instances  []predictInstance  `json:"instances"`
	Parameters *predictParameters `json:"parameters,omitempty"`
}

type predictResponse struct {
	Predictions []struct {
		BytesBase64Encoded string `json:"bytesBase64Encoded"`
		MimeType           string `json:"mimeType"`
	} `json:"predictions"`
}

type videoRef struct {
	URI                string `json:"uri"`
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
	MimeType           string `json:"mimeType"`
}

type videoSample struct {
	Video *videoRef `json:"video"`
}

type operationPayload struct {
	Name  string `json:"name"`
	Done  bool   `json:"done"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
	Response *struct {
		GenerateVideoResponse *struct {
			GeneratedSamples []videoSample `json:"generatedSamples"`
		} `json:"generateVideoResponse"`
		GeneratedVideos []videoSample `json:"generatedVideos"`
	} `json:"response,omitempty"`
}

type errorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// NewClient constructs a client with sane defaults. A nil HTTP client gets a
// reusable one with a generous timeout; provider calls can be slow.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	logger := opts.Logger
	if logger == nil {
		discard := infra.Logger(zerolog.New(io.Discard))
		logger = &discard
	}
	return &Client{baseURL: baseURL, httpClient: httpClient, logger: logger}
}

// GenerateImage runs a synchronous Imagen predict call and returns the first
// generated image inline.
func (c *Client) GenerateImage(ctx context.Context, apiKey string, req ImageRequest) (*Artifact, error) {
	payload := predictRequest{
		Instances: []predictInstance{{Prompt: req.Prompt}},
		Parameters: &predictParameters{
			SampleCount:     1,
			AspectRatio:     req.AspectRatio,
			SampleImageSize: req.Resolution,
		},
	}

	var resp predictResponse
	path := fmt.Sprintf("/models/%s:predict", url.PathEscape(req.Model))
	if err := c.invoke(ctx, apiKey, http.MethodPost, path, payload, &resp); err != nil {
		return nil, err
	}
	if len(resp.Predictions) == 0 {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(resp.Predictions[0].BytesBase64Encoded)
	if err != nil {
		return nil, fmt.Errorf("decode image payload: %w", err)
	}
	mime := resp.Predictions[0].MimeType
	if mime == "" {
		mime = "image/png"
	}

	c.logger.Debug().Str("model", req.Model).Int("bytes", len(data)).Msg("genai: image generated")
	return &Artifact{Data: data, MIME: mime}, nil
}

// StartVideo submits a Veo long-running generation and returns its handle.
func (c *Client) StartVideo(ctx context.Context, apiKey string, req VideoRequest) (*Operation, error) {
	instance := predictInstance{Prompt: req.Prompt}
	if req.Image != nil && len(req.Image.Data) > 0 {
		instance.Image = &inlineImage{
			BytesBase64Encoded: base64.StdEncoding.EncodeToString(req.Image.Data),
			MimeType:           req.Image.MIME,
		}
	}
	payload := predictRequest{
		Instances:  []predictInstance{instance},
		Parameters: &predictParameters{SampleCount: 1, AspectRatio: req.AspectRatio},
	}

	var op operationPayload
	path := fmt.Sprintf("/models/%s:predictLongRunning", url.PathEscape(req.Model))
	if err := c.invoke(ctx, apiKey, http.MethodPost, path, payload, &op); err != nil {
		return nil, err
	}
	if op.Name == "" {
		return nil, fmt.Errorf("provider returned no operation handle")
	}

	c.logger.Debug().Str("model", req.Model).Str("operation", op.Name).Msg("genai: video submitted")
	return toOperation(op), nil
}

// PollVideo fetches the current state of a long-running operation. The call
// is a read-only status check and safe to retry.
func (c *Client) PollVideo(ctx context.Context, apiKey string, op *Operation) (*Operation, error) {
	var payload operationPayload
	path := "/" + strings.TrimLeft(op.Name, "/")
	if err := c.invoke(ctx, apiKey, http.MethodGet, path, nil, &payload); err != nil {
		return nil, err
	}
	if payload.Error != nil {
		return nil, &APIError{StatusCode: payload.Error.Code, Message: payload.Error.Message}
	}
	return toOperation(payload), nil
}

// Download fetches artifact bytes from a provider-returned URI.
func (c *Client) Download(ctx context.Context, apiKey, uri string) ([]byte, string, error) {
	target := uri
	if !strings.HasPrefix(uri, "http://") && !strings.HasPrefix(uri, "https://") {
		target = c.baseURL + "/" + strings.TrimLeft(uri, "/")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create download request: %w", err)
	}
	req.Header.Set("x-goog-api-key", apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download artifact: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, "", decodeAPIError(resp)
	}
	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read artifact: %w", err)
	}
	return blob, resp.Header.Get("Content-Type"), nil
}

func (c *Client) invoke(ctx context.Context, apiKey, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("invoke provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode provider response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var envelope errorEnvelope
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Message = envelope.Error.Message
		apiErr.Status = envelope.Error.Status
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(data))
	return apiErr
}

func toOperation(payload operationPayload) *Operation {
	op := &Operation{Name: payload.Name, Done: payload.Done}
	if payload.Response == nil {
		return op
	}
	samples := payload.Response.GeneratedVideos
	if len(samples) == 0 && payload.Response.GenerateVideoResponse != nil {
		samples = payload.Response.GenerateVideoResponse.GeneratedSamples
	}
	for _, sample := range samples {
		if sample.Video == nil {
			continue
		}
		video := &Video{URI: sample.Video.URI, MIME: sample.Video.MimeType}
		if sample.Video.BytesBase64Encoded != "" {
			if data, err := base64.StdEncoding.DecodeString(sample.Video.BytesBase64Encoded); err == nil {
				video.Data = data
			}
		}
		op.Video = video
		break
	}
	return op
}

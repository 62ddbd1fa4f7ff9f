package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/brimobile1016/VEO3-NEW01/internal/domain"
	"github.com/brimobile1016/VEO3-NEW01/internal/infra"
)

// SupabaseOptions configures the Supabase Storage client. The service-role
// key is used on every call; this client is strictly server-side.
type SupabaseOptions struct {
	BaseURL    string
	ServiceKey string
	Bucket     string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Supabase talks to the Supabase Storage REST API.
type Supabase struct {
	baseURL    string
	serviceKey string
	bucket     string
	httpClient *http.Client
	logger     *infra.Logger
}

type supabaseError struct {
	StatusCode int
	Message    string
}

func (e *supabaseError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("storage status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("storage status %d", e.StatusCode)
}

type bucketPayload struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Public bool   `json:"public"`
}

type listPayload struct {
	Prefix string `json:"prefix"`
	Limit  int    `json:"limit,omitempty"`
}

// NewSupabase constructs a storage client.
func NewSupabase(opts SupabaseOptions) (*Supabase, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, fmt.Errorf("storage: base url is required")
	}
	if strings.TrimSpace(opts.ServiceKey) == "" {
		return nil, fmt.Errorf("storage: service key is required")
	}
	bucket := strings.TrimSpace(opts.Bucket)
	if bucket == "" {
		bucket = "generated-files"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		discard := infra.Logger(zerolog.New(io.Discard))
		logger = &discard
	}
	return &Supabase{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		serviceKey: opts.ServiceKey,
		bucket:     bucket,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// EnsureBucket creates the bucket when absent and tolerates "already exists".
func (s *Supabase) EnsureBucket(ctx context.Context) error {
	var buckets []bucketPayload
	if err := s.invoke(ctx, http.MethodGet, "/storage/v1/bucket", "", nil, &buckets); err != nil {
		return fmt.Errorf("list buckets: %w", err)
	}
	for _, b := range buckets {
		if b.Name == s.bucket {
			return nil
		}
	}

	payload, err := json.Marshal(bucketPayload{ID: s.bucket, Name: s.bucket, Public: true})
	if err != nil {
		return err
	}
	err = s.invoke(ctx, http.MethodPost, "/storage/v1/bucket", "application/json", payload, nil)
	var se *supabaseError
	if err != nil {
		// Another instance may have raced the creation.
		if errors.As(err, &se) && (se.StatusCode == http.StatusConflict || strings.Contains(strings.ToLower(se.Message), "already exists")) {
			return nil
		}
		return fmt.Errorf("create bucket: %w", err)
	}
	s.logger.Info().Str("bucket", s.bucket).Msg("storage: bucket created")
	return nil
}

// Put uploads data under key with upsert semantics.
func (s *Supabase) Put(ctx context.Context, key string, data []byte, contentType string) error {
	path := "/storage/v1/object/" + s.bucket + "/" + escapeKey(key)
	if err := s.invoke(ctx, http.MethodPost, path, contentType, data, nil); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

// PublicURL resolves the public URL of an object in the (public) bucket.
func (s *Supabase) PublicURL(key string) string {
	return s.baseURL + "/storage/v1/object/public/" + s.bucket + "/" + escapeKey(key)
}

// List returns objects stored under prefix.
func (s *Supabase) List(ctx context.Context, prefix string) ([]Object, error) {
	payload, err := json.Marshal(listPayload{Prefix: strings.Trim(prefix, "/"), Limit: 1000})
	if err != nil {
		return nil, err
	}
	var objects []Object
	path := "/storage/v1/object/list/" + s.bucket
	if err := s.invoke(ctx, http.MethodPost, path, "application/json", payload, &objects); err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	return objects, nil
}

// Remove deletes a single object; a missing object maps to domain.ErrNotFound.
func (s *Supabase) Remove(ctx context.Context, key string) error {
	path := "/storage/v1/object/" + s.bucket + "/" + escapeKey(key)
	err := s.invoke(ctx, http.MethodDelete, path, "", nil, nil)
	var se *supabaseError
	if err != nil {
		if errors.As(err, &se) && (se.StatusCode == http.StatusNotFound || strings.Contains(strings.ToLower(se.Message), "not found")) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

func (s *Supabase) invoke(ctx context.Context, method, path, contentType string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if method == http.MethodPost && strings.HasPrefix(path, "/storage/v1/object/") && !strings.HasPrefix(path, "/storage/v1/object/list/") {
		req.Header.Set("x-upsert", "true")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		se := &supabaseError{StatusCode: resp.StatusCode}
		var envelope struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if jsonErr := json.Unmarshal(data, &envelope); jsonErr == nil {
			if envelope.Message != "" {
				se.Message = envelope.Message
			} else {
				se.Message = envelope.Error
			}
		}
		if se.Message == "" {
			se.Message = strings.TrimSpace(string(data))
		}
		return se
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func escapeKey(key string) string {
	parts := strings.Split(strings.TrimLeft(key, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

var _ Sink = (*Supabase)(nil)

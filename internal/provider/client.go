// Package provider wraps the remote video CDN's REST API: object creation,
// byte streaming, status queries, and playback URL signing.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/amillerrr/lms-pipeline/internal/config"
	"github.com/amillerrr/lms-pipeline/pkg/models"
)

var tracer = otel.Tracer("lms-provider")

// Remote encoding status codes, per the provider's API documentation.
const (
	StatusQueued       = 0
	StatusProcessing   = 1
	StatusEncoding     = 2
	StatusTranscribing = 3
	StatusFinished     = 4
	StatusError        = 5
)

// VideoStatus is the provider's view of one remote video.
type VideoStatus struct {
	StatusCode    int     `json:"status"`
	LengthSeconds float64 `json:"length"`
	Title         string  `json:"title"`
}

// Ready reports whether encoding reached its terminal success state.
func (s VideoStatus) Ready() bool { return s.StatusCode == StatusFinished }

// Failed reports whether the provider gave up on the video.
func (s VideoStatus) Failed() bool { return s.StatusCode == StatusError }

// Client is a thin request/response wrapper around the provider API.
// The API key is server-held and never exposed to callers.
type Client struct {
	httpClient *http.Client
	baseURL    string
	libraryID  string
	apiKey     string
	timeout    time.Duration
}

// NewClient creates a provider client from configuration.
func NewClient(cfg *config.Config) (*Client, error) {
	if cfg.Provider.LibraryID == "" {
		return nil, models.ErrProviderNotConfigured
	}
	if cfg.Provider.APIKey == "" {
		return nil, &models.Error{Code: models.CodeConfig, Message: "video provider API key is not configured"}
	}

	return &Client{
		// No client-level timeout: upload bodies may take minutes.
		// Create/status calls bound themselves with per-call contexts.
		httpClient: &http.Client{},
		baseURL:    cfg.Provider.BaseURL,
		libraryID:  cfg.Provider.LibraryID,
		apiKey:     cfg.Provider.APIKey,
		timeout:    cfg.Provider.RequestTimeout,
	}, nil
}

// NewClientWithHTTP creates a client with an explicit base URL and HTTP
// client, used by tests.
func NewClientWithHTTP(baseURL, libraryID, apiKey string, httpClient *http.Client) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		libraryID:  libraryID,
		apiKey:     apiKey,
		timeout:    10 * time.Second,
	}
}

func (c *Client) videoURL(remoteVideoID string) string {
	return fmt.Sprintf("%s/library/%s/videos/%s", c.baseURL, url.PathEscape(c.libraryID), url.PathEscape(remoteVideoID))
}

// CreateVideo registers a new video object with the provider and returns the
// provider-assigned identifier.
func (c *Client) CreateVideo(ctx context.Context, title string) (string, error) {
	ctx, span := tracer.Start(ctx, "provider-create-video")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(map[string]string{"title": title})
	if err != nil {
		return "", fmt.Errorf("failed to marshal create request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/library/%s/videos", c.baseURL, url.PathEscape(c.libraryID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("AccessKey", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return "", models.Upstream("failed to create remote video object", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("provider returned %d", resp.StatusCode)
		span.RecordError(err)
		return "", models.Upstream("failed to create remote video object", err)
	}

	var created struct {
		GUID string `json:"guid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", models.Upstream("failed to decode create response", err)
	}
	if created.GUID == "" {
		return "", models.Upstream("provider returned an empty video id", nil)
	}

	span.SetAttributes(attribute.String("video.remote_id", created.GUID))
	return created.GUID, nil
}

// Upload streams the video bytes to an existing remote object in a single
// request. There is no resumability: on failure the caller retries the whole
// upload. No application timeout is applied; multi-gigabyte transfers are
// expected to take minutes.
func (c *Client) Upload(ctx context.Context, remoteVideoID string, body io.Reader, contentType string) error {
	ctx, span := tracer.Start(ctx, "provider-upload-bytes")
	defer span.End()
	span.SetAttributes(attribute.String("video.remote_id", remoteVideoID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.videoURL(remoteVideoID), body)
	if err != nil {
		return fmt.Errorf("failed to build upload request: %w", err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("AccessKey", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return models.Upstream("failed to stream video to provider", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("provider returned %d", resp.StatusCode)
		span.RecordError(err)
		return models.Upstream("failed to stream video to provider", err)
	}

	return nil
}

// GetStatus queries the provider's processing state for one remote video.
func (c *Client) GetStatus(ctx context.Context, remoteVideoID string) (VideoStatus, error) {
	ctx, span := tracer.Start(ctx, "provider-get-status")
	defer span.End()
	span.SetAttributes(attribute.String("video.remote_id", remoteVideoID))

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.videoURL(remoteVideoID), nil)
	if err != nil {
		return VideoStatus{}, fmt.Errorf("failed to build status request: %w", err)
	}
	req.Header.Set("AccessKey", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return VideoStatus{}, models.Upstream("failed to query video status", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return VideoStatus{}, models.ErrAssetNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("provider returned %d", resp.StatusCode)
		span.RecordError(err)
		return VideoStatus{}, models.Upstream("failed to query video status", err)
	}

	var status VideoStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return VideoStatus{}, models.Upstream("failed to decode status response", err)
	}

	span.SetAttributes(attribute.Int("video.status_code", status.StatusCode))
	return status, nil
}

// Ping checks provider API reachability for health checks.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/library/%s/videos?itemsPerPage=1", c.baseURL, url.PathEscape(c.libraryID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("AccessKey", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return errors.New("provider API unavailable")
	}
	return nil
}

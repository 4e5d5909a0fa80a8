// Package httpvideo checks video readiness against the upload service's HTTP API.
package httpvideo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kiranshivaraju/matchintel/pkg/models"
)

// StatusReady is the upload service status of a fully processed video.
const StatusReady = "ready"

// Storage implements models.VideoStorage using GET {base}/videos/{ref}.
type Storage struct {
	baseURL string
	client  *http.Client
}

func New(baseURL string, timeout time.Duration) *Storage {
	return &Storage{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type videoResponse struct {
	Status         string `json:"status"`
	UploadProgress *int   `json:"upload_progress"`
}

// IsReady reports whether the video exists, finished uploading and is marked
// ready. An unknown video is simply not ready.
func (s *Storage) IsReady(ctx context.Context, inputRef string) (bool, error) {
	u := fmt.Sprintf("%s/videos/%s", s.baseURL, url.PathEscape(inputRef))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", models.ErrVideoStorageUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode != http.StatusOK:
		return false, fmt.Errorf("%w: status %d", models.ErrVideoStorageUnavailable, resp.StatusCode)
	}

	var v videoResponse
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return false, fmt.Errorf("%w: decoding video response: %v", models.ErrVideoStorageUnavailable, err)
	}
	if v.UploadProgress != nil && *v.UploadProgress < 100 {
		return false, nil
	}
	return v.Status == StatusReady, nil
}

// Ping checks that the upload service answers at all.
func (s *Storage) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrVideoStorageUnavailable, err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d", models.ErrVideoStorageUnavailable, resp.StatusCode)
	}
	return nil
}

var _ models.VideoStorage = (*Storage)(nil)

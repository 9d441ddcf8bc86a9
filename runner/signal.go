package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// SignalSource produces the raw decision payload for one scan cycle.
// The payload is fed to the engine untouched; normalization happens
// there so sources stay format-agnostic.
type SignalSource interface {
	Fetch(ctx context.Context) (json.RawMessage, error)
}

// HTTPSignalSource pulls decision JSON from an HTTP endpoint. Safe for
// concurrent use: the scheduler's scan loop and the cycle endpoint can
// fetch at the same time.
type HTTPSignalSource struct {
	url        string
	httpClient *http.Client
}

// NewHTTPSignalSource creates a signal source for the given endpoint.
// Connections are pooled with KeepAlive and reused across cycles.
func NewHTTPSignalSource(url string) *HTTPSignalSource {
	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	}
	return &HTTPSignalSource{
		url: url,
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
	}
}

// Fetch retrieves the current signal payload. One retry on transient
// network errors; anything else is surfaced immediately so the cycle
// can be skipped.
func (s *HTTPSignalSource) Fetch(ctx context.Context) (json.RawMessage, error) {
	body, err := s.fetchOnce(ctx)
	if err == nil {
		return body, nil
	}
	if !isRetryableError(err) {
		return nil, err
	}

	select {
	case <-time.After(2 * time.Second):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	body, retryErr := s.fetchOnce(ctx)
	if retryErr != nil {
		return nil, fmt.Errorf("retry failed: %w (first attempt: %v)", retryErr, err)
	}
	return body, nil
}

func (s *HTTPSignalSource) fetchOnce(ctx context.Context) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("signal API returned error (status %d): %s", resp.StatusCode, string(body))
	}

	if !json.Valid(body) {
		return nil, fmt.Errorf("signal API returned invalid JSON")
	}

	return json.RawMessage(body), nil
}

// isRetryableError reports whether an error is worth one more attempt.
func isRetryableError(err error) bool {
	errStr := err.Error()
	retryableErrors := []string{
		"EOF",
		"timeout",
		"connection reset",
		"connection refused",
		"temporary failure",
		"no such host",
		"broken pipe",
		"network is unreachable",
	}
	for _, retryable := range retryableErrors {
		if strings.Contains(errStr, retryable) {
			return true
		}
	}
	return false
}

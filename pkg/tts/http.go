package tts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// postJSON sends body to url, retrying 429 and 5xx answers, and returns the
// response body of the first 200.
func postJSON(ctx context.Context, cfg *Config, client *http.Client, logger *slog.Logger,
	provider, url string, body []byte, header http.Header, parse func(*http.Response) error) ([]byte, error) {

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(cfg.RetryDelay * time.Duration(attempt)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, WrapError(provider, fmt.Errorf("create request: %w", err))
		}
		req.Header = header.Clone()
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = WrapError(provider, err)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			apiErr := parse(resp)
			resp.Body.Close()
			if ae, ok := apiErr.(*APIError); ok && ae.IsRetryable() {
				logger.Warn("retrying request", "attempt", attempt+1, "status", resp.StatusCode)
				lastErr = apiErr
				continue
			}
			return nil, apiErr
		}

		audio, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, WrapError(provider, fmt.Errorf("read response: %w", err))
		}
		if len(audio) == 0 {
			return nil, WrapError(provider, ErrEmptyAudio)
		}
		return audio, nil
	}
	return nil, lastErr
}

// getOK issues a GET and fails on any non-200 answer.
func getOK(ctx context.Context, client *http.Client, provider, url string, header http.Header,
	parse func(*http.Response) error) error {

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return WrapError(provider, err)
	}
	req.Header = header.Clone()

	resp, err := client.Do(req)
	if err != nil {
		return WrapError(provider, fmt.Errorf("health check: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return parse(resp)
	}
	return nil
}

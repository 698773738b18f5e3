package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/anime-shed/microscan-go/internal/retry"
	"github.com/anime-shed/microscan-go/pkg/validation"
)

// DefaultMaxImageBytes bounds a fetched image
const DefaultMaxImageBytes int64 = 20 * 1024 * 1024

// ImageFetcher loads raw image bytes from a location
type ImageFetcher interface {
	FetchImage(ctx context.Context, location string) ([]byte, error)
}

// HTTPImageFetcher downloads images over http(s) with retries
type HTTPImageFetcher struct {
	client    *http.Client
	validator *validation.URLValidator
	retry     retry.Config
	maxBytes  int64
}

// NewHTTPImageFetcher creates an HTTP image fetcher
func NewHTTPImageFetcher() *HTTPImageFetcher {
	return NewHTTPImageFetcherWithRetry(retry.Config{
		MaxRetries:      2,
		BaseDelay:       time.Second,
		MaxDelay:        3 * time.Second,
		BackoffMultiple: 2,
	})
}

// NewHTTPImageFetcherWithRetry creates an HTTP image fetcher with a custom backoff
func NewHTTPImageFetcherWithRetry(cfg retry.Config) *HTTPImageFetcher {
	// Transport tuned for single image downloads
	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		MaxResponseHeaderBytes: 4096,
	}

	return &HTTPImageFetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,

			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("too many redirects (limit: 3)")
				}
				return nil
			},
		},
		validator: validation.NewURLValidator(),
		retry:     cfg,
		maxBytes:  DefaultMaxImageBytes,
	}
}

// FetchImage downloads imageURL. 5xx and network errors are retried, 4xx is not.
func (h *HTTPImageFetcher) FetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	if err := h.validator.ValidateURL(imageURL); err != nil {
		return nil, err
	}

	data, err := retry.Execute(ctx, retry.Options{Config: h.retry, Upstream: "image"}, func(ctx context.Context, attempt int) ([]byte, int, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
		if err != nil {
			return nil, 0, fmt.Errorf("invalid URL: %w", err)
		}

		// Headers for image downloads
		req.Header.Set("Accept", "image/jpeg, image/png, image/webp, image/gif, image/bmp, */*")
		req.Header.Set("User-Agent", "MicroScan/1.0")

		resp, err := h.client.Do(req)
		if err != nil {
			return nil, 0, err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return nil, resp.StatusCode, fmt.Errorf("client error: status code %d", resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return nil, resp.StatusCode, fmt.Errorf("server error: status code %d", resp.StatusCode)
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, h.maxBytes+1))
		if err != nil {
			return nil, resp.StatusCode, fmt.Errorf("failed to read image: %w", err)
		}
		if int64(len(body)) > h.maxBytes {
			return nil, http.StatusRequestEntityTooLarge, fmt.Errorf("image exceeds %d bytes", h.maxBytes)
		}
		return body, resp.StatusCode, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}
	return data, nil
}

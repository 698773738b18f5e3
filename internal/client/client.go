package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	apperrors "github.com/anime-shed/microscan-go/internal/errors"
	"github.com/anime-shed/microscan-go/internal/logger"
	"github.com/anime-shed/microscan-go/internal/retry"
	"github.com/anime-shed/microscan-go/pkg/models"
	"github.com/anime-shed/microscan-go/pkg/validation"
)

const analyzePath = "/api/v1/analyze"

// Options configures the scoring client
type Options struct {
	Timeout time.Duration
	Retry   retry.Config
}

// DefaultOptions returns a single retry with a generous timeout
func DefaultOptions() Options {
	cfg := retry.DefaultConfig()
	cfg.MaxRetries = 1
	return Options{Timeout: 60 * time.Second, Retry: cfg}
}

// Client posts precomputed signals to a scoring endpoint
type Client struct {
	baseURL string
	http    *http.Client
	retry   retry.Config
}

// New validates baseURL and builds a client
func New(baseURL string, opts Options) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if err := validation.NewURLValidator().ValidateURL(baseURL); err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: opts.Timeout},
		retry:   opts.Retry,
	}, nil
}

// BaseURL returns the scoring endpoint root
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Analyze sends the image with optional metrics and embedding. It never
// returns nil: an unreachable endpoint or a non-2xx answer yields the
// Connection Error response instead of a score.
func (c *Client) Analyze(ctx context.Context, image []byte, metrics *models.OpticalMetrics, embedding []float64) *models.AnalysisResponse {
	if embedding == nil {
		embedding = []float64{}
	}
	req := models.AnalysisRequest{
		ImageBase64:    base64.StdEncoding.EncodeToString(image),
		OpticalMetrics: metrics,
		Embeddings:     embedding,
	}

	body, err := retry.PostJSON(ctx, c.http, c.baseURL+analyzePath, nil, req, retry.Options{
		Config:   c.retry,
		Upstream: "scoring",
	})
	if err != nil {
		return c.connectionError(apperrors.NewTransportError("Scoring endpoint request failed", err))
	}

	var resp models.AnalysisResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return c.connectionError(apperrors.NewTransportError("Malformed response from scoring endpoint", err))
	}
	return &resp
}

func (c *Client) connectionError(err error) *models.AnalysisResponse {
	logger.WithError(err).WithFields(logrus.Fields{
		"base_url": c.baseURL,
	}).Error("Scoring endpoint unreachable")
	return models.ConnectionErrorResponse(c.baseURL, err)
}

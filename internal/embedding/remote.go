package embedding

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"strings"
	"time"

	"github.com/anime-shed/microscan-go/internal/retry"
)

var errEmptyImage = errors.New("image has no pixels")

// RemoteConfig configures the HTTP embedding service
type RemoteConfig struct {
	BaseURL string
	Model   string
	APIKey  string
	Timeout time.Duration
	Retry   retry.Config
}

type remoteRequest struct {
	Model       string `json:"model"`
	ImageBase64 string `json:"image_base64"`
}

type remoteResponse struct {
	Embedding []float64 `json:"embedding"`
}

// RemoteModel calls an external embedding service over HTTP
type RemoteModel struct {
	cfg    RemoteConfig
	client *http.Client
	dims   int
}

// RemoteLoader returns a Loader that probes the service once with a small
// image to learn the embedding dimension
func RemoteLoader(cfg RemoteConfig) Loader {
	return func(ctx context.Context) (Model, error) {
		if strings.TrimSpace(cfg.BaseURL) == "" {
			return nil, errors.New("embedding service base URL is not configured")
		}
		if cfg.Timeout <= 0 {
			cfg.Timeout = 15 * time.Second
		}
		m := &RemoteModel{
			cfg:    cfg,
			client: &http.Client{Timeout: cfg.Timeout},
		}

		probe := image.NewGray(image.Rect(0, 0, 8, 8))
		vec, err := m.Infer(ctx, probe)
		if err != nil {
			return nil, fmt.Errorf("embedding service probe failed: %w", err)
		}
		m.dims = len(vec)
		return m, nil
	}
}

func (m *RemoteModel) Name() string    { return "remote:" + m.cfg.Model }
func (m *RemoteModel) Dimensions() int { return m.dims }

// Infer posts the image as PNG and returns the service's vector
func (m *RemoteModel) Infer(ctx context.Context, img image.Image) ([]float64, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, errEmptyImage
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	headers := map[string]string{}
	if m.cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + m.cfg.APIKey
	}
	body, err := retry.PostJSON(ctx, m.client, strings.TrimRight(m.cfg.BaseURL, "/")+"/embeddings", headers,
		remoteRequest{Model: m.cfg.Model, ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes())},
		retry.Options{Config: m.cfg.Retry, Upstream: "embedding"})
	if err != nil {
		return nil, err
	}

	var resp remoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse embedding response: %w", err)
	}
	if len(resp.Embedding) == 0 {
		return nil, errors.New("embedding service returned an empty vector")
	}
	if m.dims > 0 && len(resp.Embedding) != m.dims {
		return nil, fmt.Errorf("embedding length %d does not match model dimension %d", len(resp.Embedding), m.dims)
	}
	return resp.Embedding, nil
}

// LoadDisabled is the Loader used when embeddings are turned off
func LoadDisabled(ctx context.Context) (Model, error) {
	return nil, ErrDisabled
}

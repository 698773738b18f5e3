package assessor

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/anime-shed/microscan-go/internal/logger"
	"github.com/anime-shed/microscan-go/internal/retry"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
)

// OpenAIConfig configures an OpenAI-compatible chat completions endpoint
type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
	Retry      retry.Config
}

// OpenAI is a minimal client for OpenAI-compatible vision chat completions
type OpenAI struct {
	cfg OpenAIConfig
}

type chatContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// NewOpenAI creates the adapter, filling defaults for empty fields
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	return &OpenAI{cfg: cfg}
}

func (c *OpenAI) Name() string { return "openai:" + c.cfg.Model }

// Assess sends the image with the classical measurements and decodes the
// JSON answer
func (c *OpenAI) Assess(ctx context.Context, in Input) (*Assessment, error) {
	if c.cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	if len(in.Image) == 0 {
		return nil, errors.New("no image to assess")
	}

	mime := in.MIMEType
	if mime == "" {
		mime = http.DetectContentType(in.Image)
	}
	dataURI := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(in.Image)

	req := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: []chatContentPart{
				{Type: "text", Text: userPrompt(in.Metrics, len(in.Embedding))},
				{Type: "image_url", ImageURL: &chatImageURL{URL: dataURI}},
			}},
		},
		ResponseFormat: map[string]string{"type": "json_object"},
	}

	start := time.Now()
	body, err := retry.PostJSON(ctx, c.cfg.HTTPClient, strings.TrimRight(c.cfg.BaseURL, "/")+"/chat/completions",
		map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}, req,
		retry.Options{Config: c.cfg.Retry, Upstream: "assessor"})
	if err != nil {
		return nil, err
	}

	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == nil {
		return nil, errors.New("chat completion returned no content")
	}

	assessment, err := ParseAssessment(*resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"model":       c.cfg.Model,
		"severity":    assessment.SeverityLevel,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("Assessment received")
	return assessment, nil
}

// ParseAssessment decodes a model answer, tolerating markdown code fences
// and prose around the JSON object
func ParseAssessment(text string) (*Assessment, error) {
	text = stripCodeFences(text)
	if i, j := strings.Index(text, "{"), strings.LastIndex(text, "}"); i >= 0 && j > i {
		text = text[i : j+1]
	}

	var a Assessment
	if err := json.Unmarshal([]byte(text), &a); err != nil {
		return nil, fmt.Errorf("assessment is not valid JSON: %w", err)
	}
	return &a, nil
}

func stripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	if nl := strings.Index(text, "\n"); nl >= 0 {
		text = text[nl+1:]
	} else {
		text = strings.TrimPrefix(text, "```")
	}
	text = strings.TrimSpace(text)
	return strings.TrimSpace(strings.TrimSuffix(text, "```"))
}

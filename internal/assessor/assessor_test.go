package assessor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anime-shed/microscan-go/internal/resilience"
	"github.com/anime-shed/microscan-go/internal/retry"
	"github.com/anime-shed/microscan-go/pkg/models"
)

const sampleAnswer = `{
  "risk_score": 72,
  "confidence": 80,
  "mode_detected": "Environmental",
  "severity_level": "high",
  "reasoning_short": "Turbid water with floating fragments",
  "visual_analysis": "Brown water, foam line near the bank",
  "score_breakdown": [
    {"factor": "Turbidity", "score": 80, "contribution": "Suspended sediment"},
    {"factor": "Surface Debris", "score": 64.6, "contribution": "Small floating fragments"},
    {"factor": "", "score": 10, "contribution": "dropped"}
  ],
  "potential_harms": ["Vector for adsorbed contaminants"],
  "recommendations": ["Avoid contact"],
  "details": "High turbidity correlates with particle transport.",
  "tags": ["water", "turbid"]
}`

func chatServer(t *testing.T, content string, status int, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Len(t, req.Messages, 2)

		if status != http.StatusOK {
			http.Error(w, "upstream failure", status)
			return
		}
		resp := map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": content}, "finish_reason": "stop"}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func fastRetry() retry.Config {
	return retry.Config{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffMultiple: 1}
}

func TestOpenAI_Assess(t *testing.T) {
	srv := chatServer(t, "```json\n"+sampleAnswer+"\n```", http.StatusOK, nil)
	client := NewOpenAI(OpenAIConfig{BaseURL: srv.URL + "/v1", APIKey: "test-key", Retry: fastRetry()})

	a, err := client.Assess(context.Background(), Input{Image: []byte("\x89PNG\r\n\x1a\nfake"), Metrics: models.OpticalMetrics{TurbidityScore: 0.6}})
	require.NoError(t, err)

	assert.Equal(t, "high", a.SeverityLevel)
	require.NotNil(t, a.RiskScore)
	assert.Equal(t, 72.0, *a.RiskScore)

	items := a.Breakdown()
	require.Len(t, items, 2)
	assert.Equal(t, "Turbidity", items[0].Factor)
	assert.Equal(t, 65, items[1].Score)

	n := a.Narrative()
	assert.Equal(t, "High", n.SeverityLevel)
	assert.Equal(t, "Turbid water with floating fragments", n.Reasoning)
	assert.Equal(t, []string{"water", "turbid"}, n.Tags)

	expert := a.Expert()
	assert.Equal(t, "high", expert.SeverityLevel)
}

func TestOpenAI_ServerErrorIsRetriedThenFails(t *testing.T) {
	var calls atomic.Int32
	srv := chatServer(t, "", http.StatusServiceUnavailable, &calls)
	client := NewOpenAI(OpenAIConfig{BaseURL: srv.URL + "/v1", APIKey: "test-key", Retry: fastRetry()})

	_, err := client.Assess(context.Background(), Input{Image: []byte("img")})

	assert.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOpenAI_NotJSON(t *testing.T) {
	srv := chatServer(t, "I cannot help with that.", http.StatusOK, nil)
	client := NewOpenAI(OpenAIConfig{BaseURL: srv.URL + "/v1", APIKey: "test-key"})

	_, err := client.Assess(context.Background(), Input{Image: []byte("img")})
	assert.Error(t, err)
}

func TestOpenAI_WithoutKeyIsNotConfigured(t *testing.T) {
	_, err := NewOpenAI(OpenAIConfig{}).Assess(context.Background(), Input{Image: []byte("img")})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestOpenAI_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server can detect the client disconnect
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	client := NewOpenAI(OpenAIConfig{BaseURL: srv.URL, APIKey: "test-key", Retry: fastRetry()})
	_, err := client.Assess(ctx, Input{Image: []byte("img")})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestParseAssessment(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"plain", `{"severity_level":"Low"}`},
		{"fenced", "```json\n{\"severity_level\":\"Low\"}\n```"},
		{"bare fence", "```\n{\"severity_level\":\"Low\"}```"},
		{"prose around", "Here you go: {\"severity_level\":\"Low\"} hope it helps"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := ParseAssessment(tt.text)
			require.NoError(t, err)
			assert.Equal(t, "Low", a.SeverityLevel)
		})
	}

	_, err := ParseAssessment("no json here")
	assert.Error(t, err)
}

func TestAssessment_NilSafe(t *testing.T) {
	var a *Assessment
	assert.Nil(t, a.Expert())
	assert.NotNil(t, a.Breakdown())
	assert.Empty(t, a.Breakdown())
	assert.Equal(t, models.Narrative{}, a.Narrative())
}

func TestDisabled(t *testing.T) {
	_, err := Disabled{}.Assess(context.Background(), Input{})
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Equal(t, "none", Disabled{}.Name())
}

type stubAssessor struct {
	calls atomic.Int32
	err   error
}

func (s *stubAssessor) Name() string { return "stub" }

func (s *stubAssessor) Assess(ctx context.Context, in Input) (*Assessment, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return &Assessment{SeverityLevel: "Low"}, nil
}

func TestGuarded_OpensAfterFailures(t *testing.T) {
	stub := &stubAssessor{err: errors.New("provider down")}
	g := NewGuarded(stub, resilience.CircuitBreakerConfig{FailureThreshold: 2, RecoveryTimeout: time.Minute})

	for i := 0; i < 2; i++ {
		_, err := g.Assess(context.Background(), Input{})
		assert.Error(t, err)
	}
	_, err := g.Assess(context.Background(), Input{})

	assert.ErrorIs(t, err, resilience.ErrOpen)
	assert.Equal(t, int32(2), stub.calls.Load())
	assert.Equal(t, resilience.StateOpen, g.Breaker().State())
	assert.True(t, strings.HasPrefix(g.Name(), "stub"))
}

func TestGuarded_PassesThroughSuccess(t *testing.T) {
	g := NewGuarded(&stubAssessor{}, resilience.CircuitBreakerConfig{})

	a, err := g.Assess(context.Background(), Input{})
	require.NoError(t, err)
	assert.Equal(t, "Low", a.SeverityLevel)
}

func TestGuarded_CancellationDoesNotTripBreaker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stub := &stubAssessor{err: context.Canceled}
	g := NewGuarded(stub, resilience.CircuitBreakerConfig{FailureThreshold: 1})

	_, err := g.Assess(ctx, Input{})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, resilience.StateClosed, g.Breaker().State())
}

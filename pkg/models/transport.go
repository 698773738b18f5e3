package models

import (
	"fmt"
	"time"
)

// AnalysisRequest is the wire body accepted by the scoring endpoint
type AnalysisRequest struct {
	ImageBase64    string          `json:"image_base64" binding:"required"`
	OpticalMetrics *OpticalMetrics `json:"optical_metrics,omitempty"`
	Embeddings     []float64       `json:"embeddings"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ConnectionErrorResponse builds the caller-side result shown when the
// scoring endpoint cannot be reached. It never carries a plausible score.
func ConnectionErrorResponse(baseURL string, cause error) *AnalysisResponse {
	details := "Please ensure the backend is running and accessible (check CORS/Network)."
	if cause != nil {
		details = fmt.Sprintf("%s Cause: %v", details, cause)
	}
	return &AnalysisResponse{
		Status:    "error",
		RiskScore: 0,
		RiskLevel: RiskLevelConnectionError,
		Breakdown: []BreakdownItem{},
		Narrative: Narrative{
			Reasoning: fmt.Sprintf("Could not connect to Expert Backend at %s", baseURL),
			Details:   details,
			Tags:      []string{"error"},
		},
		TechnicalBreakdown: TechnicalBreakdown{},
		Timestamp:          time.Now().UTC(),
	}
}

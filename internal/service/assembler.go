package service

import (
	"fmt"
	"time"

	"github.com/anime-shed/microscan-go/internal/assessor"
	"github.com/anime-shed/microscan-go/internal/fusion"
	"github.com/anime-shed/microscan-go/pkg/models"
)

// DegradedReasoning is the narrative reasoning used when the assessor failed
const DegradedReasoning = "Expert assessment unavailable (degraded mode): score derived from optical metrics only."

// assembly collects everything the final response is built from
type assembly struct {
	ScanID    string
	Fused     fusion.Result
	Metrics   models.OpticalMetrics
	Embedding []float64
	Expert    StageResult[*assessor.Assessment]
	Degraded  []string
	Started   time.Time
	Finished  time.Time
}

// assemble builds the immutable response. Breakdown is never nil and the
// technical breakdown always carries all three contributions.
func assemble(a assembly) *models.AnalysisResponse {
	resp := &models.AnalysisResponse{
		Status:             "success",
		ScanID:             a.ScanID,
		RiskScore:          a.Fused.RiskScore,
		RiskLevel:          a.Fused.RiskLevel,
		Breakdown:          []models.BreakdownItem{},
		TechnicalBreakdown: a.Fused.Breakdown,
		OpticalMetrics:     a.Metrics,
		EmbeddingDim:       len(a.Embedding),
		Confidence:         a.Fused.Confidence,
		Timestamp:          a.Finished.UTC(),
		ProcessingTimeSec:  a.Finished.Sub(a.Started).Seconds(),
	}
	if len(a.Degraded) > 0 {
		resp.Degraded = append([]string(nil), a.Degraded...)
	}

	if a.Expert.IsOK() && a.Expert.Value != nil {
		resp.Breakdown = a.Expert.Value.Breakdown()
		resp.Narrative = a.Expert.Value.Narrative()
		if resp.Narrative.Reasoning == "" {
			resp.Narrative.Reasoning = opticalSummary(a.Metrics, a.Fused)
		}
		if resp.Narrative.SeverityLevel == "" {
			resp.Narrative.SeverityLevel = string(a.Fused.RiskLevel)
		}
		return resp
	}

	resp.Narrative = models.Narrative{
		Reasoning:     DegradedReasoning,
		SeverityLevel: string(a.Fused.RiskLevel),
		Details:       opticalSummary(a.Metrics, a.Fused),
		Tags:          []string{"degraded"},
	}
	return resp
}

// opticalSummary explains the score from the optical channels alone
func opticalSummary(m models.OpticalMetrics, r fusion.Result) string {
	if m.Degenerate {
		return "The image carried no usable optical signal (blank, uniform or too small), so no optical risk was measured."
	}
	return fmt.Sprintf(
		"Turbidity %.0f%%, color variance %.0f%%, edge density %.0f%%, debris likelihood %.0f%%; "+
			"turbidity channel %.0f/100, edge channel %.0f/100.",
		100*m.TurbidityScore, 100*m.ColorVarianceScore, 100*m.EdgeDensityScore, 100*m.DebrisLikelihood,
		r.Channels.Turbidity, r.Channels.Edge)
}

package assessor

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/anime-shed/microscan-go/internal/fusion"
	"github.com/anime-shed/microscan-go/pkg/models"
)

// ErrNotConfigured is returned by the disabled provider
var ErrNotConfigured = errors.New("qualitative assessor is not configured")

// Input is everything an assessor may look at. Image holds the raw encoded bytes.
type Input struct {
	Image     []byte
	MIMEType  string
	Metrics   models.OpticalMetrics
	Embedding []float64
}

// Assessor produces a qualitative expert assessment of an image
type Assessor interface {
	Name() string
	Assess(ctx context.Context, in Input) (*Assessment, error)
}

// ScoreItem is one factor of the assessor's own breakdown
type ScoreItem struct {
	Factor       string  `json:"factor"`
	Score        float64 `json:"score"`
	Contribution string  `json:"contribution"`
}

// Assessment is the structured answer of a qualitative assessor
type Assessment struct {
	RiskScore       *float64    `json:"risk_score"`
	Confidence      float64     `json:"confidence"`
	ModeDetected    string      `json:"mode_detected"`
	SeverityLevel   string      `json:"severity_level"`
	ReasoningShort  string      `json:"reasoning_short"`
	VisualAnalysis  string      `json:"visual_analysis"`
	ScoreBreakdown  []ScoreItem `json:"score_breakdown"`
	PotentialHarms  []string    `json:"potential_harms"`
	Recommendations []string    `json:"recommendations"`
	Details         string      `json:"details"`
	Tags            []string    `json:"tags"`
}

// Expert returns the fields the fusion scorer consumes
func (a *Assessment) Expert() *fusion.Expert {
	if a == nil {
		return nil
	}
	return &fusion.Expert{SeverityLevel: a.SeverityLevel, RiskScore: a.RiskScore}
}

// Breakdown converts the assessor's factors to wire items in their original
// order, clamping scores to [0,100]. Never nil.
func (a *Assessment) Breakdown() []models.BreakdownItem {
	items := []models.BreakdownItem{}
	if a == nil {
		return items
	}
	for _, s := range a.ScoreBreakdown {
		if strings.TrimSpace(s.Factor) == "" {
			continue
		}
		score := s.Score
		if math.IsNaN(score) {
			score = 0
		}
		items = append(items, models.BreakdownItem{
			Factor:       s.Factor,
			Score:        int(math.Round(math.Max(0, math.Min(100, score)))),
			Contribution: s.Contribution,
		})
	}
	return items
}

// Narrative converts the assessment into the response narrative
func (a *Assessment) Narrative() models.Narrative {
	if a == nil {
		return models.Narrative{}
	}
	n := models.Narrative{
		Reasoning:       a.ReasoningShort,
		VisualAnalysis:  a.VisualAnalysis,
		ModeDetected:    a.ModeDetected,
		PotentialHarms:  a.PotentialHarms,
		Recommendations: a.Recommendations,
		Details:         a.Details,
		Tags:            a.Tags,
	}
	if level, ok := fusion.ParseLevel(a.SeverityLevel); ok {
		n.SeverityLevel = string(level)
	} else {
		n.SeverityLevel = a.SeverityLevel
	}
	return n
}

// Disabled is the assessor used when no provider is configured
type Disabled struct{}

func (Disabled) Name() string { return "none" }

func (Disabled) Assess(ctx context.Context, in Input) (*Assessment, error) {
	return nil, ErrNotConfigured
}

package fusion

import (
	"math"
	"strings"

	"github.com/anime-shed/microscan-go/pkg/models"
)

// severityScores maps expert severity labels onto the 0-100 channel scale
var severityScores = map[models.RiskLevel]float64{
	models.RiskLevelSafe:     0,
	models.RiskLevelLow:      20,
	models.RiskLevelModerate: 45,
	models.RiskLevelHigh:     75,
	models.RiskLevelCritical: 95,
}

// Expert is the part of a qualitative assessment the scorer consumes
type Expert struct {
	SeverityLevel string
	RiskScore     *float64
}

// Channels are the per-signal scores in [0,100] before weighting
type Channels struct {
	Turbidity       float64 `json:"turbidity"`
	Edge            float64 `json:"edge"`
	Expert          float64 `json:"expert"`
	ExpertAvailable bool    `json:"expert_available"`
}

// Result is the numeric outcome of fusing one scan's evidence
type Result struct {
	RiskScore  int
	RiskLevel  models.RiskLevel
	Breakdown  models.TechnicalBreakdown
	Channels   Channels
	Confidence float64
}

// Scorer fuses optical metrics and the optional expert assessment
type Scorer struct {
	weights Weights
}

// NewScorer creates a scorer; invalid weights fall back to the defaults
func NewScorer(weights Weights) *Scorer {
	if weights.Validate() != nil {
		weights = DefaultWeights()
	}
	return &Scorer{weights: weights}
}

// Weights returns the configured weights
func (s *Scorer) Weights() Weights {
	return s.weights
}

// Score computes the risk score. The embedding never enters a channel; its
// presence only raises confidence. A nil expert, or one whose severity is
// unknown and carries no numeric score, leaves the expert channel out and
// its weight is shared by the optical channels.
func (s *Scorer) Score(metrics models.OpticalMetrics, embedding []float64, expert *Expert) Result {
	ch := Channels{
		Turbidity: 100 * noisyOr(metrics.TurbidityScore, metrics.ColorVarianceScore),
		Edge:      100 * noisyOr(metrics.EdgeDensityScore, metrics.DebrisLikelihood),
	}
	if score, ok := ExpertChannel(expert); ok {
		ch.Expert = score
		ch.ExpertAvailable = true
	}

	w := s.weights.Effective(ch.ExpertAvailable)
	breakdown := models.TechnicalBreakdown{
		TurbidityContribution: w.TurbidityWeight * ch.Turbidity,
		EdgeContribution:      w.EdgeWeight * ch.Edge,
		AIExpertContribution:  w.ExpertWeight * ch.Expert,
		Weights:               w,
	}

	score := int(math.Round(clamp(breakdown.Total(), 0, 100)))

	confidence := 0.5
	if len(embedding) > 0 {
		confidence += 0.2
	}
	if ch.ExpertAvailable {
		confidence += 0.3
	}

	return Result{
		RiskScore:  score,
		RiskLevel:  LevelFor(score),
		Breakdown:  breakdown,
		Channels:   ch,
		Confidence: math.Min(confidence, 1),
	}
}

// ExpertChannel maps an expert assessment onto the 0-100 channel scale
func ExpertChannel(expert *Expert) (float64, bool) {
	if expert == nil {
		return 0, false
	}
	if level, ok := ParseLevel(expert.SeverityLevel); ok {
		return severityScores[level], true
	}
	if expert.RiskScore != nil && !math.IsNaN(*expert.RiskScore) {
		return clamp(*expert.RiskScore, 0, 100), true
	}
	return 0, false
}

// ParseLevel matches a severity label case-insensitively against the taxonomy
func ParseLevel(label string) (models.RiskLevel, bool) {
	label = strings.TrimSpace(label)
	for _, level := range models.RiskLevels {
		if strings.EqualFold(label, string(level)) {
			return level, true
		}
	}
	return "", false
}

// LevelFor maps a risk score onto its level. Bands are fixed and monotone:
// 0-14 Safe, 15-29 Low, 30-59 Moderate, 60-89 High, 90-100 Critical.
func LevelFor(score int) models.RiskLevel {
	switch {
	case score >= 90:
		return models.RiskLevelCritical
	case score >= 60:
		return models.RiskLevelHigh
	case score >= 30:
		return models.RiskLevelModerate
	case score >= 15:
		return models.RiskLevelLow
	default:
		return models.RiskLevelSafe
	}
}

// noisyOr combines two independent probabilities of the same effect
func noisyOr(a, b float64) float64 {
	return 1 - (1-clamp(a, 0, 1))*(1-clamp(b, 0, 1))
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

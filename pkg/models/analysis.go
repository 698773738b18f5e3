package models

import "time"

// RiskLevel is the discrete severity taxonomy consumed downstream.
// Callers branch on these literal strings.
type RiskLevel string

const (
	RiskLevelSafe     RiskLevel = "Safe"
	RiskLevelLow      RiskLevel = "Low"
	RiskLevelModerate RiskLevel = "Moderate"
	RiskLevelHigh     RiskLevel = "High"
	RiskLevelCritical RiskLevel = "Critical"

	// RiskLevelConnectionError is only ever produced on the caller side when
	// the scoring endpoint could not be reached.
	RiskLevelConnectionError RiskLevel = "Connection Error"
)

// RiskLevels lists the scoring taxonomy in ascending severity
var RiskLevels = []RiskLevel{
	RiskLevelSafe,
	RiskLevelLow,
	RiskLevelModerate,
	RiskLevelHigh,
	RiskLevelCritical,
}

// Rank returns the position of the level in ascending severity, or -1 for
// labels outside the scoring taxonomy.
func (l RiskLevel) Rank() int {
	for i, level := range RiskLevels {
		if level == l {
			return i
		}
	}
	return -1
}

// OpticalMetrics holds the normalized optical proxies extracted from an image
type OpticalMetrics struct {
	TurbidityScore     float64 `json:"turbidity_score" validate:"min=0,max=1"`
	EdgeDensityScore   float64 `json:"edge_density_score" validate:"min=0,max=1"`
	ColorVarianceScore float64 `json:"color_variance_score" validate:"min=0,max=1"`
	DebrisLikelihood   float64 `json:"debris_likelihood" validate:"min=0,max=1"`

	// Degenerate is set when the image decoded but carried no usable signal
	Degenerate bool `json:"degenerate,omitempty"`
}

// IsZero reports whether every optical proxy is exactly zero
func (m OpticalMetrics) IsZero() bool {
	return m.TurbidityScore == 0 && m.EdgeDensityScore == 0 &&
		m.ColorVarianceScore == 0 && m.DebrisLikelihood == 0
}

// BreakdownItem is one human-readable factor from the qualitative assessment
type BreakdownItem struct {
	Factor       string `json:"factor"`
	Score        int    `json:"score"`
	Contribution string `json:"contribution"`
}

// Narrative is the structured qualitative explanation attached to a score
type Narrative struct {
	Reasoning       string   `json:"reasoning"`
	VisualAnalysis  string   `json:"visual_analysis,omitempty"`
	SeverityLevel   string   `json:"severity_level,omitempty"`
	ModeDetected    string   `json:"mode_detected,omitempty"`
	PotentialHarms  []string `json:"potential_harms,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
	Details         string   `json:"details,omitempty"`
	Tags            []string `json:"tags,omitempty"`
}

// ChannelWeights are the effective fusion weights applied to one score
type ChannelWeights struct {
	TurbidityWeight float64 `json:"turbidity_weight"`
	EdgeWeight      float64 `json:"edge_weight"`
	ExpertWeight    float64 `json:"expert_weight"`
}

// TechnicalBreakdown reports how much each signal contributed to the score.
// All three contribution keys are always serialized.
type TechnicalBreakdown struct {
	TurbidityContribution float64        `json:"turbidity_contribution"`
	EdgeContribution      float64        `json:"edge_contribution"`
	AIExpertContribution  float64        `json:"ai_expert_contribution"`
	Weights               ChannelWeights `json:"weights"`
}

// Total returns the sum of the three contributions
func (b TechnicalBreakdown) Total() float64 {
	return b.TurbidityContribution + b.EdgeContribution + b.AIExpertContribution
}

// AnalysisResponse is the final, immutable result of one scan
type AnalysisResponse struct {
	Status             string             `json:"status"`
	ScanID             string             `json:"scan_id,omitempty"`
	RiskScore          int                `json:"risk_score"`
	RiskLevel          RiskLevel          `json:"risk_level"`
	Breakdown          []BreakdownItem    `json:"breakdown"`
	Narrative          Narrative          `json:"narrative"`
	TechnicalBreakdown TechnicalBreakdown `json:"technical_breakdown"`

	OpticalMetrics    OpticalMetrics `json:"optical_metrics"`
	EmbeddingDim      int            `json:"embedding_dim"`
	Confidence        float64        `json:"confidence"`
	Degraded          []string       `json:"degraded,omitempty"`
	Timestamp         time.Time      `json:"timestamp"`
	ProcessingTimeSec float64        `json:"processing_time_sec"`
}

// IsConnectionError reports whether the response stands in for an
// unreachable scoring endpoint rather than a real score
func (r *AnalysisResponse) IsConnectionError() bool {
	return r.RiskLevel == RiskLevelConnectionError
}

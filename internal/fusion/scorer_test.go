package fusion

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/anime-shed/microscan-go/pkg/models"
)

func ptr(v float64) *float64 { return &v }

func TestScore_AllZeroWithoutExpertIsSafe(t *testing.T) {
	s := NewScorer(DefaultWeights())

	r := s.Score(models.OpticalMetrics{}, nil, nil)

	assert.Equal(t, 0, r.RiskScore)
	assert.Equal(t, models.RiskLevelSafe, r.RiskLevel)
	assert.Equal(t, 0.0, r.Breakdown.AIExpertContribution)
	assert.Equal(t, 0.5, r.Confidence)
}

func TestScore_CheckerboardWithHighExpert(t *testing.T) {
	s := NewScorer(DefaultWeights())
	metrics := models.OpticalMetrics{EdgeDensityScore: 1, ColorVarianceScore: 0.75}

	r := s.Score(metrics, []float64{1}, &Expert{SeverityLevel: "High"})

	assert.Equal(t, 83, r.RiskScore)
	assert.Equal(t, models.RiskLevelHigh, r.RiskLevel)
	assert.InDelta(t, 25, r.Breakdown.AIExpertContribution, 1e-9)
	assert.InDelta(t, 1.0, r.Confidence, 1e-9)
}

func TestScore_BreakdownReconstructsScore(t *testing.T) {
	s := NewScorer(Weights{Turbidity: 0.2, Edge: 0.5, Expert: 0.3})
	cases := []struct {
		metrics models.OpticalMetrics
		expert  *Expert
	}{
		{models.OpticalMetrics{TurbidityScore: 0.31, EdgeDensityScore: 0.07, ColorVarianceScore: 0.5, DebrisLikelihood: 0.2}, nil},
		{models.OpticalMetrics{TurbidityScore: 0.9, EdgeDensityScore: 0.9}, &Expert{SeverityLevel: "critical"}},
		{models.OpticalMetrics{DebrisLikelihood: 0.33}, &Expert{SeverityLevel: "??", RiskScore: ptr(61.7)}},
		{models.OpticalMetrics{ColorVarianceScore: 0.01}, &Expert{SeverityLevel: "Safe"}},
	}

	for _, c := range cases {
		r := s.Score(c.metrics, nil, c.expert)
		assert.LessOrEqual(t, math.Abs(r.Breakdown.Total()-float64(r.RiskScore)), 1.0)
		assert.GreaterOrEqual(t, r.RiskScore, 0)
		assert.LessOrEqual(t, r.RiskScore, 100)
		w := r.Breakdown.Weights
		assert.InDelta(t, 1.0, w.TurbidityWeight+w.EdgeWeight+w.ExpertWeight, 1e-9)
	}
}

func TestScore_ExpertUnavailableRedistributesWeight(t *testing.T) {
	s := NewScorer(Weights{Turbidity: 1, Edge: 1, Expert: 2})

	r := s.Score(models.OpticalMetrics{TurbidityScore: 0.5, EdgeDensityScore: 0.5}, nil, nil)

	assert.InDelta(t, 0.5, r.Breakdown.Weights.TurbidityWeight, 1e-9)
	assert.InDelta(t, 0.5, r.Breakdown.Weights.EdgeWeight, 1e-9)
	assert.Equal(t, 0.0, r.Breakdown.Weights.ExpertWeight)
	assert.Equal(t, 50, r.RiskScore)
	assert.False(t, r.Channels.ExpertAvailable)
}

func TestScore_MonotoneInEvidence(t *testing.T) {
	s := NewScorer(DefaultWeights())
	prev := -1
	for i := 0; i <= 20; i++ {
		v := float64(i) / 20
		r := s.Score(models.OpticalMetrics{TurbidityScore: v, EdgeDensityScore: v, ColorVarianceScore: v / 2, DebrisLikelihood: v / 3}, nil, nil)
		assert.GreaterOrEqual(t, r.RiskScore, prev)
		prev = r.RiskScore
	}
}

func TestScore_EmbeddingOnlyAffectsConfidence(t *testing.T) {
	s := NewScorer(DefaultWeights())
	m := models.OpticalMetrics{TurbidityScore: 0.4, DebrisLikelihood: 0.6}

	without := s.Score(m, nil, nil)
	with := s.Score(m, []float64{0.3, 0.1, 0.9}, nil)

	assert.Equal(t, without.RiskScore, with.RiskScore)
	assert.Equal(t, without.Breakdown, with.Breakdown)
	assert.Greater(t, with.Confidence, without.Confidence)
}

func TestExpertChannel(t *testing.T) {
	tests := []struct {
		name   string
		expert *Expert
		want   float64
		ok     bool
	}{
		{"nil", nil, 0, false},
		{"safe", &Expert{SeverityLevel: "Safe"}, 0, true},
		{"low", &Expert{SeverityLevel: "low"}, 20, true},
		{"moderate", &Expert{SeverityLevel: " Moderate "}, 45, true},
		{"high", &Expert{SeverityLevel: "HIGH"}, 75, true},
		{"critical", &Expert{SeverityLevel: "Critical"}, 95, true},
		{"label wins over score", &Expert{SeverityLevel: "Low", RiskScore: ptr(90)}, 20, true},
		{"unknown label uses score", &Expert{SeverityLevel: "Severe", RiskScore: ptr(130)}, 100, true},
		{"unknown label no score", &Expert{SeverityLevel: "Severe"}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExpertChannel(tt.expert)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		score int
		want  models.RiskLevel
	}{
		{0, models.RiskLevelSafe},
		{14, models.RiskLevelSafe},
		{15, models.RiskLevelLow},
		{29, models.RiskLevelLow},
		{30, models.RiskLevelModerate},
		{59, models.RiskLevelModerate},
		{60, models.RiskLevelHigh},
		{89, models.RiskLevelHigh},
		{90, models.RiskLevelCritical},
		{100, models.RiskLevelCritical},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelFor(tt.score), "score %d", tt.score)
	}

	prev := -1
	for score := 0; score <= 100; score++ {
		rank := LevelFor(score).Rank()
		assert.GreaterOrEqual(t, rank, prev, "level must not decrease at score %d", score)
		prev = rank
	}
}

func TestWeights_Validate(t *testing.T) {
	assert.NoError(t, DefaultWeights().Validate())
	assert.NoError(t, Weights{Turbidity: 1, Edge: 0, Expert: 0}.Validate())
	assert.Error(t, Weights{Turbidity: -1, Edge: 1, Expert: 1}.Validate())
	assert.Error(t, Weights{Turbidity: 0, Edge: 0, Expert: 1}.Validate())
	assert.Error(t, Weights{Turbidity: math.NaN(), Edge: 1}.Validate())

	s := NewScorer(Weights{Turbidity: -5})
	assert.Equal(t, DefaultWeights(), s.Weights())
}

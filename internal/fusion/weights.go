package fusion

import (
	"fmt"
	"math"

	"github.com/anime-shed/microscan-go/pkg/models"
)

// Weights are the configured relative channel weights. Only their ratios
// matter; the scorer normalises them over the channels present.
type Weights struct {
	Turbidity float64 `toml:"turbidity_weight" validate:"gte=0"`
	Edge      float64 `toml:"edge_weight" validate:"gte=0"`
	Expert    float64 `toml:"expert_weight" validate:"gte=0"`
}

// DefaultWeights weighs the three channels equally
func DefaultWeights() Weights {
	return Weights{Turbidity: 1.0 / 3, Edge: 1.0 / 3, Expert: 1.0 / 3}
}

// Validate rejects negative weights and a classical pair that sums to zero,
// which would leave nothing to score when the expert is unavailable
func (w Weights) Validate() error {
	named := []struct {
		name  string
		value float64
	}{{"turbidity", w.Turbidity}, {"edge", w.Edge}, {"expert", w.Expert}}
	for _, n := range named {
		name, v := n.name, n.value
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s weight must be a finite non-negative number, got %v", name, v)
		}
	}
	if w.Turbidity+w.Edge <= 0 {
		return fmt.Errorf("turbidity and edge weights must not both be zero")
	}
	return nil
}

// Effective returns the weights applied to one score: the configured
// weights of the available channels scaled to sum to 1
func (w Weights) Effective(expertAvailable bool) models.ChannelWeights {
	expert := w.Expert
	if !expertAvailable {
		expert = 0
	}
	total := w.Turbidity + w.Edge + expert
	if total <= 0 {
		return models.ChannelWeights{TurbidityWeight: 0.5, EdgeWeight: 0.5}
	}
	return models.ChannelWeights{
		TurbidityWeight: w.Turbidity / total,
		EdgeWeight:      w.Edge / total,
		ExpertWeight:    expert / total,
	}
}

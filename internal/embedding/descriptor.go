package embedding

import (
	"context"
	"image"
	"math"

	"github.com/nfnt/resize"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/anime-shed/microscan-go/internal/optics"
)

const (
	descriptorSize      = 32
	descriptorGrid      = 4
	descriptorCellFeats = 8
	descriptorHistBins  = 4

	// DescriptorDimensions is the vector length of the local descriptor model
	DescriptorDimensions = descriptorGrid*descriptorGrid*descriptorCellFeats +
		descriptorHistBins*descriptorHistBins*descriptorHistBins
)

// DescriptorModel is a local feature-mode model: a fixed grid of color and
// texture statistics plus a coarse RGB histogram, L2-normalised.
type DescriptorModel struct{}

// LoadDescriptor is the Loader for the local descriptor model
func LoadDescriptor(ctx context.Context) (Model, error) {
	return DescriptorModel{}, nil
}

func (DescriptorModel) Name() string    { return "descriptor" }
func (DescriptorModel) Dimensions() int { return DescriptorDimensions }

// Infer computes the descriptor for img
func (DescriptorModel) Infer(ctx context.Context, img image.Image) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if img == nil || img.Bounds().Empty() {
		return nil, errEmptyImage
	}

	small := resize.Resize(descriptorSize, descriptorSize, img, resize.Lanczos3)
	b := small.Bounds()

	var (
		hueX, hueY, sat, val [descriptorSize * descriptorSize]float64
		hist                 [descriptorHistBins * descriptorHistBins * descriptorHistBins]float64
	)
	for y := 0; y < descriptorSize; y++ {
		for x := 0; x < descriptorSize; x++ {
			r, g, bl, _ := small.At(b.Min.X+x, b.Min.Y+y).RGBA()
			rf, gf, bf := float64(r)/65535.0, float64(g)/65535.0, float64(bl)/65535.0
			h, s, v := optics.RGBToHSV(rf, gf, bf)

			idx := y*descriptorSize + x
			rad := h * math.Pi / 180
			hueX[idx] = s * math.Cos(rad)
			hueY[idx] = s * math.Sin(rad)
			sat[idx] = s
			val[idx] = v

			bin := quantize(rf)*descriptorHistBins*descriptorHistBins + quantize(gf)*descriptorHistBins + quantize(bf)
			hist[bin]++
		}
	}

	vec := make([]float64, 0, DescriptorDimensions)
	cell := descriptorSize / descriptorGrid
	cellVals := make([]float64, 0, cell*cell)
	for gy := 0; gy < descriptorGrid; gy++ {
		for gx := 0; gx < descriptorGrid; gx++ {
			var sumHX, sumHY, sumS, grad, dark, bright float64
			cellVals = cellVals[:0]
			for y := gy * cell; y < (gy+1)*cell; y++ {
				for x := gx * cell; x < (gx+1)*cell; x++ {
					idx := y*descriptorSize + x
					sumHX += hueX[idx]
					sumHY += hueY[idx]
					sumS += sat[idx]
					cellVals = append(cellVals, val[idx])
					if x+1 < descriptorSize {
						grad += math.Abs(val[idx+1] - val[idx])
					}
					if y+1 < descriptorSize {
						grad += math.Abs(val[idx+descriptorSize] - val[idx])
					}
					if val[idx] < 0.2 {
						dark++
					}
					if val[idx] > 0.9 {
						bright++
					}
				}
			}
			n := float64(cell * cell)
			meanV, stdV := stat.PopMeanStdDev(cellVals, nil)
			vec = append(vec,
				sumHX/n, sumHY/n, sumS/n,
				meanV, stdV,
				grad/(2*n),
				dark/n, bright/n,
			)
		}
	}

	total := float64(descriptorSize * descriptorSize)
	for _, count := range hist {
		vec = append(vec, count/total)
	}

	if norm := floats.Norm(vec, 2); norm > 0 {
		floats.Scale(1/norm, vec)
	}
	return vec, nil
}

func quantize(v float64) int {
	q := int(v * descriptorHistBins)
	if q >= descriptorHistBins {
		q = descriptorHistBins - 1
	}
	if q < 0 {
		q = 0
	}
	return q
}

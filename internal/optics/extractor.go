package optics

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"

	"github.com/nfnt/resize"
	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	apperrors "github.com/anime-shed/microscan-go/internal/errors"
	"github.com/anime-shed/microscan-go/internal/logger"
	"github.com/anime-shed/microscan-go/pkg/models"
	"github.com/anime-shed/microscan-go/pkg/validation"
)

// FeatureExtractor derives the four optical proxies from an image
type FeatureExtractor interface {
	Extract(img image.Image) models.OpticalMetrics
	ExtractBytes(data []byte) (models.OpticalMetrics, image.Image, error)

	// Annotate draws edge pixels and debris boxes for img onto dst
	Annotate(dst draw.Image, img image.Image) error

	// Stats reports the worker pool counters
	Stats() PoolStats

	// Lifecycle management
	Close() error
}

type extractor struct {
	opts      ExtractorOptions
	pool      *WorkerPool
	validator *validation.ImageValidator
}

// NewExtractor creates a feature extractor with default options
func NewExtractor() FeatureExtractor {
	return NewExtractorWithOptions(DefaultExtractorOptions())
}

// NewExtractorWithOptions creates a feature extractor backed by its own worker pool
func NewExtractorWithOptions(opts ExtractorOptions) FeatureExtractor {
	opts = opts.normalized()
	pool := NewWorkerPool(opts.Workers)
	pool.Start()
	return &extractor{
		opts:      opts,
		pool:      pool,
		validator: validation.NewImageValidator(),
	}
}

func (e *extractor) Stats() PoolStats {
	return e.pool.GetStats()
}

// Close stops the worker pool
func (e *extractor) Close() error {
	e.pool.Close()
	return nil
}

// ExtractBytes decodes data and extracts metrics from the decoded image
func (e *extractor) ExtractBytes(data []byte) (models.OpticalMetrics, image.Image, error) {
	img, err := Decode(data)
	if err != nil {
		return models.OpticalMetrics{}, nil, err
	}
	return e.Extract(img), img, nil
}

// Decode decodes JPEG, PNG, GIF, WebP or BMP bytes
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, apperrors.NewDecodeError("Image payload is empty", nil)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.NewDecodeError("Failed to decode image", err)
	}
	logger.WithFields(logrus.Fields{
		"format": format,
		"width":  img.Bounds().Dx(),
		"height": img.Bounds().Dy(),
	}).Debug("Image decoded")
	return img, nil
}

// Extract computes the optical metrics. Degenerate images yield zero metrics
// flagged as degenerate.
func (e *extractor) Extract(img image.Image) models.OpticalMetrics {
	return e.analyze(img).metrics
}

// frame holds per-pixel planes of the working image, row-major
type frame struct {
	width, height int
	sat, val      []float64
	hueX, hueY    []float64 // saturation-weighted hue vector
	gray          []float64 // 0-255
}

// analysis is the full result of one extraction, including what the overlay draws
type analysis struct {
	metrics   models.OpticalMetrics
	edges     []bool
	blobs     []image.Rectangle
	workWidth int
	scaleX    float64
	scaleY    float64
}

func (e *extractor) analyze(img image.Image) analysis {
	result := analysis{scaleX: 1, scaleY: 1}
	if img == nil {
		result.metrics.Degenerate = true
		return result
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 || e.validator.TooSmall(width, height) {
		e.logDegenerate(validation.ImageStats{Width: width, Height: height})
		result.metrics.Degenerate = true
		return result
	}

	working := e.workingImage(img)
	wb := working.Bounds()
	result.workWidth = wb.Dx()
	result.scaleX = float64(width) / float64(wb.Dx())
	result.scaleY = float64(height) / float64(wb.Dy())

	f := e.buildFrame(working)

	meanS, stdS := stat.MeanStdDev(f.sat, nil)
	meanV, stdV := stat.MeanStdDev(f.val, nil)
	meanG, stdG := stat.MeanStdDev(f.gray, nil)

	stats := validation.ImageStats{
		Width:         width,
		Height:        height,
		GrayStdDev:    stdG,
		SaturationStd: stdS,
	}
	if issues := e.validator.Validate(stats); len(issues) > 0 {
		e.logDegenerate(stats)
		result.metrics.Degenerate = true
		return result
	}

	result.metrics.TurbidityScore = clamp01(0.7*(1-meanS)*meanV + 0.3*math.Min(1, stdV/0.3))
	result.metrics.ColorVarianceScore = clamp01(math.Max(
		hueDispersion(f)*math.Min(1, meanS/0.25),
		math.Min(1, stdS/0.35),
	))

	var edgeFraction float64
	result.edges, edgeFraction = e.detectEdges(f)
	result.metrics.EdgeDensityScore = clamp01(edgeFraction / e.opts.EdgeSaturation)

	result.blobs = e.detectBlobs(f, meanG, stdG)
	result.metrics.DebrisLikelihood = clamp01(float64(len(result.blobs)) / float64(e.opts.BlobSaturation))

	return result
}

func (e *extractor) logDegenerate(stats validation.ImageStats) {
	err := e.validator.AsInputError(e.validator.Validate(stats))
	if err == nil {
		return
	}
	logger.WithError(err).WithFields(logrus.Fields{
		"width":  stats.Width,
		"height": stats.Height,
	}).Debug("Degenerate image, returning zero metrics")
}

// workingImage downscales images larger than MaxDimension
func (e *extractor) workingImage(img image.Image) image.Image {
	b := img.Bounds()
	if b.Dx() <= e.opts.MaxDimension && b.Dy() <= e.opts.MaxDimension {
		return img
	}
	return resize.Thumbnail(uint(e.opts.MaxDimension), uint(e.opts.MaxDimension), img, resize.Bilinear)
}

// stripRanges splits rows into one contiguous strip per worker
func (e *extractor) stripRanges(height int) [][2]int {
	numStrips := e.pool.Workers()
	if height < numStrips {
		numStrips = height
	}
	if numStrips <= 0 {
		numStrips = 1
	}
	rowsPerStrip := (height + numStrips - 1) / numStrips // ceil division

	ranges := make([][2]int, 0, numStrips)
	for start := 0; start < height; start += rowsPerStrip {
		end := start + rowsPerStrip
		if end > height {
			end = height
		}
		ranges = append(ranges, [2]int{start, end})
	}
	return ranges
}

// buildFrame fills the planes strip by strip. Each strip writes a disjoint
// row range, so the result does not depend on scheduling.
func (e *extractor) buildFrame(img image.Image) *frame {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	n := w * h
	f := &frame{
		width:  w,
		height: h,
		sat:    make([]float64, n),
		val:    make([]float64, n),
		hueX:   make([]float64, n),
		hueY:   make([]float64, n),
		gray:   make([]float64, n),
	}

	ranges := e.stripRanges(h)
	jobs := make([]func(), len(ranges))
	for i, r := range ranges {
		startY, endY := r[0], r[1]
		jobs[i] = func() {
			for y := startY; y < endY; y++ {
				for x := 0; x < w; x++ {
					c := img.At(b.Min.X+x, b.Min.Y+y)
					rVal, gVal, bVal, _ := c.RGBA()
					// Convert from 16-bit to normalized float64
					rf := float64(rVal) / 65535.0
					gf := float64(gVal) / 65535.0
					bf := float64(bVal) / 65535.0

					hue, s, v := RGBToHSV(rf, gf, bf)
					rad := hue * math.Pi / 180
					idx := y*w + x
					f.sat[idx] = s
					f.val[idx] = v
					f.hueX[idx] = s * math.Cos(rad)
					f.hueY[idx] = s * math.Sin(rad)
					f.gray[idx] = float64(color.GrayModel.Convert(c).(color.Gray).Y)
				}
			}
		}
	}
	e.pool.Run(jobs)
	return f
}

// hueDispersion is one minus the resultant length of the saturation-weighted
// hue vectors: 0 for a single hue, approaching 1 for hues spread around the wheel.
func hueDispersion(f *frame) float64 {
	total := floats.Sum(f.sat)
	if total < 1e-9 {
		return 0
	}
	resultant := math.Hypot(floats.Sum(f.hueX), floats.Sum(f.hueY))
	return clamp01(1 - resultant/total)
}

// detectEdges runs a Sobel pass over the interior pixels and returns the
// edge mask and the fraction of interior pixels above threshold
func (e *extractor) detectEdges(f *frame) ([]bool, float64) {
	w, h := f.width, f.height
	mask := make([]bool, w*h)
	if w < 3 || h < 3 {
		return mask, 0
	}

	ranges := e.stripRanges(h - 2)
	counts := make([]int, len(ranges))
	jobs := make([]func(), len(ranges))
	for i, r := range ranges {
		i, startY, endY := i, r[0]+1, r[1]+1
		jobs[i] = func() {
			count := 0
			for y := startY; y < endY; y++ {
				for x := 1; x < w-1; x++ {
					gx := sobelX(f, x, y)
					gy := sobelY(f, x, y)
					if math.Sqrt(gx*gx+gy*gy) > e.opts.EdgeThreshold {
						mask[y*w+x] = true
						count++
					}
				}
			}
			counts[i] = count
		}
	}
	e.pool.Run(jobs)

	total := 0
	for _, c := range counts {
		total += c
	}
	return mask, float64(total) / float64((w-2)*(h-2))
}

// sobelX computes the Sobel X gradient
func sobelX(f *frame, x, y int) float64 {
	g := f.gray
	w := f.width
	return -g[(y-1)*w+x-1] + g[(y-1)*w+x+1] +
		-2*g[y*w+x-1] + 2*g[y*w+x+1] +
		-g[(y+1)*w+x-1] + g[(y+1)*w+x+1]
}

// sobelY computes the Sobel Y gradient
func sobelY(f *frame, x, y int) float64 {
	g := f.gray
	w := f.width
	return -g[(y-1)*w+x-1] - 2*g[(y-1)*w+x] - g[(y-1)*w+x+1] +
		g[(y+1)*w+x-1] + 2*g[(y+1)*w+x] + g[(y+1)*w+x+1]
}

// detectBlobs labels 4-connected components of strongly deviating pixels and
// keeps those whose area falls within the debris size range
func (e *extractor) detectBlobs(f *frame, meanG, stdG float64) []image.Rectangle {
	w, h := f.width, f.height
	n := w * h
	threshold := math.Max(64, 2.5*stdG)
	maxArea := int(e.opts.MaxBlobFraction * float64(n))

	mask := make([]bool, n)
	for i, g := range f.gray {
		mask[i] = math.Abs(g-meanG) > threshold
	}

	var blobs []image.Rectangle
	visited := make([]bool, n)
	queue := make([]int, 0, 64)
	for start := 0; start < n; start++ {
		if !mask[start] || visited[start] {
			continue
		}

		visited[start] = true
		queue = append(queue[:0], start)
		rect := image.Rect(start%w, start/w, start%w+1, start/w+1)
		area := 0
		for len(queue) > 0 {
			idx := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			area++

			x, y := idx%w, idx/w
			rect = rect.Union(image.Rect(x, y, x+1, y+1))
			for _, nb := range [4][2]int{{x - 1, y}, {x + 1, y}, {x, y - 1}, {x, y + 1}} {
				nx, ny := nb[0], nb[1]
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				ni := ny*w + nx
				if mask[ni] && !visited[ni] {
					visited[ni] = true
					queue = append(queue, ni)
				}
			}
		}

		if area >= e.opts.BlobMinArea && area <= maxArea {
			blobs = append(blobs, rect)
		}
	}
	return blobs
}

// RGBToHSV converts normalized RGB to hue in degrees and saturation, value in [0,1]
func RGBToHSV(r, g, b float64) (h, s, v float64) {
	max := math.Max(r, math.Max(g, b))
	min := math.Min(r, math.Min(g, b))
	delta := max - min

	v = max

	if max == 0 {
		s = 0
	} else {
		s = delta / max
	}

	if delta == 0 {
		h = 0
	} else if max == r {
		h = 60 * (((g - b) / delta) + 0)
	} else if max == g {
		h = 60 * (((b - r) / delta) + 2)
	} else {
		h = 60 * (((r - g) / delta) + 4)
	}

	if h < 0 {
		h += 360
	}

	return h, s, v
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

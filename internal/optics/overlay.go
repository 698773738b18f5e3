package optics

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
)

var (
	edgeColor   = color.RGBA{R: 0, G: 255, B: 255, A: 255}
	debrisColor = color.RGBA{R: 255, G: 0, B: 64, A: 255}
)

// Annotate copies img onto dst, then marks edge pixels and outlines debris
// candidates. dst must be at least as large as img. Neither img nor the
// metrics Extract returns are affected.
func (e *extractor) Annotate(dst draw.Image, img image.Image) error {
	if dst == nil || img == nil {
		return fmt.Errorf("annotate: nil image")
	}
	src := img.Bounds()
	if dst.Bounds().Dx() < src.Dx() || dst.Bounds().Dy() < src.Dy() {
		return fmt.Errorf("annotate: canvas %v smaller than image %v", dst.Bounds().Size(), src.Size())
	}

	origin := dst.Bounds().Min
	draw.Draw(dst, image.Rectangle{Min: origin, Max: origin.Add(src.Size())}, img, src.Min, draw.Src)

	result := e.analyze(img)
	if result.metrics.Degenerate {
		return nil
	}

	if result.workWidth > 0 {
		for idx, isEdge := range result.edges {
			if !isEdge {
				continue
			}
			x, y := idx%result.workWidth, idx/result.workWidth
			dst.Set(origin.X+int(float64(x)*result.scaleX), origin.Y+int(float64(y)*result.scaleY), edgeColor)
		}
	}

	for _, blob := range result.blobs {
		r := image.Rect(
			int(float64(blob.Min.X)*result.scaleX)-1,
			int(float64(blob.Min.Y)*result.scaleY)-1,
			int(float64(blob.Max.X)*result.scaleX)+1,
			int(float64(blob.Max.Y)*result.scaleY)+1,
		).Add(origin)
		strokeRect(dst, r.Intersect(dst.Bounds()), debrisColor)
	}
	return nil
}

// strokeRect draws a one pixel outline
func strokeRect(dst draw.Image, r image.Rectangle, c color.Color) {
	if r.Empty() {
		return
	}
	for x := r.Min.X; x < r.Max.X; x++ {
		dst.Set(x, r.Min.Y, c)
		dst.Set(x, r.Max.Y-1, c)
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		dst.Set(r.Min.X, y, c)
		dst.Set(r.Max.X-1, y, c)
	}
}

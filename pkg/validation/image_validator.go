package validation

import (
	"fmt"

	apperrors "github.com/anime-shed/microscan-go/internal/errors"
)

// ImageThresholds defines when a decoded image is too degenerate to score
type ImageThresholds struct {
	// Resolution thresholds
	MinWidth  int
	MinHeight int

	// Uniformity thresholds. An image whose gray level and saturation both
	// spread less than these is treated as a single flat color; the margins
	// absorb sensor and compression noise.
	MinGrayStdDev       float64
	MinSaturationStdDev float64
}

// DefaultImageThresholds returns the default degenerate-image thresholds
func DefaultImageThresholds() ImageThresholds {
	return ImageThresholds{
		MinWidth:            8,
		MinHeight:           8,
		MinGrayStdDev:       4.0,
		MinSaturationStdDev: 0.03,
	}
}

// ImageStats are the cheap global statistics the validator needs
type ImageStats struct {
	Width         int
	Height        int
	GrayStdDev    float64 // 0-255 scale
	SaturationStd float64 // 0-1 scale
}

// ImageIssue represents a reason an image cannot carry optical signal
type ImageIssue struct {
	Type        string  `json:"type"`
	Message     string  `json:"message"`
	ActualValue float64 `json:"actual_value,omitempty"`
	Threshold   float64 `json:"threshold,omitempty"`
}

// ImageValidator classifies decoded images as usable or degenerate
type ImageValidator struct {
	thresholds ImageThresholds
}

// NewImageValidator creates a validator with default thresholds
func NewImageValidator() *ImageValidator {
	return &ImageValidator{thresholds: DefaultImageThresholds()}
}

// NewImageValidatorWithThresholds creates a validator with custom thresholds
func NewImageValidatorWithThresholds(thresholds ImageThresholds) *ImageValidator {
	return &ImageValidator{thresholds: thresholds}
}

// Thresholds returns the thresholds in use
func (v *ImageValidator) Thresholds() ImageThresholds {
	return v.thresholds
}

// TooSmall reports whether the dimensions alone make the image degenerate
func (v *ImageValidator) TooSmall(width, height int) bool {
	return width < v.thresholds.MinWidth || height < v.thresholds.MinHeight
}

// Validate returns every degeneracy issue found for the image
func (v *ImageValidator) Validate(stats ImageStats) []ImageIssue {
	var issues []ImageIssue

	if stats.Width == 0 || stats.Height == 0 {
		return append(issues, ImageIssue{
			Type:    "zero_size",
			Message: "Image has no pixels.",
		})
	}

	if v.TooSmall(stats.Width, stats.Height) {
		issues = append(issues, ImageIssue{
			Type:        "too_small",
			Message:     fmt.Sprintf("Image is %dx%d; at least %dx%d is needed.", stats.Width, stats.Height, v.thresholds.MinWidth, v.thresholds.MinHeight),
			ActualValue: float64(stats.Width * stats.Height),
			Threshold:   float64(v.thresholds.MinWidth * v.thresholds.MinHeight),
		})
	}

	if stats.GrayStdDev < v.thresholds.MinGrayStdDev && stats.SaturationStd < v.thresholds.MinSaturationStdDev {
		issues = append(issues, ImageIssue{
			Type:        "uniform",
			Message:     "Image is a single flat color.",
			ActualValue: stats.GrayStdDev,
			Threshold:   v.thresholds.MinGrayStdDev,
		})
	}

	return issues
}

// AsInputError folds issues into one InputError, or nil when there are none
func (v *ImageValidator) AsInputError(issues []ImageIssue) error {
	if len(issues) == 0 {
		return nil
	}
	return apperrors.NewInputError(issues[0].Message, fmt.Errorf("%d degenerate image issue(s), first: %s", len(issues), issues[0].Type))
}

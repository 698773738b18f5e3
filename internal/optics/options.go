package optics

// ExtractorOptions tunes the optical feature passes
type ExtractorOptions struct {
	// Edge pass
	EdgeThreshold  float64 // Sobel magnitude above which a pixel counts as an edge
	EdgeSaturation float64 // edge fraction that maps to a full edge score

	// Blob pass
	BlobMinArea     int     // smallest connected component counted as debris, in pixels
	MaxBlobFraction float64 // largest component counted, as a fraction of the image
	BlobSaturation  int     // debris count that maps to a full debris score

	// Working resolution. Larger images are downscaled before extraction.
	MaxDimension int

	// Performance options
	Workers int // 0 uses the CPU count
}

// DefaultExtractorOptions returns the calibrated default options
func DefaultExtractorOptions() ExtractorOptions {
	return ExtractorOptions{
		EdgeThreshold:   100,
		EdgeSaturation:  0.25,
		BlobMinArea:     4,
		MaxBlobFraction: 0.01,
		BlobSaturation:  12,
		MaxDimension:    1024,
		Workers:         0,
	}
}

// WithWorkers returns options with a fixed worker count
func (opts ExtractorOptions) WithWorkers(workers int) ExtractorOptions {
	opts.Workers = workers
	return opts
}

// WithEdgeThreshold returns options with a custom Sobel threshold
func (opts ExtractorOptions) WithEdgeThreshold(threshold float64) ExtractorOptions {
	opts.EdgeThreshold = threshold
	return opts
}

// normalized replaces unusable values with defaults
func (opts ExtractorOptions) normalized() ExtractorOptions {
	def := DefaultExtractorOptions()
	if opts.EdgeThreshold <= 0 {
		opts.EdgeThreshold = def.EdgeThreshold
	}
	if opts.EdgeSaturation <= 0 {
		opts.EdgeSaturation = def.EdgeSaturation
	}
	if opts.BlobMinArea <= 0 {
		opts.BlobMinArea = def.BlobMinArea
	}
	if opts.MaxBlobFraction <= 0 || opts.MaxBlobFraction > 1 {
		opts.MaxBlobFraction = def.MaxBlobFraction
	}
	if opts.BlobSaturation <= 0 {
		opts.BlobSaturation = def.BlobSaturation
	}
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = def.MaxDimension
	}
	return opts
}

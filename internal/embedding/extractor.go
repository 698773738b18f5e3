package embedding

import (
	"context"
	"image"

	"github.com/sirupsen/logrus"

	apperrors "github.com/anime-shed/microscan-go/internal/errors"
	"github.com/anime-shed/microscan-go/internal/logger"
)

// Extractor produces best-effort embeddings through a shared Handle
type Extractor struct {
	handle *Handle
}

// NewExtractor creates an extractor over handle
func NewExtractor(handle *Handle) *Extractor {
	return &Extractor{handle: handle}
}

// Handle returns the underlying model handle
func (e *Extractor) Handle() *Handle {
	return e.handle
}

// Embed returns the embedding for img, or an empty vector when the model
// cannot be loaded or inference fails. It never fails the caller.
func (e *Extractor) Embed(ctx context.Context, img image.Image) []float64 {
	vec, err := e.TryEmbed(ctx, img)
	if err != nil {
		logger.WithError(err).Warn("Embedding unavailable, continuing without it")
		return []float64{}
	}
	return vec
}

// TryEmbed is Embed with the EmbeddingUnavailable error exposed
func (e *Extractor) TryEmbed(ctx context.Context, img image.Image) ([]float64, error) {
	if e == nil || e.handle == nil {
		return nil, apperrors.NewEmbeddingUnavailableError("Embedding model not configured", ErrDisabled)
	}

	model, err := e.handle.Get(ctx)
	if err != nil {
		return nil, apperrors.NewEmbeddingUnavailableError("Embedding model failed to load", err)
	}

	vec, err := model.Infer(ctx, img)
	if err != nil {
		return nil, apperrors.NewEmbeddingUnavailableError("Embedding inference failed", err)
	}

	logger.WithFields(logrus.Fields{
		"model":      model.Name(),
		"dimensions": len(vec),
	}).Debug("Embedding computed")
	return vec, nil
}

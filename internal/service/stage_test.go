package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/anime-shed/microscan-go/internal/errors"
)

func TestStageResult(t *testing.T) {
	ok := Ok(3)
	assert.True(t, ok.IsOK())
	assert.Equal(t, 3, ok.Value)
	assert.Equal(t, "ok", ok.Status.String())

	cause := errors.New("model missing")
	deg := Degraded([]float64{}, ReasonEmbeddingUnavailable, cause)
	assert.False(t, deg.IsOK())
	assert.Equal(t, ReasonEmbeddingUnavailable, deg.Reason)
	assert.ErrorIs(t, deg.Err, cause)
	assert.NotNil(t, deg.Value)

	failed := Failed[string](cause)
	assert.Equal(t, StageFailed, failed.Status)
	assert.Equal(t, "", failed.Value)
	assert.Equal(t, "failed", failed.Status.String())
}

func TestDecodeStage(t *testing.T) {
	failed := decodeStage([]byte("not an image"))
	assert.Equal(t, StageFailed, failed.Status)
	assert.Nil(t, failed.Value)
	assert.True(t, apperrors.IsType(failed.Err, apperrors.ErrorTypeDecode))

	ok := decodeStage(checkerboard(t))
	require.True(t, ok.IsOK())
	assert.Equal(t, 64, ok.Value.Bounds().Dx())
}

func TestScan_MissingFeatureExtractorFails(t *testing.T) {
	svc := NewScanService(nil, nil, nil, nil, nil, DefaultOptions())

	resp, err := svc.Scan(context.Background(), checkerboard(t))

	assert.Nil(t, resp)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInternal), "got %v", err)
}

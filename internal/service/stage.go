package service

// StageStatus tags the outcome of one pipeline stage
type StageStatus int

const (
	StageOK StageStatus = iota
	StageDegraded
	StageFailed
)

func (s StageStatus) String() string {
	switch s {
	case StageOK:
		return "ok"
	case StageDegraded:
		return "degraded"
	case StageFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Reason codes reported in AnalysisResponse.Degraded
const (
	ReasonDegenerateImage      = "degenerate_image"
	ReasonEmbeddingUnavailable = "embedding_unavailable"
	ReasonAssessorUnavailable  = "assessor_unavailable"
)

// StageResult is the outcome of one stage: a value, a usable fallback value
// with the reason it was degraded, or a failure
type StageResult[T any] struct {
	Value  T
	Status StageStatus
	Reason string
	Err    error
}

// Ok wraps a successful stage value
func Ok[T any](v T) StageResult[T] {
	return StageResult[T]{Value: v, Status: StageOK}
}

// Degraded wraps a fallback value produced after a recoverable error
func Degraded[T any](v T, reason string, err error) StageResult[T] {
	return StageResult[T]{Value: v, Status: StageDegraded, Reason: reason, Err: err}
}

// Failed wraps a stage that produced nothing usable
func Failed[T any](err error) StageResult[T] {
	return StageResult[T]{Status: StageFailed, Err: err}
}

// IsOK reports whether the stage succeeded fully
func (r StageResult[T]) IsOK() bool {
	return r.Status == StageOK
}

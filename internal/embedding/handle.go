package embedding

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"
)

// Model turns an image into a fixed-length embedding vector. Infer must be
// safe for concurrent use; models are read-only after loading.
type Model interface {
	Name() string
	Dimensions() int
	Infer(ctx context.Context, img image.Image) ([]float64, error)
}

// Loader constructs a model. It is called at most once per Handle.
type Loader func(ctx context.Context) (Model, error)

// ErrDisabled is returned by the loader of the disabled provider
var ErrDisabled = errors.New("embedding model disabled")

// HandleState describes the load status reported by /health
type HandleState string

const (
	StateNotLoaded HandleState = "not_loaded"
	StateReady     HandleState = "ready"
	StateFailed    HandleState = "failed"
)

// loadTimeout bounds a single model load. The load is detached from the
// caller's cancellation, so this is its only deadline.
const loadTimeout = 60 * time.Second

// loadAttempt holds the outcome of one load; Reset starts a new attempt
type loadAttempt struct {
	once  sync.Once
	model Model
	err   error
	done  bool
}

// Handle is the process-wide load-once guard around a model. Concurrent
// first callers block on a single load; the outcome, including a failure,
// is kept until Reset.
type Handle struct {
	loader Loader

	mu      sync.Mutex
	attempt *loadAttempt
}

// NewHandle creates a handle that loads lazily with loader
func NewHandle(loader Loader) *Handle {
	return &Handle{loader: loader, attempt: new(loadAttempt)}
}

// Get returns the loaded model, loading it on first use. The first caller's
// cancellation does not abort the shared load.
func (h *Handle) Get(ctx context.Context) (Model, error) {
	h.mu.Lock()
	attempt := h.attempt
	h.mu.Unlock()

	attempt.once.Do(func() {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()

		model, err := h.loader(loadCtx)
		if err == nil && model == nil {
			err = errors.New("embedding loader returned no model")
		}
		h.mu.Lock()
		attempt.model, attempt.err, attempt.done = model, err, true
		h.mu.Unlock()
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	return attempt.model, attempt.err
}

// State reports whether the model has been loaded
func (h *Handle) State() HandleState {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch {
	case !h.attempt.done:
		return StateNotLoaded
	case h.attempt.err != nil:
		return StateFailed
	default:
		return StateReady
	}
}

// Reset discards the loaded model or memoised failure so the next Get loads
// again. Calls already holding the previous attempt keep its outcome.
func (h *Handle) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attempt = new(loadAttempt)
}

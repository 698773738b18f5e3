package factory

import (
	"fmt"
	"net/http"

	"github.com/anime-shed/microscan-go/internal/assessor"
	"github.com/anime-shed/microscan-go/internal/config"
	"github.com/anime-shed/microscan-go/internal/embedding"
	"github.com/anime-shed/microscan-go/internal/logger"
	"github.com/anime-shed/microscan-go/internal/resilience"
	"github.com/anime-shed/microscan-go/internal/retry"
	"github.com/anime-shed/microscan-go/internal/storage"
)

// EmbeddingType selects the embedding model implementation
type EmbeddingType string

const (
	// NoEmbedding disables embeddings; every scan reports an empty vector
	NoEmbedding EmbeddingType = "none"
	// DescriptorEmbedding is the in-process pixel descriptor
	DescriptorEmbedding EmbeddingType = "descriptor"
	// RemoteEmbedding calls an HTTP embedding service
	RemoteEmbedding EmbeddingType = "remote"
)

// AssessorType selects the qualitative assessor implementation
type AssessorType string

const (
	NoAssessor     AssessorType = "none"
	OpenAIAssessor AssessorType = "openai"
)

// StorageType represents different types of image sources
type StorageType string

const (
	// HTTPStorage for HTTP-based image fetching
	HTTPStorage StorageType = "http"
	// LocalStorage for local file system
	LocalStorage StorageType = "local"
)

// EmbeddingFactory creates embedding model loaders
type EmbeddingFactory interface {
	CreateLoader(cfg config.EmbeddingConfig) (embedding.Loader, error)
}

// AssessorFactory creates qualitative assessors
type AssessorFactory interface {
	CreateAssessor(cfg config.AssessorConfig) (assessor.Assessor, error)
}

// StorageFactory creates image sources
type StorageFactory interface {
	CreateStorage(storageType StorageType) (storage.ImageFetcher, error)
}

// embeddingFactory implements EmbeddingFactory
type embeddingFactory struct{}

// NewEmbeddingFactory creates a new embedding factory
func NewEmbeddingFactory() EmbeddingFactory {
	return &embeddingFactory{}
}

// CreateLoader returns the loader for the configured provider. Loading is
// deferred to the first scan.
func (f *embeddingFactory) CreateLoader(cfg config.EmbeddingConfig) (embedding.Loader, error) {
	switch EmbeddingType(cfg.Provider) {
	case NoEmbedding:
		return embedding.LoadDisabled, nil
	case DescriptorEmbedding, "":
		return embedding.LoadDescriptor, nil
	case RemoteEmbedding:
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("remote embedding requires a base URL")
		}
		return embedding.RemoteLoader(embedding.RemoteConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			APIKey:  cfg.APIKey,
			Retry:   retry.DefaultConfig(),
		}), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}

// assessorFactory implements AssessorFactory
type assessorFactory struct {
	breaker resilience.CircuitBreakerConfig
}

// NewAssessorFactory creates an assessor factory whose remote assessors are
// guarded by a circuit breaker built from breaker
func NewAssessorFactory(breaker resilience.CircuitBreakerConfig) AssessorFactory {
	return &assessorFactory{breaker: breaker}
}

// CreateAssessor builds the configured assessor. A provider without
// credentials falls back to the disabled assessor so scans degrade instead
// of failing.
func (f *assessorFactory) CreateAssessor(cfg config.AssessorConfig) (assessor.Assessor, error) {
	switch AssessorType(cfg.Provider) {
	case NoAssessor, "":
		return assessor.Disabled{}, nil
	case OpenAIAssessor:
		if cfg.APIKey == "" {
			logger.Warn("ASSESSOR_API_KEY is empty, expert assessment disabled")
			return assessor.Disabled{}, nil
		}
		openai := assessor.NewOpenAI(assessor.OpenAIConfig{
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			HTTPClient: &http.Client{Timeout: cfg.Timeout},
			Retry:      retry.DefaultConfig(),
		})
		return assessor.NewGuarded(openai, f.breaker), nil
	default:
		return nil, fmt.Errorf("unsupported assessor provider: %s", cfg.Provider)
	}
}

// storageFactory implements StorageFactory
type storageFactory struct{}

// NewStorageFactory creates a new storage factory
func NewStorageFactory() StorageFactory {
	return &storageFactory{}
}

// CreateStorage creates an image source based on the specified type
func (f *storageFactory) CreateStorage(storageType StorageType) (storage.ImageFetcher, error) {
	switch storageType {
	case HTTPStorage:
		return storage.NewHTTPImageFetcher(), nil
	case LocalStorage:
		return storage.NewFileImageFetcher(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}

// ComponentFactory combines all factories
type ComponentFactory struct {
	EmbeddingFactory EmbeddingFactory
	AssessorFactory  AssessorFactory
	StorageFactory   StorageFactory
}

// NewComponentFactory creates a new component factory
func NewComponentFactory() *ComponentFactory {
	return &ComponentFactory{
		EmbeddingFactory: NewEmbeddingFactory(),
		AssessorFactory:  NewAssessorFactory(resilience.CircuitBreakerConfig{}),
		StorageFactory:   NewStorageFactory(),
	}
}

package service

import (
	"context"
	"encoding/base64"
	"errors"
	"image"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/anime-shed/microscan-go/internal/assessor"
	"github.com/anime-shed/microscan-go/internal/embedding"
	apperrors "github.com/anime-shed/microscan-go/internal/errors"
	"github.com/anime-shed/microscan-go/internal/fusion"
	"github.com/anime-shed/microscan-go/internal/logger"
	"github.com/anime-shed/microscan-go/internal/observer"
	"github.com/anime-shed/microscan-go/internal/optics"
	"github.com/anime-shed/microscan-go/pkg/models"
)

// Scanner is the scoring pipeline as seen by transports and the CLI
type Scanner interface {
	// Analyze scores a wire request; metrics and embedding may be precomputed by the caller
	Analyze(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResponse, error)
	// Scan runs the full pipeline on raw image bytes
	Scan(ctx context.Context, data []byte) (*models.AnalysisResponse, error)
}

// assessorDeadlineMargin is kept free before the caller's deadline for fusion and the response
const assessorDeadlineMargin = 100 * time.Millisecond

// Options tunes the pipeline
type Options struct {
	AssessorTimeout time.Duration
	// ComputeEmbedding lets Analyze compute an embedding when the request has none
	ComputeEmbedding bool
}

// DefaultOptions returns the pipeline defaults
func DefaultOptions() Options {
	return Options{
		AssessorTimeout:  20 * time.Second,
		ComputeEmbedding: true,
	}
}

// ScanService fuses optical metrics, embedding and expert assessment into one score
type ScanService struct {
	features optics.FeatureExtractor
	embedder *embedding.Extractor
	assessor assessor.Assessor
	scorer   *fusion.Scorer
	events   observer.Subject
	opts     Options
	validate *validator.Validate
	now      func() time.Time
}

// NewScanService wires the pipeline. embedder, expert and events may be nil.
func NewScanService(
	features optics.FeatureExtractor,
	embedder *embedding.Extractor,
	expert assessor.Assessor,
	scorer *fusion.Scorer,
	events observer.Subject,
	opts Options,
) *ScanService {
	if expert == nil {
		expert = assessor.Disabled{}
	}
	if scorer == nil {
		scorer = fusion.NewScorer(fusion.DefaultWeights())
	}
	if opts.AssessorTimeout <= 0 {
		opts.AssessorTimeout = DefaultOptions().AssessorTimeout
	}
	return &ScanService{
		features: features,
		embedder: embedder,
		assessor: expert,
		scorer:   scorer,
		events:   events,
		opts:     opts,
		validate: validator.New(),
		now:      time.Now,
	}
}

// Analyze is the scoring endpoint path
func (s *ScanService) Analyze(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResponse, error) {
	data, err := DecodeImagePayload(req.ImageBase64)
	if err != nil {
		return nil, err
	}
	if req.OpticalMetrics != nil {
		if err := s.validate.Struct(req.OpticalMetrics); err != nil {
			return nil, apperrors.NewValidationError("Optical metrics must lie in [0,1]", err)
		}
	}
	return s.run(ctx, data, req.OpticalMetrics, req.Embeddings, s.opts.ComputeEmbedding)
}

// Scan is the local full path: extraction, embedding, assessment and fusion
func (s *ScanService) Scan(ctx context.Context, data []byte) (*models.AnalysisResponse, error) {
	return s.run(ctx, data, nil, nil, true)
}

func (s *ScanService) run(ctx context.Context, data []byte, metrics *models.OpticalMetrics, emb []float64, computeEmbedding bool) (*models.AnalysisResponse, error) {
	started := s.now()
	scanID := uuid.NewString()
	s.notify(ctx, observer.ScanEvent{EventType: observer.ScanStarted, ScanID: scanID, Success: true})

	resp, err := s.score(ctx, scanID, started, data, metrics, emb, computeEmbedding)
	if err != nil {
		s.notify(ctx, observer.ScanEvent{
			EventType:      observer.ScanFailed,
			ScanID:         scanID,
			ProcessingTime: s.now().Sub(started),
			ErrorMessage:   err.Error(),
		})
		return nil, err
	}

	s.notify(ctx, observer.ScanEvent{
		EventType:      observer.ScanCompleted,
		ScanID:         scanID,
		ProcessingTime: s.now().Sub(started),
		Success:        true,
		RiskScore:      resp.RiskScore,
		RiskLevel:      string(resp.RiskLevel),
		Degraded:       resp.Degraded,
	})
	return resp, nil
}

func (s *ScanService) score(ctx context.Context, scanID string, started time.Time, data []byte, provided *models.OpticalMetrics, providedEmb []float64, computeEmbedding bool) (*models.AnalysisResponse, error) {
	decoded := decodeStage(data)
	if decoded.Status == StageFailed {
		return nil, decoded.Err
	}

	metricsStage, embStage, err := s.extract(ctx, decoded.Value, provided, providedEmb, computeEmbedding)
	if err != nil {
		return nil, err
	}

	expert := s.assess(ctx, scanID, assessor.Input{
		Image:     data,
		MIMEType:  http.DetectContentType(data),
		Metrics:   metricsStage.Value,
		Embedding: embStage.Value,
	})
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil, apperrors.NewTimeoutError("Scan cancelled", ctx.Err())
	}

	var degraded []string
	for _, reason := range []string{metricsStage.Reason, embStage.Reason, expert.Reason} {
		if reason != "" {
			degraded = append(degraded, reason)
		}
	}

	fused := s.scorer.Score(metricsStage.Value, embStage.Value, expert.Value.Expert())

	return assemble(assembly{
		ScanID:    scanID,
		Fused:     fused,
		Metrics:   metricsStage.Value,
		Embedding: embStage.Value,
		Expert:    expert,
		Degraded:  degraded,
		Started:   started,
		Finished:  s.now(),
	}), nil
}

// decodeStage decodes the image bytes; undecodable input fails the scan
func decodeStage(data []byte) StageResult[image.Image] {
	img, err := optics.Decode(data)
	if err != nil {
		return Failed[image.Image](err)
	}
	return Ok(img)
}

// extract runs feature extraction and embedding concurrently, skipping
// whichever the caller already supplied
func (s *ScanService) extract(ctx context.Context, img image.Image, provided *models.OpticalMetrics, providedEmb []float64, computeEmbedding bool) (StageResult[models.OpticalMetrics], StageResult[[]float64], error) {
	var (
		metricsStage StageResult[models.OpticalMetrics]
		embStage     StageResult[[]float64]
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m := models.OpticalMetrics{}
		if provided != nil {
			m = *provided
		} else if s.features != nil {
			m = s.features.Extract(img)
		} else {
			metricsStage = Failed[models.OpticalMetrics](apperrors.NewInternalError("Feature extractor not configured", nil))
			return metricsStage.Err
		}
		if m.Degenerate {
			metricsStage = Degraded(m, ReasonDegenerateImage, apperrors.NewInputError("Degenerate image", nil))
		} else {
			metricsStage = Ok(m)
		}
		return nil
	})
	g.Go(func() error {
		switch {
		case len(providedEmb) > 0:
			embStage = Ok(providedEmb)
		case !computeEmbedding || s.embedder == nil:
			embStage = Ok([]float64{})
		default:
			vec, err := s.embedder.TryEmbed(gctx, img)
			if err != nil {
				embStage = Degraded([]float64{}, ReasonEmbeddingUnavailable, err)
				logger.WithError(err).Warn("Embedding unavailable, continuing without it")
			} else {
				embStage = Ok(vec)
			}
		}
		return gctx.Err()
	})

	if err := g.Wait(); err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return metricsStage, embStage, err
		}
		return metricsStage, embStage, apperrors.NewTimeoutError("Scan cancelled", err)
	}
	return metricsStage, embStage, nil
}

// assessorBudget is the assessor timeout, cut short so that fusion still
// fits before the caller's deadline. A non-positive budget skips the call.
func (s *ScanService) assessorBudget(ctx context.Context) time.Duration {
	budget := s.opts.AssessorTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := deadline.Sub(s.now()) - assessorDeadlineMargin; left < budget {
			budget = left
		}
	}
	return budget
}

// assess calls the assessor under its own timeout. The caller's context is
// the parent, so a disconnecting caller cancels the call. Any failure
// degrades to a nil assessment.
func (s *ScanService) assess(ctx context.Context, scanID string, in assessor.Input) StageResult[*assessor.Assessment] {
	budget := s.assessorBudget(ctx)
	if budget <= 0 {
		err := apperrors.NewAssessorUnavailableError("No time left for expert assessment", context.DeadlineExceeded)
		logger.WithFields(logrus.Fields{"scan_id": scanID}).Warn("Skipping assessor, request deadline too close")
		return Degraded[*assessor.Assessment](nil, ReasonAssessorUnavailable, err)
	}
	actx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	type outcome struct {
		a   *assessor.Assessment
		err error
	}
	done := make(chan outcome, 1)
	start := s.now()
	go func() {
		a, err := s.assessor.Assess(actx, in)
		done <- outcome{a, err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-actx.Done():
		out.err = actx.Err()
	}
	if out.err == nil && out.a == nil {
		out.err = errors.New("assessor returned no assessment")
	}

	event := observer.ScanEvent{
		EventType:      observer.AssessorFinished,
		ScanID:         scanID,
		ProcessingTime: s.now().Sub(start),
		Success:        out.err == nil,
		Metadata:       map[string]interface{}{"assessor": s.assessor.Name()},
	}
	if out.err != nil {
		event.ErrorMessage = out.err.Error()
	}
	s.notify(ctx, event)

	if out.err != nil {
		err := apperrors.NewAssessorUnavailableError("Expert assessment unavailable", out.err)
		if !errors.Is(out.err, assessor.ErrNotConfigured) {
			logger.WithError(err).WithFields(logrus.Fields{
				"scan_id":  scanID,
				"assessor": s.assessor.Name(),
			}).Warn("Assessor failed, scoring from optical metrics only")
		}
		return Degraded[*assessor.Assessment](nil, ReasonAssessorUnavailable, err)
	}
	return Ok(out.a)
}

func (s *ScanService) notify(ctx context.Context, event observer.ScanEvent) {
	if s.events == nil {
		return
	}
	event.Timestamp = s.now()
	s.events.NotifyObservers(ctx, event)
}

// DecodeImagePayload decodes a base64 image, accepting an optional
// data:image/...;base64, prefix and unpadded input
func DecodeImagePayload(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if i := strings.Index(payload, "base64,"); i >= 0 && strings.HasPrefix(payload, "data:") {
		payload = payload[i+len("base64,"):]
	}
	if payload == "" {
		return nil, apperrors.NewDecodeError("Image payload is empty", nil)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		var rawErr error
		data, rawErr = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if rawErr != nil {
			return nil, apperrors.NewDecodeError("Image payload is not valid base64", err)
		}
	}
	return data, nil
}

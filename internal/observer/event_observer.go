package observer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ScanEvent represents a pipeline event
type ScanEvent struct {
	EventType      EventType              `json:"event_type"`
	Timestamp      time.Time              `json:"timestamp"`
	ScanID         string                 `json:"scan_id"`
	ProcessingTime time.Duration          `json:"processing_time"`
	Success        bool                   `json:"success"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
	RiskScore      int                    `json:"risk_score,omitempty"`
	RiskLevel      string                 `json:"risk_level,omitempty"`
	Degraded       []string               `json:"degraded,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// EventType represents the type of pipeline event
type EventType string

const (
	// ScanStarted when a scan begins
	ScanStarted EventType = "scan_started"
	// ScanCompleted when a scan produced a score
	ScanCompleted EventType = "scan_completed"
	// ScanFailed when a scan could not produce a score
	ScanFailed EventType = "scan_failed"
	// AssessorFinished after every assessor call, successful or not
	AssessorFinished EventType = "assessor_finished"
)

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event ScanEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event ScanEvent)
}

// LoggingObserver logs scan events
type LoggingObserver struct {
	logger *logrus.Logger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger *logrus.Logger) Observer {
	return &LoggingObserver{
		logger: logger,
	}
}

// OnEvent handles scan events by logging them
func (o *LoggingObserver) OnEvent(ctx context.Context, event ScanEvent) {
	fields := logrus.Fields{
		"event_type":  event.EventType,
		"scan_id":     event.ScanID,
		"duration_ms": event.ProcessingTime.Milliseconds(),
		"success":     event.Success,
	}

	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
	}
	if len(event.Degraded) > 0 {
		fields["degraded"] = event.Degraded
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}

	switch event.EventType {
	case ScanStarted:
		o.logger.WithFields(fields).Debug("Scan started")
	case ScanCompleted:
		fields["risk_score"] = event.RiskScore
		fields["risk_level"] = event.RiskLevel
		o.logger.WithFields(fields).Info("Scan completed")
	case ScanFailed:
		o.logger.WithFields(fields).Error("Scan failed")
	case AssessorFinished:
		if event.Success {
			o.logger.WithFields(fields).Debug("Assessor call finished")
		} else {
			o.logger.WithFields(fields).Warn("Assessor call failed")
		}
	default:
		o.logger.WithFields(fields).Info("Scan event occurred")
	}
}

// GetObserverName returns the observer name
func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// MetricsObserver feeds the Prometheus collectors and keeps in-process totals
type MetricsObserver struct {
	mu                  sync.RWMutex
	totalScans          int64
	successfulScans     int64
	degradedScans       int64
	failedScans         int64
	totalProcessingTime time.Duration
}

// NewMetricsObserver creates a new metrics observer
func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{}
}

// OnEvent handles scan events by collecting metrics
func (o *MetricsObserver) OnEvent(ctx context.Context, event ScanEvent) {
	switch event.EventType {
	case ScanCompleted:
		outcome := "success"
		if len(event.Degraded) > 0 {
			outcome = "degraded"
		}
		ScansTotal.WithLabelValues(outcome).Inc()
		RiskScore.Observe(float64(event.RiskScore))
		ScanLatency.Observe(event.ProcessingTime.Seconds())
		for _, reason := range event.Degraded {
			DegradationsTotal.WithLabelValues(reason).Inc()
		}
	case ScanFailed:
		ScansTotal.WithLabelValues("failed").Inc()
	case AssessorFinished:
		AssessorLatency.Observe(event.ProcessingTime.Seconds())
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	switch event.EventType {
	case ScanStarted:
		o.totalScans++
	case ScanCompleted:
		o.successfulScans++
		if len(event.Degraded) > 0 {
			o.degradedScans++
		}
		o.totalProcessingTime += event.ProcessingTime
	case ScanFailed:
		o.failedScans++
	}
}

// GetObserverName returns the observer name
func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// GetMetrics returns current totals
func (o *MetricsObserver) GetMetrics() map[string]interface{} {
	o.mu.RLock()
	defer o.mu.RUnlock()

	avgProcessingTime := time.Duration(0)
	if o.successfulScans > 0 {
		avgProcessingTime = o.totalProcessingTime / time.Duration(o.successfulScans)
	}

	return map[string]interface{}{
		"total_scans":           o.totalScans,
		"successful_scans":      o.successfulScans,
		"degraded_scans":        o.degradedScans,
		"failed_scans":          o.failedScans,
		"total_processing_time": o.totalProcessingTime,
		"avg_processing_time":   avgProcessingTime,
	}
}

// EventPublisher implements the Subject interface
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
	wg        sync.WaitGroup
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher() *EventPublisher {
	return &EventPublisher{
		observers: make([]Observer, 0),
	}
}

// Subscribe adds an observer
func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

// Unsubscribe removes an observer
func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, obs := range p.observers {
		if obs.GetObserverName() == observer.GetObserverName() {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			break
		}
	}
}

// NotifyObservers notifies all observers of an event concurrently
func (p *EventPublisher) NotifyObservers(ctx context.Context, event ScanEvent) {
	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	// Observers outlive the request, so they must not inherit its cancellation
	ctx = context.WithoutCancel(ctx)
	for _, observer := range observers {
		p.wg.Add(1)
		go func(obs Observer) {
			defer p.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					// Log panic but don't crash the application
					logrus.WithField("observer", obs.GetObserverName()).
						WithField("panic", r).
						Error("Observer panicked while handling event")
				}
			}()
			obs.OnEvent(ctx, event)
		}(observer)
	}
}

// Flush waits for in-flight notifications, used on shutdown and in tests
func (p *EventPublisher) Flush() {
	p.wg.Wait()
}

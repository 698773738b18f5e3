package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/anime-shed/microscan-go/internal/config"
	apperrors "github.com/anime-shed/microscan-go/internal/errors"
	"github.com/anime-shed/microscan-go/internal/logger"
	"github.com/anime-shed/microscan-go/internal/service"
	"github.com/anime-shed/microscan-go/pkg/models"
)

const (
	// ScanIDHeader carries the scan id of a scored request
	ScanIDHeader = "X-Scan-ID"

	bannerMessage = "MicroScan backend is running. Disclaimer: this tool estimates a risk proxy and does not replace laboratory testing."
	version       = "1.0.0"
)

// HealthCheck reports the state of one dependency on /health
type HealthCheck struct {
	Name  string
	State func() string
}

func NewHandler(scanner service.Scanner, cfg *config.Config, checks ...HealthCheck) http.Handler {
	r := gin.Default()

	// Add middleware
	r.Use(
		corsMiddleware(cfg.CORSAllowedOrigins),
		requestSizeLimiter(cfg.MaxRequestBodySize),
		errorHandler(),
	)

	// Configure routes
	r.GET("/", root)
	r.GET("/health", healthCheck(checks))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	api.POST("/analyze", rateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst), analyzeImage(scanner, cfg))

	return r
}

func analyzeImage(scanner service.Scanner, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		// Log request start
		logger.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"user_agent": c.Request.UserAgent(),
			"ip":         c.ClientIP(),
		}).Info("Processing analysis request")

		var req models.AnalysisRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				respondError(c, http.StatusRequestEntityTooLarge, "request body too large", err)
				return
			}
			respondError(c, http.StatusBadRequest, "invalid request format", err)
			return
		}

		resp, err := scanner.Analyze(ctx, req)
		if err != nil {
			respondError(c, determineStatusCode(err), "analysis failed", err)
			return
		}

		// Log successful completion
		logger.WithFields(logrus.Fields{
			"scan_id":     resp.ScanID,
			"risk_score":  resp.RiskScore,
			"risk_level":  resp.RiskLevel,
			"degraded":    resp.Degraded,
			"duration_ms": time.Since(startTime).Milliseconds(),
		}).Info("Analysis completed successfully")

		c.Header(ScanIDHeader, resp.ScanID)
		c.JSON(http.StatusOK, resp)
	}
}

func root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": bannerMessage})
}

func healthCheck(checks []HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		deps := make(gin.H, len(checks))
		for _, check := range checks {
			if check.State != nil {
				deps[check.Name] = check.State()
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":       "available",
			"version":      version,
			"time":         time.Now().UTC().Format(time.RFC3339),
			"dependencies": deps,
		})
	}
}

// corsMiddleware allows every origin unless a list is configured
func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	cfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	cfg.ExposeHeaders = []string{ScanIDHeader}
	if allowsAll(origins) {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

func allowsAll(origins []string) bool {
	if len(origins) == 0 {
		return true
	}
	for _, origin := range origins {
		if origin == "*" {
			return true
		}
	}
	return false
}

// Middleware and helper functions
func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			err := c.Errors.Last()
			respondError(c, determineStatusCode(err.Err), "request processing failed", err)
		}
	}
}

func determineStatusCode(err error) int {
	// Check if it's a custom app error first
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	// Fallback to context-based errors
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, code int, message string, err error) {
	// Log the error with context
	entry := logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"message":     message,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	})
	if code >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Warn("Request rejected")
	}

	c.AbortWithStatusJSON(code, models.ErrorResponse{
		Error:   http.StatusText(code),
		Message: fmt.Sprintf("%s: %v", message, err),
	})
}

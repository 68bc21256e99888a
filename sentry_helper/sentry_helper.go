// Package sentry_helper wraps optional Sentry reporting for relay and store failures.
package sentry_helper

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
)

// SentryHelper provides safe and optional Sentry operations.
type SentryHelper struct {
	enabled bool
	logger  *slog.Logger
}

// NewSentryHelper creates a new SentryHelper instance.
func NewSentryHelper(enabled bool, logger *slog.Logger) *SentryHelper {
	if logger == nil {
		logger = slog.Default()
	}
	return &SentryHelper{
		enabled: enabled,
		logger:  logger,
	}
}

// Init initializes the global Sentry client. An empty DSN yields a disabled helper.
func Init(dsn, environment, release string, logger *slog.Logger) (*SentryHelper, error) {
	if dsn == "" {
		return NewSentryHelper(false, logger), nil
	}

	if initErr := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
		Release:     release,
	}); initErr != nil {
		return NewSentryHelper(false, logger), fmt.Errorf("failed to initialize sentry: %w", initErr)
	}

	return NewSentryHelper(true, logger), nil
}

// IsEnabled returns whether Sentry is enabled.
func (h *SentryHelper) IsEnabled() bool {
	return h.enabled
}

// CaptureError captures an error tagged with the component and operation that produced it.
func (h *SentryHelper) CaptureError(err error, component string, operation string) {
	h.CaptureErrorWithExtra(err, component, operation, nil)
}

// CaptureErrorWithExtra is CaptureError with extra context values such as the failing key or URL.
func (h *SentryHelper) CaptureErrorWithExtra(err error, component string, operation string, extra map[string]interface{}) {
	if !h.enabled || err == nil {
		return
	}

	// Clone hub to avoid data races between request goroutines.
	hub := sentry.CurrentHub().Clone()
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", component)
		scope.SetTag("operation", operation)
		for key, value := range extra {
			scope.SetExtra(key, value)
		}
		hub.CaptureException(err)
	})
}

// CaptureWarning captures a warning message with context.
func (h *SentryHelper) CaptureWarning(msg string, component string, operation string) {
	if !h.enabled || msg == "" {
		return
	}

	hub := sentry.CurrentHub().Clone()
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelWarning)
		scope.SetTag("component", component)
		scope.SetTag("operation", operation)
		hub.CaptureMessage(msg)
	})
}

// AddBreadcrumb records a breadcrumb on the current hub.
func (h *SentryHelper) AddBreadcrumb(category, message string, data map[string]interface{}) {
	if !h.enabled || message == "" {
		return
	}

	sentry.CurrentHub().AddBreadcrumb(&sentry.Breadcrumb{
		Category:  category,
		Message:   message,
		Level:     sentry.LevelInfo,
		Data:      data,
		Timestamp: time.Now(),
	}, nil)
}

// Middleware recovers handler panics and reports them when Sentry is enabled.
func (h *SentryHelper) Middleware(next http.Handler) http.Handler {
	if !h.enabled {
		return next
	}
	return sentryhttp.New(sentryhttp.Options{
		Repanic:         false,
		WaitForDelivery: false,
	}).Handle(next)
}

// SafeFlush safely flushes Sentry events with timeout.
func (h *SentryHelper) SafeFlush(timeout time.Duration) {
	if !h.enabled {
		return
	}

	if !sentry.Flush(timeout) {
		h.logger.Warn("Sentry flush timeout", slog.Duration("timeout", timeout))
	}
}

package logger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// LogComponentStart logs when a component starts
func LogComponentStart(component string, fields map[string]interface{}) {
	l := GetLogger().WithField("component", component)
	if len(fields) > 0 {
		l = l.WithFields(fields)
	}
	l.Info("Component started")
}

// LogComponentStop logs when a component stops
func LogComponentStop(component string, reason string) {
	GetLogger().WithFields(map[string]interface{}{
		"component": component,
		"reason":    reason,
	}).Info("Component stopped")
}

// LogRateLimit logs a rate-limit backoff
func LogRateLimit(l Logger, handle string, backoff time.Duration) {
	l.WithFields(map[string]interface{}{
		"handle":  handle,
		"backoff": backoff,
		"action":  "rate_limited",
	}).Warn("Rate limit reached, backing off")
}

// LogSourceResult logs the outcome of one tracked source
func LogSourceResult(l Logger, handle, status, reason string, duration time.Duration) {
	fields := map[string]interface{}{
		"handle":   handle,
		"status":   status,
		"reason":   reason,
		"duration": duration,
	}
	switch status {
	case "succeeded":
		l.InfoWithFields("Source processed", fields)
	case "skipped":
		l.InfoWithFields("Source skipped", fields)
	default:
		l.WarnWithFields("Source failed", fields)
	}
}

// NewNopLogger creates a logger that discards everything
func NewNopLogger() Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (n nopLogger) Debug(msg string)                                          {}
func (n nopLogger) Info(msg string)                                           {}
func (n nopLogger) Warn(msg string)                                           {}
func (n nopLogger) Error(msg string)                                          {}
func (n nopLogger) Fatal(msg string)                                          {}
func (n nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n nopLogger) WithError(err error) Logger                                { return n }
func (n nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n nopLogger) FatalWithFields(msg string, fields map[string]interface{}) {}
func (n nopLogger) GetZerolog() *zerolog.Logger {
	zl := zerolog.Nop()
	return &zl
}

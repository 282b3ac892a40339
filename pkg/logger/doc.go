// Package logger provides the structured logging interface used across ttharvest.
//
// It wraps zerolog with colored console output, optional file output and
// field-carrying child loggers:
//
//	logger.Initialize(&cfg.Logging)
//	log := logger.GetLogger().WithField("component", "resolver")
//	log.InfoWithFields("Handle resolved", map[string]interface{}{
//	    "handle": "someone",
//	    "source": "api16-normal-c-useast1a.tiktokv.com",
//	})
//
// CronLogger adapts a Logger to the robfig/cron logging interface.
package logger

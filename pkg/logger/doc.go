// Package logger provides the structured logging interface used across pagegrab.
//
// It wraps zerolog behind a small Logger interface so components can be
// handed a logger (or a TestLogger in tests) instead of reaching for globals.
// Console output is colorized and goes to stderr; an optional log file
// always receives JSON.
//
// Basic Usage:
//
//	err := logger.Initialize(&cfg.Logging)
//	log := logger.GetLogger().WithField("run_id", runID)
//	log.InfoWithFields("Download completed", map[string]interface{}{
//	    "url":  asset.URL,
//	    "path": path,
//	})
//
// Tests capture diagnostics with NewTestLogger and assert on them with
// GetMessagesByLevel or CountMessages.
package logger

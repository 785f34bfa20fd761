// Package logging provides structured logging with per-module log level configuration.
//
// # Overview
//
// The logging system uses Go's slog package with automatic output routing:
//   - Logs to systemd journal when available (Linux systems with journald)
//   - Logs to stdout when a terminal, pipe, or file is connected
//   - Logs to both when both are available
//
// # Usage
//
// Initialize the logging system once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"pipeline": "debug",
//			"ffmpeg":   "warn",
//		},
//	})
//
// Get a logger for your module. The pointer stays valid across Initialize
// and SetLevels, so it is safe to keep in a struct field:
//
//	logger := logging.GetLogger("capture")
//	logger.Info("Source opened", "kind", "x11grab", "width", 1920)
//
// Levels can be changed at runtime, for example from a config file watcher:
//
//	logging.SetLevels(logging.Config{Level: "info", Modules: map[string]string{"ring": "debug"}})
//
// # Viewing Logs
//
//	journalctl -t oleppy -f
//	journalctl -t oleppy MODULE=pipeline
//
// # Configuration
//
// Every key other than level and format sets a module level:
//
//	[logging]
//	level = "info"
//	format = "text"
//	pipeline = "debug"
//	ffmpeg = "warn"
package logging

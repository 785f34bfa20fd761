package config

import (
	"log/slog"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/PZwoodcat/Oleppy-Free/internal/faults"
	"github.com/PZwoodcat/Oleppy-Free/internal/logging"
)

// LoadLoggingConfig loads the [logging] table from a TOML config file.
// Returns the default config if the file doesn't exist or can't be parsed.
func LoadLoggingConfig(configPath string) logging.Config {
	cfg, err := ReadLoggingConfig(configPath)
	if err != nil {
		return defaultLoggingConfig()
	}
	return cfg
}

// ReadLoggingConfig is LoadLoggingConfig with errors reported. A missing
// file yields the defaults without error.
//
// level and format are global; every other string key is a module level:
//
//	[logging]
//	level = "info"
//	pipeline = "debug"
func ReadLoggingConfig(configPath string) (logging.Config, error) {
	cfg := defaultLoggingConfig()
	if configPath == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}

	var raw struct {
		Logging map[string]any `toml:"logging"`
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return cfg, faults.Wrap(faults.KindFatalConfig, faults.CodeInvalidConfig, "failed to parse logging config", err).
			With("path", configPath)
	}

	for key, value := range raw.Logging {
		s, ok := value.(string)
		if !ok {
			continue
		}
		switch key {
		case "level":
			cfg.Level = s
		case "format":
			cfg.Format = s
		default:
			cfg.Modules[key] = s
		}
	}
	return cfg, nil
}

func defaultLoggingConfig() logging.Config {
	return logging.Config{
		Level:   "info",
		Format:  "text",
		Modules: make(map[string]string),
	}
}

// WatchLogging starts a watcher that applies [logging] level changes at
// runtime. The output format is fixed at startup.
func WatchLogging(configPath string, logger *slog.Logger, opts ...WatcherOption[logging.Config]) (*Watcher[logging.Config], error) {
	w := NewConfigWatcher(configPath, ReadLoggingConfig, logger, opts...)
	w.OnReload(func(cfg logging.Config) {
		logging.SetLevels(cfg)
		logger.Info("Logging levels reloaded", "level", cfg.Level, "modules", len(cfg.Modules))
	})
	if err := w.Start(); err != nil {
		return nil, err
	}
	return w, nil
}

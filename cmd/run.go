package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/PZwoodcat/Oleppy-Free/internal/api"
	"github.com/PZwoodcat/Oleppy-Free/internal/config"
	"github.com/PZwoodcat/Oleppy-Free/internal/events"
	"github.com/PZwoodcat/Oleppy-Free/internal/logging"
	"github.com/PZwoodcat/Oleppy-Free/internal/metrics/exporters"
	"github.com/PZwoodcat/Oleppy-Free/internal/session"
	"github.com/PZwoodcat/Oleppy-Free/internal/systemd"
)

// RunOptions selects the services running next to a session.
type RunOptions struct {
	// ServeAPI serves the status API on the configured port.
	ServeAPI bool
	// Notify reports readiness, status and watchdog pings to systemd.
	Notify bool
}

// RunSession records with opts until the session ends or ctx is cancelled.
// [logging] levels in the config file are reloaded while recording.
func RunSession(ctx context.Context, opts *config.Options, run RunOptions) error {
	logger := logging.GetLogger("main")
	bus := events.New()

	ResolveCodec(ctx, opts)
	sc, err := BuildSession(opts, bus)
	if err != nil {
		return err
	}

	if opts.Config != "" {
		if _, statErr := os.Stat(opts.Config); statErr == nil {
			watcher, watchErr := config.WatchLogging(opts.Config, logging.GetLogger("config"))
			if watchErr != nil {
				logger.Warn("Config watcher not started", "error", watchErr)
			} else {
				defer watcher.Stop()
			}
		}
	}

	if run.ServeAPI {
		server := api.NewServer(&api.Options{
			Status:         sc.Status,
			EventBus:       bus,
			MetricsHandler: exporters.HTTPHandler(),
			FFmpegBinary:   opts.EncodeFFmpegPath,
		})
		go func() {
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("API server failed", "error", startErr)
			}
		}()
		defer server.Stop()
	}

	if run.Notify {
		notifier := systemd.NewNotifier(logging.GetLogger("main"))
		defer notifier.Follow(bus)()
		watchCtx, stopWatchdog := context.WithCancel(ctx)
		defer stopWatchdog()
		go notifier.RunWatchdog(watchCtx)
		notifier.Ready()
		defer notifier.Stopping()
	}

	logger.Info("Recording", "session", describe(sc))
	err = session.Run(ctx, sc)
	st := sc.Status()
	logger.Info("Recording ended",
		"state", st.State,
		"segments", len(st.Segments),
		"frames_captured", st.FramesCaptured,
		"frames_encoded", st.FramesEncoded,
		"frames_missed", st.FramesMissed)
	return err
}

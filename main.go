package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/PZwoodcat/Oleppy-Free/cmd"
	"github.com/PZwoodcat/Oleppy-Free/internal/config"
	"github.com/PZwoodcat/Oleppy-Free/internal/logging"
)

// shutdownTimeout covers encoder finalization after a stop signal.
const shutdownTimeout = 45 * time.Second

func main() {
	var cli humacli.CLI
	var parsed *config.Options

	cli = humacli.New(func(hooks humacli.Hooks, opts *config.Options) {
		// Runs for every command, so subcommands see file and env settings too.
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}
		cmd.InitLogging(opts)
		parsed = opts

		logger := logging.GetLogger("main")

		// Without a subcommand oleppy runs as a service: record until
		// stopped and serve the status API.
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})

		hooks.OnStart(func() {
			defer close(done)
			if err := cmd.RunSession(ctx, opts, cmd.RunOptions{ServeAPI: opts.APIEnabled, Notify: true}); err != nil {
				logger.Error("Session failed", "error", err)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Stopping session")
			cancel()
			select {
			case <-done:
			case <-time.After(shutdownTimeout):
				logger.Error("Session did not finalize in time")
			}
		})
	})

	options := func() *config.Options { return parsed }
	cli.Root().Use = "oleppy"
	cli.Root().Short = "Capture the display into H.264 files and RTP streams"
	cli.Root().AddCommand(
		cmd.CreateRecordCmd(options),
		cmd.CreateBatchCmd(options),
		cmd.CreateProbeCmd(options),
		cmd.CreateVersionCmd(),
	)

	cli.Run()
}

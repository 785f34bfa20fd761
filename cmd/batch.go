package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/PZwoodcat/Oleppy-Free/internal/capture"
	"github.com/PZwoodcat/Oleppy-Free/internal/config"
	"github.com/PZwoodcat/Oleppy-Free/internal/logging"
	"github.com/PZwoodcat/Oleppy-Free/internal/session"
)

// CreateBatchCmd creates the batch command: frames are captured into memory
// first and encoded afterwards at a constant rate.
func CreateBatchCmd(opts func() *config.Options) *cobra.Command {
	var frames int

	cmd := &cobra.Command{
		Use:          "batch [output]",
		Short:        "Capture frames into memory, then encode them",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			o := *opts()
			if len(args) == 1 {
				o.OutputPath = args[0]
			}
			logger := logging.GetLogger("main")

			ResolveCodec(cmd.Context(), &o)
			backend, err := NewBackend(&o)
			if err != nil {
				return err
			}
			src, err := capture.Open(CaptureOptions(&o), logging.GetLogger("capture"))
			if err != nil {
				return err
			}
			defer src.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			timeout := time.Duration(o.CaptureTimeoutMs) * time.Millisecond
			collected, err := session.CollectFrames(ctx, src, frames, o.CaptureFPS, timeout)
			if err != nil {
				return err
			}
			logger.Info("Frames collected", "count", len(collected))

			return session.EncodeBatch(ctx, backend, collected, o.CaptureFPS, o.EncodeBitrate, o.OutputPath, logging.GetLogger("encoder"))
		},
	}
	cmd.Flags().IntVarP(&frames, "frames", "n", 90, "Number of frames to capture")
	return cmd
}

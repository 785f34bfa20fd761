package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/PZwoodcat/Oleppy-Free/internal/config"
)

// CreateRecordCmd creates the record command. opts returns the options parsed
// by the root command.
func CreateRecordCmd(opts func() *config.Options) *cobra.Command {
	var serveAPI bool

	cmd := &cobra.Command{
		Use:   "record [output]",
		Short: "Record the display in the foreground",
		Long: `Captures the configured source and encodes it until the duration has passed ` +
			`or the process is interrupted. The output argument overrides --output-path.`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			o := *opts()
			if len(args) == 1 {
				o.OutputPath = args[0]
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return RunSession(ctx, &o, RunOptions{ServeAPI: serveAPI})
		},
	}
	cmd.Flags().BoolVar(&serveAPI, "serve", false, "Serve the status API on --port while recording")
	return cmd
}

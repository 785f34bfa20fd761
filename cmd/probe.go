package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/PZwoodcat/Oleppy-Free/internal/config"
	"github.com/PZwoodcat/Oleppy-Free/internal/encoder"
)

// CreateProbeCmd creates the probe command listing the video encoders of the
// configured ffmpeg.
func CreateProbeCmd(opts func() *config.Options) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:          "probe",
		Short:        "List the video encoders ffmpeg provides",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := encoder.Probe(cmd.Context(), opts().EncodeFFmpegPath)
			if err != nil {
				return err
			}
			best, ok := encoder.SelectH264(list)

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Encoders []encoder.Info `json:"encoders"`
					Selected string         `json:"selected,omitempty"`
				}{list, best.Name})
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tH264\tHWACCEL\tDESCRIPTION")
			for _, e := range list {
				fmt.Fprintf(w, "%s\t%t\t%t\t%s\n", e.Name, e.H264, e.HWAccel, e.Description)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if ok {
				fmt.Printf("\nSelected H.264 encoder: %s\n", best.Name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/stevecastle/stereo180/deps"
	"github.com/stevecastle/stereo180/downloads"
)

var depsCmd = &cobra.Command{
	Use:   "deps",
	Short: "Check or download ffmpeg, MiDaS and ONNX Runtime",
}

var depsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Report which dependencies are installed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		missing := 0
		for _, s := range deps.CheckAll(cmd.Context()) {
			switch {
			case s.Err != nil:
				missing++
				fmt.Printf("%-8s error: %v\n", s.ID, s.Err)
			case !s.Installed:
				missing++
				fmt.Printf("%-8s missing\n", s.ID)
			default:
				fmt.Printf("%-8s ok %s\n", s.ID, s.Version)
			}
		}
		if missing > 0 {
			return fmt.Errorf("%d dependencies missing", missing)
		}
		return nil
	},
}

var depsFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download missing dependencies that can be fetched",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return deps.FetchMissing(cmd.Context(), func(p downloads.Progress) {
			ev := log.Info().Str("file", p.Name).Str("downloaded", downloads.FormatBytes(p.Downloaded))
			if pct := p.Percent(); pct >= 0 {
				ev = ev.Float64("percent", pct)
			}
			ev.Msg("Downloading")
		})
	},
}

func init() {
	depsCmd.AddCommand(depsCheckCmd, depsFetchCmd)
}

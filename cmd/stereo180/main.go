package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/stevecastle/stereo180/appconfig"
	"github.com/stevecastle/stereo180/logging"
	"github.com/stevecastle/stereo180/stream"
)

// CLI flags
var (
	configFlag   string
	logLevelFlag string
	workDirFlag  string
)

// rootCmd is the main Cobra command for the stereo180 CLI.
var rootCmd = &cobra.Command{
	Use:   "stereo180",
	Short: "Convert ordinary videos into VR180 or anaglyph stereo",
	Long: `stereo180 estimates per-frame depth with MiDaS, synthesizes a left and
right view for every frame and assembles them into a side-by-side VR180
video or a red/cyan anaglyph. Batches are streamed to a live HLS playlist
while the conversion runs.

Examples:
  stereo180 convert --mode vr180 input.mp4
  stereo180 convert --mode anaglyph --no-audio input.mp4
  stereo180 queue add --mode vr180 a.mp4 b.mp4
  stereo180 queue run
  stereo180 deps check`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Init()
		if logLevelFlag != "" {
			logging.SetLevel(logLevelFlag)
		}
		cfg, path, err := appconfig.Load(configFlag)
		if err != nil {
			return err
		}
		if workDirFlag != "" {
			cfg.Paths.WorkDir = workDirFlag
			appconfig.Set(cfg)
		}
		log.Debug().Str("config", path).Str("work_dir", cfg.Paths.WorkDir).Msg("Configuration loaded")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Path to config.yaml (default: data dir)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "debug, info, warn or error (overrides STEREO180_LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVarP(&workDirFlag, "work-dir", "w", "", "Working directory for intermediates and outputs")
	rootCmd.AddCommand(convertCmd, queueCmd, depsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// logEvents writes hub events to the log until the returned stop is called.
func logEvents(h *stream.Hub) (stop func()) {
	sub, ok := h.Subscribe("cli")
	if !ok {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range sub.C {
			switch e.Type {
			case stream.RunFailed, stream.SegmentSkipped:
				log.Warn().Str("run", e.RunID).Msg(e.String())
			case stream.JobStdout:
				log.Info().Str("job", e.JobID).Msg(e.Msg)
			case stream.JobCreated, stream.JobUpdated, stream.JobDeleted:
				log.Debug().Str("job", e.JobID).Str("event", e.Type).Msg(e.Msg)
			default:
				log.Info().Str("run", e.RunID).Msg(e.String())
			}
		}
	}()
	return func() {
		sub.Close()
		<-done
	}
}

package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/stevecastle/stereo180/appconfig"
	"github.com/stevecastle/stereo180/compositor"
	"github.com/stevecastle/stereo180/deps"
	"github.com/stevecastle/stereo180/stream"
	"github.com/stevecastle/stereo180/tasks"
)

var (
	modeFlag    string
	noAudioFlag bool
)

var convertCmd = &cobra.Command{
	Use:   "convert SOURCE",
	Short: "Convert one video in the foreground",
	Args:  cobra.ExactArgs(1),
	RunE:  runConvert,
}

func init() {
	convertCmd.Flags().StringVarP(&modeFlag, "mode", "m", string(compositor.VR180), "Output mode: vr180 or anaglyph")
	convertCmd.Flags().BoolVar(&noAudioFlag, "no-audio", false, "Do not carry the source audio into the output")
}

func parseModeFlag() (compositor.Mode, error) {
	mode, ok := compositor.ParseMode(modeFlag)
	if !ok {
		return "", fmt.Errorf("unknown mode %q (want vr180 or anaglyph)", modeFlag)
	}
	return mode, nil
}

func runConvert(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	mode, err := parseModeFlag()
	if err != nil {
		return err
	}
	for _, id := range []string{"ffmpeg", "midas"} {
		if err := deps.EnsureAvailable(ctx, id); err != nil {
			return err
		}
	}

	cfg := appconfig.Get()
	stop := logEvents(stream.Default())
	defer stop()

	conv, err := tasks.NewConverter(ctx, cfg, stream.Default())
	if err != nil {
		return err
	}
	log.Info().
		Str("source", args[0]).
		Str("mode", string(mode)).
		Bool("audio", !noAudioFlag).
		Str("work_dir", cfg.Paths.WorkDir).
		Msg("Starting conversion")

	out, err := conv.Run(ctx, mode, args[0], !noAudioFlag)
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

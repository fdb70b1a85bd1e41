package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/stevecastle/stereo180/appconfig"
	"github.com/stevecastle/stereo180/compositor"
	"github.com/stevecastle/stereo180/jobqueue"
	"github.com/stevecastle/stereo180/runners"
	"github.com/stevecastle/stereo180/stream"
)

var (
	sharedDirFlag bool
	pollFlag      time.Duration
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Manage the persistent conversion queue",
}

var queueAddCmd = &cobra.Command{
	Use:   "add SOURCE...",
	Short: "Queue conversions of one or more videos",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQueueAdd,
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued jobs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQueue(func(q *jobqueue.Queue) error {
			for _, j := range q.GetJobs() {
				fmt.Println(j.Summary())
			}
			return nil
		})
	},
}

var queueRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run queued jobs until the queue is empty",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQueue(func(q *jobqueue.Queue) error {
			stop := logEvents(stream.Default())
			defer stop()

			r := runners.New(q)
			err := r.WaitIdle(cmd.Context(), pollFlag)
			r.Shutdown()
			if err != nil {
				// interrupted: stop what is running, leave the rest pending
				for _, j := range q.GetJobs() {
					if j.State == jobqueue.StateInProgress {
						_ = q.CancelJob(j.ID)
					}
				}
			}
			r.Wait()
			counts := q.Counts()
			log.Info().
				Int("completed", counts[jobqueue.StateCompleted]).
				Int("failed", counts[jobqueue.StateError]).
				Int("cancelled", counts[jobqueue.StateCancelled]).
				Msg("Queue drained")
			return err
		})
	},
}

var queueClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every job that is not running",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQueue(func(q *jobqueue.Queue) error {
			n, err := q.ClearNonRunningJobs()
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d jobs\n", n)
			return nil
		})
	},
}

var queueRetryCmd = &cobra.Command{
	Use:   "retry JOB_ID",
	Short: "Queue a fresh copy of a finished job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQueue(func(q *jobqueue.Queue) error {
			id, err := q.CopyJob(args[0])
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		})
	},
}

func init() {
	queueAddCmd.Flags().StringVarP(&modeFlag, "mode", "m", string(compositor.VR180), "Output mode: vr180 or anaglyph")
	queueAddCmd.Flags().BoolVar(&noAudioFlag, "no-audio", false, "Do not carry the source audio into the output")
	queueAddCmd.Flags().BoolVar(&sharedDirFlag, "shared-dir", false, "Run every job in the configured work dir (one at a time)")
	queueRunCmd.Flags().DurationVar(&pollFlag, "poll", time.Second, "How often to check for finished jobs")
	queueCmd.AddCommand(queueAddCmd, queueListCmd, queueRunCmd, queueClearCmd, queueRetryCmd)
}

// jobWorkDir picks a working directory per source name. Sources with the
// same name share a directory and so run one after the other.
func jobWorkDir(base, src string) string {
	if sharedDirFlag {
		return base
	}
	name := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	return filepath.Join(base, "jobs", name)
}

func runQueueAdd(cmd *cobra.Command, args []string) error {
	mode, err := parseModeFlag()
	if err != nil {
		return err
	}
	base := appconfig.Get().Paths.WorkDir
	return withQueue(func(q *jobqueue.Queue) error {
		for _, src := range args {
			abs, err := filepath.Abs(src)
			if err != nil {
				return err
			}
			id, err := q.AddJob(string(mode), abs, !noAudioFlag, jobWorkDir(base, abs))
			if err != nil {
				return err
			}
			fmt.Println(id)
		}
		return nil
	})
}

// withQueue opens the job database for the duration of fn.
func withQueue(fn func(q *jobqueue.Queue) error) error {
	db, err := jobqueue.OpenDB(appconfig.Get().Paths.DBPath)
	if err != nil {
		return fmt.Errorf("open job database: %w", err)
	}
	defer db.Close()
	return fn(jobqueue.NewQueueWithDB(db))
}

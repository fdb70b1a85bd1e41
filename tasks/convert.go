package tasks

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/stevecastle/stereo180/appconfig"
	"github.com/stevecastle/stereo180/artifacts"
	"github.com/stevecastle/stereo180/compositor"
	"github.com/stevecastle/stereo180/jobqueue"
	"github.com/stevecastle/stereo180/pipeline"
	"github.com/stevecastle/stereo180/stream"
	"github.com/stevecastle/stereo180/transcode"
)

// Converter runs one conversion and returns the final file.
type Converter interface {
	Run(ctx context.Context, mode compositor.Mode, source string, includeAudio bool) (string, error)
}

// NewConverter builds the converter for a job. events receives the run's
// progress. Tests replace it.
var NewConverter = func(ctx context.Context, cfg appconfig.Config, events *stream.Hub) (Converter, error) {
	c := pipeline.New(cfg, transcode.NewFFmpeg(cfg.FFmpeg.BinDir))
	c.Events = events
	if artifacts.Enabled(cfg.Artifacts) {
		sink, err := artifacts.NewS3Sink(ctx, cfg.Artifacts)
		if err != nil {
			return nil, fmt.Errorf("artifact upload: %w", err)
		}
		c.Sink = sink
	}
	return c, nil
}

func vr180Task(j *jobqueue.Job, q *jobqueue.Queue, mu *sync.Mutex) error {
	return convertTask(j, q, compositor.VR180)
}

func anaglyphTask(j *jobqueue.Job, q *jobqueue.Queue, mu *sync.Mutex) error {
	return convertTask(j, q, compositor.Anaglyph)
}

// convertTask runs a conversion in the job's working directory and copies
// the run's progress events into the job output.
func convertTask(j *jobqueue.Job, q *jobqueue.Queue, mode compositor.Mode) error {
	cfg := appconfig.Get()
	if j.WorkDir != "" {
		cfg.Paths.WorkDir = j.WorkDir
	}

	hub := stream.NewHub()
	var forwarded sync.WaitGroup
	if sub, ok := hub.Subscribe("job-" + j.ID); ok {
		forwarded.Add(1)
		go func() {
			defer forwarded.Done()
			for e := range sub.C {
				q.PushJobStdout(j.ID, e.String())
			}
		}()
	}
	finish := func() {
		hub.Shutdown()
		forwarded.Wait()
	}

	q.PushJobStdout(j.ID, fmt.Sprintf("Converting %s to %s in %s", j.Input, mode, cfg.Paths.WorkDir))
	conv, err := NewConverter(j.Ctx, cfg, hub)
	if err != nil {
		finish()
		q.PushJobStdout(j.ID, fmt.Sprintf("Error: %v", err))
		q.ErrorJob(j.ID)
		return err
	}

	out, err := conv.Run(j.Ctx, mode, j.Input, j.IncludeAudio)
	finish()
	if err != nil {
		q.PushJobStdout(j.ID, fmt.Sprintf("Error: %v", err))
		if j.Ctx.Err() != nil {
			_ = q.CancelJob(j.ID)
		} else {
			q.ErrorJob(j.ID)
		}
		return err
	}

	log.Info().Str("job", j.ID).Str("file", out).Msg("Conversion job completed")
	q.PushJobStdout(j.ID, "Output: "+out)
	q.CompleteJob(j.ID, out)
	return nil
}

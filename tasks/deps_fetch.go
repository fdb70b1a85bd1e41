package tasks

import (
	"fmt"
	"strings"
	"sync"

	"github.com/stevecastle/stereo180/deps"
	"github.com/stevecastle/stereo180/downloads"
	"github.com/stevecastle/stereo180/jobqueue"
)

// fetchDependencyTask downloads the dependency named by the job input, or
// every missing one when the input is empty.
func fetchDependencyTask(j *jobqueue.Job, q *jobqueue.Queue, mu *sync.Mutex) error {
	depID := strings.TrimSpace(j.Input)
	progress := func(p downloads.Progress) {
		if pct := p.Percent(); pct >= 0 {
			q.PushJobStdout(j.ID, fmt.Sprintf("%s: %.0f%% of %s", p.Name, pct, downloads.FormatBytes(p.Total)))
			return
		}
		q.PushJobStdout(j.ID, fmt.Sprintf("%s: %s", p.Name, downloads.FormatBytes(p.Downloaded)))
	}

	if depID == "" {
		q.PushJobStdout(j.ID, "Fetching missing dependencies")
		if err := deps.FetchMissing(j.Ctx, progress); err != nil {
			q.PushJobStdout(j.ID, fmt.Sprintf("Download failed: %v", err))
			q.ErrorJob(j.ID)
			return err
		}
		q.CompleteJob(j.ID, "")
		return nil
	}

	dep, ok := deps.Get(depID)
	if !ok {
		q.PushJobStdout(j.ID, fmt.Sprintf("Unknown dependency: %s", depID))
		q.ErrorJob(j.ID)
		return fmt.Errorf("unknown dependency: %s", depID)
	}
	if dep.ManualOnly || dep.Fetch == nil {
		q.PushJobStdout(j.ID, fmt.Sprintf("%s must be installed manually, see %s", dep.Name, dep.InstallURL))
		q.ErrorJob(j.ID)
		return fmt.Errorf("dependency %s cannot be downloaded", depID)
	}

	q.PushJobStdout(j.ID, fmt.Sprintf("Dependency: %s (%s)", dep.Name, dep.Description))
	if err := dep.Fetch(j.Ctx, progress); err != nil {
		q.PushJobStdout(j.ID, fmt.Sprintf("Download failed: %v", err))
		q.ErrorJob(j.ID)
		return err
	}

	q.PushJobStdout(j.ID, fmt.Sprintf("Successfully downloaded %s", dep.Name))
	q.CompleteJob(j.ID, dep.TargetDir)
	return nil
}

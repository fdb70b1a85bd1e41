// Package jobqueue keeps an ordered, sqlite-persisted queue of conversion
// jobs. Jobs sharing a working directory never run at the same time.
package jobqueue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/stevecastle/stereo180/stream"
	_ "modernc.org/sqlite"
)

// JobState is where a job is in its lifecycle.
type JobState int

const (
	StatePending JobState = iota
	StateInProgress
	StateCompleted
	StateCancelled
	StateError
)

// stateNames holds the display name and the JSON/wire name of each state.
var stateNames = [...]struct{ display, wire string }{
	StatePending:    {"Pending", "pending"},
	StateInProgress: {"InProgress", "in_progress"},
	StateCompleted:  {"Completed", "completed"},
	StateCancelled:  {"Cancelled", "cancelled"},
	StateError:      {"Error", "error"},
}

func (s JobState) valid() bool { return s >= 0 && int(s) < len(stateNames) }

func (s JobState) String() string {
	if !s.valid() {
		return "Unknown"
	}
	return stateNames[s].display
}

// MarshalJSON writes the lowercase wire name.
func (s JobState) MarshalJSON() ([]byte, error) {
	if !s.valid() {
		return json.Marshal("unknown")
	}
	return json.Marshal(stateNames[s].wire)
}

// UnmarshalJSON reads a wire name. Unknown names decode as pending.
func (s *JobState) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = StatePending
	for i, n := range stateNames {
		if n.wire == str {
			*s = JobState(i)
			break
		}
	}
	return nil
}

// Job is one queued conversion. Command names the task that runs it
// ("vr180" or "anaglyph"); Input is the source video.
type Job struct {
	ID           string             `json:"id"`
	Command      string             `json:"command"`
	Input        string             `json:"input"`
	IncludeAudio bool               `json:"include_audio"`
	WorkDir      string             `json:"work_dir"`
	Output       string             `json:"output"`
	Stdout       []string           `json:"-"`
	State        JobState           `json:"state"`
	Ctx          context.Context    `json:"-"`
	Cancel       context.CancelFunc `json:"-"`

	CreatedAt   time.Time `json:"created_at"`
	ClaimedAt   time.Time `json:"claimed_at"`
	CompletedAt time.Time `json:"completed_at"`
	ErroredAt   time.Time `json:"errored_at"`
}

// ErrJobNotFound is returned for an unknown job ID.
var ErrJobNotFound = errors.New("job not found")

// Queue is a thread-safe, ordered set of jobs.
type Queue struct {
	mu            sync.Mutex
	Jobs          map[string]*Job
	JobOrder      []string // insertion order
	Signal        chan string
	Db            *sql.DB
	LaneLimits    map[string]int // per working directory
	RunningCounts map[string]int
}

// OpenDB opens (creating if needed) the sqlite job database at path.
func OpenDB(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// NewQueue initializes and returns a new in-memory Queue.
func NewQueue() *Queue {
	return &Queue{
		Jobs:          make(map[string]*Job),
		Signal:        make(chan string, 100),
		LaneLimits:    make(map[string]int),
		RunningCounts: make(map[string]int),
	}
}

// NewQueueWithDB initializes a Queue persisted in db and loads existing jobs.
func NewQueueWithDB(db *sql.DB) *Queue {
	q := NewQueue()
	q.Db = db

	if err := q.createJobsTable(); err != nil {
		log.Error().Err(err).Msg("Failed to create jobs table")
	}
	if err := q.loadJobsFromDB(); err != nil {
		log.Error().Err(err).Msg("Failed to load jobs from database")
	}
	return q
}

func (q *Queue) createJobsTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		command TEXT NOT NULL,
		input TEXT,
		include_audio INTEGER NOT NULL DEFAULT 1,
		work_dir TEXT,
		output TEXT,
		stdout TEXT, -- JSON array
		state INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		claimed_at DATETIME,
		completed_at DATETIME,
		errored_at DATETIME,
		job_order_position INTEGER
	)`
	_, err := q.Db.Exec(query)
	return err
}

// persist saves job and logs a failure; queue state stays authoritative in
// memory. Callers hold q.mu.
func (q *Queue) persist(job *Job, what string) {
	if err := q.saveJobToDB(job); err != nil {
		log.Error().Err(err).Str("job", job.ID).Str("change", what).Msg("Job not persisted")
	}
}

// saveJobToDB writes job's row. Callers hold q.mu.
func (q *Queue) saveJobToDB(job *Job) error {
	if q.Db == nil {
		return nil
	}

	stdoutJSON, _ := json.Marshal(job.Stdout)

	position := -1
	for i, id := range q.JobOrder {
		if id == job.ID {
			position = i
			break
		}
	}

	query := `
	INSERT OR REPLACE INTO jobs (
		id, command, input, include_audio, work_dir, output, stdout, state,
		created_at, claimed_at, completed_at, errored_at, job_order_position
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := q.Db.Exec(query,
		job.ID,
		job.Command,
		job.Input,
		job.IncludeAudio,
		job.WorkDir,
		job.Output,
		string(stdoutJSON),
		int(job.State),
		job.CreatedAt,
		job.ClaimedAt,
		job.CompletedAt,
		job.ErroredAt,
		position,
	)
	return err
}

// loadJobsFromDB restores persisted jobs. A job that was in progress when
// the process stopped is reset to pending so it runs again.
func (q *Queue) loadJobsFromDB() error {
	if q.Db == nil {
		return nil
	}

	query := `
	SELECT id, command, COALESCE(input, ''), include_audio, COALESCE(work_dir, ''), COALESCE(output, ''),
		   COALESCE(stdout, '[]'), state, created_at, claimed_at, completed_at, errored_at
	FROM jobs
	ORDER BY job_order_position`

	rows, err := q.Db.Query(query)
	if err != nil {
		return err
	}
	defer rows.Close()

	var resumedJobs []string

	for rows.Next() {
		var job Job
		var stdoutJSON string
		var state int

		err := rows.Scan(
			&job.ID,
			&job.Command,
			&job.Input,
			&job.IncludeAudio,
			&job.WorkDir,
			&job.Output,
			&stdoutJSON,
			&state,
			&job.CreatedAt,
			&job.ClaimedAt,
			&job.CompletedAt,
			&job.ErroredAt,
		)
		if err != nil {
			log.Error().Err(err).Msg("Error scanning job row")
			continue
		}

		if err := json.Unmarshal([]byte(stdoutJSON), &job.Stdout); err != nil {
			job.Stdout = []string{}
		}
		job.State = JobState(state)

		if job.State == StateInProgress {
			job.State = StatePending
			job.ClaimedAt = time.Time{}
			resumedJobs = append(resumedJobs, job.ID)
		}

		ctx, cancel := context.WithCancel(context.Background())
		job.Ctx = ctx
		job.Cancel = cancel

		q.Jobs[job.ID] = &job
		q.JobOrder = append(q.JobOrder, job.ID)
	}

	if len(resumedJobs) > 0 {
		log.Info().Strs("jobs", resumedJobs).Msg("Resumed jobs that were in progress")
		for _, jobID := range resumedJobs {
			select {
			case q.Signal <- jobID:
			default:
			}
		}
	}

	return rows.Err()
}

func (q *Queue) removeJobFromDB(jobID string) error {
	if q.Db == nil {
		return nil
	}
	_, err := q.Db.Exec("DELETE FROM jobs WHERE id = ?", jobID)
	return err
}

// SaveAllJobsToDB rewrites every job row and returns the joined failures.
func (q *Queue) SaveAllJobsToDB() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	var errs []error
	for _, job := range q.Jobs {
		if err := q.saveJobToDB(job); err != nil {
			errs = append(errs, fmt.Errorf("job %s: %w", job.ID, err))
		}
	}
	return errors.Join(errs...)
}

// AddJob queues a conversion of input and returns its ID.
func (q *Queue) AddJob(command, input string, includeAudio bool, workDir string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	id := uuid.NewString()
	if _, exists := q.Jobs[id]; exists {
		return "", errors.New("job with given ID already exists")
	}

	ctx, cancel := context.WithCancel(context.Background())
	job := &Job{
		ID:           id,
		Command:      command,
		Input:        input,
		IncludeAudio: includeAudio,
		WorkDir:      workDir,
		State:        StatePending,
		Ctx:          ctx,
		Cancel:       cancel,
		CreatedAt:    time.Now(),
	}
	q.Jobs[id] = job
	q.JobOrder = append(q.JobOrder, id)

	q.persist(job, "add")

	q.notify(id)
	broadcastJob(stream.JobCreated, job)
	return id, nil
}

// CopyJob queues a fresh pending copy of job id and returns the new ID.
func (q *Queue) CopyJob(id string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.lookupLocked(id)
	if err != nil {
		return "", err
	}

	newID := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())

	newJob := *job
	newJob.ID = newID
	newJob.Stdout = []string{}
	newJob.Output = ""
	newJob.State = StatePending
	newJob.CreatedAt = time.Now()
	newJob.ClaimedAt = time.Time{}
	newJob.CompletedAt = time.Time{}
	newJob.ErroredAt = time.Time{}
	newJob.Cancel = cancel
	newJob.Ctx = ctx

	q.Jobs[newID] = &newJob
	q.JobOrder = append(q.JobOrder, newID)

	q.persist(&newJob, "copy")

	q.notify(newID)
	broadcastJob(stream.JobCreated, &newJob)
	return newID, nil
}

// notify wakes a runner without blocking when nobody is listening.
func (q *Queue) notify(id string) {
	select {
	case q.Signal <- id:
	default:
	}
}

// ClaimJob returns the oldest pending job whose working directory lane has
// capacity and marks it in progress. It returns nil, nil when nothing can
// run.
func (q *Queue) ClaimJob() (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, jobID := range q.JobOrder {
		job := q.Jobs[jobID]
		if job.State != StatePending {
			continue
		}
		if q.RunningCounts[job.WorkDir] >= q.laneLimitLocked(job.WorkDir) {
			continue
		}

		job.State = StateInProgress
		job.ClaimedAt = time.Now()
		q.RunningCounts[job.WorkDir]++

		q.persist(job, "claim")
		broadcastJob(stream.JobUpdated, job)
		return job, nil
	}
	return nil, nil
}

// ErrorJob sets a job's state to error if it is currently in progress.
func (q *Queue) ErrorJob(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.lookupLocked(id)
	if err != nil {
		return err
	}
	if job.State != StateInProgress {
		return errors.New("job is not in progress, cannot set error")
	}

	job.State = StateError
	job.ErroredAt = time.Now()
	q.RunningCounts[job.WorkDir]--

	q.persist(job, "error")
	broadcastJob(stream.JobUpdated, job)
	return nil
}

// CancelJob cancels a pending or in-progress job.
func (q *Queue) CancelJob(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.lookupLocked(id)
	if err != nil {
		return err
	}
	if job.State != StatePending && job.State != StateInProgress {
		return errors.New("job is not pending or in progress, cannot cancel")
	}
	job.Cancel()

	if job.State == StateInProgress {
		q.RunningCounts[job.WorkDir]--
	}
	job.State = StateCancelled

	q.persist(job, "cancel")
	broadcastJob(stream.JobUpdated, job)
	return nil
}

// PushJobStdout appends a line to the job's output log.
func (q *Queue) PushJobStdout(id string, line string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.lookupLocked(id)
	if err != nil {
		return err
	}
	job.Stdout = append(job.Stdout, line)

	q.persist(job, "stdout")
	stream.Broadcast(stream.Event{Type: stream.JobStdout, JobID: id, Msg: line})
	return nil
}

// CompleteJob marks an in-progress job completed with its output path.
func (q *Queue) CompleteJob(id, output string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.lookupLocked(id)
	if err != nil {
		return err
	}
	if job.State != StateInProgress {
		return errors.New("job is not in progress, cannot complete")
	}

	job.State = StateCompleted
	job.Output = output
	job.CompletedAt = time.Now()
	q.RunningCounts[job.WorkDir]--

	q.persist(job, "complete")
	broadcastJob(stream.JobUpdated, job)
	return nil
}

// GetJobs returns copies of all jobs, newest first.
func (q *Queue) GetJobs() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	jobs := make([]Job, 0, len(q.JobOrder))
	for i := len(q.JobOrder) - 1; i >= 0; i-- {
		jobs = append(jobs, *q.Jobs[q.JobOrder[i]])
	}
	return jobs
}

// GetJob returns the live job or nil.
func (q *Queue) GetJob(id string) *Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.Jobs[id]
}

// RemoveJob deletes a job from the queue and the database.
func (q *Queue) RemoveJob(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, err := q.lookupLocked(id)
	if err != nil {
		return err
	}
	if job.State == StateInProgress {
		q.RunningCounts[job.WorkDir]--
	}
	q.deleteLocked(id)
	return nil
}

func (q *Queue) lookupLocked(id string) (*Job, error) {
	job, ok := q.Jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return job, nil
}

func (q *Queue) deleteLocked(id string) {
	delete(q.Jobs, id)
	for i, jobID := range q.JobOrder {
		if jobID == id {
			q.JobOrder = append(q.JobOrder[:i], q.JobOrder[i+1:]...)
			break
		}
	}
	if err := q.removeJobFromDB(id); err != nil {
		log.Error().Err(err).Str("job", id).Msg("Failed to remove job from database")
	}
	stream.Broadcast(stream.Event{Type: stream.JobDeleted, JobID: id})
}

// ClearNonRunningJobs removes every job that is not in progress and returns
// how many were removed.
func (q *Queue) ClearNonRunningJobs() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var toRemove []string
	for _, jobID := range q.JobOrder {
		if q.Jobs[jobID].State != StateInProgress {
			toRemove = append(toRemove, jobID)
		}
	}
	for _, jobID := range toRemove {
		q.deleteLocked(jobID)
	}
	return len(toRemove), nil
}

// Counts returns the number of jobs in each state.
func (q *Queue) Counts() map[JobState]int {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make(map[JobState]int)
	for _, job := range q.Jobs {
		out[job.State]++
	}
	return out
}

// Idle reports whether no job is pending or running.
func (q *Queue) Idle() bool {
	c := q.Counts()
	return c[StatePending] == 0 && c[StateInProgress] == 0
}

func (q *Queue) laneLimitLocked(workDir string) int {
	if limit, ok := q.LaneLimits[workDir]; ok {
		return limit
	}
	return 1
}

// SetLaneLimit allows limit concurrent jobs in workDir. Only tests and
// separate per-job working directories should raise it above 1.
func (q *Queue) SetLaneLimit(workDir string, limit int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.LaneLimits[workDir] = limit
}

func broadcastJob(eventType string, job *Job) {
	j, err := json.Marshal(job)
	if err != nil {
		log.Error().Err(err).Str("job", job.ID).Msg("Failed to serialize job event")
		return
	}
	stream.Broadcast(stream.Event{Type: eventType, JobID: job.ID, Msg: string(j)})
}

// Summary is a one-line description for listings.
func (j Job) Summary() string {
	out := j.Output
	if out == "" {
		out = "-"
	}
	return fmt.Sprintf("%s  %-10s %-9s %s -> %s", j.ID, j.State, j.Command, j.Input, out)
}

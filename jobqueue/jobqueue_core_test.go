package jobqueue

import (
	"database/sql"
	"encoding/json"
	"errors"
	"testing"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	// every pooled connection would get its own in-memory database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

// ============================================================================
// JobState Tests
// ============================================================================

func TestJobStateString(t *testing.T) {
	tests := []struct {
		state JobState
		want  string
	}{
		{StatePending, "Pending"},
		{StateInProgress, "InProgress"},
		{StateCompleted, "Completed"},
		{StateCancelled, "Cancelled"},
		{StateError, "Error"},
		{JobState(99), "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("JobState(%d).String() = %q; want %q", tt.state, got, tt.want)
		}
	}
}

func TestJobStateJSONRoundTrip(t *testing.T) {
	tests := []struct {
		state JobState
		json  string
	}{
		{StatePending, `"pending"`},
		{StateInProgress, `"in_progress"`},
		{StateCompleted, `"completed"`},
		{StateCancelled, `"cancelled"`},
		{StateError, `"error"`},
	}
	for _, tt := range tests {
		t.Run(tt.json, func(t *testing.T) {
			b, err := json.Marshal(tt.state)
			if err != nil {
				t.Fatalf("Marshal error = %v", err)
			}
			if string(b) != tt.json {
				t.Errorf("Marshal(%v) = %s; want %s", tt.state, b, tt.json)
			}
			var s JobState
			if err := json.Unmarshal(b, &s); err != nil {
				t.Fatalf("Unmarshal error = %v", err)
			}
			if s != tt.state {
				t.Errorf("Unmarshal(%s) = %v; want %v", b, s, tt.state)
			}
		})
	}

	var s JobState = StateError
	if err := json.Unmarshal([]byte(`"bogus"`), &s); err != nil {
		t.Fatalf("Unmarshal error = %v", err)
	}
	if s != StatePending {
		t.Errorf("unknown state decoded to %v; want StatePending", s)
	}
}

// ============================================================================
// Queue Tests
// ============================================================================

func TestNewQueueWithDB(t *testing.T) {
	db := openTestDB(t)
	q := NewQueueWithDB(db)
	if q.Db != db {
		t.Error("NewQueueWithDB() did not set Db correctly")
	}

	var tableExists int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='jobs'`).Scan(&tableExists)
	if err != nil {
		t.Fatalf("Failed to check jobs table existence: %v", err)
	}
	if tableExists != 1 {
		t.Error("Jobs table was not created")
	}
}

func TestAddJob(t *testing.T) {
	q := NewQueueWithDB(openTestDB(t))

	id, err := q.AddJob("vr180", "/videos/in.mp4", true, "/work")
	if err != nil {
		t.Fatalf("AddJob() error = %v", err)
	}
	job := q.GetJob(id)
	if job == nil {
		t.Fatal("GetJob() returned nil for added job")
	}
	if job.Command != "vr180" {
		t.Errorf("Job.Command = %q; want %q", job.Command, "vr180")
	}
	if job.Input != "/videos/in.mp4" {
		t.Errorf("Job.Input = %q; want %q", job.Input, "/videos/in.mp4")
	}
	if !job.IncludeAudio {
		t.Error("Job.IncludeAudio = false; want true")
	}
	if job.WorkDir != "/work" {
		t.Errorf("Job.WorkDir = %q; want %q", job.WorkDir, "/work")
	}
	if job.State != StatePending {
		t.Errorf("Job.State = %v; want StatePending", job.State)
	}
	if job.Ctx == nil || job.Cancel == nil {
		t.Error("Job context was not initialized")
	}

	select {
	case got := <-q.Signal:
		if got != id {
			t.Errorf("Signal = %q; want %q", got, id)
		}
	default:
		t.Error("AddJob() did not signal")
	}
}

func TestCopyJob(t *testing.T) {
	q := NewQueueWithDB(openTestDB(t))
	id, _ := q.AddJob("anaglyph", "in.mp4", false, "/work")
	q.ClaimJob()
	q.PushJobStdout(id, "line")
	q.CompleteJob(id, "/work/output/final_anaglyph.mp4")

	newID, err := q.CopyJob(id)
	if err != nil {
		t.Fatalf("CopyJob() error = %v", err)
	}
	if newID == id {
		t.Fatal("CopyJob() reused the original ID")
	}
	c := q.GetJob(newID)
	if c.State != StatePending {
		t.Errorf("copy State = %v; want StatePending", c.State)
	}
	if c.Command != "anaglyph" || c.Input != "in.mp4" || c.IncludeAudio {
		t.Errorf("copy = %+v; want command/input/audio of the original", c)
	}
	if len(c.Stdout) != 0 || c.Output != "" {
		t.Errorf("copy kept Stdout=%v Output=%q; want empty", c.Stdout, c.Output)
	}

	if _, err := q.CopyJob("missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("CopyJob(missing) error = %v; want ErrJobNotFound", err)
	}
}

func TestGetJobsNewestFirst(t *testing.T) {
	q := NewQueue()
	a, _ := q.AddJob("vr180", "a.mp4", true, "/a")
	b, _ := q.AddJob("vr180", "b.mp4", true, "/b")
	c, _ := q.AddJob("vr180", "c.mp4", true, "/c")

	jobs := q.GetJobs()
	want := []string{c, b, a}
	if len(jobs) != len(want) {
		t.Fatalf("GetJobs() len = %d; want %d", len(jobs), len(want))
	}
	for i, id := range want {
		if jobs[i].ID != id {
			t.Errorf("GetJobs()[%d].ID = %q; want %q", i, jobs[i].ID, id)
		}
	}
}

func TestJobLifecycle(t *testing.T) {
	q := NewQueueWithDB(openTestDB(t))
	id, _ := q.AddJob("vr180", "in.mp4", true, "/work")

	if err := q.CompleteJob(id, "x"); err == nil {
		t.Error("CompleteJob() on pending job expected error")
	}

	job, err := q.ClaimJob()
	if err != nil || job == nil {
		t.Fatalf("ClaimJob() = %v, %v; want job", job, err)
	}
	if job.State != StateInProgress || job.ClaimedAt.IsZero() {
		t.Errorf("claimed job State = %v ClaimedAt = %v", job.State, job.ClaimedAt)
	}
	if again, _ := q.ClaimJob(); again != nil {
		t.Errorf("ClaimJob() returned %q with nothing pending", again.ID)
	}

	if err := q.CompleteJob(id, "/work/output/final_vr_180.mp4"); err != nil {
		t.Fatalf("CompleteJob() error = %v", err)
	}
	if got := q.GetJob(id); got.State != StateCompleted || got.Output != "/work/output/final_vr_180.mp4" {
		t.Errorf("completed job = %v %q", got.State, got.Output)
	}
	if !q.Idle() {
		t.Error("Idle() = false after completion; want true")
	}
}

func TestErrorAndCancel(t *testing.T) {
	q := NewQueue()
	id1, _ := q.AddJob("vr180", "a.mp4", true, "/a")
	id2, _ := q.AddJob("vr180", "b.mp4", true, "/b")

	if err := q.ErrorJob(id1); err == nil {
		t.Error("ErrorJob() on pending job expected error")
	}
	q.ClaimJob()
	if err := q.ErrorJob(id1); err != nil {
		t.Fatalf("ErrorJob() error = %v", err)
	}
	if got := q.GetJob(id1); got.State != StateError || got.ErroredAt.IsZero() {
		t.Errorf("errored job = %v %v", got.State, got.ErroredAt)
	}

	job2 := q.GetJob(id2)
	if err := q.CancelJob(id2); err != nil {
		t.Fatalf("CancelJob() error = %v", err)
	}
	if job2.State != StateCancelled {
		t.Errorf("cancelled job State = %v; want StateCancelled", job2.State)
	}
	if job2.Ctx.Err() == nil {
		t.Error("cancelled job context is still live")
	}
	if err := q.CancelJob(id2); err == nil {
		t.Error("CancelJob() twice expected error")
	}
}

func TestRemoveAndClear(t *testing.T) {
	q := NewQueueWithDB(openTestDB(t))
	running, _ := q.AddJob("vr180", "a.mp4", true, "/a")
	q.ClaimJob()
	done, _ := q.AddJob("vr180", "b.mp4", true, "/b")
	q.ClaimJob()
	q.CompleteJob(done, "out")
	q.AddJob("vr180", "c.mp4", true, "/c")
	q.AddJob("vr180", "d.mp4", true, "/c")

	n, err := q.ClearNonRunningJobs()
	if err != nil {
		t.Fatalf("ClearNonRunningJobs() error = %v", err)
	}
	if n != 3 {
		t.Errorf("ClearNonRunningJobs() = %d; want 3", n)
	}
	if jobs := q.GetJobs(); len(jobs) != 1 || jobs[0].ID != running {
		t.Errorf("remaining jobs = %v; want only %s", jobs, running)
	}

	if err := q.RemoveJob(running); err != nil {
		t.Fatalf("RemoveJob() error = %v", err)
	}
	if q.GetJob(running) != nil {
		t.Error("RemoveJob() left the job in the queue")
	}
	if err := q.RemoveJob(running); err == nil {
		t.Error("RemoveJob() twice expected error")
	}

	var rows int
	if err := q.Db.QueryRow("SELECT COUNT(*) FROM jobs").Scan(&rows); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if rows != 0 {
		t.Errorf("jobs table has %d rows; want 0", rows)
	}
}

func TestDatabasePersistence(t *testing.T) {
	db := openTestDB(t)

	q1 := NewQueueWithDB(db)
	id1, _ := q1.AddJob("vr180", "one.mp4", false, "/w1")
	id2, _ := q1.AddJob("anaglyph", "two.mp4", true, "/w2")
	q1.PushJobStdout(id1, "batch 0 done")
	q1.ClaimJob()
	q1.CompleteJob(id1, "/w1/output/final_vr_180.mp4")

	// simulates restart
	q2 := NewQueueWithDB(db)
	job1 := q2.GetJob(id1)
	job2 := q2.GetJob(id2)
	if job1 == nil || job2 == nil {
		t.Fatal("Jobs were not persisted/loaded from database")
	}
	if job1.State != StateCompleted {
		t.Errorf("Loaded job1.State = %v; want StateCompleted", job1.State)
	}
	if job1.IncludeAudio {
		t.Error("Loaded job1.IncludeAudio = true; want false")
	}
	if job1.Output != "/w1/output/final_vr_180.mp4" {
		t.Errorf("Loaded job1.Output = %q", job1.Output)
	}
	if len(job1.Stdout) != 1 || job1.Stdout[0] != "batch 0 done" {
		t.Errorf("Loaded job1.Stdout = %v; want [batch 0 done]", job1.Stdout)
	}
	if job2.Command != "anaglyph" || job2.WorkDir != "/w2" {
		t.Errorf("Loaded job2 = %q in %q", job2.Command, job2.WorkDir)
	}

	jobs := q2.GetJobs()
	if len(jobs) != 2 || jobs[0].ID != id2 || jobs[1].ID != id1 {
		t.Errorf("Loaded order = %v; want [%s %s]", jobs, id2, id1)
	}
}

func TestDatabasePersistenceInProgressReset(t *testing.T) {
	db := openTestDB(t)

	q1 := NewQueueWithDB(db)
	id, _ := q1.AddJob("vr180", "in.mp4", true, "/work")
	q1.ClaimJob()

	// simulates crash recovery
	q2 := NewQueueWithDB(db)
	loaded := q2.GetJob(id)
	if loaded.State != StatePending {
		t.Errorf("In-progress job should be reset to pending on reload; got %v", loaded.State)
	}
	select {
	case got := <-q2.Signal:
		if got != id {
			t.Errorf("resume Signal = %q; want %q", got, id)
		}
	default:
		t.Error("resumed job was not signalled")
	}
	if job, _ := q2.ClaimJob(); job == nil || job.ID != id {
		t.Error("resumed job could not be claimed")
	}
}

func TestSaveAllJobsToDB(t *testing.T) {
	db := openTestDB(t)
	q := NewQueueWithDB(db)
	id, _ := q.AddJob("vr180", "in.mp4", true, "/work")

	q.mu.Lock()
	q.Jobs[id].Output = "patched"
	q.mu.Unlock()

	if err := q.SaveAllJobsToDB(); err != nil {
		t.Fatalf("SaveAllJobsToDB() error = %v", err)
	}
	var output string
	if err := db.QueryRow("SELECT output FROM jobs WHERE id = ?", id).Scan(&output); err != nil {
		t.Fatalf("query output: %v", err)
	}
	if output != "patched" {
		t.Errorf("stored output = %q; want %q", output, "patched")
	}
}

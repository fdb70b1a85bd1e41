package jobqueue

import (
	"testing"
)

func TestLaneLimits(t *testing.T) {
	q := NewQueueWithDB(openTestDB(t))

	// Default limit is 1 per working directory

	idA1, _ := q.AddJob("vr180", "a1.mp4", true, "/work/a")
	idA2, _ := q.AddJob("anaglyph", "a2.mp4", true, "/work/a")
	idB1, _ := q.AddJob("vr180", "b1.mp4", true, "/work/b")

	job, err := q.ClaimJob()
	if err != nil {
		t.Fatalf("ClaimJob failed: %v", err)
	}
	if job == nil || job.ID != idA1 {
		t.Fatalf("Expected job %s, got %v", idA1, job)
	}

	// A2 shares A1's directory, so B1 comes next.
	job, _ = q.ClaimJob()
	if job == nil {
		t.Fatal("Expected job B1, got nil")
	}
	if job.ID != idB1 {
		t.Errorf("Expected job %s (/work/b), got %s (%s)", idB1, job.ID, job.WorkDir)
	}

	job, _ = q.ClaimJob()
	if job != nil {
		t.Errorf("Expected nil (A2 blocked), got job %s", job.ID)
	}

	q.CompleteJob(idA1, "out")

	job, _ = q.ClaimJob()
	if job == nil || job.ID != idA2 {
		t.Errorf("Expected job %s, got %v", idA2, job)
	}
}

func TestSetLaneLimit(t *testing.T) {
	q := NewQueue()
	q.SetLaneLimit("/shared", 2)

	q.AddJob("vr180", "1.mp4", true, "/shared")
	q.AddJob("vr180", "2.mp4", true, "/shared")
	q.AddJob("vr180", "3.mp4", true, "/shared")

	claimed := 0
	for {
		job, _ := q.ClaimJob()
		if job == nil {
			break
		}
		claimed++
	}
	if claimed != 2 {
		t.Errorf("claimed %d jobs in /shared; want 2", claimed)
	}
}

// TestTerminalTransitionsReleaseLane verifies that error, cancel and remove
// each free the working directory for the next job.
func TestTerminalTransitionsReleaseLane(t *testing.T) {
	tests := []struct {
		name   string
		finish func(q *Queue, id string) error
	}{
		{"error", func(q *Queue, id string) error { return q.ErrorJob(id) }},
		{"cancel", func(q *Queue, id string) error { return q.CancelJob(id) }},
		{"remove", func(q *Queue, id string) error { return q.RemoveJob(id) }},
		{"complete", func(q *Queue, id string) error { return q.CompleteJob(id, "out") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewQueue()
			id1, _ := q.AddJob("vr180", "1.mp4", true, "/work")
			id2, _ := q.AddJob("vr180", "2.mp4", true, "/work")

			job, _ := q.ClaimJob()
			if job == nil || job.ID != id1 {
				t.Fatalf("Expected %s, got %v", id1, job)
			}
			if err := tt.finish(q, id1); err != nil {
				t.Fatalf("%s error = %v", tt.name, err)
			}

			job, _ = q.ClaimJob()
			if job == nil || job.ID != id2 {
				t.Errorf("Expected %s, got %v", id2, job)
			}
		})
	}
}

func TestCounts(t *testing.T) {
	q := NewQueue()
	q.AddJob("vr180", "1.mp4", true, "/a")
	q.AddJob("vr180", "2.mp4", true, "/b")
	q.ClaimJob()

	c := q.Counts()
	if c[StatePending] != 1 || c[StateInProgress] != 1 {
		t.Errorf("Counts() = %v; want 1 pending, 1 in progress", c)
	}
	if q.Idle() {
		t.Error("Idle() = true with work queued")
	}
}

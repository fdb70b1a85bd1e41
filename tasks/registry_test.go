package tasks

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/stevecastle/stereo180/jobqueue"
)

func noop(j *jobqueue.Job, q *jobqueue.Queue, mu *sync.Mutex) error { return nil }

// withTasks restores the registry after a test registers its own entries.
func withTasks(t *testing.T) {
	t.Helper()
	saved := make(TaskMap, len(tasks))
	for k, v := range tasks {
		saved[k] = v
	}
	t.Cleanup(func() { tasks = saved })
}

// TestBuiltinTasks verifies the conversion and dependency tasks register
// under the command names the queue stores
func TestBuiltinTasks(t *testing.T) {
	want := map[string]string{
		"vr180":      "Convert to VR180",
		"anaglyph":   "Convert to Anaglyph",
		"deps-fetch": "Fetch Dependencies",
	}
	got := GetTasks()
	for id, name := range want {
		task, ok := got[id]
		if !ok {
			t.Errorf("task %q not registered", id)
			continue
		}
		if task.ID != id || task.Name != name {
			t.Errorf("task %q = {%q, %q}; want {%q, %q}", id, task.ID, task.Name, id, name)
		}
		if task.Fn == nil {
			t.Errorf("task %q has nil Fn", id)
		}
	}
	for id, task := range got {
		if task.ID != id {
			t.Errorf("map key %q holds task %q", id, task.ID)
		}
	}
}

// TestRegisterTask verifies registration and that a later registration
// replaces an earlier one
func TestRegisterTask(t *testing.T) {
	withTasks(t)

	RegisterTask("probe-only", "First", noop)
	RegisterTask("probe-only", "Second", noop)

	task, ok := GetTasks()["probe-only"]
	if !ok {
		t.Fatal("task was not registered")
	}
	if task.Name != "Second" {
		t.Errorf("Name = %q; want %q", task.Name, "Second")
	}
}

// TestTaskJSONOmitsFn verifies listings serialize only id and name
func TestTaskJSONOmitsFn(t *testing.T) {
	b, err := json.Marshal(Task{ID: "vr180", Name: "Convert to VR180", Fn: noop})
	if err != nil {
		t.Fatalf("Marshal error = %v", err)
	}
	if got := string(b); got != `{"id":"vr180","name":"Convert to VR180"}` {
		t.Errorf("Marshal = %s", got)
	}
	if strings.Contains(string(b), "Fn") {
		t.Error("Fn leaked into JSON")
	}
}

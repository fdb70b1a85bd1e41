// Package tasks binds queued jobs to the work that runs them.
package tasks

import (
	"sync"

	"github.com/stevecastle/stereo180/jobqueue"
)

// Task represents a runnable unit bound to the jobqueue.
type Task struct {
	ID   string                                                        `json:"id"`
	Name string                                                        `json:"name"`
	Fn   func(j *jobqueue.Job, q *jobqueue.Queue, r *sync.Mutex) error `json:"-"`
}

type TaskMap map[string]Task

var tasks = make(TaskMap)

func init() {
	RegisterTask("vr180", "Convert to VR180", vr180Task)
	RegisterTask("anaglyph", "Convert to Anaglyph", anaglyphTask)
	RegisterTask("deps-fetch", "Fetch Dependencies", fetchDependencyTask)
}

func RegisterTask(id, name string, fn func(j *jobqueue.Job, q *jobqueue.Queue, mu *sync.Mutex) error) {
	tasks[id] = Task{
		ID:   id,
		Name: name,
		Fn:   fn,
	}
}

func GetTasks() TaskMap {
	return tasks
}

package task

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry is the in-memory set of live tasks, keyed by id.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]*Task

	now   func() time.Time
	newID func() string
}

func NewRegistry() *Registry {
	return &Registry{
		tasks: make(map[string]*Task),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Create registers a new pending task under a fresh identifier.
func (r *Registry) Create(url, quality string) *Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.newID()
	for _, taken := r.tasks[id]; taken; _, taken = r.tasks[id] {
		id = r.newID()
	}
	t := newTask(id, url, quality, r.now())
	r.tasks[id] = t
	return t
}

func (r *Registry) Get(id string) (*Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	return t, ok
}

// Remove drops the task. Unknown ids are ignored.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tasks[id]
	delete(r.tasks, id)
	return ok
}

// List returns all tasks, newest first.
func (r *Registry) List() []*Task {
	r.mu.RLock()
	list := make([]*Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		list = append(list, t)
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
	return list
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

package tool

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"
)

// TodoTask is one tracked item of a slide-generation plan.
type TodoTask struct {
	ID          string    `json:"id"`
	Subject     string    `json:"subject"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

const (
	TodoStatusPending    = "pending"
	TodoStatusInProgress = "in_progress"
	TodoStatusCompleted  = "completed"
)

// TodoStore is a thread-safe task store. Each session owns one; tasks do
// not leak across sessions.
type TodoStore struct {
	mu     sync.RWMutex
	tasks  map[string]*TodoTask
	nextID int
}

// NewTodoStore creates an empty TodoStore.
func NewTodoStore() *TodoStore {
	return &TodoStore{
		tasks:  make(map[string]*TodoTask),
		nextID: 1,
	}
}

// Create adds a new pending task and returns it.
func (s *TodoStore) Create(subject, description string) TodoTask {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := strconv.Itoa(s.nextID)
	s.nextID++

	now := time.Now()
	task := &TodoTask{
		ID:          id,
		Subject:     subject,
		Description: description,
		Status:      TodoStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.tasks[id] = task
	return *task
}

// Get retrieves a task by ID.
func (s *TodoStore) Get(id string) (TodoTask, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return TodoTask{}, false
	}
	return *task, true
}

// Update modifies an existing task.
func (s *TodoStore) Update(id string, opts ...TodoOption) (TodoTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return TodoTask{}, fmt.Errorf("task %s not found", id)
	}
	for _, opt := range opts {
		opt(task)
	}
	task.UpdatedAt = time.Now()
	return *task, nil
}

// List returns all tasks sorted by numeric ID.
func (s *TodoStore) List() []TodoTask {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]TodoTask, 0, len(s.tasks))
	for _, task := range s.tasks {
		tasks = append(tasks, *task)
	}
	sort.Slice(tasks, func(i, j int) bool {
		a, _ := strconv.Atoi(tasks[i].ID)
		b, _ := strconv.Atoi(tasks[j].ID)
		return a < b
	})
	return tasks
}

// TodoOption is a functional option for updating a task.
type TodoOption func(*TodoTask)

// WithTodoStatus sets the task status.
func WithTodoStatus(status string) TodoOption {
	return func(t *TodoTask) { t.Status = status }
}

// WithTodoSubject sets the task subject.
func WithTodoSubject(subject string) TodoOption {
	return func(t *TodoTask) { t.Subject = subject }
}

// WithTodoDescription sets the task description.
func WithTodoDescription(description string) TodoOption {
	return func(t *TodoTask) { t.Description = description }
}

// ValidTodoStatus reports whether status is one of the known states.
func ValidTodoStatus(status string) bool {
	switch status {
	case TodoStatusPending, TodoStatusInProgress, TodoStatusCompleted:
		return true
	}
	return false
}

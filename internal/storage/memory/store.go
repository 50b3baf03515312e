package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tarefas/internal/models"
)

// Store keeps tasks in process memory. Contents are lost on restart.
type Store struct {
	mu    sync.RWMutex
	tasks map[string]models.Task
	order []string
	now   func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{tasks: make(map[string]models.Task), now: func() time.Time { return time.Now().UTC() }}
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// ListTasks returns tasks in insertion order, filtered by status when given.
func (s *Store) ListTasks(_ context.Context, status string) ([]models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]models.Task, 0, len(s.order))
	for _, id := range s.order {
		t := s.tasks[id]
		if status != "" && t.Status != status {
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// GetTask returns the task with the given id.
func (s *Store) GetTask(_ context.Context, id string) (models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return models.Task{}, models.ErrTaskNotFound
	}
	return t, nil
}

// CreateTask stores a new task with a fresh id.
func (s *Store) CreateTask(_ context.Context, t models.Task) (models.Task, error) {
	t.Title = strings.TrimSpace(t.Title)
	if t.Title == "" {
		return models.Task{}, models.ErrTitleRequired
	}
	if strings.TrimSpace(t.Status) == "" {
		t.Status = models.StatusPending
	}
	t.ID = uuid.NewString()
	t.CreatedAt = s.now()
	t.UpdatedAt = t.CreatedAt

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t
	s.order = append(s.order, t.ID)
	return t, nil
}

// UpdateTask applies changes to an existing task. The owner is never touched.
func (s *Store) UpdateTask(_ context.Context, id string, changes models.TaskChanges) (models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return models.Task{}, models.ErrTaskNotFound
	}
	if changes.Title != nil {
		title := strings.TrimSpace(*changes.Title)
		if title == "" {
			return models.Task{}, models.ErrTitleRequired
		}
		t.Title = title
	}
	if changes.Description != nil {
		t.Description = *changes.Description
	}
	if changes.Status != nil && strings.TrimSpace(*changes.Status) != "" {
		t.Status = strings.TrimSpace(*changes.Status)
	}
	if !changes.Empty() {
		t.UpdatedAt = s.now()
	}
	s.tasks[id] = t
	return t, nil
}

// DeleteTask removes a task by id.
func (s *Store) DeleteTask(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return models.ErrTaskNotFound
	}
	delete(s.tasks, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

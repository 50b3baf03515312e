// Package storage defines the task persistence contract shared by the
// memory and sqlite backends.
package storage

import (
	"context"

	"tarefas/internal/models"
)

// TaskStore keeps tasks. Implementations return models.ErrTaskNotFound for
// unknown ids and must be safe for concurrent use.
type TaskStore interface {
	// ListTasks returns all tasks, or only those with the given status when
	// status is non-empty, oldest first.
	ListTasks(ctx context.Context, status string) ([]models.Task, error)
	GetTask(ctx context.Context, id string) (models.Task, error)
	// CreateTask assigns id, status default and timestamps.
	CreateTask(ctx context.Context, t models.Task) (models.Task, error)
	UpdateTask(ctx context.Context, id string, changes models.TaskChanges) (models.Task, error)
	DeleteTask(ctx context.Context, id string) error
	Close() error
}

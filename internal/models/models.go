package models

import (
	"errors"
	"time"
)

// StatusPending is the status every new task starts with.
const StatusPending = "pendente"

var (
	// ErrTaskNotFound is returned by stores when no task has the requested id.
	ErrTaskNotFound = errors.New("task not found")
	// ErrTitleRequired is returned when a task would end up without a title.
	ErrTitleRequired = errors.New("task title must not be empty")
)

// Task represents a single to-do item owned by the user that created it.
type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"titulo"`
	Description string    `json:"descricao"`
	Status      string    `json:"status"`
	Owner       string    `json:"criado_por"`
	CreatedAt   time.Time `json:"criado_em"`
	UpdatedAt   time.Time `json:"atualizado_em"`
}

// OwnerName reports the username of the task creator.
func (t Task) OwnerName() string {
	return t.Owner
}

// TaskChanges lists the fields an update may touch. Nil fields are left as is.
// Ownership is fixed at creation, so there is no owner field.
type TaskChanges struct {
	Title       *string
	Description *string
	Status      *string
}

// Empty reports whether the changes would leave the task untouched.
func (c TaskChanges) Empty() bool {
	return c.Title == nil && c.Description == nil && c.Status == nil
}

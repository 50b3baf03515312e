// Package storagetest holds behaviour tests shared by every TaskStore.
package storagetest

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"tarefas/internal/models"
	"tarefas/internal/storage"
)

// Factory creates an empty store for one test.
type Factory func(t *testing.T) storage.TaskStore

// Run runs the suite against stores built by factory.
func Run(t *testing.T, factory Factory) {
	t.Run("CreateDefaults", func(t *testing.T) { testCreateDefaults(t, factory) })
	t.Run("CreateRequiresTitle", func(t *testing.T) { testCreateRequiresTitle(t, factory) })
	t.Run("GetUnknown", func(t *testing.T) { testGetUnknown(t, factory) })
	t.Run("ListOrderAndFilter", func(t *testing.T) { testListOrderAndFilter(t, factory) })
	t.Run("UpdateKeepsOwner", func(t *testing.T) { testUpdateKeepsOwner(t, factory) })
	t.Run("UpdatePartial", func(t *testing.T) { testUpdatePartial(t, factory) })
	t.Run("UpdateUnknown", func(t *testing.T) { testUpdateUnknown(t, factory) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, factory) })
	t.Run("ConcurrentCreates", func(t *testing.T) { testConcurrentCreates(t, factory) })
}

func ptr(s string) *string { return &s }

func mustCreate(t *testing.T, s storage.TaskStore, title, owner string) models.Task {
	t.Helper()
	task, err := s.CreateTask(context.Background(), models.Task{Title: title, Owner: owner})
	require.NoError(t, err)
	return task
}

func testCreateDefaults(t *testing.T, factory Factory) {
	s := factory(t)
	ctx := context.Background()

	task, err := s.CreateTask(ctx, models.Task{Title: "  Buy milk  ", Owner: "alice"})
	require.NoError(t, err)
	require.NotEmpty(t, task.ID)
	require.Equal(t, "Buy milk", task.Title)
	require.Equal(t, "", task.Description)
	require.Equal(t, models.StatusPending, task.Status)
	require.Equal(t, "alice", task.Owner)
	require.False(t, task.CreatedAt.IsZero())

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, task.ID, got.ID)
	require.Equal(t, task.Title, got.Title)
	require.Equal(t, task.Owner, got.Owner)
	require.Equal(t, task.Status, got.Status)

	other := mustCreate(t, s, "Walk dog", "alice")
	require.NotEqual(t, task.ID, other.ID)
}

func testCreateRequiresTitle(t *testing.T, factory Factory) {
	s := factory(t)
	_, err := s.CreateTask(context.Background(), models.Task{Title: "   ", Owner: "alice"})
	require.ErrorIs(t, err, models.ErrTitleRequired)
}

func testGetUnknown(t *testing.T, factory Factory) {
	s := factory(t)
	_, err := s.GetTask(context.Background(), "does-not-exist")
	require.ErrorIs(t, err, models.ErrTaskNotFound)
}

func testListOrderAndFilter(t *testing.T, factory Factory) {
	s := factory(t)
	ctx := context.Background()

	all, err := s.ListTasks(ctx, "")
	require.NoError(t, err)
	require.NotNil(t, all)
	require.Empty(t, all)

	first := mustCreate(t, s, "first", "alice")
	second := mustCreate(t, s, "second", "bob")
	third := mustCreate(t, s, "third", "alice")
	_, err = s.UpdateTask(ctx, second.ID, models.TaskChanges{Status: ptr("concluida")})
	require.NoError(t, err)

	all, err = s.ListTasks(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, []string{first.ID, second.ID, third.ID}, []string{all[0].ID, all[1].ID, all[2].ID})

	pending, err := s.ListTasks(ctx, models.StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	for _, task := range pending {
		require.Equal(t, models.StatusPending, task.Status)
	}

	done, err := s.ListTasks(ctx, "concluida")
	require.NoError(t, err)
	require.Len(t, done, 1)
	require.Equal(t, second.ID, done[0].ID)

	none, err := s.ListTasks(ctx, "arquivada")
	require.NoError(t, err)
	require.Empty(t, none)
}

func testUpdateKeepsOwner(t *testing.T, factory Factory) {
	s := factory(t)
	task := mustCreate(t, s, "Buy milk", "alice")

	updated, err := s.UpdateTask(context.Background(), task.ID, models.TaskChanges{
		Title:       ptr("Buy oat milk"),
		Description: ptr("2 litres"),
		Status:      ptr("concluida"),
	})
	require.NoError(t, err)
	require.Equal(t, "Buy oat milk", updated.Title)
	require.Equal(t, "2 litres", updated.Description)
	require.Equal(t, "concluida", updated.Status)
	require.Equal(t, "alice", updated.Owner)
	require.Equal(t, task.ID, updated.ID)
}

func testUpdatePartial(t *testing.T, factory Factory) {
	s := factory(t)
	ctx := context.Background()
	task, err := s.CreateTask(ctx, models.Task{Title: "Buy milk", Description: "whole", Owner: "alice"})
	require.NoError(t, err)

	updated, err := s.UpdateTask(ctx, task.ID, models.TaskChanges{Description: ptr("")})
	require.NoError(t, err)
	require.Equal(t, "Buy milk", updated.Title)
	require.Equal(t, "", updated.Description)
	require.Equal(t, models.StatusPending, updated.Status)

	unchanged, err := s.UpdateTask(ctx, task.ID, models.TaskChanges{})
	require.NoError(t, err)
	require.Equal(t, updated.Title, unchanged.Title)
	require.Equal(t, updated.Description, unchanged.Description)

	_, err = s.UpdateTask(ctx, task.ID, models.TaskChanges{Title: ptr(" ")})
	require.ErrorIs(t, err, models.ErrTitleRequired)

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, "Buy milk", got.Title)
}

func testUpdateUnknown(t *testing.T, factory Factory) {
	s := factory(t)
	_, err := s.UpdateTask(context.Background(), "missing", models.TaskChanges{Title: ptr("x")})
	require.ErrorIs(t, err, models.ErrTaskNotFound)
}

func testDelete(t *testing.T, factory Factory) {
	s := factory(t)
	ctx := context.Background()
	keep := mustCreate(t, s, "keep", "alice")
	drop := mustCreate(t, s, "drop", "alice")

	require.NoError(t, s.DeleteTask(ctx, drop.ID))
	_, err := s.GetTask(ctx, drop.ID)
	require.ErrorIs(t, err, models.ErrTaskNotFound)
	require.ErrorIs(t, s.DeleteTask(ctx, drop.ID), models.ErrTaskNotFound)

	all, err := s.ListTasks(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, keep.ID, all[0].ID)
}

func testConcurrentCreates(t *testing.T, factory Factory) {
	s := factory(t)
	const n = 20

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CreateTask(context.Background(), models.Task{Title: "task", Owner: "alice"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	all, err := s.ListTasks(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, all, n)
}

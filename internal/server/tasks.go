package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"tarefas/internal/auth"
	"tarefas/internal/models"
)

type taskRequest struct {
	Title       *string `json:"titulo"`
	Description *string `json:"descricao"`
	Status      *string `json:"status"`
}

var errInvalidBody = errors.New("invalid request body")

// handleListTasks returns every task, optionally filtered by ?status=.
func (s *Server) handleListTasks(c *gin.Context) {
	ctx := c.Request.Context()
	if rej := s.authn.Authorize(ctx, identity(c), auth.ActionRead, nil); rej != nil {
		s.respondRejection(c, rej)
		return
	}

	tasks, err := s.store.ListTasks(ctx, strings.TrimSpace(c.Query("status")))
	if err != nil {
		s.respondStoreError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, tasks)
}

// handleGetTask returns a single task.
func (s *Server) handleGetTask(c *gin.Context) {
	ctx := c.Request.Context()
	if rej := s.authn.Authorize(ctx, identity(c), auth.ActionRead, nil); rej != nil {
		s.respondRejection(c, rej)
		return
	}

	task, err := s.store.GetTask(ctx, taskID(c))
	if err != nil {
		s.respondStoreError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, task)
}

// handleCreateTask creates a task owned by the caller.
func (s *Server) handleCreateTask(c *gin.Context) {
	ctx := c.Request.Context()
	id := identity(c)
	if rej := s.authn.Authorize(ctx, id, auth.ActionCreate, nil); rej != nil {
		s.respondRejection(c, rej)
		return
	}

	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, "Corpo da requisição inválido", errors.Join(errInvalidBody, err))
		return
	}
	if req.Title == nil || strings.TrimSpace(*req.Title) == "" {
		s.respondError(c, http.StatusBadRequest, "Título é obrigatório", models.ErrTitleRequired)
		return
	}

	task, err := s.store.CreateTask(ctx, models.Task{
		Title:       *req.Title,
		Description: getString(req.Description),
		Status:      models.StatusPending,
		Owner:       id.Username,
	})
	if err != nil {
		s.respondStoreError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, task)
}

// handleUpdateTask changes title, description or status. Existence is
// checked before permission so unknown ids are always reported as 404.
func (s *Server) handleUpdateTask(c *gin.Context) {
	ctx := c.Request.Context()
	id := taskID(c)

	current, err := s.store.GetTask(ctx, id)
	if err != nil {
		s.respondStoreError(c, err)
		return
	}
	if rej := s.authn.Authorize(ctx, identity(c), auth.ActionUpdate, current); rej != nil {
		s.respondRejection(c, rej)
		return
	}

	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, "Corpo da requisição inválido", errors.Join(errInvalidBody, err))
		return
	}
	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		s.respondError(c, http.StatusBadRequest, "Título é obrigatório", models.ErrTitleRequired)
		return
	}
	if req.Status != nil && strings.TrimSpace(*req.Status) == "" {
		s.respondError(c, http.StatusBadRequest, "Status inválido", errInvalidBody)
		return
	}

	task, err := s.store.UpdateTask(ctx, id, models.TaskChanges{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
	})
	if err != nil {
		s.respondStoreError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, task)
}

// handleDeleteTask removes a task after the same checks as update.
func (s *Server) handleDeleteTask(c *gin.Context) {
	ctx := c.Request.Context()
	id := taskID(c)

	current, err := s.store.GetTask(ctx, id)
	if err != nil {
		s.respondStoreError(c, err)
		return
	}
	if rej := s.authn.Authorize(ctx, identity(c), auth.ActionDelete, current); rej != nil {
		s.respondRejection(c, rej)
		return
	}

	if err := s.store.DeleteTask(ctx, id); err != nil {
		s.respondStoreError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"mensagem": "Tarefa deletada com sucesso"})
}

func getString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

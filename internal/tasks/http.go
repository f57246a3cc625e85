// Package tasks はタスクの CRUD ハンドラーを提供します。
package tasks

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/task-manager/internal/auth"
	"github.com/yourusername/task-manager/internal/middleware"
	"github.com/yourusername/task-manager/internal/models"
	"github.com/yourusername/task-manager/internal/storage"
)

const (
	msgTaskNotFound   = "Task not found"
	msgUserNotFound   = "User not found"
	msgInvalidStatus  = "Invalid status"
	msgInvalidSort    = "Invalid sortByDueDate"
	msgInvalidDueDate = "Invalid dueDate"
)

// OwnerLookup は作成者の存在確認に使います。
type OwnerLookup interface {
	FindUserByID(ctx context.Context, id string) (*models.User, error)
}

type createTaskRequest struct {
	Title       string        `json:"title" binding:"required"`
	Description string        `json:"description" binding:"required"`
	DueDate     string        `json:"dueDate" binding:"required"`
	Status      models.Status `json:"status" binding:"required"`
}

type updateTaskRequest struct {
	Title       *string        `json:"title"`
	Description *string        `json:"description"`
	DueDate     *string        `json:"dueDate"`
	Status      *models.Status `json:"status"`
}

// patch はリクエストを検証して TaskPatch に変換します。
func (r updateTaskRequest) patch() (models.TaskPatch, *apiError) {
	p := models.TaskPatch{
		Title:       r.Title,
		Description: r.Description,
	}
	if r.Status != nil {
		if !r.Status.Valid() {
			return p, errInvalidStatus
		}
		p.Status = r.Status
	}
	if r.DueDate != nil {
		due, err := models.ParseDueDate(*r.DueDate)
		if err != nil {
			return p, errInvalidDueDate
		}
		p.DueDate = &due
	}
	return p, nil
}

type apiError struct {
	status  int
	code    string
	message string
}

var (
	errInvalidStatus  = &apiError{http.StatusBadRequest, "INVALID_STATUS", msgInvalidStatus}
	errInvalidSort    = &apiError{http.StatusBadRequest, "INVALID_SORT", msgInvalidSort}
	errInvalidDueDate = &apiError{http.StatusBadRequest, "INVALID_INPUT", msgInvalidDueDate}
)

func (e *apiError) respond(c *gin.Context) {
	c.JSON(e.status, gin.H{
		"code":    e.code,
		"message": e.message,
	})
}

// CreateHandler は POST /api/tasks のハンドラーを返します。
// 所有者は常に認証済みユーザーで、リクエストボディの値は使いません。
func CreateHandler(repo storage.TaskStore, owners OwnerLookup, logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := handlerLogger(c, logger, "CreateTask")

		ownerID, ok := auth.UserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    "UNAUTHORIZED",
				"message": "Authentication required",
			})
			return
		}

		var req createTaskRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "title, description, dueDate and status are required",
			})
			return
		}
		if !req.Status.Valid() {
			errInvalidStatus.respond(c)
			return
		}
		due, err := models.ParseDueDate(req.DueDate)
		if err != nil {
			errInvalidDueDate.respond(c)
			return
		}

		if _, err := owners.FindUserByID(c.Request.Context(), ownerID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{
					"code":    "USER_NOT_FOUND",
					"message": msgUserNotFound,
				})
				return
			}
			respondWithError(c, log, err)
			return
		}

		task := &models.Task{
			Title:       req.Title,
			Description: req.Description,
			DueDate:     due,
			Status:      req.Status,
			OwnerID:     ownerID,
		}
		if err := repo.CreateTask(c.Request.Context(), task); err != nil {
			respondWithError(c, log, err)
			return
		}

		log.WithField("task_id", task.ID).Info("task created")
		c.JSON(http.StatusCreated, task)
	}
}

// ListHandler は GET /api/tasks のハンドラーを返します。
// status と sortByDueDate は任意で、所有者による絞り込みは行いません。
func ListHandler(repo storage.TaskStore, logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := handlerLogger(c, logger, "ListTasks")

		filter, apiErr := parseListQuery(c)
		if apiErr != nil {
			apiErr.respond(c)
			return
		}

		tasks, err := repo.ListTasks(c.Request.Context(), filter)
		if err != nil {
			respondWithError(c, log, err)
			return
		}
		if tasks == nil {
			tasks = []*models.Task{}
		}
		c.JSON(http.StatusOK, tasks)
	}
}

// GetHandler は GET /api/tasks/:id のハンドラーを返します。
func GetHandler(repo storage.TaskStore, logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := handlerLogger(c, logger, "GetTask")

		task, err := repo.FindTaskByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondWithError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, task)
	}
}

// UpdateHandler は PUT /api/tasks/:id のハンドラーを返します。
// 指定されたフィールドだけを更新します（置き換えではなくマージ）。
// ボディが空の場合は何も変更せず現在のタスクを返します。
func UpdateHandler(repo storage.TaskStore, logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := handlerLogger(c, logger, "UpdateTask")

		var req updateTaskRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "request body must be a JSON object",
			})
			return
		}
		patch, apiErr := req.patch()
		if apiErr != nil {
			apiErr.respond(c)
			return
		}

		task, err := repo.UpdateTask(c.Request.Context(), c.Param("id"), patch)
		if err != nil {
			respondWithError(c, log, err)
			return
		}

		log.WithField("task_id", task.ID).Info("task updated")
		c.JSON(http.StatusOK, task)
	}
}

// DeleteHandler は DELETE /api/tasks/:id のハンドラーを返します。
func DeleteHandler(repo storage.TaskStore, logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := handlerLogger(c, logger, "DeleteTask")

		id := c.Param("id")
		if err := repo.DeleteTask(c.Request.Context(), id); err != nil {
			respondWithError(c, log, err)
			return
		}

		log.WithField("task_id", id).Info("task deleted")
		c.JSON(http.StatusOK, gin.H{"message": "Task deleted successfully"})
	}
}

func parseListQuery(c *gin.Context) (models.TaskFilter, *apiError) {
	var filter models.TaskFilter
	if raw := c.Query("status"); raw != "" {
		status := models.Status(raw)
		if !status.Valid() {
			return filter, errInvalidStatus
		}
		filter.Status = &status
	}
	if raw := c.Query("sortByDueDate"); raw != "" {
		order := models.SortOrder(raw)
		if !order.Valid() {
			return filter, errInvalidSort
		}
		filter.SortByDue = order
	}
	return filter, nil
}

func handlerLogger(c *gin.Context, logger logrus.FieldLogger, handler string) logrus.FieldLogger {
	return logger.WithFields(logrus.Fields{
		"component":  "tasks",
		"handler":    handler,
		"request_id": middleware.GetRequestID(c),
	})
}

// respondWithError はストアのエラーを HTTP レスポンスへ変換します。
// 想定外のエラーはメッセージをそのまま返します。
func respondWithError(c *gin.Context, log logrus.FieldLogger, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "TASK_NOT_FOUND",
			"message": msgTaskNotFound,
		})
	default:
		log.WithError(err).Error("task store operation failed")
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": err.Error(),
		})
	}
}

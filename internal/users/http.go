// Package users はユーザー情報取得のハンドラーを提供します。
package users

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/task-manager/internal/middleware"
	"github.com/yourusername/task-manager/internal/models"
	"github.com/yourusername/task-manager/internal/storage"
)

// Finder はIDでユーザーを引けるストアです。
type Finder interface {
	FindUserByID(ctx context.Context, id string) (*models.User, error)
}

type userResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// GetHandler は GET /api/users/:userId のハンドラーを返します。パスワードハッシュは返しません。
func GetHandler(users Finder, logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := users.FindUserByID(c.Request.Context(), c.Param("userId"))
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{
					"code":    "USER_NOT_FOUND",
					"message": "User not found",
				})
				return
			}
			logger.WithError(err).WithFields(logrus.Fields{
				"component":  "users",
				"request_id": middleware.GetRequestID(c),
			}).Error("failed to load user")
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "Server error",
			})
			return
		}

		c.JSON(http.StatusOK, userResponse{
			ID:       user.ID,
			Username: user.Username,
			Email:    user.Email,
		})
	}
}

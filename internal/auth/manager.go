// Package auth は認証・認可機能を提供します。
//
// サインアップ/サインイン/ログアウトのハンドラーと、Bearer トークンを検証するミドルウェアを含みます。
package auth

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/task-manager/internal/storage"
)

// ContextUserKey は、ハンドラー間で認証済みユーザーIDを共有するためのキーです。
const ContextUserKey = "auth.user"

// Manager は認証処理に必要な依存関係をまとめた構造体です。
type Manager struct {
	users  storage.UserStore
	hasher Hasher
	tokens TokenService
	logger logrus.FieldLogger
}

// NewManager は認証マネージャーを作成します。
func NewManager(users storage.UserStore, hasher Hasher, tokens TokenService, logger logrus.FieldLogger) *Manager {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Manager{
		users:  users,
		hasher: hasher,
		tokens: tokens,
		logger: logger.WithField("component", "auth"),
	}
}

// UserID は RequireLogin が設定した認証済みユーザーIDを返します。
func UserID(c *gin.Context) (string, bool) {
	id := c.GetString(ContextUserKey)
	return id, id != ""
}

// Package storage はユーザーとタスクの永続化レイヤーを提供します。
//
// バックエンドは MongoDB（既定）と Redis の2種類で、どちらも同じインターフェースを満たします。
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/task-manager/internal/config"
	"github.com/yourusername/task-manager/internal/models"
)

var (
	// ErrNotFound は対象のドキュメントが存在しない場合に返します。
	ErrNotFound = errors.New("document not found")
	// ErrDuplicate はユーザー名またはメールアドレスが重複した場合に返します。
	ErrDuplicate = errors.New("duplicate username or email")
)

// UserStore はユーザーの永続化を担います。
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	FindUserByID(ctx context.Context, id string) (*models.User, error)
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)
	// UserExists はユーザー名とメールアドレスのどちらかが一致するユーザーがいるかを1回の問い合わせで調べます。
	UserExists(ctx context.Context, username, email string) (bool, error)
}

// TaskStore はタスクの永続化を担います。
type TaskStore interface {
	CreateTask(ctx context.Context, task *models.Task) error
	FindTaskByID(ctx context.Context, id string) (*models.Task, error)
	ListTasks(ctx context.Context, filter models.TaskFilter) ([]*models.Task, error)
	// UpdateTask はパッチで指定されたフィールドのみを上書きし、更新後のタスクを返します。
	UpdateTask(ctx context.Context, id string, patch models.TaskPatch) (*models.Task, error)
	DeleteTask(ctx context.Context, id string) error
}

// Store は両方のストアとコネクションの後始末をまとめたものです。
type Store interface {
	UserStore
	TaskStore
	Close(ctx context.Context) error
}

// Open は設定に応じたバックエンドへ接続します。接続できるまでリトライし続けます。
func Open(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (Store, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	switch cfg.StoreDriver {
	case config.DriverMongo:
		return OpenMongo(ctx, cfg, logger)
	case config.DriverRedis:
		return OpenRedis(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.StoreDriver)
	}
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

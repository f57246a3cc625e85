package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/task-manager/internal/config"
	"github.com/yourusername/task-manager/internal/models"
)

const (
	userKeyPrefix     = "user:id:"
	usernameKeyPrefix = "user:username:"
	emailKeyPrefix    = "user:email:"
	taskKeyPrefix     = "task:"
	taskIndexKey      = "tasks:index"
	taskSeqKey        = "tasks:seq"

	maxTxRetries = 16
)

type userRecord struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

var _ Store = (*RedisStore)(nil)

// RedisStore はユーザーとタスクを JSON として Redis に保存します。
// タスクの挿入順は INCR で採番した連番をスコアとする sorted set で保持します。
type RedisStore struct {
	rdb     *redis.Client
	timeout time.Duration
	now     func() time.Time
}

// NewRedisStore は RedisStore を作成します。
func NewRedisStore(rdb *redis.Client, timeout time.Duration) *RedisStore {
	return &RedisStore{
		rdb:     rdb,
		timeout: timeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// OpenRedis は PING が通るまでリトライし、RedisStore を返します。
func OpenRedis(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (*RedisStore, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)

	err = ConnectWithRetry(ctx, "redis", cfg.ConnectRetryInterval, logger, func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return NewRedisStore(rdb, cfg.RequestTimeout), nil
}

// Close はクライアントを閉じます。
func (s *RedisStore) Close(ctx context.Context) error {
	return s.rdb.Close()
}

// CreateUser はユーザー名・メールアドレスの索引キーを WATCH したうえでユーザーを保存します。
func (s *RedisStore) CreateUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return errors.New("user is nil")
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	record := userRecord{
		ID:       uuid.NewString(),
		Username: user.Username,
		Email:    user.Email,
		Password: user.PasswordHash,
	}
	payload, err := json.Marshal(&record)
	if err != nil {
		return err
	}

	unameKey := usernameKey(record.Username)
	mailKey := emailKey(record.Email)
	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, unameKey, mailKey).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrDuplicate
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, userKey(record.ID), payload, 0)
			pipe.Set(ctx, unameKey, record.ID, 0)
			pipe.Set(ctx, mailKey, record.ID, 0)
			return nil
		})
		return err
	}, unameKey, mailKey)
	if err != nil {
		// 監視中に他のリクエストが同じ索引キーを書き込んだ
		if errors.Is(err, redis.TxFailedErr) {
			return ErrDuplicate
		}
		if errors.Is(err, ErrDuplicate) {
			return err
		}
		return fmt.Errorf("create user: %w", err)
	}

	user.ID = record.ID
	return nil
}

// FindUserByID はIDでユーザーを取得します。
func (s *RedisStore) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	return s.getUser(ctx, id)
}

// FindUserByUsername はユーザー名の索引キーからユーザーを取得します。
func (s *RedisStore) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	id, err := s.rdb.Get(ctx, usernameKey(username)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return s.getUser(ctx, id)
}

func (s *RedisStore) getUser(ctx context.Context, id string) (*models.User, error) {
	data, err := s.rdb.Get(ctx, userKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	var record userRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", id, err)
	}
	return &models.User{
		ID:           record.ID,
		Username:     record.Username,
		Email:        record.Email,
		PasswordHash: record.Password,
	}, nil
}

// UserExists は2つの索引キーを1回の EXISTS で調べます。
func (s *RedisStore) UserExists(ctx context.Context, username, email string) (bool, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.rdb.Exists(ctx, usernameKey(username), emailKey(email)).Result()
	if err != nil {
		return false, fmt.Errorf("check user: %w", err)
	}
	return n > 0, nil
}

// CreateTask はタスクを保存し、ID と作成・更新日時を設定します。
func (s *RedisStore) CreateTask(ctx context.Context, task *models.Task) error {
	if task == nil {
		return errors.New("task is nil")
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	now := s.now()
	record := *task
	record.ID = uuid.NewString()
	record.DueDate = task.DueDate.UTC()
	record.CreatedAt = now
	record.UpdatedAt = now

	payload, err := json.Marshal(&record)
	if err != nil {
		return err
	}
	// 時刻ではなく連番を使う（同時刻に作成されたタスクの順序を保つ）
	seq, err := s.rdb.Incr(ctx, taskSeqKey).Result()
	if err != nil {
		return fmt.Errorf("next task sequence: %w", err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, taskKey(record.ID), payload, 0)
		pipe.ZAdd(ctx, taskIndexKey, redis.Z{Score: float64(seq), Member: record.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	*task = record
	return nil
}

// FindTaskByID はIDでタスクを取得します。
func (s *RedisStore) FindTaskByID(ctx context.Context, id string) (*models.Task, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	data, err := s.rdb.Get(ctx, taskKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	var task models.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("decode task %s: %w", id, err)
	}
	return &task, nil
}

// ListTasks は挿入順に読み出し、ステータスで絞り込み、指定があれば期限日で並べ替えます。
func (s *RedisStore) ListTasks(ctx context.Context, filter models.TaskFilter) ([]*models.Task, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	ids, err := s.rdb.ZRange(ctx, taskIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list task ids: %w", err)
	}
	tasks := make([]*models.Task, 0, len(ids))
	if len(ids) == 0 {
		return tasks, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = taskKey(id)
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}

	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// 削除と一覧取得が競合した場合は値が nil になる
			continue
		}
		var task models.Task
		if err := json.Unmarshal([]byte(raw), &task); err != nil {
			return nil, fmt.Errorf("decode task: %w", err)
		}
		if filter.Status != nil && task.Status != *filter.Status {
			continue
		}
		tasks = append(tasks, &task)
	}

	switch filter.SortByDue {
	case models.SortAsc:
		sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].DueDate.Before(tasks[j].DueDate) })
	case models.SortDesc:
		sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].DueDate.After(tasks[j].DueDate) })
	}
	return tasks, nil
}

// UpdateTask は対象キーを WATCH してパッチを適用します。競合時は再試行します。
func (s *RedisStore) UpdateTask(ctx context.Context, id string, patch models.TaskPatch) (*models.Task, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var updated models.Task
	err := s.updatePartial(ctx, taskKey(id), func(task *models.Task) {
		patch.Apply(task)
		task.UpdatedAt = s.now()
		updated = *task
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *RedisStore) updatePartial(ctx context.Context, key string, mutate func(*models.Task)) error {
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if err == redis.Nil {
					return ErrNotFound
				}
				return err
			}
			var task models.Task
			if err := json.Unmarshal(data, &task); err != nil {
				return fmt.Errorf("decode task: %w", err)
			}
			mutate(&task)
			payload, err := json.Marshal(&task)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, payload, 0)
				return nil
			})
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("update task: %w", err)
		}
		return err
	}
	return fmt.Errorf("update task: %w", redis.TxFailedErr)
}

// DeleteTask はタスク本体と索引から削除します。
func (s *RedisStore) DeleteTask(ctx context.Context, id string) error {
	if id == "" {
		return ErrNotFound
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var deleted *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, taskKey(id))
		pipe.ZRem(ctx, taskIndexKey, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if deleted.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

func userKey(id string) string {
	return userKeyPrefix + id
}

func usernameKey(username string) string {
	return usernameKeyPrefix + username
}

func emailKey(email string) string {
	return emailKeyPrefix + email
}

func taskKey(id string) string {
	return taskKeyPrefix + id
}

package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/task-manager/internal/logging"
	"github.com/yourusername/task-manager/internal/models"
	"github.com/yourusername/task-manager/internal/storage"
)

type testEnv struct {
	manager *Manager
	store   *storage.RedisStore
	tokens  *TokenManager
	clock   *fakeClock
	router  *gin.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clock := &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	tokens := newTestTokenManager(t, clock)
	store := storage.NewRedisStore(rdb, time.Second)
	manager := NewManager(store, BcryptHasher{Cost: bcrypt.MinCost}, tokens, logging.Discard())

	router := gin.New()
	router.POST("/api/auth/signup", manager.Signup)
	router.POST("/api/auth/signin", manager.Signin)
	router.POST("/api/auth/logout", manager.Logout)
	router.GET("/api/me", manager.RequireLogin(), func(c *gin.Context) {
		id, _ := UserID(c)
		c.JSON(http.StatusOK, gin.H{"userId": id})
	})

	return &testEnv{manager: manager, store: store, tokens: tokens, clock: clock, router: router}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, header map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var payload map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			t.Fatalf("failed to parse response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, payload
}

// failingUserStore はストア障害を再現するためのスタブです。
type failingUserStore struct {
	err error
}

func (s *failingUserStore) CreateUser(ctx context.Context, user *models.User) error { return s.err }
func (s *failingUserStore) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	return nil, s.err
}
func (s *failingUserStore) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return nil, s.err
}
func (s *failingUserStore) UserExists(ctx context.Context, username, email string) (bool, error) {
	return false, s.err
}

var errBackendDown = errors.New("backend down")

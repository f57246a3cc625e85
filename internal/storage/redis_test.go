package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/yourusername/task-manager/internal/models"
)

func newTestRedisStore(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, NewRedisStore(rdb, time.Second)
}

func day(d int) time.Time {
	return time.Date(2025, 1, d, 0, 0, 0, 0, time.UTC)
}

func TestRedisStoreUserLifecycle(t *testing.T) {
	_, store := newTestRedisStore(t)
	ctx := context.Background()

	user := &models.User{Username: "alice", Email: "a@x.com", PasswordHash: "hash"}
	if err := store.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}
	if user.ID == "" {
		t.Fatal("expected user id to be assigned")
	}

	byName, err := store.FindUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("FindUserByUsername returned error: %v", err)
	}
	if byName.ID != user.ID || byName.PasswordHash != "hash" || byName.Email != "a@x.com" {
		t.Fatalf("unexpected user: %#v", byName)
	}

	byID, err := store.FindUserByID(ctx, user.ID)
	if err != nil || byID.Username != "alice" {
		t.Fatalf("FindUserByID = %#v, %v", byID, err)
	}

	for _, tc := range []struct{ username, email string }{
		{"alice", "other@x.com"},
		{"bob", "a@x.com"},
	} {
		exists, err := store.UserExists(ctx, tc.username, tc.email)
		if err != nil || !exists {
			t.Fatalf("UserExists(%q, %q) = %v, %v", tc.username, tc.email, exists, err)
		}
		err = store.CreateUser(ctx, &models.User{Username: tc.username, Email: tc.email})
		if !errors.Is(err, ErrDuplicate) {
			t.Fatalf("expected ErrDuplicate for %q/%q, got %v", tc.username, tc.email, err)
		}
	}

	exists, err := store.UserExists(ctx, "bob", "b@x.com")
	if err != nil || exists {
		t.Fatalf("UserExists for fresh user = %v, %v", exists, err)
	}
	if _, err := store.FindUserByUsername(ctx, "bob"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.FindUserByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisStoreTaskCRUD(t *testing.T) {
	_, store := newTestRedisStore(t)
	ctx := context.Background()
	created := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return created }

	task := &models.Task{Title: "T", Description: "D", DueDate: day(1), Status: models.StatusPending, OwnerID: "owner-1"}
	if err := store.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask returned error: %v", err)
	}
	if task.ID == "" || !task.CreatedAt.Equal(created) || !task.UpdatedAt.Equal(created) {
		t.Fatalf("unexpected created task: %#v", task)
	}

	got, err := store.FindTaskByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("FindTaskByID returned error: %v", err)
	}
	if got.Title != "T" || got.OwnerID != "owner-1" || !got.DueDate.Equal(day(1)) {
		t.Fatalf("unexpected task: %#v", got)
	}

	later := created.Add(time.Hour)
	store.now = func() time.Time { return later }
	completed := models.StatusCompleted
	updated, err := store.UpdateTask(ctx, task.ID, models.TaskPatch{Status: &completed})
	if err != nil {
		t.Fatalf("UpdateTask returned error: %v", err)
	}
	if updated.Status != models.StatusCompleted {
		t.Fatalf("status = %q", updated.Status)
	}
	if updated.Title != "T" || updated.Description != "D" || !updated.DueDate.Equal(day(1)) || updated.OwnerID != "owner-1" {
		t.Fatalf("patch replaced untouched fields: %#v", updated)
	}
	if !updated.CreatedAt.Equal(created) || !updated.UpdatedAt.Equal(later) {
		t.Fatalf("unexpected timestamps: %#v", updated)
	}

	reloaded, _ := store.FindTaskByID(ctx, task.ID)
	if reloaded.Status != models.StatusCompleted || reloaded.Title != "T" {
		t.Fatalf("update not persisted: %#v", reloaded)
	}

	if err := store.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("DeleteTask returned error: %v", err)
	}
	if err := store.DeleteTask(ctx, task.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: expected ErrNotFound, got %v", err)
	}
	if _, err := store.FindTaskByID(ctx, task.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if _, err := store.UpdateTask(ctx, task.ID, models.TaskPatch{Status: &completed}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update after delete: expected ErrNotFound, got %v", err)
	}
}

func TestRedisStoreListTasksFilterAndSort(t *testing.T) {
	_, store := newTestRedisStore(t)
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	store.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	inputs := []struct {
		title  string
		due    time.Time
		status models.Status
	}{
		{"b", day(20), models.StatusPending},
		{"a", day(5), models.StatusCompleted},
		{"c", day(10), models.StatusPending},
	}
	for _, in := range inputs {
		task := &models.Task{Title: in.title, Description: "d", DueDate: in.due, Status: in.status, OwnerID: "u"}
		if err := store.CreateTask(ctx, task); err != nil {
			t.Fatalf("CreateTask returned error: %v", err)
		}
	}

	all, err := store.ListTasks(ctx, models.TaskFilter{})
	if err != nil {
		t.Fatalf("ListTasks returned error: %v", err)
	}
	if titles(all) != "bac" {
		t.Fatalf("insertion order = %q, want bac", titles(all))
	}

	asc, _ := store.ListTasks(ctx, models.TaskFilter{SortByDue: models.SortAsc})
	if titles(asc) != "acb" {
		t.Fatalf("asc order = %q, want acb", titles(asc))
	}

	pending := models.StatusPending
	desc, _ := store.ListTasks(ctx, models.TaskFilter{Status: &pending, SortByDue: models.SortDesc})
	if titles(desc) != "bc" {
		t.Fatalf("pending desc = %q, want bc", titles(desc))
	}
}

func TestRedisStoreListTasksEmpty(t *testing.T) {
	_, store := newTestRedisStore(t)
	tasks, err := store.ListTasks(context.Background(), models.TaskFilter{})
	if err != nil {
		t.Fatalf("ListTasks returned error: %v", err)
	}
	if tasks == nil || len(tasks) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", tasks)
	}
}

func TestRedisStoreSurfacesBackendErrors(t *testing.T) {
	mr, store := newTestRedisStore(t)
	mr.Close()

	if _, err := store.ListTasks(context.Background(), models.TaskFilter{}); err == nil {
		t.Fatal("expected error when redis is down")
	}
	if _, err := store.FindTaskByID(context.Background(), "x"); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected backend error, got %v", err)
	}
}

func TestRedisStoreUserIDsDoNotReachIndexKeys(t *testing.T) {
	_, store := newTestRedisStore(t)
	ctx := context.Background()

	user := &models.User{Username: "alice", Email: "a@x.com", PasswordHash: "hash"}
	if err := store.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}

	for _, id := range []string{"username:alice", "email:a@x.com", "id:" + user.ID} {
		if _, err := store.FindUserByID(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Fatalf("FindUserByID(%q): expected ErrNotFound, got %v", id, err)
		}
	}
}

func TestRedisStoreListKeepsInsertionOrderWithSameTimestamp(t *testing.T) {
	_, store := newTestRedisStore(t)
	ctx := context.Background()
	fixed := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	want := "abcdefgh"
	for _, title := range strings.Split(want, "") {
		task := &models.Task{Title: title, Description: "d", DueDate: day(1), Status: models.StatusPending, OwnerID: "u"}
		if err := store.CreateTask(ctx, task); err != nil {
			t.Fatalf("CreateTask returned error: %v", err)
		}
	}

	all, err := store.ListTasks(ctx, models.TaskFilter{})
	if err != nil {
		t.Fatalf("ListTasks returned error: %v", err)
	}
	if titles(all) != want {
		t.Fatalf("order = %q, want %q", titles(all), want)
	}
}

func TestRedisStoreWrapsDecodeErrors(t *testing.T) {
	mr, store := newTestRedisStore(t)
	ctx := context.Background()

	if err := mr.Set(taskKey("broken"), "not-json"); err != nil {
		t.Fatalf("mr.Set failed: %v", err)
	}
	if _, err := store.FindTaskByID(ctx, "broken"); err == nil || !strings.Contains(err.Error(), "decode task broken") {
		t.Fatalf("expected wrapped decode error, got %v", err)
	}

	if err := mr.Set(userKey("broken"), "not-json"); err != nil {
		t.Fatalf("mr.Set failed: %v", err)
	}
	if _, err := store.FindUserByID(ctx, "broken"); err == nil || !strings.Contains(err.Error(), "decode user broken") {
		t.Fatalf("expected wrapped decode error, got %v", err)
	}
}

func titles(tasks []*models.Task) string {
	s := ""
	for _, t := range tasks {
		s += t.Title
	}
	return s
}

// Package models はAPI全体で共有するドメインモデルを定義します。
package models

import (
	"errors"
	"strings"
	"time"
)

// Status はタスクの進捗状態を表します。
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
)

// Valid は列挙値のいずれかであれば true を返します。遷移順序は問いません。
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	default:
		return false
	}
}

// SortOrder は期限日での並び順です。
type SortOrder string

const (
	SortNone SortOrder = ""
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Valid は asc / desc / 未指定のいずれかであれば true を返します。
func (o SortOrder) Valid() bool {
	return o == SortNone || o == SortAsc || o == SortDesc
}

// Task はユーザーが所有するタスクです。OwnerID は作成時に一度だけ設定されます。
type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	DueDate     time.Time `json:"dueDate"`
	Status      Status    `json:"status"`
	OwnerID     string    `json:"ownerId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// TaskFilter は一覧取得時の絞り込みと並び順です。
type TaskFilter struct {
	Status    *Status
	SortByDue SortOrder
}

// TaskPatch は部分更新で指定されたフィールドだけを保持します。
type TaskPatch struct {
	Title       *string
	Description *string
	DueDate     *time.Time
	Status      *Status
}

// Empty は更新対象のフィールドが一つもない場合に true を返します。
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.DueDate == nil && p.Status == nil
}

// Apply はパッチを既存タスクへフィールド単位で上書きします。
func (p TaskPatch) Apply(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.DueDate != nil {
		t.DueDate = *p.DueDate
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
}

// ErrInvalidDueDate は期限日の書式が解釈できない場合のエラーです。
var ErrInvalidDueDate = errors.New("invalid due date")

var dueDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseDueDate は RFC3339 もしくは YYYY-MM-DD 形式の期限日を UTC で返します。
func ParseDueDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, ErrInvalidDueDate
	}
	for _, layout := range dueDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, ErrInvalidDueDate
}

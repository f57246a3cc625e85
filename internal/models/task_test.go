package models

import (
	"testing"
	"time"
)

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusInProgress, StatusCompleted} {
		if !s.Valid() {
			t.Fatalf("%q should be valid", s)
		}
	}
	if Status("bogus").Valid() {
		t.Fatal("bogus status must be rejected")
	}
	if Status("").Valid() {
		t.Fatal("empty status must be rejected")
	}
}

func TestParseDueDate(t *testing.T) {
	got, err := ParseDueDate("2025-01-01")
	if err != nil {
		t.Fatalf("ParseDueDate returned error: %v", err)
	}
	want := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("ParseDueDate = %v, want %v", got, want)
	}

	got, err = ParseDueDate("2025-03-04T10:00:00+09:00")
	if err != nil {
		t.Fatalf("ParseDueDate returned error: %v", err)
	}
	if got.Hour() != 1 || got.Location() != time.UTC {
		t.Fatalf("expected UTC normalisation, got %v", got)
	}

	if _, err := ParseDueDate("next tuesday"); err != ErrInvalidDueDate {
		t.Fatalf("expected ErrInvalidDueDate, got %v", err)
	}
}

func TestTaskPatchApplyLeavesAbsentFields(t *testing.T) {
	due := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	task := &Task{Title: "T", Description: "D", DueDate: due, Status: StatusPending, OwnerID: "u1"}

	completed := StatusCompleted
	TaskPatch{Status: &completed}.Apply(task)

	if task.Status != StatusCompleted {
		t.Fatalf("status = %q, want completed", task.Status)
	}
	if task.Title != "T" || task.Description != "D" || !task.DueDate.Equal(due) || task.OwnerID != "u1" {
		t.Fatalf("unexpected fields changed: %#v", task)
	}
	if (TaskPatch{}).Empty() != true {
		t.Fatal("zero patch should be empty")
	}
}

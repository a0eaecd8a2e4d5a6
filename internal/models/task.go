package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type TaskStatus string

const (
	TaskStatusOpen   TaskStatus = "open"
	TaskStatusClosed TaskStatus = "closed"
)

// DateLayout is the wire and storage format of a task due date.
const DateLayout = "2006-01-02"

func (s TaskStatus) Valid() bool {
	return s == TaskStatusOpen || s == TaskStatusClosed
}

// ParseTaskStatus accepts "open" or "closed" in any case.
func ParseTaskStatus(s string) (TaskStatus, bool) {
	status := TaskStatus(strings.ToLower(strings.TrimSpace(s)))
	return status, status.Valid()
}

type Task struct {
	ID          uuid.UUID
	OwnerID     uuid.UUID
	Title       string
	Description *string
	Status      TaskStatus
	DueDate     *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
}

// NewTask returns an open task owned by ownerID.
func NewTask(ownerID uuid.UUID, title string, now time.Time) *Task {
	now = now.UTC()
	return &Task{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Title:     title,
		Status:    TaskStatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Complete moves the task to closed and stamps completed_at. Calling it on a
// closed task overwrites the previous stamp.
func (t *Task) Complete(now time.Time) {
	completed := now.UTC()
	t.Status = TaskStatusClosed
	t.CompletedAt = &completed
	t.UpdatedAt = completed
}

// Reopen moves the task to open and clears completed_at.
func (t *Task) Reopen(now time.Time) {
	t.Status = TaskStatusOpen
	t.CompletedAt = nil
	t.UpdatedAt = now.UTC()
}

// SetStatus applies a status requested through a generic update. A status
// that differs from the current one goes through Complete or Reopen so that
// completed_at always follows status. Repeating the current status is not a
// transition and leaves completed_at untouched.
func (t *Task) SetStatus(status TaskStatus, now time.Time) {
	if status == t.Status {
		return
	}
	switch status {
	case TaskStatusClosed:
		t.Complete(now)
	case TaskStatusOpen:
		t.Reopen(now)
	}
}

func (t *Task) IsCompleted() bool {
	return t.Status == TaskStatusClosed
}

func (t *Task) IsDeleted() bool {
	return t.DeletedAt != nil
}

// IsOverdue is derived at read time: the task is open and its due date is a
// calendar day before today.
func (t *Task) IsOverdue(now time.Time) bool {
	if t.DueDate == nil || t.Status != TaskStatusOpen {
		return false
	}
	return DateOf(*t.DueDate).Before(DateOf(now))
}

// Clone returns a deep copy, used to keep the pre-mutation state for diffs.
func (t *Task) Clone() *Task {
	c := *t
	c.Description = copyPtr(t.Description)
	c.DueDate = copyPtr(t.DueDate)
	c.CompletedAt = copyPtr(t.CompletedAt)
	c.DeletedAt = copyPtr(t.DeletedAt)
	return &c
}

// TaskPatch is a partial update. Nil pointers leave a field unchanged; the
// Clear flags set the optional fields back to null.
type TaskPatch struct {
	Title            *string
	Description      *string
	ClearDescription bool
	Status           *TaskStatus
	DueDate          *time.Time
	ClearDueDate     bool
}

// Apply mutates the task according to the patch. Status changes are routed
// through SetStatus.
func (t *Task) Apply(p TaskPatch, now time.Time) {
	if p.Title != nil {
		t.Title = strings.TrimSpace(*p.Title)
	}
	switch {
	case p.ClearDescription:
		t.Description = nil
	case p.Description != nil:
		t.Description = NormalizeDescription(p.Description)
	}
	switch {
	case p.ClearDueDate:
		t.DueDate = nil
	case p.DueDate != nil:
		d := DateOf(*p.DueDate)
		t.DueDate = &d
	}
	if p.Status != nil {
		t.SetStatus(*p.Status, now)
	}
	t.UpdatedAt = now.UTC()
}

// NormalizeDescription maps blank descriptions to nil.
func NormalizeDescription(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := *s
	return &v
}

// DateOf truncates t to midnight UTC of its calendar day.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD due date.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
}

// WeekOf returns Monday and Sunday of the calendar week containing t.
func WeekOf(t time.Time) (time.Time, time.Time) {
	day := DateOf(t)
	offset := (int(day.Weekday()) + 6) % 7
	start := day.AddDate(0, 0, -offset)
	return start, start.AddDate(0, 0, 6)
}

type TaskActivity struct {
	ID          uuid.UUID
	TaskID      uuid.UUID
	Seq         int
	Description string
	CreatedAt   time.Time
}

// DueBucket is a relative due-date filter for task listings.
type DueBucket string

const (
	DueToday    DueBucket = "today"
	DueThisWeek DueBucket = "this_week"
	DueOverdue  DueBucket = "overdue"
)

func (b DueBucket) Valid() bool {
	return b == DueToday || b == DueThisWeek || b == DueOverdue
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Package activity derives audit entries from task mutations and appends
// them to the task's trail. Entries are written through the caller's
// transaction so a mutation and its trail commit together.
package activity

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/chepyr/tasktracker/internal/models"
	"github.com/google/uuid"
)

type Op int

const (
	OpCreated Op = iota + 1
	OpUpdated
	OpDeleted
	OpRestored
)

const (
	TaskCreated  = "Task created"
	TaskDeleted  = "Task deleted"
	TaskRestored = "Task restored"
)

// StatusChanged formats the entry for a status transition.
func StatusChanged(from, to models.TaskStatus) string {
	return fmt.Sprintf("Task status changed from %s to %s", from, to)
}

// FieldsModified formats the entry for title/description edits.
func FieldsModified(fields ...string) string {
	return "Task updated: " + strings.Join(fields, ", ") + " modified"
}

// Describe returns the entries a mutation produces. For updates it compares
// the tracked fields of before and after: a status change yields one entry,
// title and description edits share a second one. Untracked fields such as
// the due date produce nothing.
func Describe(op Op, before, after *models.Task) []string {
	switch op {
	case OpCreated:
		return []string{TaskCreated}
	case OpDeleted:
		return []string{TaskDeleted}
	case OpRestored:
		return []string{TaskRestored}
	case OpUpdated:
		var out []string
		if before.Status != after.Status {
			out = append(out, StatusChanged(before.Status, after.Status))
		}
		var fields []string
		if before.Title != after.Title {
			fields = append(fields, "title")
		}
		if !sameText(before.Description, after.Description) {
			fields = append(fields, "description")
		}
		if len(fields) > 0 {
			out = append(out, FieldsModified(fields...))
		}
		return out
	}
	return nil
}

func sameText(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Logger struct {
	now func() time.Time
}

func NewLogger(now func() time.Time) *Logger {
	if now == nil {
		now = time.Now
	}
	return &Logger{now: now}
}

// Log appends the entries derived from op to the trail of after (or before,
// when after is nil). Entries get consecutive sequence numbers following the
// last one stored for the task.
func (l *Logger) Log(ctx context.Context, q Querier, op Op, before, after *models.Task) ([]models.TaskActivity, error) {
	task := after
	if task == nil {
		task = before
	}
	descriptions := Describe(op, before, after)
	if len(descriptions) == 0 {
		return nil, nil
	}

	var last int
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM task_activities WHERE task_id = $1`, task.ID,
	).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("read activity seq: %w", err)
	}

	now := l.now().UTC()
	entries := make([]models.TaskActivity, 0, len(descriptions))
	for i, d := range descriptions {
		entry := models.TaskActivity{
			ID:          uuid.New(),
			TaskID:      task.ID,
			Seq:         last + i + 1,
			Description: d,
			CreatedAt:   now,
		}
		_, err := q.ExecContext(ctx,
			`INSERT INTO task_activities (id, task_id, seq, description, created_at) VALUES ($1, $2, $3, $4, $5)`,
			entry.ID, entry.TaskID, entry.Seq, entry.Description, entry.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("insert activity: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// List returns the trail of a task in the order it was written.
func List(ctx context.Context, q Querier, taskID uuid.UUID) ([]models.TaskActivity, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, task_id, seq, description, created_at FROM task_activities WHERE task_id = $1 ORDER BY seq`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.TaskActivity
	for rows.Next() {
		var a models.TaskActivity
		if err := rows.Scan(&a.ID, &a.TaskID, &a.Seq, &a.Description, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.CreatedAt = a.CreatedAt.UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

// Purge removes the whole trail of a task. Only a permanent delete of the
// task itself calls this.
func Purge(ctx context.Context, q Querier, taskID uuid.UUID) error {
	_, err := q.ExecContext(ctx, `DELETE FROM task_activities WHERE task_id = $1`, taskID)
	return err
}

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chepyr/tasktracker/internal/activity"
	"github.com/chepyr/tasktracker/internal/models"
	"github.com/google/uuid"
)

var ErrTaskNotFound = errors.New("task not found")

const DefaultPerPage = 15

// TaskFilter narrows an owner's task listing. Zero values disable a filter.
type TaskFilter struct {
	Status    models.TaskStatus
	DueBucket models.DueBucket
	Search    string
	Page      int
	PerPage   int
	// Now anchors the relative due-date buckets.
	Now time.Time
}

// defines methods for task db operations
type TaskRepositoryInterface interface {
	Create(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, id uuid.UUID, includeDeleted bool) (*models.Task, error)
	List(ctx context.Context, ownerID uuid.UUID, f TaskFilter) ([]*models.Task, int, error)
	Update(ctx context.Context, before, after *models.Task) error
	SoftDelete(ctx context.Context, task *models.Task) error
	Restore(ctx context.Context, task *models.Task) error
	Purge(ctx context.Context, id uuid.UUID) error
	Activities(ctx context.Context, taskID uuid.UUID) ([]models.TaskActivity, error)
}

// TaskRepository persists tasks. Every mutation writes its activity entries
// in the same transaction.
type TaskRepository struct {
	db  *sql.DB
	log *activity.Logger
}

func NewTaskRepository(db *sql.DB, log *activity.Logger) *TaskRepository {
	if log == nil {
		log = activity.NewLogger(nil)
	}
	return &TaskRepository{db: db, log: log}
}

const taskColumns = `id, owner_id, title, description, status, due_date, completed_at, created_at, updated_at, deleted_at`

func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	return WithTx(ctx, r.db, func(tx *sql.Tx) error {
		query := `INSERT INTO tasks (` + taskColumns + `)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
		_, err := tx.ExecContext(ctx, query,
			task.ID, task.OwnerID, task.Title, task.Description, string(task.Status),
			dateArg(task.DueDate), timeArg(task.CompletedAt),
			task.CreatedAt.UTC(), task.UpdatedAt.UTC(), timeArg(task.DeletedAt))
		if err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		_, err = r.log.Log(ctx, tx, activity.OpCreated, nil, task)
		return err
	})
}

func (r *TaskRepository) GetByID(ctx context.Context, id uuid.UUID, includeDeleted bool) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	task, err := scanTask(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	return task, err
}

// List returns one page of the owner's live tasks, newest first, and the
// total number of matching tasks.
func (r *TaskRepository) List(ctx context.Context, ownerID uuid.UUID, f TaskFilter) ([]*models.Task, int, error) {
	var (
		where = []string{"owner_id = $1", "deleted_at IS NULL"}
		args  = []any{ownerID}
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Status != "" {
		where = append(where, "status = "+arg(string(f.Status)))
	}
	if f.DueBucket != "" {
		now := f.Now
		if now.IsZero() {
			now = time.Now()
		}
		today := models.DateOf(now)
		switch f.DueBucket {
		case models.DueToday:
			where = append(where, "due_date = "+arg(today.Format(models.DateLayout)))
		case models.DueThisWeek:
			start, end := models.WeekOf(today)
			where = append(where, fmt.Sprintf("due_date BETWEEN %s AND %s",
				arg(start.Format(models.DateLayout)), arg(end.Format(models.DateLayout))))
		case models.DueOverdue:
			where = append(where, "due_date < "+arg(today.Format(models.DateLayout)),
				"status = "+arg(string(models.TaskStatusOpen)))
		}
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		p := arg("%" + escapeLike(strings.ToLower(s)) + "%")
		where = append(where, fmt.Sprintf(
			`(LOWER(title) LIKE %s ESCAPE '\' OR LOWER(COALESCE(description, '')) LIKE %s ESCAPE '\')`, p, p))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}

	perPage := f.PerPage
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	page := f.Page
	if page < 1 {
		page = 1
	}
	if page-1 > (total-1)/perPage {
		// past the last page
		return []*models.Task{}, total, nil
	}
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE ` + cond +
		` ORDER BY created_at DESC, id DESC LIMIT ` + arg(perPage) + ` OFFSET ` + arg((page-1)*perPage)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]*models.Task, 0, perPage)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, 0, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

// Update stores after and records the changes relative to before. Owner and
// creation time never change.
func (r *TaskRepository) Update(ctx context.Context, before, after *models.Task) error {
	return WithTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE tasks SET title = $1, description = $2, status = $3, due_date = $4, completed_at = $5, updated_at = $6
			 WHERE id = $7 AND deleted_at IS NULL`,
			after.Title, after.Description, string(after.Status), dateArg(after.DueDate),
			timeArg(after.CompletedAt), after.UpdatedAt.UTC(), after.ID)
		if err := requireRow(res, err); err != nil {
			return err
		}
		_, err = r.log.Log(ctx, tx, activity.OpUpdated, before, after)
		return err
	})
}

// SoftDelete hides the task from default reads. The task must carry its
// DeletedAt stamp.
func (r *TaskRepository) SoftDelete(ctx context.Context, task *models.Task) error {
	return WithTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE tasks SET deleted_at = $1, updated_at = $2 WHERE id = $3 AND deleted_at IS NULL`,
			timeArg(task.DeletedAt), task.UpdatedAt.UTC(), task.ID)
		if err := requireRow(res, err); err != nil {
			return err
		}
		_, err = r.log.Log(ctx, tx, activity.OpDeleted, task, task)
		return err
	})
}

func (r *TaskRepository) Restore(ctx context.Context, task *models.Task) error {
	return WithTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE tasks SET deleted_at = NULL, updated_at = $1 WHERE id = $2 AND deleted_at IS NOT NULL`,
			task.UpdatedAt.UTC(), task.ID)
		if err := requireRow(res, err); err != nil {
			return err
		}
		_, err = r.log.Log(ctx, tx, activity.OpRestored, task, task)
		return err
	})
}

// Purge removes the task and its trail for good. Nothing is recorded.
func (r *TaskRepository) Purge(ctx context.Context, id uuid.UUID) error {
	return WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := activity.Purge(ctx, tx, id); err != nil {
			return fmt.Errorf("purge activities: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
		return requireRow(res, err)
	})
}

func (r *TaskRepository) Activities(ctx context.Context, taskID uuid.UUID) ([]models.TaskActivity, error) {
	return activity.List(ctx, r.db, taskID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	var (
		t      models.Task
		status string
	)
	err := row.Scan(&t.ID, &t.OwnerID, &t.Title, &t.Description, &status, &t.DueDate,
		&t.CompletedAt, &t.CreatedAt, &t.UpdatedAt, &t.DeletedAt)
	if err != nil {
		return nil, err
	}
	t.Status = models.TaskStatus(status)
	if t.DueDate != nil {
		d := models.DateOf(*t.DueDate)
		t.DueDate = &d
	}
	t.CompletedAt = utcPtr(t.CompletedAt)
	t.DeletedAt = utcPtr(t.DeletedAt)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}

func requireRow(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// dates are stored as YYYY-MM-DD so both drivers compare them as days
func dateArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(models.DateLayout)
}

func timeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

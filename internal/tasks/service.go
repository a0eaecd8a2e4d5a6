// Package tasks holds the task use cases: every operation loads the task,
// asks the guard, applies the state machine and hands the before/after pair
// to the store, which records the activity in the same transaction.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/chepyr/tasktracker/internal/apperr"
	"github.com/chepyr/tasktracker/internal/authz"
	"github.com/chepyr/tasktracker/internal/db"
	"github.com/chepyr/tasktracker/internal/models"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"
)

var (
	ErrTaskNotFound = apperr.New(apperr.KindNotFound, "TASK_NOT_FOUND", "Task not found")
	ErrForbidden    = apperr.New(apperr.KindAuthorization, "FORBIDDEN", "This action is unauthorized.")
	ErrNotDeleted   = apperr.New(apperr.KindValidation, "TASK_NOT_DELETED", "The task is not deleted.")
)

const maxTitle = 255

// maxPage keeps the row offset of a page within int.
const maxPage = math.MaxInt / db.DefaultPerPage

type Service struct {
	store db.TaskRepositoryInterface
	now   func() time.Time
}

func NewService(store db.TaskRepositoryInterface, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, now: now}
}

type ListQuery struct {
	Status    models.TaskStatus
	DueBucket models.DueBucket
	Search    string
	Page      int
}

type Page struct {
	Tasks    []*models.Task
	Total    int
	Page     int
	PerPage  int
	LastPage int
}

func (s *Service) List(ctx context.Context, id models.Identity, q ListQuery) (*Page, error) {
	if !authz.CanActOnTask(id, nil, authz.ActionViewAny) {
		return nil, ErrForbidden
	}
	fields := map[string]string{}
	if q.Status != "" && !q.Status.Valid() {
		fields["status"] = "The selected status is invalid."
	}
	if q.DueBucket != "" && !q.DueBucket.Valid() {
		fields["due_date"] = "The selected due date is invalid."
	}
	switch {
	case q.Page < 0:
		fields["page"] = "The page must be at least 1."
	case q.Page > maxPage:
		fields["page"] = fmt.Sprintf("The page must not be greater than %d.", maxPage)
	}
	if len(fields) > 0 {
		return nil, apperr.Validation(fields)
	}
	if q.Page == 0 {
		q.Page = 1
	}

	list, total, err := s.store.List(ctx, id.ID, db.TaskFilter{
		Status:    q.Status,
		DueBucket: q.DueBucket,
		Search:    q.Search,
		Page:      q.Page,
		PerPage:   db.DefaultPerPage,
		Now:       s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	last := (total + db.DefaultPerPage - 1) / db.DefaultPerPage
	if last < 1 {
		last = 1
	}
	return &Page{Tasks: list, Total: total, Page: q.Page, PerPage: db.DefaultPerPage, LastPage: last}, nil
}

type CreateInput struct {
	Title       string            `json:"title"`
	Description *string           `json:"description"`
	Status      models.TaskStatus `json:"status"`
	DueDate     *time.Time        `json:"due_date"`
}

func (in CreateInput) validate(today time.Time) error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Title,
			validation.Required.Error("The title field is required."),
			validation.By(titleLength),
		),
		validation.Field(&in.Status,
			validation.In(models.TaskStatusOpen, models.TaskStatusClosed).Error("The selected status is invalid."),
		),
		validation.Field(&in.DueDate, validation.By(func(value interface{}) error {
			due, _ := value.(*time.Time)
			if due != nil && models.DateOf(*due).Before(today) {
				return errors.New("The due date field must be a date after or equal to today.")
			}
			return nil
		})),
	)
}

func titleLength(value interface{}) error {
	var title string
	switch v := value.(type) {
	case string:
		title = v
	case *string:
		if v == nil {
			return nil
		}
		title = *v
	}
	if utf8.RuneCountInString(title) > maxTitle {
		return errors.New("The title field must not be greater than 255 characters.")
	}
	return nil
}

// Create stores a new task owned by the caller. A task created closed is
// stamped completed like any other completion.
func (s *Service) Create(ctx context.Context, id models.Identity, in CreateInput) (*models.Task, error) {
	if !authz.CanActOnTask(id, nil, authz.ActionCreate) {
		return nil, ErrForbidden
	}
	now := s.now()
	in.Title = strings.TrimSpace(in.Title)
	if err := validationError(in.validate(models.DateOf(now))); err != nil {
		return nil, err
	}

	task := models.NewTask(id.ID, in.Title, now)
	task.Description = models.NormalizeDescription(in.Description)
	if in.DueDate != nil {
		d := models.DateOf(*in.DueDate)
		task.DueDate = &d
	}
	if in.Status == models.TaskStatusClosed {
		task.Complete(now)
	}
	if err := s.store.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return task, nil
}

// Get returns the task with its activity trail.
func (s *Service) Get(ctx context.Context, id models.Identity, taskID uuid.UUID) (*models.Task, []models.TaskActivity, error) {
	task, err := s.load(ctx, id, taskID, authz.ActionView, false)
	if err != nil {
		return nil, nil, err
	}
	trail, err := s.store.Activities(ctx, task.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("load activities: %w", err)
	}
	return task, trail, nil
}

func validatePatch(p models.TaskPatch) error {
	fields := map[string]string{}
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			fields["title"] = "The title field is required."
		} else if err := titleLength(title); err != nil {
			fields["title"] = err.Error()
		}
	}
	if p.Status != nil && !p.Status.Valid() {
		fields["status"] = "The selected status is invalid."
	}
	if len(fields) > 0 {
		return apperr.Validation(fields)
	}
	return nil
}

// Update applies a partial update. A status in the patch goes through the
// same transitions as Complete and Reopen.
func (s *Service) Update(ctx context.Context, id models.Identity, taskID uuid.UUID, patch models.TaskPatch) (*models.Task, error) {
	if err := validatePatch(patch); err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, taskID, func(t *models.Task, now time.Time) {
		t.Apply(patch, now)
	})
}

// Complete closes the task. Completing a closed task re-stamps completed_at.
func (s *Service) Complete(ctx context.Context, id models.Identity, taskID uuid.UUID) (*models.Task, error) {
	return s.mutate(ctx, id, taskID, func(t *models.Task, now time.Time) {
		t.Complete(now)
	})
}

// Reopen moves the task back to open.
func (s *Service) Reopen(ctx context.Context, id models.Identity, taskID uuid.UUID) (*models.Task, error) {
	return s.mutate(ctx, id, taskID, func(t *models.Task, now time.Time) {
		t.Reopen(now)
	})
}

func (s *Service) mutate(ctx context.Context, id models.Identity, taskID uuid.UUID, fn func(*models.Task, time.Time)) (*models.Task, error) {
	task, err := s.load(ctx, id, taskID, authz.ActionUpdate, false)
	if err != nil {
		return nil, err
	}
	before := task.Clone()
	fn(task, s.now())
	if err := s.store.Update(ctx, before, task); err != nil {
		return nil, s.storeError("update task", err)
	}
	return task, nil
}

// Delete soft-deletes the task. Its trail is kept.
func (s *Service) Delete(ctx context.Context, id models.Identity, taskID uuid.UUID) error {
	task, err := s.load(ctx, id, taskID, authz.ActionDelete, false)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	task.DeletedAt = &now
	task.UpdatedAt = now
	if err := s.store.SoftDelete(ctx, task); err != nil {
		return s.storeError("delete task", err)
	}
	return nil
}

// Purge removes a live or soft-deleted task and its trail permanently.
func (s *Service) Purge(ctx context.Context, id models.Identity, taskID uuid.UUID) error {
	if _, err := s.load(ctx, id, taskID, authz.ActionDelete, true); err != nil {
		return err
	}
	if err := s.store.Purge(ctx, taskID); err != nil {
		return s.storeError("purge task", err)
	}
	return nil
}

// Restore brings back a soft-deleted task.
func (s *Service) Restore(ctx context.Context, id models.Identity, taskID uuid.UUID) (*models.Task, error) {
	task, err := s.load(ctx, id, taskID, authz.ActionRestore, true)
	if err != nil {
		return nil, err
	}
	if !task.IsDeleted() {
		e := *ErrNotDeleted
		e.Fields = map[string]string{"task": ErrNotDeleted.Message}
		return nil, &e
	}
	task.DeletedAt = nil
	task.UpdatedAt = s.now().UTC()
	if err := s.store.Restore(ctx, task); err != nil {
		return nil, s.storeError("restore task", err)
	}
	return task, nil
}

// load fetches the task and checks the guard. The guard runs only on tasks
// that exist; a missing task and a foreign one are told apart here so the
// boundary can decide how much to reveal.
func (s *Service) load(ctx context.Context, id models.Identity, taskID uuid.UUID, action authz.Action, includeDeleted bool) (*models.Task, error) {
	task, err := s.store.GetByID(ctx, taskID, includeDeleted)
	if errors.Is(err, db.ErrTaskNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load task: %w", err)
	}
	if !authz.CanActOnTask(id, task, action) {
		return nil, ErrForbidden
	}
	return task, nil
}

// a row vanishing between load and write is reported as not found
func (s *Service) storeError(op string, err error) error {
	if errors.Is(err, db.ErrTaskNotFound) {
		return ErrTaskNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

func validationError(err error) error {
	if err == nil {
		return nil
	}
	var errs validation.Errors
	if !errors.As(err, &errs) {
		return err
	}
	fields := make(map[string]string, len(errs))
	for name, fe := range errs {
		fields[name] = fe.Error()
	}
	return apperr.Validation(fields)
}

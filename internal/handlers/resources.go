package handlers

import (
	"time"

	"github.com/chepyr/tasktracker/internal/auth"
	"github.com/chepyr/tasktracker/internal/models"
	"github.com/chepyr/tasktracker/internal/tasks"
	"github.com/google/uuid"
)

const timestampLayout = "2006-01-02 15:04:05"

type userResource struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt string    `json:"created_at"`
}

func newUserResource(u *models.User) userResource {
	return userResource{ID: u.ID, Name: u.Name, Email: u.Email, CreatedAt: u.CreatedAt.UTC().Format(timestampLayout)}
}

type authorizationResource struct {
	Token     string `json:"token"`
	Type      string `json:"type"`
	ExpiresIn int64  `json:"expires_in"`
}

func newAuthorization(tok auth.Token) authorizationResource {
	return authorizationResource{Token: tok.Value, Type: "bearer", ExpiresIn: int64(tok.ExpiresIn.Seconds())}
}

type activityResource struct {
	ID          uuid.UUID `json:"id"`
	Description string    `json:"description"`
	CreatedAt   string    `json:"created_at"`
}

type taskResource struct {
	ID              uuid.UUID          `json:"id"`
	Title           string             `json:"title"`
	Description     *string            `json:"description"`
	Status          models.TaskStatus  `json:"status"`
	DueDate         *string            `json:"due_date"`
	CompletedAt     *string            `json:"completed_at"`
	CreatedAt       string             `json:"created_at"`
	UpdatedAt       string             `json:"updated_at"`
	ActivitiesCount *int               `json:"activities_count,omitempty"`
	Activities      []activityResource `json:"activities,omitempty"`
	IsCompleted     bool               `json:"is_completed"`
	IsOverdue       bool               `json:"is_overdue"`
}

func formatTime(t *time.Time, layout string) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(layout)
	return &s
}

func newTaskResource(t *models.Task, now time.Time) taskResource {
	return taskResource{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		DueDate:     formatTime(t.DueDate, models.DateLayout),
		CompletedAt: formatTime(t.CompletedAt, timestampLayout),
		CreatedAt:   t.CreatedAt.UTC().Format(timestampLayout),
		UpdatedAt:   t.UpdatedAt.UTC().Format(timestampLayout),
		IsCompleted: t.IsCompleted(),
		IsOverdue:   t.IsOverdue(now),
	}
}

// newTaskDetail includes the activity trail, which is only ever read
// through its task.
func newTaskDetail(t *models.Task, trail []models.TaskActivity, now time.Time) taskResource {
	res := newTaskResource(t, now)
	count := len(trail)
	res.ActivitiesCount = &count
	res.Activities = make([]activityResource, 0, count)
	for _, a := range trail {
		res.Activities = append(res.Activities, activityResource{
			ID:          a.ID,
			Description: a.Description,
			CreatedAt:   a.CreatedAt.UTC().Format(timestampLayout),
		})
	}
	return res
}

type pageMeta struct {
	CurrentPage int `json:"current_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
	LastPage    int `json:"last_page"`
}

type taskPage struct {
	Data []taskResource `json:"data"`
	Meta pageMeta       `json:"meta"`
}

func newTaskPage(p *tasks.Page, now time.Time) taskPage {
	data := make([]taskResource, 0, len(p.Tasks))
	for _, t := range p.Tasks {
		data = append(data, newTaskResource(t, now))
	}
	return taskPage{
		Data: data,
		Meta: pageMeta{CurrentPage: p.Page, PerPage: p.PerPage, Total: p.Total, LastPage: p.LastPage},
	}
}

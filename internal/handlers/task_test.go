package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
)

func getDetail(t *testing.T, app *testApp, token, id string) (int, taskResource) {
	t.Helper()
	rec := app.do(http.MethodGet, "/api/tasks/"+id, token, nil)
	var resp struct {
		Data taskResource `json:"data"`
	}
	if rec.Code == http.StatusOK {
		decode(t, rec, &resp)
	}
	return rec.Code, resp.Data
}

// checks that completing a new task leaves a two-entry trail
func TestCreateAndCompleteTask(t *testing.T) {
	app := newTestApp(t)
	token := app.register("Ann", "ann@x.com")

	task := app.createTask(token, map[string]any{"title": "Ship report"})
	if task.Status != "open" || task.IsCompleted || task.CompletedAt != nil {
		t.Fatalf("new task should be open, got %+v", task)
	}

	app.clock.Advance(time.Minute)
	rec := app.do(http.MethodPatch, "/api/tasks/"+task.ID.String()+"/complete", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("complete: want 200, got %d body=%s", rec.Code, rec.Body.String())
	}

	code, detail := getDetail(t, app, token, task.ID.String())
	if code != http.StatusOK {
		t.Fatalf("get: want 200, got %d", code)
	}
	if detail.Status != "closed" || !detail.IsCompleted || detail.CompletedAt == nil {
		t.Errorf("task should be closed, got %+v", detail)
	}
	if *detail.CompletedAt != "2026-03-11 09:01:00" {
		t.Errorf("completed_at = %q", *detail.CompletedAt)
	}
	if detail.ActivitiesCount == nil || *detail.ActivitiesCount != 2 {
		t.Fatalf("want 2 activities, got %v", detail.ActivitiesCount)
	}
	want := []string{"Task created", "Task status changed from open to closed"}
	for i, a := range detail.Activities {
		if a.Description != want[i] {
			t.Errorf("activity %d = %q, want %q", i, a.Description, want[i])
		}
	}

	rec = app.do(http.MethodPatch, "/api/tasks/"+task.ID.String()+"/reopen", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reopen: want 200, got %d", rec.Code)
	}
	_, detail = getDetail(t, app, token, task.ID.String())
	if detail.Status != "open" || detail.CompletedAt != nil || *detail.ActivitiesCount != 3 {
		t.Errorf("reopened task: %+v", detail)
	}
}

// checks that another user's task looks exactly like a missing one
func TestForeignTaskIsNotFound(t *testing.T) {
	app := newTestApp(t)
	ann := app.register("Ann", "ann@x.com")
	bob := app.register("Bob", "bob@x.com")
	task := app.createTask(ann, map[string]any{"title": "Private"})
	path := "/api/tasks/" + task.ID.String()

	missing := app.do(http.MethodGet, "/api/tasks/"+uuid.NewString(), bob, nil)
	if missing.Code != http.StatusNotFound {
		t.Fatalf("missing: want 404, got %d", missing.Code)
	}

	requests := []struct {
		method, path string
		body         any
	}{
		{http.MethodGet, path, nil},
		{http.MethodPatch, path, map[string]any{"title": "Mine now"}},
		{http.MethodDelete, path, nil},
		{http.MethodDelete, path + "?permanent=true", nil},
		{http.MethodPatch, path + "/complete", nil},
		{http.MethodPost, path + "/restore", nil},
	}
	for _, r := range requests {
		rec := app.do(r.method, r.path, bob, r.body)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s %s: want 404, got %d", r.method, r.path, rec.Code)
			continue
		}
		if rec.Body.String() != missing.Body.String() {
			t.Errorf("%s %s: body %s differs from missing-task body %s", r.method, r.path, rec.Body.String(), missing.Body.String())
		}
	}

	code, detail := getDetail(t, app, ann, task.ID.String())
	if code != http.StatusOK || detail.Title != "Private" || *detail.ActivitiesCount != 1 {
		t.Errorf("owner's task changed: code=%d %+v", code, detail)
	}
}

func TestMalformedTaskID(t *testing.T) {
	app := newTestApp(t)
	token := app.register("Ann", "ann@x.com")

	rec := app.do(http.MethodGet, "/api/tasks/not-a-uuid", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("want 404, got %d", rec.Code)
	}
	if got := errorBody(t, rec).Code; got != "TASK_NOT_FOUND" {
		t.Errorf("code = %q", got)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	app := newTestApp(t)
	token := app.register("Ann", "ann@x.com")

	tests := []struct {
		name  string
		body  map[string]any
		field string
	}{
		{"missing title", map[string]any{"description": "x"}, "title"},
		{"bad status", map[string]any{"title": "t", "status": "done"}, "status"},
		{"past due date", map[string]any{"title": "t", "due_date": "2026-03-10"}, "due_date"},
		{"malformed due date", map[string]any{"title": "t", "due_date": "11/03/2026"}, "due_date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(http.MethodPost, "/api/tasks", token, tt.body)
			if rec.Code != http.StatusUnprocessableEntity {
				t.Fatalf("want 422, got %d body=%s", rec.Code, rec.Body.String())
			}
			if resp := errorBody(t, rec); resp.Errors[tt.field] == "" {
				t.Errorf("expected an error for %q, got %v", tt.field, resp.Errors)
			}
		})
	}
}

func TestCreateClosedTask(t *testing.T) {
	app := newTestApp(t)
	token := app.register("Ann", "ann@x.com")

	task := app.createTask(token, map[string]any{"title": "Done already", "status": "CLOSED", "due_date": "2026-03-11"})
	if task.Status != "closed" || task.CompletedAt == nil {
		t.Errorf("want closed with completed_at, got %+v", task)
	}
	if task.DueDate == nil || *task.DueDate != "2026-03-11" {
		t.Errorf("due_date = %v", task.DueDate)
	}
}

// checks that absent keys are untouched and null clears
func TestUpdateTaskPartial(t *testing.T) {
	app := newTestApp(t)
	token := app.register("Ann", "ann@x.com")
	task := app.createTask(token, map[string]any{"title": "Draft", "description": "notes", "due_date": "2026-03-20"})
	path := "/api/tasks/" + task.ID.String()

	rec := app.do(http.MethodPatch, path, token, `{"description": null}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	_, detail := getDetail(t, app, token, task.ID.String())
	if detail.Description != nil || detail.Title != "Draft" || detail.DueDate == nil {
		t.Errorf("unexpected task after clearing description: %+v", detail)
	}
	if got := detail.Activities[len(detail.Activities)-1].Description; got != "Task updated: description modified" {
		t.Errorf("last activity = %q", got)
	}

	rec = app.do(http.MethodPut, path, token, map[string]any{"title": "Final", "status": "closed", "due_date": nil})
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	_, detail = getDetail(t, app, token, task.ID.String())
	if detail.Title != "Final" || detail.Status != "closed" || detail.CompletedAt == nil || detail.DueDate != nil {
		t.Errorf("unexpected task after update: %+v", detail)
	}
	if *detail.ActivitiesCount != 4 {
		t.Errorf("want 4 activities, got %d", *detail.ActivitiesCount)
	}
}

func TestUpdateTaskValidation(t *testing.T) {
	app := newTestApp(t)
	token := app.register("Ann", "ann@x.com")
	task := app.createTask(token, map[string]any{"title": "Draft"})
	path := "/api/tasks/" + task.ID.String()

	for _, body := range []string{`{"title": ""}`, `{"title": null}`, `{"status": "archived"}`, `{"due_date": "soon"}`} {
		rec := app.do(http.MethodPatch, path, token, body)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("%s: want 422, got %d", body, rec.Code)
		}
	}
}

func TestDeleteRestorePurge(t *testing.T) {
	app := newTestApp(t)
	token := app.register("Ann", "ann@x.com")
	task := app.createTask(token, map[string]any{"title": "Temp"})
	path := "/api/tasks/" + task.ID.String()

	rec := app.do(http.MethodPost, path+"/restore", token, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("restore live task: want 422, got %d", rec.Code)
	}
	if got := errorBody(t, rec).Code; got != "TASK_NOT_DELETED" {
		t.Errorf("code = %q", got)
	}

	if rec := app.do(http.MethodDelete, path, token, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: want 204, got %d", rec.Code)
	}
	if code, _ := getDetail(t, app, token, task.ID.String()); code != http.StatusNotFound {
		t.Fatalf("deleted task: want 404, got %d", code)
	}

	if rec := app.do(http.MethodPost, path+"/restore", token, nil); rec.Code != http.StatusOK {
		t.Fatalf("restore: want 200, got %d", rec.Code)
	}
	code, detail := getDetail(t, app, token, task.ID.String())
	if code != http.StatusOK || *detail.ActivitiesCount != 3 {
		t.Fatalf("restored task: code=%d %+v", code, detail)
	}

	if rec := app.do(http.MethodDelete, path+"?permanent=true", token, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("purge: want 204, got %d", rec.Code)
	}
	if rec := app.do(http.MethodPost, path+"/restore", token, nil); rec.Code != http.StatusNotFound {
		t.Errorf("restore purged task: want 404, got %d", rec.Code)
	}
}

func TestListTasks(t *testing.T) {
	app := newTestApp(t)
	ann := app.register("Ann", "ann@x.com")
	bob := app.register("Bob", "bob@x.com")

	app.createTask(ann, map[string]any{"title": "Write report", "due_date": "2026-03-11"})
	app.createTask(ann, map[string]any{"title": "Review", "description": "the REPORT draft", "due_date": "2026-03-15"})
	app.createTask(ann, map[string]any{"title": "Closed", "status": "closed"})
	app.createTask(bob, map[string]any{"title": "Bob's report"})

	tests := []struct {
		query string
		total int
	}{
		{"", 3},
		{"?status=open", 2},
		{"?status=closed", 1},
		{"?due_date=today", 1},
		{"?due_date=this_week", 2},
		{"?search=report", 2},
		{"?search=report&status=open&page=1", 2},
		{"?page=2", 3},
	}
	for _, tt := range tests {
		rec := app.do(http.MethodGet, "/api/tasks"+tt.query, ann, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("%q: want 200, got %d body=%s", tt.query, rec.Code, rec.Body.String())
			continue
		}
		var page taskPage
		decode(t, rec, &page)
		if page.Meta.Total != tt.total {
			t.Errorf("%q: total = %d, want %d", tt.query, page.Meta.Total, tt.total)
		}
		if page.Meta.PerPage != 15 || page.Meta.LastPage != 1 {
			t.Errorf("%q: unexpected meta %+v", tt.query, page.Meta)
		}
	}

	for _, q := range []string{"?status=done", "?due_date=someday", "?page=0", "?page=x"} {
		rec := app.do(http.MethodGet, "/api/tasks"+q, ann, nil)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("%q: want 422, got %d", q, rec.Code)
		}
	}
}

// checks that is_overdue follows the clock for open tasks only
func TestTaskOverdueFlag(t *testing.T) {
	app := newTestApp(t)
	token := app.register("Ann", "ann@x.com")
	task := app.createTask(token, map[string]any{"title": "Due today", "due_date": "2026-03-11"})
	if task.IsOverdue {
		t.Fatal("task due today is not overdue")
	}

	app.clock.Advance(24 * time.Hour)
	_, detail := getDetail(t, app, token, task.ID.String())
	if !detail.IsOverdue {
		t.Error("open task past its due date should be overdue")
	}

	rec := app.do(http.MethodGet, "/api/tasks?due_date=overdue", token, nil)
	var page taskPage
	decode(t, rec, &page)
	if page.Meta.Total != 1 {
		t.Errorf("overdue total = %d, want 1", page.Meta.Total)
	}
}

func TestCreateTaskRequiresJSON(t *testing.T) {
	app := newTestApp(t)
	token := app.register("Ann", "ann@x.com")

	rec := app.do(http.MethodPost, "/api/tasks", token, "[1, 2]")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("want 400, got %d", rec.Code)
	}
}

package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/chepyr/tasktracker/internal/apperr"
	"github.com/chepyr/tasktracker/internal/models"
	"github.com/chepyr/tasktracker/internal/tasks"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

func isJSONContentType(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return strings.HasPrefix(strings.ToLower(ct), "application/json")
}

// decodeJSON reads a JSON body of at most 1MB into dst. It writes the 400
// response itself and reports false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if !isJSONContentType(r) {
		sendError(w, "Content-Type must be application/json", http.StatusBadRequest)
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		sendError(w, "Invalid JSON body", http.StatusBadRequest)
		return false
	}
	return true
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r loginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email,
			validation.Required.Error("The email field is required."),
			is.Email.Error("The email field must be a valid email address."),
		),
		validation.Field(&r.Password, validation.Required.Error("The password field is required.")),
	)
}

type createTaskRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Status      string  `json:"status"`
	DueDate     *string `json:"due_date"`
}

// input converts the body into service input. Status case is folded here;
// the service checks the value itself.
func (r createTaskRequest) input() (tasks.CreateInput, error) {
	in := tasks.CreateInput{
		Title:       r.Title,
		Description: r.Description,
		Status:      models.TaskStatus(strings.ToLower(strings.TrimSpace(r.Status))),
	}
	if r.DueDate != nil {
		d, err := models.ParseDate(strings.TrimSpace(*r.DueDate))
		if err != nil {
			return tasks.CreateInput{}, apperr.Validation(map[string]string{
				"due_date": "The due date field must be a valid date.",
			})
		}
		in.DueDate = &d
	}
	return in, nil
}

// parseTaskPatch turns an update body into a patch. A key that is absent
// leaves the field alone; an explicit null clears description and due_date.
func parseTaskPatch(body map[string]json.RawMessage) (models.TaskPatch, error) {
	var (
		patch  models.TaskPatch
		fields = map[string]string{}
	)

	if raw, ok := body["title"]; ok {
		var s string
		if isNull(raw) || json.Unmarshal(raw, &s) != nil {
			fields["title"] = "The title field must be a string."
		} else {
			patch.Title = &s
		}
	}
	if raw, ok := body["description"]; ok {
		var s string
		switch {
		case isNull(raw):
			patch.ClearDescription = true
		case json.Unmarshal(raw, &s) != nil:
			fields["description"] = "The description field must be a string."
		default:
			patch.Description = &s
		}
	}
	if raw, ok := body["status"]; ok {
		var s string
		status, valid := models.TaskStatus(""), false
		if json.Unmarshal(raw, &s) == nil {
			status, valid = models.ParseTaskStatus(s)
		}
		if !valid {
			fields["status"] = "The selected status is invalid."
		} else {
			patch.Status = &status
		}
	}
	if raw, ok := body["due_date"]; ok {
		var s string
		switch {
		case isNull(raw):
			patch.ClearDueDate = true
		case json.Unmarshal(raw, &s) != nil:
			fields["due_date"] = "The due date field must be a valid date."
		default:
			d, err := models.ParseDate(s)
			if err != nil {
				fields["due_date"] = "The due date field must be a valid date."
			} else {
				patch.DueDate = &d
			}
		}
	}

	if len(fields) > 0 {
		return models.TaskPatch{}, apperr.Validation(fields)
	}
	return patch, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// parseListQuery reads the status, due_date, search and page filters.
func parseListQuery(q url.Values) (tasks.ListQuery, error) {
	var (
		out    tasks.ListQuery
		fields = map[string]string{}
	)
	if q.Has("status") {
		status, ok := models.ParseTaskStatus(q.Get("status"))
		if !ok {
			fields["status"] = "The selected status is invalid."
		}
		out.Status = status
	}
	if q.Has("due_date") {
		bucket := models.DueBucket(strings.ToLower(strings.TrimSpace(q.Get("due_date"))))
		if !bucket.Valid() {
			fields["due_date"] = "The selected due date is invalid."
		}
		out.DueBucket = bucket
	}
	out.Search = strings.TrimSpace(q.Get("search"))
	if q.Has("page") {
		page, err := strconv.Atoi(q.Get("page"))
		if err != nil || page < 1 {
			fields["page"] = "The page must be at least 1."
		}
		out.Page = page
	}
	if len(fields) > 0 {
		return tasks.ListQuery{}, apperr.Validation(fields)
	}
	return out, nil
}

// parseBool accepts the usual query spellings of a flag.
func parseBool(s string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(s))
	return err == nil && v
}

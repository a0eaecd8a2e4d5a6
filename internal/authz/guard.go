// Package authz decides whether an identity may act on a resource. Decisions
// are binary and never look at whether the resource exists; callers combine
// a denial with their own existence check to pick a response.
package authz

import (
	"github.com/chepyr/tasktracker/internal/models"
	"github.com/google/uuid"
)

type Action string

const (
	ActionViewAny Action = "viewAny"
	ActionView    Action = "view"
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionRestore Action = "restore"
)

type Kind string

const (
	KindTask     Kind = "task"
	KindActivity Kind = "task_activity"
)

// Resource is the minimum a rule needs to know about its target. A zero
// OwnerID means there is no target yet (create, viewAny).
type Resource struct {
	Kind    Kind
	OwnerID uuid.UUID
}

type Rule func(id models.Identity, res Resource) bool

func owner(id models.Identity, res Resource) bool {
	return res.OwnerID != uuid.Nil && id.ID == res.OwnerID
}

func authenticated(id models.Identity, _ Resource) bool {
	return id.Authenticated()
}

func deny(models.Identity, Resource) bool {
	return false
}

// Activities are reachable only through their task, so every direct action
// on them is denied.
var rules = map[Kind]map[Action]Rule{
	KindTask: {
		ActionViewAny: authenticated,
		ActionCreate:  authenticated,
		ActionView:    owner,
		ActionUpdate:  owner,
		ActionDelete:  owner,
		ActionRestore: owner,
	},
	KindActivity: {
		ActionViewAny: deny,
		ActionCreate:  deny,
		ActionView:    deny,
		ActionUpdate:  deny,
		ActionDelete:  deny,
		ActionRestore: deny,
	},
}

// CanAct reports whether id may perform action on res. Unknown kinds and
// actions are denied, as is every unauthenticated identity.
func CanAct(id models.Identity, res Resource, action Action) bool {
	if !id.Authenticated() {
		return false
	}
	rule, ok := rules[res.Kind][action]
	if !ok {
		return false
	}
	return rule(id, res)
}

// CanActOnTask is CanAct for a loaded task; a nil task is a create or
// listing check.
func CanActOnTask(id models.Identity, task *models.Task, action Action) bool {
	res := Resource{Kind: KindTask}
	if task != nil {
		res.OwnerID = task.OwnerID
	}
	return CanAct(id, res, action)
}

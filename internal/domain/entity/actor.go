package entity

import "github.com/garyjia/mutation-workflow/internal/domain/workflow"

// Actor is the authenticated caller of a workflow operation
type Actor struct {
	ID    string        `json:"id"`
	Role  workflow.Role `json:"role"`
	Name  string        `json:"name,omitempty"`
	Email string        `json:"email,omitempty"`
}

// Anonymous is used for unauthenticated public filing
var Anonymous = Actor{ID: "public", Role: workflow.RoleAgent}

// IsAnonymous reports whether the actor carries no verified identity
func (a Actor) IsAnonymous() bool {
	return a.ID == "" || a.ID == Anonymous.ID
}

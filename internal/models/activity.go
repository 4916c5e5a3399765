package models

import (
	"fmt"
	"time"
)

// ActivityAction is what a user did to a document.
type ActivityAction string

const (
	ActionViewed  ActivityAction = "viewed"
	ActionEdited  ActivityAction = "edited"
	ActionCreated ActivityAction = "created"
	ActionDeleted ActivityAction = "deleted"
)

// ActivityEvent is one append-only provenance entry.
type ActivityEvent struct {
	ID          string                 `json:"id" db:"id"`
	DocumentID  string                 `json:"document_id" db:"document_id"`
	WorkspaceID string                 `json:"workspace_id" db:"workspace_id"`
	UserID      string                 `json:"user_id" db:"user_id"`
	UserName    string                 `json:"user_name" db:"user_name"`
	Action      ActivityAction         `json:"action" db:"action"`
	Details     map[string]interface{} `json:"details,omitempty" db:"details"`
	CreatedAt   time.Time              `json:"created_at" db:"created_at"`
}

// Validate checks that the event can be stored.
func (e *ActivityEvent) Validate() error {
	if e.WorkspaceID == "" {
		return fmt.Errorf("activity event: workspace id is required")
	}
	if e.DocumentID == "" {
		return fmt.Errorf("activity event: document id is required")
	}
	switch e.Action {
	case ActionViewed, ActionEdited, ActionCreated, ActionDeleted:
		return nil
	default:
		return fmt.Errorf("activity event: unknown action %q", e.Action)
	}
}

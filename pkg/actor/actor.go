// Package actor identifies the user or system process behind a ledger write.
// The HTTP layer puts an Actor on the request context; services read it back
// to stamp created_by fields.
package actor

import (
	"context"
	"fmt"
	"strings"
)

// SystemID identifies writes made by the service itself
const SystemID = "00000000-0000-0000-0000-000000000000"

// Actor represents the entity performing an action in the system.
type Actor struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	RoleName  string `json:"role_name,omitempty"`
}

// FullName returns the actor's full name (first + last)
func (a *Actor) FullName() string {
	if a == nil {
		return ""
	}
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// String returns a string representation of the actor for logging
func (a *Actor) String() string {
	if a == nil {
		return "system"
	}
	return fmt.Sprintf("%s (%s)", a.FullName(), a.Email)
}

type contextKey string

const actorContextKey contextKey = "actor"

// FromContext retrieves the Actor from the context.
// Returns nil if no actor is present (e.g., scheduled jobs).
func FromContext(ctx context.Context) *Actor {
	if ctx == nil {
		return nil
	}
	a, ok := ctx.Value(actorContextKey).(*Actor)
	if !ok {
		return nil
	}
	return a
}

// WithActor returns a new context with the Actor attached.
func WithActor(ctx context.Context, a *Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorContextKey, a)
}

// FromContextOrSystem returns the request actor, falling back to SystemActor.
func FromContextOrSystem(ctx context.Context) *Actor {
	if a := FromContext(ctx); a != nil {
		return a
	}
	return SystemActor()
}

// SystemActor returns an Actor representing the system itself.
// Use this for background jobs, scheduled tasks, and system-initiated operations.
func SystemActor() *Actor {
	return &Actor{
		ID:        SystemID,
		FirstName: "System",
		Email:     "system@wms.local",
	}
}

// IsSystem returns true if the actor represents the system.
func (a *Actor) IsSystem() bool {
	if a == nil {
		return true
	}
	return a.ID == SystemID
}

package subscription

import "fmt"

// Status is the lifecycle state of a subscription.
type Status string

const (
	// StatusNew is the initial state on checkout initiation, before the
	// provider has confirmed anything.
	StatusNew Status = "new"
	// StatusPending means a provider checkout was created and the engine is
	// waiting for the payment outcome webhook.
	StatusPending Status = "pending"
	// StatusPendingUserVerification holds activation until a compliance or
	// identity check clears.
	StatusPendingUserVerification Status = "pending_user_verification"
	// StatusActive is the billable steady state.
	StatusActive Status = "active"
	// StatusPastDue means a recurring charge failed; recovery flips back to
	// active.
	StatusPastDue Status = "past_due"
	// StatusPaused mirrors a provider-side pause.
	StatusPaused Status = "paused"
	// StatusCanceled and StatusInactive are terminal for billing; the row
	// persists for history.
	StatusCanceled Status = "canceled"
	StatusInactive Status = "inactive"
)

// Valid reports whether the status is a known lifecycle state.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether the status allows no further billing transitions.
func (s Status) Terminal() bool {
	return s == StatusCanceled || s == StatusInactive
}

// transitions is the full edge set of the lifecycle state machine. Every
// status mutation goes through Subscription.transitionTo, so a state can
// only move along these edges.
var transitions = map[Status][]Status{
	StatusNew:                     {StatusPending, StatusActive, StatusInactive, StatusPendingUserVerification},
	StatusPending:                 {StatusActive, StatusInactive, StatusPendingUserVerification, StatusCanceled},
	StatusPendingUserVerification: {StatusActive, StatusInactive, StatusCanceled},
	StatusActive:                  {StatusPastDue, StatusPaused, StatusCanceled, StatusInactive},
	StatusPastDue:                 {StatusActive, StatusCanceled, StatusInactive},
	StatusPaused:                  {StatusActive, StatusCanceled, StatusInactive},
	StatusCanceled:                {},
	StatusInactive:                {},
}

// CanTransition reports whether the state machine permits moving from one
// status to another. A transition to the same status is permitted and treated
// as a no-op by the engine, which keeps webhook replays idempotent.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// transitionError builds the uniform rejection for an illegal edge.
func transitionError(from, to Status) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

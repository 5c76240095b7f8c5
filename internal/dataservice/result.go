package dataservice

import (
	"time"
)

// Code classifies the outcome of an operation.
type Code string

const (
	CodeOK        Code = "ok"
	CodeInvalid   Code = "invalid"
	CodeConflict  Code = "conflict"
	CodeForbidden Code = "forbidden"
	CodeNotFound  Code = "not_found"
	CodeTransient Code = "transient"
)

// User-visible messages shared with the HTTP layer and tests.
const (
	MsgAlreadyRegistered = "already registered"
	MsgEventFull         = "event is fully booked"
	MsgDuplicateScan     = "duplicate scan"
	MsgPaymentFailed     = "payment failed, try again"
	MsgInvalidQR         = "invalid QR code format"
	MsgWrongEvent        = "QR code is for a different event"
	MsgNotRegistered     = "not registered for this event"
	MsgAlreadyReviewed   = "you have already reviewed this stall"
	MsgSignInRequired    = "sign in required"
	MsgAdminOnly         = "admin access required"
	MsgRetry             = "something went wrong, please try again"
)

// Result is what every operation returns instead of an error. Err keeps
// the underlying cause for logging and is never shown to users.
type Result struct {
	OK      bool   `json:"ok"`
	Code    Code   `json:"code"`
	Message string `json:"message,omitempty"`
	// ID names the entity an operation created or acted on, when any.
	ID  string `json:"id,omitempty"`
	Err error  `json:"-"`
}

func success(id, msg string) Result {
	return Result{OK: true, Code: CodeOK, ID: id, Message: msg}
}

func failure(code Code, msg string, err error) Result {
	return Result{Code: code, Message: msg, Err: err}
}

func transient(err error) Result {
	return failure(CodeTransient, MsgRetry, err)
}

// ChangeKind identifies what changed in a service.
type ChangeKind string

const (
	ChangeEventsReloaded        ChangeKind = "events.reloaded"
	ChangeStallsReloaded        ChangeKind = "stalls.reloaded"
	ChangeRegistrationsReloaded ChangeKind = "registrations.reloaded"
	ChangeAttendanceReloaded    ChangeKind = "attendance.reloaded"
	ChangeSession               ChangeKind = "session.changed"

	ChangeRegistrationCreated   ChangeKind = "registration.created"
	ChangeRegistrationCancelled ChangeKind = "registration.cancelled"
	ChangeAttendanceMarked      ChangeKind = "attendance.marked"
	ChangeEventCreated          ChangeKind = "event.created"
	ChangeEventUpdated          ChangeKind = "event.updated"
	ChangeEventDeleted          ChangeKind = "event.deleted"
	ChangeReviewAdded           ChangeKind = "review.added"
	ChangeStallCreated          ChangeKind = "stall.created"
	ChangeStallUpdated          ChangeKind = "stall.updated"
	ChangeFeedbackSubmitted     ChangeKind = "feedback.submitted"
)

// Activity reports whether the change is a domain mutation worth
// publishing outside the process, as opposed to a cache refresh.
func (k ChangeKind) Activity() bool {
	switch k {
	case ChangeEventsReloaded, ChangeStallsReloaded, ChangeRegistrationsReloaded,
		ChangeAttendanceReloaded, ChangeSession:
		return false
	}
	return true
}

// Shared reports whether the change makes other sessions' caches stale.
func (k ChangeKind) Shared() bool {
	switch k {
	case ChangeRegistrationCreated, ChangeRegistrationCancelled, ChangeAttendanceMarked,
		ChangeEventCreated, ChangeEventUpdated, ChangeEventDeleted,
		ChangeReviewAdded, ChangeStallCreated, ChangeStallUpdated:
		return true
	}
	return false
}

// Change is delivered to subscribers after a reload or a mutation.
type Change struct {
	Kind    ChangeKind `json:"kind"`
	EventID string     `json:"event_id,omitempty"`
	StallID string     `json:"stall_id,omitempty"`
	UserID  string     `json:"user_id,omitempty"`
	ActorID string     `json:"actor_id,omitempty"`
	At      time.Time  `json:"at"`
}

package store

import (
	"context"

	"github.com/juju/errors"

	"campusevents/internal/model"
)

const (
	// ErrAlreadyRegistered is returned when an active registration exists
	// for the (event, user) pair.
	ErrAlreadyRegistered = errors.ConstError("already registered")

	// ErrEventFull is returned when every seat is held by an active registration.
	ErrEventFull = errors.ConstError("event is fully booked")

	// ErrDuplicateAttendance is returned when attendance was already marked
	// for the (event, user) pair.
	ErrDuplicateAttendance = errors.ConstError("attendance already marked")

	// ErrDuplicateReview is returned when the user already reviewed the stall.
	ErrDuplicateReview = errors.ConstError("stall already reviewed")

	// ErrDuplicateProfile is returned when the email or roll number is taken.
	ErrDuplicateProfile = errors.ConstError("profile already exists")

	// ErrTableMissing is returned when the backing table is not provisioned.
	ErrTableMissing = errors.ConstError("backing table missing")
)

// Store is the authoritative persistence boundary. Capacity and uniqueness
// invariants are enforced here, not by callers.
type Store interface {
	ListEvents(ctx context.Context) ([]model.Event, error)
	GetEvent(ctx context.Context, id string) (model.Event, error)
	CreateEvent(ctx context.Context, evt model.Event) (model.Event, error)
	UpdateEvent(ctx context.Context, id string, upd model.EventUpdate) error
	DeleteEvent(ctx context.Context, id string) error

	// ReserveSeat atomically checks for an active registration and for a free
	// seat, then inserts a pending registration.
	ReserveSeat(ctx context.Context, eventID, userID string) (model.Registration, error)
	SetPaymentStatus(ctx context.Context, registrationID string, status model.PaymentStatus, paymentID string) error
	FindRegistration(ctx context.Context, eventID, userID string) (*model.Registration, error)
	DeleteRegistration(ctx context.Context, eventID, userID string) error
	// ListUserRegistrations returns the events the user holds a completed
	// registration for.
	ListUserRegistrations(ctx context.Context, userID string) ([]model.Event, error)

	InsertAttendance(ctx context.Context, rec model.AttendanceRecord) (model.AttendanceRecord, error)
	FindAttendance(ctx context.Context, eventID, userID string) (*model.AttendanceRecord, error)
	ListUserAttendance(ctx context.Context, userID string) ([]string, error)
	ListEventAttendance(ctx context.Context, eventID string) ([]model.AttendanceRecord, error)

	ListFoodStalls(ctx context.Context, activeOnly bool) ([]model.FoodStall, error)
	CreateFoodStall(ctx context.Context, stall model.FoodStall) (model.FoodStall, error)
	UpdateFoodStall(ctx context.Context, stall model.FoodStall) error
	InsertReview(ctx context.Context, rev model.Review) (model.Review, error)
	FindReview(ctx context.Context, stallID, userID string) (*model.Review, error)

	CreateProfile(ctx context.Context, p model.Profile) (model.Profile, error)
	GetProfile(ctx context.Context, id string) (model.Profile, error)
	FindProfileByEmail(ctx context.Context, email string) (*model.Profile, error)
	FindProfileByRollNumber(ctx context.Context, rollNumber string) (*model.Profile, error)
	// FindProfileByIdentifier matches email, mobile number or roll number.
	FindProfileByIdentifier(ctx context.Context, identifier string) (*model.Profile, error)
	UpdateProfile(ctx context.Context, id string, upd model.ProfileUpdate) error

	InsertPayment(ctx context.Context, p model.Payment) (model.Payment, error)

	InsertFeedback(ctx context.Context, f model.Feedback) (model.Feedback, error)
	ListFeedback(ctx context.Context, limit int) ([]model.Feedback, error)

	Close() error
}

// IsConflict reports whether err is one of the uniqueness or capacity violations.
func IsConflict(err error) bool {
	for _, target := range []error{
		ErrAlreadyRegistered, ErrEventFull, ErrDuplicateAttendance,
		ErrDuplicateReview, ErrDuplicateProfile,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

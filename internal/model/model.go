package model

import (
	"encoding/json"
	"time"
)

// Role is the kind of account a profile belongs to.
type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleAdmin
}

// PaymentStatus tracks a registration through payment.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// Active reports whether a registration in this status holds a seat.
func (s PaymentStatus) Active() bool {
	return s == PaymentPending || s == PaymentCompleted
}

// Profile represents a student or admin account.
type Profile struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         Role      `json:"role"`
	RollNumber   string    `json:"roll_number,omitempty"`
	MobileNumber string    `json:"mobile_number,omitempty"`
	OTPEnabled   bool      `json:"otp_enabled"`
	AvatarURL    string    `json:"avatar_url,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// ProfileUpdate carries the mutable profile fields; nil means unchanged.
type ProfileUpdate struct {
	Name         *string `json:"name,omitempty"`
	MobileNumber *string `json:"mobile_number,omitempty"`
	OTPEnabled   *bool   `json:"otp_enabled,omitempty"`
	AvatarURL    *string `json:"avatar_url,omitempty"`
}

// Event is a bookable college event. RegisteredCount is derived from
// completed registrations and never stored.
type Event struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	Description     string  `json:"description"`
	Date            string  `json:"date"` // YYYY-MM-DD
	Time            string  `json:"time"` // HH:MM
	Location        string  `json:"location"`
	Department      string  `json:"department"`
	MaxSeats        int     `json:"max_seats"`
	RegisteredCount int     `json:"registered_count"`
	Price           float64 `json:"price"`
	ImageURL        string  `json:"image_url,omitempty"`
	CreatedBy       string  `json:"created_by,omitempty"`
}

// Full reports whether no seat is left.
func (e Event) Full() bool {
	return e.RegisteredCount >= e.MaxSeats
}

// StartsAt parses the event date and time in loc. A missing time means midnight.
func (e Event) StartsAt(loc *time.Location) (time.Time, error) {
	if e.Time == "" {
		return time.ParseInLocation("2006-01-02", e.Date, loc)
	}
	return time.ParseInLocation("2006-01-02 15:04", e.Date+" "+e.Time, loc)
}

// EventUpdate is a partial event update; nil fields are left alone.
type EventUpdate struct {
	Title       *string  `json:"title,omitempty"`
	Description *string  `json:"description,omitempty"`
	Date        *string  `json:"date,omitempty"`
	Time        *string  `json:"time,omitempty"`
	Location    *string  `json:"location,omitempty"`
	Department  *string  `json:"department,omitempty"`
	MaxSeats    *int     `json:"max_seats,omitempty"`
	Price       *float64 `json:"price,omitempty"`
	ImageURL    *string  `json:"image_url,omitempty"`
}

// Apply copies the set fields of u onto e.
func (u EventUpdate) Apply(e *Event) {
	if u.Title != nil {
		e.Title = *u.Title
	}
	if u.Description != nil {
		e.Description = *u.Description
	}
	if u.Date != nil {
		e.Date = *u.Date
	}
	if u.Time != nil {
		e.Time = *u.Time
	}
	if u.Location != nil {
		e.Location = *u.Location
	}
	if u.Department != nil {
		e.Department = *u.Department
	}
	if u.MaxSeats != nil {
		e.MaxSeats = *u.MaxSeats
	}
	if u.Price != nil {
		e.Price = *u.Price
	}
	if u.ImageURL != nil {
		e.ImageURL = *u.ImageURL
	}
}

// Registration links a profile to an event.
type Registration struct {
	ID            string        `json:"id"`
	EventID       string        `json:"event_id"`
	UserID        string        `json:"user_id"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	PaymentID     string        `json:"payment_id,omitempty"`
	RegisteredAt  time.Time     `json:"registered_at"`
}

// AttendanceRecord proves a user was present at an event.
type AttendanceRecord struct {
	ID       string          `json:"id"`
	EventID  string          `json:"event_id"`
	UserID   string          `json:"user_id"`
	MarkedBy string          `json:"marked_by,omitempty"`
	QRData   json.RawMessage `json:"qr_data,omitempty"`
	MarkedAt time.Time       `json:"marked_at"`

	// Joined from profiles when listing an event's attendance.
	Name       string `json:"name,omitempty"`
	RollNumber string `json:"roll_number,omitempty"`
	Email      string `json:"email,omitempty"`
}

// MenuItem is one line of a stall menu.
type MenuItem struct {
	Item  string  `json:"item"`
	Price float64 `json:"price"`
}

// FoodStall is a vendor with a menu. Rating and ReviewCount are derived
// from Reviews when the stall is loaded.
type FoodStall struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	ImageURL    string            `json:"image_url,omitempty"`
	Menu        []MenuItem        `json:"menu"`
	Location    string            `json:"location,omitempty"`
	ContactInfo map[string]string `json:"contact_info,omitempty"`
	IsActive    bool              `json:"is_active"`
	Rating      float64           `json:"rating"`
	ReviewCount int               `json:"review_count"`
	Reviews     []Review          `json:"reviews"`
}

// Review is a single stall rating.
type Review struct {
	ID        string    `json:"id"`
	StallID   string    `json:"stall_id"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name,omitempty"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Payment is a recorded (simulated) charge for an event registration.
type Payment struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	EventID       string        `json:"event_id"`
	Amount        float64       `json:"amount"`
	Currency      string        `json:"currency"`
	Method        string        `json:"payment_method"`
	TransactionID string        `json:"transaction_id"`
	Status        PaymentStatus `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
}

// FeedbackType classifies free-form feedback.
type FeedbackType string

const (
	FeedbackGeneral    FeedbackType = "general"
	FeedbackEvent      FeedbackType = "event"
	FeedbackFood       FeedbackType = "food"
	FeedbackFacilities FeedbackType = "facilities"
)

// Feedback is a message submitted by a student, optionally anonymous.
type Feedback struct {
	ID          string       `json:"id"`
	UserID      string       `json:"user_id,omitempty"`
	Type        FeedbackType `json:"type"`
	Subject     string       `json:"subject"`
	Message     string       `json:"message"`
	Rating      int          `json:"rating,omitempty"`
	IsAnonymous bool         `json:"is_anonymous"`
	Status      string       `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Package qr encodes and decodes the text carried by attendance QR codes.
package qr

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/juju/errors"
)

// ErrMalformed is returned for any payload that cannot identify an attendee.
const ErrMalformed = errors.ConstError("invalid QR code format")

// Payload is what a student's ticket QR code contains.
type Payload struct {
	EventID    string `json:"eventId,omitempty"`
	UserID     string `json:"userId,omitempty"`
	RollNumber string `json:"rollNumber,omitempty"`
	Name       string `json:"name,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"`
}

// NewPayload builds a ticket payload stamped with now.
func NewPayload(eventID, userID, rollNumber, name string, now time.Time) Payload {
	return Payload{
		EventID:    eventID,
		UserID:     userID,
		RollNumber: rollNumber,
		Name:       name,
		Timestamp:  now.UTC().Format(time.RFC3339),
	}
}

// Encode returns the JSON text to render as a QR code.
func (p Payload) Encode() (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", errors.Trace(err)
	}
	return string(b), nil
}

// Parse decodes scanned text. The payload must name the attendee by user id
// or roll number.
func Parse(raw string) (Payload, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw[0] != '{' {
		return Payload{}, ErrMalformed
	}
	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Payload{}, ErrMalformed
	}
	p.UserID = strings.TrimSpace(p.UserID)
	p.RollNumber = strings.TrimSpace(p.RollNumber)
	p.EventID = strings.TrimSpace(p.EventID)
	if p.UserID == "" && p.RollNumber == "" {
		return Payload{}, ErrMalformed
	}
	return p, nil
}

// MatchesEvent reports whether the payload was issued for eventID. A payload
// without an event id matches nothing.
func (p Payload) MatchesEvent(eventID string) bool {
	return p.EventID != "" && p.EventID == eventID
}

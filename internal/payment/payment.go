// Package payment charges students for paid event registrations.
package payment

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
)

var logger = loggo.GetLogger("campus.payment")

// ErrDeclined is returned when the gateway refuses a charge.
const ErrDeclined = errors.ConstError("payment declined")

// Supported payment methods.
const (
	MethodUPI        = "upi"
	MethodCard       = "card"
	MethodNetBanking = "netbanking"
	MethodSpot       = "spot"
)

// ValidMethod reports whether m is a supported payment method.
func ValidMethod(m string) bool {
	switch m {
	case MethodUPI, MethodCard, MethodNetBanking, MethodSpot:
		return true
	}
	return false
}

// ChargeRequest describes one charge.
type ChargeRequest struct {
	UserID   string
	EventID  string
	Amount   float64
	Currency string
	Method   string
}

// Validate checks the request before it reaches a gateway.
func (r ChargeRequest) Validate() error {
	if r.UserID == "" || r.EventID == "" {
		return errors.NotValidf("charge without user or event")
	}
	if r.Amount <= 0 {
		return errors.NotValidf("amount %v", r.Amount)
	}
	if !ValidMethod(r.Method) {
		return errors.NotValidf("payment method %q", r.Method)
	}
	return nil
}

// Receipt is returned for a successful charge.
type Receipt struct {
	TransactionID string
	Amount        float64
	Currency      string
	Method        string
}

// Gateway charges a payment method.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (Receipt, error)
}

// Simulated approves charges except for a configurable share of declines.
type Simulated struct {
	clock       clock.Clock
	declineRate float64

	mu   sync.Mutex
	roll func() float64
}

// NewSimulated returns a gateway that declines roughly declineRate of charges.
func NewSimulated(clk clock.Clock, declineRate float64) *Simulated {
	if clk == nil {
		clk = clock.WallClock
	}
	if declineRate < 0 {
		declineRate = 0
	}
	return &Simulated{clock: clk, declineRate: declineRate, roll: rand.Float64}
}

// WithRoll replaces the random source; used to make declines deterministic.
func (g *Simulated) WithRoll(roll func() float64) *Simulated {
	g.mu.Lock()
	g.roll = roll
	g.mu.Unlock()
	return g
}

// Charge approves or declines req.
func (g *Simulated) Charge(ctx context.Context, req ChargeRequest) (Receipt, error) {
	if err := req.Validate(); err != nil {
		return Receipt{}, errors.Trace(err)
	}
	if err := ctx.Err(); err != nil {
		return Receipt{}, errors.Trace(err)
	}
	if req.Currency == "" {
		req.Currency = "INR"
	}
	g.mu.Lock()
	declined := g.roll() < g.declineRate
	g.mu.Unlock()
	if declined {
		logger.Infof("declined %s charge of %.2f for event %s", req.Method, req.Amount, req.EventID)
		return Receipt{}, ErrDeclined
	}
	return Receipt{
		TransactionID: fmt.Sprintf("TXN%d", g.clock.Now().UnixMilli()),
		Amount:        req.Amount,
		Currency:      req.Currency,
		Method:        req.Method,
	}, nil
}

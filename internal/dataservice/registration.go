package dataservice

import (
	"context"

	"github.com/juju/errors"

	"campusevents/internal/model"
	"campusevents/internal/payment"
	"campusevents/internal/qr"
	"campusevents/internal/store"
)

// RegisterForEvent reserves a seat for userID and, for paid events, charges
// method (the default method when empty). The store enforces uniqueness and
// capacity atomically; the cached checks only avoid a pointless round trip.
func (s *Service) RegisterForEvent(ctx context.Context, eventID, userID, method string) Result {
	return s.run("register", func() Result {
		if eventID == "" || userID == "" {
			return failure(CodeInvalid, "event and user are required", errors.NotValidf("empty event or user"))
		}
		u, res := s.requireSelfOrAdmin(userID)
		if !res.OK {
			return res
		}

		evt, cached := s.Event(eventID)
		if cached {
			if u.ID == userID && s.IsRegistered(eventID) {
				return failure(CodeConflict, MsgAlreadyRegistered, store.ErrAlreadyRegistered)
			}
			if evt.Full() {
				return failure(CodeConflict, MsgEventFull, store.ErrEventFull)
			}
		} else {
			var err error
			if evt, err = s.store.GetEvent(ctx, eventID); errors.Is(err, errors.NotFound) {
				return failure(CodeNotFound, "event not found", err)
			} else if err != nil {
				return transient(err)
			}
		}
		if method == "" {
			method = s.opts.DefaultPaymentMethod
		}
		if evt.Price > 0 && !payment.ValidMethod(method) {
			return failure(CodeInvalid, "unsupported payment method", errors.NotValidf("payment method %q", method))
		}

		reg, err := s.store.ReserveSeat(ctx, eventID, userID)
		switch {
		case errors.Is(err, store.ErrAlreadyRegistered):
			return s.afterRegistration(ctx, failure(CodeConflict, MsgAlreadyRegistered, err))
		case errors.Is(err, store.ErrEventFull):
			return s.afterRegistration(ctx, failure(CodeConflict, MsgEventFull, err))
		case errors.Is(err, errors.NotFound):
			return s.afterRegistration(ctx, failure(CodeNotFound, "event not found", err))
		case err != nil:
			return transient(err)
		}

		res = s.settle(ctx, evt, reg, method)
		if !res.OK {
			return s.afterRegistration(ctx, res)
		}
		s.afterRegistration(ctx, res)
		s.notify(Change{Kind: ChangeRegistrationCreated, EventID: eventID, UserID: userID})
		return res
	})
}

// settle moves a pending registration to completed, charging paid events.
func (s *Service) settle(ctx context.Context, evt model.Event, reg model.Registration, method string) Result {
	if evt.Price <= 0 {
		if err := s.store.SetPaymentStatus(ctx, reg.ID, model.PaymentCompleted, ""); err != nil {
			s.release(ctx, reg)
			return transient(err)
		}
		return success(reg.ID, "registered")
	}

	receipt, err := s.gateway.Charge(ctx, payment.ChargeRequest{
		UserID:   reg.UserID,
		EventID:  evt.ID,
		Amount:   evt.Price,
		Currency: s.opts.Currency,
		Method:   method,
	})
	if err != nil {
		s.release(ctx, reg)
		if errors.Is(err, errors.NotValid) {
			return failure(CodeInvalid, "invalid payment details", err)
		}
		return failure(CodeTransient, MsgPaymentFailed, err)
	}

	pay, err := s.store.InsertPayment(ctx, model.Payment{
		UserID:        reg.UserID,
		EventID:       evt.ID,
		Amount:        receipt.Amount,
		Currency:      receipt.Currency,
		Method:        receipt.Method,
		TransactionID: receipt.TransactionID,
		Status:        model.PaymentCompleted,
	})
	paymentID := receipt.TransactionID
	if err != nil {
		logger.Warningf("record payment %s for registration %s: %v", receipt.TransactionID, reg.ID, err)
	} else {
		paymentID = pay.ID
	}
	if err := s.complete(ctx, reg, paymentID); err != nil {
		// The charge went through, so the seat stays held for reconciliation.
		logger.Errorf("registration %s left pending after charge %s (%.2f %s): %v",
			reg.ID, receipt.TransactionID, receipt.Amount, receipt.Currency, err)
		return transient(errors.Annotatef(err, "complete registration %s after payment %s", reg.ID, receipt.TransactionID))
	}
	return success(reg.ID, "registered")
}

// complete marks a charged registration completed, trying twice.
func (s *Service) complete(ctx context.Context, reg model.Registration, paymentID string) error {
	err := s.store.SetPaymentStatus(ctx, reg.ID, model.PaymentCompleted, paymentID)
	if err == nil || ctx.Err() != nil {
		return errors.Trace(err)
	}
	logger.Warningf("complete registration %s: %v; retrying", reg.ID, err)
	return errors.Trace(s.store.SetPaymentStatus(ctx, reg.ID, model.PaymentCompleted, paymentID))
}

// release marks a pending registration failed so its seat is freed.
func (s *Service) release(ctx context.Context, reg model.Registration) {
	if err := s.store.SetPaymentStatus(ctx, reg.ID, model.PaymentFailed, ""); err != nil {
		logger.Errorf("release seat for registration %s: %v", reg.ID, err)
	}
}

// afterRegistration reloads the data a registration change affects and
// returns res unchanged.
func (s *Service) afterRegistration(ctx context.Context, res Result) Result {
	s.reloadAfterWrite(ctx, s.reloadEvents, s.reloadRegistrations)
	return res
}

// UnregisterFromEvent deletes userID's registration for eventID.
func (s *Service) UnregisterFromEvent(ctx context.Context, eventID, userID string) Result {
	return s.run("unregister", func() Result {
		if eventID == "" || userID == "" {
			return failure(CodeInvalid, "event and user are required", errors.NotValidf("empty event or user"))
		}
		if _, res := s.requireSelfOrAdmin(userID); !res.OK {
			return res
		}
		err := s.store.DeleteRegistration(ctx, eventID, userID)
		switch {
		case errors.Is(err, errors.NotFound):
			return s.afterRegistration(ctx, failure(CodeNotFound, MsgNotRegistered, err))
		case err != nil:
			return s.afterRegistration(ctx, transient(err))
		}
		s.afterRegistration(ctx, Result{})
		s.notify(Change{Kind: ChangeRegistrationCancelled, EventID: eventID, UserID: userID})
		return success(eventID, "registration cancelled")
	})
}

// TicketPayload returns the QR text the session user presents at eventID.
func (s *Service) TicketPayload(eventID string) (string, Result) {
	var text string
	res := s.run("ticket", func() Result {
		u, res := s.requireUser()
		if !res.OK {
			return res
		}
		if !s.IsRegistered(eventID) {
			return failure(CodeConflict, MsgNotRegistered, errors.NotFoundf("registration for %q", eventID))
		}
		var err error
		text, err = qr.NewPayload(eventID, u.ID, u.RollNumber, u.Name, s.clock.Now()).Encode()
		if err != nil {
			return transient(err)
		}
		return success(eventID, "")
	})
	return text, res
}

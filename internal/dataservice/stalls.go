package dataservice

import (
	"context"
	"strings"

	"github.com/juju/errors"

	"campusevents/internal/model"
	"campusevents/internal/store"
)

// AddFoodStallReview adds the session user's review of stallID and reloads
// stalls so the aggregate rating is recomputed.
func (s *Service) AddFoodStallReview(ctx context.Context, stallID string, review model.Review) Result {
	return s.run("add_review", func() Result {
		u, res := s.requireUser()
		if !res.OK {
			return res
		}
		if review.UserID == "" {
			review.UserID = u.ID
		}
		if review.UserID != u.ID && !u.IsAdmin() {
			return failure(CodeForbidden, "cannot review for another user", errors.Forbiddenf("user %q reviewing as %q", u.ID, review.UserID))
		}
		if review.Rating < 1 || review.Rating > 5 {
			return failure(CodeInvalid, "rating must be between 1 and 5", errors.NotValidf("rating %d", review.Rating))
		}
		review.StallID = stallID
		review.Comment = strings.TrimSpace(review.Comment)

		existing, err := s.store.FindReview(ctx, stallID, review.UserID)
		if err != nil {
			return transient(err)
		}
		if existing != nil {
			return failure(CodeConflict, MsgAlreadyReviewed, store.ErrDuplicateReview)
		}
		created, err := s.store.InsertReview(ctx, review)
		switch {
		case errors.Is(err, store.ErrDuplicateReview):
			return failure(CodeConflict, MsgAlreadyReviewed, err)
		case errors.Is(err, errors.NotFound):
			return failure(CodeNotFound, "food stall not found", err)
		case err != nil:
			return transient(err)
		}
		s.reloadAfterWrite(ctx, s.reloadStalls)
		s.notify(Change{Kind: ChangeReviewAdded, StallID: stallID, UserID: review.UserID})
		return success(created.ID, "review added")
	})
}

func validateStall(st model.FoodStall) error {
	if strings.TrimSpace(st.Name) == "" {
		return errors.NotValidf("empty stall name")
	}
	for _, item := range st.Menu {
		if strings.TrimSpace(item.Item) == "" || item.Price < 0 {
			return errors.NotValidf("menu item %q", item.Item)
		}
	}
	return nil
}

// AddFoodStall creates a stall. Admin only.
func (s *Service) AddFoodStall(ctx context.Context, st model.FoodStall) Result {
	return s.run("add_stall", func() Result {
		if _, res := s.requireAdmin(); !res.OK {
			return res
		}
		if err := validateStall(st); err != nil {
			return failure(CodeInvalid, err.Error(), err)
		}
		created, err := s.store.CreateFoodStall(ctx, st)
		if err != nil {
			return transient(err)
		}
		s.reloadAfterWrite(ctx, s.reloadStalls)
		s.notify(Change{Kind: ChangeStallCreated, StallID: created.ID})
		return success(created.ID, "food stall created")
	})
}

// UpdateFoodStall replaces a stall's details. Admin only.
func (s *Service) UpdateFoodStall(ctx context.Context, st model.FoodStall) Result {
	return s.run("update_stall", func() Result {
		if _, res := s.requireAdmin(); !res.OK {
			return res
		}
		if st.ID == "" {
			return failure(CodeInvalid, "stall id required", errors.NotValidf("empty stall id"))
		}
		if err := validateStall(st); err != nil {
			return failure(CodeInvalid, err.Error(), err)
		}
		err := s.store.UpdateFoodStall(ctx, st)
		if errors.Is(err, errors.NotFound) {
			return failure(CodeNotFound, "food stall not found", err)
		} else if err != nil {
			return transient(err)
		}
		s.reloadAfterWrite(ctx, s.reloadStalls)
		s.notify(Change{Kind: ChangeStallUpdated, StallID: st.ID})
		return success(st.ID, "food stall updated")
	})
}

// SubmitFeedback stores feedback from the session user. Anonymous feedback
// is stored without a user id.
func (s *Service) SubmitFeedback(ctx context.Context, f model.Feedback) Result {
	return s.run("submit_feedback", func() Result {
		u, res := s.requireUser()
		if !res.OK {
			return res
		}
		switch f.Type {
		case model.FeedbackGeneral, model.FeedbackEvent, model.FeedbackFood, model.FeedbackFacilities:
		case "":
			f.Type = model.FeedbackGeneral
		default:
			return failure(CodeInvalid, "unknown feedback type", errors.NotValidf("feedback type %q", f.Type))
		}
		f.Subject, f.Message = strings.TrimSpace(f.Subject), strings.TrimSpace(f.Message)
		if f.Subject == "" || f.Message == "" {
			return failure(CodeInvalid, "subject and message are required", errors.NotValidf("empty feedback"))
		}
		if f.Rating != 0 && (f.Rating < 1 || f.Rating > 5) {
			return failure(CodeInvalid, "rating must be between 1 and 5", errors.NotValidf("rating %d", f.Rating))
		}
		f.UserID = u.ID
		if f.IsAnonymous {
			f.UserID = ""
		}
		f.Status = "pending"
		created, err := s.store.InsertFeedback(ctx, f)
		if err != nil {
			return transient(err)
		}
		ch := Change{Kind: ChangeFeedbackSubmitted, UserID: f.UserID}
		if f.IsAnonymous {
			ch.ActorID = "anonymous"
		}
		s.notify(ch)
		return success(created.ID, "feedback submitted")
	})
}

// Feedback lists recent feedback. Admin only.
func (s *Service) Feedback(ctx context.Context, limit int) ([]model.Feedback, Result) {
	var list []model.Feedback
	res := s.run("list_feedback", func() Result {
		if _, res := s.requireAdmin(); !res.OK {
			return res
		}
		var err error
		if list, err = s.store.ListFeedback(ctx, limit); err != nil {
			return transient(err)
		}
		return success("", "")
	})
	return list, res
}

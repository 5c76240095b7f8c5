package dataservice_test

import (
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"campusevents/internal/dataservice"
	"campusevents/internal/model"
)

func (s *serviceSuite) stall(c *gc.C, admin *dataservice.Service) string {
	res := admin.AddFoodStall(s.ctx, model.FoodStall{
		Name:     "Campus Cafe",
		Menu:     []model.MenuItem{{Item: "Coffee", Price: 25}},
		IsActive: true,
	})
	c.Assert(res.OK, jc.IsTrue, gc.Commentf("%+v", res))
	return res.ID
}

func stallByID(c *gc.C, svc *dataservice.Service, id string) model.FoodStall {
	for _, st := range svc.FoodStalls() {
		if st.ID == id {
			return st
		}
	}
	c.Fatalf("stall %q not cached", id)
	return model.FoodStall{}
}

func (s *serviceSuite) TestReviewRecomputesRating(c *gc.C) {
	stallID := s.stall(c, s.serviceFor(c, s.admin))
	alice := s.serviceFor(c, s.alice)
	bob := s.serviceFor(c, s.bob)
	carol := s.serviceFor(c, s.carol)

	c.Assert(alice.AddFoodStallReview(s.ctx, stallID, model.Review{Rating: 4}).OK, jc.IsTrue)
	st := stallByID(c, alice, stallID)
	c.Assert(st.Rating, gc.Equals, 4.0)
	c.Assert(st.ReviewCount, gc.Equals, 1)

	c.Assert(bob.AddFoodStallReview(s.ctx, stallID, model.Review{Rating: 5, Comment: " great "}).OK, jc.IsTrue)
	st = stallByID(c, bob, stallID)
	c.Assert(st.Rating, gc.Equals, 4.5)
	c.Assert(st.ReviewCount, gc.Equals, 2)

	c.Assert(carol.AddFoodStallReview(s.ctx, stallID, model.Review{Rating: 5}).OK, jc.IsTrue)
	st = stallByID(c, carol, stallID)
	c.Assert(st.Rating, gc.Equals, 4.7)
	c.Assert(st.ReviewCount, gc.Equals, 3)
	var comments []string
	for _, r := range st.Reviews {
		if r.Comment != "" {
			comments = append(comments, r.Comment)
		}
	}
	c.Assert(comments, jc.DeepEquals, []string{"great"})
}

func (s *serviceSuite) TestDuplicateReviewRejected(c *gc.C) {
	stallID := s.stall(c, s.serviceFor(c, s.admin))
	alice := s.serviceFor(c, s.alice)
	c.Assert(alice.AddFoodStallReview(s.ctx, stallID, model.Review{Rating: 3}).OK, jc.IsTrue)

	res := alice.AddFoodStallReview(s.ctx, stallID, model.Review{Rating: 5})
	c.Assert(res.Code, gc.Equals, dataservice.CodeConflict)
	c.Assert(res.Message, gc.Equals, dataservice.MsgAlreadyReviewed)
	st := stallByID(c, alice, stallID)
	c.Assert(st.ReviewCount, gc.Equals, 1)
	c.Assert(st.Rating, gc.Equals, 3.0)
}

func (s *serviceSuite) TestReviewValidation(c *gc.C) {
	stallID := s.stall(c, s.serviceFor(c, s.admin))
	alice := s.serviceFor(c, s.alice)
	for _, rating := range []int{0, 6, -1} {
		res := alice.AddFoodStallReview(s.ctx, stallID, model.Review{Rating: rating})
		c.Assert(res.Code, gc.Equals, dataservice.CodeInvalid)
	}
	res := alice.AddFoodStallReview(s.ctx, stallID, model.Review{UserID: s.bob.ID, Rating: 4})
	c.Assert(res.Code, gc.Equals, dataservice.CodeForbidden)
	res = alice.AddFoodStallReview(s.ctx, "missing", model.Review{Rating: 4})
	c.Assert(res.Code, gc.Equals, dataservice.CodeNotFound)
}

func (s *serviceSuite) TestUpdateFoodStall(c *gc.C) {
	admin := s.serviceFor(c, s.admin)
	stallID := s.stall(c, admin)

	res := admin.UpdateFoodStall(s.ctx, model.FoodStall{ID: stallID, Name: "Campus Cafe", Location: "Block A"})
	c.Assert(res.OK, jc.IsTrue)
	c.Assert(stallByID(c, admin, stallID).Location, gc.Equals, "Block A")

	// Inactive stalls drop out of the cached list.
	res = admin.UpdateFoodStall(s.ctx, model.FoodStall{ID: stallID, Name: "Campus Cafe", IsActive: false})
	c.Assert(res.OK, jc.IsTrue)
	c.Assert(admin.FoodStalls(), gc.HasLen, 0)

	res = admin.AddFoodStall(s.ctx, model.FoodStall{Name: "Bad", Menu: []model.MenuItem{{Item: "Tea", Price: -5}}})
	c.Assert(res.Code, gc.Equals, dataservice.CodeInvalid)
	res = admin.UpdateFoodStall(s.ctx, model.FoodStall{ID: "missing", Name: "X"})
	c.Assert(res.Code, gc.Equals, dataservice.CodeNotFound)
}

type ratingSuite struct{}

var _ = gc.Suite(&ratingSuite{})

func (*ratingSuite) TestRating(c *gc.C) {
	for _, t := range []struct {
		ratings []int
		want    float64
	}{
		{nil, 0},
		{[]int{5}, 5},
		{[]int{4, 5}, 4.5},
		{[]int{4, 5, 5}, 4.7},
		{[]int{1, 2, 2}, 1.7},
		{[]int{3, 3, 4}, 3.3},
	} {
		var reviews []model.Review
		for _, r := range t.ratings {
			reviews = append(reviews, model.Review{Rating: r})
		}
		got, n := dataservice.Rating(reviews)
		c.Check(got, gc.Equals, t.want, gc.Commentf("%v", t.ratings))
		c.Check(n, gc.Equals, len(t.ratings))
	}
}

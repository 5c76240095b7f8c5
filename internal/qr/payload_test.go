package qr_test

import (
	"testing"
	"time"

	"github.com/juju/errors"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"campusevents/internal/qr"
)

func TestPackage(t *testing.T) {
	gc.TestingT(t)
}

type payloadSuite struct{}

var _ = gc.Suite(&payloadSuite{})

func (s *payloadSuite) TestRoundTrip(c *gc.C) {
	now := time.Date(2024, 12, 15, 9, 30, 0, 0, time.UTC)
	text, err := qr.NewPayload("e1", "u1", "CS01", "Asha", now).Encode()
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(text, gc.Equals, `{"eventId":"e1","userId":"u1","rollNumber":"CS01","name":"Asha","timestamp":"2024-12-15T09:30:00Z"}`)

	p, err := qr.Parse(text)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(p.UserID, gc.Equals, "u1")
	c.Assert(p.MatchesEvent("e1"), jc.IsTrue)
	c.Assert(p.MatchesEvent("e2"), jc.IsFalse)
}

func (s *payloadSuite) TestRollNumberOnly(c *gc.C) {
	p, err := qr.Parse(` {"rollNumber":" CS01 "} `)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(p.RollNumber, gc.Equals, "CS01")
	c.Assert(p.MatchesEvent("anything"), jc.IsFalse)
	c.Assert(p.MatchesEvent(""), jc.IsFalse)
}

func (s *payloadSuite) TestMalformed(c *gc.C) {
	for _, raw := range []string{
		"",
		"not json",
		"{broken",
		`{"eventId":"e1"}`,
		`{"userId": 42}`,
		`[1,2,3]`,
	} {
		_, err := qr.Parse(raw)
		c.Assert(errors.Is(err, qr.ErrMalformed), jc.IsTrue, gc.Commentf("%q", raw))
	}
}

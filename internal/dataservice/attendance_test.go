package dataservice_test

import (
	"strings"

	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"campusevents/internal/dataservice"
)

func (s *serviceSuite) TestMarkAttendanceOnce(c *gc.C) {
	admin := s.serviceFor(c, s.admin)
	alice := s.serviceFor(c, s.alice)
	c.Assert(alice.RegisterForEvent(s.ctx, "big", s.alice.ID, "").OK, jc.IsTrue)

	res := admin.MarkAttendance(s.ctx, "big", s.alice.ID, `{"userId":"`+s.alice.ID+`"}`)
	c.Assert(res.OK, jc.IsTrue, gc.Commentf("%+v", res))

	res = admin.MarkAttendance(s.ctx, "big", s.alice.ID, "")
	c.Assert(res.OK, jc.IsFalse)
	c.Assert(res.Code, gc.Equals, dataservice.CodeConflict)
	c.Assert(res.Message, gc.Equals, dataservice.MsgDuplicateScan)

	records, res := admin.EventAttendance(s.ctx, "big")
	c.Assert(res.OK, jc.IsTrue)
	c.Assert(records, gc.HasLen, 1)
	c.Assert(records[0].MarkedBy, gc.Equals, s.admin.ID)
	c.Assert(records[0].Name, gc.Equals, "Alice")
	c.Assert(string(records[0].QRData), gc.Equals, `{"userId":"`+s.alice.ID+`"}`)

	c.Assert(alice.HasAttended("big"), jc.IsFalse)
	c.Assert(alice.RefreshData(s.ctx).OK, jc.IsTrue)
	c.Assert(alice.UserAttendance(), jc.DeepEquals, []string{"big"})
}

func (s *serviceSuite) TestMarkAttendanceAdminOnly(c *gc.C) {
	alice := s.serviceFor(c, s.alice)
	c.Assert(alice.RegisterForEvent(s.ctx, "big", s.alice.ID, "").OK, jc.IsTrue)
	res := alice.MarkAttendance(s.ctx, "big", s.alice.ID, "")
	c.Assert(res.Code, gc.Equals, dataservice.CodeForbidden)
	_, res = alice.EventAttendance(s.ctx, "big")
	c.Assert(res.Code, gc.Equals, dataservice.CodeForbidden)
}

func (s *serviceSuite) TestMarkAttendanceRequiresRegistration(c *gc.C) {
	admin := s.serviceFor(c, s.admin)
	res := admin.MarkAttendance(s.ctx, "big", s.bob.ID, "")
	c.Assert(res.Code, gc.Equals, dataservice.CodeConflict)
	c.Assert(res.Message, gc.Equals, dataservice.MsgNotRegistered)
}

func (s *serviceSuite) TestScanForDifferentEvent(c *gc.C) {
	admin := s.serviceFor(c, s.admin)
	alice := s.serviceFor(c, s.alice)
	c.Assert(alice.RegisterForEvent(s.ctx, "big", s.alice.ID, "").OK, jc.IsTrue)

	res := admin.ScanAttendance(s.ctx, "big", `{"eventId":"solo","userId":"`+s.alice.ID+`"}`)
	c.Assert(res.OK, jc.IsFalse)
	c.Assert(res.Code, gc.Equals, dataservice.CodeInvalid)
	c.Assert(res.Message, gc.Equals, dataservice.MsgWrongEvent)

	rec, err := s.store.FindAttendance(s.ctx, "big", s.alice.ID)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(rec, gc.IsNil)
}

func (s *serviceSuite) TestScanWithoutEventID(c *gc.C) {
	admin := s.serviceFor(c, s.admin)
	alice := s.serviceFor(c, s.alice)
	c.Assert(alice.RegisterForEvent(s.ctx, "big", s.alice.ID, "").OK, jc.IsTrue)

	res := admin.ScanAttendance(s.ctx, "big", `{"userId":"`+s.alice.ID+`"}`)
	c.Assert(res.Code, gc.Equals, dataservice.CodeInvalid)
	c.Assert(res.Message, gc.Equals, dataservice.MsgWrongEvent)
	rec, err := s.store.FindAttendance(s.ctx, "big", s.alice.ID)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(rec, gc.IsNil)
}

func (s *serviceSuite) TestScanMalformed(c *gc.C) {
	admin := s.serviceFor(c, s.admin)
	for _, raw := range []string{"", "hello", "{", `{"name":"nobody"}`} {
		res := admin.ScanAttendance(s.ctx, "big", raw)
		c.Assert(res.Code, gc.Equals, dataservice.CodeInvalid, gc.Commentf("%q", raw))
		c.Assert(res.Message, gc.Equals, dataservice.MsgInvalidQR)
	}
}

func (s *serviceSuite) TestScanByRollNumber(c *gc.C) {
	admin := s.serviceFor(c, s.admin)
	bob := s.serviceFor(c, s.bob)
	c.Assert(bob.RegisterForEvent(s.ctx, "big", s.bob.ID, "").OK, jc.IsTrue)

	res := admin.ScanAttendance(s.ctx, "big", `{"eventId":"big","rollNumber":"CS02"}`)
	c.Assert(res.OK, jc.IsTrue, gc.Commentf("%+v", res))
	c.Assert(res.ID, gc.Equals, s.bob.ID)
	c.Assert(res.Message, gc.Equals, "attendance marked for Bob")

	res = admin.ScanAttendance(s.ctx, "big", `{"eventId":"big","rollNumber":"CS99"}`)
	c.Assert(res.Code, gc.Equals, dataservice.CodeNotFound)
}

func (s *serviceSuite) TestTicketScansAtDoor(c *gc.C) {
	admin := s.serviceFor(c, s.admin)
	alice := s.serviceFor(c, s.alice)

	_, res := alice.TicketPayload("big")
	c.Assert(res.Message, gc.Equals, dataservice.MsgNotRegistered)

	c.Assert(alice.RegisterForEvent(s.ctx, "big", s.alice.ID, "").OK, jc.IsTrue)
	ticket, res := alice.TicketPayload("big")
	c.Assert(res.OK, jc.IsTrue)
	c.Assert(strings.Contains(ticket, `"rollNumber":"CS01"`), jc.IsTrue)

	res = admin.ScanAttendance(s.ctx, "big", ticket)
	c.Assert(res.OK, jc.IsTrue, gc.Commentf("%+v", res))
	res = admin.ScanAttendance(s.ctx, "big", ticket)
	c.Assert(res.Message, gc.Equals, dataservice.MsgDuplicateScan)

	res = admin.ScanAttendance(s.ctx, "solo", ticket)
	c.Assert(res.Message, gc.Equals, dataservice.MsgWrongEvent)
}

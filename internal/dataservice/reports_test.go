package dataservice_test

import (
	"bytes"
	"strings"

	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"campusevents/internal/dataservice"
)

func (s *serviceSuite) TestAnalytics(c *gc.C) {
	admin := s.serviceFor(c, s.admin)
	alice := s.serviceFor(c, s.alice)
	bob := s.serviceFor(c, s.bob)
	c.Assert(alice.RegisterForEvent(s.ctx, "big", s.alice.ID, "").OK, jc.IsTrue)
	c.Assert(bob.RegisterForEvent(s.ctx, "big", s.bob.ID, "").OK, jc.IsTrue)
	c.Assert(admin.MarkAttendance(s.ctx, "big", s.alice.ID, "").OK, jc.IsTrue)
	c.Assert(admin.RefreshData(s.ctx).OK, jc.IsTrue)

	d, res := admin.Analytics(s.ctx)
	c.Assert(res.OK, jc.IsTrue)
	c.Assert(d.TotalEvents, gc.Equals, 3)
	c.Assert(d.TotalRegistrations, gc.Equals, 2)
	c.Assert(d.TotalAttendance, gc.Equals, 1)
	c.Assert(d.AttendanceRate, gc.Equals, 50)
	c.Assert(d.UpcomingEvents, gc.Equals, 3)
	c.Assert(d.PopularEvents[0].ID, gc.Equals, "big")

	_, res = alice.Analytics(s.ctx)
	c.Assert(res.Code, gc.Equals, dataservice.CodeForbidden)
}

func (s *serviceSuite) TestExportAttendance(c *gc.C) {
	admin := s.serviceFor(c, s.admin)
	alice := s.serviceFor(c, s.alice)
	c.Assert(alice.RegisterForEvent(s.ctx, "big", s.alice.ID, "").OK, jc.IsTrue)
	c.Assert(admin.MarkAttendance(s.ctx, "big", s.alice.ID, "").OK, jc.IsTrue)

	var buf bytes.Buffer
	res := admin.ExportAttendance(s.ctx, "big", &buf)
	c.Assert(res.OK, jc.IsTrue)
	c.Assert(res.ID, gc.Equals, "attendance-Big-2024-12-01.csv")
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	c.Assert(lines, gc.HasLen, 6)
	c.Assert(lines[5], gc.Equals, "Alice,CS01,alice@college.edu,2024-12-01 09:00:00")

	buf.Reset()
	res = admin.ExportAttendance(s.ctx, "missing", &buf)
	c.Assert(res.Code, gc.Equals, dataservice.CodeNotFound)
	c.Assert(buf.Len(), gc.Equals, 0)
}

package session_test

import (
	"testing"

	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"campusevents/internal/model"
	"campusevents/internal/session"
)

func TestPackage(t *testing.T) {
	gc.TestingT(t)
}

type sessionSuite struct{}

var _ = gc.Suite(&sessionSuite{})

func (s *sessionSuite) TestLoginLogoutNotifies(c *gc.C) {
	sess := session.New()
	c.Assert(sess.Current(), gc.IsNil)

	var seen []string
	cancel := sess.OnChange(func(u *session.User) {
		if u == nil {
			seen = append(seen, "logout")
			return
		}
		seen = append(seen, "login:"+u.ID)
	})

	sess.Login(session.User{ID: "u1", Role: model.RoleAdmin})
	c.Assert(sess.Current().IsAdmin(), jc.IsTrue)
	sess.Logout()
	sess.Logout()
	c.Assert(sess.Current(), gc.IsNil)

	cancel()
	sess.Login(session.User{ID: "u2"})
	c.Assert(seen, jc.DeepEquals, []string{"login:u1", "logout"})
}

func (s *sessionSuite) TestCurrentIsCopy(c *gc.C) {
	sess := session.New()
	sess.Login(session.UserFromProfile(model.Profile{ID: "u1", Name: "Asha", Role: model.RoleStudent}))
	u := sess.Current()
	u.Name = "changed"
	c.Assert(sess.Current().Name, gc.Equals, "Asha")
}

package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"campusevents/internal/auth"
)

func TestPackage(t *testing.T) { gc.TestingT(t) }

type authSuite struct {
	clock  *testclock.Clock
	tokens *auth.Tokens
}

var _ = gc.Suite(&authSuite{})

func (s *authSuite) SetUpTest(c *gc.C) {
	gin.SetMode(gin.TestMode)
	s.clock = testclock.NewClock(time.Now())
	s.tokens = &auth.Tokens{
		Issuer:     "campus-test",
		Key:        []byte("test-key"),
		AccessTTL:  15 * time.Minute,
		RefreshTTL: time.Hour,
		Clock:      s.clock,
	}
}

func (s *authSuite) TestIssueAndParse(c *gc.C) {
	pair, err := s.tokens.Issue("user-1", "admin")
	c.Assert(err, jc.ErrorIsNil)
	claims, err := s.tokens.Parse(pair.AccessToken)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(claims.Subject, gc.Equals, "user-1")
	c.Check(claims.Role, gc.Equals, "admin")
	c.Check(claims.Refresh, jc.IsFalse)
}

func (s *authSuite) TestExpiredToken(c *gc.C) {
	pair, err := s.tokens.Issue("user-1", "student")
	c.Assert(err, jc.ErrorIsNil)
	s.clock.Advance(16 * time.Minute)
	_, err = s.tokens.Parse(pair.AccessToken)
	c.Check(errors.Is(err, errors.Unauthorized), jc.IsTrue)
}

func (s *authSuite) TestWrongKeyOrIssuer(c *gc.C) {
	pair, err := s.tokens.Issue("user-1", "student")
	c.Assert(err, jc.ErrorIsNil)

	other := *s.tokens
	other.Key = []byte("another-key")
	_, err = other.Parse(pair.AccessToken)
	c.Check(errors.Is(err, errors.Unauthorized), jc.IsTrue)

	other = *s.tokens
	other.Issuer = "someone-else"
	_, err = other.Parse(pair.AccessToken)
	c.Check(errors.Is(err, errors.Unauthorized), jc.IsTrue)
}

func (s *authSuite) TestRefresh(c *gc.C) {
	pair, err := s.tokens.Issue("user-1", "student")
	c.Assert(err, jc.ErrorIsNil)

	_, _, err = s.tokens.Refresh(pair.AccessToken)
	c.Check(errors.Is(err, errors.Unauthorized), jc.IsTrue)

	next, claims, err := s.tokens.Refresh(pair.RefreshToken)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(claims.Subject, gc.Equals, "user-1")
	c.Check(next.AccessToken, gc.Not(gc.Equals), "")
}

func (s *authSuite) router() *gin.Engine {
	r := gin.New()
	r.GET("/me", auth.Bearer(s.tokens), func(c *gin.Context) {
		claims, _ := auth.FromContext(c)
		c.String(http.StatusOK, claims.Subject)
	})
	r.GET("/admin", auth.Bearer(s.tokens), auth.RequireRole("admin"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func (s *authSuite) do(c *gc.C, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router().ServeHTTP(rec, req)
	return rec
}

func (s *authSuite) TestMiddleware(c *gc.C) {
	student, err := s.tokens.Issue("stu", "student")
	c.Assert(err, jc.ErrorIsNil)
	admin, err := s.tokens.Issue("adm", "admin")
	c.Assert(err, jc.ErrorIsNil)

	c.Check(s.do(c, "/me", "").Code, gc.Equals, http.StatusUnauthorized)
	c.Check(s.do(c, "/me", "garbage").Code, gc.Equals, http.StatusUnauthorized)
	c.Check(s.do(c, "/me", student.RefreshToken).Code, gc.Equals, http.StatusUnauthorized)

	rec := s.do(c, "/me", student.AccessToken)
	c.Check(rec.Code, gc.Equals, http.StatusOK)
	c.Check(rec.Body.String(), gc.Equals, "stu")

	c.Check(s.do(c, "/admin", student.AccessToken).Code, gc.Equals, http.StatusForbidden)
	c.Check(s.do(c, "/admin", admin.AccessToken).Code, gc.Equals, http.StatusNoContent)
}

package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/juju/errors"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"campusevents/internal/config"
)

func TestPackage(t *testing.T) { gc.TestingT(t) }

type configSuite struct {
	saved map[string]*string
}

var _ = gc.Suite(&configSuite{})

var keys = []string{
	"APP_ENV", "STORE_BACKEND", "QUEUE_BACKEND", "OTP_BACKEND", "ACCESS_TTL", "SEED_DEMO",
	"RATE_LIMIT_PER_MIN", "PAYMENT_DECLINE_RATE", "CORS_ORIGINS", "JWT_SIGNING_KEY", "CAMPUS_TZ",
}

func (s *configSuite) SetUpTest(c *gc.C) {
	s.saved = map[string]*string{}
	for _, k := range keys {
		if v, ok := os.LookupEnv(k); ok {
			s.saved[k] = &v
		} else {
			s.saved[k] = nil
		}
	}
	clearEnv()
}

func clearEnv() {
	for _, k := range keys {
		os.Unsetenv(k)
	}
}

func (s *configSuite) TearDownTest(c *gc.C) {
	for k, v := range s.saved {
		if v == nil {
			os.Unsetenv(k)
		} else {
			os.Setenv(k, *v)
		}
	}
}

func (s *configSuite) TestDefaults(c *gc.C) {
	cfg := config.Load()
	c.Check(cfg.StoreBackend, gc.Equals, config.BackendMemory)
	c.Check(cfg.AccessTTL, gc.Equals, 15*time.Minute)
	c.Check(cfg.PaymentDeclineRate, gc.Equals, 0.1)
	c.Check(cfg.SeedDemo, jc.IsTrue)
	c.Check(cfg.CORSOrigins, jc.DeepEquals, []string{"http://localhost:5173"})
	c.Check(cfg.Validate(), jc.ErrorIsNil)
}

func (s *configSuite) TestOverridesAndBadValues(c *gc.C) {
	os.Setenv("ACCESS_TTL", "5m")
	os.Setenv("SEED_DEMO", "false")
	os.Setenv("RATE_LIMIT_PER_MIN", "lots")
	os.Setenv("PAYMENT_DECLINE_RATE", "0")
	os.Setenv("CORS_ORIGINS", "https://a.example, ,https://b.example")
	cfg := config.Load()
	c.Check(cfg.AccessTTL, gc.Equals, 5*time.Minute)
	c.Check(cfg.SeedDemo, jc.IsFalse)
	c.Check(cfg.RateLimitPerMin, gc.Equals, 120)
	c.Check(cfg.PaymentDeclineRate, gc.Equals, 0.0)
	c.Check(cfg.CORSOrigins, jc.DeepEquals, []string{"https://a.example", "https://b.example"})
}

func (s *configSuite) TestValidate(c *gc.C) {
	for _, env := range []map[string]string{
		{"STORE_BACKEND": "sqlite"},
		{"QUEUE_BACKEND": "kafka"},
		{"PAYMENT_DECLINE_RATE": "1.5"},
		{"APP_ENV": "prod"},
		{"CAMPUS_TZ": "Mars/Olympus"},
	} {
		clearEnv()
		for k, v := range env {
			os.Setenv(k, v)
		}
		err := config.Load().Validate()
		c.Check(errors.Is(err, errors.NotValid), jc.IsTrue, gc.Commentf("%v", env))
	}
}

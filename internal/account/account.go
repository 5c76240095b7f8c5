// Package account handles sign-up, password and OTP login, and profile edits.
package account

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"golang.org/x/crypto/bcrypt"

	"campusevents/internal/model"
	"campusevents/internal/store"
)

var logger = loggo.GetLogger("campus.account")

const (
	// OTPTTL is how long an issued code stays valid.
	OTPTTL = 5 * time.Minute

	MinPasswordLength = 6
)

// Delivery channels for one-time codes.
const (
	ChannelEmail  = "email"
	ChannelMobile = "mobile"
)

var (
	emailPattern  = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	mobilePattern = regexp.MustCompile(`^[0-9]{10}$`)
	nonDigits     = regexp.MustCompile(`\D`)
	otpPattern    = regexp.MustCompile(`^[0-9]{6}$`)
)

// NormalizeMobile strips everything but digits and reports whether the
// result is a 10-digit number.
func NormalizeMobile(s string) (string, bool) {
	digits := nonDigits.ReplaceAllString(s, "")
	return digits, mobilePattern.MatchString(digits)
}

// ValidEmail reports whether s looks like an email address.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// Sender delivers one-time codes to users.
type Sender interface {
	Send(ctx context.Context, channel, to, code string) error
}

// LogSender writes codes to the log instead of sending them.
type LogSender struct{}

// Send implements Sender.
func (LogSender) Send(_ context.Context, channel, to, code string) error {
	logger.Infof("otp for %s (%s): %s", to, channel, code)
	return nil
}

// Service manages accounts on top of the profile store.
type Service struct {
	store  store.Store
	otp    OTPStore
	sender Sender
	clock  clock.Clock
	cost   int
}

// Config holds the account service collaborators.
type Config struct {
	Store  store.Store
	OTP    OTPStore
	Sender Sender
	Clock  clock.Clock
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

// New returns an account service.
func New(cfg Config) *Service {
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.OTP == nil {
		cfg.OTP = NewMemoryOTPStore(cfg.Clock)
	}
	if cfg.Sender == nil {
		cfg.Sender = LogSender{}
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{store: cfg.Store, otp: cfg.OTP, sender: cfg.Sender, clock: cfg.Clock, cost: cfg.BcryptCost}
}

// RegisterRequest is a sign-up form.
type RegisterRequest struct {
	Role         model.Role `json:"role"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	Password     string     `json:"password"`
	RollNumber   string     `json:"roll_number"`
	MobileNumber string     `json:"mobile_number"`
	EnableOTP    bool       `json:"enable_otp"`
}

// Register creates a profile. Students need a roll number; OTP login
// needs a mobile number.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (model.Profile, error) {
	if req.Role == "" {
		req.Role = model.RoleStudent
	}
	if !req.Role.Valid() {
		return model.Profile{}, errors.NotValidf("role %q", req.Role)
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.RollNumber = strings.TrimSpace(req.RollNumber)
	if req.Name == "" || req.Email == "" || req.Password == "" {
		return model.Profile{}, errors.NotValidf("missing required fields")
	}
	if req.Role == model.RoleStudent && req.RollNumber == "" {
		return model.Profile{}, errors.NotValidf("missing roll number")
	}
	if !ValidEmail(req.Email) {
		return model.Profile{}, errors.NotValidf("email %q", req.Email)
	}
	if len(req.Password) < MinPasswordLength {
		return model.Profile{}, errors.NotValidf("password shorter than %d characters", MinPasswordLength)
	}
	var mobile string
	if req.MobileNumber != "" {
		var ok bool
		if mobile, ok = NormalizeMobile(req.MobileNumber); !ok {
			return model.Profile{}, errors.NotValidf("mobile number %q", req.MobileNumber)
		}
	}
	if req.EnableOTP && mobile == "" {
		return model.Profile{}, errors.NotValidf("otp login without mobile number")
	}
	if req.Role == model.RoleAdmin {
		req.RollNumber = ""
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return model.Profile{}, errors.Annotate(err, "hash password")
	}
	p, err := s.store.CreateProfile(ctx, model.Profile{
		Name:         req.Name,
		Email:        req.Email,
		Role:         req.Role,
		RollNumber:   req.RollNumber,
		MobileNumber: mobile,
		OTPEnabled:   req.EnableOTP,
		PasswordHash: string(hash),
	})
	if errors.Is(err, store.ErrDuplicateProfile) {
		return model.Profile{}, errors.AlreadyExistsf("account with this email or roll number")
	}
	if err != nil {
		return model.Profile{}, errors.Trace(err)
	}
	logger.Infof("registered %s %s", p.Role, p.ID)
	return p, nil
}

// LoginRequest carries password credentials. Admins sign in by email,
// students by roll number.
type LoginRequest struct {
	Role       model.Role `json:"role"`
	Email      string     `json:"email"`
	RollNumber string     `json:"roll_number"`
	Password   string     `json:"password"`
}

// Login checks a password and returns the matching profile.
func (s *Service) Login(ctx context.Context, req LoginRequest) (model.Profile, error) {
	if req.Password == "" {
		return model.Profile{}, errors.NotValidf("missing password")
	}
	var (
		found *model.Profile
		err   error
	)
	switch req.Role {
	case model.RoleAdmin:
		if req.Email == "" {
			return model.Profile{}, errors.NotValidf("missing email")
		}
		found, err = s.store.FindProfileByEmail(ctx, strings.TrimSpace(req.Email))
	case model.RoleStudent, "":
		if req.RollNumber == "" {
			return model.Profile{}, errors.NotValidf("missing roll number")
		}
		req.Role = model.RoleStudent
		found, err = s.store.FindProfileByRollNumber(ctx, strings.TrimSpace(req.RollNumber))
	default:
		return model.Profile{}, errors.NotValidf("role %q", req.Role)
	}
	if err != nil {
		return model.Profile{}, errors.Trace(err)
	}
	if found == nil || found.Role != req.Role {
		return model.Profile{}, errors.NotFoundf("%s account", req.Role)
	}
	if bcrypt.CompareHashAndPassword([]byte(found.PasswordHash), []byte(req.Password)) != nil {
		return model.Profile{}, errors.Unauthorizedf("invalid credentials")
	}
	return *found, nil
}

// SendOTP issues a code for the account matching identifier and delivers it
// over channel. It returns when the code expires.
func (s *Service) SendOTP(ctx context.Context, identifier, channel string) (time.Time, error) {
	identifier = strings.TrimSpace(identifier)
	switch channel {
	case ChannelEmail:
		identifier = strings.ToLower(identifier)
		if !ValidEmail(identifier) {
			return time.Time{}, errors.NotValidf("email %q", identifier)
		}
	case ChannelMobile:
		mobile, ok := NormalizeMobile(identifier)
		if !ok {
			return time.Time{}, errors.NotValidf("mobile number %q", identifier)
		}
		identifier = mobile
	default:
		return time.Time{}, errors.NotValidf("channel %q", channel)
	}
	p, err := s.store.FindProfileByIdentifier(ctx, identifier)
	if err != nil {
		return time.Time{}, errors.Trace(err)
	}
	if p == nil {
		return time.Time{}, errors.NotFoundf("account for %q", identifier)
	}
	return s.issue(ctx, p.ID, identifier, channel)
}

// StartOTPLogin checks that rollNumber and mobile belong to the same
// student, then sends a code to the mobile number.
func (s *Service) StartOTPLogin(ctx context.Context, rollNumber, mobile string) (time.Time, error) {
	if rollNumber == "" || mobile == "" {
		return time.Time{}, errors.NotValidf("missing roll number or mobile number")
	}
	digits, ok := NormalizeMobile(mobile)
	if !ok {
		return time.Time{}, errors.NotValidf("mobile number %q", mobile)
	}
	p, err := s.store.FindProfileByRollNumber(ctx, strings.TrimSpace(rollNumber))
	if err != nil {
		return time.Time{}, errors.Trace(err)
	}
	if p == nil || p.Role != model.RoleStudent || p.MobileNumber != digits {
		return time.Time{}, errors.NotFoundf("student with this roll number and mobile number")
	}
	return s.issue(ctx, p.ID, digits, ChannelMobile)
}

func (s *Service) issue(ctx context.Context, profileID, identifier, channel string) (time.Time, error) {
	code, err := newCode()
	if err != nil {
		return time.Time{}, errors.Trace(err)
	}
	if err := s.otp.Save(ctx, identifier, code, profileID, OTPTTL); err != nil {
		return time.Time{}, errors.Trace(err)
	}
	if err := s.sender.Send(ctx, channel, identifier, code); err != nil {
		return time.Time{}, errors.Annotate(err, "deliver otp")
	}
	return s.clock.Now().Add(OTPTTL), nil
}

func newCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", errors.Annotate(err, "generate otp")
	}
	return fmt.Sprintf("%06d", 100000+n.Int64()), nil
}

// VerifyOTP consumes code and returns the profile it was issued for.
func (s *Service) VerifyOTP(ctx context.Context, identifier, code string) (model.Profile, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || code == "" {
		return model.Profile{}, errors.NotValidf("missing otp")
	}
	if !otpPattern.MatchString(code) {
		return model.Profile{}, errors.NotValidf("otp must be 6 digits")
	}
	if strings.Contains(identifier, "@") {
		identifier = strings.ToLower(identifier)
	} else if mobile, ok := NormalizeMobile(identifier); ok {
		identifier = mobile
	}
	owner, err := s.otp.Consume(ctx, identifier, code)
	if errors.Is(err, errors.NotFound) {
		return model.Profile{}, errors.Unauthorizedf("invalid or expired otp")
	}
	if err != nil {
		return model.Profile{}, errors.Trace(err)
	}
	p, err := s.store.GetProfile(ctx, owner)
	return p, errors.Trace(err)
}

// UpdateProfile applies upd to profile id and returns the result. Turning on
// OTP login requires a mobile number.
func (s *Service) UpdateProfile(ctx context.Context, id string, upd model.ProfileUpdate) (model.Profile, error) {
	current, err := s.store.GetProfile(ctx, id)
	if err != nil {
		return model.Profile{}, errors.Trace(err)
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return model.Profile{}, errors.NotValidf("empty name")
		}
		upd.Name = &name
	}
	mobile := current.MobileNumber
	if upd.MobileNumber != nil {
		digits, ok := NormalizeMobile(*upd.MobileNumber)
		if *upd.MobileNumber != "" && !ok {
			return model.Profile{}, errors.NotValidf("mobile number %q", *upd.MobileNumber)
		}
		mobile = digits
		upd.MobileNumber = &mobile
	}
	otpOn := current.OTPEnabled
	if upd.OTPEnabled != nil {
		otpOn = *upd.OTPEnabled
	}
	if otpOn && mobile == "" {
		return model.Profile{}, errors.NotValidf("otp login without mobile number")
	}
	if err := s.store.UpdateProfile(ctx, id, upd); err != nil {
		return model.Profile{}, errors.Trace(err)
	}
	p, err := s.store.GetProfile(ctx, id)
	return p, errors.Trace(err)
}

// EnableOTPLogin stores mobile and turns on OTP login.
func (s *Service) EnableOTPLogin(ctx context.Context, id, mobile string) (model.Profile, error) {
	on := true
	return s.UpdateProfile(ctx, id, model.ProfileUpdate{MobileNumber: &mobile, OTPEnabled: &on})
}

// SeedDemoAccounts creates the offline-mode demo admin and student when absent.
func (s *Service) SeedDemoAccounts(ctx context.Context) error {
	for _, req := range []RegisterRequest{
		{Role: model.RoleAdmin, Name: "Demo Admin", Email: "admin@demo.com", Password: "admin123"},
		{Role: model.RoleStudent, Name: "Demo Student", Email: "student@demo.com", Password: "student123",
			RollNumber: "DEMO001", MobileNumber: "9999999999", EnableOTP: true},
	} {
		_, err := s.Register(ctx, req)
		if err != nil && !errors.Is(err, errors.AlreadyExists) {
			return errors.Annotatef(err, "seed %s", req.Email)
		}
	}
	return nil
}

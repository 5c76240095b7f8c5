// Package auth issues and checks the bearer tokens that identify API sessions.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/juju/clock"
	"github.com/juju/errors"
)

// TokenPair holds access and refresh tokens.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	AccessExp    time.Time `json:"access_expires_at"`
	RefreshExp   time.Time `json:"refresh_expires_at"`
}

// Claims is the token payload.
type Claims struct {
	Role string `json:"role"`
	// Refresh marks tokens that may only be exchanged for a new pair.
	Refresh bool `json:"refresh,omitempty"`
	jwt.RegisteredClaims
}

// Tokens signs and verifies HS256 tokens for one issuer.
type Tokens struct {
	Issuer     string
	Key        []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Clock      clock.Clock
}

func (t *Tokens) now() time.Time {
	if t.Clock == nil {
		return time.Now()
	}
	return t.Clock.Now()
}

func (t *Tokens) sign(subject, role string, refresh bool, exp time.Time) (string, error) {
	now := t.now()
	claims := Claims{
		Role:    role,
		Refresh: refresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.Issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.Key)
	return signed, errors.Annotate(err, "sign token")
}

// Issue returns a fresh access/refresh pair for subject.
func (t *Tokens) Issue(subject, role string) (TokenPair, error) {
	now := t.now()
	pair := TokenPair{AccessExp: now.Add(t.AccessTTL), RefreshExp: now.Add(t.RefreshTTL)}
	var err error
	if pair.AccessToken, err = t.sign(subject, role, false, pair.AccessExp); err != nil {
		return TokenPair{}, errors.Trace(err)
	}
	if pair.RefreshToken, err = t.sign(subject, role, true, pair.RefreshExp); err != nil {
		return TokenPair{}, errors.Trace(err)
	}
	return pair, nil
}

// Parse validates a token and returns its claims. Failures are Unauthorized.
func (t *Tokens) Parse(token string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(tok *jwt.Token) (interface{}, error) {
		if tok.Method != jwt.SigningMethodHS256 {
			return nil, errors.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.Key, nil
	}, jwt.WithTimeFunc(t.now), jwt.WithIssuer(t.Issuer))
	if err != nil {
		return Claims{}, errors.NewUnauthorized(err, "invalid token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return Claims{}, errors.Unauthorizedf("invalid token")
	}
	return *claims, nil
}

// Refresh exchanges a refresh token for a new pair.
func (t *Tokens) Refresh(refreshToken string) (TokenPair, Claims, error) {
	claims, err := t.Parse(refreshToken)
	if err != nil {
		return TokenPair{}, Claims{}, errors.Trace(err)
	}
	if !claims.Refresh {
		return TokenPair{}, Claims{}, errors.Unauthorizedf("not a refresh token")
	}
	pair, err := t.Issue(claims.Subject, claims.Role)
	return pair, claims, errors.Trace(err)
}

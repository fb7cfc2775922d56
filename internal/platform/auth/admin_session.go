package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
	"github.com/oklog/ulid/v2"
)

const (
	// AdminSessionHeader carries the step-up token issued after admin verification.
	AdminSessionHeader = "X-Admin-Session"

	adminSessionIssuer   = "campusnest-api"
	adminSessionAudience = "admin-session"
)

var (
	// ErrAdminSessionInvalid covers malformed, forged, expired or foreign tokens.
	ErrAdminSessionInvalid = errors.New("auth: admin session invalid")
	// ErrAdminSessionDisabled is returned when no signing secret is configured.
	ErrAdminSessionDisabled = errors.New("auth: admin sessions not configured")
)

// AdminSessions issues and validates HS256 step-up tokens bound to an admin uid.
type AdminSessions struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewAdminSessions constructs the issuer. An empty secret yields a disabled issuer that
// rejects every token, so admin routes fail closed.
func NewAdminSessions(secret string, ttl time.Duration, now func() time.Time) *AdminSessions {
	if now == nil {
		now = time.Now
	}
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &AdminSessions{secret: []byte(strings.TrimSpace(secret)), ttl: ttl, now: now}
}

// Issue signs a token for uid and returns it with its expiry.
func (s *AdminSessions) Issue(uid string) (string, time.Time, error) {
	if s == nil || len(s.secret) == 0 {
		return "", time.Time{}, ErrAdminSessionDisabled
	}
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return "", time.Time{}, fmt.Errorf("%w: uid required", ErrAdminSessionInvalid)
	}

	now := s.now().UTC()
	expires := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		ID:        ulid.Make().String(),
		Issuer:    adminSessionIssuer,
		Subject:   uid,
		Audience:  jwt.ClaimStrings{adminSessionAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign admin session: %w", err)
	}
	return signed, expires, nil
}

// Validate checks signature, audience, expiry and that the token belongs to uid.
func (s *AdminSessions) Validate(token, uid string) error {
	if s == nil || len(s.secret) == 0 {
		return ErrAdminSessionDisabled
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: token missing", ErrAdminSessionInvalid)
	}

	claims := &jwt.RegisteredClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if _, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}); err != nil {
		return fmt.Errorf("%w: %v", ErrAdminSessionInvalid, err)
	}

	// Expiry is checked against the injected clock rather than the jwt package clock.
	now := s.now()
	if claims.ExpiresAt == nil || !now.Before(claims.ExpiresAt.Time) {
		return fmt.Errorf("%w: expired", ErrAdminSessionInvalid)
	}
	if claims.Issuer != adminSessionIssuer || !claims.VerifyAudience(adminSessionAudience, true) {
		return fmt.Errorf("%w: wrong issuer or audience", ErrAdminSessionInvalid)
	}
	if claims.Subject != strings.TrimSpace(uid) {
		return fmt.Errorf("%w: subject mismatch", ErrAdminSessionInvalid)
	}
	return nil
}

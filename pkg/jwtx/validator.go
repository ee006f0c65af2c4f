package jwtx

import (
	"errors"
	"log/slog"
	"strings"
	"time"
)

// Mode selects how tolerant validation is. Strict is what production runs;
// Permissive exists for local development backends that issue loose tokens.
// The mode is fixed at construction from deployment config, never from user
// input.
type Mode int

const (
	Strict Mode = iota
	Permissive
)

const (
	// GitHubTokenPrefix marks the opaque OAuth token dialect issued through
	// the GitHub exchange. These tokens carry no claims payload.
	GitHubTokenPrefix = "gho_"

	// GitHubTokenMinLength is the canonical minimum length for an opaque
	// GitHub token, prefix included.
	GitHubTokenMinLength = 40

	jwtSegments = 3
)

var (
	ErrTokenEmpty     = errors.New("jwtx: token is empty")
	ErrTokenMalformed = errors.New("jwtx: token is malformed")
	ErrTokenExpired   = errors.New("jwtx: token is expired")
	ErrTokenNoExpiry  = errors.New("jwtx: token carries no expiry claim")
	ErrOpaqueTooShort = errors.New("jwtx: opaque token below minimum length")
)

// Validator decides whether a token string is usable.
type Validator struct {
	Mode   Mode
	Logger *slog.Logger

	// Now is the clock used for expiry checks. Defaults to time.Now.
	Now func() time.Time
}

func NewValidator(mode Mode, logger *slog.Logger) *Validator {
	return &Validator{Mode: mode, Logger: logger, Now: time.Now}
}

// IsValid reports whether the token is structurally valid and unexpired.
func (v *Validator) IsValid(token string) bool {
	return v.Validate(token) == nil
}

// Validate returns nil for a usable token, or one of the sentinel errors
// describing why it is unusable.
func (v *Validator) Validate(token string) error {
	if token == "" {
		return ErrTokenEmpty
	}

	if strings.HasPrefix(token, GitHubTokenPrefix) {
		return v.validateOpaque(token)
	}

	if strings.Count(token, ".") != jwtSegments-1 && v.Mode == Strict {
		return ErrTokenMalformed
	}

	claims := DecodeClaims(token)
	if claims == nil {
		if v.Mode == Permissive {
			v.warn("accepting undecodable token in permissive mode")
			return nil
		}
		return ErrTokenMalformed
	}

	if claims.ExpiresAt == nil {
		if v.Mode == Permissive {
			return nil
		}
		return ErrTokenNoExpiry
	}

	// Inclusive boundary: a token expiring exactly now is already dead.
	if !v.now().Before(claims.ExpiresAt.Time) {
		return ErrTokenExpired
	}

	return nil
}

func (v *Validator) validateOpaque(token string) error {
	if len(token) >= GitHubTokenMinLength {
		return nil
	}

	if v.Mode == Permissive {
		v.warn("accepting short opaque token in permissive mode",
			slog.Int("length", len(token)))
		return nil
	}

	return ErrOpaqueTooShort
}

func (v *Validator) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

func (v *Validator) warn(msg string, args ...any) {
	if v.Logger != nil {
		v.Logger.Warn(msg, args...)
	}
}

package transport

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrNoToken = errors.New("authentication response contains no token")

// Session is an authenticated handle for one service. It is a value: once issued it is
// never mutated, so it can be shared freely between workers.
type Session struct {
	Service   string
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// NewSession wraps token. When token is a JWT its exp claim populates ExpiresAt; the
// signature is not checked since the issuing service is the only consumer.
func NewSession(service, token string) (Session, error) {
	if token == "" {
		return Session{}, fmt.Errorf("%s: %w", service, ErrNoToken)
	}

	s := Session{
		Service:  service,
		Token:    token,
		IssuedAt: time.Now(),
	}

	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return s, nil
	}
	if exp, err := parsed.Claims.GetExpirationTime(); err == nil && exp != nil {
		s.ExpiresAt = exp.Time
	}
	return s, nil
}

// Expired reports whether the session carries a known expiry that has passed.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// FirstNonEmpty returns the first non-empty value, used for token and id fallbacks
// where services disagree on field names.
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// ID is an identifier that services return either as a JSON string or a number. Any
// other JSON value decodes as an empty ID so callers fall back to another field.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*id = ""
	if len(b) == 0 {
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
	case '{', '[', 't', 'f', 'n':
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("id is neither string nor number: %s", string(b))
		}
		*id = ID(n.String())
	}
	return nil
}

func (id ID) String() string {
	return string(id)
}

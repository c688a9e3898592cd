// Package secretgen derives usernames and generates policy-compliant passwords for
// provisioned application identities.
package secretgen

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	LowerChars  = "abcdefghijklmnopqrstuvwxyz"
	UpperChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	DigitChars  = "0123456789"
	SymbolChars = "!@#$%^&*()-_=+"

	AllChars = UpperChars + LowerChars + DigitChars + SymbolChars

	UsernameSuffix     = "_apps"
	DefaultUsernameLen = 20
	DefaultPasswordLen = 16
	MaxPasswordLen     = 64
	MinPasswordLen     = 4

	// MaxAttempts bounds the rejection-sampling loop. At length 16 the chance of a single
	// rejection is below 7%, so exhausting this is a broken random source.
	MaxAttempts = 1000
)

var (
	ErrGeneratorExhausted = errors.New("password generator exhausted attempts without satisfying policy")
	ErrLengthTooShort     = errors.New("password length cannot satisfy the character class policy")
)

// Credentials is the generated login material for one provisioned application.
type Credentials struct {
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	Email    string `json:"email" yaml:"email"`
}

// Normalize lower-cases name and strips all whitespace. The result is the naming root for
// every derived resource.
func Normalize(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), ""))
}

// Username returns "<root>_apps" truncated to maxLen bytes. A maxLen of zero or less uses
// DefaultUsernameLen.
func Username(root string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultUsernameLen
	}
	return truncate(Normalize(root)+UsernameSuffix, maxLen)
}

// truncate cuts s to at most n bytes without splitting a multibyte rune.
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Generator produces passwords from a cryptographically secure source.
type Generator struct {
	rand io.Reader
}

func NewGenerator() *Generator {
	return &Generator{rand: rand.Reader}
}

// NewGeneratorWithReader is for tests that need a controlled random source.
func NewGeneratorWithReader(r io.Reader) *Generator {
	return &Generator{rand: r}
}

// Password generates length random characters satisfying the policy and returns
// prefix+generated. When that exceeds MaxPasswordLen the prefix is shortened; the
// generated part is always kept whole.
func (g *Generator) Password(prefix string, length int) (string, error) {
	if length <= 0 {
		length = DefaultPasswordLen
	}
	if length < MinPasswordLen {
		return "", fmt.Errorf("%w: %d", ErrLengthTooShort, length)
	}
	length = min(length, MaxPasswordLen)
	prefix = truncate(prefix, MaxPasswordLen-length)

	bound := big.NewInt(int64(len(AllChars)))
	buf := make([]byte, length)
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		for i := range buf {
			n, err := rand.Int(g.rand, bound)
			if err != nil {
				return "", fmt.Errorf("failed to read random source: %w", err)
			}
			buf[i] = AllChars[n.Int64()]
		}
		if pwd := prefix + string(buf); Satisfies(string(buf)) && Satisfies(pwd) {
			return pwd, nil
		}
	}
	return "", ErrGeneratorExhausted
}

// Credentials derives the full credential set for root.
func (g *Generator) Credentials(root, emailDomain string) (Credentials, error) {
	root = Normalize(root)
	password, err := g.Password(root, DefaultPasswordLen)
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{
		Username: Username(root, DefaultUsernameLen),
		Password: password,
		Email:    fmt.Sprintf("%s@%s", root, emailDomain),
	}, nil
}

// Satisfies reports whether s holds at least one upper, lower, digit and symbol character.
func Satisfies(s string) bool {
	var upper, lower, digit, symbol bool
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(SymbolChars, r):
			symbol = true
		}
	}
	return upper && lower && digit && symbol
}

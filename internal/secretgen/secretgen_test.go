package secretgen

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "payrollapp", Normalize("Payroll App"))
	assert.Equal(t, "hr", Normalize("  H R \t"))
	assert.Equal(t, "", Normalize("   "))
}

func TestUsername(t *testing.T) {
	tests := []struct {
		name   string
		root   string
		maxLen int
		want   string
	}{
		{name: "short root keeps suffix", root: "payrollapp", maxLen: 20, want: "payrollapp_apps"},
		{name: "root is normalized", root: "Payroll App", maxLen: 20, want: "payrollapp_apps"},
		{name: "long root is truncated", root: "averyveryverylongname", maxLen: 20, want: "averyveryverylongnam"},
		{name: "default length", root: "abc", maxLen: 0, want: "abc_apps"},
		{name: "tight length", root: "abc", maxLen: 4, want: "abc_"},
		{name: "multibyte rune is not split", root: "zahlungssystemabcdeé", maxLen: 20, want: "zahlungssystemabcde"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Username(tt.root, tt.maxLen))
		})
	}
}

func TestUsernameProperties(t *testing.T) {
	roots := []string{"", "a", "payroll", "billing service", strings.Repeat("x", 40), "zahlungsdienstübersicht"}
	for _, root := range roots {
		for maxLen := 1; maxLen <= 30; maxLen++ {
			u := Username(root, maxLen)
			assert.LessOrEqual(t, len(u), maxLen)
			if len(Normalize(root))+len(UsernameSuffix) <= maxLen {
				assert.True(t, strings.HasSuffix(u, UsernameSuffix), "root=%q maxLen=%d", root, maxLen)
			}
		}
	}
}

func TestPasswordPolicy(t *testing.T) {
	g := NewGenerator()
	for length := MinPasswordLen; length <= 40; length++ {
		for i := 0; i < 20; i++ {
			pwd, err := g.Password("", length)
			require.NoError(t, err)
			assert.Len(t, pwd, length)
			assert.True(t, Satisfies(pwd), "password %q fails policy", pwd)
			for _, r := range pwd {
				assert.True(t, strings.ContainsRune(AllChars, r))
			}
		}
	}
}

func TestPasswordPrefixAndTruncation(t *testing.T) {
	g := NewGenerator()

	pwd, err := g.Password("payrollapp", 16)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(pwd, "payrollapp"))
	assert.Len(t, pwd, len("payrollapp")+16)

	pwd, err = g.Password(strings.Repeat("p", 60), 16)
	require.NoError(t, err)
	assert.Len(t, pwd, MaxPasswordLen)
	assert.Equal(t, strings.Repeat("p", MaxPasswordLen-16), pwd[:MaxPasswordLen-16])
	assert.True(t, Satisfies(pwd[MaxPasswordLen-16:]))

	pwd, err = g.Password("", 80)
	require.NoError(t, err)
	assert.Len(t, pwd, MaxPasswordLen)
	assert.True(t, Satisfies(pwd))
}

func TestPasswordMultibytePrefix(t *testing.T) {
	prefix := strings.Repeat("ü", 30)
	pwd, err := NewGenerator().Password(prefix, 16)
	require.NoError(t, err)

	assert.LessOrEqual(t, len(pwd), MaxPasswordLen)
	assert.True(t, utf8.ValidString(pwd))
	assert.True(t, strings.HasPrefix(pwd, strings.Repeat("ü", 24)))
	assert.True(t, Satisfies(pwd))
}

func TestPasswordTooShort(t *testing.T) {
	_, err := NewGenerator().Password("", 3)
	assert.ErrorIs(t, err, ErrLengthTooShort)
}

func TestPasswordExhausted(t *testing.T) {
	// A stream of zero bytes always picks AllChars[0], which never satisfies the policy.
	g := NewGeneratorWithReader(zeroReader{})

	_, err := g.Password("", 16)
	assert.ErrorIs(t, err, ErrGeneratorExhausted)
}

func TestPasswordRandomSourceFailure(t *testing.T) {
	g := NewGeneratorWithReader(failingReader{})
	_, err := g.Password("", 16)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read random source")
}

func TestCredentials(t *testing.T) {
	creds, err := NewGenerator().Credentials("Payroll App", "example.local")
	require.NoError(t, err)

	assert.Equal(t, "payrollapp_apps", creds.Username)
	assert.Equal(t, "payrollapp@example.local", creds.Email)
	assert.True(t, strings.HasPrefix(creds.Password, "payrollapp"))
	assert.True(t, Satisfies(creds.Password))
}

func TestCredentialsLongRoot(t *testing.T) {
	g := NewGenerator()
	for _, root := range []string{strings.Repeat("payroll", 10), strings.Repeat("r", 55), strings.Repeat("r", 48)} {
		for i := 0; i < 50; i++ {
			creds, err := g.Credentials(root, "example.local")
			require.NoError(t, err)
			assert.LessOrEqual(t, len(creds.Password), MaxPasswordLen, "root=%q", root)
			assert.True(t, Satisfies(creds.Password), "root=%q password=%q", root, creds.Password)
			assert.True(t, strings.HasPrefix(creds.Password, root[:MaxPasswordLen-DefaultPasswordLen]))
		}
	}
}

func TestSatisfies(t *testing.T) {
	assert.True(t, Satisfies("aA1!"))
	assert.False(t, Satisfies("aA1"))
	assert.False(t, Satisfies("AAAA1111!!!!"))
	assert.False(t, Satisfies("aA1?"))
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("entropy unavailable")
}

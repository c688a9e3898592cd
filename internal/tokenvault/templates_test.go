package tokenvault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplatesFor(t *testing.T) {
	tests := []struct {
		charset      string
		name         string
		keepLeft     int
		irreversible bool
		copyRuntData bool
		alphabet     string
	}{
		{charset: "clear", name: "app_templateclear", keepLeft: 100, irreversible: true, copyRuntData: true, alphabet: CharsetAlphanumeric},
		{charset: "Clear", name: "app_templateclear", keepLeft: 100, irreversible: true, copyRuntData: true, alphabet: CharsetAlphanumeric},
		{charset: "alphanumeric", name: "app_template", alphabet: CharsetAlphanumeric},
		{charset: " Alpha Numeric ", name: "app_template", alphabet: CharsetAlphanumeric},
		{charset: "digit", name: "app_templatedigit", alphabet: CharsetAllDigits},
		{charset: "DIGIT", name: "app_templatedigit", alphabet: CharsetAllDigits},
	}

	for _, tt := range tests {
		t.Run(tt.charset, func(t *testing.T) {
			specs, ok := TemplatesFor("app", tt.charset)
			require.True(t, ok)
			require.Len(t, specs, 1)

			s := specs[0]
			assert.Equal(t, tt.name, s.Name)
			assert.Equal(t, tt.keepLeft, s.KeepLeft)
			assert.Zero(t, s.KeepRight)
			assert.Equal(t, tt.irreversible, s.Irreversible)
			assert.Equal(t, tt.copyRuntData, s.CopyRuntData)
			assert.True(t, s.AllowSmallInput)
			assert.Equal(t, tt.alphabet, s.Charset)
			assert.Equal(t, FormatFPE, s.Format)
			assert.Empty(t, s.Prefix)
			assert.Empty(t, s.Tenant)
		})
	}
}

func TestTemplatesForUnknown(t *testing.T) {
	for _, charset := range []string{"", "hex", "digits", "clear-text"} {
		specs, ok := TemplatesFor("app", charset)
		assert.False(t, ok, charset)
		assert.Empty(t, specs, charset)
	}
}

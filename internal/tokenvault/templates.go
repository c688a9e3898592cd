package tokenvault

import (
	"strings"
	"unicode"
)

const (
	FormatFPE            = "FPE"
	CharsetAlphanumeric  = "Alphanumeric"
	CharsetAllDigits     = "All digits"
	CharacterSetClear    = "clear"
	CharacterSetAlphanum = "alphanumeric"
	CharacterSetDigit    = "digit"
)

// TemplateSpec is the body of a token template request.
type TemplateSpec struct {
	Name            string `json:"name" yaml:"name"`
	Format          string `json:"format" yaml:"format"`
	KeepLeft        int    `json:"keepleft" yaml:"keepleft"`
	KeepRight       int    `json:"keepright" yaml:"keepright"`
	Irreversible    bool   `json:"irreversible" yaml:"irreversible"`
	CopyRuntData    bool   `json:"copyruntdata" yaml:"copyruntdata"`
	AllowSmallInput bool   `json:"allowsmallinput" yaml:"allowsmallinput"`
	Charset         string `json:"charset" yaml:"charset"`
	Prefix          string `json:"prefix" yaml:"prefix"`
	StartYear       int    `json:"startyear" yaml:"startyear"`
	EndYear         int    `json:"endyear" yaml:"endyear"`
	Tenant          string `json:"tenant,omitempty" yaml:"tenant,omitempty"`
}

// TemplatesFor maps a declared character set to the templates it produces for root.
// The match ignores case and whitespace. ok is false for an unknown character set.
func TemplatesFor(root, charset string) (specs []TemplateSpec, ok bool) {
	base := TemplateSpec{
		Format:          FormatFPE,
		AllowSmallInput: true,
		Charset:         CharsetAlphanumeric,
	}

	switch canonical(charset) {
	case CharacterSetClear:
		base.Name = root + "_templateclear"
		base.KeepLeft = 100
		base.Irreversible = true
		base.CopyRuntData = true
	case CharacterSetAlphanum:
		base.Name = root + "_template"
	case CharacterSetDigit:
		base.Name = root + "_templatedigit"
		base.Charset = CharsetAllDigits
	default:
		return nil, false
	}
	return []TemplateSpec{base}, true
}

func canonical(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
}

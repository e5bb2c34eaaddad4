// Package phone canonicalizes subscriber numbers so the rest of the engine
// compares like with like. Matching comes in two explicit modes: Equal on
// canonical forms, and SuffixMatch on the trailing six digits. Suffix
// matching is weaker and false-positive-prone across tenants sharing
// area-code digits, so callers pick the mode deliberately.
package phone

import (
	"errors"
	"strings"
)

// SuffixLen is the number of trailing digits compared in suffix mode.
const SuffixLen = 6

var ErrNotAPhone = errors.New("not a phone number")

// Normalizer canonicalizes numbers for one country code.
type Normalizer struct {
	CountryCode string // digits only, e.g. "254"
}

var defaultNormalizer = Normalizer{CountryCode: "254"}

// Normalize canonicalizes with the default country code.
func Normalize(raw string) (string, error) {
	return defaultNormalizer.Normalize(raw)
}

// Normalize strips non-digits and reduces the number to the canonical
// <cc>7XXXXXXXX form. Accepted inputs: local 0XXXXXXXXX, subscriber-only
// 7XXXXXXXX, and already-canonical <cc>7XXXXXXXX (with or without a leading
// plus). Anything else is ErrNotAPhone.
func (n Normalizer) Normalize(raw string) (string, error) {
	cc := n.CountryCode
	if cc == "" {
		cc = defaultNormalizer.CountryCode
	}

	s := digits(raw)
	switch {
	case len(s) == len(cc)+9 && strings.HasPrefix(s, cc):
		s = s[len(cc):]
	case len(s) == 10 && strings.HasPrefix(s, "0"):
		s = s[1:]
	case len(s) == 9:
		// subscriber-only form, keep as is
	default:
		return "", ErrNotAPhone
	}

	if len(s) != 9 || !strings.HasPrefix(s, "7") {
		return "", ErrNotAPhone
	}
	return cc + s, nil
}

// Equal reports whether two raw numbers normalize to the same canonical
// form. This is the strong comparison mode.
func (n Normalizer) Equal(a, b string) bool {
	ca, errA := n.Normalize(a)
	cb, errB := n.Normalize(b)
	return errA == nil && errB == nil && ca == cb
}

// Suffix returns the trailing SuffixLen digits of the number, ignoring
// formatting. Shorter inputs are returned whole.
func Suffix(raw string) string {
	s := digits(raw)
	if len(s) <= SuffixLen {
		return s
	}
	return s[len(s)-SuffixLen:]
}

// SuffixMatch reports whether two raw numbers share the same trailing
// digits. This is the weak, legacy-compatibility comparison mode.
func SuffixMatch(a, b string) bool {
	sa, sb := Suffix(a), Suffix(b)
	return sa != "" && sa == sb
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

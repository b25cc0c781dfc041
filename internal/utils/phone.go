package utils

// Phone helpers for Uzbek numbers.  Registration accepts phone numbers in
// whatever shape the admin types them; the profile stores the canonical
// +998XXXXXXXXX form.

import (
	"regexp"
	"strings"
)

var uzbekPhoneRe = regexp.MustCompile(`^\+998[0-9]{9}$`)

// Common Uzbek mobile operator prefixes, keyed by the two digits after +998.
var uzbekOperators = map[string]string{
	"90": "Beeline",
	"91": "Beeline",
	"93": "Ucell",
	"94": "Ucell",
	"95": "UzMobile",
	"97": "Mobiuz",
	"99": "UzMobile",
}

// FormatUzbekPhone normalizes a phone number to the +998XXXXXXXXX form.
// Input that cannot be recognized is returned unchanged so the caller can
// decide whether to reject it.
func FormatUzbekPhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' || r == '+' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()

	switch {
	case strings.HasPrefix(cleaned, "+998"):
		return cleaned
	case strings.HasPrefix(cleaned, "998"):
		return "+" + cleaned
	case strings.HasPrefix(cleaned, "9") && len(cleaned) == 9:
		// bare mobile number like 901234567
		return "+998" + cleaned
	case len(cleaned) >= 12:
		return "+" + strings.TrimPrefix(cleaned, "+")
	}
	return phone
}

// ValidateUzbekPhone reports whether the number normalizes to a valid Uzbek
// mobile number (+998 followed by nine digits).
func ValidateUzbekPhone(phone string) bool {
	return uzbekPhoneRe.MatchString(FormatUzbekPhone(phone))
}

// OperatorName returns the mobile operator for a normalized number, or
// "Unknown" when the prefix is not recognized.
func OperatorName(phone string) string {
	formatted := FormatUzbekPhone(phone)
	if strings.HasPrefix(formatted, "+998") && len(formatted) >= 6 {
		if op, ok := uzbekOperators[formatted[4:6]]; ok {
			return op
		}
	}
	return "Unknown"
}

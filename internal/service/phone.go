package service

import "strings"

// NormalizePhone returns the canonical chat address: country code followed by digits,
// no separators. ok is false when the input cannot be a mobile number.
func NormalizePhone(raw, countryCode string) (string, bool) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := strings.TrimLeft(b.String(), "0")

	switch {
	case strings.HasPrefix(digits, countryCode) && (len(digits) == len(countryCode)+10 || len(digits) == len(countryCode)+11):
		return digits, true
	case len(digits) == 11:
		return countryCode + digits, true
	case len(digits) == 10:
		// area code + 8-digit line: add the mobile marker
		return countryCode + digits[:2] + "9" + digits[2:], true
	}
	return "", false
}

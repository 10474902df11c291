package email

import "strings"

// Normalize lower-cases and trims an address. It does not validate.
func Normalize(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// Plausible reports whether a normalized address has a local part and a
// domain around a single "@". Anything stricter is left to the mail system.
func Plausible(normalized string) bool {
	at := strings.IndexByte(normalized, '@')
	if at <= 0 || at == len(normalized)-1 {
		return false
	}
	return strings.IndexByte(normalized[at+1:], '@') < 0
}

// Domain returns the part after "@", or "" if there is none.
func Domain(normalized string) string {
	if at := strings.LastIndexByte(normalized, '@'); at >= 0 {
		return normalized[at+1:]
	}
	return ""
}

// HasAt is the minimum shape check applied at ingestion boundaries.
func HasAt(raw string) bool {
	return strings.Contains(raw, "@")
}

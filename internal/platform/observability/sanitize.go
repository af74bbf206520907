package observability

import (
	"strings"
	"unicode"
)

const maxIdentifierLength = 64

// cleanField drops control characters and truncates value to limit runes.
func cleanField(value string, limit int) string {
	value = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, value)
	if runes := []rune(value); len(runes) > limit {
		value = string(runes[:limit])
	}
	return value
}

// SanitizeRoute returns a loggable chi route pattern.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return cleanField(route, 180)
}

// SanitizeMethod returns the upper-cased HTTP method.
func SanitizeMethod(method string) string {
	return strings.ToUpper(cleanField(method, 10))
}

// SanitizeIdentifier keeps only the characters product, version, session and user ids are made of.
func SanitizeIdentifier(id string) string {
	id = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-', r == '_', r == '.', r == ':', r == '@':
			return r
		default:
			return -1
		}
	}, strings.TrimSpace(id))
	if len(id) > maxIdentifierLength {
		id = id[:maxIdentifierLength]
	}
	return id
}

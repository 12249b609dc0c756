// Package logger provides structured logging for feoxd.
package logger

import (
	"log/slog"
	"strings"
)

// Key patterns whose string values are never written to the log.
// The configured password travels through config loading, CONFIG SET and
// AUTH handling; any attribute named after it gets masked.
var sensitiveKeyPatterns = []string{
	"password",
	"requirepass",
	"secret",
	"credential",
}

const redactedValue = "***REDACTED***"

// redactSensitive masks attributes whose key suggests secret content.
func redactSensitive(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindString {
		keyLower := strings.ToLower(a.Key)
		for _, pattern := range sensitiveKeyPatterns {
			if strings.Contains(keyLower, pattern) {
				if a.Value.String() != "" {
					return slog.String(a.Key, redactedValue)
				}
				break
			}
		}
	}

	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		newAttrs := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			newAttrs[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(newAttrs...)}
	}

	return a
}

// IsSensitiveKey checks if a key name suggests secret content.
func IsSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(keyLower, pattern) {
			return true
		}
	}
	return false
}

package logger

import (
	"log/slog"
	"strings"
)

// Masked replaces secret values in log output.
const Masked = "***REDACTED***"

// argon2Prefix starts a PHC password hash, which carries salt and digest.
const argon2Prefix = "$argon2id$"

// secretKeyParts mark an attribute as secret when its key contains one.
// Map keys, queue items and lock tokens are not secrets.
var secretKeyParts = []string{"password", "passwd", "secret", "credential", "auth", "bearer"}

// redact is the ReplaceAttr hook of every handler built by New. slog calls it
// for attributes nested in groups too.
func redact(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindString {
		return a
	}
	v := a.Value.String()
	switch {
	case strings.HasPrefix(v, argon2Prefix):
		return slog.String(a.Key, argon2Prefix+"***")
	case v != "" && SecretKey(a.Key):
		return slog.String(a.Key, Masked)
	}
	return a
}

// SecretKey reports whether values logged under key are masked.
func SecretKey(key string) bool {
	key = strings.ToLower(key)
	for _, part := range secretKeyParts {
		if strings.Contains(key, part) {
			return true
		}
	}
	return false
}

package logging

import (
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

// Mask is the placeholder written in place of a sensitive value.
const Mask = "****"

var sensitiveKeys = map[string]struct{}{
	"password":      {},
	"token":         {},
	"access_token":  {},
	"refresh_token": {},
	"api_key":       {},
	"x-api-key":     {},
	"authorization": {},
	"cookie":        {},
	"set-cookie":    {},
	"secret":        {},
}

var suffixKeys = map[string]struct{}{
	"api_key":   {},
	"x-api-key": {},
}

// IsSensitive reports whether values stored under key must be redacted.
func IsSensitive(key string) bool {
	_, ok := sensitiveKeys[normalizeKey(key)]
	return ok
}

// MaskKey hides all but the last four characters of a key. Keys shorter
// than eight characters are fully masked.
func MaskKey(key string) string {
	if len(key) < 8 {
		return Mask
	}
	return "***" + key[len(key)-4:]
}

// Redact masks value when key is sensitive and otherwise walks nested maps
// and slices, masking any sensitive keys found on the way.
func Redact(key string, value any) any {
	if IsSensitive(key) {
		return maskValue(key, value)
	}

	switch v := value.(type) {
	case map[string]any:
		return RedactMap(v)
	case logrus.Fields:
		return RedactMap(map[string]any(v))
	case map[string]string:
		out := make(map[string]any, len(v))
		for k, nested := range v {
			out[k] = Redact(k, nested)
		}
		return out
	case http.Header:
		return redactMultiMap(v)
	case map[string][]string:
		return redactMultiMap(v)
	case []any:
		out := make([]any, len(v))
		for i, nested := range v {
			out[i] = Redact("", nested)
		}
		return out
	}

	return value
}

// RedactMap returns a redacted copy of fields.
func RedactMap(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = Redact(k, v)
	}
	return out
}

func redactMultiMap(values map[string][]string) map[string]any {
	out := make(map[string]any, len(values))
	for k, vs := range values {
		if IsSensitive(k) {
			out[k] = maskValue(k, strings.Join(vs, ","))
			continue
		}
		if len(vs) == 1 {
			out[k] = vs[0]
			continue
		}
		out[k] = vs
	}
	return out
}

func maskValue(key string, value any) any {
	if _, keepSuffix := suffixKeys[normalizeKey(key)]; keepSuffix {
		if s, ok := value.(string); ok {
			return MaskKey(s)
		}
	}
	return Mask
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

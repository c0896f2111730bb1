package audit

import "strings"

// MaskedValue replaces the value of any secret-named field.
const MaskedValue = "***MASKED***"

// secretKeySubstrings are matched case-insensitively against field names.
// A key containing any of them has its value masked.
var secretKeySubstrings = []string{
	"password",
	"token",
	"apitoken",
	"api_token",
	"secret",
	"ssh_password",
	"sr_password",
	"central_api_token",
}

// IsSecretKey reports whether a field name looks like it holds a secret.
func IsSecretKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range secretKeySubstrings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// Redact returns a deep copy of v with every secret-named field masked.
// Maps and slices are walked recursively; scalars pass through unchanged.
func Redact(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			if IsSecretKey(k) {
				out[k] = MaskedValue
				continue
			}
			out[k] = Redact(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = Redact(item)
		}
		return out
	default:
		return v
	}
}

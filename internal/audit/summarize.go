package audit

import (
	"encoding/json"
	"math"
	"sort"
)

// Oversized request/response bodies are replaced by a compact summary so
// the audit trail stays readable when intermediate results grow to tens
// of megabytes.
const (
	// RequestBodyLimit is the maximum outbound body size logged verbatim.
	RequestBodyLimit = 2 * 1024

	// ResponseBodyLimit is the maximum inbound body size logged verbatim.
	ResponseBodyLimit = 5 * 1024

	// smallArgsLimit is the maximum serialized size of an args block kept
	// inline inside a body summary.
	smallArgsLimit = 1024
)

// SummarizeRequestBody applies the outbound size policy: bodies up to
// 2 KB are returned redacted, larger bodies become a summary object.
func SummarizeRequestBody(body map[string]interface{}) interface{} {
	return summarizeBody(body, RequestBodyLimit, false)
}

// SummarizeResponseBody applies the inbound size policy (5 KB threshold,
// with an extra sizeMB field on the summary).
func SummarizeResponseBody(body map[string]interface{}) interface{} {
	return summarizeBody(body, ResponseBodyLimit, true)
}

func summarizeBody(body map[string]interface{}, limit int, includeMB bool) interface{} {
	raw, err := json.Marshal(body)
	if err != nil {
		return map[string]interface{}{"_unserializable": true}
	}
	if len(raw) <= limit {
		return Redact(body)
	}

	size := len(raw)
	summary := map[string]interface{}{
		"_truncated": true,
		"sizeBytes":  size,
		"sizeKB":     roundTo(float64(size)/1024, 2),
	}
	if includeMB {
		summary["sizeMB"] = roundTo(float64(size)/(1024*1024), 2)
	}

	if args, ok := body["args"].(map[string]interface{}); ok {
		if argsRaw, err := json.Marshal(args); err == nil && len(argsRaw) <= smallArgsLimit {
			summary["args"] = Redact(args)
		} else {
			summary["args"] = map[string]interface{}{"keys": sortedKeys(args)}
		}
	}

	if results, ok := body["results"].(map[string]interface{}); ok {
		resultsRaw, _ := json.Marshal(results)
		keys := sortedKeys(results)
		total := len(keys)
		if len(keys) > 10 {
			keys = keys[:10]
		}
		summary["results"] = map[string]interface{}{
			"sizeBytes": len(resultsRaw),
			"keys":      keys,
			"totalKeys": total,
		}
	}

	return summary
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func roundTo(v float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(v*factor) / factor
}

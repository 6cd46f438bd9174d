// Package webhook delivers normalized submissions to the external intake
// endpoint. This file isolates the response-classification heuristic: the
// spreadsheet webhook is an uncontrolled collaborator whose replies vary
// between a literal "true", JSON envelopes, and opaque non-JSON bodies, so
// the sniffing lives behind one narrow function that can be tightened or
// replaced without touching the dispatcher or orchestration.
package webhook

import (
	"encoding/json"
	"strings"
)

// Classify reports whether a webhook reply counts as a confirmed delivery.
//
// Rules, in priority order:
//  1. Body is the literal "true" (case-insensitive, optionally quoted).
//  2. Body parses as JSON and is `true` or carries {"success": true}.
//  3. Body is not parseable JSON but the transport status is 2xx
//     (lenient fallback for endpoints that return plain text or nothing).
//  4. Anything else is a failure.
//
// A body that parses as JSON but fails rule 2 is a failure even on a 2xx
// status: the endpoint answered structurally and said no.
func Classify(statusCode int, body []byte) bool {
	s := strings.TrimSpace(string(body))

	if strings.EqualFold(strings.Trim(s, `"'`), "true") {
		return true
	}

	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		switch t := v.(type) {
		case bool:
			return t
		case map[string]any:
			ok, _ := t["success"].(bool)
			return ok
		default:
			return false
		}
	}

	return statusCode >= 200 && statusCode < 300
}

// abbreviate caps a response body for log lines. Raw bodies can be arbitrary
// remote output and must never be logged in full.
func abbreviate(body []byte, max int) string {
	s := strings.TrimSpace(string(body))
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

// Package modeljson turns loosely formatted vision-model answers into
// detection results.
package modeljson

import (
	"encoding/json"
	"strings"

	"github.com/menta2k/dental-vision/pkg/types"
)

// ParseDetectionResult parses the JSON answer of a vision model.
// Answers without usable JSON yield an empty result whose Description says why;
// the model is an external collaborator and a bad answer is not a caller error.
func ParseDetectionResult(raw string) *types.DetectionResult {
	raw = Sanitize(raw)

	if !strings.HasPrefix(raw, "{") {
		return &types.DetectionResult{Description: "model returned non-JSON response"}
	}

	var result types.DetectionResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return &types.DetectionResult{Description: "failed to parse model response"}
	}
	if result.Findings == nil {
		result.Findings = []types.Finding{}
	}
	return &result
}

// Sanitize removes code fences, comments, and trailing commas from a JSON answer
// and keeps only the outermost object. String literals are left untouched.
func Sanitize(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = stripComments(raw)

	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}

// stripComments drops // and /* */ comments and commas before a closing
// bracket, skipping over JSON string literals.
func stripComments(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch {
		case c == '"':
			inString = true
			b.WriteByte(c)
		case strings.HasPrefix(s[i:], "//"):
			end := strings.IndexByte(s[i:], '\n')
			if end < 0 {
				return b.String()
			}
			i += end - 1
		case strings.HasPrefix(s[i:], "/*"):
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				return b.String()
			}
			i += end + 3
		case c == ',' && closesNext(s[i+1:]):
			// trailing comma
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// closesNext reports whether the next significant character of s closes an
// object or array. Comments in between are skipped.
func closesNext(s string) bool {
	s = strings.TrimLeft(s, " \t\r\n")
	for strings.HasPrefix(s, "//") || strings.HasPrefix(s, "/*") {
		if strings.HasPrefix(s, "//") {
			end := strings.IndexByte(s, '\n')
			if end < 0 {
				return false
			}
			s = s[end:]
		} else {
			end := strings.Index(s[2:], "*/")
			if end < 0 {
				return false
			}
			s = s[end+4:]
		}
		s = strings.TrimLeft(s, " \t\r\n")
	}
	return strings.HasPrefix(s, "}") || strings.HasPrefix(s, "]")
}

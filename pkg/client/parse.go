package client

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/menta2k/headshot/pkg/types"
)

// ParseAnalysisResult parses the JSON answer of a vision model. Output that
// cannot be parsed is reported as types.ErrInvalidDetection; no default box
// is ever substituted.
func ParseAnalysisResult(raw string) (*types.AnalysisResult, error) {
	cleaned := SanitizeModelJSON(raw)
	if !strings.HasPrefix(cleaned, "{") {
		return nil, fmt.Errorf("%w: model returned non-JSON response: %.80q", types.ErrInvalidDetection, raw)
	}

	var result types.AnalysisResult
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidDetection, err)
	}

	return &result, nil
}

// SanitizeModelJSON strips code fences and surrounding prose. Comments and
// trailing commas are removed only when the answer is not already valid
// JSON, and never inside string literals.
func SanitizeModelJSON(raw string) string {
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
	raw = strings.Trim(strings.TrimSpace(raw), "`")

	if obj := outermostObject(raw); json.Valid([]byte(obj)) {
		return obj
	}
	return outermostObject(stripJSONNoise(raw))
}

// outermostObject keeps the text from the first '{' to the last '}'.
func outermostObject(s string) string {
	if start := strings.Index(s, "{"); start >= 0 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = s[start : end+1]
		}
	}
	return strings.TrimSpace(s)
}

// stripJSONNoise drops // and /* */ comments and commas before a closing
// bracket, leaving string literals untouched.
func stripJSONNoise(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			b.WriteByte(ch)
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch {
		case ch == '"':
			inString = true
			b.WriteByte(ch)
		case ch == '/' && i+1 < len(s) && s[i+1] == '/':
			for i < len(s) && s[i] != '\n' {
				i++
			}
			if i < len(s) {
				b.WriteByte('\n')
			}
		case ch == '/' && i+1 < len(s) && s[i+1] == '*':
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				i = len(s)
			} else {
				i += end + 3
			}
		case ch == ',':
			j := i + 1
			for j < len(s) && strings.IndexByte(" \t\r\n", s[j]) >= 0 {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
			b.WriteByte(ch)
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

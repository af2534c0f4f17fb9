// Package observability provides structured logging with sensitive
// data redaction, request ID propagation and OpenTelemetry tracing.
package observability

import (
	"regexp"
	"strings"
)

// Redactor masks sensitive data before it reaches logs.
type Redactor struct {
	patterns []*redactPattern
}

type redactPattern struct {
	regex       *regexp.Regexp
	replacement string
}

// NewRedactor creates a redactor covering the credentials this service
// actually holds: LLM API keys, provider API keys and bearer tokens.
func NewRedactor() *Redactor {
	r := &Redactor{}
	r.AddPattern(`sk-[a-zA-Z0-9\-_]{20,}`, "[REDACTED_LLM_KEY]")
	r.AddPattern(`api_key=[a-zA-Z0-9]+`, "api_key=[REDACTED]")
	r.AddPattern(`\b[a-f0-9]{32}\b`, "[REDACTED_API_KEY]")
	r.AddPattern(`Bearer\s+[a-zA-Z0-9\-_\.]+`, "Bearer [REDACTED]")
	r.AddPattern(`Authorization:\s*\S+`, "Authorization: [REDACTED]")
	return r
}

// AddPattern adds a custom redaction pattern. Invalid patterns are
// skipped.
func (r *Redactor) AddPattern(pattern, replacement string) {
	regex, err := regexp.Compile(pattern)
	if err != nil {
		return
	}
	r.patterns = append(r.patterns, &redactPattern{regex: regex, replacement: replacement})
}

// Redact applies all patterns to the input.
func (r *Redactor) Redact(input string) string {
	result := input
	for _, p := range r.patterns {
		result = p.regex.ReplaceAllString(result, p.replacement)
	}
	return result
}

// RedactHeaders masks sensitive HTTP headers wholesale.
func (r *Redactor) RedactHeaders(headers map[string][]string) map[string][]string {
	sensitive := map[string]bool{
		"authorization": true,
		"x-api-key":     true,
		"api-key":       true,
		"cookie":        true,
		"set-cookie":    true,
	}

	result := make(map[string][]string, len(headers))
	for k, v := range headers {
		if sensitive[strings.ToLower(k)] {
			result[k] = []string{"[REDACTED]"}
		} else {
			result[k] = v
		}
	}
	return result
}

package service

import "regexp"

// RedactedValue replaces any credential-looking value in persisted log
// messages.
const RedactedValue = "(redacted)"

// sensitivePatterns match key=value / key: value shapes for common credential
// keys, plus bare bearer tokens. Values are replaced, keys are kept so the
// message stays readable.
var sensitivePatterns = []struct {
	re   *regexp.Regexp
	repl string
}{
	{
		re:   regexp.MustCompile(`(?i)\b(password|passwd|secret|token|api[_-]?key|authorization|private[_-]?key)(["']?\s*[:=]\s*["']?)[^\s"',;&]+`),
		repl: "${1}${2}" + RedactedValue,
	},
	{
		re:   regexp.MustCompile(`(?i)\b(bearer)\s+[a-z0-9._~+/-]+=*`),
		repl: "${1} " + RedactedValue,
	},
}

// Redact masks credential values embedded in a log message.
func Redact(message string) string {
	for _, p := range sensitivePatterns {
		message = p.re.ReplaceAllString(message, p.repl)
	}
	return message
}

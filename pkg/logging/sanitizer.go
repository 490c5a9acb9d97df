package logging

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// MaxQueryLogLength is the maximum length of a query to log
	MaxQueryLogLength = 100
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

var (
	// ODBC allows a braced value containing delimiters, with '}' doubled
	// inside: PWD={a;b}, PWD={a}}b}
	bracedPasswordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=\{(?:[^}]|\}\})*\}`)

	// ODBC values run to the terminating ';' and may contain spaces
	odbcPasswordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;\n]+;`)

	// Matches: password=xxx, pwd=xxx, pass=xxx (until next delimiter)
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Connection string credentials in URL form (user:pass@host)
	connStringPattern = regexp.MustCompile(`://[^:]+:[^@]+@[^/\s]+`)

	// Option keys whose values never reach a log line
	sensitiveKeys = map[string]struct{}{
		"password":          {},
		"pwd":               {},
		"pass":              {},
		"connection_string": {},
	}
)

func redactPasswords(s string) string {
	s = bracedPasswordPattern.ReplaceAllString(s, "${1}="+RedactedText)
	s = odbcPasswordPattern.ReplaceAllString(s, "${1}="+RedactedText+";")
	return passwordPattern.ReplaceAllString(s, "${1}="+RedactedText)
}

// SanitizeConnectionString removes sensitive data from connection strings.
// Use this before logging any ODBC or URL connection string.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}

	sanitized := redactPasswords(connStr)
	return connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
}

// SanitizeError sanitizes error messages that might contain sensitive data.
// Drivers echo the connection string on some failures, so every error from
// a gateway goes through here before it is logged.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeConnectionString(err.Error())
}

// SanitizeQuery truncates and sanitizes a SQL statement for logging.
func SanitizeQuery(query string) string {
	if query == "" {
		return ""
	}

	sanitized := TruncateString(query, MaxQueryLogLength)
	return redactPasswords(sanitized)
}

// SanitizeOptions returns a copy of a connection option map with secret
// values replaced, suitable for zap.Any.
func SanitizeOptions(opts map[string]any) map[string]string {
	out := make(map[string]string, len(opts))
	for k, v := range opts {
		if _, secret := sensitiveKeys[strings.ToLower(k)]; secret {
			out[k] = RedactedText
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	return out
}

// TruncateString truncates a string to maxLen and adds ellipsis if needed
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

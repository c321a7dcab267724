// Package security provides masking helpers for logging configuration and errors.
package security

import (
	"regexp"
)

const redacted = "***REDACTED***"

var arnAccount = regexp.MustCompile(`^(arn:[^:]*:[^:]*:[^:]*:)(\d{12})(:.*)?$`)

// SensitivePatterns contains regex patterns for credentials that may leak into error text
var SensitivePatterns = []*regexp.Regexp{
	// AWS access key IDs
	regexp.MustCompile(`\b((?:AKIA|ASIA)[0-9A-Z]{16})\b`),
	// Secret keys and session tokens in key=value form
	regexp.MustCompile(`(?i)((?:aws_)?(?:secret_access_key|session_token|secret|token)[=:]\s*["']?)([A-Za-z0-9/+=_-]{16,})["']?`),
	// Pre-signed request signatures
	regexp.MustCompile(`(?i)(X-Amz-Signature=)([0-9a-f]+)`),
}

// MaskARN masks all but the last four digits of the account ID in arn. Strings that are
// not ARNs with a 12-digit account are returned unchanged.
func MaskARN(arn string) string {
	m := arnAccount.FindStringSubmatch(arn)
	if m == nil {
		return arn
	}
	return m[1] + "********" + m[2][8:] + m[3]
}

// MaskARNs returns a copy of arns with every account ID masked
func MaskARNs(arns []string) []string {
	if arns == nil {
		return nil
	}
	out := make([]string, len(arns))
	for i, arn := range arns {
		out[i] = MaskARN(arn)
	}
	return out
}

// MaskSensitiveData masks credentials in a string using pattern matching
func MaskSensitiveData(data string) string {
	result := data

	for _, pattern := range SensitivePatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			// Keep the key name, mask the value
			parts := pattern.FindStringSubmatch(match)
			if len(parts) >= 3 {
				return parts[1] + redacted
			}
			return redacted
		})
	}

	return result
}

// SanitizeError removes sensitive data from error messages
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return MaskSensitiveData(err.Error())
}

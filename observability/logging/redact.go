package logging

import "strings"

// RedactedValue is the placeholder substituted for credentials in logs.
const RedactedValue = "[REDACTED]"

// MaskValue masks non-empty secrets such as the Blockfrost project ID before
// they reach log output. Empty values pass through unchanged so startup logs
// still show which credentials are absent.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

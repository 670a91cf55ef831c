package main

import "strings"

// formatStatusLabel converts snake_case or hyphenated identifiers into
// space-separated title case for table output.
func formatStatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return ""
	}
	parts := strings.FieldsFunc(status, func(r rune) bool {
		return r == '_' || r == '-'
	})
	for i, part := range parts {
		lower := strings.ToLower(part)
		parts[i] = strings.ToUpper(lower[:1]) + lower[1:]
	}
	return strings.Join(parts, " ")
}

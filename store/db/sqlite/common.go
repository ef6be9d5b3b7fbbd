package sqlite

import (
	"strings"
)

// placeholder returns a placeholder for SQLite (uses ?)
func placeholder(_ int) string {
	return "?"
}

// placeholders returns n placeholders for SQLite
func placeholders(n int) string {
	list := []string{}
	for i := 0; i < n; i++ {
		list = append(list, placeholder(i+1))
	}
	return strings.Join(list, ", ")
}

// boolToInt converts a bool to the 0/1 integer SQLite columns store.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// orJSONArray returns the value or an empty JSON array when blank, keeping
// JSON columns parseable.
func orJSONArray(value string) string {
	if strings.TrimSpace(value) == "" {
		return "[]"
	}
	return value
}

// orJSONObject returns the value or an empty JSON object when blank.
func orJSONObject(value string) string {
	if strings.TrimSpace(value) == "" {
		return "{}"
	}
	return value
}

// ftsQuery converts free text into an FTS5 query: each token is quoted so
// user input cannot inject FTS operators, and tokens are ANDed.
func ftsQuery(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	quoted := make([]string, 0, len(fields))
	for _, field := range fields {
		quoted = append(quoted, `"`+strings.ReplaceAll(field, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " ")
}

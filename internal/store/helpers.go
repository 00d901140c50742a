package store

import (
	"encoding/json"
	"strings"
)

// placeholderList returns "?,?,?" for n placeholders.
func placeholderList(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

// stringsToArgs converts []string to []any for use with database/sql.
func stringsToArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// marshalArgs converts []string to JSON text for storage.
func marshalArgs(args []string) string {
	if len(args) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(args)
	return string(b)
}

// unmarshalArgs converts JSON text back to []string.
func unmarshalArgs(s string) []string {
	if s == "" || s == "null" {
		return nil
	}
	var args []string
	_ = json.Unmarshal([]byte(s), &args)
	return args
}

package internal

import (
	"strings"

	"github.com/jackc/pgx/v5"
)

// sanitizeIdentifier quotes a possibly schema-qualified table name.
func sanitizeIdentifier(name string) string {
	if name == "" {
		return ""
	}
	parts := strings.Split(name, ".")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.Trim(part, " \"")
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}
	if len(clean) == 0 {
		clean = []string{name}
	}
	return pgx.Identifier(clean).Sanitize()
}

// indexName derives an index name from a table name and suffix.
func indexName(table, suffix string) string {
	base := strings.ReplaceAll(table, ".", "_")
	base = strings.ReplaceAll(base, `"`, "")
	return sanitizeIdentifier(base + "_" + suffix + "_idx")
}

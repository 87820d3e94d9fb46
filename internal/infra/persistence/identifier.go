package persistence

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/hoamxTrav/hoamx-watcher-agent/internal/domain/repository"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// ValidIdentifier reports whether name can be used as a schema, table or
// column name.
func ValidIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

func quoteIdentifier(name string) string {
	name = strings.ReplaceAll(name, "\x00", "")
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func qualifiedTable(schema, table string) (string, error) {
	if !ValidIdentifier(schema) {
		return "", fmt.Errorf("%w: schema %q", repository.ErrInvalidIdentifier, schema)
	}
	if !ValidIdentifier(table) {
		return "", fmt.Errorf("%w: table %q", repository.ErrInvalidIdentifier, table)
	}
	return quoteIdentifier(schema) + "." + quoteIdentifier(table), nil
}

const maxErrorLength = 4000

func truncate(msg string, max int) string {
	if utf8.RuneCountInString(msg) <= max {
		return msg
	}
	runes := []rune(msg)
	return string(runes[:max])
}

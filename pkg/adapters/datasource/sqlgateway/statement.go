package sqlgateway

import (
	"strings"
	"unicode"
)

// StatementRoute decides how a statement is sent and reported.
type StatementRoute struct {
	// Tag is the lower-case leading keyword, e.g. "select", "insert", "create".
	Tag string
	// Query statements are read with QueryContext; the rest use ExecContext.
	Query bool
	// Selected results are reported as SelectedRows rather than OtherTagged.
	Selected bool
	// Updates reports RowsAffected as an UpdatedCount.
	Updates bool
}

var (
	selectKeywords = map[string]bool{"select": true, "with": true, "values": true, "table": true}
	rowKeywords    = map[string]bool{"show": true, "describe": true, "desc": true, "explain": true, "pragma": true, "exists": true}
	updateKeywords = map[string]bool{"insert": true, "update": true, "delete": true, "replace": true, "merge": true, "upsert": true}
)

// Route classifies statement by its leading keyword. Leading whitespace,
// comments and opening parentheses are skipped.
func Route(statement string) StatementRoute {
	tag := leadingKeyword(statement)
	switch {
	case selectKeywords[tag]:
		return StatementRoute{Tag: tag, Query: true, Selected: true}
	case rowKeywords[tag]:
		return StatementRoute{Tag: tag, Query: true}
	case updateKeywords[tag]:
		return StatementRoute{Tag: tag, Updates: true}
	default:
		return StatementRoute{Tag: tag}
	}
}

func leadingKeyword(s string) string {
	for {
		s = strings.TrimLeftFunc(s, func(r rune) bool { return unicode.IsSpace(r) || r == '(' })
		switch {
		case strings.HasPrefix(s, "--"):
			i := strings.IndexByte(s, '\n')
			if i < 0 {
				return ""
			}
			s = s[i+1:]
		case strings.HasPrefix(s, "/*"):
			i := strings.Index(s, "*/")
			if i < 0 {
				return ""
			}
			s = s[i+2:]
		default:
			end := strings.IndexFunc(s, func(r rune) bool {
				return !unicode.IsLetter(r) && r != '_'
			})
			if end < 0 {
				end = len(s)
			}
			return strings.ToLower(s[:end])
		}
	}
}

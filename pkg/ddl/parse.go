// pkg/ddl/parse.go
package ddl

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/David-Botos/snowplan/pkg/model"
)

var createTableRe = regexp.MustCompile(`(?is)^\s*create\s+(or\s+replace\s+)?` +
	`((local|global|transient|temporary|temp|volatile)\s+)*table\b`)

var ctasRe = regexp.MustCompile(`(?i)\bas\s*$`)

// Keywords that terminate a column's type expression. Everything between the
// column name and the first of these belongs to the type string.
var columnStopWords = map[string]bool{
	"not":           true,
	"null":          true,
	"default":       true,
	"primary":       true,
	"unique":        true,
	"references":    true,
	"check":         true,
	"comment":       true,
	"collate":       true,
	"identity":      true,
	"autoincrement": true,
	"constraint":    true,
	"masking":       true,
	"tag":           true,
	"with":          true,
	"as":            true,
}

// Table-level constraint clauses that appear in the column list but do not
// define a column.
var tableConstraintWords = map[string]bool{
	"primary":    true,
	"foreign":    true,
	"unique":     true,
	"constraint": true,
	"check":      true,
	"key":        true,
}

// ParseColumns decomposes a single CREATE TABLE statement into a map of
// lowercase column name to lowercase type string. It fails with a parse
// fault when the statement is not a table definition; callers degrade the
// affected plan item to replacement instead of aborting.
func ParseColumns(sql string) (map[string]string, error) {
	if !createTableRe.MatchString(sql) {
		return nil, model.NewFault(model.KindParse,
			fmt.Errorf("statement is not a CREATE TABLE definition"))
	}

	body, start, err := columnListBody(sql)
	if err != nil {
		return nil, model.NewFault(model.KindParse, err)
	}
	if ctasRe.MatchString(sql[:start]) {
		return nil, model.NewFault(model.KindParse,
			fmt.Errorf("CREATE TABLE AS SELECT has no explicit column list"))
	}

	columns := make(map[string]string)
	for _, segment := range splitTopLevel(body) {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}

		name, rest, quoted := leadingIdentifier(segment)
		if name == "" {
			return nil, model.NewFault(model.KindParse,
				fmt.Errorf("cannot read column name from %q", segment))
		}
		if !quoted && tableConstraintWords[strings.ToLower(name)] {
			continue
		}

		colType := typeExpression(rest)
		if colType == "" {
			return nil, model.NewFault(model.KindParse,
				fmt.Errorf("column %q has no type", name))
		}

		columns[strings.ToLower(name)] = normalizeType(colType)
	}

	if len(columns) == 0 {
		return nil, model.NewFault(model.KindParse,
			fmt.Errorf("table definition contains no columns"))
	}

	return columns, nil
}

// columnListBody extracts the text inside the outermost parens of the
// CREATE TABLE statement, returning the paren's position so callers can
// inspect what preceded it.
func columnListBody(sql string) (string, int, error) {
	start := -1
	depth := 0
	inString := false
	inIdent := false

	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case inString:
			if c == '\'' {
				inString = false
			}
		case inIdent:
			if c == '"' {
				inIdent = false
			}
		case c == '\'':
			inString = true
		case c == '"':
			inIdent = true
		case c == '(':
			if depth == 0 {
				start = i + 1
			}
			depth++
		case c == ')':
			depth--
			if depth == 0 {
				return sql[start:i], start - 1, nil
			}
		}
	}

	return "", 0, fmt.Errorf("no column list found")
}

// splitTopLevel splits the column list body on commas at paren depth zero,
// ignoring commas inside strings and quoted identifiers.
func splitTopLevel(body string) []string {
	var segments []string
	depth := 0
	inString := false
	inIdent := false
	last := 0

	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case inString:
			if c == '\'' {
				inString = false
			}
		case inIdent:
			if c == '"' {
				inIdent = false
			}
		case c == '\'':
			inString = true
		case c == '"':
			inIdent = true
		case c == '(':
			depth++
		case c == ')':
			depth--
		case c == ',' && depth == 0:
			segments = append(segments, body[last:i])
			last = i + 1
		}
	}
	segments = append(segments, body[last:])

	return segments
}

// leadingIdentifier reads the first identifier of a column segment,
// honoring double quotes, and returns it with the remaining text.
func leadingIdentifier(segment string) (name, rest string, quoted bool) {
	segment = strings.TrimSpace(segment)
	if segment == "" {
		return "", "", false
	}

	if segment[0] == '"' {
		end := strings.IndexByte(segment[1:], '"')
		if end < 0 {
			return "", "", false
		}
		return segment[1 : end+1], segment[end+2:], true
	}

	end := len(segment)
	for i := 0; i < len(segment); i++ {
		c := segment[i]
		if !isIdentByte(c) {
			end = i
			break
		}
	}
	return segment[:end], segment[end:], false
}

// typeExpression reads the type portion of a column segment: every token up
// to the first column-constraint keyword at paren depth zero.
func typeExpression(rest string) string {
	rest = strings.TrimSpace(rest)
	depth := 0
	end := len(rest)

	for i := 0; i < len(rest); i++ {
		c := rest[i]
		switch c {
		case '(':
			depth++
		case ')':
			depth--
		default:
			if depth == 0 && isIdentByte(c) && (i == 0 || !isIdentByte(rest[i-1])) {
				j := i
				for j < len(rest) && isIdentByte(rest[j]) {
					j++
				}
				if columnStopWords[strings.ToLower(rest[i:j])] {
					end = i
					i = len(rest)
				}
			}
		}
		if end != len(rest) {
			break
		}
	}

	return strings.TrimSpace(rest[:end])
}

// normalizeType lowercases a type expression and canonicalizes its spacing
// so textually equivalent types compare equal.
func normalizeType(t string) string {
	t = strings.ToLower(strings.Join(strings.Fields(t), " "))
	t = strings.ReplaceAll(t, "( ", "(")
	t = strings.ReplaceAll(t, " )", ")")
	t = strings.ReplaceAll(t, " ,", ",")
	t = strings.ReplaceAll(t, ", ", ",")
	return t
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}

// pkg/ddl/rewrite.go
package ddl

import "strings"

// Rewriter retargets definitions at a prefixed database when deploying to a
// non-production environment. The zero value performs no rewriting.
type Rewriter struct {
	prefix string
}

// NewRewriter builds a rewriter from the active environment. Production
// deployments and environments without a database prefix leave definitions
// untouched.
func NewRewriter(environment, databasePrefix string) Rewriter {
	if strings.EqualFold(environment, "prod") || databasePrefix == "" {
		return Rewriter{}
	}
	return Rewriter{prefix: databasePrefix}
}

// Enabled reports whether the rewriter changes anything.
func (r Rewriter) Enabled() bool { return r.prefix != "" }

// Database returns the environment's name for db.
func (r Rewriter) Database(db string) string {
	if r.prefix == "" || db == "" {
		return db
	}
	return r.prefix + db
}

// DDL rewrites every database-qualifier reference to db inside sql.
func (r Rewriter) DDL(db, sql string) string {
	if r.prefix == "" || db == "" {
		return sql
	}
	return ReplaceDatabase(sql, db, r.prefix+db)
}

// FQN retargets a dotted object name when its leading segment is db.
// A bare database name (the fqn of a database object) is prefixed too.
func (r Rewriter) FQN(db, fqn string) string {
	if r.prefix == "" || db == "" {
		return fqn
	}
	if strings.EqualFold(fqn, db) {
		return r.prefix + fqn
	}
	if strings.HasPrefix(strings.ToLower(fqn), strings.ToLower(db)+".") {
		return r.prefix + db + fqn[len(db):]
	}
	return fqn
}

// ReplaceDatabase rewrites oldDB as newDB wherever it appears as the
// database qualifier of a dotted name. Occurrences inside string literals,
// comments, or in schema and object positions are left untouched.
func ReplaceDatabase(sql, oldDB, newDB string) string {
	if oldDB == "" || strings.EqualFold(oldDB, newDB) {
		return sql
	}

	var out strings.Builder
	out.Grow(len(sql) + len(newDB))

	var prev byte
	i := 0
	n := len(sql)

	for i < n {
		c := sql[i]
		switch {
		case c == '\'':
			j := scanQuoted(sql, i, '\'')
			out.WriteString(sql[i:j])
			prev = '\''
			i = j

		case c == '"':
			j := scanQuoted(sql, i, '"')
			if j > i+1 && sql[j-1] == '"' {
				ident := sql[i+1 : j-1]
				if strings.EqualFold(ident, oldDB) && prev != '.' && nextSignificant(sql, j) == '.' {
					out.WriteByte('"')
					out.WriteString(newDB)
					out.WriteByte('"')
					prev = '"'
					i = j
					continue
				}
			}
			out.WriteString(sql[i:j])
			prev = '"'
			i = j

		case c == '-' && i+1 < n && sql[i+1] == '-':
			j := i
			for j < n && sql[j] != '\n' {
				j++
			}
			out.WriteString(sql[i:j])
			i = j

		case c == '/' && i+1 < n && sql[i+1] == '*':
			j := i + 2
			for j+1 < n && !(sql[j] == '*' && sql[j+1] == '/') {
				j++
			}
			if j+1 < n {
				j += 2
			} else {
				j = n
			}
			out.WriteString(sql[i:j])
			i = j

		case isIdentByte(c):
			j := i
			for j < n && isIdentByte(sql[j]) {
				j++
			}
			word := sql[i:j]
			if strings.EqualFold(word, oldDB) && prev != '.' && nextSignificant(sql, j) == '.' {
				out.WriteString(newDB)
			} else {
				out.WriteString(word)
			}
			prev = word[len(word)-1]
			i = j

		default:
			out.WriteByte(c)
			if !isSpaceByte(c) {
				prev = c
			}
			i++
		}
	}

	return out.String()
}

// scanQuoted returns the index just past a quoted region starting at i,
// honoring doubled-quote escapes.
func scanQuoted(sql string, i int, quote byte) int {
	j := i + 1
	n := len(sql)
	for j < n {
		if sql[j] == quote {
			if j+1 < n && sql[j+1] == quote {
				j += 2
				continue
			}
			return j + 1
		}
		j++
	}
	return n
}

func nextSignificant(sql string, i int) byte {
	for ; i < len(sql); i++ {
		if !isSpaceByte(sql[i]) {
			return sql[i]
		}
	}
	return 0
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

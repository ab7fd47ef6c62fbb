// pkg/ddl/alter.go
package ddl

import (
	"fmt"
	"sort"
)

// GenerateAlter renders a column diff as ALTER TABLE statements against the
// given fully qualified table name. Adds come first, then drops, then type
// changes; within each group columns are sorted by name so repeated runs
// produce identical statement lists. A type change emits a comment line
// describing the transition followed by the SET DATA TYPE statement.
func GenerateAlter(fqn string, diff ColumnDiff) []string {
	statements := make([]string, 0, diff.Count())

	for _, name := range sortedKeys(diff.Added) {
		statements = append(statements,
			fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s;", fqn, name, diff.Added[name]))
	}

	for _, name := range sortedKeys(diff.Dropped) {
		statements = append(statements,
			fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s;", fqn, name))
	}

	modified := make([]string, 0, len(diff.Modified))
	for name := range diff.Modified {
		modified = append(modified, name)
	}
	sort.Strings(modified)
	for _, name := range modified {
		change := diff.Modified[name]
		statements = append(statements,
			fmt.Sprintf("-- Column %s type change from %s to %s", name, change.From, change.To))
		statements = append(statements,
			fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET DATA TYPE %s;", fqn, name, change.To))
	}

	return statements
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// pkg/ddl/diff.go
package ddl

// TypeChange records a column whose type differs between the live table and
// the desired definition.
type TypeChange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ColumnDiff is the column-level delta between two table definitions.
// Added and Dropped map column name to type; Modified maps column name to
// the type transition.
type ColumnDiff struct {
	Added    map[string]string     `json:"added"`
	Dropped  map[string]string     `json:"dropped"`
	Modified map[string]TypeChange `json:"modified"`
}

// Empty reports whether the two definitions have identical columns.
func (d ColumnDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Dropped) == 0 && len(d.Modified) == 0
}

// Count is the number of ALTER statements the diff expands to. Each type
// change contributes two: the comment marker and the SET DATA TYPE.
func (d ColumnDiff) Count() int {
	return len(d.Added) + len(d.Dropped) + 2*len(d.Modified)
}

// DiffColumns compares the live column map against the desired one.
func DiffColumns(current, desired map[string]string) ColumnDiff {
	diff := ColumnDiff{
		Added:    make(map[string]string),
		Dropped:  make(map[string]string),
		Modified: make(map[string]TypeChange),
	}

	for name, desiredType := range desired {
		currentType, ok := current[name]
		if !ok {
			diff.Added[name] = desiredType
			continue
		}
		if currentType != desiredType {
			diff.Modified[name] = TypeChange{From: currentType, To: desiredType}
		}
	}

	for name, currentType := range current {
		if _, ok := desired[name]; !ok {
			diff.Dropped[name] = currentType
		}
	}

	return diff
}

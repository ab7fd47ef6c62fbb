// pkg/state/layout.go
package state

import (
	"path/filepath"
	"strings"

	"github.com/David-Botos/snowplan/pkg/connector"
)

// Layout maps a listed object to its definition file under the sql root:
//
//	{root}/{account}/databases/{database}/schemas/{schema}/{type}/{name}.sql
//
// The same shape is what plan generation parses back out of file paths,
// so the segment count here and there must stay in sync.
type Layout struct {
	Root    string
	Account string
}

// ObjectPath returns the file path for one object's definition. The file
// name uses the clean name so procedure signatures never reach the
// filesystem.
func (l Layout) ObjectPath(objectType string, listing connector.ObjectListing) string {
	name := strings.TrimSpace(listing.CleanName)
	if name == "" {
		name = strings.TrimSpace(listing.Name)
	}
	name = strings.ToLower(name)

	return filepath.Join(
		l.Root,
		strings.ToLower(l.Account),
		"databases",
		strings.ToLower(listing.Database),
		"schemas",
		strings.ToLower(listing.Schema),
		strings.ToLower(objectType),
		name+".sql",
	)
}

// pkg/lineage/trace.go
package lineage

import (
	"fmt"
	"sort"
	"strings"

	"github.com/David-Botos/snowplan/pkg/model"
)

// Node is one object discovered during a lineage traversal. Depth is the
// distance from the traversal root, which sits at depth zero.
type Node struct {
	Key   string
	Type  string
	FQN   string
	Depth int
}

// Tracer walks a state snapshot looking for objects whose definitions
// reference a given object. The reference check is textual, not semantic:
// an edge exists when the parent's fully qualified name appears in the
// child's DDL, or when both objects share a schema and the parent's bare
// name followed by a space appears there. False positives are accepted;
// the tracer guards destructive operations, where over-reporting is the
// safe direction.
type Tracer struct {
	objects map[string]model.ObjectRecord
}

// NewTracer builds a tracer over a state snapshot.
func NewTracer(objects map[string]model.ObjectRecord) *Tracer {
	return &Tracer{objects: objects}
}

// Trace returns every object that transitively references the given one,
// in pre-order discovery order. The root itself is excluded. Keys are
// scanned in sorted order so repeated runs report dependents identically.
func (t *Tracer) Trace(objectType, fqn string) ([]Node, error) {
	rootKey := model.StateKey(objectType, fqn)
	root, ok := t.objects[rootKey]
	if !ok {
		return nil, fmt.Errorf("%s %s not found in state", objectType, fqn)
	}

	keys := make([]string, 0, len(t.objects))
	for k := range t.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	visited := map[string]bool{rootKey: true}
	var nodes []Node
	t.walk(root, 0, keys, visited, &nodes)
	return nodes, nil
}

func (t *Tracer) walk(parent model.ObjectRecord, depth int, keys []string, visited map[string]bool, nodes *[]Node) {
	for _, k := range keys {
		if visited[k] {
			continue
		}
		child := t.objects[k]
		if !references(parent, child) {
			continue
		}
		visited[k] = true
		*nodes = append(*nodes, Node{Key: k, Type: child.Type, FQN: child.FQN, Depth: depth + 1})
		t.walk(child, depth+1, keys, visited, nodes)
	}
}

// references reports whether child's definition mentions parent.
func references(parent, child model.ObjectRecord) bool {
	ddl := strings.ToLower(child.DDL)
	if strings.Contains(ddl, strings.ToLower(parent.FQN)) {
		return true
	}
	if child.Database == parent.Database && child.Schema == parent.Schema {
		return strings.Contains(ddl, strings.ToLower(parent.Name)+" ")
	}
	return false
}

// Keys projects a traversal onto its state keys, the shape carried by
// plan warnings.
func Keys(nodes []Node) []string {
	if len(nodes) == 0 {
		return nil
	}
	keys := make([]string, 0, len(nodes))
	for _, n := range nodes {
		keys = append(keys, n.Key)
	}
	return keys
}

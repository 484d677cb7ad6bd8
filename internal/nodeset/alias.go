package nodeset

import (
	"fmt"
	"strings"
)

// aliasTable maps file-local alias names to node ids. Aliases may be
// declared anywhere in the file, including after their first use, so
// lookups that miss are deferred and replayed once parsing is done.
type aliasTable struct {
	byName map[string]*Alias
}

func newAliasTable() *aliasTable {
	return &aliasTable{byName: make(map[string]*Alias)}
}

// add registers a new alias by name. The id arrives later via the
// finish event.
func (t *aliasTable) add(name string) (*Alias, error) {
	if name == "" {
		return nil, fmt.Errorf("alias without name")
	}
	if _, ok := t.byName[name]; ok {
		return nil, fmt.Errorf("duplicate alias %q", name)
	}
	a := &Alias{Name: name}
	t.byName[name] = a
	return a, nil
}

// lookup returns the id for name if the alias has been declared and
// finished.
func (t *aliasTable) lookup(name string) (NodeID, bool) {
	a, ok := t.byName[name]
	if !ok || !a.resolved {
		return NodeID{}, false
	}
	return a.ID, true
}

// isInlineNodeID reports whether s is an inline textual node id rather
// than an alias name. Alias names ("HasComponent") never contain '='.
func isInlineNodeID(s string) bool {
	return strings.IndexByte(s, '=') >= 0
}

package nodeset

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// GetSortedNodes finalizes the model and delivers every node to addNode
// in dependency order: reference types first, then data types, object
// types, objects, methods, variable types and variables, with parents
// preceding children wherever a hierarchical reference links two nodes
// of the same class. Ties fall back to the order the nodes were parsed.
//
// Nothing is emitted when the sort fails; the error names the offending
// class or node. After each Variable is delivered its value is released
// through values, bounding peak memory during large loads.
func (n *Nodeset) GetSortedNodes(addNode AddNodeFunc, values ValueInterface) error {
	n.logNamespaceTable()

	if err := n.resolvePending(); err != nil {
		return err
	}
	n.closeHierarchy()
	n.reclassifyReferences()

	// sort every phase before emitting anything
	phases := make([][]Node, nodeClassCount)
	for class := 0; class < nodeClassCount; class++ {
		ordered, err := n.sortPhase(NodeClass(class))
		if err != nil {
			return err
		}
		phases[class] = ordered
	}

	emitted := 0
	for _, phase := range phases {
		for _, node := range phase {
			addNode(node)
			emitted++
			if v, ok := node.(*VariableNode); ok && values != nil {
				values.DeleteValue(v.Value)
				v.Value = nil
			}
		}
	}
	log.Debug().Int("nodes", emitted).Msg("Nodeset emitted in sort order")
	return nil
}

// sortPhase runs a Kahn-style topological sort over the nodes of one
// class. Only hierarchical references between two nodes of the same
// class constrain the order; edges into other classes are satisfied by
// the phase order, and edges to nodes outside the file are dependencies
// the hosting server already satisfies. An inverse edge naming a parent
// that is neither in the file nor part of the base namespace is an
// error, as is any cycle.
func (n *Nodeset) sortPhase(class NodeClass) ([]Node, error) {
	m := n.nodes[class]
	count := m.Len()
	if count == 0 {
		return nil, nil
	}

	adj := make(map[NodeID][]NodeID)
	indeg := make(map[NodeID]int, count)

	for pair := m.Oldest(); pair != nil; pair = pair.Next() {
		w := pair.Key
		for ref := pair.Value.Base().HierarchicalRefs; ref != nil; ref = ref.Next {
			if ref.Target.IsZero() {
				continue
			}
			if ref.IsForward {
				// w is the parent of ref.Target
				if _, samePhase := m.Get(ref.Target); samePhase {
					adj[w] = append(adj[w], ref.Target)
					indeg[ref.Target]++
				}
				continue
			}
			// ref.Target is the parent of w
			parent := ref.Target
			if _, samePhase := m.Get(parent); samePhase {
				adj[parent] = append(adj[parent], w)
				indeg[w]++
				continue
			}
			if _, elsewhere := n.LookupNode(parent); !elsewhere && parent.NamespaceIndex != 0 {
				return nil, fmt.Errorf("node %s: parent %s not found", w, parent)
			}
		}
	}

	// FIFO queue seeded in parse order
	queue := make([]NodeID, 0, count)
	for pair := m.Oldest(); pair != nil; pair = pair.Next() {
		if indeg[pair.Key] == 0 {
			queue = append(queue, pair.Key)
		}
	}

	out := make([]Node, 0, count)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		node, _ := m.Get(id)
		out = append(out, node)
		for _, next := range adj[id] {
			indeg[next]--
			if indeg[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if len(out) != count {
		return nil, fmt.Errorf("cycle among %d %s nodes", count-len(out), class)
	}
	return out, nil
}

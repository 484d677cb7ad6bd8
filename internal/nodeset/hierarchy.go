package nodeset

// builtinHierarchicalTypes are the hierarchical reference types of the
// base information model, seeded into every new builder. HasEncoding
// carries its canonical id i=38.
var builtinHierarchicalTypes = []NodeID{
	{NamespaceIndex: 0, ID: "i=35"}, // Organizes
	{NamespaceIndex: 0, ID: "i=36"}, // HasEventSource
	{NamespaceIndex: 0, ID: "i=48"}, // HasNotifier
	{NamespaceIndex: 0, ID: "i=44"}, // Aggregates
	{NamespaceIndex: 0, ID: "i=45"}, // HasSubtype
	{NamespaceIndex: 0, ID: "i=47"}, // HasComponent
	{NamespaceIndex: 0, ID: "i=46"}, // HasProperty
	{NamespaceIndex: 0, ID: "i=38"}, // HasEncoding
}

// isHierarchicalType reports whether id is currently known to be a
// hierarchical reference type. The set only ever grows.
func (n *Nodeset) isHierarchicalType(id NodeID) bool {
	_, ok := n.hierarchicalTypes[id]
	return ok
}

// isKnownReferenceType reports whether the reference type id can be
// classified at this point. Everything in namespace 0 is part of the
// base model and therefore known; anything else must have been parsed as
// a ReferenceType node already.
func (n *Nodeset) isKnownReferenceType(id NodeID) bool {
	if id.NamespaceIndex == 0 {
		return true
	}
	_, ok := n.nodes[NodeClassReferenceType].Get(id)
	return ok
}

// classifyReference decides which of the owner's two lists a reference
// belongs to. A reference whose type is not yet known is conservatively
// treated as hierarchical; the finalize pass revisits it once the set is
// closed.
func (n *Nodeset) classifyReference(ref *Reference) bool {
	if ref.pendingRefType != "" {
		return true
	}
	if n.isHierarchicalType(ref.RefType) {
		return true
	}
	return !n.isKnownReferenceType(ref.RefType)
}

// promoteIfHierarchical adds a freshly parsed ReferenceType to the
// hierarchical set when one of its inverse references targets a type
// already in the set. An inverse HasSubtype edge to a hierarchical
// parent makes the subtype hierarchical as well.
func (n *Nodeset) promoteIfHierarchical(node *ReferenceTypeNode) {
	for ref := node.HierarchicalRefs; ref != nil; ref = ref.Next {
		if ref.IsForward {
			continue
		}
		if n.isHierarchicalType(ref.Target) {
			n.hierarchicalTypes[node.ID] = struct{}{}
			return
		}
	}
}

// closeHierarchy runs the promotion to a fixpoint over all parsed
// ReferenceType nodes. Needed because a subtype chain may be declared
// child-first, in which case the single promotion at node finish sees an
// ancestor that is not yet in the set.
func (n *Nodeset) closeHierarchy() {
	for changed := true; changed; {
		changed = false
		for pair := n.nodes[NodeClassReferenceType].Oldest(); pair != nil; pair = pair.Next() {
			rt := pair.Value.(*ReferenceTypeNode)
			if n.isHierarchicalType(rt.ID) {
				continue
			}
			before := len(n.hierarchicalTypes)
			n.promoteIfHierarchical(rt)
			if len(n.hierarchicalTypes) != before {
				changed = true
			}
		}
	}
}

// reclassifyReferences redistributes every reference over its owner's
// two lists using the closed hierarchical set. References created under
// the conservative rule whose type turned out to be a parsed,
// non-hierarchical ReferenceType are demoted; references whose type was
// never parsed at all stay hierarchical. List-internal order is
// preserved, though consumers must not depend on it.
func (n *Nodeset) reclassifyReferences() {
	for class := 0; class < nodeClassCount; class++ {
		for pair := n.nodes[class].Oldest(); pair != nil; pair = pair.Next() {
			base := pair.Value.Base()
			var all []*Reference
			for ref := base.HierarchicalRefs; ref != nil; ref = ref.Next {
				all = append(all, ref)
			}
			for ref := base.NonHierarchicalRefs; ref != nil; ref = ref.Next {
				all = append(all, ref)
			}
			base.HierarchicalRefs = nil
			base.NonHierarchicalRefs = nil
			for i := len(all) - 1; i >= 0; i-- {
				ref := all[i]
				hierarchical := n.isHierarchicalType(ref.RefType)
				if !hierarchical && !n.isKnownReferenceType(ref.RefType) {
					hierarchical = true
				}
				if hierarchical {
					ref.Next = base.HierarchicalRefs
					base.HierarchicalRefs = ref
				} else {
					ref.Next = base.NonHierarchicalRefs
					base.NonHierarchicalRefs = ref
				}
			}
		}
	}
}

package nodeset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortEmptyNodeset(t *testing.T) {
	n := New(nil)
	emitted := 0
	err := n.GetSortedNodes(func(Node) { emitted++ }, nil)
	require.NoError(t, err)
	assert.Zero(t, emitted)
}

func TestSortSingleRootObject(t *testing.T) {
	n := New(nil)
	addNode(t, n, NodeClassObject, "NodeId", "i=85", "BrowseName", "Objects")
	assert.Equal(t, []NodeID{{0, "i=85"}}, sortedIDs(t, n))
}

func TestSortPhaseOrder(t *testing.T) {
	n := New(func(string) uint16 { return 1 })
	n.NewNamespace()
	n.NewNamespaceFinish("urn:acme")

	// parse order deliberately inverts the phase order
	v, err := n.NewNode(NodeClassVariable, attrList("NodeId", "ns=1;i=1001", "BrowseName", "1:Speed"))
	require.NoError(t, err)
	ref, err := n.NewReference(v, attrList("ReferenceType", "i=47", "IsForward", "false"))
	require.NoError(t, err)
	require.NoError(t, n.NewReferenceFinish(ref, "ns=1;i=1000"))
	require.NoError(t, n.NewNodeFinish(v))

	addNode(t, n, NodeClassObjectType, "NodeId", "ns=1;i=1000", "BrowseName", "1:Machine")

	assert.Equal(t, []NodeID{{1, "i=1000"}, {1, "i=1001"}}, sortedIDs(t, n))
}

func TestSortParentBeforeChildWithinPhase(t *testing.T) {
	n := New(func(string) uint16 { return 1 })
	n.NewNamespace()
	n.NewNamespaceFinish("urn:acme")

	// child parsed before its parent; the inverse Organizes edge must
	// still put the parent first
	child, err := n.NewNode(NodeClassObject, attrList("NodeId", "ns=1;i=11", "BrowseName", "1:Child"))
	require.NoError(t, err)
	ref, err := n.NewReference(child, attrList("ReferenceType", "i=35", "IsForward", "false"))
	require.NoError(t, err)
	require.NoError(t, n.NewReferenceFinish(ref, "ns=1;i=10"))
	require.NoError(t, n.NewNodeFinish(child))

	addNode(t, n, NodeClassObject, "NodeId", "ns=1;i=10", "BrowseName", "1:Parent")

	assert.Equal(t, []NodeID{{1, "i=10"}, {1, "i=11"}}, sortedIDs(t, n))
}

func TestSortTieBreakIsParseOrder(t *testing.T) {
	n := New(nil)
	addNode(t, n, NodeClassObject, "NodeId", "i=103", "BrowseName", "C")
	addNode(t, n, NodeClassObject, "NodeId", "i=101", "BrowseName", "A")
	addNode(t, n, NodeClassObject, "NodeId", "i=102", "BrowseName", "B")

	assert.Equal(t, []NodeID{{0, "i=103"}, {0, "i=101"}, {0, "i=102"}}, sortedIDs(t, n))
}

func TestSortCycleFails(t *testing.T) {
	n := New(nil)

	a, err := n.NewNode(NodeClassObjectType, attrList("NodeId", "i=2000", "BrowseName", "A"))
	require.NoError(t, err)
	refA, err := n.NewReference(a, attrList("ReferenceType", "i=45"))
	require.NoError(t, err)
	require.NoError(t, n.NewReferenceFinish(refA, "i=2001"))
	require.NoError(t, n.NewNodeFinish(a))

	b, err := n.NewNode(NodeClassObjectType, attrList("NodeId", "i=2001", "BrowseName", "B"))
	require.NoError(t, err)
	refB, err := n.NewReference(b, attrList("ReferenceType", "i=45"))
	require.NoError(t, err)
	require.NoError(t, n.NewReferenceFinish(refB, "i=2000"))
	require.NoError(t, n.NewNodeFinish(b))

	emitted := 0
	err = n.GetSortedNodes(func(Node) { emitted++ }, nil)
	assert.Error(t, err)
	assert.Zero(t, emitted, "no partial emission on sort failure")
}

func TestSortExternalParentIgnored(t *testing.T) {
	n := New(nil)
	node, err := n.NewNode(NodeClassObject, attrList("NodeId", "i=100", "BrowseName", "A"))
	require.NoError(t, err)
	// Objects folder lives in the server, not in the file
	ref, err := n.NewReference(node, attrList("ReferenceType", "i=35", "IsForward", "false"))
	require.NoError(t, err)
	require.NoError(t, n.NewReferenceFinish(ref, "i=85"))
	require.NoError(t, n.NewNodeFinish(node))

	assert.Equal(t, []NodeID{{0, "i=100"}}, sortedIDs(t, n))
}

func TestSortMissingParentOutsideBaseNamespace(t *testing.T) {
	n := New(func(string) uint16 { return 1 })
	n.NewNamespace()
	n.NewNamespaceFinish("urn:acme")

	node, err := n.NewNode(NodeClassObject, attrList("NodeId", "ns=1;i=100", "BrowseName", "1:A"))
	require.NoError(t, err)
	ref, err := n.NewReference(node, attrList("ReferenceType", "i=35", "IsForward", "false"))
	require.NoError(t, err)
	require.NoError(t, n.NewReferenceFinish(ref, "ns=1;i=404"))
	require.NoError(t, n.NewNodeFinish(node))

	err = n.GetSortedNodes(func(Node) {}, nil)
	assert.Error(t, err)
}

func TestHierarchicalSeed(t *testing.T) {
	n := New(nil)
	require.Len(t, n.hierarchicalTypes, 8)
	for _, id := range []string{"i=35", "i=36", "i=48", "i=44", "i=45", "i=47", "i=46", "i=38"} {
		assert.Contains(t, n.hierarchicalTypes, NodeID{0, id}, id)
	}
}

func TestUserDefinedHierarchicalReferenceType(t *testing.T) {
	n := New(func(string) uint16 { return 1 })
	n.NewNamespace()
	n.NewNamespaceFinish("urn:acme")

	// ReferenceType "Controls" subtypes HasComponent
	rt, err := n.NewNode(NodeClassReferenceType, attrList("NodeId", "ns=1;i=5000", "BrowseName", "1:Controls"))
	require.NoError(t, err)
	sub, err := n.NewReference(rt, attrList("ReferenceType", "i=45", "IsForward", "false"))
	require.NoError(t, err)
	require.NoError(t, n.NewReferenceFinish(sub, "i=47"))
	require.NoError(t, n.NewNodeFinish(rt))

	assert.Contains(t, n.hierarchicalTypes, NodeID{1, "i=5000"})

	// a later Controls edge orders two objects parsed child-first
	child, err := n.NewNode(NodeClassObject, attrList("NodeId", "ns=1;i=11", "BrowseName", "1:Valve"))
	require.NoError(t, err)
	ref, err := n.NewReference(child, attrList("ReferenceType", "ns=1;i=5000", "IsForward", "false"))
	require.NoError(t, err)
	require.NoError(t, n.NewReferenceFinish(ref, "ns=1;i=10"))
	require.NoError(t, n.NewNodeFinish(child))

	addNode(t, n, NodeClassObject, "NodeId", "ns=1;i=10", "BrowseName", "1:Controller")

	assert.Equal(t, []NodeID{
		{1, "i=5000"},
		{1, "i=10"},
		{1, "i=11"},
	}, sortedIDs(t, n))
}

func TestHierarchyClosedTransitivelyAtSort(t *testing.T) {
	n := New(func(string) uint16 { return 1 })
	n.NewNamespace()
	n.NewNamespaceFinish("urn:acme")

	// grandchild subtypes child before child subtypes HasComponent, so
	// the promotion at node finish misses it
	grand, err := n.NewNode(NodeClassReferenceType, attrList("NodeId", "ns=1;i=5001", "BrowseName", "1:FineControls"))
	require.NoError(t, err)
	ref, err := n.NewReference(grand, attrList("ReferenceType", "i=45", "IsForward", "false"))
	require.NoError(t, err)
	require.NoError(t, n.NewReferenceFinish(ref, "ns=1;i=5000"))
	require.NoError(t, n.NewNodeFinish(grand))

	child, err := n.NewNode(NodeClassReferenceType, attrList("NodeId", "ns=1;i=5000", "BrowseName", "1:Controls"))
	require.NoError(t, err)
	ref, err = n.NewReference(child, attrList("ReferenceType", "i=45", "IsForward", "false"))
	require.NoError(t, err)
	require.NoError(t, n.NewReferenceFinish(ref, "i=47"))
	require.NoError(t, n.NewNodeFinish(child))

	require.NoError(t, n.GetSortedNodes(func(Node) {}, nil))
	assert.Contains(t, n.hierarchicalTypes, NodeID{1, "i=5000"})
	assert.Contains(t, n.hierarchicalTypes, NodeID{1, "i=5001"})
}

func TestConservativeClassificationDemotedAtSort(t *testing.T) {
	n := New(func(string) uint16 { return 1 })
	n.NewNamespace()
	n.NewNamespaceFinish("urn:acme")

	// reference uses a user-defined type before that type is parsed
	node, err := n.NewNode(NodeClassObject, attrList("NodeId", "ns=1;i=100", "BrowseName", "1:A"))
	require.NoError(t, err)
	ref, err := n.NewReference(node, attrList("ReferenceType", "ns=1;i=6000"))
	require.NoError(t, err)
	require.NoError(t, n.NewReferenceFinish(ref, "ns=1;i=101"))
	require.NoError(t, n.NewNodeFinish(node))
	require.Same(t, ref, node.Base().HierarchicalRefs, "unknown type starts out hierarchical")

	// the type turns out to be a plain non-hierarchical ReferenceType
	addNode(t, n, NodeClassReferenceType, "NodeId", "ns=1;i=6000", "BrowseName", "1:IsLinkedWith")
	addNode(t, n, NodeClassObject, "NodeId", "ns=1;i=101", "BrowseName", "1:B")

	require.NoError(t, n.GetSortedNodes(func(Node) {}, nil))
	assert.Nil(t, node.Base().HierarchicalRefs)
	assert.Same(t, ref, node.Base().NonHierarchicalRefs, "demoted once the type is known")
}

func TestUnknownTypeStaysHierarchical(t *testing.T) {
	n := New(func(string) uint16 { return 1 })
	n.NewNamespace()
	n.NewNamespaceFinish("urn:acme")

	node, err := n.NewNode(NodeClassObject, attrList("NodeId", "ns=1;i=100", "BrowseName", "1:A"))
	require.NoError(t, err)
	ref, err := n.NewReference(node, attrList("ReferenceType", "ns=1;i=9999"))
	require.NoError(t, err)
	require.NoError(t, n.NewReferenceFinish(ref, "ns=1;i=101"))
	require.NoError(t, n.NewNodeFinish(node))

	addNode(t, n, NodeClassObject, "NodeId", "ns=1;i=101", "BrowseName", "1:B")

	require.NoError(t, n.GetSortedNodes(func(Node) {}, nil))
	assert.Same(t, ref, node.Base().HierarchicalRefs, "never-parsed type keeps the conservative classification")
}

func TestPhaseOrderAcrossAllClasses(t *testing.T) {
	n := New(nil)
	// parse in reverse phase order
	addNode(t, n, NodeClassVariable, "NodeId", "i=7", "BrowseName", "g")
	addNode(t, n, NodeClassVariableType, "NodeId", "i=6", "BrowseName", "f")
	addNode(t, n, NodeClassMethod, "NodeId", "i=5", "BrowseName", "e")
	addNode(t, n, NodeClassObject, "NodeId", "i=4", "BrowseName", "d")
	addNode(t, n, NodeClassObjectType, "NodeId", "i=3", "BrowseName", "c")
	addNode(t, n, NodeClassDataType, "NodeId", "i=2", "BrowseName", "b")
	addNode(t, n, NodeClassReferenceType, "NodeId", "i=1", "BrowseName", "a")

	want := []NodeID{
		{0, "i=1"}, {0, "i=2"}, {0, "i=3"}, {0, "i=4"}, {0, "i=5"}, {0, "i=6"}, {0, "i=7"},
	}
	assert.Equal(t, want, sortedIDs(t, n))
}

func TestForwardEdgeOrdersChildren(t *testing.T) {
	n := New(nil)
	// forward HasComponent from parent to child; child parsed first
	child, err := n.NewNode(NodeClassObject, attrList("NodeId", "i=201", "BrowseName", "Child"))
	require.NoError(t, err)
	require.NoError(t, n.NewNodeFinish(child))

	parent, err := n.NewNode(NodeClassObject, attrList("NodeId", "i=200", "BrowseName", "Parent"))
	require.NoError(t, err)
	ref, err := n.NewReference(parent, attrList("ReferenceType", "i=47"))
	require.NoError(t, err)
	require.NoError(t, n.NewReferenceFinish(ref, "i=201"))
	require.NoError(t, n.NewNodeFinish(parent))

	assert.Equal(t, []NodeID{{0, "i=200"}, {0, "i=201"}}, sortedIDs(t, n))
}

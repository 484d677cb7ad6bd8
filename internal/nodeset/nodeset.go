// Package nodeset builds an in-memory OPC UA address-space model from
// SAX-level parser events and emits it as a fully resolved,
// topologically ordered node stream.
//
// The builder keeps a typed alias table, a namespace translation table
// and seven class-indexed node collections. References are classified as
// hierarchical or non-hierarchical against a set of hierarchical
// reference types that grows while the file is parsed: a user-defined
// ReferenceType that subtypes a known hierarchical type becomes
// hierarchical for every reference classified after it.
package nodeset

import (
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/sebastiankruger/nodeset-loader/internal/arena"
)

// Attribute names used in NodeSet2 XML.
const (
	attrNodeID          = "NodeId"
	attrBrowseName      = "BrowseName"
	attrParentNodeID    = "ParentNodeId"
	attrEventNotifier   = "EventNotifier"
	attrDataType        = "DataType"
	attrValueRank       = "ValueRank"
	attrArrayDimensions = "ArrayDimensions"
	attrIsAbstract      = "IsAbstract"
	attrIsForward       = "IsForward"
	attrReferenceType   = "ReferenceType"
	attrSymmetric       = "Symmetric"
	attrExecutable      = "Executable"
	attrUserExecutable  = "UserExecutable"
	attrAccessLevel     = "AccessLevel"
	attrUserAccessLevel = "UserAccessLevel"
	attrAlias           = "Alias"
	attrWriteMask       = "WriteMask"
)

// uaNamespaceURI is the OPC Foundation namespace, always file index 0
// and always server index 0.
const uaNamespaceURI = "http://opcfoundation.org/UA/"

// namespaceEntry maps one file-local namespace index to the hosting
// server's global index.
type namespaceEntry struct {
	GlobalIndex uint16
	URI         string
}

// pendingID records an alias use that could not be resolved when it was
// parsed. Aliases may be declared after their first use; all pending
// ids are replayed against the finished alias table before sorting.
type pendingID struct {
	dest *NodeID
	name string
}

// Nodeset is the model builder. It consumes parser events in the order
// the file delivers them and owns everything it builds until Cleanup.
// A Nodeset must not be shared across goroutines.
type Nodeset struct {
	arena        *arena.Arena
	aliases      *aliasTable
	namespaces   []namespaceEntry
	addNamespace AddNamespaceFunc

	nodes [nodeClassCount]*orderedmap.OrderedMap[NodeID, Node]
	refs  []*Reference

	hierarchicalTypes map[NodeID]struct{}
	pending           []pendingID
}

// New creates an empty builder. addNamespace is invoked once per
// namespace URI declared in the file; a nil callback keeps file-local
// indices unchanged.
func New(addNamespace AddNamespaceFunc) *Nodeset {
	n := &Nodeset{
		arena:             arena.New(arena.DefaultBlockSize),
		aliases:           newAliasTable(),
		addNamespace:      addNamespace,
		hierarchicalTypes: make(map[NodeID]struct{}, len(builtinHierarchicalTypes)),
	}
	n.namespaces = append(n.namespaces, namespaceEntry{GlobalIndex: 0, URI: uaNamespaceURI})
	for _, id := range builtinHierarchicalTypes {
		n.hierarchicalTypes[id] = struct{}{}
	}
	for class := 0; class < nodeClassCount; class++ {
		n.nodes[class] = orderedmap.New[NodeID, Node]()
	}
	return n
}

// Arena exposes the string arena, mainly so tests can verify ownership.
func (n *Nodeset) Arena() *arena.Arena { return n.arena }

// NodeCount returns the number of stored nodes across all classes.
func (n *Nodeset) NodeCount() int {
	total := 0
	for class := 0; class < nodeClassCount; class++ {
		total += n.nodes[class].Len()
	}
	return total
}

// LookupNode returns the stored node with the given id, if any.
func (n *Nodeset) LookupNode(id NodeID) (Node, bool) {
	for class := 0; class < nodeClassCount; class++ {
		if node, ok := n.nodes[class].Get(id); ok {
			return node, true
		}
	}
	return nil, false
}

// Cleanup releases everything the builder owns. The instance must not
// be used afterwards.
func (n *Nodeset) Cleanup() {
	n.arena.Reset()
	n.aliases = newAliasTable()
	n.namespaces = nil
	n.refs = nil
	n.pending = nil
	n.hierarchicalTypes = make(map[NodeID]struct{})
	for class := 0; class < nodeClassCount; class++ {
		n.nodes[class] = orderedmap.New[NodeID, Node]()
	}
}

// --- namespaces ---

// NewNamespace appends a namespace table entry. The URI arrives with
// the finish event.
func (n *Nodeset) NewNamespace() {
	n.namespaces = append(n.namespaces, namespaceEntry{})
}

// NewNamespaceFinish sets the URI of the most recently opened namespace
// entry and asks the host for the matching server-global index.
func (n *Nodeset) NewNamespaceFinish(uri string) {
	entry := &n.namespaces[len(n.namespaces)-1]
	entry.URI = n.arena.InternString(uri)
	if n.addNamespace != nil {
		entry.GlobalIndex = n.addNamespace(entry.URI)
	} else {
		entry.GlobalIndex = uint16(len(n.namespaces) - 1)
	}
}

// translateNodeID replaces a file-local namespace index with the
// server-global one. Index 0 is the UA namespace and never translated.
func (n *Nodeset) translateNodeID(id NodeID) (NodeID, error) {
	if id.NamespaceIndex == 0 {
		return id, nil
	}
	if int(id.NamespaceIndex) >= len(n.namespaces) {
		return NodeID{}, fmt.Errorf("node id %s: namespace index %d not declared", id, id.NamespaceIndex)
	}
	id.NamespaceIndex = n.namespaces[id.NamespaceIndex].GlobalIndex
	return id, nil
}

// translateBrowseName translates the namespace index of a browse name.
func (n *Nodeset) translateBrowseName(bn BrowseName) (BrowseName, error) {
	if bn.NamespaceIndex == 0 {
		return bn, nil
	}
	if int(bn.NamespaceIndex) >= len(n.namespaces) {
		return BrowseName{}, fmt.Errorf("browse name %q: namespace index %d not declared", bn.Name, bn.NamespaceIndex)
	}
	bn.NamespaceIndex = n.namespaces[bn.NamespaceIndex].GlobalIndex
	return bn, nil
}

// extractNodeID parses and translates a textual node id.
func (n *Nodeset) extractNodeID(s string) (NodeID, error) {
	id, err := ParseNodeID(s)
	if err != nil {
		return NodeID{}, err
	}
	return n.translateNodeID(id)
}

// resolveID resolves s either as an inline node id or through the alias
// table. An alias that has not been declared yet is returned as a
// pending name and resolved again before sorting.
func (n *Nodeset) resolveID(s string) (id NodeID, pendingName string, err error) {
	if isInlineNodeID(s) {
		id, err = n.extractNodeID(s)
		return id, "", err
	}
	if id, ok := n.aliases.lookup(s); ok {
		return id, "", nil
	}
	return NodeID{}, s, nil
}

// defer resolution of an alias name into dest.
func (n *Nodeset) deferResolve(dest *NodeID, name string) {
	n.pending = append(n.pending, pendingID{dest: dest, name: name})
}

// resolvePending replays all deferred alias uses against the finished
// alias table. Declaration order no longer matters at this point.
func (n *Nodeset) resolvePending() error {
	for _, p := range n.pending {
		id, ok := n.aliases.lookup(p.name)
		if !ok {
			return fmt.Errorf("unresolved alias %q", p.name)
		}
		*p.dest = id
	}
	n.pending = nil
	return nil
}

// --- aliases ---

// NewAlias opens an alias declaration. The node id arrives as character
// data and is delivered via NewAliasFinish.
func (n *Nodeset) NewAlias(attrs []Attribute) (*Alias, error) {
	name, ok := n.attrValue(attrs, attrAlias)
	if !ok {
		return nil, fmt.Errorf("alias element without %s attribute", attrAlias)
	}
	return n.aliases.add(name)
}

// NewAliasFinish resolves the alias to its node id.
func (n *Nodeset) NewAliasFinish(a *Alias, idText string) error {
	id, err := n.extractNodeID(n.arena.InternString(idText))
	if err != nil {
		return fmt.Errorf("alias %q: %w", a.Name, err)
	}
	a.ID = id
	a.resolved = true
	return nil
}

// --- attribute access ---

// attrValue copies the named attribute's value into the arena. The
// second result is false when the attribute is absent.
func (n *Nodeset) attrValue(attrs []Attribute, name string) (string, bool) {
	for i := range attrs {
		if attrs[i].Local == name {
			return n.arena.InternBytes(attrs[i].Value), true
		}
	}
	return "", false
}

// attrOrDefault returns the named attribute's value or def when absent.
// Defaults are static and intentionally not arena-copied.
func (n *Nodeset) attrOrDefault(attrs []Attribute, name, def string) string {
	if v, ok := n.attrValue(attrs, name); ok {
		return v
	}
	return def
}

// requiredAttr returns the named attribute's value or an error.
func (n *Nodeset) requiredAttr(attrs []Attribute, name string) (string, error) {
	v, ok := n.attrValue(attrs, name)
	if !ok {
		return "", fmt.Errorf("required attribute %s missing", name)
	}
	return v, nil
}

// parseBool parses the XML boolean form. Only the exact literals are
// accepted; the encoding is case-sensitive.
func parseBool(name, s string) (bool, error) {
	switch s {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, fmt.Errorf("attribute %s: invalid boolean %q", name, s)
}

func parseInt(name, s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("attribute %s: %w", name, err)
	}
	return v, nil
}

func parseUint8(name, s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("attribute %s: %w", name, err)
	}
	return uint8(v), nil
}

// --- nodes ---

// NewNode constructs the class-appropriate node record from start-tag
// attributes. NodeId and BrowseName are mandatory for every class;
// class-specific attributes fall back to the NodeSet2 defaults.
func (n *Nodeset) NewNode(class NodeClass, attrs []Attribute) (Node, error) {
	base, err := n.extractBase(attrs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", class, err)
	}

	var node Node
	switch class {
	case NodeClassObject:
		obj := &ObjectNode{BaseNode: base}
		if obj.ParentNodeID, err = n.optionalNodeID(attrs, attrParentNodeID); err != nil {
			break
		}
		obj.EventNotifier = n.attrOrDefault(attrs, attrEventNotifier, "")
		node = obj
	case NodeClassObjectType:
		ot := &ObjectTypeNode{BaseNode: base}
		ot.IsAbstract, err = parseBool(attrIsAbstract, n.attrOrDefault(attrs, attrIsAbstract, "false"))
		node = ot
	case NodeClassVariable:
		v := &VariableNode{BaseNode: base}
		if v.ParentNodeID, err = n.optionalNodeID(attrs, attrParentNodeID); err != nil {
			break
		}
		if err = n.extractDataType(attrs, &v.DataType, &v.pendingDataType); err != nil {
			break
		}
		if v.ValueRank, err = parseInt(attrValueRank, n.attrOrDefault(attrs, attrValueRank, "-1")); err != nil {
			break
		}
		v.ArrayDimensions = n.attrOrDefault(attrs, attrArrayDimensions, "")
		if v.AccessLevel, err = parseUint8(attrAccessLevel, n.attrOrDefault(attrs, attrAccessLevel, "1")); err != nil {
			break
		}
		v.UserAccessLevel, err = parseUint8(attrUserAccessLevel, n.attrOrDefault(attrs, attrUserAccessLevel, "1"))
		node = v
	case NodeClassVariableType:
		vt := &VariableTypeNode{BaseNode: base}
		if err = n.extractDataType(attrs, &vt.DataType, &vt.pendingDataType); err != nil {
			break
		}
		if vt.ValueRank, err = parseInt(attrValueRank, n.attrOrDefault(attrs, attrValueRank, "-1")); err != nil {
			break
		}
		vt.ArrayDimensions = n.attrOrDefault(attrs, attrArrayDimensions, "")
		vt.IsAbstract, err = parseBool(attrIsAbstract, n.attrOrDefault(attrs, attrIsAbstract, "false"))
		node = vt
	case NodeClassMethod:
		m := &MethodNode{BaseNode: base}
		if m.ParentNodeID, err = n.optionalNodeID(attrs, attrParentNodeID); err != nil {
			break
		}
		if m.Executable, err = parseBool(attrExecutable, n.attrOrDefault(attrs, attrExecutable, "true")); err != nil {
			break
		}
		m.UserExecutable, err = parseBool(attrUserExecutable, n.attrOrDefault(attrs, attrUserExecutable, "true"))
		node = m
	case NodeClassDataType:
		node = &DataTypeNode{BaseNode: base}
	case NodeClassReferenceType:
		rt := &ReferenceTypeNode{BaseNode: base}
		rt.Symmetric, err = parseBool(attrSymmetric, n.attrOrDefault(attrs, attrSymmetric, "false"))
		node = rt
	default:
		return nil, fmt.Errorf("unknown node class %d", class)
	}
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", class, base.ID, err)
	}
	return node, nil
}

// extractBase reads the attributes common to all classes.
func (n *Nodeset) extractBase(attrs []Attribute) (BaseNode, error) {
	var base BaseNode
	idText, err := n.requiredAttr(attrs, attrNodeID)
	if err != nil {
		return base, err
	}
	if base.ID, err = n.extractNodeID(idText); err != nil {
		return base, err
	}
	bnText, err := n.requiredAttr(attrs, attrBrowseName)
	if err != nil {
		return base, err
	}
	bn, err := ParseBrowseName(bnText)
	if err != nil {
		return base, err
	}
	if base.BrowseName, err = n.translateBrowseName(bn); err != nil {
		return base, err
	}
	base.WriteMask = n.attrOrDefault(attrs, attrWriteMask, "")
	return base, nil
}

// SetDisplayName stores the node's display name, which XML delivers as
// character data rather than an attribute.
func (n *Nodeset) SetDisplayName(node Node, text string) {
	node.Base().DisplayName = n.arena.InternString(text)
}

// SetDescription stores the node's description text.
func (n *Nodeset) SetDescription(node Node, text string) {
	node.Base().Description = n.arena.InternString(text)
}

// optionalNodeID parses an id-valued attribute that may be absent.
func (n *Nodeset) optionalNodeID(attrs []Attribute, name string) (NodeID, error) {
	s, ok := n.attrValue(attrs, name)
	if !ok {
		return NodeID{}, nil
	}
	id, err := n.extractNodeID(s)
	if err != nil {
		return NodeID{}, fmt.Errorf("attribute %s: %w", name, err)
	}
	return id, nil
}

// extractDataType resolves the DataType attribute, which may be an
// alias. Default is i=24 (BaseDataType).
func (n *Nodeset) extractDataType(attrs []Attribute, dest *NodeID, pending *string) error {
	s := n.attrOrDefault(attrs, attrDataType, "i=24")
	id, pendingName, err := n.resolveID(s)
	if err != nil {
		return fmt.Errorf("attribute %s: %w", attrDataType, err)
	}
	if pendingName != "" {
		*pending = pendingName
		n.deferResolve(dest, pendingName)
		return nil
	}
	*dest = id
	return nil
}

// NewNodeFinish stores the completed node. A finished ReferenceType may
// extend the hierarchical set for all references parsed after it.
func (n *Nodeset) NewNodeFinish(node Node) error {
	class := node.NodeClass()
	id := node.Base().ID
	if _, exists := n.nodes[class].Get(id); exists {
		return fmt.Errorf("duplicate node id %s", id)
	}
	n.nodes[class].Set(id, node)
	if rt, ok := node.(*ReferenceTypeNode); ok {
		n.promoteIfHierarchical(rt)
	}
	return nil
}

// --- references ---

// NewReference creates a reference record from the start tag of a
// <Reference> element and attaches it to node. The target id arrives as
// character data via NewReferenceFinish. Classification happens here,
// against the hierarchical set as currently known.
func (n *Nodeset) NewReference(node Node, attrs []Attribute) (*Reference, error) {
	fwd, err := parseBool(attrIsForward, n.attrOrDefault(attrs, attrIsForward, "true"))
	if err != nil {
		return nil, err
	}
	refTypeText, err := n.requiredAttr(attrs, attrReferenceType)
	if err != nil {
		return nil, err
	}

	ref := &Reference{IsForward: fwd}
	id, pendingName, err := n.resolveID(refTypeText)
	if err != nil {
		return nil, fmt.Errorf("attribute %s: %w", attrReferenceType, err)
	}
	if pendingName != "" {
		ref.pendingRefType = pendingName
		n.deferResolve(&ref.RefType, pendingName)
	} else {
		ref.RefType = id
	}
	n.refs = append(n.refs, ref)

	base := node.Base()
	if n.classifyReference(ref) {
		ref.Next = base.HierarchicalRefs
		base.HierarchicalRefs = ref
	} else {
		ref.Next = base.NonHierarchicalRefs
		base.NonHierarchicalRefs = ref
	}
	return ref, nil
}

// NewReferenceFinish resolves the reference target from the element's
// character data.
func (n *Nodeset) NewReferenceFinish(ref *Reference, targetText string) error {
	if targetText == "" {
		return fmt.Errorf("reference target missing")
	}
	s := n.arena.InternString(targetText)
	id, pendingName, err := n.resolveID(s)
	if err != nil {
		return fmt.Errorf("reference target: %w", err)
	}
	if pendingName != "" {
		ref.pendingTarget = pendingName
		n.deferResolve(&ref.Target, pendingName)
		return nil
	}
	ref.Target = id
	return nil
}

// logNamespaceTable dumps the translation table at debug level.
func (n *Nodeset) logNamespaceTable() {
	for fileIdx, entry := range n.namespaces {
		log.Debug().
			Int("fileIdx", fileIdx).
			Uint16("serverIdx", entry.GlobalIndex).
			Str("uri", entry.URI).
			Msg("Namespace table entry")
	}
}

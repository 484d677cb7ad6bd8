package server

import (
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/awcullen/opcua/server"
	"github.com/awcullen/opcua/ua"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sebastiankruger/nodeset-loader/internal/nodeset"
)

// firstCustomNamespace is the first namespace index handed out for URIs
// declared by nodeset files. Indices 0 and 1 belong to the UA namespace
// and the server's application namespace.
const firstCustomNamespace uint16 = 2

// Loader implements the builder's host callbacks against a Server. It
// assigns server-global namespace indices and installs emitted Object
// and Variable nodes into the address space; type nodes are counted but
// not installed, the hosting server ships the base type system.
type Loader struct {
	srv *Server

	namespaces map[string]uint16
	nextNS     uint16

	// per-class emission counters
	counts    map[nodeset.NodeClass]int
	added     int
	summaries []NodeSummary
}

// NodeSummary is a lightweight record of one emitted node, retained for
// the status API.
type NodeSummary struct {
	ID          string `json:"id"`
	Class       string `json:"class"`
	BrowseName  string `json:"browseName"`
	DisplayName string `json:"displayName"`
}

// NewLoader creates a loader installing nodes into srv.
func NewLoader(srv *Server) *Loader {
	return &Loader{
		srv:        srv,
		namespaces: make(map[string]uint16),
		nextNS:     firstCustomNamespace,
		counts:     make(map[nodeset.NodeClass]int),
	}
}

// AddNamespace maps a declared namespace URI to its server-global index,
// assigning a fresh index on first sight.
func (l *Loader) AddNamespace(uri string) uint16 {
	if idx, ok := l.namespaces[uri]; ok {
		return idx
	}
	idx := l.nextNS
	l.nextNS++
	l.namespaces[uri] = idx
	log.Info().Str("uri", uri).Uint16("index", idx).Msg("Registered namespace")
	return idx
}

// AddNode consumes one node from the sorted emission stream.
func (l *Loader) AddNode(n nodeset.Node) {
	l.counts[n.NodeClass()]++
	l.summaries = append(l.summaries, NodeSummary{
		ID:          n.Base().ID.String(),
		Class:       n.NodeClass().String(),
		BrowseName:  n.Base().BrowseName.Name,
		DisplayName: displayNameOf(n),
	})
	if l.srv == nil || l.srv.srv == nil {
		return
	}

	nm := l.srv.srv.NamespaceManager()
	switch node := n.(type) {
	case *nodeset.ObjectNode:
		obj := server.NewObjectNode(
			l.srv.srv,
			toUANodeID(node.ID),
			ua.QualifiedName{NamespaceIndex: node.BrowseName.NamespaceIndex, Name: node.BrowseName.Name},
			ua.LocalizedText{Text: displayNameOf(n)},
			ua.LocalizedText{Text: node.Description},
			nil,
			toUAReferences(n),
			0,
		)
		nm.AddNode(obj)
		l.added++
	case *nodeset.VariableNode:
		now := time.Now().UTC()
		v := server.NewVariableNode(
			l.srv.srv,
			toUANodeID(node.ID),
			ua.QualifiedName{NamespaceIndex: node.BrowseName.NamespaceIndex, Name: node.BrowseName.Name},
			ua.LocalizedText{Text: displayNameOf(n)},
			ua.LocalizedText{Text: node.Description},
			nil,
			toUAReferences(n),
			ua.NewDataValue(rawValue(node), 0, now, 0, now, 0),
			toUANodeID(node.DataType),
			int32(node.ValueRank),
			parseArrayDimensions(node.ArrayDimensions),
			ua.AccessLevelsCurrentRead,
			250.0,
			false,
			nil,
		)
		nm.AddNode(v)
		l.added++
	default:
		// type and method nodes stay model-only
		log.Debug().
			Str("class", n.NodeClass().String()).
			Str("id", n.Base().ID.String()).
			Msg("Node not installed in address space")
	}
}

// Counts returns the number of emitted nodes per class.
func (l *Loader) Counts() map[nodeset.NodeClass]int {
	return l.counts
}

// Installed returns how many nodes were added to the address space.
func (l *Loader) Installed() int {
	return l.added
}

// Namespaces returns the URI to server index mapping built so far.
func (l *Loader) Namespaces() map[string]uint16 {
	return l.namespaces
}

// Nodes returns the emitted node summaries in emission order.
func (l *Loader) Nodes() []NodeSummary {
	return l.summaries
}

// displayNameOf falls back to the browse name when the file carries no
// display name.
func displayNameOf(n nodeset.Node) string {
	base := n.Base()
	if base.DisplayName != "" {
		return base.DisplayName
	}
	return base.BrowseName.Name
}

// rawValue extracts the retained raw value of a variable, if any.
func rawValue(v *nodeset.VariableNode) any {
	if v.Value == nil {
		return ""
	}
	return v.Value
}

// toUAReferences converts both reference lists of a node.
func toUAReferences(n nodeset.Node) []ua.Reference {
	base := n.Base()
	var refs []ua.Reference
	for _, head := range []*nodeset.Reference{base.HierarchicalRefs, base.NonHierarchicalRefs} {
		for ref := head; ref != nil; ref = ref.Next {
			refs = append(refs, ua.Reference{
				ReferenceTypeID: toUANodeID(ref.RefType),
				IsInverse:       !ref.IsForward,
				TargetID:        ua.ExpandedNodeID{NodeID: toUANodeID(ref.Target)},
			})
		}
	}
	return refs
}

// toUANodeID converts a parsed node id into the wire representation.
func toUANodeID(id nodeset.NodeID) ua.NodeID {
	body := ""
	if len(id.ID) > 2 && id.ID[1] == '=' {
		body = id.ID[2:]
	}
	switch {
	case strings.HasPrefix(id.ID, "i="):
		if num, err := strconv.ParseUint(body, 10, 32); err == nil {
			return ua.NodeIDNumeric{NamespaceIndex: id.NamespaceIndex, ID: uint32(num)}
		}
	case strings.HasPrefix(id.ID, "s="):
		return ua.NodeIDString{NamespaceIndex: id.NamespaceIndex, ID: body}
	case strings.HasPrefix(id.ID, "g="):
		if g, err := uuid.Parse(body); err == nil {
			return ua.NodeIDGUID{NamespaceIndex: id.NamespaceIndex, ID: g}
		}
	case strings.HasPrefix(id.ID, "b="):
		if raw, err := base64.StdEncoding.DecodeString(body); err == nil {
			return ua.NodeIDOpaque{NamespaceIndex: id.NamespaceIndex, ID: ua.ByteString(raw)}
		}
	}
	return ua.NodeIDString{NamespaceIndex: id.NamespaceIndex, ID: id.ID}
}

// parseArrayDimensions parses the comma-separated ArrayDimensions form.
func parseArrayDimensions(s string) []uint32 {
	if s == "" {
		return []uint32{}
	}
	parts := strings.Split(s, ",")
	dims := make([]uint32, 0, len(parts))
	for _, p := range parts {
		if v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 32); err == nil {
			dims = append(dims, uint32(v))
		}
	}
	return dims
}

package nodeset

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ParseNodeID parses the OPC UA textual node id form. The namespace
// index in the result is file-local; callers inside the builder translate
// it through the namespace table.
//
//	"ns=1;i=5"  -> (1, "i=5")
//	"i=85"      -> (0, "i=85")
//	"s=Motor"   -> (0, "s=Motor")
func ParseNodeID(s string) (NodeID, error) {
	if s == "" {
		return NodeID{}, fmt.Errorf("empty node id")
	}
	var id NodeID
	rest := s
	if strings.HasPrefix(s, "ns=") {
		semi := strings.IndexByte(s, ';')
		if semi < 0 {
			return NodeID{}, fmt.Errorf("invalid node id %q: missing ';' after namespace", s)
		}
		ns, err := strconv.ParseUint(s[3:semi], 10, 16)
		if err != nil {
			return NodeID{}, fmt.Errorf("invalid node id %q: bad namespace index: %w", s, err)
		}
		id.NamespaceIndex = uint16(ns)
		rest = s[semi+1:]
	}
	if err := checkIdentifier(rest); err != nil {
		return NodeID{}, fmt.Errorf("invalid node id %q: %w", s, err)
	}
	id.ID = rest
	return id, nil
}

// checkIdentifier validates the identifier part of a node id.
func checkIdentifier(s string) error {
	if len(s) < 2 || s[1] != '=' {
		return fmt.Errorf("missing identifier type prefix")
	}
	body := s[2:]
	switch s[0] {
	case 'i':
		if _, err := strconv.ParseUint(body, 10, 32); err != nil {
			return fmt.Errorf("bad numeric identifier: %w", err)
		}
	case 's':
		if body == "" {
			return fmt.Errorf("empty string identifier")
		}
	case 'g':
		if _, err := uuid.Parse(body); err != nil {
			return fmt.Errorf("bad guid identifier: %w", err)
		}
	case 'b':
		if _, err := base64.StdEncoding.DecodeString(body); err != nil {
			return fmt.Errorf("bad opaque identifier: %w", err)
		}
	default:
		return fmt.Errorf("unknown identifier type %q", s[0])
	}
	return nil
}

// ParseBrowseName parses the "<nsIdx>:<name>" browse name form. A bare
// name belongs to namespace 0.
func ParseBrowseName(s string) (BrowseName, error) {
	if s == "" {
		return BrowseName{}, fmt.Errorf("empty browse name")
	}
	colon := strings.IndexByte(s, ':')
	if colon < 0 {
		return BrowseName{Name: s}, nil
	}
	ns, err := strconv.ParseUint(s[:colon], 10, 16)
	if err != nil {
		// a colon without a numeric prefix is part of the name itself
		return BrowseName{Name: s}, nil
	}
	return BrowseName{NamespaceIndex: uint16(ns), Name: s[colon+1:]}, nil
}

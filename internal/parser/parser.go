// Package parser drives a nodeset builder from a NodeSet2 XML document.
// It walks the token stream of encoding/xml and translates element
// starts, character data and element ends into the builder's event
// surface, mirroring the two-step new/finish shape of that surface:
// attributes arrive with the start tag, text content arrives later.
package parser

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/sebastiankruger/nodeset-loader/internal/nodeset"
)

// Element names of the NodeSet2 schema handled by the driver. Unknown
// elements are skipped with their whole subtree.
const (
	elemUANodeSet     = "UANodeSet"
	elemNamespaceURIs = "NamespaceUris"
	elemURI           = "Uri"
	elemAliases       = "Aliases"
	elemAlias         = "Alias"
	elemDisplayName   = "DisplayName"
	elemDescription   = "Description"
	elemReferences    = "References"
	elemReference     = "Reference"
	elemValue         = "Value"
)

// Parser feeds one XML document into a builder. A Parser is good for a
// single Parse call.
type Parser struct {
	set    *nodeset.Nodeset
	values nodeset.ValueInterface

	cur      nodeset.Node
	curRef   *nodeset.Reference
	curAlias *nodeset.Alias

	inNamespaceURIs bool
	inAliases       bool
	inReferences    bool

	chars strings.Builder
}

// New creates a parser feeding set. values decodes Variable default
// values; nil skips them.
func New(set *nodeset.Nodeset, values nodeset.ValueInterface) *Parser {
	return &Parser{set: set, values: values}
}

// Parse consumes the document and halts on the first malformed entity.
func (p *Parser) Parse(r io.Reader) error {
	d := xml.NewDecoder(r)
	for {
		tok, err := d.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if err := p.startElement(d, t); err != nil {
				return err
			}
		case xml.EndElement:
			if err := p.endElement(t); err != nil {
				return err
			}
		case xml.CharData:
			p.chars.Write(t)
		}
	}
}

// nodeClassOf maps a node element name to its class.
func nodeClassOf(name string) (nodeset.NodeClass, bool) {
	switch name {
	case "UAReferenceType":
		return nodeset.NodeClassReferenceType, true
	case "UADataType":
		return nodeset.NodeClassDataType, true
	case "UAObjectType":
		return nodeset.NodeClassObjectType, true
	case "UAObject":
		return nodeset.NodeClassObject, true
	case "UAMethod":
		return nodeset.NodeClassMethod, true
	case "UAVariableType":
		return nodeset.NodeClassVariableType, true
	case "UAVariable":
		return nodeset.NodeClassVariable, true
	}
	return 0, false
}

// convertAttrs reshapes decoder attributes into the builder's attribute
// records. The values stay caller-owned; the builder copies what it
// keeps.
func convertAttrs(se xml.StartElement) []nodeset.Attribute {
	if len(se.Attr) == 0 {
		return nil
	}
	attrs := make([]nodeset.Attribute, len(se.Attr))
	for i, a := range se.Attr {
		attrs[i] = nodeset.Attribute{
			Local: a.Name.Local,
			URI:   a.Name.Space,
			Value: []byte(a.Value),
		}
	}
	return attrs
}

func (p *Parser) startElement(d *xml.Decoder, se xml.StartElement) error {
	name := se.Name.Local

	if class, ok := nodeClassOf(name); ok {
		if p.cur != nil {
			return fmt.Errorf("nested %s element", name)
		}
		node, err := p.set.NewNode(class, convertAttrs(se))
		if err != nil {
			return err
		}
		p.cur = node
		return nil
	}

	switch name {
	case elemUANodeSet:
		return nil
	case elemNamespaceURIs:
		p.inNamespaceURIs = true
	case elemURI:
		if !p.inNamespaceURIs {
			return d.Skip()
		}
		p.set.NewNamespace()
		p.chars.Reset()
	case elemAliases:
		p.inAliases = true
	case elemAlias:
		if !p.inAliases {
			return d.Skip()
		}
		alias, err := p.set.NewAlias(convertAttrs(se))
		if err != nil {
			return err
		}
		p.curAlias = alias
		p.chars.Reset()
	case elemReferences:
		if p.cur == nil {
			return d.Skip()
		}
		p.inReferences = true
	case elemReference:
		if !p.inReferences || p.cur == nil {
			return d.Skip()
		}
		ref, err := p.set.NewReference(p.cur, convertAttrs(se))
		if err != nil {
			return err
		}
		p.curRef = ref
		p.chars.Reset()
	case elemDisplayName, elemDescription:
		if p.cur == nil || p.inReferences {
			return d.Skip()
		}
		p.chars.Reset()
	case elemValue:
		if p.cur == nil {
			return d.Skip()
		}
		return p.handleValue(d)
	default:
		// unknown subtree (Extensions, Definition, Models, ...)
		return d.Skip()
	}
	return nil
}

func (p *Parser) endElement(ee xml.EndElement) error {
	name := ee.Name.Local

	if _, ok := nodeClassOf(name); ok {
		if p.cur == nil {
			return nil
		}
		err := p.set.NewNodeFinish(p.cur)
		p.cur = nil
		return err
	}

	switch name {
	case elemNamespaceURIs:
		p.inNamespaceURIs = false
	case elemURI:
		if p.inNamespaceURIs {
			p.set.NewNamespaceFinish(strings.TrimSpace(p.chars.String()))
			p.chars.Reset()
		}
	case elemAliases:
		p.inAliases = false
	case elemAlias:
		if p.curAlias != nil {
			err := p.set.NewAliasFinish(p.curAlias, strings.TrimSpace(p.chars.String()))
			p.curAlias = nil
			p.chars.Reset()
			return err
		}
	case elemReferences:
		p.inReferences = false
	case elemReference:
		if p.curRef != nil {
			err := p.set.NewReferenceFinish(p.curRef, strings.TrimSpace(p.chars.String()))
			p.curRef = nil
			p.chars.Reset()
			return err
		}
	case elemDisplayName:
		if p.cur != nil && !p.inReferences {
			p.set.SetDisplayName(p.cur, strings.TrimSpace(p.chars.String()))
			p.chars.Reset()
		}
	case elemDescription:
		if p.cur != nil && !p.inReferences {
			p.set.SetDescription(p.cur, strings.TrimSpace(p.chars.String()))
			p.chars.Reset()
		}
	}
	return nil
}

// handleValue captures the raw XML inside a Variable's <Value> element
// and hands it to the value interface. The start tag has already been
// consumed by the caller.
func (p *Parser) handleValue(d *xml.Decoder) error {
	v, isVariable := p.cur.(*nodeset.VariableNode)
	if !isVariable || p.values == nil {
		return d.Skip()
	}
	raw, err := captureSubtree(d)
	if err != nil {
		return fmt.Errorf("value of %s: %w", v.ID, err)
	}
	v.Value = p.values.NewValue(p.cur, raw)
	return nil
}

// captureSubtree re-encodes all tokens up to the matching end tag.
func captureSubtree(d *xml.Decoder) (string, error) {
	var buf strings.Builder
	enc := xml.NewEncoder(&buf)
	depth := 1
	for {
		tok, err := d.Token()
		if err != nil {
			return "", err
		}
		switch tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
			if depth == 0 {
				if err := enc.Flush(); err != nil {
					return "", err
				}
				return buf.String(), nil
			}
		}
		if err := enc.EncodeToken(tok); err != nil {
			return "", err
		}
	}
}

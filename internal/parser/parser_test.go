package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sebastiankruger/nodeset-loader/internal/nodeset"
)

const machineNodeset = `<?xml version="1.0" encoding="utf-8"?>
<UANodeSet xmlns="http://opcfoundation.org/UA/2011/03/UANodeSet.xsd">
  <NamespaceUris>
    <Uri>urn:acme:machines</Uri>
  </NamespaceUris>
  <Aliases>
    <Alias Alias="HasComponent">i=47</Alias>
    <Alias Alias="HasTypeDefinition">i=40</Alias>
    <Alias Alias="Double">i=11</Alias>
  </Aliases>
  <UAObject NodeId="ns=1;i=2000" BrowseName="1:Machine" ParentNodeId="i=85">
    <DisplayName>Machine</DisplayName>
    <Description>A machine instance</Description>
    <References>
      <Reference ReferenceType="i=35" IsForward="false">i=85</Reference>
      <Reference ReferenceType="HasTypeDefinition">ns=1;i=1000</Reference>
    </References>
  </UAObject>
  <UAObjectType NodeId="ns=1;i=1000" BrowseName="1:MachineType">
    <DisplayName>MachineType</DisplayName>
  </UAObjectType>
  <UAVariable NodeId="ns=1;i=2001" BrowseName="1:Speed" ParentNodeId="ns=1;i=2000" DataType="Double">
    <DisplayName>Speed</DisplayName>
    <References>
      <Reference ReferenceType="HasComponent" IsForward="false">ns=1;i=2000</Reference>
    </References>
    <Value>
      <Double>42.5</Double>
    </Value>
  </UAVariable>
  <Extensions>
    <Extension>ignored subtree</Extension>
  </Extensions>
</UANodeSet>`

func TestParseMachineNodeset(t *testing.T) {
	set := nodeset.New(func(uri string) uint16 {
		require.Equal(t, "urn:acme:machines", uri)
		return 3
	})
	defer set.Cleanup()

	p := New(set, nodeset.RawValues{})
	require.NoError(t, p.Parse(strings.NewReader(machineNodeset)))
	require.Equal(t, 3, set.NodeCount())

	var emitted []nodeset.Node
	values := &recordingValues{}
	require.NoError(t, set.GetSortedNodes(func(n nodeset.Node) { emitted = append(emitted, n) }, values))

	// ObjectType phase precedes Object, which precedes Variable
	require.Len(t, emitted, 3)
	assert.Equal(t, nodeset.NodeID{NamespaceIndex: 3, ID: "i=1000"}, emitted[0].Base().ID)
	assert.Equal(t, nodeset.NodeID{NamespaceIndex: 3, ID: "i=2000"}, emitted[1].Base().ID)
	assert.Equal(t, nodeset.NodeID{NamespaceIndex: 3, ID: "i=2001"}, emitted[2].Base().ID)

	obj := emitted[1].(*nodeset.ObjectNode)
	assert.Equal(t, "Machine", obj.DisplayName)
	assert.Equal(t, "A machine instance", obj.Description)
	assert.Equal(t, nodeset.NodeID{NamespaceIndex: 0, ID: "i=85"}, obj.ParentNodeID)

	variable := emitted[2].(*nodeset.VariableNode)
	assert.Equal(t, nodeset.NodeID{NamespaceIndex: 0, ID: "i=11"}, variable.DataType, "alias-typed DataType")
	assert.Equal(t, nodeset.NodeID{NamespaceIndex: 3, ID: "i=2000"}, variable.ParentNodeID)

	// raw value was captured, delivered and then released
	require.Len(t, values.deleted, 1)
	raw, ok := values.deleted[0].(string)
	require.True(t, ok)
	assert.Contains(t, raw, "42.5")
	assert.Nil(t, variable.Value)
}

func TestParseClassifiesTypeDefinitionAsNonHierarchical(t *testing.T) {
	set := nodeset.New(nil)
	defer set.Cleanup()

	require.NoError(t, New(set, nil).Parse(strings.NewReader(machineNodeset)))
	require.NoError(t, set.GetSortedNodes(func(nodeset.Node) {}, nil))

	obj, ok := set.LookupNode(nodeset.NodeID{NamespaceIndex: 1, ID: "i=2000"})
	require.True(t, ok)

	var hierTypes, nonHierTypes []string
	for ref := obj.Base().HierarchicalRefs; ref != nil; ref = ref.Next {
		hierTypes = append(hierTypes, ref.RefType.ID)
	}
	for ref := obj.Base().NonHierarchicalRefs; ref != nil; ref = ref.Next {
		nonHierTypes = append(nonHierTypes, ref.RefType.ID)
	}
	assert.ElementsMatch(t, []string{"i=35"}, hierTypes)
	assert.ElementsMatch(t, []string{"i=40"}, nonHierTypes)
}

func TestParseAliasAfterUse(t *testing.T) {
	// alias section at the end of the document
	doc := `<UANodeSet>
  <UAObject NodeId="i=100" BrowseName="A">
    <References>
      <Reference ReferenceType="Organizes" IsForward="false">i=85</Reference>
    </References>
  </UAObject>
  <Aliases>
    <Alias Alias="Organizes">i=35</Alias>
  </Aliases>
</UANodeSet>`

	set := nodeset.New(nil)
	defer set.Cleanup()
	require.NoError(t, New(set, nil).Parse(strings.NewReader(doc)))
	require.NoError(t, set.GetSortedNodes(func(nodeset.Node) {}, nil))

	obj, ok := set.LookupNode(nodeset.NodeID{NamespaceIndex: 0, ID: "i=100"})
	require.True(t, ok)
	require.NotNil(t, obj.Base().HierarchicalRefs)
	assert.Equal(t, nodeset.NodeID{NamespaceIndex: 0, ID: "i=35"}, obj.Base().HierarchicalRefs.RefType)
}

func TestParseMalformedAttributeHalts(t *testing.T) {
	doc := `<UANodeSet>
  <UAObject NodeId="ns=bad;i=1" BrowseName="A"/>
</UANodeSet>`

	set := nodeset.New(nil)
	defer set.Cleanup()
	assert.Error(t, New(set, nil).Parse(strings.NewReader(doc)))
}

func TestParseMissingRequiredAttributeHalts(t *testing.T) {
	doc := `<UANodeSet>
  <UAVariable BrowseName="NoId"/>
</UANodeSet>`

	set := nodeset.New(nil)
	defer set.Cleanup()
	assert.Error(t, New(set, nil).Parse(strings.NewReader(doc)))
}

func TestParseSkipsUnknownElements(t *testing.T) {
	doc := `<UANodeSet>
  <Models><Model ModelUri="urn:acme"/></Models>
  <UAObject NodeId="i=100" BrowseName="A">
    <Definition Name="Whatever"><Field Name="x"/></Definition>
  </UAObject>
</UANodeSet>`

	set := nodeset.New(nil)
	defer set.Cleanup()
	require.NoError(t, New(set, nil).Parse(strings.NewReader(doc)))
	assert.Equal(t, 1, set.NodeCount())
}

type recordingValues struct {
	deleted []any
}

func (r *recordingValues) NewValue(node nodeset.Node, raw string) any { return raw }
func (r *recordingValues) DeleteValue(value any)                      { r.deleted = append(r.deleted, value) }

package nodeset

// RawValues is the default ValueInterface. It keeps the raw XML of each
// <Value> subtree as the value itself and releases it by dropping the
// reference.
type RawValues struct{}

// NewValue returns the raw XML unchanged.
func (RawValues) NewValue(node Node, raw string) any { return raw }

// DeleteValue discards the value.
func (RawValues) DeleteValue(value any) {}

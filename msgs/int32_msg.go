// Package msgs provides keyed topic types shared by tests and examples.
package msgs

import "github.com/ZettaScaleLabs/dds-go/dds"

// Counter is a keyed int32 counter: one instance per ID.
type Counter struct {
	ID   int32 `dds:"key"`
	Data int32
}

const Counter_TypeName = "msgs::Counter"

// TypeName returns the name the type is registered under
func (m *Counter) TypeName() string {
	return Counter_TypeName
}

// SerializeCDR serializes the message to CDR format
func (m *Counter) SerializeCDR() ([]byte, error) {
	return dds.MarshalCDR(m)
}

// DeserializeCDR deserializes CDR data into the message
func (m *Counter) DeserializeCDR(data []byte) error {
	return dds.UnmarshalCDR(data, m)
}

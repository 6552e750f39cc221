package msgs

import "github.com/ZettaScaleLabs/dds-go/dds"

// Chatter is a text message keyed by its sender.
type Chatter struct {
	Sender string `dds:"key"`
	Data   string
}

const Chatter_TypeName = "msgs::Chatter"

// TypeName returns the name the type is registered under
func (m *Chatter) TypeName() string {
	return Chatter_TypeName
}

// SerializeCDR serializes the message to CDR format
func (m *Chatter) SerializeCDR() ([]byte, error) {
	return dds.MarshalCDR(m)
}

// DeserializeCDR deserializes CDR data into the message
func (m *Chatter) DeserializeCDR(data []byte) error {
	return dds.UnmarshalCDR(data, m)
}

package dds

import (
	"runtime"

	"github.com/ZettaScaleLabs/dds-go/internal/native"
)

// Topic binds a name to the data type T within a participant
type Topic[T any] struct {
	*entity
	participant *Participant
	name        string
	ts          *typeSupport[T]
}

// TopicBuilder builds a Topic
type TopicBuilder[T any] struct {
	participant *Participant
	name        string
	typeName    string
	keys        *KeySpec[T]
	qos         *Qos
	listener    *Listener
}

// CreateTopic creates a new topic builder for data type T.
//
// Example:
//
//	topic, err := dds.CreateTopic[Reading](participant, "readings").
//	    WithQos(dds.QosSensorData()).
//	    Build()
func CreateTopic[T any](p *Participant, name string) *TopicBuilder[T] {
	return &TopicBuilder[T]{participant: p, name: name}
}

// WithQos sets the topic policies
func (b *TopicBuilder[T]) WithQos(qos *Qos) *TopicBuilder[T] {
	b.qos = qos
	return b
}

// WithKeySpec overrides the key derived from the dds:"key" tags of T
func (b *TopicBuilder[T]) WithKeySpec(keys *KeySpec[T]) *TopicBuilder[T] {
	b.keys = keys
	return b
}

// WithTypeName overrides the registered type name
func (b *TopicBuilder[T]) WithTypeName(name string) *TopicBuilder[T] {
	b.typeName = name
	return b
}

// WithListener installs listener callbacks at creation
func (b *TopicBuilder[T]) WithListener(l *Listener) *TopicBuilder[T] {
	b.listener = l
	return b
}

// Build registers T and creates the topic. Another topic of the same name
// with a different type name fails with ErrPreconditionNotMet.
func (b *TopicBuilder[T]) Build() (*Topic[T], error) {
	ts, err := newTypeSupport(b.typeName, b.keys)
	if err != nil {
		return nil, err
	}
	e, err := b.participant.newChild(KindTopic, b.listener, func(pp native.Entity, l *native.Listener) native.Entity {
		return native.CreateTopic(pp, b.name, ts.st, b.qos.toNative(), l)
	})
	if err != nil {
		return nil, err
	}
	t := &Topic[T]{entity: e, participant: b.participant, name: b.name, ts: ts}
	runtime.SetFinalizer(t, (*Topic[T]).Close)
	return t, nil
}

// Name returns the topic name
func (t *Topic[T]) Name() string {
	return t.name
}

// TypeName returns the registered type name
func (t *Topic[T]) TypeName() string {
	return t.ts.st.TypeName
}

// KeySpec returns the key of the topic type
func (t *Topic[T]) KeySpec() *KeySpec[T] {
	return t.ts.keys
}

// Participant returns the owning participant
func (t *Topic[T]) Participant() *Participant {
	return t.participant
}

// InconsistentTopicStatus returns and resets the inconsistent topic status
func (t *Topic[T]) InconsistentTopicStatus() (InconsistentTopicStatus, error) {
	return statusGetter(t.entity, native.GetInconsistentTopicStatus, inconsistentTopicFromNative, "inconsistent topic")
}

package dds

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

type keyedPayload struct {
	InstanceID int32 `dds:"key"`
	Payload    []byte
}

// sensorID declares no key tags, so all its fields make up the key where
// it is used as a key field.
type sensorID struct {
	Site string
	Unit uint16
}

type reading struct {
	Sensor  sensorID `dds:"key"`
	Channel uint8    `dds:"key"`
	Value   float64
	Note    string
}

type fixture struct {
	p     *Participant
	pub   *Publisher
	sub   *Subscriber
	topic *Topic[keyedPayload]
}

// keep holds e reachable until the test ends. Unreferenced wrappers are
// closed by their finalizers.
func keep(t *testing.T, e Entity) {
	t.Cleanup(func() { runtime.KeepAlive(e) })
}

func newParticipant(t *testing.T) *Participant {
	t.Helper()
	p, err := NewParticipant().Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	f := fixture{p: newParticipant(t)}
	var err error
	f.pub, err = f.p.CreatePublisher().Build()
	require.NoError(t, err)
	f.sub, err = f.p.CreateSubscriber().Build()
	require.NoError(t, err)
	f.topic, err = CreateTopic[keyedPayload](f.p, t.Name()).Build()
	require.NoError(t, err)
	keep(t, f.pub)
	keep(t, f.sub)
	keep(t, f.topic)
	return f
}

func (f fixture) writer(t *testing.T, qos *Qos) *Writer[keyedPayload] {
	t.Helper()
	w, err := CreateWriter(f.pub, f.topic).WithQos(qos).Build()
	require.NoError(t, err)
	keep(t, w)
	return w
}

// keepLast is a reader history deep enough to hold several samples of one
// instance. The runtime default keeps only the newest.
func keepLast(t *testing.T, depth int32) *Qos {
	t.Helper()
	q, err := NewQos().WithKeepLast(depth).Build()
	require.NoError(t, err)
	return q
}

func (f fixture) reader(t *testing.T, qos *Qos, l *Listener) *Reader[keyedPayload] {
	t.Helper()
	r, err := CreateReader(f.sub, f.topic).WithQos(qos).WithListener(l).Build()
	require.NoError(t, err)
	keep(t, r)
	return r
}

func reliable(t *testing.T) *Qos {
	t.Helper()
	q, err := NewQos().WithReliability(ReliabilityReliable, DurationInfinite).Build()
	require.NoError(t, err)
	return q
}

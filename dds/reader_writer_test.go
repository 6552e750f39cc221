package dds

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZettaScaleLabs/dds-go/internal/native"
)

func TestWriteTakeKeyedSample(t *testing.T) {
	f := newFixture(t)
	r := f.reader(t, nil, nil)
	w := f.writer(t, nil)

	require.NoError(t, w.Write(&keyedPayload{InstanceID: 7, Payload: []byte{1, 2, 3}}))

	samples, err := r.Take()
	require.NoError(t, err)
	require.Len(t, samples, 1)
	s := samples[0]
	assert.Equal(t, keyedPayload{InstanceID: 7, Payload: []byte{1, 2, 3}}, s.Data)
	assert.Equal(t, []any{int32(7)}, s.Key().Values())
	assert.True(t, s.Info.Valid)
	assert.Equal(t, InstanceAlive, s.Info.InstanceState)
	assert.Equal(t, SampleNotRead, s.Info.SampleState)
	assert.Equal(t, ViewNew, s.Info.ViewState)

	wih, err := w.InstanceHandle()
	require.NoError(t, err)
	assert.Equal(t, wih, s.Info.PublicationHandle)

	samples, err = r.Take()
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestSameKeySameInstance(t *testing.T) {
	f := newFixture(t)
	r := f.reader(t, keepLast(t, 10), nil)
	w := f.writer(t, nil)

	require.NoError(t, w.Write(&keyedPayload{InstanceID: 7, Payload: []byte("a")}))
	require.NoError(t, w.Write(&keyedPayload{InstanceID: 7, Payload: []byte("b")}))
	require.NoError(t, w.Write(&keyedPayload{InstanceID: 8, Payload: []byte("c")}))

	samples, err := r.Take()
	require.NoError(t, err)
	require.Len(t, samples, 3)
	ih7 := samples[0].Info.InstanceHandle
	assert.True(t, samples[0].Key().Equal(samples[1].Key()))
	assert.Equal(t, samples[0].Info.InstanceHandle, samples[1].Info.InstanceHandle)
	assert.NotEqual(t, samples[0].Info.InstanceHandle, samples[2].Info.InstanceHandle)
	// View state is per instance, so both samples of one take share it.
	assert.Equal(t, ViewNew, samples[0].Info.ViewState)
	assert.Equal(t, ViewNew, samples[1].Info.ViewState)

	require.NoError(t, w.Write(&keyedPayload{InstanceID: 7, Payload: []byte("d")}))
	samples, err = r.Take()
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, ViewNotNew, samples[0].Info.ViewState)
	assert.Equal(t, ih7, samples[0].Info.InstanceHandle)

	assert.Equal(t, ih7, w.LookupInstance(&keyedPayload{InstanceID: 7}))
	assert.Zero(t, w.LookupInstance(&keyedPayload{InstanceID: 99}))
}

func TestRegisterInstance(t *testing.T) {
	f := newFixture(t)
	r := f.reader(t, nil, nil)
	w := f.writer(t, nil)

	ih, err := w.RegisterInstance(&keyedPayload{InstanceID: 3})
	require.NoError(t, err)
	assert.NotZero(t, ih)
	assert.Equal(t, ih, w.LookupInstance(&keyedPayload{InstanceID: 3}))
	assert.Zero(t, r.LookupInstance(&keyedPayload{InstanceID: 3}), "registration sends no data")

	require.NoError(t, w.Write(&keyedPayload{InstanceID: 3}))
	assert.Equal(t, ih, r.LookupInstance(&keyedPayload{InstanceID: 3}))
}

func TestDisposeDeliversKeyOnlySample(t *testing.T) {
	f := newFixture(t)
	r := f.reader(t, nil, nil)
	w := f.writer(t, nil)

	require.NoError(t, w.Write(&keyedPayload{InstanceID: 7, Payload: []byte("x")}))
	_, err := r.Take()
	require.NoError(t, err)

	require.NoError(t, w.Dispose(&keyedPayload{InstanceID: 7}))
	samples, err := r.Take()
	require.NoError(t, err)
	require.Len(t, samples, 1)
	s := samples[0]
	assert.False(t, s.Info.Valid)
	assert.Equal(t, InstanceNotAliveDisposed, s.Info.InstanceState)
	assert.Equal(t, int32(7), s.Data.InstanceID)
	assert.Nil(t, s.Data.Payload)
	assert.Equal(t, []any{int32(7)}, s.Key().Values())
}

func TestWriteDispose(t *testing.T) {
	f := newFixture(t)
	r := f.reader(t, nil, nil)
	w := f.writer(t, nil)

	require.NoError(t, w.WriteDispose(&keyedPayload{InstanceID: 1, Payload: []byte("last")}))
	samples, err := r.Take()
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.True(t, samples[0].Info.Valid)
	assert.Equal(t, []byte("last"), samples[0].Data.Payload)
	assert.Equal(t, InstanceNotAliveDisposed, samples[0].Info.InstanceState)
}

func TestUnregister(t *testing.T) {
	f := newFixture(t)
	r := f.reader(t, keepLast(t, 10), nil)
	keep, err := NewQos().WithWriterDataLifecycle(false).Build()
	require.NoError(t, err)
	w := f.writer(t, keep)

	err = w.Unregister(&keyedPayload{InstanceID: 5})
	assert.ErrorIs(t, err, ErrPreconditionNotMet)

	require.NoError(t, w.Write(&keyedPayload{InstanceID: 5}))
	samples, err := r.Take()
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, InstanceAlive, samples[0].Info.InstanceState)

	// Nothing unread carries the change, so it arrives as a key-only sample.
	require.NoError(t, w.Unregister(&keyedPayload{InstanceID: 5}))
	samples, err = r.Take()
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.False(t, samples[0].Info.Valid)
	assert.Equal(t, int32(5), samples[0].Data.InstanceID)
	assert.Equal(t, InstanceNotAliveNoWriters, samples[0].Info.InstanceState)

	// An unread sample carries the change itself.
	require.NoError(t, w.Write(&keyedPayload{InstanceID: 6}))
	require.NoError(t, w.Unregister(&keyedPayload{InstanceID: 6}))
	samples, err = r.Take()
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.True(t, samples[0].Info.Valid)
	assert.Equal(t, InstanceNotAliveNoWriters, samples[0].Info.InstanceState)
}

func TestWriterCloseDisposesInstances(t *testing.T) {
	f := newFixture(t)
	r := f.reader(t, nil, nil)
	w := f.writer(t, nil)

	require.NoError(t, w.Write(&keyedPayload{InstanceID: 2}))
	_, err := r.Take()
	require.NoError(t, err)
	require.NoError(t, w.Close())

	samples, err := r.Take()
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, InstanceNotAliveDisposed, samples[0].Info.InstanceState)
}

func TestReadMarksSamplesRead(t *testing.T) {
	f := newFixture(t)
	r := f.reader(t, nil, nil)
	w := f.writer(t, nil)

	require.NoError(t, w.Write(&keyedPayload{InstanceID: 1}))

	samples, err := r.Read()
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, SampleNotRead, samples[0].Info.SampleState)

	unread, err := r.ReadMask(MaskNotRead)
	require.NoError(t, err)
	assert.Empty(t, unread)

	samples, err = r.Read()
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, SampleRead, samples[0].Info.SampleState)

	taken, err := r.TakeMask(MaskRead | MaskAlive)
	require.NoError(t, err)
	assert.Len(t, taken, 1)
}

func TestReadBatchSize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReadBatchSize = 2
	p, err := NewParticipant().WithConfig(cfg).Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	pub, err := p.CreatePublisher().Build()
	require.NoError(t, err)
	sub, err := p.CreateSubscriber().Build()
	require.NoError(t, err)
	topic, err := CreateTopic[keyedPayload](p, t.Name()).Build()
	require.NoError(t, err)
	r, err := CreateReader(sub, topic).Build()
	require.NoError(t, err)
	w, err := CreateWriter(pub, topic).Build()
	require.NoError(t, err)
	keep(t, w)

	for i := range 3 {
		require.NoError(t, w.Write(&keyedPayload{InstanceID: int32(i)}))
	}
	first, err := r.Take()
	require.NoError(t, err)
	assert.Len(t, first, 2)
	rest, err := r.Take()
	require.NoError(t, err)
	assert.Len(t, rest, 1)
}

func TestReadCondition(t *testing.T) {
	f := newFixture(t)
	r := f.reader(t, nil, nil)
	other := f.reader(t, nil, nil)
	w := f.writer(t, nil)

	cond, err := r.CreateReadCondition(MaskNotRead)
	require.NoError(t, err)
	assert.Equal(t, MaskNotRead, cond.Mask())
	triggered, err := cond.Triggered()
	require.NoError(t, err)
	assert.False(t, triggered)

	require.NoError(t, w.Write(&keyedPayload{InstanceID: 1}))
	triggered, err = cond.Triggered()
	require.NoError(t, err)
	assert.True(t, triggered)

	_, err = other.TakeCondition(cond)
	assert.ErrorIs(t, err, ErrBadParameter)

	samples, err := r.ReadCondition(cond)
	require.NoError(t, err)
	assert.Len(t, samples, 1)
	samples, err = r.TakeCondition(cond)
	require.NoError(t, err)
	assert.Empty(t, samples, "already read")
}

func TestTakeWait(t *testing.T) {
	f := newFixture(t)
	r := f.reader(t, nil, nil)
	w := f.writer(t, nil)

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = w.Write(&keyedPayload{InstanceID: 4})
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	samples, err := r.TakeWait(ctx)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, int32(4), samples[0].Data.InstanceID)

	require.NoError(t, w.Write(&keyedPayload{InstanceID: 5}))
	samples, err = r.ReadWait(ctx)
	require.NoError(t, err)
	assert.Len(t, samples, 1)
}

func TestTakeWaitTimeout(t *testing.T) {
	f := newFixture(t)
	r := f.reader(t, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := r.TakeWait(ctx)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	_, err = r.TakeWait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTakeWaitOnClosedReader(t *testing.T) {
	f := newFixture(t)
	r := f.reader(t, nil, nil)

	errc := make(chan error, 1)
	go func() {
		_, err := r.TakeWait(context.Background())
		errc <- err
	}()
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, r.Close())

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrAlreadyDestroyed)
	case <-time.After(eventually):
		t.Fatal("TakeWait did not return after Close")
	}
}

func TestReliableWriteTimesOut(t *testing.T) {
	f := newFixture(t)
	small, err := reliable(t).Builder().
		WithKeepAll().
		WithResourceLimits(ResourceLimits{MaxSamples: 2, MaxInstances: LengthUnlimited, MaxSamplesPerInstance: LengthUnlimited}).
		Build()
	require.NoError(t, err)
	r := f.reader(t, small, nil)
	wq, err := NewQos().WithReliability(ReliabilityReliable, 20*time.Millisecond).Build()
	require.NoError(t, err)
	w := f.writer(t, wq)

	timeouts := writeErrors.WithLabelValues(f.topic.Name(), KindTimeout.String())
	before := testutil.ToFloat64(timeouts)

	require.NoError(t, w.Write(&keyedPayload{InstanceID: 1}))
	require.NoError(t, w.Write(&keyedPayload{InstanceID: 1}))
	start := time.Now()
	err = w.Write(&keyedPayload{InstanceID: 1})
	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(timeouts))

	_, err = r.Take()
	require.NoError(t, err)
	assert.NoError(t, w.Write(&keyedPayload{InstanceID: 1}))
}

func TestBlockedWriteResumesWhenReaderTakes(t *testing.T) {
	f := newFixture(t)
	small, err := reliable(t).Builder().
		WithKeepAll().
		WithResourceLimits(ResourceLimits{MaxSamples: 1, MaxInstances: LengthUnlimited, MaxSamplesPerInstance: LengthUnlimited}).
		Build()
	require.NoError(t, err)
	r := f.reader(t, small, nil)
	wq, err := NewQos().WithReliability(ReliabilityReliable, DurationInfinite).Build()
	require.NoError(t, err)
	w := f.writer(t, wq)

	require.NoError(t, w.Write(&keyedPayload{InstanceID: 1}))
	done := make(chan error, 1)
	go func() { done <- w.Write(&keyedPayload{InstanceID: 2}) }()

	select {
	case <-done:
		t.Fatal("write did not block")
	case <-time.After(10 * time.Millisecond):
	}
	_, err = r.Take()
	require.NoError(t, err)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(eventually):
		t.Fatal("write did not resume")
	}
}

func TestTransientLocalLateJoiner(t *testing.T) {
	f := newFixture(t)
	w := f.writer(t, QosTransientLocal())
	for i := range 3 {
		require.NoError(t, w.Write(&keyedPayload{InstanceID: int32(i % 2), Payload: []byte{byte(i)}}))
	}

	r := f.reader(t, QosTransientLocal(), nil)
	samples, err := r.Take()
	require.NoError(t, err)
	require.Len(t, samples, 2, "one sample per instance at depth 1")
	assert.Equal(t, keyedPayload{InstanceID: 0, Payload: []byte{2}}, samples[0].Data)
	assert.Equal(t, keyedPayload{InstanceID: 1, Payload: []byte{1}}, samples[1].Data)

	volatile := f.reader(t, nil, nil)
	samples, err = volatile.Take()
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestPartitionsSeparateTraffic(t *testing.T) {
	f := newFixture(t)
	inA, err := NewQos().WithPartition("a").Build()
	require.NoError(t, err)
	inB, err := NewQos().WithPartition("b").Build()
	require.NoError(t, err)

	pub, err := f.p.CreatePublisher().WithQos(inA).Build()
	require.NoError(t, err)
	sub, err := f.p.CreateSubscriber().WithQos(inB).Build()
	require.NoError(t, err)
	w, err := CreateWriter(pub, f.topic).Build()
	require.NoError(t, err)
	r, err := CreateReader(sub, f.topic).Build()
	require.NoError(t, err)

	require.NoError(t, w.Write(&keyedPayload{InstanceID: 1}))
	samples, err := r.Take()
	require.NoError(t, err)
	assert.Empty(t, samples)
	matched, err := w.MatchedSubscriptions()
	require.NoError(t, err)
	assert.Empty(t, matched)
}

func TestSourceTimestamp(t *testing.T) {
	mock := clock.NewMock()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.Set(now)
	prev := native.SetClock(mock)
	defer native.SetClock(prev)

	f := newFixture(t)
	r := f.reader(t, keepLast(t, 10), nil)
	w := f.writer(t, nil)

	require.NoError(t, w.Write(&keyedPayload{InstanceID: 1}))
	explicit := now.Add(-time.Hour)
	require.NoError(t, w.WriteWithTimestamp(&keyedPayload{InstanceID: 1}, explicit))

	samples, err := r.Take()
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.True(t, samples[0].Info.SourceTimestamp.Equal(now))
	assert.True(t, samples[1].Info.SourceTimestamp.Equal(explicit))
}

func TestWriterMetrics(t *testing.T) {
	f := newFixture(t)
	r := f.reader(t, nil, nil)
	w := f.writer(t, nil)
	written := samplesWritten.WithLabelValues(f.topic.Name(), "write")
	taken := samplesRead.WithLabelValues(f.topic.Name(), "take")

	require.NoError(t, w.Write(&keyedPayload{InstanceID: 1}))
	require.NoError(t, w.Write(&keyedPayload{InstanceID: 2}))
	_, err := r.Take()
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(written))
	assert.Equal(t, 2.0, testutil.ToFloat64(taken))

	assert.ErrorIs(t, w.Write(nil), ErrBadParameter)
	assert.Equal(t, 1.0, testutil.ToFloat64(writeErrors.WithLabelValues(f.topic.Name(), KindBadParameter.String())))
}

func TestMarshalCDR(t *testing.T) {
	in := reading{Sensor: sensorID{Site: "lab", Unit: 3}, Channel: 2, Value: 21.5, Note: "ok"}
	data, err := MarshalCDR(&in)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x01, 0x00, 0x00}, data[:4], "CDR little endian header")

	var out reading
	require.NoError(t, UnmarshalCDR(data, &out))
	assert.Equal(t, in, out)

	_, err = MarshalCDR[reading](nil)
	assert.ErrorIs(t, err, ErrBadParameter)
	assert.ErrorIs(t, UnmarshalCDR(nil, &out), ErrBadParameter)
	assert.Error(t, UnmarshalCDR([]byte{0, 1, 0, 0, 1}, &out))
}

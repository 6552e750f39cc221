package native

import (
	"crypto/md5"
	"reflect"
	"sync"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type keyed struct {
	ID      int32
	Name    string
	Payload []byte
	hidden  int
}

func keyedSertype(t *testing.T) *Sertype {
	t.Helper()
	st, rc := NewSertype("test::Keyed", reflect.TypeOf(keyed{}), []KeyDescriptor{
		{Name: "ID", Offset: unsafe.Offsetof(keyed{}.ID), Kind: KeyInt32},
	})
	require.Equal(t, RetOK, rc)
	return st
}

type fixture struct {
	pp, topic, pub, sub Entity
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	var f fixture
	f.pp = CreateParticipant(0, nil, nil)
	require.Positive(t, int32(f.pp))
	t.Cleanup(func() { Delete(f.pp) })
	f.topic = CreateTopic(f.pp, t.Name(), keyedSertype(t), nil, nil)
	require.Positive(t, int32(f.topic))
	f.pub = CreatePublisher(f.pp, nil, nil)
	require.Positive(t, int32(f.pub))
	f.sub = CreateSubscriber(f.pp, nil, nil)
	require.Positive(t, int32(f.sub))
	return f
}

func ptr(s *keyed) unsafe.Pointer { return unsafe.Pointer(s) }

func take(t *testing.T, r Entity, n int) ([]keyed, []SampleInfo) {
	t.Helper()
	out := make([]keyed, n)
	bufs := make([]unsafe.Pointer, n)
	for i := range out {
		bufs[i] = ptr(&out[i])
	}
	infos := make([]SampleInfo, n)
	got := Take(r, bufs, infos, AnyState)
	require.GreaterOrEqual(t, got, int32(0))
	return out[:got], infos[:got]
}

func TestKeyCDRIsBigEndian(t *testing.T) {
	st := keyedSertype(t)
	s := keyed{ID: 7, Name: "ignored"}
	key := st.KeyCDR(ptr(&s))
	assert.Equal(t, []byte{0, 0, 0, 7}, key)
	assert.Equal(t, [16]byte{0, 0, 0, 7}, st.KeyHash(key))
}

func TestKeyHashStringKeyUsesMD5(t *testing.T) {
	st, rc := NewSertype("test::Named", reflect.TypeOf(keyed{}), []KeyDescriptor{
		{Name: "Name", Offset: unsafe.Offsetof(keyed{}.Name), Kind: KeyString},
	})
	require.Equal(t, RetOK, rc)
	s := keyed{Name: "ab"}
	key := st.KeyCDR(ptr(&s))
	assert.Equal(t, []byte{0, 0, 0, 3, 'a', 'b', 0}, key)
	assert.Equal(t, md5.Sum(key), st.KeyHash(key))
}

func TestNewSertypeRejectsBadDescriptors(t *testing.T) {
	_, rc := NewSertype("x", reflect.TypeOf(keyed{}), []KeyDescriptor{{Offset: 1 << 20, Kind: KeyInt32}})
	assert.Equal(t, RetBadParameter, rc)

	_, rc = NewSertype("x", reflect.TypeOf(0), nil)
	assert.Equal(t, RetBadParameter, rc)

	type withMap struct{ M map[string]int }
	_, rc = NewSertype("x", reflect.TypeOf(withMap{}), nil)
	assert.Equal(t, RetBadParameter, rc)
}

func TestCDRLayout(t *testing.T) {
	in := keyed{ID: 7, Name: "ab", Payload: []byte{1, 2, 3}, hidden: 9}
	data, err := serialize(reflect.ValueOf(in))
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0, 1, 0, 0,
		7, 0, 0, 0,
		3, 0, 0, 0, 'a', 'b', 0, 0,
		3, 0, 0, 0, 1, 2, 3,
	}, data)

	var out keyed
	require.NoError(t, deserialize(data, reflect.ValueOf(&out).Elem()))
	in.hidden = 0
	assert.Equal(t, in, out)

	assert.Error(t, deserialize(data[:10], reflect.ValueOf(&out).Elem()))
}

func TestWriteTake(t *testing.T) {
	f := newFixture(t)
	w := CreateWriter(f.pub, f.topic, nil, nil)
	r := CreateReader(f.sub, f.topic, nil, nil)
	require.Positive(t, int32(w))
	require.Positive(t, int32(r))

	s := keyed{ID: 7, Payload: []byte{1, 2, 3}}
	require.Equal(t, RetOK, Write(w, ptr(&s)))

	got, infos := take(t, r, 4)
	require.Len(t, got, 1)
	assert.Equal(t, s, got[0])
	assert.True(t, infos[0].ValidData)
	assert.Equal(t, InstanceStateAlive, infos[0].InstanceState)
	assert.Equal(t, ViewStateNew, infos[0].ViewState)
	assert.Equal(t, SampleStateNotRead, infos[0].SampleState)
	assert.Equal(t, LookupInstance(w, ptr(&s)), infos[0].InstanceHandle)
	assert.Equal(t, LookupInstance(r, ptr(&s)), infos[0].InstanceHandle)

	got, _ = take(t, r, 4)
	assert.Empty(t, got)
}

func TestInstanceHandleSharedAcrossReaders(t *testing.T) {
	f := newFixture(t)
	w := CreateWriter(f.pub, f.topic, nil, nil)
	r1 := CreateReader(f.sub, f.topic, nil, nil)
	r2 := CreateReader(f.sub, f.topic, nil, nil)

	s := keyed{ID: 3}
	require.Equal(t, RetOK, Write(w, ptr(&s)))
	_, i1 := take(t, r1, 1)
	_, i2 := take(t, r2, 1)
	require.Len(t, i1, 1)
	require.Len(t, i2, 1)
	assert.Equal(t, i1[0].InstanceHandle, i2[0].InstanceHandle)
}

func TestDisposeProducesInvalidSample(t *testing.T) {
	f := newFixture(t)
	w := CreateWriter(f.pub, f.topic, nil, nil)
	r := CreateReader(f.sub, f.topic, nil, nil)

	s := keyed{ID: 1}
	require.Equal(t, RetOK, Write(w, ptr(&s)))
	var out keyed
	infos := make([]SampleInfo, 1)
	require.EqualValues(t, 1, Read(r, []unsafe.Pointer{ptr(&out)}, infos, AnyState))

	require.Equal(t, RetOK, Dispose(w, ptr(&s)))
	got, gotInfos := take(t, r, 4)
	require.Len(t, got, 2)
	assert.True(t, gotInfos[0].ValidData)
	assert.Equal(t, SampleStateRead, gotInfos[0].SampleState)
	assert.False(t, gotInfos[1].ValidData)
	assert.Equal(t, InstanceStateNotAliveDisposed, gotInfos[1].InstanceState)

	require.Equal(t, RetOK, Write(w, ptr(&s)))
	_, gotInfos = take(t, r, 4)
	require.Len(t, gotInfos, 1)
	assert.Equal(t, InstanceStateAlive, gotInfos[0].InstanceState)
	assert.EqualValues(t, 1, gotInfos[0].DisposedGenerationCount)
	assert.Equal(t, ViewStateNew, gotInfos[0].ViewState)
}

func TestUnregisterWithoutAutodispose(t *testing.T) {
	f := newFixture(t)
	q := CreateQos()
	q.Present = PolicyWriterDataLifecycle
	q.AutodisposeUnregistered = false
	w := CreateWriter(f.pub, f.topic, q, nil)
	r := CreateReader(f.sub, f.topic, nil, nil)

	s := keyed{ID: 2}
	assert.Equal(t, RetPreconditionNotMet, Unregister(w, ptr(&s)))
	require.Equal(t, RetOK, Write(w, ptr(&s)))
	take(t, r, 1)
	require.Equal(t, RetOK, Unregister(w, ptr(&s)))

	got, infos := take(t, r, 1)
	require.Len(t, infos, 1)
	assert.False(t, infos[0].ValidData)
	assert.Equal(t, InstanceStateNotAliveNoWriters, infos[0].InstanceState)
	assert.EqualValues(t, 2, got[0].ID)
	assert.Zero(t, LookupInstance(r, ptr(&s)))
}

func TestDeleteOrder(t *testing.T) {
	var mu sync.Mutex
	var got []Kind
	prev := SetTrace(func(_ Entity, k Kind) {
		mu.Lock()
		got = append(got, k)
		mu.Unlock()
	})
	defer SetTrace(prev)

	f := newFixture(t)
	w := CreateWriter(f.pub, f.topic, nil, nil)
	r := CreateReader(f.sub, f.topic, nil, nil)
	require.Positive(t, int32(CreateReadCondition(r, AnyState)))
	require.Positive(t, int32(CreateWaitset(f.pp)))
	require.Positive(t, int32(w))

	assert.Equal(t, RetPreconditionNotMet, Delete(f.topic))
	require.Equal(t, RetOK, Delete(f.pp))
	assert.Equal(t, RetAlreadyDeleted, Delete(f.pp))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Kind{
		KindWaitset, KindReadCondition, KindReader, KindSubscriber,
		KindWriter, KindPublisher, KindTopic, KindParticipant,
	}, got)
}

func TestDeleteWaitsForCallback(t *testing.T) {
	f := newFixture(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	l := &Listener{DataAvailable: func(Entity, uintptr) {
		once.Do(func() { close(entered) })
		<-release
	}}
	r := CreateReader(f.sub, f.topic, nil, l)
	w := CreateWriter(f.pub, f.topic, nil, nil)
	s := keyed{ID: 1}
	require.Equal(t, RetOK, Write(w, ptr(&s)))
	<-entered

	done := make(chan ReturnCode, 1)
	go func() { done <- Delete(r) }()
	select {
	case <-done:
		t.Fatal("Delete returned while a callback was running")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	assert.Equal(t, RetOK, <-done)
}

func TestListenerArgument(t *testing.T) {
	f := newFixture(t)
	got := make(chan uintptr, 1)
	l := &Listener{Arg: 99, SubscriptionMatched: func(_ Entity, st SubscriptionMatchedStatus, arg uintptr) {
		if st.CurrentCount == 1 {
			got <- arg
		}
	}}
	require.Positive(t, int32(CreateReader(f.sub, f.topic, nil, l)))
	require.Positive(t, int32(CreateWriter(f.pub, f.topic, nil, nil)))
	select {
	case arg := <-got:
		assert.EqualValues(t, 99, arg)
	case <-time.After(time.Second):
		t.Fatal("no subscription matched callback")
	}
}

func TestReliableWriterTimesOut(t *testing.T) {
	f := newFixture(t)
	wq := CreateQos()
	wq.Present = PolicyReliability
	wq.ReliabilityKind = ReliabilityReliable
	wq.MaxBlockingTime = int64(10 * time.Millisecond)
	rq := CreateQos()
	rq.Present = PolicyReliability | PolicyHistory | PolicyResourceLimits
	rq.ReliabilityKind = ReliabilityReliable
	rq.HistoryKind = HistoryKeepAll
	rq.MaxSamples, rq.MaxInstances, rq.MaxSamplesPerInstance = 1, Unlimited, 1

	w := CreateWriter(f.pub, f.topic, wq, nil)
	r := CreateReader(f.sub, f.topic, rq, nil)
	require.Positive(t, int32(w))
	require.Positive(t, int32(r))

	s := keyed{ID: 1}
	require.Equal(t, RetOK, Write(w, ptr(&s)))
	assert.Equal(t, RetTimeout, Write(w, ptr(&s)))
	take(t, r, 1)
	assert.Equal(t, RetOK, Write(w, ptr(&s)))
}

func TestIncompatibleQos(t *testing.T) {
	f := newFixture(t)
	wq := CreateQos()
	wq.Present = PolicyReliability
	wq.ReliabilityKind = ReliabilityBestEffort
	rq := CreateQos()
	rq.Present = PolicyReliability
	rq.ReliabilityKind = ReliabilityReliable

	w := CreateWriter(f.pub, f.topic, wq, nil)
	r := CreateReader(f.sub, f.topic, rq, nil)
	st, rc := GetRequestedIncompatibleQosStatus(r)
	require.Equal(t, RetOK, rc)
	assert.EqualValues(t, 1, st.TotalCount)
	assert.Equal(t, QosPolicyReliability, st.LastPolicyID)

	ost, rc := GetOfferedIncompatibleQosStatus(w)
	require.Equal(t, RetOK, rc)
	assert.EqualValues(t, 1, ost.TotalCount)

	ms, rc := GetSubscriptionMatchedStatus(r)
	require.Equal(t, RetOK, rc)
	assert.Zero(t, ms.CurrentCount)
}

func TestInconsistentTopic(t *testing.T) {
	f := newFixture(t)
	type other struct{ X int32 }
	st, rc := NewSertype("test::Other", reflect.TypeOf(other{}), nil)
	require.Equal(t, RetOK, rc)

	h := CreateTopic(f.pp, t.Name(), st, nil, nil)
	assert.Equal(t, RetPreconditionNotMet, h.Code())

	status, rc := GetInconsistentTopicStatus(f.topic)
	require.Equal(t, RetOK, rc)
	assert.EqualValues(t, 1, status.TotalCount)
}

func TestTransientLocalLateJoiner(t *testing.T) {
	f := newFixture(t)
	q := CreateQos()
	q.Present = PolicyDurability | PolicyReliability
	q.DurabilityKind = DurabilityTransientLocal
	q.ReliabilityKind = ReliabilityReliable
	q.MaxBlockingTime = int64(time.Second)

	w := CreateWriter(f.pub, f.topic, q, nil)
	s := keyed{ID: 5, Name: "early"}
	require.Equal(t, RetOK, Write(w, ptr(&s)))

	r := CreateReader(f.sub, f.topic, q, nil)
	got, _ := take(t, r, 2)
	require.Len(t, got, 1)
	assert.Equal(t, "early", got[0].Name)
}

func TestWaitsetWait(t *testing.T) {
	f := newFixture(t)
	w := CreateWriter(f.pub, f.topic, nil, nil)
	r := CreateReader(f.sub, f.topic, nil, nil)
	ws := CreateWaitset(f.pp)
	rc := CreateReadCondition(r, SampleStateNotRead)
	require.Equal(t, RetOK, WaitsetAttach(ws, rc, 42))
	assert.Equal(t, RetPreconditionNotMet, WaitsetAttach(ws, rc, 42))

	xs := make([]uintptr, 2)
	assert.Zero(t, WaitsetWait(ws, xs, int64(10*time.Millisecond)))

	s := keyed{ID: 1}
	require.Equal(t, RetOK, Write(w, ptr(&s)))
	require.EqualValues(t, 1, WaitsetWait(ws, xs, Infinity))
	assert.EqualValues(t, 42, xs[0])

	gc := CreateGuardCondition(f.pp)
	require.Equal(t, RetOK, WaitsetDetach(ws, rc))
	require.Equal(t, RetOK, WaitsetAttach(ws, gc, 7))
	go func() {
		time.Sleep(10 * time.Millisecond)
		SetGuardCondition(gc, true)
	}()
	require.EqualValues(t, 1, WaitsetWait(ws, xs, Infinity))
	assert.EqualValues(t, 7, xs[0])
	v, _ := TakeGuardCondition(gc)
	assert.True(t, v)
}

func TestCreationFailures(t *testing.T) {
	f := newFixture(t)

	q := CreateQos()
	q.Present = PolicyResourceLimits
	q.MaxSamples, q.MaxInstances, q.MaxSamplesPerInstance = 1, Unlimited, 2
	assert.Equal(t, RetInconsistentPolicy, CreateReader(f.sub, f.topic, q, nil).Code())

	assert.Equal(t, RetIllegalOperation, CreateReader(f.pub, f.topic, nil, nil).Code())
	assert.Equal(t, RetBadParameter, CreateTopic(f.pp, "", keyedSertype(t), nil, nil).Code())

	prev := SetMaxEntities(3)
	defer SetMaxEntities(prev)
	assert.Equal(t, RetOutOfResources, CreatePublisher(f.pp, nil, nil).Code())
}

func TestQosRoundTrip(t *testing.T) {
	f := newFixture(t)
	q := CreateQos()
	q.Present = PolicyHistory | PolicyPartition | PolicyUserData
	q.HistoryKind, q.HistoryDepth = HistoryKeepLast, 5
	q.Partition = []string{"a"}
	q.UserData = []byte("x")
	sub := CreateSubscriber(f.pp, q, nil)
	got, rc := GetQos(sub)
	require.Equal(t, RetOK, rc)
	assert.True(t, QosEqual(q, got))
	got.HistoryDepth = 6
	assert.False(t, QosEqual(q, got))
}

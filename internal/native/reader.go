package native

import (
	"reflect"
	"unsafe"
)

type readerData struct {
	topic   *entity
	matched map[*entity]struct{}
	rhc     *rhc
}

// CreateReader creates a reader for topic owned by subscriber sub.
func CreateReader(sub, topic Entity, qos *Qos, l *Listener) Entity {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	s, rc := rt.lookup(sub, KindSubscriber)
	if rc != RetOK {
		return Entity(rc)
	}
	t, rc := rt.lookup(topic, KindTopic)
	if rc != RetOK {
		return Entity(rc)
	}
	if t.parent != s.parent {
		return Entity(RetBadParameter)
	}
	e, rc := rt.create(s, KindReader, qos, l)
	if rc != RetOK {
		return Entity(rc)
	}
	e.reader = &readerData{
		topic:   t,
		matched: make(map[*entity]struct{}),
		rhc:     newRhc(e.qos),
	}
	t.topic.users++
	e.dom.readers = append(e.dom.readers, e)
	for _, w := range e.dom.writers {
		rt.tryMatch(w, e)
	}
	return e.handle
}

func (r *runtimeState) teardownReader(e *entity) {
	for w := range e.reader.matched {
		r.unmatch(w, e)
	}
	e.reader.topic.topic.users--
	removeEntity(&e.dom.readers, e)
}

// Read copies up to len(bufs) samples matching mask into bufs without
// removing them from the reader. h is a reader or a read condition, whose
// own mask then applies. It returns the sample count or a return code.
func Read(h Entity, bufs []unsafe.Pointer, infos []SampleInfo, mask uint32) int32 {
	return readOrTake(h, bufs, infos, mask, false)
}

// Take is Read, removing the returned samples.
func Take(h Entity, bufs []unsafe.Pointer, infos []SampleInfo, mask uint32) int32 {
	return readOrTake(h, bufs, infos, mask, true)
}

func readOrTake(h Entity, bufs []unsafe.Pointer, infos []SampleInfo, mask uint32, take bool) int32 {
	limit := min(len(bufs), len(infos))
	if limit == 0 {
		return int32(RetBadParameter)
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	e, rc := rt.lookup(h, KindReader, KindReadCondition)
	if rc != RetOK {
		return int32(rc)
	}
	if e.kind == KindReadCondition {
		mask = e.cond.mask
		e = e.parent
	}
	st := e.reader.topic.topic.st
	res := e.reader.rhc.collect(mask, limit, take)
	e.status &^= StatusDataAvailable.Mask()
	if e.parent != nil {
		e.parent.status &^= StatusDataOnReaders.Mask()
	}
	rt.notify()
	for i, s := range res {
		infos[i] = s.info
		if bufs[i] == nil {
			return int32(RetBadParameter)
		}
		if !s.info.ValidData {
			if rc := st.KeyToSample(s.keyCDR, bufs[i]); rc != RetOK {
				return int32(rc)
			}
			continue
		}
		if err := deserialize(s.payload, reflect.NewAt(st.Type, bufs[i]).Elem()); err != nil {
			return int32(RetError)
		}
	}
	return int32(len(res))
}

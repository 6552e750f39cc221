package native

import (
	"reflect"
	"time"
	"unsafe"
)

type writerData struct {
	topic     *entity
	matched   map[*entity]struct{}
	instances map[uint64][]byte

	// whc is the writer history kept for late joining TransientLocal
	// readers, per instance in registration order.
	keepHistory bool
	depth       int
	whc         map[uint64][]*serdata
	whcOrder    []uint64
}

func (w *writerData) history() []*serdata {
	var out []*serdata
	for _, ih := range w.whcOrder {
		out = append(out, w.whc[ih]...)
	}
	return out
}

func (w *writerData) remember(sd *serdata) {
	if !w.keepHistory {
		return
	}
	if sd.unregister {
		delete(w.whc, sd.ih)
		for i, ih := range w.whcOrder {
			if ih == sd.ih {
				w.whcOrder = append(w.whcOrder[:i], w.whcOrder[i+1:]...)
				break
			}
		}
		return
	}
	hist, ok := w.whc[sd.ih]
	if !ok {
		w.whcOrder = append(w.whcOrder, sd.ih)
	}
	hist = append(hist, sd)
	if w.depth > 0 && len(hist) > w.depth {
		hist = hist[len(hist)-w.depth:]
	}
	w.whc[sd.ih] = hist
}

// CreateWriter creates a writer for topic owned by publisher pub.
func CreateWriter(pub, topic Entity, qos *Qos, l *Listener) Entity {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	p, rc := rt.lookup(pub, KindPublisher)
	if rc != RetOK {
		return Entity(rc)
	}
	t, rc := rt.lookup(topic, KindTopic)
	if rc != RetOK {
		return Entity(rc)
	}
	if t.parent != p.parent {
		return Entity(RetBadParameter)
	}
	e, rc := rt.create(p, KindWriter, qos, l)
	if rc != RetOK {
		return Entity(rc)
	}
	kind, depth := e.qos.history()
	e.writer = &writerData{
		topic:       t,
		matched:     make(map[*entity]struct{}),
		instances:   make(map[uint64][]byte),
		keepHistory: e.qos.durability() >= DurabilityTransientLocal,
		whc:         make(map[uint64][]*serdata),
	}
	if kind == HistoryKeepLast {
		e.writer.depth = int(depth)
	}
	t.topic.users++
	e.dom.writers = append(e.dom.writers, e)
	for _, r := range e.dom.readers {
		rt.tryMatch(e, r)
	}
	return e.handle
}

func (r *runtimeState) teardownWriter(e *entity) {
	w := e.writer
	autodispose := e.qos.autodispose()
	for ih, key := range w.instances {
		sd := &serdata{keyCDR: key, ih: ih, ts: r.clock.Now().UnixNano(), pub: e.ih, unregister: true, dispose: autodispose}
		for rd := range w.matched {
			r.deliver(rd, sd)
		}
	}
	for rd := range w.matched {
		r.unmatch(e, rd)
	}
	w.topic.topic.users--
	removeEntity(&e.dom.writers, e)
}

func removeEntity(list *[]*entity, e *entity) {
	for i, x := range *list {
		if x == e {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return
		}
	}
}

type writeOp int

const (
	opWrite writeOp = iota
	opWriteDispose
	opDispose
	opUnregister
	opRegister
)

// Write publishes the sample at p, stamped with the current time.
func Write(h Entity, p unsafe.Pointer) ReturnCode {
	_, rc := write(h, p, 0, false, opWrite)
	return rc
}

// WriteTs publishes the sample at p with source timestamp ts.
func WriteTs(h Entity, p unsafe.Pointer, ts int64) ReturnCode {
	_, rc := write(h, p, ts, true, opWrite)
	return rc
}

// WriteDispose publishes the sample at p and disposes its instance.
func WriteDispose(h Entity, p unsafe.Pointer) ReturnCode {
	_, rc := write(h, p, 0, false, opWriteDispose)
	return rc
}

// Dispose disposes the instance whose key fields are set in p.
func Dispose(h Entity, p unsafe.Pointer) ReturnCode {
	_, rc := write(h, p, 0, false, opDispose)
	return rc
}

// Unregister unregisters the instance whose key fields are set in p.
func Unregister(h Entity, p unsafe.Pointer) ReturnCode {
	_, rc := write(h, p, 0, false, opUnregister)
	return rc
}

// RegisterInstance registers the instance whose key fields are set in p and
// returns its handle.
func RegisterInstance(h Entity, p unsafe.Pointer) (uint64, ReturnCode) {
	return write(h, p, 0, false, opRegister)
}

func write(h Entity, p unsafe.Pointer, ts int64, stamped bool, op writeOp) (uint64, ReturnCode) {
	if p == nil {
		return 0, RetBadParameter
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	e, rc := rt.lookup(h, KindWriter)
	if rc != RetOK {
		return 0, rc
	}
	if !stamped {
		ts = rt.clock.Now().UnixNano()
	}
	t := e.writer.topic.topic
	key := t.st.KeyCDR(p)
	sd := &serdata{keyCDR: key, ts: ts, pub: e.ih}
	switch op {
	case opWrite:
		sd.data = true
	case opWriteDispose:
		sd.data, sd.dispose = true, true
	case opDispose:
		sd.dispose = true
	case opUnregister:
		sd.unregister = true
		sd.dispose = e.qos.autodispose()
	}
	if sd.data {
		payload, err := serialize(reflect.NewAt(t.st.Type, p).Elem())
		if err != nil {
			return 0, RetBadParameter
		}
		sd.payload = payload
	}
	sd.ih = rt.instanceHandle(e.dom, t.name, key, true)
	if op == opRegister {
		e.writer.instances[sd.ih] = key
		return sd.ih, RetOK
	}
	if op == opUnregister {
		if _, ok := e.writer.instances[sd.ih]; !ok {
			return 0, RetPreconditionNotMet
		}
	}
	if sd.data {
		if e, rc = rt.flowControl(h, e, sd.ih); rc != RetOK {
			return 0, rc
		}
	}
	w := e.writer
	if sd.unregister {
		delete(w.instances, sd.ih)
	} else {
		w.instances[sd.ih] = key
	}
	w.remember(sd)
	for r := range w.matched {
		rt.deliver(r, sd)
	}
	return sd.ih, RetOK
}

// flowControl blocks a reliable writer while a matched reliable KeepAll
// reader has no room for ih, for at most the max blocking time.
func (r *runtimeState) flowControl(h Entity, e *entity, ih uint64) (*entity, ReturnCode) {
	kind, maxBlocking := e.qos.reliability(KindWriter)
	if kind != ReliabilityReliable {
		return e, RetOK
	}
	bounded := maxBlocking != Infinity
	var deadline time.Time
	if bounded {
		deadline = r.clock.Now().Add(time.Duration(maxBlocking))
	}
	for r.blocked(e, ih) {
		if bounded && !r.clock.Now().Before(deadline) {
			return nil, RetTimeout
		}
		r.waitChanged(deadline, bounded)
		var rc ReturnCode
		if e, rc = r.lookup(h, KindWriter); rc != RetOK {
			return nil, rc
		}
	}
	return e, RetOK
}

func (r *runtimeState) blocked(e *entity, ih uint64) bool {
	for rd := range e.writer.matched {
		if kind, _ := rd.qos.reliability(KindReader); kind == ReliabilityReliable && rd.reader.rhc.full(ih) {
			return true
		}
	}
	return false
}

// LookupInstance returns the handle of the instance whose key fields are set
// in p, or zero when writer or reader h does not know it.
func LookupInstance(h Entity, p unsafe.Pointer) uint64 {
	if p == nil {
		return 0
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	e, rc := rt.lookup(h, KindWriter, KindReader)
	if rc != RetOK {
		return 0
	}
	var t *topicData
	if e.kind == KindWriter {
		t = e.writer.topic.topic
	} else {
		t = e.reader.topic.topic
	}
	ih := rt.instanceHandle(e.dom, t.name, t.st.KeyCDR(p), false)
	if ih == 0 {
		return 0
	}
	if e.kind == KindWriter {
		if _, ok := e.writer.instances[ih]; !ok {
			return 0
		}
		return ih
	}
	return e.reader.rhc.lookup(ih)
}

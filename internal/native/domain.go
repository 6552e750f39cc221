package native

import (
	"bytes"

	"github.com/spaolacci/murmur3"
)

type event struct {
	target Entity
	id     StatusID
	status any
}

type domain struct {
	id           uint32
	participants int

	topics  map[string]*topicEntry
	writers []*entity
	readers []*entity

	queue []event
	wake  chan struct{}
	quit  chan struct{}
}

// topicEntry is the domain-wide view of a topic name: its type, the topic
// entities created for it and its instance handle table.
type topicEntry struct {
	typeName  string
	entities  []*entity
	instances map[uint32][]*instanceEntry
}

type instanceEntry struct {
	keyCDR []byte
	ih     uint64
}

func (r *runtimeState) acquireDomain(id uint32) *domain {
	d := r.domains[id]
	if d == nil {
		d = &domain{
			id:     id,
			topics: make(map[string]*topicEntry),
			wake:   make(chan struct{}, 1),
			quit:   make(chan struct{}),
		}
		r.domains[id] = d
		go d.dispatch()
	}
	d.participants++
	return d
}

func (r *runtimeState) releaseDomain(d *domain) {
	d.participants--
	if d.participants > 0 {
		return
	}
	d.queue = nil
	close(d.quit)
	delete(r.domains, d.id)
}

func (d *domain) enqueue(ev event) {
	d.queue = append(d.queue, ev)
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// dispatch is the listener thread of a domain. Events are delivered in the
// order they were raised, one at a time.
func (d *domain) dispatch() {
	for {
		select {
		case <-d.quit:
			return
		case <-d.wake:
		}
		for d.dispatchOne() {
		}
	}
}

func (d *domain) dispatchOne() bool {
	rt.mu.Lock()
	if len(d.queue) == 0 {
		rt.mu.Unlock()
		return false
	}
	ev := d.queue[0]
	d.queue[0] = event{}
	d.queue = d.queue[1:]
	e := rt.entities[ev.target]
	if e == nil || e.deleted || !e.listener.has(ev.id) {
		rt.mu.Unlock()
		return true
	}
	l := e.listener
	e.inflight++
	rt.mu.Unlock()

	defer func() {
		rt.mu.Lock()
		e.inflight--
		if e.inflight == 0 {
			rt.idle.Broadcast()
		}
		rt.mu.Unlock()
	}()
	l.invoke(ev)
	return true
}

// instanceHandle maps a key to the domain-wide instance handle of topic
// name. With create unset an unknown key yields zero.
func (r *runtimeState) instanceHandle(d *domain, name string, keyCDR []byte, create bool) uint64 {
	t := d.topics[name]
	if t == nil {
		return 0
	}
	h := murmur3.Sum32(keyCDR)
	for _, in := range t.instances[h] {
		if bytes.Equal(in.keyCDR, keyCDR) {
			return in.ih
		}
	}
	if !create {
		return 0
	}
	in := &instanceEntry{keyCDR: bytes.Clone(keyCDR), ih: r.newIH()}
	t.instances[h] = append(t.instances[h], in)
	return in.ih
}

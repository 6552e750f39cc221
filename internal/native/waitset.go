package native

import (
	"slices"
	"time"
)

type waitsetData struct {
	attached map[Entity]uintptr
	order    []Entity
	trigger  bool
}

func (ws *waitsetData) detach(h Entity) bool {
	if _, ok := ws.attached[h]; !ok {
		return false
	}
	delete(ws.attached, h)
	ws.order = slices.DeleteFunc(ws.order, func(x Entity) bool { return x == h })
	return true
}

type condData struct {
	mask      uint32
	triggered bool
}

// CreateWaitset creates a wait set owned by participant pp.
func CreateWaitset(pp Entity) Entity {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	p, rc := rt.lookup(pp, KindParticipant)
	if rc != RetOK {
		return Entity(rc)
	}
	e, rc := rt.create(p, KindWaitset, nil, nil)
	if rc != RetOK {
		return Entity(rc)
	}
	e.waitset = &waitsetData{attached: make(map[Entity]uintptr)}
	return e.handle
}

// CreateReadCondition creates a condition on reader that triggers while the
// reader holds samples matching mask.
func CreateReadCondition(reader Entity, mask uint32) Entity {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	r, rc := rt.lookup(reader, KindReader)
	if rc != RetOK {
		return Entity(rc)
	}
	e, rc := rt.create(r, KindReadCondition, nil, nil)
	if rc != RetOK {
		return Entity(rc)
	}
	e.cond = &condData{mask: mask}
	return e.handle
}

// CreateGuardCondition creates a manually triggered condition owned by
// participant pp.
func CreateGuardCondition(pp Entity) Entity {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	p, rc := rt.lookup(pp, KindParticipant)
	if rc != RetOK {
		return Entity(rc)
	}
	e, rc := rt.create(p, KindGuardCondition, nil, nil)
	if rc != RetOK {
		return Entity(rc)
	}
	e.cond = &condData{}
	return e.handle
}

// SetGuardCondition sets or resets guard condition h.
func SetGuardCondition(h Entity, triggered bool) ReturnCode {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	e, rc := rt.lookup(h, KindGuardCondition)
	if rc != RetOK {
		return rc
	}
	e.cond.triggered = triggered
	rt.notify()
	return RetOK
}

// ReadGuardCondition returns the state of guard condition h.
func ReadGuardCondition(h Entity) (bool, ReturnCode) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	e, rc := rt.lookup(h, KindGuardCondition)
	if rc != RetOK {
		return false, rc
	}
	return e.cond.triggered, RetOK
}

// TakeGuardCondition returns and resets the state of guard condition h.
func TakeGuardCondition(h Entity) (bool, ReturnCode) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	e, rc := rt.lookup(h, KindGuardCondition)
	if rc != RetOK {
		return false, rc
	}
	v := e.cond.triggered
	e.cond.triggered = false
	return v, RetOK
}

// GetMask returns the state mask of read condition h.
func GetMask(h Entity) (uint32, ReturnCode) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	e, rc := rt.lookup(h, KindReadCondition)
	if rc != RetOK {
		return 0, rc
	}
	return e.cond.mask, RetOK
}

func triggered(e *entity) bool {
	switch e.kind {
	case KindReadCondition:
		return e.parent.reader.rhc.any(e.cond.mask)
	case KindGuardCondition:
		return e.cond.triggered
	case KindWaitset:
		return e.waitset.trigger
	default:
		return e.status&e.mask != 0
	}
}

// Triggered reports whether h is in its triggered state.
func Triggered(h Entity) (bool, ReturnCode) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	e, rc := rt.lookup(h)
	if rc != RetOK {
		return false, rc
	}
	return triggered(e), RetOK
}

// WaitsetAttach attaches h to wait set ws; x is reported back when h
// triggers.
func WaitsetAttach(ws, h Entity, x uintptr) ReturnCode {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	w, rc := rt.lookup(ws, KindWaitset)
	if rc != RetOK {
		return rc
	}
	e, rc := rt.lookup(h)
	if rc != RetOK {
		return rc
	}
	if e.dom != w.dom {
		return RetBadParameter
	}
	if _, ok := w.waitset.attached[h]; ok {
		return RetPreconditionNotMet
	}
	w.waitset.attached[h] = x
	w.waitset.order = append(w.waitset.order, h)
	rt.notify()
	return RetOK
}

// WaitsetDetach detaches h from wait set ws.
func WaitsetDetach(ws, h Entity) ReturnCode {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	w, rc := rt.lookup(ws, KindWaitset)
	if rc != RetOK {
		return rc
	}
	if !w.waitset.detach(h) {
		return RetPreconditionNotMet
	}
	return RetOK
}

// WaitsetSetTrigger sets the wait set's own trigger, which makes Wait
// return until it is reset.
func WaitsetSetTrigger(ws Entity, trigger bool) ReturnCode {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	w, rc := rt.lookup(ws, KindWaitset)
	if rc != RetOK {
		return rc
	}
	w.waitset.trigger = trigger
	rt.notify()
	return RetOK
}

// WaitsetWait blocks until an attached entity triggers, the wait set is
// triggered or timeout nanoseconds pass. It stores the attach arguments of
// the triggered entities in xs and returns how many triggered, which may
// exceed len(xs).
func WaitsetWait(ws Entity, xs []uintptr, timeout int64) int32 {
	if timeout < 0 {
		return int32(RetBadParameter)
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	bounded := timeout != Infinity
	var deadline time.Time
	if bounded {
		deadline = rt.clock.Now().Add(time.Duration(timeout))
	}
	for {
		w, rc := rt.lookup(ws, KindWaitset)
		if rc != RetOK {
			return int32(rc)
		}
		n := 0
		for _, h := range w.waitset.order {
			if e := rt.entities[h]; e != nil && !e.deleted && triggered(e) {
				if n < len(xs) {
					xs[n] = w.waitset.attached[h]
				}
				n++
			}
		}
		if n > 0 || w.waitset.trigger {
			return int32(n)
		}
		if bounded && !rt.clock.Now().Before(deadline) {
			return 0
		}
		rt.waitChanged(deadline, bounded)
	}
}

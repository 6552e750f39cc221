package dds

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/ZettaScaleLabs/dds-go/internal/native"
)

// WaitSet blocks until one of its attached conditions or entities
// triggers. Attached entities stay referenced until detached or closed.
type WaitSet struct {
	*entity
	participant *Participant

	mu       sync.Mutex
	attached map[native.Entity]Entity
	trigger  bool // set by SetTrigger
	cancels  int  // waits woken by their context and not yet returned
}

// CreateWaitSet creates a wait set
func (p *Participant) CreateWaitSet() (*WaitSet, error) {
	e, err := p.newChild(KindWaitSet, nil, func(pp native.Entity, _ *native.Listener) native.Entity {
		return native.CreateWaitset(pp)
	})
	if err != nil {
		return nil, err
	}
	ws := &WaitSet{entity: e, participant: p, attached: make(map[native.Entity]Entity)}
	runtime.SetFinalizer(ws, (*WaitSet).Close)
	return ws, nil
}

// Attach adds e to the entities the wait set reports. Attaching the same
// entity twice fails with ErrPreconditionNotMet.
func (ws *WaitSet) Attach(e Entity) error {
	h, err := ws.liveHandle()
	if err != nil {
		return err
	}
	if e.IsClosed() {
		return newKindError(KindAlreadyDestroyed, fmt.Sprintf("cannot attach closed %s", e.Kind()))
	}
	ws.mu.Lock()
	defer ws.mu.Unlock()
	eh := native.Entity(e.Handle())
	if err := retError(native.WaitsetAttach(h, eh, uintptr(eh)), "attach %s to wait set", e.Kind()); err != nil {
		return err
	}
	ws.attached[eh] = e
	return nil
}

// Detach removes e from the wait set
func (ws *WaitSet) Detach(e Entity) error {
	h, err := ws.liveHandle()
	if err != nil {
		return err
	}
	ws.mu.Lock()
	defer ws.mu.Unlock()
	for eh, x := range ws.attached {
		if x == e {
			delete(ws.attached, eh)
			if x.IsClosed() {
				return nil
			}
			return retError(native.WaitsetDetach(h, eh), "detach %s from wait set", e.Kind())
		}
	}
	return newKindError(KindPreconditionNotMet, fmt.Sprintf("%s is not attached", e.Kind()))
}

// SetTrigger sets the wait set's own trigger. While set, Wait returns
// immediately.
func (ws *WaitSet) SetTrigger(trigger bool) error {
	h, err := ws.liveHandle()
	if err != nil {
		return err
	}
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.trigger = trigger
	return ws.syncTrigger(h)
}

func (ws *WaitSet) syncTrigger(h native.Entity) error {
	return retError(native.WaitsetSetTrigger(h, ws.trigger || ws.cancels > 0), "set wait set trigger")
}

// Wait blocks until an attached entity triggers, the trigger is set or ctx
// ends, and returns the triggered entities in attach order. It returns an
// empty result when only the trigger is set. A passed deadline fails with
// ErrTimeout.
func (ws *WaitSet) Wait(ctx context.Context) ([]Entity, error) {
	for {
		xs, err := ws.wait(ctx)
		if err != nil {
			return nil, err
		}
		ws.mu.Lock()
		triggered := make([]Entity, 0, len(xs))
		for _, x := range xs {
			if e, ok := ws.attached[native.Entity(x)]; ok && !e.IsClosed() {
				triggered = append(triggered, e)
			}
		}
		self := ws.trigger
		ws.mu.Unlock()
		if len(triggered) > 0 || self {
			return triggered, nil
		}
		// Woken by another waiter's context.
		runtime.Gosched()
	}
}

// wait runs one native wait. A done ctx wakes it through the trigger.
func (ws *WaitSet) wait(ctx context.Context) ([]uintptr, error) {
	h, err := ws.liveHandle()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, ctxError(ctx)
	}
	ws.mu.Lock()
	xs := make([]uintptr, len(ws.attached))
	ws.mu.Unlock()

	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(fired)
		ws.mu.Lock()
		ws.cancels++
		_ = ws.syncTrigger(h)
		ws.mu.Unlock()
	})
	n := native.WaitsetWait(h, xs, native.Infinity)
	if !stop() {
		<-fired
		ws.mu.Lock()
		ws.cancels--
		_ = ws.syncTrigger(h)
		ws.mu.Unlock()
		return nil, ctxError(ctx)
	}
	if n < 0 {
		return nil, retError(native.ReturnCode(n), "wait")
	}
	return xs[:min(int(n), len(xs))], nil
}

// ctxError reports why ctx ended, a deadline as ErrTimeout.
func ctxError(ctx context.Context) error {
	err := ctx.Err()
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}

// ReadCondition triggers while its reader holds samples matching a state
// mask. It is owned by the reader.
type ReadCondition struct {
	*entity
	reader Entity
	mask   StateMask
}

func newReadCondition(r *entity, owner Entity, mask StateMask) (*ReadCondition, error) {
	e, err := r.newChild(KindReadCondition, nil, func(rd native.Entity, _ *native.Listener) native.Entity {
		return native.CreateReadCondition(rd, uint32(mask))
	})
	if err != nil {
		return nil, err
	}
	c := &ReadCondition{entity: e, reader: owner, mask: mask}
	runtime.SetFinalizer(c, (*ReadCondition).Close)
	return c, nil
}

// Mask returns the state mask of the condition
func (c *ReadCondition) Mask() StateMask {
	return c.mask
}

// Triggered reports whether the reader holds matching samples
func (c *ReadCondition) Triggered() (bool, error) {
	return c.triggered()
}

// GuardCondition is a condition set and reset by the application
type GuardCondition struct {
	*entity
	participant *Participant
}

// CreateGuardCondition creates a guard condition
func (p *Participant) CreateGuardCondition() (*GuardCondition, error) {
	e, err := p.newChild(KindGuardCondition, nil, func(pp native.Entity, _ *native.Listener) native.Entity {
		return native.CreateGuardCondition(pp)
	})
	if err != nil {
		return nil, err
	}
	g := &GuardCondition{entity: e, participant: p}
	runtime.SetFinalizer(g, (*GuardCondition).Close)
	return g, nil
}

// Set sets or resets the condition
func (g *GuardCondition) Set(triggered bool) error {
	h, err := g.liveHandle()
	if err != nil {
		return err
	}
	return retError(native.SetGuardCondition(h, triggered), "set guard condition")
}

// Triggered reports whether the condition is set
func (g *GuardCondition) Triggered() (bool, error) {
	return g.triggered()
}

// Take reports whether the condition was set and resets it
func (g *GuardCondition) Take() (bool, error) {
	h, err := g.liveHandle()
	if err != nil {
		return false, err
	}
	v, rc := native.TakeGuardCondition(h)
	return v, retError(rc, "take guard condition")
}

func (e *entity) triggered() (bool, error) {
	h, err := e.liveHandle()
	if err != nil {
		return false, err
	}
	v, rc := native.Triggered(h)
	return v, retError(rc, "read trigger of %s", e.kind)
}

package dds

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"weak"

	"go.uber.org/multierr"

	"github.com/ZettaScaleLabs/dds-go/internal/native"
)

// EntityKind is the kind of an entity.
type EntityKind int32

const (
	KindParticipant    = EntityKind(native.KindParticipant)
	KindTopic          = EntityKind(native.KindTopic)
	KindPublisher      = EntityKind(native.KindPublisher)
	KindSubscriber     = EntityKind(native.KindSubscriber)
	KindWriter         = EntityKind(native.KindWriter)
	KindReader         = EntityKind(native.KindReader)
	KindWaitSet        = EntityKind(native.KindWaitset)
	KindReadCondition  = EntityKind(native.KindReadCondition)
	KindGuardCondition = EntityKind(native.KindGuardCondition)
)

func (k EntityKind) String() string { return native.Kind(k).String() }

// EntityRef is a borrowed view of an entity: enough to identify it, never
// enough to keep it alive or tear it down. Listener callbacks receive one.
type EntityRef struct {
	handle native.Entity
	kind   EntityKind
}

// Handle returns the native handle the view was taken from.
func (r EntityRef) Handle() int32 { return int32(r.handle) }

// Kind returns the entity kind.
func (r EntityRef) Kind() EntityKind { return r.kind }

// IsZero reports whether r refers to nothing.
func (r EntityRef) IsZero() bool { return r.handle == 0 }

func (r EntityRef) String() string { return fmt.Sprintf("%s(%d)", r.kind, r.handle) }

// Entity is implemented by every entity wrapper.
type Entity interface {
	Handle() int32
	Kind() EntityKind
	Ref() EntityRef
	IsClosed() bool
	Close() error
}

// entity is the record every wrapper embeds. It owns its children and
// refers to its parent weakly; wrappers keep their parent wrapper alive.
type entity struct {
	handle atomic.Int32
	kind   EntityKind
	reg    *registration
	parent weak.Pointer[entity]

	mu       sync.Mutex
	children map[*entity]uint64 // child -> creation sequence
	seq      uint64
	closing  bool
	onClose  []func()

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

func newEntity(h native.Entity, kind EntityKind, reg *registration) *entity {
	e := &entity{
		kind:     kind,
		reg:      reg,
		children: make(map[*entity]uint64),
		done:     make(chan struct{}),
	}
	e.handle.Store(int32(h))
	reg.bind(e)
	liveEntities.WithLabelValues(kind.String()).Inc()
	logger.Debug("entity created", "kind", kind, "handle", int32(h))
	return e
}

// newRootEntity creates an entity without a parent.
func newRootEntity(kind EntityKind, l *Listener, create func(*native.Listener) native.Entity) (*entity, error) {
	reg := newRegistration(kind, l)
	h := create(reg.native())
	if h <= 0 {
		reg.release()
		return nil, retError(h.Code(), "create %s", kind)
	}
	return newEntity(h, kind, reg), nil
}

// newChild creates a child of p. Creation holds p's lock, so it cannot
// interleave with p being torn down.
func (p *entity) newChild(kind EntityKind, l *Listener, create func(parent native.Entity, l *native.Listener) native.Entity) (*entity, error) {
	reg := newRegistration(kind, l)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closing {
		reg.release()
		return nil, newKindError(KindAlreadyDestroyed, fmt.Sprintf("cannot create %s: %s is closed", kind, p.kind))
	}
	h := create(native.Entity(p.handle.Load()), reg.native())
	if h <= 0 {
		reg.release()
		return nil, retError(h.Code(), "create %s", kind)
	}
	c := newEntity(h, kind, reg)
	c.parent = weak.Make(p)
	p.seq++
	p.children[c] = p.seq
	return c, nil
}

func (p *entity) removeChild(c *entity) {
	p.mu.Lock()
	delete(p.children, c)
	p.mu.Unlock()
}

// Handle returns the native handle, zero once closed.
func (e *entity) Handle() int32 { return e.handle.Load() }

// Kind returns the entity kind.
func (e *entity) Kind() EntityKind { return e.kind }

// IsClosed reports whether Close has started.
func (e *entity) IsClosed() bool { return e.closed.Load() }

// Ref returns a borrowed view of the entity.
func (e *entity) Ref() EntityRef {
	return EntityRef{handle: native.Entity(e.handle.Load()), kind: e.kind}
}

// Parent returns a view of the parent while it is alive.
func (e *entity) Parent() (EntityRef, bool) {
	p := e.parent.Value()
	if p == nil || p.closed.Load() {
		return EntityRef{}, false
	}
	return p.Ref(), true
}

// Children returns views of the live children in creation order.
func (e *entity) Children() []EntityRef {
	e.mu.Lock()
	kids := make([]*entity, 0, len(e.children))
	for c := range e.children {
		kids = append(kids, c)
	}
	seqs := e.children
	slices.SortFunc(kids, func(a, b *entity) int { return cmp.Compare(seqs[a], seqs[b]) })
	e.mu.Unlock()
	refs := make([]EntityRef, 0, len(kids))
	for _, c := range kids {
		if !c.closed.Load() {
			refs = append(refs, c.Ref())
		}
	}
	return refs
}

func (e *entity) liveHandle() (native.Entity, error) {
	if e.closed.Load() {
		return 0, newKindError(KindAlreadyDestroyed, fmt.Sprintf("%s is closed", e.kind))
	}
	return native.Entity(e.handle.Load()), nil
}

// addCloseHook registers fn to run once the entity is natively deleted.
// It runs immediately when the entity is already closed.
func (e *entity) addCloseHook(fn func()) {
	e.mu.Lock()
	if e.closing {
		e.mu.Unlock()
		<-e.done
		fn()
		return
	}
	e.onClose = append(e.onClose, fn)
	e.mu.Unlock()
}

// Close destroys the entity and everything it owns, children first. It is
// idempotent; a concurrent second call returns once the first finished.
// Calling Close on an entity from inside its own listener deadlocks.
func (e *entity) Close() error {
	var err error
	e.closeOnce.Do(func() { err = e.teardown() })
	return err
}

// deleteRank orders the children of one parent for teardown. Topics go last
// because the readers and writers using them live under other parents.
func deleteRank(k EntityKind) int {
	if k == KindTopic {
		return 1
	}
	return 0
}

func (e *entity) teardown() error {
	e.mu.Lock()
	e.closing = true
	e.closed.Store(true)
	kids := make([]*entity, 0, len(e.children))
	for c := range e.children {
		kids = append(kids, c)
	}
	seqs := e.children
	slices.SortFunc(kids, func(a, b *entity) int {
		if r := cmp.Compare(deleteRank(a.kind), deleteRank(b.kind)); r != 0 {
			return r
		}
		return cmp.Compare(seqs[b], seqs[a])
	})
	e.mu.Unlock()

	var err error
	for _, c := range kids {
		err = multierr.Append(err, c.Close())
	}

	h := native.Entity(e.handle.Load())
	if rc := native.Delete(h); rc != native.RetOK && rc != native.RetAlreadyDeleted {
		err = multierr.Append(err, retError(rc, "delete %s", e.kind))
	}
	// The runtime delete returned: no callback of this entity runs any
	// more, so the registration can go.
	e.reg.release()

	e.mu.Lock()
	e.handle.Store(0)
	hooks := e.onClose
	e.onClose = nil
	e.mu.Unlock()
	close(e.done)
	for _, fn := range hooks {
		fn()
	}

	if p := e.parent.Value(); p != nil {
		p.removeChild(e)
	}
	liveEntities.WithLabelValues(e.kind.String()).Dec()
	logger.Debug("entity destroyed", "kind", e.kind, "handle", int32(h))
	return err
}

// Qos reads the policies of the entity back from the runtime.
func (e *entity) Qos() (*Qos, error) {
	h, err := e.liveHandle()
	if err != nil {
		return nil, err
	}
	nq, rc := native.GetQos(h)
	if err := retError(rc, "get qos of %s", e.kind); err != nil {
		return nil, err
	}
	return qosFromNative(nq), nil
}

// InstanceHandle returns the handle identifying the entity in matched
// statuses and sample infos.
func (e *entity) InstanceHandle() (InstanceHandle, error) {
	h, err := e.liveHandle()
	if err != nil {
		return 0, err
	}
	ih, rc := native.GetInstanceHandle(h)
	if err := retError(rc, "get instance handle of %s", e.kind); err != nil {
		return 0, err
	}
	return InstanceHandle(ih), nil
}

// Attach installs the callbacks set in l, keeping the other callbacks
// already installed.
func (e *entity) Attach(l *Listener) error {
	h, err := e.liveHandle()
	if err != nil {
		return err
	}
	return e.reg.update(h, func(cur *Listener) { cur.merge(l) })
}

// Detach removes the callbacks of the given event kinds, or all of them
// when no kind is given.
func (e *entity) Detach(kinds ...EventKind) error {
	h, err := e.liveHandle()
	if err != nil {
		return err
	}
	if len(kinds) == 0 {
		for k := range EventInconsistentTopic + 1 {
			kinds = append(kinds, k)
		}
	}
	return e.reg.update(h, func(cur *Listener) {
		for _, k := range kinds {
			cur.clear(k)
		}
	})
}

// SetStatusMask selects which statuses invoke the listener. Masked
// statuses are still recorded and can be polled.
func (e *entity) SetStatusMask(mask StatusMask) error {
	h, err := e.liveHandle()
	if err != nil {
		return err
	}
	return retError(native.SetStatusMask(h, uint32(mask)), "set status mask of %s", e.kind)
}

// StatusChanges returns the statuses raised and not yet taken.
func (e *entity) StatusChanges() (StatusMask, error) {
	h, err := e.liveHandle()
	if err != nil {
		return 0, err
	}
	s, rc := native.GetStatusChanges(h)
	return StatusMask(s), retError(rc, "get status changes of %s", e.kind)
}

// TakeStatus returns and resets the raised statuses selected by mask.
func (e *entity) TakeStatus(mask StatusMask) (StatusMask, error) {
	h, err := e.liveHandle()
	if err != nil {
		return 0, err
	}
	s, rc := native.TakeStatus(h, uint32(mask))
	return StatusMask(s), retError(rc, "take status of %s", e.kind)
}

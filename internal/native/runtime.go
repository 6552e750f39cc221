package native

import (
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

type entity struct {
	handle   Entity
	kind     Kind
	parent   *entity
	children []*entity
	pp       *entity
	dom      *domain

	qos      *Qos
	listener Listener
	status   uint32
	mask     uint32
	counters statusCounters
	ih       uint64

	inflight int
	deleted  bool

	// participant
	guid  uuid.UUID
	count int

	topic   *topicData
	writer  *writerData
	reader  *readerData
	waitset *waitsetData
	cond    *condData
}

type runtimeState struct {
	mu   sync.Mutex
	idle *sync.Cond

	next     Entity
	nextIH   uint64
	entities map[Entity]*entity
	domains  map[uint32]*domain

	// changed is closed and replaced whenever state a waiter may depend on
	// changes.
	changed chan struct{}

	clock       clock.Clock
	trace       func(Entity, Kind)
	maxEntities int
}

var rt = newRuntime()

func newRuntime() *runtimeState {
	r := &runtimeState{
		nextIH:   0x1c0000,
		entities: make(map[Entity]*entity),
		domains:  make(map[uint32]*domain),
		changed:  make(chan struct{}),
		clock:    clock.New(),
	}
	r.idle = sync.NewCond(&r.mu)
	return r
}

// SetClock replaces the runtime time source and returns the previous one.
func SetClock(c clock.Clock) clock.Clock {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	prev := rt.clock
	rt.clock = c
	return prev
}

// Now is the runtime time in nanoseconds since the epoch.
func Now() int64 {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.clock.Now().UnixNano()
}

// SetTrace installs fn to be called with every natively deleted entity, in
// deletion order. It returns the previous hook.
func SetTrace(fn func(Entity, Kind)) func(Entity, Kind) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	prev := rt.trace
	rt.trace = fn
	return prev
}

// SetMaxEntities bounds the number of entities a participant may own. Zero
// removes the bound. It returns the previous bound.
func SetMaxEntities(n int) int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	prev := rt.maxEntities
	rt.maxEntities = n
	return prev
}

func (r *runtimeState) notify() {
	close(r.changed)
	r.changed = make(chan struct{})
}

// waitChanged releases the lock until the next notify or the deadline.
func (r *runtimeState) waitChanged(deadline time.Time, bounded bool) {
	ch := r.changed
	var timer *clock.Timer
	var expired <-chan time.Time
	if bounded {
		timer = r.clock.Timer(deadline.Sub(r.clock.Now()))
		expired = timer.C
	}
	r.mu.Unlock()
	select {
	case <-ch:
	case <-expired:
	}
	r.mu.Lock()
	if timer != nil {
		timer.Stop()
	}
}

func (r *runtimeState) lookup(h Entity, kinds ...Kind) (*entity, ReturnCode) {
	if h <= 0 || h > r.next {
		return nil, RetBadParameter
	}
	e := r.entities[h]
	if e == nil || e.deleted {
		return nil, RetAlreadyDeleted
	}
	if len(kinds) > 0 && !slices.Contains(kinds, e.kind) {
		return nil, RetIllegalOperation
	}
	return e, RetOK
}

func (r *runtimeState) newIH() uint64 {
	r.nextIH++
	return r.nextIH
}

func (r *runtimeState) create(parent *entity, kind Kind, qos *Qos, l *Listener) (*entity, ReturnCode) {
	if rc := validateQos(qos); rc != RetOK {
		return nil, rc
	}
	pp := parent
	if pp != nil && pp.kind != KindParticipant {
		pp = parent.pp
	}
	if pp != nil && r.maxEntities > 0 && pp.count >= r.maxEntities {
		return nil, RetOutOfResources
	}
	r.next++
	e := &entity{
		handle: r.next,
		kind:   kind,
		parent: parent,
		pp:     pp,
		qos:    qos.Copy(),
		mask:   ^uint32(0),
		ih:     r.newIH(),
	}
	if l != nil {
		e.listener = *l
	}
	if parent != nil {
		e.dom = parent.dom
		parent.children = append(parent.children, e)
	}
	if pp != nil {
		pp.count++
	}
	r.entities[e.handle] = e
	return e, RetOK
}

// Delete deletes h and everything it owns. Children go first, depth first,
// in reverse creation order with topics last. Delete returns once no
// listener callback of a deleted entity is running; queued callbacks are
// dropped.
func Delete(h Entity) ReturnCode {
	rt.mu.Lock()
	e, rc := rt.lookup(h)
	if rc != RetOK {
		rt.mu.Unlock()
		return rc
	}
	if e.kind == KindTopic && e.topic.users > 0 {
		rt.mu.Unlock()
		return RetPreconditionNotMet
	}
	var doomed []*entity
	collect(e, &doomed)
	for _, x := range doomed {
		rt.teardown(x)
	}
	for slices.ContainsFunc(doomed, func(x *entity) bool { return x.inflight > 0 }) {
		rt.idle.Wait()
	}
	for _, x := range doomed {
		delete(rt.entities, x.handle)
	}
	if e.parent != nil {
		e.parent.children = slices.DeleteFunc(e.parent.children, func(c *entity) bool { return c == e })
	}
	rt.notify()
	trace := rt.trace
	rt.mu.Unlock()
	if trace != nil {
		for _, x := range doomed {
			trace(x.handle, x.kind)
		}
	}
	return RetOK
}

func deleteRank(k Kind) int {
	if k == KindTopic {
		return 1
	}
	return 0
}

func collect(e *entity, out *[]*entity) {
	kids := slices.Clone(e.children)
	slices.Reverse(kids)
	slices.SortStableFunc(kids, func(a, b *entity) int { return deleteRank(a.kind) - deleteRank(b.kind) })
	for _, c := range kids {
		collect(c, out)
	}
	*out = append(*out, e)
}

func (r *runtimeState) teardown(e *entity) {
	switch e.kind {
	case KindWriter:
		r.teardownWriter(e)
	case KindReader:
		r.teardownReader(e)
	case KindTopic:
		r.teardownTopic(e)
	}
	for _, ws := range r.entities {
		if ws.kind == KindWaitset && !ws.deleted {
			ws.waitset.detach(e.handle)
		}
	}
	e.deleted = true
	e.status = 0
	if e.pp != nil {
		e.pp.count--
	}
	if e.kind == KindParticipant {
		r.releaseDomain(e.dom)
	}
}

// raise sets status id on e and queues the listener callback when one is
// installed and enabled. A status handed to a listener is reset.
func (r *runtimeState) raise(e *entity, id StatusID, status any) {
	if e == nil || e.deleted {
		return
	}
	e.status |= id.Mask()
	if e.mask&id.Mask() != 0 && e.listener.has(id) {
		e.dom.enqueue(event{target: e.handle, id: id, status: status})
		e.status &^= id.Mask()
		e.counters.reset(id)
	}
	r.notify()
}

// CreateParticipant creates a participant on domain domainID.
func CreateParticipant(domainID uint32, qos *Qos, l *Listener) Entity {
	if domainID > 232 {
		return Entity(RetBadParameter)
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	e, rc := rt.create(nil, KindParticipant, qos, l)
	if rc != RetOK {
		return Entity(rc)
	}
	e.guid = uuid.New()
	e.dom = rt.acquireDomain(domainID)
	return e.handle
}

// CreatePublisher creates a publisher owned by participant pp.
func CreatePublisher(pp Entity, qos *Qos, l *Listener) Entity {
	return createGroup(pp, KindPublisher, qos, l)
}

// CreateSubscriber creates a subscriber owned by participant pp.
func CreateSubscriber(pp Entity, qos *Qos, l *Listener) Entity {
	return createGroup(pp, KindSubscriber, qos, l)
}

func createGroup(pp Entity, kind Kind, qos *Qos, l *Listener) Entity {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	p, rc := rt.lookup(pp, KindParticipant)
	if rc != RetOK {
		return Entity(rc)
	}
	e, rc := rt.create(p, kind, qos, l)
	if rc != RetOK {
		return Entity(rc)
	}
	return e.handle
}

// GetKind returns the kind of h.
func GetKind(h Entity) (Kind, ReturnCode) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	e, rc := rt.lookup(h)
	if rc != RetOK {
		return 0, rc
	}
	return e.kind, RetOK
}

// GetParent returns the parent of h, or zero for a participant.
func GetParent(h Entity) (Entity, ReturnCode) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	e, rc := rt.lookup(h)
	if rc != RetOK {
		return 0, rc
	}
	if e.parent == nil {
		return 0, RetOK
	}
	return e.parent.handle, RetOK
}

// GetChildren returns the live children of h in creation order.
func GetChildren(h Entity) ([]Entity, ReturnCode) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	e, rc := rt.lookup(h)
	if rc != RetOK {
		return nil, rc
	}
	out := make([]Entity, 0, len(e.children))
	for _, c := range e.children {
		out = append(out, c.handle)
	}
	return out, RetOK
}

// GetQos returns a copy of the policies h was created with.
func GetQos(h Entity) (*Qos, ReturnCode) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	e, rc := rt.lookup(h, KindParticipant, KindTopic, KindPublisher, KindSubscriber, KindWriter, KindReader)
	if rc != RetOK {
		return nil, rc
	}
	return e.qos.Copy(), RetOK
}

// SetListener replaces the listener of h. A nil listener removes it.
func SetListener(h Entity, l *Listener) ReturnCode {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	e, rc := rt.lookup(h)
	if rc != RetOK {
		return rc
	}
	if l == nil {
		e.listener = Listener{}
	} else {
		e.listener = *l
	}
	return RetOK
}

// GetInstanceHandle returns the instance handle identifying entity h.
func GetInstanceHandle(h Entity) (uint64, ReturnCode) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	e, rc := rt.lookup(h)
	if rc != RetOK {
		return 0, rc
	}
	return e.ih, RetOK
}

// GetGUID returns the GUID of participant h.
func GetGUID(h Entity) (uuid.UUID, ReturnCode) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	e, rc := rt.lookup(h, KindParticipant)
	if rc != RetOK {
		return uuid.Nil, rc
	}
	return e.guid, RetOK
}

// GetDomainID returns the domain h lives in.
func GetDomainID(h Entity) (uint32, ReturnCode) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	e, rc := rt.lookup(h)
	if rc != RetOK {
		return 0, rc
	}
	return e.dom.id, RetOK
}

// SetStatusMask selects which statuses of h are enabled.
func SetStatusMask(h Entity, mask uint32) ReturnCode {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	e, rc := rt.lookup(h)
	if rc != RetOK {
		return rc
	}
	e.mask = mask
	rt.notify()
	return RetOK
}

// GetStatusMask returns the enabled statuses of h.
func GetStatusMask(h Entity) (uint32, ReturnCode) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	e, rc := rt.lookup(h)
	if rc != RetOK {
		return 0, rc
	}
	return e.mask, RetOK
}

// GetStatusChanges returns the statuses of h raised since last taken.
func GetStatusChanges(h Entity) (uint32, ReturnCode) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	e, rc := rt.lookup(h)
	if rc != RetOK {
		return 0, rc
	}
	return e.status, RetOK
}

// TakeStatus returns and clears the statuses of h selected by mask.
func TakeStatus(h Entity, mask uint32) (uint32, ReturnCode) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	e, rc := rt.lookup(h)
	if rc != RetOK {
		return 0, rc
	}
	taken := e.status & mask
	e.status &^= mask
	for id := StatusInconsistentTopic; id <= StatusSubscriptionMatched; id++ {
		if taken&id.Mask() != 0 {
			e.counters.reset(id)
		}
	}
	return taken, RetOK
}

func getStatus[S any](h Entity, id StatusID, kind Kind, get func(*statusCounters) S) (S, ReturnCode) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	var zero S
	e, rc := rt.lookup(h, kind)
	if rc != RetOK {
		return zero, rc
	}
	s := get(&e.counters)
	e.counters.reset(id)
	e.status &^= id.Mask()
	return s, RetOK
}

func GetSubscriptionMatchedStatus(h Entity) (SubscriptionMatchedStatus, ReturnCode) {
	return getStatus(h, StatusSubscriptionMatched, KindReader, func(c *statusCounters) SubscriptionMatchedStatus { return c.subMatched })
}

func GetPublicationMatchedStatus(h Entity) (PublicationMatchedStatus, ReturnCode) {
	return getStatus(h, StatusPublicationMatched, KindWriter, func(c *statusCounters) PublicationMatchedStatus { return c.pubMatched })
}

func GetLivelinessChangedStatus(h Entity) (LivelinessChangedStatus, ReturnCode) {
	return getStatus(h, StatusLivelinessChanged, KindReader, func(c *statusCounters) LivelinessChangedStatus { return c.liveliness })
}

func GetRequestedIncompatibleQosStatus(h Entity) (IncompatibleQosStatus, ReturnCode) {
	return getStatus(h, StatusRequestedIncompatibleQos, KindReader, func(c *statusCounters) IncompatibleQosStatus { return c.requestedIncompat })
}

func GetOfferedIncompatibleQosStatus(h Entity) (IncompatibleQosStatus, ReturnCode) {
	return getStatus(h, StatusOfferedIncompatibleQos, KindWriter, func(c *statusCounters) IncompatibleQosStatus { return c.offeredIncompat })
}

func GetSampleRejectedStatus(h Entity) (SampleRejectedStatus, ReturnCode) {
	return getStatus(h, StatusSampleRejected, KindReader, func(c *statusCounters) SampleRejectedStatus { return c.sampleRejected })
}

func GetInconsistentTopicStatus(h Entity) (InconsistentTopicStatus, ReturnCode) {
	return getStatus(h, StatusInconsistentTopic, KindTopic, func(c *statusCounters) InconsistentTopicStatus { return c.inconsistentTopic })
}

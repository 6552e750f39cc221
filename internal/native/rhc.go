package native

import "slices"

// serdata is one change travelling from a writer to its readers.
type serdata struct {
	payload    []byte
	keyCDR     []byte
	ih         uint64
	ts         int64
	pub        uint64
	data       bool
	dispose    bool
	unregister bool
}

type rhcSample struct {
	payload      []byte
	ts           int64
	pub          uint64
	read         bool
	disposedGen  uint32
	noWritersGen uint32
}

type rhcInstance struct {
	ih      uint64
	keyCDR  []byte
	state   uint32
	isNew   bool
	samples []*rhcSample
	writers map[uint64]struct{}

	disposedGen  uint32
	noWritersGen uint32

	// invalid marks a pending state change with no unread sample to carry it.
	invalid     bool
	invalidRead bool
	invalidTs   int64
}

// rhc is the reader history cache.
type rhc struct {
	historyKind    int32
	depth          int32
	maxSamples     int32
	maxInstances   int32
	maxPerInstance int32

	instances map[uint64]*rhcInstance
	order     []*rhcInstance
	n         int
}

type rhcResult struct {
	payload []byte
	keyCDR  []byte
	info    SampleInfo
}

func newRhc(q *Qos) *rhc {
	h := &rhc{instances: make(map[uint64]*rhcInstance)}
	h.historyKind, h.depth = q.history()
	h.maxSamples, h.maxInstances, h.maxPerInstance = q.resourceLimits()
	return h
}

func limited(limit int32, n int) bool {
	return limit != Unlimited && n >= int(limit)
}

// full reports whether a KeepAll cache has no room for a new sample of ih.
func (h *rhc) full(ih uint64) bool {
	if h.historyKind != HistoryKeepAll {
		return false
	}
	inst := h.instances[ih]
	if inst == nil && limited(h.maxInstances, len(h.instances)) {
		return true
	}
	if limited(h.maxSamples, h.n) {
		return true
	}
	return inst != nil && limited(h.maxPerInstance, len(inst.samples))
}

func (h *rhc) instance(ih uint64, keyCDR []byte) *rhcInstance {
	inst := &rhcInstance{
		ih:      ih,
		keyCDR:  keyCDR,
		state:   InstanceStateAlive,
		isNew:   true,
		writers: make(map[uint64]struct{}),
	}
	h.instances[ih] = inst
	h.order = append(h.order, inst)
	return inst
}

func (h *rhc) drop(inst *rhcInstance) {
	delete(h.instances, inst.ih)
	h.order = slices.DeleteFunc(h.order, func(x *rhcInstance) bool { return x == inst })
}

func (inst *rhcInstance) hasUnread() bool {
	return slices.ContainsFunc(inst.samples, func(s *rhcSample) bool { return !s.read })
}

// store inserts a data sample and reports why it was rejected, if it was.
func (h *rhc) store(sd *serdata) SampleRejectedReason {
	inst := h.instances[sd.ih]
	if inst == nil && limited(h.maxInstances, len(h.instances)) {
		return RejectedByInstancesLimit
	}
	evict := false
	if h.historyKind == HistoryKeepLast {
		evict = inst != nil && len(inst.samples) >= int(h.depth)
		if !evict && limited(h.maxSamples, h.n) {
			return RejectedBySamplesLimit
		}
	} else {
		if limited(h.maxSamples, h.n) {
			return RejectedBySamplesLimit
		}
		if inst != nil && limited(h.maxPerInstance, len(inst.samples)) {
			return RejectedBySamplesPerInstanceLimit
		}
	}
	if inst == nil {
		inst = h.instance(sd.ih, sd.keyCDR)
	} else if inst.state != InstanceStateAlive {
		if inst.state == InstanceStateNotAliveDisposed {
			inst.disposedGen++
		} else {
			inst.noWritersGen++
		}
		inst.state = InstanceStateAlive
		inst.isNew = true
	}
	inst.writers[sd.pub] = struct{}{}
	if evict {
		inst.samples[0] = nil
		inst.samples = inst.samples[1:]
		h.n--
	}
	inst.samples = append(inst.samples, &rhcSample{
		payload:      sd.payload,
		ts:           sd.ts,
		pub:          sd.pub,
		disposedGen:  inst.disposedGen,
		noWritersGen: inst.noWritersGen,
	})
	h.n++
	inst.invalid = false
	return NotRejected
}

func (inst *rhcInstance) setState(state uint32, ts int64) {
	inst.state = state
	if !inst.hasUnread() {
		inst.invalid = true
		inst.invalidRead = false
		inst.invalidTs = ts
	}
}

// dispose moves the instance to NotAliveDisposed and reports whether the
// state changed.
func (h *rhc) dispose(sd *serdata) bool {
	inst := h.instances[sd.ih]
	if inst == nil {
		if limited(h.maxInstances, len(h.instances)) {
			return false
		}
		inst = h.instance(sd.ih, sd.keyCDR)
	}
	inst.writers[sd.pub] = struct{}{}
	if inst.state == InstanceStateNotAliveDisposed {
		return false
	}
	inst.setState(InstanceStateNotAliveDisposed, sd.ts)
	return true
}

// unregister removes writer pub from the instance. The last writer leaving
// an alive instance moves it to NotAliveNoWriters.
func (h *rhc) unregister(sd *serdata) bool {
	inst := h.instances[sd.ih]
	if inst == nil {
		return false
	}
	delete(inst.writers, sd.pub)
	if len(inst.writers) > 0 || inst.state != InstanceStateAlive {
		return false
	}
	inst.setState(InstanceStateNotAliveNoWriters, sd.ts)
	return true
}

func splitMask(mask uint32) (sm, vm, im uint32) {
	sm, vm, im = mask&AnySampleState, mask&AnyViewState, mask&AnyInstanceState
	if sm == 0 {
		sm = AnySampleState
	}
	if vm == 0 {
		vm = AnyViewState
	}
	if im == 0 {
		im = AnyInstanceState
	}
	return sm, vm, im
}

func (inst *rhcInstance) view() uint32 {
	if inst.isNew {
		return ViewStateNew
	}
	return ViewStateNotNew
}

func sampleState(read bool) uint32 {
	if read {
		return SampleStateRead
	}
	return SampleStateNotRead
}

// any reports whether a read with mask would return something.
func (h *rhc) any(mask uint32) bool {
	sm, vm, im := splitMask(mask)
	for _, inst := range h.order {
		if inst.state&im == 0 || inst.view()&vm == 0 {
			continue
		}
		for _, s := range inst.samples {
			if sampleState(s.read)&sm != 0 {
				return true
			}
		}
		if inst.invalid && sampleState(inst.invalidRead)&sm != 0 {
			return true
		}
	}
	return false
}

// collect returns up to limit samples matching mask. Take removes them from
// the cache, read marks them read.
func (h *rhc) collect(mask uint32, limit int, take bool) []rhcResult {
	sm, vm, im := splitMask(mask)
	var out []rhcResult
	for _, inst := range slices.Clone(h.order) {
		if len(out) >= limit {
			break
		}
		if inst.state&im == 0 || inst.view()&vm == 0 {
			continue
		}
		view := inst.view()
		touched := false
		kept := inst.samples[:0]
		for _, s := range inst.samples {
			ss := sampleState(s.read)
			if len(out) >= limit || ss&sm == 0 {
				kept = append(kept, s)
				continue
			}
			out = append(out, rhcResult{
				payload: s.payload,
				info: SampleInfo{
					SampleState:              ss,
					ViewState:                view,
					InstanceState:            inst.state,
					ValidData:                true,
					SourceTimestamp:          s.ts,
					InstanceHandle:           inst.ih,
					PublicationHandle:        s.pub,
					DisposedGenerationCount:  s.disposedGen,
					NoWritersGenerationCount: s.noWritersGen,
				},
			})
			touched = true
			if take {
				h.n--
				continue
			}
			s.read = true
			kept = append(kept, s)
		}
		clear(inst.samples[len(kept):])
		inst.samples = kept
		if inst.invalid && len(out) < limit && sampleState(inst.invalidRead)&sm != 0 {
			out = append(out, rhcResult{keyCDR: inst.keyCDR, info: SampleInfo{
				SampleState:              sampleState(inst.invalidRead),
				ViewState:                view,
				InstanceState:            inst.state,
				SourceTimestamp:          inst.invalidTs,
				InstanceHandle:           inst.ih,
				DisposedGenerationCount:  inst.disposedGen,
				NoWritersGenerationCount: inst.noWritersGen,
			}})
			touched = true
			if take {
				inst.invalid = false
			} else {
				inst.invalidRead = true
			}
		}
		if touched {
			inst.isNew = false
		}
		if inst.state != InstanceStateAlive && len(inst.samples) == 0 && !inst.invalid && len(inst.writers) == 0 {
			h.drop(inst)
		}
	}
	return out
}

// lookup returns the handle of ih when the cache knows the instance.
func (h *rhc) lookup(ih uint64) uint64 {
	if _, ok := h.instances[ih]; ok {
		return ih
	}
	return 0
}

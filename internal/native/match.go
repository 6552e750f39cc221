package native

import "slices"

// compatible checks the requested/offered policies of a reader and a writer
// and returns the first offending policy.
func compatible(w, r *entity) (QosPolicyID, bool) {
	wr, _ := w.qos.reliability(KindWriter)
	rr, _ := r.qos.reliability(KindReader)
	if wr < rr {
		return QosPolicyReliability, false
	}
	if w.qos.durability() < r.qos.durability() {
		return QosPolicyDurability, false
	}
	if w.qos.deadline() > r.qos.deadline() {
		return QosPolicyDeadline, false
	}
	wk, wl := w.qos.liveliness()
	rk, rl := r.qos.liveliness()
	if wk < rk || wl > rl {
		return QosPolicyLiveliness, false
	}
	if w.qos.ownership() != r.qos.ownership() {
		return QosPolicyOwnership, false
	}
	if w.qos.destinationOrder() < r.qos.destinationOrder() {
		return QosPolicyDestinationOrder, false
	}
	return QosPolicyInvalid, true
}

func partitionsMatch(pub, sub *Qos) bool {
	a, b := pub.partitions(), sub.partitions()
	if len(a) == 0 {
		a = []string{""}
	}
	if len(b) == 0 {
		b = []string{""}
	}
	for _, p := range a {
		if slices.Contains(b, p) {
			return true
		}
	}
	return false
}

func ignored(w, r *entity) bool {
	switch max(w.qos.ignoreLocal(), r.qos.ignoreLocal()) {
	case IgnoreLocalParticipant:
		return w.pp == r.pp
	case IgnoreLocalProcess:
		return true
	}
	return false
}

// tryMatch connects writer w and reader r when they share a topic, a
// partition and compatible policies.
func (rt *runtimeState) tryMatch(w, r *entity) {
	wt, rtop := w.writer.topic.topic, r.reader.topic.topic
	if wt.name != rtop.name || wt.st.TypeName != rtop.st.TypeName {
		return
	}
	if !partitionsMatch(w.parent.qos, r.parent.qos) || ignored(w, r) {
		return
	}
	if policy, ok := compatible(w, r); !ok {
		oc := &w.counters.offeredIncompat
		oc.TotalCount++
		oc.TotalCountChange++
		oc.LastPolicyID = policy
		rt.raise(w, StatusOfferedIncompatibleQos, *oc)
		rc := &r.counters.requestedIncompat
		rc.TotalCount++
		rc.TotalCountChange++
		rc.LastPolicyID = policy
		rt.raise(r, StatusRequestedIncompatibleQos, *rc)
		return
	}
	w.writer.matched[r] = struct{}{}
	r.reader.matched[w] = struct{}{}

	pm := &w.counters.pubMatched
	pm.TotalCount++
	pm.TotalCountChange++
	pm.CurrentCount++
	pm.CurrentCountChange++
	pm.LastSubscriptionHandle = r.ih
	rt.raise(w, StatusPublicationMatched, *pm)

	sm := &r.counters.subMatched
	sm.TotalCount++
	sm.TotalCountChange++
	sm.CurrentCount++
	sm.CurrentCountChange++
	sm.LastPublicationHandle = w.ih
	rt.raise(r, StatusSubscriptionMatched, *sm)

	lc := &r.counters.liveliness
	lc.AliveCount++
	lc.AliveCountChange++
	lc.LastPublicationHandle = w.ih
	rt.raise(r, StatusLivelinessChanged, *lc)

	if w.qos.durability() >= DurabilityTransientLocal && r.qos.durability() >= DurabilityTransientLocal {
		for _, sd := range w.writer.history() {
			rt.deliver(r, sd)
		}
	}
}

func (rt *runtimeState) unmatch(w, r *entity) {
	delete(w.writer.matched, r)
	delete(r.reader.matched, w)

	pm := &w.counters.pubMatched
	pm.CurrentCount--
	pm.CurrentCountChange--
	pm.LastSubscriptionHandle = r.ih
	rt.raise(w, StatusPublicationMatched, *pm)

	sm := &r.counters.subMatched
	sm.CurrentCount--
	sm.CurrentCountChange--
	sm.LastPublicationHandle = w.ih
	rt.raise(r, StatusSubscriptionMatched, *sm)

	lc := &r.counters.liveliness
	lc.AliveCount--
	lc.AliveCountChange--
	lc.LastPublicationHandle = w.ih
	rt.raise(r, StatusLivelinessChanged, *lc)
}

// deliver hands one change to reader r.
func (rt *runtimeState) deliver(r *entity, sd *serdata) {
	h := r.reader.rhc
	changed := false
	if sd.data {
		if reason := h.store(sd); reason != NotRejected {
			sr := &r.counters.sampleRejected
			sr.TotalCount++
			sr.TotalCountChange++
			sr.LastReason = reason
			sr.LastInstanceHandle = sd.ih
			rt.raise(r, StatusSampleRejected, *sr)
			return
		}
		changed = true
	}
	if sd.dispose && h.dispose(sd) {
		changed = true
	}
	if sd.unregister && h.unregister(sd) {
		changed = true
	}
	if changed {
		rt.raise(r.parent, StatusDataOnReaders, nil)
		rt.raise(r, StatusDataAvailable, nil)
	}
}

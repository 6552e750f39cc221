package native

import "strings"

type topicData struct {
	name  string
	st    *Sertype
	users int
}

func validTopicName(name string) bool {
	return name != "" && !strings.ContainsAny(name, "*?[]{}\"' \t\n")
}

// CreateTopic creates a topic of type st owned by participant pp. Reusing a
// name that is already bound to another type in the domain fails with
// RetPreconditionNotMet and raises the inconsistent topic status on the
// existing topics.
func CreateTopic(pp Entity, name string, st *Sertype, qos *Qos, l *Listener) Entity {
	if !validTopicName(name) || st == nil {
		return Entity(RetBadParameter)
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	p, rc := rt.lookup(pp, KindParticipant)
	if rc != RetOK {
		return Entity(rc)
	}
	entry := p.dom.topics[name]
	if entry != nil && entry.typeName != st.TypeName {
		for _, t := range entry.entities {
			t.counters.inconsistentTopic.TotalCount++
			t.counters.inconsistentTopic.TotalCountChange++
			rt.raise(t, StatusInconsistentTopic, t.counters.inconsistentTopic)
		}
		return Entity(RetPreconditionNotMet)
	}
	e, rc := rt.create(p, KindTopic, qos, l)
	if rc != RetOK {
		return Entity(rc)
	}
	e.topic = &topicData{name: name, st: st}
	if entry == nil {
		entry = &topicEntry{typeName: st.TypeName, instances: make(map[uint32][]*instanceEntry)}
		p.dom.topics[name] = entry
	}
	entry.entities = append(entry.entities, e)
	return e.handle
}

func (r *runtimeState) teardownTopic(e *entity) {
	entry := e.dom.topics[e.topic.name]
	if entry == nil {
		return
	}
	for i, t := range entry.entities {
		if t == e {
			entry.entities = append(entry.entities[:i], entry.entities[i+1:]...)
			break
		}
	}
	if len(entry.entities) == 0 {
		delete(e.dom.topics, e.topic.name)
	}
}

// GetTopicName returns the name of topic h.
func GetTopicName(h Entity) (string, ReturnCode) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	e, rc := rt.lookup(h, KindTopic)
	if rc != RetOK {
		return "", rc
	}
	return e.topic.name, RetOK
}

// GetTypeName returns the type name of topic h.
func GetTypeName(h Entity) (string, ReturnCode) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	e, rc := rt.lookup(h, KindTopic)
	if rc != RetOK {
		return "", rc
	}
	return e.topic.st.TypeName, RetOK
}

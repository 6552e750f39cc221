package native

import (
	"reflect"
	"slices"
	"unsafe"
)

// TopicInfo describes a topic name known in a domain.
type TopicInfo struct {
	Name     string
	TypeName string
}

// GetDomainTopics returns the topics known in the domain of h, sorted by
// name.
func GetDomainTopics(h Entity) ([]TopicInfo, ReturnCode) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	e, rc := rt.lookup(h)
	if rc != RetOK {
		return nil, rc
	}
	out := make([]TopicInfo, 0, len(e.dom.topics))
	for name, t := range e.dom.topics {
		out = append(out, TopicInfo{Name: name, TypeName: t.typeName})
	}
	slices.SortFunc(out, func(a, b TopicInfo) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return out, RetOK
}

// GetMatched returns the instance handles of the readers matched with
// writer h, or of the writers matched with reader h.
func GetMatched(h Entity) ([]uint64, ReturnCode) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	e, rc := rt.lookup(h, KindWriter, KindReader)
	if rc != RetOK {
		return nil, rc
	}
	var peers map[*entity]struct{}
	if e.kind == KindWriter {
		peers = e.writer.matched
	} else {
		peers = e.reader.matched
	}
	out := make([]uint64, 0, len(peers))
	for p := range peers {
		out = append(out, p.ih)
	}
	slices.Sort(out)
	return out, RetOK
}

// SerdataFromSample serializes the sample at p with the codec of st.
func SerdataFromSample(st *Sertype, p unsafe.Pointer) ([]byte, ReturnCode) {
	if st == nil || p == nil {
		return nil, RetBadParameter
	}
	data, err := serialize(reflect.NewAt(st.Type, p).Elem())
	if err != nil {
		return nil, RetBadParameter
	}
	return data, RetOK
}

// SerdataToSample deserializes data into the sample at p.
func SerdataToSample(st *Sertype, data []byte, p unsafe.Pointer) ReturnCode {
	if st == nil || p == nil {
		return RetBadParameter
	}
	if err := deserialize(data, reflect.NewAt(st.Type, p).Elem()); err != nil {
		return RetError
	}
	return RetOK
}

package dds

import (
	"slices"

	"github.com/ZettaScaleLabs/dds-go/internal/native"
)

// TopicInfo describes a topic known in a domain
type TopicInfo struct {
	Name     string
	TypeName string
}

// TopicNamesAndTypes returns all topics known in the participant's domain,
// sorted by name
func (p *Participant) TopicNamesAndTypes() ([]TopicInfo, error) {
	h, err := p.liveHandle()
	if err != nil {
		return nil, err
	}
	topics, rc := native.GetDomainTopics(h)
	if err := retError(rc, "failed to get topic names and types"); err != nil {
		return nil, err
	}
	if len(topics) == 0 {
		return nil, nil
	}
	out := make([]TopicInfo, len(topics))
	for i, t := range topics {
		out[i] = TopicInfo{Name: t.Name, TypeName: t.TypeName}
	}
	return out, nil
}

// TopicExists checks if a topic with the given name exists in the domain
func (p *Participant) TopicExists(name string) (bool, error) {
	topics, err := p.TopicNamesAndTypes()
	if err != nil {
		return false, err
	}
	return slices.ContainsFunc(topics, func(t TopicInfo) bool { return t.Name == name }), nil
}

func matched(e *entity) ([]InstanceHandle, error) {
	h, err := e.liveHandle()
	if err != nil {
		return nil, err
	}
	ihs, rc := native.GetMatched(h)
	if err := retError(rc, "failed to get matched entities of %s", e.kind); err != nil {
		return nil, err
	}
	out := make([]InstanceHandle, len(ihs))
	for i, ih := range ihs {
		out[i] = InstanceHandle(ih)
	}
	return out, nil
}

// MatchedSubscriptions returns the instance handles of the matched readers
func (w *Writer[T]) MatchedSubscriptions() ([]InstanceHandle, error) {
	return matched(w.entity)
}

// MatchedPublications returns the instance handles of the matched writers
func (r *Reader[T]) MatchedPublications() ([]InstanceHandle, error) {
	return matched(r.entity)
}

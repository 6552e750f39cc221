package native

// Callback signatures. Every callback receives the entity the event is
// raised on and the Arg of the listener it was registered with.
type (
	DataAvailableFunc            func(reader Entity, arg uintptr)
	DataOnReadersFunc            func(subscriber Entity, arg uintptr)
	SubscriptionMatchedFunc      func(reader Entity, status SubscriptionMatchedStatus, arg uintptr)
	PublicationMatchedFunc       func(writer Entity, status PublicationMatchedStatus, arg uintptr)
	LivelinessChangedFunc        func(reader Entity, status LivelinessChangedStatus, arg uintptr)
	RequestedIncompatibleQosFunc func(reader Entity, status IncompatibleQosStatus, arg uintptr)
	OfferedIncompatibleQosFunc   func(writer Entity, status IncompatibleQosStatus, arg uintptr)
	SampleRejectedFunc           func(reader Entity, status SampleRejectedStatus, arg uintptr)
	InconsistentTopicFunc        func(topic Entity, status InconsistentTopicStatus, arg uintptr)
)

// Listener is the set of callbacks installed on an entity. Nil members are
// not called and leave the corresponding status to be polled.
type Listener struct {
	Arg uintptr

	DataAvailable            DataAvailableFunc
	DataOnReaders            DataOnReadersFunc
	SubscriptionMatched      SubscriptionMatchedFunc
	PublicationMatched       PublicationMatchedFunc
	LivelinessChanged        LivelinessChangedFunc
	RequestedIncompatibleQos RequestedIncompatibleQosFunc
	OfferedIncompatibleQos   OfferedIncompatibleQosFunc
	SampleRejected           SampleRejectedFunc
	InconsistentTopic        InconsistentTopicFunc
}

func (l *Listener) has(id StatusID) bool {
	if l == nil {
		return false
	}
	switch id {
	case StatusDataAvailable:
		return l.DataAvailable != nil
	case StatusDataOnReaders:
		return l.DataOnReaders != nil
	case StatusSubscriptionMatched:
		return l.SubscriptionMatched != nil
	case StatusPublicationMatched:
		return l.PublicationMatched != nil
	case StatusLivelinessChanged:
		return l.LivelinessChanged != nil
	case StatusRequestedIncompatibleQos:
		return l.RequestedIncompatibleQos != nil
	case StatusOfferedIncompatibleQos:
		return l.OfferedIncompatibleQos != nil
	case StatusSampleRejected:
		return l.SampleRejected != nil
	case StatusInconsistentTopic:
		return l.InconsistentTopic != nil
	}
	return false
}

// invoke calls the callback for ev. The caller has checked has(ev.id).
func (l *Listener) invoke(ev event) {
	switch ev.id {
	case StatusDataAvailable:
		l.DataAvailable(ev.target, l.Arg)
	case StatusDataOnReaders:
		l.DataOnReaders(ev.target, l.Arg)
	case StatusSubscriptionMatched:
		l.SubscriptionMatched(ev.target, ev.status.(SubscriptionMatchedStatus), l.Arg)
	case StatusPublicationMatched:
		l.PublicationMatched(ev.target, ev.status.(PublicationMatchedStatus), l.Arg)
	case StatusLivelinessChanged:
		l.LivelinessChanged(ev.target, ev.status.(LivelinessChangedStatus), l.Arg)
	case StatusRequestedIncompatibleQos:
		l.RequestedIncompatibleQos(ev.target, ev.status.(IncompatibleQosStatus), l.Arg)
	case StatusOfferedIncompatibleQos:
		l.OfferedIncompatibleQos(ev.target, ev.status.(IncompatibleQosStatus), l.Arg)
	case StatusSampleRejected:
		l.SampleRejected(ev.target, ev.status.(SampleRejectedStatus), l.Arg)
	case StatusInconsistentTopic:
		l.InconsistentTopic(ev.target, ev.status.(InconsistentTopicStatus), l.Arg)
	}
}

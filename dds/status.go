package dds

import (
	"github.com/ZettaScaleLabs/dds-go/internal/native"
)

// StatusMask is a set of communication statuses.
type StatusMask uint32

const (
	StatusInconsistentTopic        = StatusMask(1 << native.StatusInconsistentTopic)
	StatusOfferedDeadlineMissed    = StatusMask(1 << native.StatusOfferedDeadlineMissed)
	StatusRequestedDeadlineMissed  = StatusMask(1 << native.StatusRequestedDeadlineMissed)
	StatusOfferedIncompatibleQos   = StatusMask(1 << native.StatusOfferedIncompatibleQos)
	StatusRequestedIncompatibleQos = StatusMask(1 << native.StatusRequestedIncompatibleQos)
	StatusSampleLost               = StatusMask(1 << native.StatusSampleLost)
	StatusSampleRejected           = StatusMask(1 << native.StatusSampleRejected)
	StatusDataOnReaders            = StatusMask(1 << native.StatusDataOnReaders)
	StatusDataAvailable            = StatusMask(1 << native.StatusDataAvailable)
	StatusLivelinessLost           = StatusMask(1 << native.StatusLivelinessLost)
	StatusLivelinessChanged        = StatusMask(1 << native.StatusLivelinessChanged)
	StatusPublicationMatched       = StatusMask(1 << native.StatusPublicationMatched)
	StatusSubscriptionMatched      = StatusMask(1 << native.StatusSubscriptionMatched)

	StatusAll = StatusMask(1<<(native.StatusSubscriptionMatched+1) - 1)
)

// Has reports whether every status of o is in m.
func (m StatusMask) Has(o StatusMask) bool { return m&o == o }

// InstanceHandle identifies an instance, or an entity in matched statuses.
// Zero means none.
type InstanceHandle uint64

// QosPolicyID names the policy that made a match fail.
type QosPolicyID int32

const (
	PolicyIDInvalid          = QosPolicyID(native.QosPolicyInvalid)
	PolicyIDDurability       = QosPolicyID(native.QosPolicyDurability)
	PolicyIDDeadline         = QosPolicyID(native.QosPolicyDeadline)
	PolicyIDLatencyBudget    = QosPolicyID(native.QosPolicyLatencyBudget)
	PolicyIDOwnership        = QosPolicyID(native.QosPolicyOwnership)
	PolicyIDLiveliness       = QosPolicyID(native.QosPolicyLiveliness)
	PolicyIDPartition        = QosPolicyID(native.QosPolicyPartition)
	PolicyIDReliability      = QosPolicyID(native.QosPolicyReliability)
	PolicyIDDestinationOrder = QosPolicyID(native.QosPolicyDestinationOrder)
)

func (id QosPolicyID) String() string {
	switch id {
	case PolicyIDDurability:
		return "durability"
	case PolicyIDDeadline:
		return "deadline"
	case PolicyIDLatencyBudget:
		return "latency_budget"
	case PolicyIDOwnership:
		return "ownership"
	case PolicyIDLiveliness:
		return "liveliness"
	case PolicyIDPartition:
		return "partition"
	case PolicyIDReliability:
		return "reliability"
	case PolicyIDDestinationOrder:
		return "destination_order"
	default:
		return "invalid"
	}
}

// SampleRejectedReason says which resource limit rejected a sample.
type SampleRejectedReason int32

const (
	NotRejected                       = SampleRejectedReason(native.NotRejected)
	RejectedByInstancesLimit          = SampleRejectedReason(native.RejectedByInstancesLimit)
	RejectedBySamplesLimit            = SampleRejectedReason(native.RejectedBySamplesLimit)
	RejectedBySamplesPerInstanceLimit = SampleRejectedReason(native.RejectedBySamplesPerInstanceLimit)
)

type InconsistentTopicStatus struct {
	TotalCount       uint32
	TotalCountChange int32
}

type SubscriptionMatchedStatus struct {
	TotalCount            uint32
	TotalCountChange      int32
	CurrentCount          uint32
	CurrentCountChange    int32
	LastPublicationHandle InstanceHandle
}

type PublicationMatchedStatus struct {
	TotalCount             uint32
	TotalCountChange       int32
	CurrentCount           uint32
	CurrentCountChange     int32
	LastSubscriptionHandle InstanceHandle
}

type LivelinessChangedStatus struct {
	AliveCount            uint32
	NotAliveCount         uint32
	AliveCountChange      int32
	NotAliveCountChange   int32
	LastPublicationHandle InstanceHandle
}

// IncompatibleQosStatus is reported on both sides of a failed match.
type IncompatibleQosStatus struct {
	TotalCount       uint32
	TotalCountChange int32
	LastPolicyID     QosPolicyID
}

type SampleRejectedStatus struct {
	TotalCount         uint32
	TotalCountChange   int32
	LastReason         SampleRejectedReason
	LastInstanceHandle InstanceHandle
}

func inconsistentTopicFromNative(s native.InconsistentTopicStatus) InconsistentTopicStatus {
	return InconsistentTopicStatus{TotalCount: s.TotalCount, TotalCountChange: s.TotalCountChange}
}

func subscriptionMatchedFromNative(s native.SubscriptionMatchedStatus) SubscriptionMatchedStatus {
	return SubscriptionMatchedStatus{
		TotalCount:            s.TotalCount,
		TotalCountChange:      s.TotalCountChange,
		CurrentCount:          s.CurrentCount,
		CurrentCountChange:    s.CurrentCountChange,
		LastPublicationHandle: InstanceHandle(s.LastPublicationHandle),
	}
}

func publicationMatchedFromNative(s native.PublicationMatchedStatus) PublicationMatchedStatus {
	return PublicationMatchedStatus{
		TotalCount:             s.TotalCount,
		TotalCountChange:       s.TotalCountChange,
		CurrentCount:           s.CurrentCount,
		CurrentCountChange:     s.CurrentCountChange,
		LastSubscriptionHandle: InstanceHandle(s.LastSubscriptionHandle),
	}
}

func livelinessChangedFromNative(s native.LivelinessChangedStatus) LivelinessChangedStatus {
	return LivelinessChangedStatus{
		AliveCount:            s.AliveCount,
		NotAliveCount:         s.NotAliveCount,
		AliveCountChange:      s.AliveCountChange,
		NotAliveCountChange:   s.NotAliveCountChange,
		LastPublicationHandle: InstanceHandle(s.LastPublicationHandle),
	}
}

func incompatibleQosFromNative(s native.IncompatibleQosStatus) IncompatibleQosStatus {
	return IncompatibleQosStatus{
		TotalCount:       s.TotalCount,
		TotalCountChange: s.TotalCountChange,
		LastPolicyID:     QosPolicyID(s.LastPolicyID),
	}
}

func sampleRejectedFromNative(s native.SampleRejectedStatus) SampleRejectedStatus {
	return SampleRejectedStatus{
		TotalCount:         s.TotalCount,
		TotalCountChange:   s.TotalCountChange,
		LastReason:         SampleRejectedReason(s.LastReason),
		LastInstanceHandle: InstanceHandle(s.LastInstanceHandle),
	}
}

// statusGetter reads one plain status and resets its change counters.
func statusGetter[N, S any](e *entity, get func(native.Entity) (N, native.ReturnCode), conv func(N) S, what string) (S, error) {
	var zero S
	h, err := e.liveHandle()
	if err != nil {
		return zero, err
	}
	s, rc := get(h)
	if err := retError(rc, "get %s status of %s", what, e.kind); err != nil {
		return zero, err
	}
	return conv(s), nil
}

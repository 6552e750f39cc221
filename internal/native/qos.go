package native

import (
	"bytes"
	"math"
	"slices"
)

// Infinity is the duration value meaning "never".
const Infinity int64 = math.MaxInt64

// Unlimited is the resource limit value meaning "no limit".
const Unlimited int32 = -1

// PolicyMask marks which policies a Qos carries.
type PolicyMask uint64

const (
	PolicyReliability PolicyMask = 1 << iota
	PolicyDurability
	PolicyHistory
	PolicyDeadline
	PolicyLiveliness
	PolicyOwnership
	PolicyOwnershipStrength
	PolicyLifespan
	PolicyLatencyBudget
	PolicyResourceLimits
	PolicyPartition
	PolicyDestinationOrder
	PolicyWriterDataLifecycle
	PolicyReaderDataLifecycle
	PolicyTimeBasedFilter
	PolicyTransportPriority
	PolicyIgnoreLocal
	PolicyUserData
)

const (
	ReliabilityBestEffort int32 = 0
	ReliabilityReliable   int32 = 1
)

const (
	DurabilityVolatile int32 = iota
	DurabilityTransientLocal
	DurabilityTransient
	DurabilityPersistent
)

const (
	HistoryKeepLast int32 = 0
	HistoryKeepAll  int32 = 1
)

const (
	LivelinessAutomatic int32 = iota
	LivelinessManualByParticipant
	LivelinessManualByTopic
)

const (
	OwnershipShared    int32 = 0
	OwnershipExclusive int32 = 1
)

const (
	DestinationOrderByReception int32 = 0
	DestinationOrderBySource    int32 = 1
)

const (
	IgnoreLocalNone int32 = iota
	IgnoreLocalParticipant
	IgnoreLocalProcess
)

// Qos is the native policy set. Only the policies flagged in Present are
// meaningful; the runtime stores exactly what it is given.
type Qos struct {
	Present PolicyMask

	ReliabilityKind int32
	MaxBlockingTime int64

	DurabilityKind int32

	HistoryKind  int32
	HistoryDepth int32

	DeadlinePeriod int64

	LivelinessKind int32
	LeaseDuration  int64

	OwnershipKind     int32
	OwnershipStrength int32

	Lifespan      int64
	LatencyBudget int64

	MaxSamples            int32
	MaxInstances          int32
	MaxSamplesPerInstance int32

	Partition []string

	DestinationOrderKind int32

	AutodisposeUnregistered bool

	AutopurgeNoWriterSamples int64
	AutopurgeDisposedSamples int64

	MinimumSeparation int64

	TransportPriority int32

	IgnoreLocalKind int32

	UserData []byte
}

// CreateQos returns an empty policy set.
func CreateQos() *Qos { return &Qos{} }

// Copy returns a deep copy of q.
func (q *Qos) Copy() *Qos {
	if q == nil {
		return CreateQos()
	}
	c := *q
	c.Partition = slices.Clone(q.Partition)
	c.UserData = bytes.Clone(q.UserData)
	return &c
}

// Has reports whether policy p is present.
func (q *Qos) Has(p PolicyMask) bool { return q != nil && q.Present&p != 0 }

// QosEqual compares the present policies of a and b.
func QosEqual(a, b *Qos) bool {
	if a == nil {
		a = CreateQos()
	}
	if b == nil {
		b = CreateQos()
	}
	if a.Present != b.Present {
		return false
	}
	p := a.Present
	switch {
	case p&PolicyReliability != 0 && (a.ReliabilityKind != b.ReliabilityKind || a.MaxBlockingTime != b.MaxBlockingTime):
		return false
	case p&PolicyDurability != 0 && a.DurabilityKind != b.DurabilityKind:
		return false
	case p&PolicyHistory != 0 && (a.HistoryKind != b.HistoryKind || a.HistoryDepth != b.HistoryDepth):
		return false
	case p&PolicyDeadline != 0 && a.DeadlinePeriod != b.DeadlinePeriod:
		return false
	case p&PolicyLiveliness != 0 && (a.LivelinessKind != b.LivelinessKind || a.LeaseDuration != b.LeaseDuration):
		return false
	case p&PolicyOwnership != 0 && a.OwnershipKind != b.OwnershipKind:
		return false
	case p&PolicyOwnershipStrength != 0 && a.OwnershipStrength != b.OwnershipStrength:
		return false
	case p&PolicyLifespan != 0 && a.Lifespan != b.Lifespan:
		return false
	case p&PolicyLatencyBudget != 0 && a.LatencyBudget != b.LatencyBudget:
		return false
	case p&PolicyResourceLimits != 0 && (a.MaxSamples != b.MaxSamples || a.MaxInstances != b.MaxInstances || a.MaxSamplesPerInstance != b.MaxSamplesPerInstance):
		return false
	case p&PolicyPartition != 0 && !slices.Equal(a.Partition, b.Partition):
		return false
	case p&PolicyDestinationOrder != 0 && a.DestinationOrderKind != b.DestinationOrderKind:
		return false
	case p&PolicyWriterDataLifecycle != 0 && a.AutodisposeUnregistered != b.AutodisposeUnregistered:
		return false
	case p&PolicyReaderDataLifecycle != 0 && (a.AutopurgeNoWriterSamples != b.AutopurgeNoWriterSamples || a.AutopurgeDisposedSamples != b.AutopurgeDisposedSamples):
		return false
	case p&PolicyTimeBasedFilter != 0 && a.MinimumSeparation != b.MinimumSeparation:
		return false
	case p&PolicyTransportPriority != 0 && a.TransportPriority != b.TransportPriority:
		return false
	case p&PolicyIgnoreLocal != 0 && a.IgnoreLocalKind != b.IgnoreLocalKind:
		return false
	case p&PolicyUserData != 0 && !bytes.Equal(a.UserData, b.UserData):
		return false
	}
	return true
}

// validateQos checks the policy set the way the runtime does at entity
// creation.
func validateQos(q *Qos) ReturnCode {
	if q == nil {
		return RetOK
	}
	durations := []struct {
		present PolicyMask
		v       int64
	}{
		{PolicyReliability, q.MaxBlockingTime},
		{PolicyDeadline, q.DeadlinePeriod},
		{PolicyLiveliness, q.LeaseDuration},
		{PolicyLifespan, q.Lifespan},
		{PolicyLatencyBudget, q.LatencyBudget},
		{PolicyTimeBasedFilter, q.MinimumSeparation},
		{PolicyReaderDataLifecycle, q.AutopurgeNoWriterSamples},
		{PolicyReaderDataLifecycle, q.AutopurgeDisposedSamples},
	}
	for _, d := range durations {
		if q.Has(d.present) && d.v < 0 {
			return RetBadParameter
		}
	}
	if q.Has(PolicyHistory) && q.HistoryKind == HistoryKeepLast && q.HistoryDepth <= 0 {
		return RetBadParameter
	}
	if q.Has(PolicyResourceLimits) {
		for _, v := range []int32{q.MaxSamples, q.MaxInstances, q.MaxSamplesPerInstance} {
			if v == 0 || v < Unlimited {
				return RetBadParameter
			}
		}
		if q.MaxSamples != Unlimited && q.MaxSamplesPerInstance != Unlimited && q.MaxSamples < q.MaxSamplesPerInstance {
			return RetInconsistentPolicy
		}
		if q.Has(PolicyHistory) && q.HistoryKind == HistoryKeepLast &&
			q.MaxSamplesPerInstance != Unlimited && q.HistoryDepth > q.MaxSamplesPerInstance {
			return RetInconsistentPolicy
		}
	}
	if q.Has(PolicyTimeBasedFilter) && q.Has(PolicyDeadline) && q.DeadlinePeriod < q.MinimumSeparation {
		return RetInconsistentPolicy
	}
	return RetOK
}

// effective policy values, falling back to the runtime defaults for the
// entity kind when a policy is absent.

func (q *Qos) reliability(k Kind) (int32, int64) {
	if q.Has(PolicyReliability) {
		return q.ReliabilityKind, q.MaxBlockingTime
	}
	if k == KindWriter {
		return ReliabilityReliable, 100_000_000
	}
	return ReliabilityBestEffort, 100_000_000
}

func (q *Qos) durability() int32 {
	if q.Has(PolicyDurability) {
		return q.DurabilityKind
	}
	return DurabilityVolatile
}

func (q *Qos) history() (int32, int32) {
	if q.Has(PolicyHistory) {
		return q.HistoryKind, q.HistoryDepth
	}
	return HistoryKeepLast, 1
}

func (q *Qos) resourceLimits() (maxSamples, maxInstances, maxPerInstance int32) {
	if q.Has(PolicyResourceLimits) {
		return q.MaxSamples, q.MaxInstances, q.MaxSamplesPerInstance
	}
	return Unlimited, Unlimited, Unlimited
}

func (q *Qos) deadline() int64 {
	if q.Has(PolicyDeadline) {
		return q.DeadlinePeriod
	}
	return Infinity
}

func (q *Qos) liveliness() (int32, int64) {
	if q.Has(PolicyLiveliness) {
		return q.LivelinessKind, q.LeaseDuration
	}
	return LivelinessAutomatic, Infinity
}

func (q *Qos) ownership() int32 {
	if q.Has(PolicyOwnership) {
		return q.OwnershipKind
	}
	return OwnershipShared
}

func (q *Qos) destinationOrder() int32 {
	if q.Has(PolicyDestinationOrder) {
		return q.DestinationOrderKind
	}
	return DestinationOrderByReception
}

func (q *Qos) autodispose() bool {
	if q.Has(PolicyWriterDataLifecycle) {
		return q.AutodisposeUnregistered
	}
	return true
}

func (q *Qos) partitions() []string {
	if q.Has(PolicyPartition) {
		return q.Partition
	}
	return nil
}

func (q *Qos) lifespan() int64 {
	if q.Has(PolicyLifespan) {
		return q.Lifespan
	}
	return Infinity
}

func (q *Qos) ignoreLocal() int32 {
	if q.Has(PolicyIgnoreLocal) {
		return q.IgnoreLocalKind
	}
	return IgnoreLocalNone
}

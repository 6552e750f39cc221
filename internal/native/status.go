package native

// StatusID identifies a communication status.
type StatusID uint32

const (
	StatusInconsistentTopic StatusID = iota
	StatusOfferedDeadlineMissed
	StatusRequestedDeadlineMissed
	StatusOfferedIncompatibleQos
	StatusRequestedIncompatibleQos
	StatusSampleLost
	StatusSampleRejected
	StatusDataOnReaders
	StatusDataAvailable
	StatusLivelinessLost
	StatusLivelinessChanged
	StatusPublicationMatched
	StatusSubscriptionMatched
)

// Mask returns the status bit for id.
func (id StatusID) Mask() uint32 { return 1 << id }

// Sample, view and instance state bits.
const (
	SampleStateRead    uint32 = 1
	SampleStateNotRead uint32 = 2

	ViewStateNew    uint32 = 4
	ViewStateNotNew uint32 = 8

	InstanceStateAlive            uint32 = 16
	InstanceStateNotAliveDisposed uint32 = 32
	InstanceStateNotAliveNoWriters uint32 = 64

	AnySampleState   = SampleStateRead | SampleStateNotRead
	AnyViewState     = ViewStateNew | ViewStateNotNew
	AnyInstanceState = InstanceStateAlive | InstanceStateNotAliveDisposed | InstanceStateNotAliveNoWriters
	AnyState         = AnySampleState | AnyViewState | AnyInstanceState
)

// SampleInfo is the metadata the runtime fills in next to each sample.
type SampleInfo struct {
	SampleState   uint32
	ViewState     uint32
	InstanceState uint32
	ValidData     bool

	SourceTimestamp   int64
	InstanceHandle    uint64
	PublicationHandle uint64

	DisposedGenerationCount  uint32
	NoWritersGenerationCount uint32

	SampleRank             uint32
	GenerationRank         uint32
	AbsoluteGenerationRank uint32
}

// QosPolicyID identifies a policy in incompatible-QoS statuses.
type QosPolicyID int32

const (
	QosPolicyInvalid          QosPolicyID = 0
	QosPolicyDurability       QosPolicyID = 2
	QosPolicyDeadline         QosPolicyID = 4
	QosPolicyLatencyBudget    QosPolicyID = 5
	QosPolicyOwnership        QosPolicyID = 6
	QosPolicyLiveliness       QosPolicyID = 8
	QosPolicyPartition        QosPolicyID = 10
	QosPolicyReliability      QosPolicyID = 11
	QosPolicyDestinationOrder QosPolicyID = 12
)

// SampleRejectedReason says which limit caused a rejection.
type SampleRejectedReason int32

const (
	NotRejected SampleRejectedReason = iota
	RejectedByInstancesLimit
	RejectedBySamplesLimit
	RejectedBySamplesPerInstanceLimit
)

type InconsistentTopicStatus struct {
	TotalCount       uint32
	TotalCountChange int32
}

type SubscriptionMatchedStatus struct {
	TotalCount           uint32
	TotalCountChange     int32
	CurrentCount         uint32
	CurrentCountChange   int32
	LastPublicationHandle uint64
}

type PublicationMatchedStatus struct {
	TotalCount             uint32
	TotalCountChange       int32
	CurrentCount           uint32
	CurrentCountChange     int32
	LastSubscriptionHandle uint64
}

type LivelinessChangedStatus struct {
	AliveCount            uint32
	NotAliveCount         uint32
	AliveCountChange      int32
	NotAliveCountChange   int32
	LastPublicationHandle uint64
}

type IncompatibleQosStatus struct {
	TotalCount       uint32
	TotalCountChange int32
	LastPolicyID     QosPolicyID
}

type SampleRejectedStatus struct {
	TotalCount         uint32
	TotalCountChange   int32
	LastReason         SampleRejectedReason
	LastInstanceHandle uint64
}

// statusCounters holds the cumulative plain communication statuses of one
// entity. Change fields are reset when the status is taken.
type statusCounters struct {
	inconsistentTopic  InconsistentTopicStatus
	subMatched         SubscriptionMatchedStatus
	pubMatched         PublicationMatchedStatus
	liveliness         LivelinessChangedStatus
	requestedIncompat  IncompatibleQosStatus
	offeredIncompat    IncompatibleQosStatus
	sampleRejected     SampleRejectedStatus
}

func (c *statusCounters) reset(id StatusID) {
	switch id {
	case StatusInconsistentTopic:
		c.inconsistentTopic.TotalCountChange = 0
	case StatusSubscriptionMatched:
		c.subMatched.TotalCountChange = 0
		c.subMatched.CurrentCountChange = 0
	case StatusPublicationMatched:
		c.pubMatched.TotalCountChange = 0
		c.pubMatched.CurrentCountChange = 0
	case StatusLivelinessChanged:
		c.liveliness.AliveCountChange = 0
		c.liveliness.NotAliveCountChange = 0
	case StatusRequestedIncompatibleQos:
		c.requestedIncompat.TotalCountChange = 0
	case StatusOfferedIncompatibleQos:
		c.offeredIncompat.TotalCountChange = 0
	case StatusSampleRejected:
		c.sampleRejected.TotalCountChange = 0
	}
}

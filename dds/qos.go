package dds

import (
	"bytes"
	"fmt"
	"math"
	"math/bits"
	"slices"
	"strings"
	"time"

	"github.com/ZettaScaleLabs/dds-go/internal/native"
)

// DurationInfinite is the duration meaning "never" in time-valued policies.
const DurationInfinite time.Duration = math.MaxInt64

// LengthUnlimited disables a resource limit.
const LengthUnlimited int32 = native.Unlimited

// Reliability controls sample delivery guarantees
type Reliability int32

const (
	// ReliabilityBestEffort delivers samples without retransmission
	ReliabilityBestEffort = Reliability(native.ReliabilityBestEffort)
	// ReliabilityReliable retransmits lost samples and may block the writer
	ReliabilityReliable = Reliability(native.ReliabilityReliable)
)

// Durability controls whether late-joining readers see past samples
type Durability int32

const (
	// DurabilityVolatile only delivers samples written after matching
	DurabilityVolatile = Durability(native.DurabilityVolatile)
	// DurabilityTransientLocal replays the writer's history to late joiners
	DurabilityTransientLocal = Durability(native.DurabilityTransientLocal)
	DurabilityTransient      = Durability(native.DurabilityTransient)
	DurabilityPersistent     = Durability(native.DurabilityPersistent)
)

// History controls how many samples are kept per instance
type History int32

const (
	// HistoryKeepLast keeps only the last N samples
	HistoryKeepLast = History(native.HistoryKeepLast)
	// HistoryKeepAll keeps all samples, bounded by the resource limits
	HistoryKeepAll = History(native.HistoryKeepAll)
)

// Liveliness controls how liveliness is asserted
type Liveliness int32

const (
	LivelinessAutomatic           = Liveliness(native.LivelinessAutomatic)
	LivelinessManualByParticipant = Liveliness(native.LivelinessManualByParticipant)
	LivelinessManualByTopic       = Liveliness(native.LivelinessManualByTopic)
)

// Ownership controls whether several writers may update one instance
type Ownership int32

const (
	OwnershipShared    = Ownership(native.OwnershipShared)
	OwnershipExclusive = Ownership(native.OwnershipExclusive)
)

// DestinationOrder selects which timestamp orders samples in a reader
type DestinationOrder int32

const (
	DestinationOrderByReception = DestinationOrder(native.DestinationOrderByReception)
	DestinationOrderBySource    = DestinationOrder(native.DestinationOrderBySource)
)

// IgnoreLocal keeps readers from receiving samples of nearby writers
type IgnoreLocal int32

const (
	IgnoreLocalNone        = IgnoreLocal(native.IgnoreLocalNone)
	IgnoreLocalParticipant = IgnoreLocal(native.IgnoreLocalParticipant)
	IgnoreLocalProcess     = IgnoreLocal(native.IgnoreLocalProcess)
)

var (
	reliabilityNames      = []string{"best_effort", "reliable"}
	durabilityNames       = []string{"volatile", "transient_local", "transient", "persistent"}
	historyNames          = []string{"keep_last", "keep_all"}
	livelinessNames       = []string{"automatic", "manual_by_participant", "manual_by_topic"}
	ownershipNames        = []string{"shared", "exclusive"}
	destinationOrderNames = []string{"by_reception", "by_source"}
	ignoreLocalNames      = []string{"none", "participant", "process"}
)

func enumString(names []string, v int32) string {
	if v >= 0 && int(v) < len(names) {
		return names[v]
	}
	return fmt.Sprintf("unknown(%d)", v)
}

func parseEnum[T ~int32](names []string, text []byte) (T, error) {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	if i := slices.Index(names, s); i >= 0 {
		return T(i), nil
	}
	return 0, fmt.Errorf("%w: %q is not one of %s", ErrInvalidQos, s, strings.Join(names, ", "))
}

func (k Reliability) String() string      { return enumString(reliabilityNames, int32(k)) }
func (k Durability) String() string       { return enumString(durabilityNames, int32(k)) }
func (k History) String() string          { return enumString(historyNames, int32(k)) }
func (k Liveliness) String() string       { return enumString(livelinessNames, int32(k)) }
func (k Ownership) String() string        { return enumString(ownershipNames, int32(k)) }
func (k DestinationOrder) String() string { return enumString(destinationOrderNames, int32(k)) }
func (k IgnoreLocal) String() string      { return enumString(ignoreLocalNames, int32(k)) }

// UnmarshalText lets the kinds be spelled by name in profile files.
func (k *Reliability) UnmarshalText(b []byte) (err error) {
	*k, err = parseEnum[Reliability](reliabilityNames, b)
	return err
}

func (k *Durability) UnmarshalText(b []byte) (err error) {
	*k, err = parseEnum[Durability](durabilityNames, b)
	return err
}

func (k *History) UnmarshalText(b []byte) (err error) {
	*k, err = parseEnum[History](historyNames, b)
	return err
}

func (k *Liveliness) UnmarshalText(b []byte) (err error) {
	*k, err = parseEnum[Liveliness](livelinessNames, b)
	return err
}

func (k *Ownership) UnmarshalText(b []byte) (err error) {
	*k, err = parseEnum[Ownership](ownershipNames, b)
	return err
}

func (k *DestinationOrder) UnmarshalText(b []byte) (err error) {
	*k, err = parseEnum[DestinationOrder](destinationOrderNames, b)
	return err
}

func (k *IgnoreLocal) UnmarshalText(b []byte) (err error) {
	*k, err = parseEnum[IgnoreLocal](ignoreLocalNames, b)
	return err
}

// Policy identifies one policy of a Qos.
type Policy uint64

const (
	PolicyReliability         = Policy(native.PolicyReliability)
	PolicyDurability          = Policy(native.PolicyDurability)
	PolicyHistory             = Policy(native.PolicyHistory)
	PolicyDeadline            = Policy(native.PolicyDeadline)
	PolicyLiveliness          = Policy(native.PolicyLiveliness)
	PolicyOwnership           = Policy(native.PolicyOwnership)
	PolicyOwnershipStrength   = Policy(native.PolicyOwnershipStrength)
	PolicyLifespan            = Policy(native.PolicyLifespan)
	PolicyLatencyBudget       = Policy(native.PolicyLatencyBudget)
	PolicyResourceLimits      = Policy(native.PolicyResourceLimits)
	PolicyPartition           = Policy(native.PolicyPartition)
	PolicyDestinationOrder    = Policy(native.PolicyDestinationOrder)
	PolicyWriterDataLifecycle = Policy(native.PolicyWriterDataLifecycle)
	PolicyReaderDataLifecycle = Policy(native.PolicyReaderDataLifecycle)
	PolicyTimeBasedFilter     = Policy(native.PolicyTimeBasedFilter)
	PolicyTransportPriority   = Policy(native.PolicyTransportPriority)
	PolicyIgnoreLocal         = Policy(native.PolicyIgnoreLocal)
	PolicyUserData            = Policy(native.PolicyUserData)
)

var policyNames = []string{
	"reliability", "durability", "history", "deadline", "liveliness",
	"ownership", "ownership_strength", "lifespan", "latency_budget",
	"resource_limits", "partition", "destination_order",
	"writer_data_lifecycle", "reader_data_lifecycle", "time_based_filter",
	"transport_priority", "ignore_local", "user_data",
}

func (p Policy) String() string {
	if bits.OnesCount64(uint64(p)) == 1 {
		if i := bits.TrailingZeros64(uint64(p)); i < len(policyNames) {
			return policyNames[i]
		}
	}
	return fmt.Sprintf("policy(%#x)", uint64(p))
}

// ResourceLimits bounds what a reader or writer history may hold.
// LengthUnlimited disables a bound.
type ResourceLimits struct {
	MaxSamples            int32
	MaxInstances          int32
	MaxSamplesPerInstance int32
}

// Qos is an immutable set of policies. Policies left out take the runtime
// defaults of the entity they are applied to. Build one with NewQos or
// start from a preset:
//
//	qos, err := dds.NewQos().
//	    WithReliability(dds.ReliabilityReliable, 100*time.Millisecond).
//	    WithKeepLast(10).
//	    Build()
type Qos struct {
	n native.Qos
}

func qosFromNative(n *native.Qos) *Qos {
	return &Qos{n: *n.Copy()}
}

// toNative returns a copy the runtime may keep.
func (q *Qos) toNative() *native.Qos {
	if q == nil {
		return nil
	}
	return q.n.Copy()
}

// Has reports whether p is set.
func (q *Qos) Has(p Policy) bool {
	return q != nil && q.n.Has(native.PolicyMask(p))
}

// Policies lists the policies set, in declaration order.
func (q *Qos) Policies() []Policy {
	if q == nil {
		return nil
	}
	var ps []Policy
	for m := uint64(q.n.Present); m != 0; m &= m - 1 {
		ps = append(ps, Policy(m&-m))
	}
	return ps
}

// Equal reports whether q and o set the same policies to the same values.
func (q *Qos) Equal(o *Qos) bool {
	var a, b *native.Qos
	if q != nil {
		a = &q.n
	}
	if o != nil {
		b = &o.n
	}
	return native.QosEqual(a, b)
}

// Builder returns a builder preloaded with the policies of q.
func (q *Qos) Builder() *QosBuilder {
	b := NewQos()
	if q != nil {
		b.n = *q.n.Copy()
	}
	return b
}

func (q *Qos) String() string {
	names := make([]string, 0, len(q.Policies()))
	for _, p := range q.Policies() {
		names = append(names, p.String())
	}
	return "Qos{" + strings.Join(names, ", ") + "}"
}

// Reliability returns the reliability kind and max blocking time
func (q *Qos) Reliability() (Reliability, time.Duration, bool) {
	if !q.Has(PolicyReliability) {
		return 0, 0, false
	}
	return Reliability(q.n.ReliabilityKind), time.Duration(q.n.MaxBlockingTime), true
}

// Durability returns the durability kind
func (q *Qos) Durability() (Durability, bool) {
	if !q.Has(PolicyDurability) {
		return 0, false
	}
	return Durability(q.n.DurabilityKind), true
}

// History returns the history kind and, for KeepLast, its depth.
func (q *Qos) History() (History, int32, bool) {
	if !q.Has(PolicyHistory) {
		return 0, 0, false
	}
	return History(q.n.HistoryKind), q.n.HistoryDepth, true
}

// Deadline returns the deadline period
func (q *Qos) Deadline() (time.Duration, bool) {
	if !q.Has(PolicyDeadline) {
		return 0, false
	}
	return time.Duration(q.n.DeadlinePeriod), true
}

// Liveliness returns the liveliness kind and lease duration
func (q *Qos) Liveliness() (Liveliness, time.Duration, bool) {
	if !q.Has(PolicyLiveliness) {
		return 0, 0, false
	}
	return Liveliness(q.n.LivelinessKind), time.Duration(q.n.LeaseDuration), true
}

// Ownership returns the ownership kind
func (q *Qos) Ownership() (Ownership, bool) {
	if !q.Has(PolicyOwnership) {
		return 0, false
	}
	return Ownership(q.n.OwnershipKind), true
}

// OwnershipStrength returns the strength of an exclusive owner
func (q *Qos) OwnershipStrength() (int32, bool) {
	if !q.Has(PolicyOwnershipStrength) {
		return 0, false
	}
	return q.n.OwnershipStrength, true
}

// Lifespan returns how long a sample stays valid
func (q *Qos) Lifespan() (time.Duration, bool) {
	if !q.Has(PolicyLifespan) {
		return 0, false
	}
	return time.Duration(q.n.Lifespan), true
}

// LatencyBudget returns the latency budget
func (q *Qos) LatencyBudget() (time.Duration, bool) {
	if !q.Has(PolicyLatencyBudget) {
		return 0, false
	}
	return time.Duration(q.n.LatencyBudget), true
}

// ResourceLimits returns the history resource limits
func (q *Qos) ResourceLimits() (ResourceLimits, bool) {
	if !q.Has(PolicyResourceLimits) {
		return ResourceLimits{}, false
	}
	return ResourceLimits{
		MaxSamples:            q.n.MaxSamples,
		MaxInstances:          q.n.MaxInstances,
		MaxSamplesPerInstance: q.n.MaxSamplesPerInstance,
	}, true
}

// Partition returns a copy of the partition names
func (q *Qos) Partition() ([]string, bool) {
	if !q.Has(PolicyPartition) {
		return nil, false
	}
	return slices.Clone(q.n.Partition), true
}

// DestinationOrder returns the destination order kind
func (q *Qos) DestinationOrder() (DestinationOrder, bool) {
	if !q.Has(PolicyDestinationOrder) {
		return 0, false
	}
	return DestinationOrder(q.n.DestinationOrderKind), true
}

// WriterDataLifecycle reports whether unregistering disposes the instance.
func (q *Qos) WriterDataLifecycle() (autodispose bool, ok bool) {
	if !q.Has(PolicyWriterDataLifecycle) {
		return false, false
	}
	return q.n.AutodisposeUnregistered, true
}

// ReaderDataLifecycle returns the autopurge delays for instances without writers and disposed instances
func (q *Qos) ReaderDataLifecycle() (noWriters, disposed time.Duration, ok bool) {
	if !q.Has(PolicyReaderDataLifecycle) {
		return 0, 0, false
	}
	return time.Duration(q.n.AutopurgeNoWriterSamples), time.Duration(q.n.AutopurgeDisposedSamples), true
}

// TimeBasedFilter returns the minimum separation between delivered samples
func (q *Qos) TimeBasedFilter() (time.Duration, bool) {
	if !q.Has(PolicyTimeBasedFilter) {
		return 0, false
	}
	return time.Duration(q.n.MinimumSeparation), true
}

// TransportPriority returns the transport priority
func (q *Qos) TransportPriority() (int32, bool) {
	if !q.Has(PolicyTransportPriority) {
		return 0, false
	}
	return q.n.TransportPriority, true
}

// IgnoreLocal returns which local endpoints are ignored
func (q *Qos) IgnoreLocal() (IgnoreLocal, bool) {
	if !q.Has(PolicyIgnoreLocal) {
		return 0, false
	}
	return IgnoreLocal(q.n.IgnoreLocalKind), true
}

// UserData returns a copy of the user data
func (q *Qos) UserData() ([]byte, bool) {
	if !q.Has(PolicyUserData) {
		return nil, false
	}
	return bytes.Clone(q.n.UserData), true
}

// QosBuilder assembles a Qos. Setters never fail; the first invalid value
// is remembered and reported by Build.
type QosBuilder struct {
	n   native.Qos
	err error
}

// NewQos returns a builder with no policies set.
func NewQos() *QosBuilder {
	return &QosBuilder{}
}

func (b *QosBuilder) fail(format string, args ...any) {
	if b.err == nil {
		b.err = fmt.Errorf("%w: %s", ErrInvalidQos, fmt.Sprintf(format, args...))
	}
}

func (b *QosBuilder) duration(name string, d time.Duration) int64 {
	if d < 0 {
		b.fail("%s must not be negative, got %s", name, d)
	}
	return int64(d)
}

func (b *QosBuilder) set(p Policy) {
	b.n.Present |= native.PolicyMask(p)
}

// WithReliability sets the reliability kind. maxBlockingTime bounds how
// long a reliable writer waits for history space.
func (b *QosBuilder) WithReliability(kind Reliability, maxBlockingTime time.Duration) *QosBuilder {
	if kind != ReliabilityBestEffort && kind != ReliabilityReliable {
		b.fail("unknown reliability kind %d", kind)
	}
	b.n.ReliabilityKind = int32(kind)
	b.n.MaxBlockingTime = b.duration("max blocking time", maxBlockingTime)
	b.set(PolicyReliability)
	return b
}

// WithDurability sets which samples late-joining readers receive
func (b *QosBuilder) WithDurability(kind Durability) *QosBuilder {
	if kind < DurabilityVolatile || kind > DurabilityPersistent {
		b.fail("unknown durability kind %d", kind)
	}
	b.n.DurabilityKind = int32(kind)
	b.set(PolicyDurability)
	return b
}

// WithKeepLast keeps the depth most recent samples of each instance.
func (b *QosBuilder) WithKeepLast(depth int32) *QosBuilder {
	if depth <= 0 {
		b.fail("keep last depth must be > 0, got %d", depth)
	}
	b.n.HistoryKind = int32(HistoryKeepLast)
	b.n.HistoryDepth = depth
	b.set(PolicyHistory)
	return b
}

// WithKeepAll keeps every sample until taken, within the resource limits.
func (b *QosBuilder) WithKeepAll() *QosBuilder {
	b.n.HistoryKind = int32(HistoryKeepAll)
	b.n.HistoryDepth = 0
	b.set(PolicyHistory)
	return b
}

// WithDeadline sets the maximum period between samples of an instance
func (b *QosBuilder) WithDeadline(period time.Duration) *QosBuilder {
	b.n.DeadlinePeriod = b.duration("deadline", period)
	b.set(PolicyDeadline)
	return b
}

// WithLiveliness sets how writer liveliness is asserted and its lease duration
func (b *QosBuilder) WithLiveliness(kind Liveliness, lease time.Duration) *QosBuilder {
	if kind < LivelinessAutomatic || kind > LivelinessManualByTopic {
		b.fail("unknown liveliness kind %d", kind)
	}
	b.n.LivelinessKind = int32(kind)
	b.n.LeaseDuration = b.duration("lease duration", lease)
	b.set(PolicyLiveliness)
	return b
}

// WithOwnership sets whether instances are shared or owned by the strongest writer
func (b *QosBuilder) WithOwnership(kind Ownership) *QosBuilder {
	if kind != OwnershipShared && kind != OwnershipExclusive {
		b.fail("unknown ownership kind %d", kind)
	}
	b.n.OwnershipKind = int32(kind)
	b.set(PolicyOwnership)
	return b
}

// WithOwnershipStrength sets the writer strength. It requires exclusive
// ownership in the same Qos.
func (b *QosBuilder) WithOwnershipStrength(strength int32) *QosBuilder {
	b.n.OwnershipStrength = strength
	b.set(PolicyOwnershipStrength)
	return b
}

// WithLifespan sets how long a written sample stays valid
func (b *QosBuilder) WithLifespan(d time.Duration) *QosBuilder {
	b.n.Lifespan = b.duration("lifespan", d)
	b.set(PolicyLifespan)
	return b
}

// WithLatencyBudget sets the acceptable delivery delay
func (b *QosBuilder) WithLatencyBudget(d time.Duration) *QosBuilder {
	b.n.LatencyBudget = b.duration("latency budget", d)
	b.set(PolicyLatencyBudget)
	return b
}

// WithResourceLimits bounds the history. Each limit is positive or
// LengthUnlimited.
func (b *QosBuilder) WithResourceLimits(l ResourceLimits) *QosBuilder {
	for _, v := range []int32{l.MaxSamples, l.MaxInstances, l.MaxSamplesPerInstance} {
		if v == 0 || v < LengthUnlimited {
			b.fail("resource limits must be > 0 or unlimited, got %+v", l)
			break
		}
	}
	b.n.MaxSamples = l.MaxSamples
	b.n.MaxInstances = l.MaxInstances
	b.n.MaxSamplesPerInstance = l.MaxSamplesPerInstance
	b.set(PolicyResourceLimits)
	return b
}

// WithPartition places the entity in the named partitions.
func (b *QosBuilder) WithPartition(names ...string) *QosBuilder {
	b.n.Partition = slices.Clone(names)
	b.set(PolicyPartition)
	return b
}

// WithDestinationOrder orders samples by reception or by source timestamp
func (b *QosBuilder) WithDestinationOrder(kind DestinationOrder) *QosBuilder {
	if kind != DestinationOrderByReception && kind != DestinationOrderBySource {
		b.fail("unknown destination order kind %d", kind)
	}
	b.n.DestinationOrderKind = int32(kind)
	b.set(PolicyDestinationOrder)
	return b
}

// WithWriterDataLifecycle sets whether unregistering an instance also
// disposes it.
func (b *QosBuilder) WithWriterDataLifecycle(autodispose bool) *QosBuilder {
	b.n.AutodisposeUnregistered = autodispose
	b.set(PolicyWriterDataLifecycle)
	return b
}

// WithReaderDataLifecycle sets when instances without writers and disposed instances are purged
func (b *QosBuilder) WithReaderDataLifecycle(noWriters, disposed time.Duration) *QosBuilder {
	b.n.AutopurgeNoWriterSamples = b.duration("autopurge no-writer delay", noWriters)
	b.n.AutopurgeDisposedSamples = b.duration("autopurge disposed delay", disposed)
	b.set(PolicyReaderDataLifecycle)
	return b
}

// WithTimeBasedFilter sets the minimum separation between delivered samples
func (b *QosBuilder) WithTimeBasedFilter(minimumSeparation time.Duration) *QosBuilder {
	b.n.MinimumSeparation = b.duration("minimum separation", minimumSeparation)
	b.set(PolicyTimeBasedFilter)
	return b
}

// WithTransportPriority sets the transport priority
func (b *QosBuilder) WithTransportPriority(priority int32) *QosBuilder {
	b.n.TransportPriority = priority
	b.set(PolicyTransportPriority)
	return b
}

// WithIgnoreLocal hides local endpoints from matching
func (b *QosBuilder) WithIgnoreLocal(kind IgnoreLocal) *QosBuilder {
	if kind < IgnoreLocalNone || kind > IgnoreLocalProcess {
		b.fail("unknown ignore local kind %d", kind)
	}
	b.n.IgnoreLocalKind = int32(kind)
	b.set(PolicyIgnoreLocal)
	return b
}

// WithUserData attaches opaque user data
func (b *QosBuilder) WithUserData(data []byte) *QosBuilder {
	b.n.UserData = bytes.Clone(data)
	b.set(PolicyUserData)
	return b
}

// Build returns the Qos or the first invalid setting as ErrInvalidQos.
// Limits that only conflict with each other are checked by the runtime
// when the Qos is used.
func (b *QosBuilder) Build() (*Qos, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.n.Has(native.PolicyOwnershipStrength) &&
		(!b.n.Has(native.PolicyOwnership) || b.n.OwnershipKind != native.OwnershipExclusive) {
		return nil, fmt.Errorf("%w: ownership strength requires exclusive ownership", ErrInvalidQos)
	}
	return &Qos{n: *b.n.Copy()}, nil
}

func (b *QosBuilder) mustBuild() *Qos {
	q, err := b.Build()
	if err != nil {
		panic(err)
	}
	return q
}

const defaultMaxBlockingTime = 100 * time.Millisecond

func defaultQos() *QosBuilder {
	return NewQos().
		WithReliability(ReliabilityReliable, defaultMaxBlockingTime).
		WithDurability(DurabilityVolatile).
		WithKeepLast(10).
		WithDeadline(DurationInfinite).
		WithLifespan(DurationInfinite).
		WithLiveliness(LivelinessAutomatic, DurationInfinite)
}

// QosDefault returns the default profile (Reliable, Volatile, KeepLast(10))
func QosDefault() *Qos {
	return defaultQos().mustBuild()
}

// QosSensorData returns a profile for sensor data (BestEffort, Volatile, KeepLast(5))
func QosSensorData() *Qos {
	return defaultQos().
		WithReliability(ReliabilityBestEffort, defaultMaxBlockingTime).
		WithKeepLast(5).
		mustBuild()
}

// QosParameterEvents returns a profile for parameter events (Reliable, Volatile, KeepLast(1000))
func QosParameterEvents() *Qos {
	return defaultQos().WithKeepLast(1000).mustBuild()
}

// QosKeepAll returns a profile that keeps all samples (Reliable, Volatile, KeepAll)
func QosKeepAll() *Qos {
	return defaultQos().WithKeepAll().mustBuild()
}

// QosTransientLocal returns a profile with transient local durability (Reliable, TransientLocal, KeepLast(1))
// Suitable for configuration or state topics read by late joiners.
func QosTransientLocal() *Qos {
	return defaultQos().
		WithDurability(DurabilityTransientLocal).
		WithKeepLast(1).
		mustBuild()
}

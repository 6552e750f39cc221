package dds

import (
	"time"

	"github.com/ZettaScaleLabs/dds-go/internal/native"
)

// SampleState tells whether a sample was already returned by a read.
type SampleState uint32

const (
	SampleRead    = SampleState(native.SampleStateRead)
	SampleNotRead = SampleState(native.SampleStateNotRead)
)

// ViewState tells whether the reader has seen the instance before.
type ViewState uint32

const (
	ViewNew    = ViewState(native.ViewStateNew)
	ViewNotNew = ViewState(native.ViewStateNotNew)
)

// InstanceState is the lifecycle state of an instance.
type InstanceState uint32

const (
	InstanceAlive             = InstanceState(native.InstanceStateAlive)
	InstanceNotAliveDisposed  = InstanceState(native.InstanceStateNotAliveDisposed)
	InstanceNotAliveNoWriters = InstanceState(native.InstanceStateNotAliveNoWriters)
)

func (s InstanceState) String() string {
	switch s {
	case InstanceAlive:
		return "alive"
	case InstanceNotAliveDisposed:
		return "disposed"
	case InstanceNotAliveNoWriters:
		return "no_writers"
	}
	return "unknown"
}

// StateMask selects samples by sample, view and instance state. Each of
// the three groups left empty matches any state of that group.
type StateMask uint32

const (
	MaskRead        = StateMask(native.SampleStateRead)
	MaskNotRead     = StateMask(native.SampleStateNotRead)
	MaskNew         = StateMask(native.ViewStateNew)
	MaskNotNew      = StateMask(native.ViewStateNotNew)
	MaskAlive       = StateMask(native.InstanceStateAlive)
	MaskDisposed    = StateMask(native.InstanceStateNotAliveDisposed)
	MaskNoWriters   = StateMask(native.InstanceStateNotAliveNoWriters)
	AnySampleState  = StateMask(native.AnySampleState)
	AnyViewState    = StateMask(native.AnyViewState)
	AnyInstance     = StateMask(native.AnyInstanceState)
	AnyState        = StateMask(native.AnyState)
	MaskNotAlive    = MaskDisposed | MaskNoWriters
)

// SampleInfo is the metadata delivered with each sample.
type SampleInfo struct {
	// Valid is false for samples that only announce an instance state
	// change; their Data carries the key fields only.
	Valid bool

	SampleState   SampleState
	ViewState     ViewState
	InstanceState InstanceState

	SourceTimestamp   time.Time
	InstanceHandle    InstanceHandle
	PublicationHandle InstanceHandle

	DisposedGenerationCount  uint32
	NoWritersGenerationCount uint32

	SampleRank             uint32
	GenerationRank         uint32
	AbsoluteGenerationRank uint32
}

func sampleInfoFromNative(n *native.SampleInfo) SampleInfo {
	return SampleInfo{
		Valid:                    n.ValidData,
		SampleState:              SampleState(n.SampleState),
		ViewState:                ViewState(n.ViewState),
		InstanceState:            InstanceState(n.InstanceState),
		SourceTimestamp:          time.Unix(0, n.SourceTimestamp),
		InstanceHandle:           InstanceHandle(n.InstanceHandle),
		PublicationHandle:        InstanceHandle(n.PublicationHandle),
		DisposedGenerationCount:  n.DisposedGenerationCount,
		NoWritersGenerationCount: n.NoWritersGenerationCount,
		SampleRank:               n.SampleRank,
		GenerationRank:           n.GenerationRank,
		AbsoluteGenerationRank:   n.AbsoluteGenerationRank,
	}
}

// Sample is one received sample and its metadata.
type Sample[T any] struct {
	Data T
	Info SampleInfo

	keys *KeySpec[T]
}

// Key returns the instance key of the sample. It is set for invalid
// samples too.
func (s *Sample[T]) Key() InstanceKey {
	if s.keys == nil {
		return InstanceKey{fixed: true}
	}
	return s.keys.Extract(&s.Data)
}

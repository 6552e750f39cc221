package dds

import (
	"runtime"

	"github.com/google/uuid"

	"github.com/ZettaScaleLabs/dds-go/internal/native"
)

// Participant is the root of an entity tree and the entry point to one
// domain. Closing it closes every entity it created.
type Participant struct {
	*entity
	cfg      Config
	domainID uint32
}

// ParticipantBuilder builds a Participant
type ParticipantBuilder struct {
	cfg      Config
	domainID *uint32
	qos      *Qos
	listener *Listener
}

// NewParticipant creates a new participant builder
func NewParticipant() *ParticipantBuilder {
	return &ParticipantBuilder{cfg: DefaultConfig()}
}

// WithConfig replaces the settings, DefaultConfig by default
func (b *ParticipantBuilder) WithConfig(cfg Config) *ParticipantBuilder {
	b.cfg = cfg
	return b
}

// WithDomainID sets the domain, overriding Config.DomainID
func (b *ParticipantBuilder) WithDomainID(id uint32) *ParticipantBuilder {
	b.domainID = &id
	return b
}

// WithQos sets the participant policies
func (b *ParticipantBuilder) WithQos(qos *Qos) *ParticipantBuilder {
	b.qos = qos
	return b
}

// WithListener installs listener callbacks at creation
func (b *ParticipantBuilder) WithListener(l *Listener) *ParticipantBuilder {
	b.listener = l
	return b
}

// Build creates the participant. The listener panic log rate of its
// config replaces the process-wide one.
func (b *ParticipantBuilder) Build() (*Participant, error) {
	cfg := b.cfg
	if b.domainID != nil {
		cfg.DomainID = *b.domainID
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	setPanicLogRate(cfg.ListenerErrorLogsPerSecond)

	e, err := newRootEntity(KindParticipant, b.listener, func(l *native.Listener) native.Entity {
		return native.CreateParticipant(cfg.DomainID, b.qos.toNative(), l)
	})
	if err != nil {
		return nil, err
	}
	p := &Participant{entity: e, cfg: cfg, domainID: cfg.DomainID}
	runtime.SetFinalizer(p, (*Participant).Close)
	logger.Info("participant created", "domain", cfg.DomainID, "handle", p.Handle())
	return p, nil
}

// DomainID returns the domain the participant joined
func (p *Participant) DomainID() uint32 {
	return p.domainID
}

// Config returns the settings the participant was built with
func (p *Participant) Config() Config {
	return p.cfg
}

// GUID returns the globally unique identifier of the participant
func (p *Participant) GUID() (uuid.UUID, error) {
	h, err := p.liveHandle()
	if err != nil {
		return uuid.Nil, err
	}
	id, rc := native.GetGUID(h)
	if err := retError(rc, "get guid of participant"); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// CreatePublisher creates a new publisher builder
func (p *Participant) CreatePublisher() *PublisherBuilder {
	return &PublisherBuilder{participant: p}
}

// CreateSubscriber creates a new subscriber builder
func (p *Participant) CreateSubscriber() *SubscriberBuilder {
	return &SubscriberBuilder{participant: p}
}

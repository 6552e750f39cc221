package dds

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// QosProfiles maps profile names to policy sets.
type QosProfiles map[string]*Qos

// Get returns the named profile.
func (p QosProfiles) Get(name string) (*Qos, error) {
	q, ok := p[name]
	if !ok {
		return nil, fmt.Errorf("%w: no qos profile %q", ErrBadParameter, name)
	}
	return q, nil
}

// profileDuration is a duration spelled as "100ms" or "infinite".
type profileDuration time.Duration

func (d *profileDuration) UnmarshalYAML(n *yaml.Node) error {
	s := strings.TrimSpace(n.Value)
	if strings.EqualFold(s, "infinite") {
		*d = profileDuration(DurationInfinite)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*d = profileDuration(v)
	return nil
}

type profileDoc struct {
	Profiles map[string]profileSpec `yaml:"profiles"`
}

type profileSpec struct {
	Base string `yaml:"base"`

	Reliability *struct {
		Kind            Reliability      `yaml:"kind"`
		MaxBlockingTime *profileDuration `yaml:"max_blocking_time"`
	} `yaml:"reliability"`
	Durability *Durability `yaml:"durability"`
	History    *struct {
		Kind  History `yaml:"kind"`
		Depth int32   `yaml:"depth"`
	} `yaml:"history"`
	Deadline   *profileDuration `yaml:"deadline"`
	Liveliness *struct {
		Kind          Liveliness       `yaml:"kind"`
		LeaseDuration *profileDuration `yaml:"lease_duration"`
	} `yaml:"liveliness"`
	Ownership         *Ownership       `yaml:"ownership"`
	OwnershipStrength *int32           `yaml:"ownership_strength"`
	Lifespan          *profileDuration `yaml:"lifespan"`
	LatencyBudget     *profileDuration `yaml:"latency_budget"`
	ResourceLimits    *struct {
		MaxSamples            *int32 `yaml:"max_samples"`
		MaxInstances          *int32 `yaml:"max_instances"`
		MaxSamplesPerInstance *int32 `yaml:"max_samples_per_instance"`
	} `yaml:"resource_limits"`
	Partition               []string          `yaml:"partition"`
	DestinationOrder        *DestinationOrder `yaml:"destination_order"`
	AutodisposeUnregistered *bool             `yaml:"autodispose_unregistered"`
	ReaderDataLifecycle     *struct {
		AutopurgeNoWriterSamples *profileDuration `yaml:"autopurge_no_writer_samples"`
		AutopurgeDisposedSamples *profileDuration `yaml:"autopurge_disposed_samples"`
	} `yaml:"reader_data_lifecycle"`
	TimeBasedFilter   *profileDuration `yaml:"time_based_filter"`
	TransportPriority *int32           `yaml:"transport_priority"`
	IgnoreLocal       *IgnoreLocal     `yaml:"ignore_local"`
	UserData          *string          `yaml:"user_data"`
}

func durationOr(d *profileDuration, def time.Duration) time.Duration {
	if d == nil {
		return def
	}
	return time.Duration(*d)
}

func limitOr(v *int32) int32 {
	if v == nil {
		return LengthUnlimited
	}
	return *v
}

// apply sets the policies named in s on top of b.
func (s profileSpec) apply(b *QosBuilder) {
	if r := s.Reliability; r != nil {
		b.WithReliability(r.Kind, durationOr(r.MaxBlockingTime, defaultMaxBlockingTime))
	}
	if s.Durability != nil {
		b.WithDurability(*s.Durability)
	}
	if h := s.History; h != nil {
		if h.Kind == HistoryKeepAll {
			b.WithKeepAll()
		} else {
			b.WithKeepLast(h.Depth)
		}
	}
	if s.Deadline != nil {
		b.WithDeadline(time.Duration(*s.Deadline))
	}
	if l := s.Liveliness; l != nil {
		b.WithLiveliness(l.Kind, durationOr(l.LeaseDuration, DurationInfinite))
	}
	if s.Ownership != nil {
		b.WithOwnership(*s.Ownership)
	}
	if s.OwnershipStrength != nil {
		b.WithOwnershipStrength(*s.OwnershipStrength)
	}
	if s.Lifespan != nil {
		b.WithLifespan(time.Duration(*s.Lifespan))
	}
	if s.LatencyBudget != nil {
		b.WithLatencyBudget(time.Duration(*s.LatencyBudget))
	}
	if rl := s.ResourceLimits; rl != nil {
		b.WithResourceLimits(ResourceLimits{
			MaxSamples:            limitOr(rl.MaxSamples),
			MaxInstances:          limitOr(rl.MaxInstances),
			MaxSamplesPerInstance: limitOr(rl.MaxSamplesPerInstance),
		})
	}
	if s.Partition != nil {
		b.WithPartition(s.Partition...)
	}
	if s.DestinationOrder != nil {
		b.WithDestinationOrder(*s.DestinationOrder)
	}
	if s.AutodisposeUnregistered != nil {
		b.WithWriterDataLifecycle(*s.AutodisposeUnregistered)
	}
	if rd := s.ReaderDataLifecycle; rd != nil {
		b.WithReaderDataLifecycle(
			durationOr(rd.AutopurgeNoWriterSamples, DurationInfinite),
			durationOr(rd.AutopurgeDisposedSamples, DurationInfinite))
	}
	if s.TimeBasedFilter != nil {
		b.WithTimeBasedFilter(time.Duration(*s.TimeBasedFilter))
	}
	if s.TransportPriority != nil {
		b.WithTransportPriority(*s.TransportPriority)
	}
	if s.IgnoreLocal != nil {
		b.WithIgnoreLocal(*s.IgnoreLocal)
	}
	if s.UserData != nil {
		b.WithUserData([]byte(*s.UserData))
	}
}

// LoadQosProfiles parses named QoS profiles from YAML:
//
//	profiles:
//	  telemetry:
//	    reliability: {kind: best_effort}
//	    history: {kind: keep_last, depth: 5}
//	  state:
//	    base: telemetry
//	    reliability: {kind: reliable, max_blocking_time: 200ms}
//	    durability: transient_local
//
// A profile with a base starts from the policies of that profile.
func LoadQosProfiles(r io.Reader) (QosProfiles, error) {
	var doc profileDoc
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: parse qos profiles: %w", ErrInvalidQos, err)
	}

	out := make(QosProfiles, len(doc.Profiles))
	resolving := make(map[string]bool)
	var resolve func(name string) (*QosBuilder, error)
	resolve = func(name string) (*QosBuilder, error) {
		spec, ok := doc.Profiles[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown base profile %q", ErrInvalidQos, name)
		}
		if resolving[name] {
			return nil, fmt.Errorf("%w: profile %q inherits from itself", ErrInvalidQos, name)
		}
		resolving[name] = true
		defer delete(resolving, name)

		b := NewQos()
		if spec.Base != "" {
			base, err := resolve(spec.Base)
			if err != nil {
				return nil, err
			}
			b = base
		}
		spec.apply(b)
		return b, nil
	}

	for name := range doc.Profiles {
		b, err := resolve(name)
		if err != nil {
			return nil, err
		}
		q, err := b.Build()
		if err != nil {
			return nil, fmt.Errorf("profile %q: %w", name, err)
		}
		out[name] = q
	}
	return out, nil
}

// LoadQosProfilesFile reads profiles from a YAML file.
func LoadQosProfilesFile(path string) (QosProfiles, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadQosProfiles(f)
}

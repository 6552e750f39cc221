// Package ddsfx provides a domain participant to fx applications.
package ddsfx

import (
	"context"

	"go.uber.org/fx"

	"github.com/ZettaScaleLabs/dds-go/dds"
)

// Module provides a *dds.Participant and closes it, with every entity
// created under it, when the application stops.
//
// The participant uses a dds.Config from the graph when one is supplied,
// and dds.ConfigFromEnv otherwise.
var Module = fx.Module("dds",
	fx.Provide(ProvideParticipant),
	fx.Invoke(registerLifecycle),
)

// Params are the optional inputs of ProvideParticipant.
type Params struct {
	fx.In

	Config   *dds.Config   `optional:"true"`
	Qos      *dds.Qos      `optional:"true"`
	Listener *dds.Listener `optional:"true"`
}

// ProvideParticipant builds the participant described by p.
func ProvideParticipant(p Params) (*dds.Participant, error) {
	var cfg dds.Config
	if p.Config != nil {
		cfg = *p.Config
	} else {
		var err error
		if cfg, err = dds.ConfigFromEnv(); err != nil {
			return nil, err
		}
	}
	return dds.NewParticipant().
		WithConfig(cfg).
		WithQos(p.Qos).
		WithListener(p.Listener).
		Build()
}

func registerLifecycle(lc fx.Lifecycle, p *dds.Participant) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return p.Close()
		},
	})
}

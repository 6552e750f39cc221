package ddsfx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/ZettaScaleLabs/dds-go/dds"
)

type ping struct {
	Seq int32 `dds:"key"`
}

func TestModuleProvidesConfiguredParticipant(t *testing.T) {
	cfg := dds.DefaultConfig()
	cfg.DomainID = 7

	var p *dds.Participant
	app := fxtest.New(t,
		Module,
		fx.Supply(&cfg),
		fx.Populate(&p),
	)
	app.RequireStart()

	require.NotNil(t, p)
	assert.Equal(t, uint32(7), p.DomainID())
	assert.False(t, p.IsClosed())

	app.RequireStop()
	assert.True(t, p.IsClosed())
}

func TestModuleReadsEnvironment(t *testing.T) {
	t.Setenv("DDS_DOMAIN_ID", "5")
	t.Setenv("DDS_READ_BATCH", "16")

	var p *dds.Participant
	app := fxtest.New(t, Module, fx.Populate(&p))
	defer app.RequireStart().RequireStop()

	assert.Equal(t, uint32(5), p.DomainID())
	assert.Equal(t, 16, p.Config().ReadBatchSize)
}

func TestModuleStopClosesEntityTree(t *testing.T) {
	var p *dds.Participant
	app := fxtest.New(t, Module, fx.Supply(&dds.Config{DomainID: 8, ReadBatchSize: 4}), fx.Populate(&p))
	app.RequireStart()

	topic, err := dds.CreateTopic[ping](p, "fx_ping").Build()
	require.NoError(t, err)
	pub, err := p.CreatePublisher().Build()
	require.NoError(t, err)
	w, err := dds.CreateWriter(pub, topic).Build()
	require.NoError(t, err)

	app.RequireStop()
	assert.True(t, topic.IsClosed())
	assert.True(t, pub.IsClosed())
	assert.ErrorIs(t, w.Write(&ping{Seq: 1}), dds.ErrAlreadyDestroyed)
}

func TestModuleRejectsInvalidConfig(t *testing.T) {
	app := fx.New(
		fx.NopLogger,
		Module,
		fx.Supply(&dds.Config{DomainID: 500, ReadBatchSize: 1}),
	)
	assert.ErrorContains(t, app.Err(), "domain id 500 out of range")
}

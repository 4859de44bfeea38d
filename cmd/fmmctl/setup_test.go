package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scalfmm-go/fmm/internal/config"
	"github.com/scalfmm-go/fmm/internal/engine"
	"github.com/scalfmm-go/fmm/internal/kernel/direct"
	"github.com/scalfmm-go/fmm/internal/particlesource"
)

func TestKernelForResolvesRegisteredFormula(t *testing.T) {
	c := config.Default()
	c.Kernel = "inverse-r"

	k, err := kernelFor(c)
	require.NoError(t, err)
	assert.IsType(t, &direct.Kernel{}, k)
}

func TestKernelForRejectsUnknownName(t *testing.T) {
	c := config.Default()
	c.Kernel = "does-not-exist"

	_, err := kernelFor(c)
	assert.Error(t, err)
}

func TestBackendForLocalIsDefault(t *testing.T) {
	c := config.Default()
	c.Storage.Backend = ""

	backend, err := backendFor(context.Background(), c)
	require.NoError(t, err)
	assert.IsType(t, &particlesource.LocalBackend{}, backend)
}

func TestBackendForUnknownNameFails(t *testing.T) {
	c := config.Default()
	c.Storage.Backend = "dropbox"

	_, err := backendFor(context.Background(), c)
	assert.Error(t, err)
}

func TestBuildEngineSelectsConcreteTypePerMode(t *testing.T) {
	src := particlesource.NewSynthetic([3]float64{0.5, 0.5, 0.5}, 1, 32, 1)

	tests := []struct {
		mode config.Mode
		want any
	}{
		{config.ModeSequential, &engine.Sequential{}},
		{config.ModeThread, &engine.Thread{}},
		{config.ModeTask, &engine.Task{}},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			c := config.Default()
			c.Mode = tt.mode
			c.Height = 3
			c.GroupSize = 4

			eng, err := buildEngine(c, src)
			require.NoError(t, err)
			assert.IsType(t, tt.want, eng)
		})
	}
}

func TestBuildEngineDistributedUsesSinglePeerLocalBus(t *testing.T) {
	src := particlesource.NewSynthetic([3]float64{0.5, 0.5, 0.5}, 1, 32, 1)

	c := config.Default()
	c.Mode = config.ModeDistributed
	c.Height = 3
	c.GroupSize = 4
	c.PeerCount = 1
	c.PeerRank = 0

	eng, err := buildEngine(c, src)
	require.NoError(t, err)
	assert.IsType(t, &engine.Distributed{}, eng)
}

func TestBuildEngineRejectsUnknownMode(t *testing.T) {
	src := particlesource.NewSynthetic([3]float64{0.5, 0.5, 0.5}, 1, 8, 1)

	c := config.Default()
	c.Mode = config.Mode("quantum")

	_, err := buildEngine(c, src)
	assert.Error(t, err)
}

func TestLoadSourceFallsBackToSyntheticWithoutInputFile(t *testing.T) {
	c := config.Default()
	c.InputFile = ""
	c.ParticleCount = 16

	src, err := loadSource(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, 16, src.NumParticles())
}

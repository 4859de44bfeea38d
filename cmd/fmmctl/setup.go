package main

import (
	"context"
	"fmt"

	"github.com/scalfmm-go/fmm/internal/config"
	"github.com/scalfmm-go/fmm/internal/engine"
	"github.com/scalfmm-go/fmm/internal/errors"
	"github.com/scalfmm-go/fmm/internal/kernel"
	"github.com/scalfmm-go/fmm/internal/kernel/direct"
	"github.com/scalfmm-go/fmm/internal/particle"
	"github.com/scalfmm-go/fmm/internal/particlesource"
)

// loadSource resolves the configured particle source: a file (local or
// from the configured object-storage backend) when InputFile is set,
// otherwise a deterministic synthetic cloud sized by ParticleCount.
func loadSource(ctx context.Context, c *config.Config) (particle.ParticleSource, error) {
	if c.InputFile == "" {
		return particlesource.NewSynthetic(c.BoxCentre, c.BoxWidth, c.ParticleCount, 1), nil
	}

	backend, err := backendFor(ctx, c)
	if err != nil {
		return nil, err
	}
	return particlesource.Load(ctx, backend, c.InputFile)
}

// backendFor constructs the particlesource.Backend named by
// c.Storage.Backend.
func backendFor(ctx context.Context, c *config.Config) (particlesource.Backend, error) {
	switch c.Storage.Backend {
	case "", "local":
		return particlesource.NewLocalBackend(""), nil
	case "s3":
		return particlesource.NewS3Backend(ctx, &particlesource.S3Config{
			Region: c.Storage.Region,
			Bucket: c.Storage.Bucket,
		})
	case "azure":
		return particlesource.NewAzureBackend(ctx, &particlesource.AzureConfig{
			ContainerName: c.Storage.Bucket,
		})
	case "gcs":
		return particlesource.NewGCSBackend(ctx, &particlesource.GCSConfig{
			BucketName: c.Storage.Bucket,
		})
	default:
		return nil, fmt.Errorf("fmmctl: unknown storage backend %q", c.Storage.Backend)
	}
}

// kernelFor resolves the configured kernel formula into a direct.Kernel:
// the only Kernel implementation this module ships, since approximating
// expansions are explicitly out of scope.
func kernelFor(c *config.Config) (kernel.Kernel, error) {
	formula, ok := direct.ByName(c.Kernel)
	if !ok {
		return nil, errors.NewMissingKernelError(c.Kernel)
	}
	return direct.New(formula), nil
}

// buildEngine constructs the tree appropriate to c.Mode and wraps it in
// the matching engine.Engine.
func buildEngine(c *config.Config, src particle.ParticleSource) (engine.Engine, error) {
	k, err := kernelFor(c)
	if err != nil {
		return nil, err
	}

	switch c.Mode {
	case config.ModeSequential:
		tree := particlesource.BuildOctree(src, c.Height)
		return engine.NewSequential(tree, k), nil
	case config.ModeThread:
		tree := particlesource.BuildOctree(src, c.Height)
		return engine.NewThread(tree, k, c.Threads), nil
	case config.ModeTask:
		gt := particlesource.BuildGrouped(src, c.Height, c.SubTreeHeight, c.GroupSize)
		return engine.NewTask(gt, k, c.Threads), nil
	case config.ModeDistributed:
		gt := particlesource.BuildGrouped(src, c.Height, c.SubTreeHeight, c.GroupSize)
		bus := engine.NewLocalBus(c.PeerCount)
		return engine.NewDistributed(gt, k, bus.Peer(c.PeerRank)), nil
	default:
		return nil, fmt.Errorf("fmmctl: unknown execution mode %q", c.Mode)
	}
}

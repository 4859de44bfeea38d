package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, uint8(6), cfg.Height)
	assert.Equal(t, 256, cfg.GroupSize)
	assert.Equal(t, ModeSequential, cfg.Mode)
	assert.Equal(t, "inverse-r", cfg.Kernel)
	assert.Equal(t, "local", cfg.Storage.Backend)
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "fmm.yml")

	yamlConfig := `
height: 8
sub_tree_height: 3
group_size: 512
mode: task
threads: 4
kernel: tensorial
particle_count: 20000
storage:
  backend: s3
  bucket: my-bucket
  region: us-east-1
`
	require.NoError(t, os.WriteFile(path, []byte(yamlConfig), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, uint8(8), cfg.Height)
	assert.Equal(t, uint8(3), cfg.SubTreeHeight)
	assert.Equal(t, 512, cfg.GroupSize)
	assert.Equal(t, ModeTask, cfg.Mode)
	assert.Equal(t, 4, cfg.Threads)
	assert.Equal(t, "tensorial", cfg.Kernel)
	assert.Equal(t, "s3", cfg.Storage.Backend)
	assert.Equal(t, "my-bucket", cfg.Storage.Bucket)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestLoadMalformedYAML(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "bad.yml")
	require.NoError(t, os.WriteFile(path, []byte("height: [this is not a scalar"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(c *Config) {}, false},
		{"height too low", func(c *Config) { c.Height = 0 }, true},
		{"height too high", func(c *Config) { c.Height = 21 }, true},
		{"sub-tree height exceeds height", func(c *Config) { c.SubTreeHeight = c.Height + 1 }, true},
		{"non-positive group size", func(c *Config) { c.GroupSize = 0 }, true},
		{"missing kernel name", func(c *Config) { c.Kernel = "" }, true},
		{"distributed mode needs peers", func(c *Config) { c.Mode = ModeDistributed; c.PeerCount = 0 }, true},
		{"distributed mode with peers is fine", func(c *Config) { c.Mode = ModeDistributed; c.PeerCount = 4 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// Package config provides configuration loading and validation for the FMM
// engine and its cmd/fmmctl driver: tree geometry, group size, kernel
// selection, particle source, and peer/thread topology.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/scalfmm-go/fmm/internal/errors"
)

// Mode selects which execution backend a run uses.
type Mode string

const (
	ModeSequential  Mode = "sequential"
	ModeThread      Mode = "thread"
	ModeTask        Mode = "task"
	ModeDistributed Mode = "distributed"
)

const (
	minHeight = 1
	maxHeight = 20
)

// Config is the complete configuration for one FMM run.
type Config struct {
	// Tree geometry.
	Height       uint8   `yaml:"height"`        // H, the -h flag
	SubTreeHeight uint8  `yaml:"sub_tree_height"` // the -sh flag, 0 disables the split
	BoxCentre    [3]float64 `yaml:"box_centre"`
	BoxWidth     float64 `yaml:"box_width"`

	// Grouped-octree parameters.
	GroupSize int `yaml:"group_size"` // G, the -bs flag

	// Execution.
	Mode        Mode `yaml:"mode"`
	Threads     int  `yaml:"threads"`      // NxThreads, 0 means the engine default: runtime.GOMAXPROCS(0) for thread, 4 for task
	PeerCount   int  `yaml:"peer_count"`
	PeerRank    int  `yaml:"peer_rank"`
	PeerAddrs   []string `yaml:"peer_addrs"`

	// Data.
	Kernel         string `yaml:"kernel"`
	ParticleCount  int    `yaml:"particle_count"` // -nb flag, used by synthetic sources
	InputFile      string `yaml:"input_file"`      // -f flag
	Watch          bool   `yaml:"watch"`

	// Ambient/domain stack.
	TaskRecordPath string         `yaml:"task_record_path"`
	Postgres       PostgresConfig `yaml:"postgres"`
	Metrics        MetricsConfig  `yaml:"metrics"`
	Cache          CacheConfig    `yaml:"cache"`
	Storage        StorageConfig  `yaml:"storage"`
}

// PostgresConfig configures the optional task-record Postgres sink.
type PostgresConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

// MetricsConfig configures the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// CacheConfig configures the kernel-operator cache (internal/kernelcache).
type CacheConfig struct {
	MaxBytes int64 `yaml:"max_bytes"`
}

// StorageConfig selects and configures the particle-source storage backend.
type StorageConfig struct {
	Backend string `yaml:"backend"` // "local", "s3", "azure", "gcs"
	Bucket  string `yaml:"bucket"`
	Region  string `yaml:"region"`
	Prefix  string `yaml:"prefix"`
}

// Default returns a Config with safe,
// small values suitable for local runs.
func Default() *Config {
	return &Config{
		Height:        6,
		BoxCentre:     [3]float64{0, 0, 0},
		BoxWidth:      1,
		GroupSize:     256,
		Mode:          ModeSequential,
		Threads:       0,
		PeerCount:     1,
		Kernel:        "inverse-r",
		ParticleCount: 1000,
		Storage:       StorageConfig{Backend: "local"},
	}
}

// Load reads a YAML configuration file and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewSourceUnavailableError(path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.NewMalformedRecordError(0, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the configuration-error fail-fast contract: invalid
// settings are rejected at construction, never discovered mid-run.
func (c *Config) Validate() error {
	if c.Height < minHeight || c.Height > maxHeight {
		return errors.NewTreeHeightError(int(c.Height))
	}
	if c.SubTreeHeight > c.Height {
		return errors.NewTreeHeightError(int(c.SubTreeHeight))
	}
	if c.GroupSize <= 0 {
		return errors.NewGroupSizeError(c.GroupSize)
	}
	if c.Kernel == "" {
		return errors.NewMissingKernelError("")
	}
	if c.Mode == ModeDistributed && c.PeerCount <= 0 {
		return errors.NewGroupSizeError(c.PeerCount)
	}
	return nil
}

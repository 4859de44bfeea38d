package particlesource

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

// LocalBackend reads and writes particle datasets on the local
// filesystem, rooted at Dir (empty means keys are absolute/relative
// paths as given).
type LocalBackend struct {
	Dir string
}

func NewLocalBackend(dir string) *LocalBackend {
	return &LocalBackend{Dir: dir}
}

func (b *LocalBackend) path(key string) string {
	if b.Dir == "" {
		return key
	}
	return filepath.Join(b.Dir, key)
}

func (b *LocalBackend) Get(ctx context.Context, key string) ([]byte, error) {
	return os.ReadFile(b.path(key))
}

func (b *LocalBackend) Put(ctx context.Context, key string, data []byte) error {
	p := b.path(key)
	if dir := filepath.Dir(p); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(p, data, 0o644)
}

func (b *LocalBackend) List(ctx context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(b.path(filepath.Dir(prefix)))
	if err != nil {
		return nil, err
	}
	base := filepath.Base(prefix)
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if base == "." || strings.HasPrefix(e.Name(), base) {
			out = append(out, filepath.Join(filepath.Dir(prefix), e.Name()))
		}
	}
	return out, nil
}

func (b *LocalBackend) Type() string { return "local" }

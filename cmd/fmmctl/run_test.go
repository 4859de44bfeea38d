package main

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/scalfmm-go/fmm/internal/engine"
)

func TestBuildTaskRecordOmitsZeroCountPasses(t *testing.T) {
	stats := engine.Stats{Leaves: 8, P2MCalls: 8, P2PCalls: 8, L2PCalls: 8}

	run := buildTaskRecord(250*time.Millisecond, stats)

	assert.Equal(t, 0.25, run.Global.Duration)
	assert.Equal(t, 3, run.Global.NbEvents)
	assert.Len(t, run.Events, 3)

	var texts []string
	for _, e := range run.Events {
		texts = append(texts, e.Text)
	}
	assert.Contains(t, texts, "P2M x8")
	assert.Contains(t, texts, "P2P x8")
	assert.Contains(t, texts, "L2P x8")
	assert.NotContains(t, texts, "M2M x0")
}

func TestDumpTaskRecordWritesFlatFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/run.fma"

	run := buildTaskRecord(time.Second, engine.Stats{Leaves: 1, P2MCalls: 1, P2PCalls: 1, L2PCalls: 1})
	assert.NoError(t, dumpTaskRecord(path, run))

	info, err := os.Stat(path)
	assert.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/scalfmm-go/fmm/internal/config"
	"github.com/scalfmm-go/fmm/internal/logger"
	"github.com/scalfmm-go/fmm/internal/particle"
	"github.com/scalfmm-go/fmm/internal/particlesource"
	"github.com/scalfmm-go/fmm/internal/taskrecord"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one engine over a particle dataset",
	Long: `run loads a particle dataset, executes the configured engine
once, and prints its pass counters. With the config's watch setting on
and a local input file, it keeps running: every time the file changes on disk, the dataset is
reloaded and the engine re-run against the fresh data.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		src, err := loadSource(ctx, cfg)
		if err != nil {
			return err
		}
		if err := runOnce(ctx, cfg, src); err != nil {
			return err
		}

		if !cfg.Watch || cfg.InputFile == "" {
			return nil
		}
		return watchAndRerun(ctx, cfg)
	},
}

// runOnce builds and executes one engine over src, prints its counters,
// and persists a task record to whichever sinks are configured.
func runOnce(ctx context.Context, c *config.Config, src particle.ParticleSource) error {
	logger.Info("fmmctl: loaded %d particles, box width %.3f", src.NumParticles(), src.BoxWidth())

	eng, err := buildEngine(c, src)
	if err != nil {
		return err
	}
	if err := eng.Prepare(); err != nil {
		return err
	}

	start := time.Now()
	if err := eng.Run(ctx); err != nil {
		return err
	}
	elapsed := time.Since(start)

	stats := statsOf(eng)
	fmt.Printf("mode=%s duration=%s leaves=%d P2M=%d M2M=%d M2L=%d L2L=%d P2P=%d L2P=%d interactions=%d\n",
		c.Mode, elapsed, stats.Leaves, stats.P2MCalls, stats.M2MCalls, stats.M2LCalls, stats.L2LCalls, stats.P2PCalls, stats.L2PCalls, stats.Interactions)

	record := buildTaskRecord(elapsed, stats)

	if c.TaskRecordPath != "" {
		if err := dumpTaskRecord(c.TaskRecordPath, record); err != nil {
			return err
		}
	}
	if c.Postgres.Enabled {
		if err := persistTaskRecord(ctx, c.Postgres.DSN, record); err != nil {
			return err
		}
	}
	return nil
}

// watchAndRerun reloads cfg.InputFile on every debounced change and
// re-runs runOnce against the fresh dataset, until ctx is cancelled.
func watchAndRerun(ctx context.Context, c *config.Config) error {
	w, err := particlesource.NewWatcher(c.InputFile, 200*time.Millisecond)
	if err != nil {
		return err
	}
	go w.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-w.Errors():
			logger.Warn("fmmctl: watch reload failed: %v", err)
		case src := <-w.Reload():
			logger.Info("fmmctl: %s changed, re-running", c.InputFile)
			if err := runOnce(ctx, c, src); err != nil {
				logger.Error("fmmctl: re-run failed: %v", err)
			}
		}
	}
}

func buildTaskRecord(elapsed time.Duration, stats engineStats) taskrecord.Run {
	run := taskrecord.Run{
		Global: taskrecord.Global{Duration: elapsed.Seconds(), MaxThreads: 1},
	}
	calls := []struct {
		name string
		n    int
	}{
		{"P2M", stats.P2MCalls}, {"M2M", stats.M2MCalls}, {"M2L", stats.M2LCalls},
		{"L2L", stats.L2LCalls}, {"P2P", stats.P2PCalls}, {"L2P", stats.L2PCalls},
	}
	id := 0
	for _, c := range calls {
		if c.n == 0 {
			continue
		}
		run.Events = append(run.Events, taskrecord.Event{ID: id, Duration: 0, Start: 0, Text: fmt.Sprintf("%s x%d", c.name, c.n)})
		id++
	}
	run.Global.NbEvents = len(run.Events)
	return run
}

func dumpTaskRecord(path string, run taskrecord.Run) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return taskrecord.WriteFlatFile(f, run)
}

// persistTaskRecord stores run in the configured Postgres history
// alongside (or instead of) the flat-file dump, so many invocations can
// later be queried as a single benchmark history.
func persistTaskRecord(ctx context.Context, dsn string, run taskrecord.Run) error {
	repo, err := taskrecord.Open(dsn)
	if err != nil {
		return err
	}
	_, err = repo.CreateRun(ctx, run)
	return err
}

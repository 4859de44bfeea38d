package main

import (
	"context"
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/scalfmm-go/fmm/internal/config"
	"github.com/scalfmm-go/fmm/internal/engine"
	"github.com/scalfmm-go/fmm/internal/grouped"
	"github.com/scalfmm-go/fmm/internal/octree"
)

var verifyTolerance float64

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the configured engine's result against the sequential baseline",
	Long: `verify runs the configured engine and a sequential engine over the
same particle dataset (both using the exact direct-summation kernel,
since approximating expansions are out of scope), then checks the
conservation invariant — total force over all particles sums to zero —
and that both engines agree on total potential energy within tolerance.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		src, err := loadSource(ctx, cfg)
		if err != nil {
			return err
		}

		baselineCfg := *cfg
		baselineCfg.Mode = config.ModeSequential
		baseline, err := buildEngine(&baselineCfg, src)
		if err != nil {
			return err
		}
		if err := baseline.Prepare(); err != nil {
			return err
		}
		if err := baseline.Run(ctx); err != nil {
			return err
		}
		baselineTotals := totalsOf(baseline)

		if cfg.Mode == config.ModeSequential {
			fmt.Printf("mode=sequential is the baseline itself; conservation |sum F|=%.3e, potential=%.6f\n",
				vecNorm(baselineTotals), baselineTotals.potential)
			if vecNorm(baselineTotals) > verifyTolerance {
				return fmt.Errorf("fmmctl verify: conservation invariant violated: |sum F| = %e", vecNorm(baselineTotals))
			}
			return nil
		}

		candidate, err := buildEngine(cfg, src)
		if err != nil {
			return err
		}
		if err := candidate.Prepare(); err != nil {
			return err
		}
		if err := candidate.Run(ctx); err != nil {
			return err
		}
		candidateTotals := totalsOf(candidate)

		fmt.Printf("baseline potential=%.6f  %s potential=%.6f  |diff|=%.3e\n",
			baselineTotals.potential, cfg.Mode, candidateTotals.potential, math.Abs(baselineTotals.potential-candidateTotals.potential))

		if math.Abs(baselineTotals.potential-candidateTotals.potential) > verifyTolerance {
			return fmt.Errorf("fmmctl verify: %s disagrees with sequential baseline beyond tolerance %e", cfg.Mode, verifyTolerance)
		}
		if vecNorm(candidateTotals) > verifyTolerance {
			return fmt.Errorf("fmmctl verify: conservation invariant violated for %s: |sum F| = %e", cfg.Mode, vecNorm(candidateTotals))
		}
		return nil
	},
}

func init() {
	verifyCmd.Flags().Float64Var(&verifyTolerance, "tolerance", 1e-6, "acceptable absolute deviation")
}

type totals struct {
	fx, fy, fz, potential float64
}

func vecNorm(t totals) float64 {
	return math.Sqrt(t.fx*t.fx + t.fy*t.fy + t.fz*t.fz)
}

// totalsOf sums force/potential accumulators across every leaf of
// whichever tree kind the engine holds.
func totalsOf(e engine.Engine) totals {
	var t totals
	accumulate := func(fx, fy, fz, pot []float64) {
		for i := range fx {
			t.fx += fx[i]
			t.fy += fy[i]
			t.fz += fz[i]
			t.potential += pot[i]
		}
	}

	switch v := e.(type) {
	case *engine.Sequential:
		v.Tree.ForEachLeaf(func(n *octree.Node) { accumulate(n.Targets.FX, n.Targets.FY, n.Targets.FZ, n.Targets.Potential) })
	case *engine.Thread:
		v.Tree.ForEachLeaf(func(n *octree.Node) { accumulate(n.Targets.FX, n.Targets.FY, n.Targets.FZ, n.Targets.Potential) })
	case *engine.Tsm:
		v.Tree.ForEachLeaf(func(n *octree.Node) { accumulate(n.Targets.FX, n.Targets.FY, n.Targets.FZ, n.Targets.Potential) })
	case *engine.Task:
		v.Tree.ForEachLeaf(func(c *grouped.Cell) { accumulate(c.Targets.FX, c.Targets.FY, c.Targets.FZ, c.Targets.Potential) })
	case *engine.Distributed:
		v.Tree.ForEachLeaf(func(c *grouped.Cell) { accumulate(c.Targets.FX, c.Targets.FY, c.Targets.FZ, c.Targets.Potential) })
	}
	return t
}

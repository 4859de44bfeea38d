package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/scalfmm-go/fmm/internal/config"
	"github.com/scalfmm-go/fmm/internal/logger"
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run every execution strategy over the same dataset and compare",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		src, err := loadSource(ctx, cfg)
		if err != nil {
			return err
		}
		logger.Info("fmmctl bench: %d particles, box width %.3f", src.NumParticles(), src.BoxWidth())

		modes := []config.Mode{config.ModeSequential, config.ModeThread, config.ModeTask, config.ModeDistributed}
		fmt.Printf("%-12s %12s %10s\n", "mode", "duration", "P2P calls")
		for _, mode := range modes {
			run := *cfg
			run.Mode = mode

			eng, err := buildEngine(&run, src)
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
			fmt.Printf("%-12s %12s %10d\n", mode, elapsed, stats.P2PCalls)
		}
		return nil
	},
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/mutation-workflow/internal/container"
)

func newEffectsCmd() *cobra.Command {
	var maxBatches int

	cmd := &cobra.Command{
		Use:   "effects",
		Short: "Run due effect tasks once and exit",
		Long: `Release effect tasks left running by a crashed process, then run every
task that is due or awaiting retry. Useful when the service runs without its
background worker.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()

			c, err := container.NewContainer(cfg, logger, container.WithoutWorkers())
			if err != nil {
				return err
			}
			if err := c.Start(cmd.Context()); err != nil {
				return err
			}
			defer c.Close()

			ctx := cmd.Context()
			coordinator := c.Effects()

			released, err := coordinator.ReleaseStale(ctx, cfg.Effects.StaleAfter)
			if err != nil {
				return fmt.Errorf("failed to release stale tasks: %w", err)
			}

			total := 0
			for i := 0; i < maxBatches; i++ {
				n, err := coordinator.ProcessDue(ctx, cfg.Effects.BatchSize)
				if err != nil {
					return fmt.Errorf("failed to process due tasks: %w", err)
				}
				total += n
				if n < cfg.Effects.BatchSize {
					break
				}
			}

			logger.Info("Effect tasks processed", zap.Int64("released", released), zap.Int("attempted", total))
			fmt.Fprintf(cmd.OutOrStdout(), "%d stale task(s) released, %d task(s) attempted\n", released, total)
			return nil
		},
	}

	cmd.Flags().IntVar(&maxBatches, "max-batches", 10, "upper bound on batches run in one invocation")
	return cmd
}

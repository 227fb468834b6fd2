package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/mutation-workflow/internal/container"
	domainwf "github.com/garyjia/mutation-workflow/internal/domain/workflow"
)

func newExportCmd() *cobra.Command {
	var (
		output   string
		statuses []string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the mutation register as an XLSX workbook",
		Long: `Export requests to an XLSX workbook. Without --status only accepted
requests are exported.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var states []domainwf.State
			for _, s := range statuses {
				state := domainwf.State(strings.ToUpper(strings.TrimSpace(s)))
				if !state.IsValid() {
					return fmt.Errorf("unknown status %q", s)
				}
				states = append(states, state)
			}

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

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", output, err)
			}

			n, err := c.Exporter().Export(cmd.Context(), states, f)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				_ = os.Remove(output)
				return err
			}

			logger.Info("Register exported", zap.String("file", output), zap.Int("rows", n))
			fmt.Fprintf(cmd.OutOrStdout(), "%d request(s) written to %s\n", n, output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "mutations.xlsx", "destination file")
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "statuses to export (repeatable or comma separated)")
	return cmd
}

package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

func newExportCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the downstream runtime weight map as safetensors",
		RunE: func(_ *cobra.Command, _ []string) error {
			if out == "" {
				return fmt.Errorf("--out is required for export")
			}

			model, err := loadModel(activeCfg)
			if err != nil {
				return err
			}

			if err := model.ExportFile(out); err != nil {
				return err
			}

			slog.Info("exported weight map", "path", out)

			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "Output safetensors path")

	return cmd
}

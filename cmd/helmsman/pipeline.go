package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPipelineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pipeline",
		Short: "Run the nightly pipeline once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			report := a.orchestrator.Run(cmd.Context())
			fmt.Print(report.String())

			if report.Failed() {
				return fmt.Errorf("pipeline run had failing stages")
			}
			return nil
		},
	}
}

package main

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"
)

var showFlags struct {
	jobID string
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show a job's metadata and which phase artifacts exist",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), rootFlags.timeout)
		defer cancel()
		raw, err := newAPIClient(rootFlags.server).job(ctx, showFlags.jobID)
		if err != nil {
			return err
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), v)
	},
}

func init() {
	showCmd.Flags().StringVar(&showFlags.jobID, "job", "", "Job ID (required)")
	_ = showCmd.MarkFlagRequired("job")
}

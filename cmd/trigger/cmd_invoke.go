package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/yungbote/logcompliance/internal/workflow"
)

var startFlags struct {
	bucket string
	key    string
	name   string
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a job from an uploaded log file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		t := workflow.StartTrigger(workflow.SourceLocation{Bucket: startFlags.bucket, Key: startFlags.key}, startFlags.name)
		return invoke(cmd, t)
	},
}

var continueFlags struct {
	jobID string
	phase int
	name  string
}

var continueCmd = &cobra.Command{
	Use:   "continue",
	Short: "Re-deliver the continuation for phase 2 or 3 of a job",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return invoke(cmd, workflow.ContinueTrigger(continueFlags.jobID, continueFlags.phase, continueFlags.name))
	},
}

func init() {
	f := startCmd.Flags()
	f.StringVar(&startFlags.bucket, "bucket", "", "Bucket holding the log file (required)")
	f.StringVar(&startFlags.key, "key", "", "Object key of the log file (required)")
	f.StringVar(&startFlags.name, "name", "", "Document name (default: base of key)")
	_ = startCmd.MarkFlagRequired("bucket")
	_ = startCmd.MarkFlagRequired("key")

	f = continueCmd.Flags()
	f.StringVar(&continueFlags.jobID, "job", "", "Job ID (required)")
	f.IntVar(&continueFlags.phase, "phase", 0, "Phase to run: 2 or 3 (required)")
	f.StringVar(&continueFlags.name, "name", "", "Document name")
	_ = continueCmd.MarkFlagRequired("job")
	_ = continueCmd.MarkFlagRequired("phase")
}

func invoke(cmd *cobra.Command, t workflow.Trigger) error {
	if err := t.Validate(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), rootFlags.timeout)
	defer cancel()
	res, err := newAPIClient(rootFlags.server).invoke(ctx, t)
	if err != nil {
		return err
	}
	if err := printJSON(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	if res.Status != workflow.StatusSuccess {
		return fmt.Errorf("%s: %s", res.Status, res.Message)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/scribe/internal/record"
	"github.com/MikeSquared-Agency/scribe/internal/report"
	"github.com/MikeSquared-Agency/scribe/internal/workflow"
)

var userReplies []string

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <records.csv|session.jsonl>",
	Short: "Write one row of evaluation items per record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd, args[0], workflow.WorkflowEvaluate)
	},
}

var reflectCmd = &cobra.Command{
	Use:   "reflect <records.csv|session.jsonl>",
	Short: "Hold a multi-agent conversation about each chunk and write the transcripts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd, args[0], workflow.WorkflowReflect)
	},
}

func init() {
	reflectCmd.Flags().StringArrayVar(&userReplies, "reply", nil, "scripted user_proxy reply, repeatable; the termination token follows the last one")
	rootCmd.AddCommand(evaluateCmd, reflectCmd)
}

func runBatch(cmd *cobra.Command, path string, wf workflow.Workflow) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := setupLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	table, err := record.ReadFile(path)
	if err != nil {
		return err
	}

	svc, err := connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	runner, err := svc.runner(ctx, cfg, logger, false)
	if err != nil {
		return err
	}
	runner.UserReplies = userReplies

	id := uuid.New()
	summary, err := runner.Run(ctx, id, table, wf)
	if summary.RunID != "" {
		summary.Output = outputLabel(cfg, id, false)
		fmt.Fprintln(cmd.OutOrStdout(), report.Render(summary))
	}
	return err
}

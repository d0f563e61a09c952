package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/kirillkom/lifeforge-rag/internal/core/domain"
)

func newSlotCommand(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "slot [name]",
		Short: "Show the active snapshot of a slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := domain.ValidateSlot(args[0]); err != nil {
				return err
			}
			svc, err := r.services(cmd.Context())
			if err != nil {
				return err
			}
			if svc.Slots == nil {
				return errors.New("slot store not configured")
			}
			return printJSON(cmd, svc.Slots.Stats(args[0]))
		},
	}
}

func newEvalCommand(r *runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Inspect the query log",
	}

	summaryCmd := &cobra.Command{
		Use:   "summary",
		Short: "Aggregate guardrail and grounding metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := r.services(cmd.Context())
			if err != nil {
				return err
			}
			summary, err := svc.Eval.EvalSummary(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, summary)
		},
	}

	var limit int
	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the most recent query logs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := r.services(cmd.Context())
			if err != nil {
				return err
			}
			logs, err := svc.Eval.RecentQueryLogs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printJSON(cmd, logs)
		},
	}
	logsCmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of entries")

	docsCmd := &cobra.Command{
		Use:   "documents",
		Short: "List registered documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := r.services(cmd.Context())
			if err != nil {
				return err
			}
			docs, err := svc.Eval.ListDocuments(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, docs)
		},
	}

	cmd.AddCommand(summaryCmd, logsCmd, docsCmd)
	return cmd
}

package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/lifeforge-rag/internal/core/domain"
)

func newQueryCommand(r *runner) *cobra.Command {
	var (
		slot         string
		k            int
		denseOnly    bool
		retrieveOnly bool
		asJSON       bool
	)

	cmd := &cobra.Command{
		Use:   "query [question]",
		Short: "Answer a question from a slot",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := r.services(cmd.Context())
			if err != nil {
				return err
			}
			if svc.Query == nil {
				return errors.New("query service not configured")
			}
			req := domain.RetrievalRequest{
				Slot:      slot,
				Question:  strings.Join(args, " "),
				K:         k,
				UseHybrid: !denseOnly,
			}

			if retrieveOnly {
				result, err := svc.Query.Retrieve(cmd.Context(), req)
				if err != nil {
					return fmt.Errorf("retrieve failed: %w", err)
				}
				if asJSON {
					return printJSON(cmd, result.View())
				}
				cmd.Printf("mode=%s top_similarity=%.3f\n", result.Mode, result.TopSimilarity)
				for i, d := range result.Docs {
					cmd.Printf("  [%d] %s page=%d score=%.4f\n", i+1, d.Chunk.ID, d.Chunk.Page, d.Score)
				}
				return nil
			}

			outcome, err := svc.Query.Query(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("query failed: %w", err)
			}
			if asJSON {
				return printJSON(cmd, outcome)
			}
			printOutcome(cmd, outcome)
			return nil
		},
	}
	cmd.Flags().StringVarP(&slot, "slot", "s", "standard", "slot to query")
	cmd.Flags().IntVarP(&k, "top-k", "k", 0, "number of chunks to retrieve (0 uses K_TOTAL)")
	cmd.Flags().BoolVar(&denseOnly, "dense-only", false, "skip the lexical index")
	cmd.Flags().BoolVar(&retrieveOnly, "retrieve-only", false, "rank chunks without generating an answer")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func printOutcome(cmd *cobra.Command, outcome *domain.QueryOutcome) {
	cmd.Println(outcome.Answer)
	cmd.Println()
	if outcome.Rejected {
		cmd.Printf("rejected: top_similarity=%.3f\n", outcome.TopSimilarity)
		return
	}
	cmd.Printf("mode=%s confidence=%.3f grounding=%.3f hallucination=%t\n",
		outcome.Mode, outcome.Confidence, outcome.AnswerGrounding, outcome.IsHallucination)
	for _, s := range outcome.Sources {
		cmd.Printf("  %s (%s, page %d)\n", s.ID, s.Kind, s.Page)
	}
}

package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kirillkom/lifeforge-rag/internal/core/ports"
)

// Services are the use cases the commands drive.
type Services struct {
	Query    ports.QueryService
	Ingest   ports.CorpusIngestor
	Uploader ports.DocumentUploader
	Slots    ports.SlotReader
	Eval     ports.EvaluationReader
}

// Loader builds the services on first use so that help and flag errors do
// not need a configured environment.
type Loader func(ctx context.Context) (*Services, error)

type runner struct {
	load Loader
	svc  *Services
}

func (r *runner) services(ctx context.Context) (*Services, error) {
	if r.svc != nil {
		return r.svc, nil
	}
	svc, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	r.svc = svc
	return svc, nil
}

func NewRootCommand(load Loader) *cobra.Command {
	r := &runner{load: load}
	root := &cobra.Command{
		Use:           "ragctl",
		Short:         "Operate the Lifeforge retrieval core",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newIngestCommand(r),
		newQueryCommand(r),
		newSlotCommand(r),
		newEvalCommand(r),
	)
	return root
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kirillkom/lifeforge-rag/internal/core/domain"
)

func newIngestCommand(r *runner) *cobra.Command {
	var slot string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Replace a slot's corpus",
	}
	cmd.PersistentFlags().StringVarP(&slot, "slot", "s", "standard", "target slot")

	pdfCmd := &cobra.Command{
		Use:   "pdf [file]",
		Short: "Extract, chunk and embed a PDF into the slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := r.services(cmd.Context())
			if err != nil {
				return err
			}
			if svc.Uploader == nil {
				return errors.New("document upload not configured")
			}
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}
			defer f.Close()

			result, err := svc.Uploader.Upload(cmd.Context(), slot, filepath.Base(args[0]), f)
			if err != nil {
				return fmt.Errorf("ingest failed: %w", err)
			}
			return printJSON(cmd, result)
		},
	}

	jsonCmd := &cobra.Command{
		Use:   "json [file]",
		Short: "Ingest pre-embedded chunks and images from a JSON file",
		Long: `Reads {"filename": ..., "chunks": [{id, kind, page, content, embedding}], "images": {id: base64}}
and replaces the slot with it. An empty chunk list clears the slot.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			var payload struct {
				Filename string            `json:"filename"`
				Chunks   []domain.Chunk    `json:"chunks"`
				Images   map[string]string `json:"images"`
			}
			if err := json.Unmarshal(raw, &payload); err != nil {
				return fmt.Errorf("decode %s: %w", args[0], err)
			}
			if payload.Filename == "" {
				payload.Filename = filepath.Base(args[0])
			}

			svc, err := r.services(cmd.Context())
			if err != nil {
				return err
			}
			if svc.Ingest == nil {
				return errors.New("ingestion not configured")
			}
			result, err := svc.Ingest.Ingest(cmd.Context(), domain.IngestRequest{
				Slot:     slot,
				Filename: payload.Filename,
				Chunks:   payload.Chunks,
				Images:   payload.Images,
			})
			if err != nil {
				return fmt.Errorf("ingest failed: %w", err)
			}
			return printJSON(cmd, result)
		},
	}

	cmd.AddCommand(pdfCmd, jsonCmd)
	return cmd
}

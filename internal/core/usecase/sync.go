package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/lifeforge-rag/internal/core/domain"
	"github.com/kirillkom/lifeforge-rag/internal/core/ports"
)

// SlotSyncUseCase reloads slots that another process has replaced on disk.
type SlotSyncUseCase struct {
	store  ports.CorpusStore
	logger *slog.Logger
}

func NewSlotSyncUseCase(store ports.CorpusStore, logger *slog.Logger) *SlotSyncUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlotSyncUseCase{store: store, logger: logger}
}

func (uc *SlotSyncUseCase) HandleSlotUpdated(ctx context.Context, event domain.SlotUpdated) error {
	if err := domain.ValidateSlot(event.Slot); err != nil {
		return err
	}
	loaded, err := uc.store.Reload(ctx, event.Slot)
	if err != nil {
		return fmt.Errorf("reload slot %s: %w", event.Slot, err)
	}
	if !loaded {
		uc.logger.Warn("slot_reload_missing", "slot", event.Slot, "source", event.InstanceID)
		return nil
	}
	uc.logger.Info("slot_reloaded",
		"slot", event.Slot,
		"source", event.InstanceID,
		"num_chunks", event.NumChunks,
	)
	return nil
}

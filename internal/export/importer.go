package export

import (
	"context"
	"fmt"
	"log/slog"

	"fintrack/internal/core"
)

// Replacer swaps the stored dataset atomically.
type Replacer interface {
	ReplaceDataset(ctx context.Context, d core.Dataset) error
}

// Invalidator drops cached reports after a bulk change.
type Invalidator interface {
	Clear()
}

// Importer validates a parsed dataset and replaces the stored one with it.
type Importer struct {
	store       Replacer
	invalidator Invalidator
}

func NewImporter(store Replacer, invalidator Invalidator) *Importer {
	return &Importer{store: store, invalidator: invalidator}
}

// Import rejects datasets with dangling references or invalid rows before
// touching the store.
func (i *Importer) Import(ctx context.Context, d core.Dataset) error {
	if err := d.CheckIntegrity(); err != nil {
		return err
	}
	if err := d.ValidateRows(); err != nil {
		return err
	}
	if err := i.store.ReplaceDataset(ctx, d); err != nil {
		return fmt.Errorf("replace dataset: %w", err)
	}
	if i.invalidator != nil {
		i.invalidator.Clear()
	}
	slog.InfoContext(ctx, "Dataset imported",
		"accounts", len(d.Accounts),
		"transactions", len(d.Transactions))
	return nil
}

package transfer

import (
	"context"
	"fmt"
	"os"

	"github.com/chenyuyou/shifting-work-hours/internal/catalog"
	"github.com/chenyuyou/shifting-work-hours/internal/checkpoint"
	"github.com/chenyuyou/shifting-work-hours/pkg/log"
)

// Rebuild reconciles the download ledger with what is actually on disk,
// classifying each catalog entry by file size. This is an explicit user
// action (e.g. after restoring files from a backup or deleting the ledger),
// never run implicitly: everywhere else the status store is authoritative
// over filesystem presence.
func Rebuild(ctx context.Context, entries []catalog.Entry, root string, store checkpoint.Store, tolerancePercent float64) error {
	if tolerancePercent <= 0 {
		tolerancePercent = 1
	}

	var complete, partial, missing int
	for _, entry := range entries {
		local := entry.LocalPath(root)

		info, err := os.Stat(local)
		if os.IsNotExist(err) {
			missing++
			continue
		}
		if err != nil {
			return fmt.Errorf("stat %s: %w", local, err)
		}

		switch state := catalog.Classify(info.Size(), entry.ExpectedSize(), tolerancePercent); state {
		case catalog.StateCompleted:
			complete++
			if err := store.Record(ctx, entry.RelPath(), checkpoint.StatusSucceeded, ""); err != nil {
				return fmt.Errorf("record %s: %w", entry.RelPath(), err)
			}
		default:
			partial++
			detail := fmt.Sprintf("%s: %d of %d bytes on disk", state, info.Size(), entry.ExpectedSize())
			if err := store.Record(ctx, entry.RelPath(), checkpoint.StatusFailed, detail); err != nil {
				return fmt.Errorf("record %s: %w", entry.RelPath(), err)
			}
		}
	}

	if err := store.Flush(ctx); err != nil {
		return fmt.Errorf("flush ledger: %w", err)
	}

	log.Info("ledger rebuilt: %d complete, %d partial, %d missing of %d entries",
		complete, partial, missing, len(entries))
	return nil
}

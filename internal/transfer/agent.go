package transfer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/chenyuyou/shifting-work-hours/internal/catalog"
	"github.com/chenyuyou/shifting-work-hours/pkg/log"
)

// Agent downloads catalog entries into the local tree, resuming interrupted
// transfers from the last received byte instead of restarting from zero.
// It is safe to kill and relaunch at any point: completion is recorded in
// the stage's status store only after the received size verifies against
// the catalog, and a leftover partial file is picked up by byte offset on
// the next attempt.
type Agent struct {
	client    *Client
	root      string
	tolerance float64
}

// NewAgent creates an agent writing below root. tolerancePercent is the
// allowed deviation between received and catalog size (catalog sizes are
// rounded exports).
func NewAgent(client *Client, root string, tolerancePercent float64) *Agent {
	if tolerancePercent <= 0 {
		tolerancePercent = 1
	}
	return &Agent{
		client:    client,
		root:      root,
		tolerance: tolerancePercent,
	}
}

// Fetch transfers one catalog entry. A file already complete on disk is a
// no-op success, so a rebuilt or behind ledger converges without
// re-downloading.
func (a *Agent) Fetch(ctx context.Context, entry catalog.Entry) error {
	local := entry.LocalPath(a.root)
	expected := entry.ExpectedSize()

	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return fmt.Errorf("create download directory: %w", err)
	}

	var current int64
	if info, err := os.Stat(local); err == nil {
		current = info.Size()
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat %s: %w", local, err)
	}

	if catalog.Classify(current, expected, a.tolerance) == catalog.StateCompleted {
		log.Debug("%s already complete (%d bytes)", entry.RelPath(), current)
		return nil
	}

	if current > 0 {
		log.Info("resuming %s from byte %d", entry.RelPath(), current)
	}

	body, resumed, err := a.client.GetFrom(ctx, entry.DownloadURL, current)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", entry.Filename, err)
	}
	defer body.Close()

	flags := os.O_CREATE | os.O_WRONLY
	if current > 0 && resumed {
		flags |= os.O_APPEND
	} else {
		// Server ignored the Range request; start over.
		flags |= os.O_TRUNC
		current = 0
	}

	f, err := os.OpenFile(local, flags, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", local, err)
	}

	n, copyErr := io.Copy(f, body)
	if closeErr := f.Close(); copyErr == nil {
		copyErr = closeErr
	}
	received := current + n

	if copyErr != nil {
		// Bytes already written stay on disk for the next resume attempt.
		return fmt.Errorf("transfer %s interrupted after %d bytes: %w", entry.Filename, received, copyErr)
	}

	if state := catalog.Classify(received, expected, a.tolerance); state != catalog.StateCompleted {
		return fmt.Errorf("transfer %s %s: got %d bytes, catalog says %d", entry.Filename, state, received, expected)
	}

	log.Info("downloaded %s (%d bytes)", entry.RelPath(), received)
	return nil
}

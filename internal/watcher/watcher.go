package watcher

import (
	"context"

	"go.uber.org/zap"

	"github.com/milkpudding/gateway/internal/logging"
	"github.com/milkpudding/gateway/internal/routetable"
)

// Watcher drives route table refreshes from a configuration source.
type Watcher struct {
	source Source
	table  *routetable.Table
}

// New creates a watcher applying blobs from source to table.
func New(source Source, table *routetable.Table) *Watcher {
	return &Watcher{source: source, table: table}
}

// Run fetches and applies the current blob, then consumes pushed updates
// until ctx is cancelled. The initial fetch happens before the watch is
// registered so the gateway has routes during listener setup; a failed
// initial fetch is logged and the table stays empty until the first push.
func (w *Watcher) Run(ctx context.Context) error {
	blob, err := w.source.Fetch(ctx)
	if err != nil {
		logging.Error("initial route fetch failed", zap.Error(err))
	} else {
		w.table.RefreshAll(blob)
	}

	updates, err := w.source.Watch(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case blob, ok := <-updates:
			if !ok {
				return nil
			}
			w.table.RefreshAll(blob)
		}
	}
}

// Close releases the underlying source.
func (w *Watcher) Close() error {
	return w.source.Close()
}

package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"contentscore/internal/core/result"
	"contentscore/internal/logger"
)

// Writer serializes accumulated results to a Store. It never surfaces
// failures to its caller.
type Writer struct {
	store Store
	log   *logger.Logger
}

func NewWriter(store Store) *Writer {
	return &Writer{store: store, log: logger.New("Checkpoint")}
}

// Key names an incremental checkpoint for a run.
func Key(runID string, at time.Time) string {
	return fmt.Sprintf("checkpoints/%s/results-incremental-%d.json", runID, at.UnixMilli())
}

func (w *Writer) Persist(ctx context.Context, records []result.Record, key string) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error().Str("key", key).Interface("panic", r).Msg("checkpoint write panicked")
		}
	}()
	if records == nil {
		records = []result.Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		w.log.LogError("encode checkpoint", err)
		return
	}
	if err := w.store.Put(ctx, key, data); err != nil {
		w.log.LogErrorf("checkpoint %s not saved: %v", key, err)
		return
	}
	w.log.LogInfof("💾 Incremental save: %s (%d results)", key, len(records))
}

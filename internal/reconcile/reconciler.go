package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mschirtzinger/daysync/internal/bundle"
	"github.com/mschirtzinger/daysync/internal/schema"
	"github.com/mschirtzinger/daysync/internal/storage"
	"github.com/mschirtzinger/daysync/internal/store"
)

// reconciler implements the Reconciler interface.
type reconciler struct {
	target storage.Adapter
	logger *slog.Logger
}

// New creates a Reconciler writing through target.
//
// If logger is nil, log output is discarded.
//
// Example:
//
//	mgr := storage.NewManager(storage.NewSQLite(path, logger), logger)
//	if err := mgr.Initialize(ctx); err != nil {
//	    return err
//	}
//	r := reconcile.New(mgr, logger)
func New(target storage.Adapter, logger *slog.Logger) Reconciler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &reconciler{target: target, logger: logger.With("component", "reconcile")}
}

// Apply implements Reconciler.Apply.
func (r *reconciler) Apply(ctx context.Context, b *bundle.Bundle, strategy Strategy) (*Result, error) {
	if b == nil {
		return nil, &bundle.FormatError{Reason: "no bundle"}
	}
	if b.Metadata.Version > bundle.FormatVersion {
		return nil, &bundle.FormatError{Reason: fmt.Sprintf("unsupported bundle version %d", b.Metadata.Version)}
	}

	switch strategy {
	case Overwrite:
		return r.overwrite(ctx, b, Overwrite)
	case Merge:
		return r.merge(ctx, b)
	case Manual:
		conflicts, err := r.DetectConflicts(ctx, b)
		if err != nil {
			return nil, err
		}
		if len(conflicts) > 0 {
			r.logger.Warn("manual sync aborted", "conflicts", len(conflicts), "peer", b.Metadata.DeviceID)
			return nil, &ConflictError{Conflicts: conflicts}
		}
		// Nothing to resolve; apply the bundle as-is.
		return r.overwrite(ctx, b, Manual)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
}

func (r *reconciler) localIndex(ctx context.Context) (map[string]schema.TaskRecord, error) {
	local, err := r.target.GetTodos(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read local todos: %w", err)
	}
	idx := make(map[string]schema.TaskRecord, len(local))
	for _, t := range local {
		idx[t.ID] = t
	}
	return idx, nil
}

func (r *reconciler) overwrite(ctx context.Context, b *bundle.Bundle, strategy Strategy) (*Result, error) {
	local, err := r.localIndex(ctx)
	if err != nil {
		return nil, err
	}

	res := &Result{Strategy: strategy}
	for _, t := range b.Todos {
		if _, ok := local[t.ID]; ok {
			res.Updated++
		} else {
			res.Added++
		}
	}

	if err := r.target.BulkSaveTodos(ctx, b.Todos); err != nil {
		return nil, fmt.Errorf("failed to save todos: %w", err)
	}
	if err := r.target.BulkSaveSettings(ctx, b.Settings); err != nil {
		return res, fmt.Errorf("failed to save settings: %w", err)
	}
	res.SettingsWritten = len(b.Settings)

	if err := r.writeBookkeeping(ctx, b); err != nil {
		return res, err
	}
	res.BookkeepingUpdated = true

	r.logger.Info("bundle applied",
		"strategy", strategy,
		"added", res.Added,
		"updated", res.Updated,
		"settings", res.SettingsWritten,
		"peer", b.Metadata.DeviceID)
	return res, nil
}

func (r *reconciler) merge(ctx context.Context, b *bundle.Bundle) (*Result, error) {
	local, err := r.localIndex(ctx)
	if err != nil {
		return nil, err
	}

	res := &Result{Strategy: Merge}
	var fresh []schema.TaskRecord
	for _, t := range b.Todos {
		if _, ok := local[t.ID]; ok {
			// Local copy wins, even if the remote one is newer.
			res.Skipped++
			continue
		}
		fresh = append(fresh, t)
	}

	if len(fresh) > 0 {
		if err := r.target.BulkSaveTodos(ctx, fresh); err != nil {
			return nil, fmt.Errorf("failed to save todos: %w", err)
		}
	}
	res.Added = len(fresh)

	// Only the bundle-level timestamp is compared. Two merges from
	// different peers leave syncedWith at whichever bundle is later,
	// regardless of which one contributed records.
	newer, err := r.bundleIsNewer(ctx, b)
	if err != nil {
		return res, err
	}
	if newer {
		if err := r.writeBookkeeping(ctx, b); err != nil {
			return res, err
		}
		res.BookkeepingUpdated = true
	}

	r.logger.Info("bundle merged",
		"added", res.Added,
		"skipped", res.Skipped,
		"bookkeeping", res.BookkeepingUpdated,
		"peer", b.Metadata.DeviceID)
	return res, nil
}

// bundleIsNewer reports whether the bundle's lastSyncAt is strictly after
// the locally recorded one. A missing local value counts as older; an
// unparsable value on either side means no update.
func (r *reconciler) bundleIsNewer(ctx context.Context, b *bundle.Bundle) (bool, error) {
	remote, err := b.Metadata.SyncTime()
	if err != nil {
		r.logger.Warn("bundle lastSyncAt unparsable, keeping local bookkeeping", "value", b.Metadata.LastSyncAt)
		return false, nil
	}

	raw, ok, err := storage.GetSettingAs[string](ctx, r.target, storage.KeyLastSyncAt)
	if err != nil {
		if store.IsStorageError(err) {
			return false, err
		}
		r.logger.Warn("local lastSyncAt unreadable, keeping local bookkeeping", "error", err)
		return false, nil
	}
	if !ok {
		return true, nil
	}
	local, err := bundle.ParseTimestamp(raw)
	if err != nil {
		r.logger.Warn("local lastSyncAt unparsable, keeping local bookkeeping", "value", raw)
		return false, nil
	}
	return remote.After(local), nil
}

func (r *reconciler) writeBookkeeping(ctx context.Context, b *bundle.Bundle) error {
	lastSync, err := json.Marshal(b.Metadata.LastSyncAt)
	if err != nil {
		return fmt.Errorf("failed to encode lastSyncAt: %w", err)
	}
	peer, err := json.Marshal(b.Metadata.DeviceID)
	if err != nil {
		return fmt.Errorf("failed to encode syncedWith: %w", err)
	}
	if err := r.target.BulkSaveSettings(ctx, map[string]json.RawMessage{
		storage.KeyLastSyncAt: lastSync,
		storage.KeySyncedWith: peer,
	}); err != nil {
		return fmt.Errorf("failed to update sync bookkeeping: %w", err)
	}
	return nil
}

// DetectConflicts implements Reconciler.DetectConflicts.
func (r *reconciler) DetectConflicts(ctx context.Context, b *bundle.Bundle) ([]Conflict, error) {
	syncAt, err := b.Metadata.SyncTime()
	if err != nil {
		// No reference point, so nothing can fall inside the window.
		r.logger.Warn("bundle lastSyncAt unparsable, skipping conflict detection", "value", b.Metadata.LastSyncAt)
		return nil, nil
	}

	local, err := r.localIndex(ctx)
	if err != nil {
		return nil, err
	}

	var conflicts []Conflict
	for _, remote := range b.Todos {
		mine, ok := local[remote.ID]
		if !ok {
			continue
		}
		modified, found, err := r.target.ModifiedAt(ctx, remote.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to read modification marker: %w", err)
		}
		if !found {
			continue
		}
		if absDuration(modified.Sub(syncAt)) < ConflictWindow {
			conflicts = append(conflicts, Conflict{
				ID:              remote.ID,
				Local:           mine,
				Remote:          remote,
				LocalModifiedAt: modified,
				BundleSyncAt:    syncAt,
			})
		}
	}
	return conflicts, nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

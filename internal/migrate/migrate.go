// Package migrate moves data from pre-database local storage into the
// record store. It runs at most once per store: a completed migration is
// recorded in the migration_completed setting, and failures leave that
// setting unset so the next run retries.
package migrate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mschirtzinger/daysync/internal/schema"
	"github.com/mschirtzinger/daysync/internal/storage"
)

// legacyNamespace seeds ids for legacy records that never had one, so a
// retried migration produces the same ids.
var legacyNamespace = uuid.MustParse("6f1c55a4-6a53-4c1e-9a4e-3f5b2a0d7c11")

// MigrateOptions contains configuration for the migration
type MigrateOptions struct {
	Source LegacyStore
	Now    time.Time // defaults to time.Now()
	DryRun bool      // preview without writing
	Logger *slog.Logger
}

// MigrateResult contains statistics about the migration
type MigrateResult struct {
	AlreadyDone      bool
	Imported         int
	Skipped          int
	SettingsMigrated int
	KeysRemoved      []string
	Errors           []string
}

// Migrate imports legacy records and settings into target.
func Migrate(ctx context.Context, target storage.Adapter, opts MigrateOptions) (*MigrateResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	result := &MigrateResult{}

	done, _, err := storage.GetSettingAs[bool](ctx, target, storage.KeyMigrationCompleted)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration flag: %w", err)
	}
	if done {
		result.AlreadyDone = true
		return result, nil
	}

	var (
		records []schema.TaskRecord
		present []string
	)

	historyRaw, ok, err := opts.Source.Get(KeyNotesHistory)
	if err != nil {
		return nil, err
	}
	if ok {
		var items []json.RawMessage
		if err := json.Unmarshal([]byte(historyRaw), &items); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", KeyNotesHistory, err)
		}
		for i, item := range items {
			r, err := legacyRecord(item, now)
			if err != nil {
				result.Skipped++
				result.Errors = append(result.Errors, fmt.Sprintf("%s[%d]: %v", KeyNotesHistory, i, err))
				continue
			}
			records = append(records, r)
		}
		present = append(present, KeyNotesHistory)
	}

	noteRaw, ok, err := opts.Source.Get(KeyTodayNote)
	if err != nil {
		return nil, err
	}
	if ok {
		r, err := legacyRecord(json.RawMessage(noteRaw), now)
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", KeyTodayNote, err))
		} else {
			records = append(records, r)
		}
		present = append(present, KeyTodayNote, KeyTodayNoteDate)
	}

	settings := map[string]json.RawMessage{}
	for _, key := range []string{KeyMotivationDate, KeyTodayMotivation} {
		v, ok, err := opts.Source.Get(key)
		if err != nil {
			return nil, err
		}
		if !ok || v == "" {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", key, err)
		}
		settings[key] = raw
		present = append(present, key)
	}

	result.Imported = len(records)
	result.SettingsMigrated = len(settings)
	if opts.DryRun {
		return result, nil
	}

	if err := target.BulkSaveTodos(ctx, records); err != nil {
		return nil, fmt.Errorf("failed to import legacy records: %w", err)
	}
	if err := target.BulkSaveSettings(ctx, settings); err != nil {
		return nil, fmt.Errorf("failed to import legacy settings: %w", err)
	}
	if len(present) > 0 {
		if err := opts.Source.Remove(present...); err != nil {
			return nil, fmt.Errorf("failed to clear legacy storage: %w", err)
		}
		result.KeysRemoved = present
	}
	if err := target.SaveSetting(ctx, storage.KeyMigrationCompleted, true); err != nil {
		return nil, fmt.Errorf("failed to record migration: %w", err)
	}

	logger.Info("legacy migration completed",
		"imported", result.Imported,
		"skipped", result.Skipped,
		"settings", result.SettingsMigrated)
	return result, nil
}

func legacyRecord(raw json.RawMessage, now time.Time) (schema.TaskRecord, error) {
	var l schema.LegacyRecord
	if err := json.Unmarshal(raw, &l); err != nil {
		return schema.TaskRecord{}, fmt.Errorf("not a record: %w", err)
	}
	if l.ID == "" {
		l.ID = uuid.NewSHA1(legacyNamespace, []byte(l.Date+"\x00"+l.CreatedAt+"\x00"+l.Content)).String()
	}
	r := l.Normalize(now)
	if err := r.Validate(); err != nil {
		return schema.TaskRecord{}, err
	}
	return r, nil
}

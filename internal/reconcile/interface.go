// Package reconcile applies a sync bundle to the local store.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mschirtzinger/daysync/internal/bundle"
	"github.com/mschirtzinger/daysync/internal/schema"
)

// Strategy selects how a bundle is applied.
type Strategy string

const (
	// Overwrite upserts every bundle record and setting. Local records
	// missing from the bundle are kept.
	Overwrite Strategy = "overwrite"
	// Merge inserts only records whose id is not present locally.
	Merge Strategy = "merge"
	// Manual refuses to apply anything when conflicts are detected.
	Manual Strategy = "manual"
)

// Strategies lists the supported strategies.
var Strategies = []Strategy{Overwrite, Merge, Manual}

// ErrUnknownStrategy is returned for a strategy outside Strategies.
var ErrUnknownStrategy = errors.New("unknown sync strategy")

// ParseStrategy converts user input to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case Overwrite, Merge, Manual:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q (want overwrite, merge or manual)", ErrUnknownStrategy, s)
}

// ConflictWindow is how close a local modification must be to the bundle's
// lastSyncAt for the record to count as concurrently edited.
const ConflictWindow = time.Second

// Reconciler applies bundles to local state.
//
// Apply never writes anything for a bundle with an unsupported format
// version, an unknown strategy, or (under Manual) detected conflicts.
// Store failures are returned as-is; records and settings are committed
// in separate batches, so a failure between them leaves the records
// applied and the settings untouched.
type Reconciler interface {
	// Apply reconciles b into the local store using strategy.
	//
	// Example:
	//   res, err := r.Apply(ctx, b, reconcile.Merge)
	Apply(ctx context.Context, b *bundle.Bundle, strategy Strategy) (*Result, error)

	// DetectConflicts lists records whose local modification marker lies
	// within ConflictWindow of the bundle's lastSyncAt.
	DetectConflicts(ctx context.Context, b *bundle.Bundle) ([]Conflict, error)
}

// Result summarizes an Apply call.
type Result struct {
	Strategy           Strategy
	Added              int
	Updated            int
	Skipped            int
	SettingsWritten    int
	BookkeepingUpdated bool
}

// Conflict is one record edited on both sides around the same time.
type Conflict struct {
	ID              string
	Local           schema.TaskRecord
	Remote          schema.TaskRecord
	LocalModifiedAt time.Time
	BundleSyncAt    time.Time
}

// ConflictError is returned by Apply under Manual when conflicts exist.
type ConflictError struct {
	Conflicts []Conflict
}

func (e *ConflictError) Error() string {
	ids := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		ids = append(ids, c.ID)
	}
	return fmt.Sprintf("%d conflicting record(s): %s", len(e.Conflicts), strings.Join(ids, ", "))
}

// IsConflictError reports whether err is or wraps a *ConflictError.
func IsConflictError(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// Package service is the API the rest of the application calls into. It
// ties the storage adapter, device identity, bundle codec, reconciler and
// cloud providers together behind task-level operations.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/mschirtzinger/daysync/internal/bundle"
	"github.com/mschirtzinger/daysync/internal/device"
	"github.com/mschirtzinger/daysync/internal/reconcile"
	"github.com/mschirtzinger/daysync/internal/storage"
)

// ErrNotEditable is returned when editing a record outside the day it was
// created.
var ErrNotEditable = errors.New("record is no longer editable")

// ErrAmbiguousID is returned when an id prefix matches several records.
var ErrAmbiguousID = errors.New("ambiguous todo id")

// Service implements the collaborator-facing operations.
type Service struct {
	adapter    storage.Adapter
	identity   *device.Store
	reconciler reconcile.Reconciler

	now       func() time.Time
	logger    *slog.Logger
	providers ProviderFactory
	tokens    TokenSource
	dates     *when.Parser
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithClock sets the clock used for timestamps, file names and date
// lookups.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithProviderFactory replaces the cloud provider constructor.
func WithProviderFactory(f ProviderFactory) Option {
	return func(s *Service) { s.providers = f }
}

// WithTokenSource sets how OAuth providers obtain tokens on Login,
// normally the popup flow.
func WithTokenSource(ts TokenSource) Option {
	return func(s *Service) { s.tokens = ts }
}

// New returns a service over adapter. The adapter must already be
// initialized; identity supplies bundle provenance.
func New(adapter storage.Adapter, identity *device.Store, opts ...Option) *Service {
	s := &Service{
		adapter:  adapter,
		identity: identity,
		now:      time.Now,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.providers == nil {
		s.providers = DefaultProviderFactory(s.logger, s.now)
	}
	s.reconciler = reconcile.New(adapter, s.logger)

	s.dates = when.New(nil)
	s.dates.Add(en.All...)
	s.dates.Add(common.All...)
	return s
}

// Adapter returns the storage adapter.
func (s *Service) Adapter() storage.Adapter { return s.adapter }

// ExportData snapshots the store into a bundle stamped with this device.
func (s *Service) ExportData(ctx context.Context) (*bundle.Bundle, error) {
	id, err := s.identity.Identity()
	if err != nil {
		return nil, fmt.Errorf("failed to load device identity: %w", err)
	}
	b, err := bundle.Export(ctx, s.adapter, id, s.now())
	if err != nil {
		return nil, err
	}
	s.logger.Debug("exported bundle", "todos", len(b.Todos), "settings", len(b.Settings))
	return b, nil
}

// DownloadBundle writes b into dir under the default file name and returns
// the path.
func (s *Service) DownloadBundle(b *bundle.Bundle, dir string) (string, error) {
	path, err := bundle.WriteFile(dir, b, s.now())
	if err != nil {
		return "", err
	}
	s.logger.Info("bundle saved", "path", path)
	return path, nil
}

// PickBundleFile reads and structurally checks the bundle at path.
func (s *Service) PickBundleFile(path string) (*bundle.Bundle, error) {
	return bundle.ReadFile(path)
}

// ImportData reconciles the bundle file at path into the store.
func (s *Service) ImportData(ctx context.Context, path string, strategy reconcile.Strategy) (*reconcile.Result, error) {
	b, err := s.PickBundleFile(path)
	if err != nil {
		return nil, err
	}
	return s.ImportBundle(ctx, b, strategy)
}

// ImportBundle reconciles b into the store.
func (s *Service) ImportBundle(ctx context.Context, b *bundle.Bundle, strategy reconcile.Strategy) (*reconcile.Result, error) {
	res, err := s.reconciler.Apply(ctx, b, strategy)
	if err != nil {
		return nil, err
	}
	s.logger.Info("bundle imported",
		"strategy", res.Strategy,
		"from", b.Metadata.DeviceName,
		"added", res.Added,
		"updated", res.Updated,
		"skipped", res.Skipped)
	return res, nil
}

// DetectConflicts reports the records that a manual import would refuse.
func (s *Service) DetectConflicts(ctx context.Context, b *bundle.Bundle) ([]reconcile.Conflict, error) {
	return s.reconciler.DetectConflicts(ctx, b)
}

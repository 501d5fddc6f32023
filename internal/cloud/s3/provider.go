// Package s3 implements the bucket-object cloud provider on top of any S3
// compatible object store.
package s3

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/mschirtzinger/daysync/internal/bundle"
	"github.com/mschirtzinger/daysync/internal/cloud"
)

const providerName = "S3"

// Provider stores bundles as JSON objects under a key prefix.
type Provider struct {
	now       func() time.Time
	logger    *slog.Logger
	transport http.RoundTripper

	// injected replaces the minio client when set; used by tests.
	injected objectStore

	mu    sync.RWMutex
	cfg   cloud.S3Config
	store objectStore
}

// Option configures a Provider.
type Option func(*Provider)

// WithClock sets the clock used for object key dates.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) { p.logger = logger }
}

// WithTransport sets the HTTP transport of the underlying client.
func WithTransport(rt http.RoundTripper) Option {
	return func(p *Provider) { p.transport = rt }
}

// withStore replaces the object store, bypassing client construction.
func withStore(s objectStore) Option {
	return func(p *Provider) { p.injected = s }
}

// New returns an unauthenticated provider for cfg. Missing region and
// prefix fall back to the defaults.
func New(cfg cloud.S3Config, opts ...Option) *Provider {
	if cfg.Region == "" {
		cfg.Region = cloud.DefaultS3Region
	}
	p := &Provider{
		cfg:    cfg,
		now:    time.Now,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string     { return providerName }
func (p *Provider) Type() cloud.Type { return cloud.TypeS3 }

// IsAuthenticated reports whether Login succeeded and credentials are held.
func (p *Provider) IsAuthenticated() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.store != nil
}

// Login validates the credentials and builds the client. It does not
// contact the bucket.
func (p *Provider) Login(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.cfg.Validate(); err != nil {
		return fmt.Errorf("s3 login: %w", err)
	}
	if p.injected != nil {
		p.store = p.injected
		return nil
	}
	store, err := newMinioStore(p.cfg, p.transport)
	if err != nil {
		return err
	}
	p.store = store
	return nil
}

// Logout drops the client. The configuration is kept so that a later
// Login on the same provider succeeds.
func (p *Provider) Logout(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.store = nil
	return nil
}

func (p *Provider) client(op string) (objectStore, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.store == nil {
		return nil, &cloud.AuthError{Provider: providerName, Op: op}
	}
	return p.store, nil
}

// Key returns the object key for a backup made at t, or for filename when
// one is given.
func (p *Provider) Key(t time.Time, filename string) string {
	if filename == "" {
		filename = fmt.Sprintf("sync-%s.json", t.UTC().Format("2006-01-02"))
	}
	if p.cfg.KeyPrefix == "" {
		return filename
	}
	return path.Join(p.cfg.KeyPrefix, filename)
}

// Upload writes b under the prefix and returns the object key.
func (p *Provider) Upload(ctx context.Context, b *bundle.Bundle, filename string) (string, error) {
	store, err := p.client("upload")
	if err != nil {
		return "", err
	}
	data, err := bundle.Encode(b)
	if err != nil {
		return "", err
	}
	key := p.Key(p.now(), filename)
	if err := store.Put(ctx, key, data); err != nil {
		return "", remoteError("upload", err)
	}
	p.logger.Info("bundle uploaded", "provider", providerName, "key", key, "bytes", len(data))
	return key, nil
}

// Download fetches the object with key id.
func (p *Provider) Download(ctx context.Context, id string) (*bundle.Bundle, error) {
	store, err := p.client("download")
	if err != nil {
		return nil, err
	}
	data, err := store.Get(ctx, id)
	if err != nil {
		return nil, remoteError("download", err)
	}
	return bundle.Decode(data)
}

// List returns the .json objects under the prefix, newest first.
func (p *Provider) List(ctx context.Context) ([]cloud.RemoteFile, error) {
	store, err := p.client("list")
	if err != nil {
		return nil, err
	}

	prefix := ""
	if p.cfg.KeyPrefix != "" {
		prefix = strings.TrimSuffix(p.cfg.KeyPrefix, "/") + "/"
	}
	objects, err := store.List(ctx, prefix)
	if err != nil {
		return nil, remoteError("list", err)
	}

	files := []cloud.RemoteFile{}
	for _, o := range objects {
		if !strings.HasPrefix(o.Key, prefix) || !strings.HasSuffix(o.Key, ".json") {
			continue
		}
		files = append(files, cloud.RemoteFile{
			ID:        o.Key,
			Name:      o.Key,
			UpdatedAt: o.LastModified.UTC().Format(time.RFC3339),
		})
	}
	cloud.SortNewestFirst(files)
	return files, nil
}

var _ cloud.Provider = (*Provider)(nil)

// Package fsdir implements a cloud provider backed by a local directory,
// typically one kept in sync by a desktop client such as Dropbox or a
// mounted network share.
package fsdir

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mschirtzinger/daysync/internal/bundle"
	"github.com/mschirtzinger/daysync/internal/cloud"
	"github.com/mschirtzinger/daysync/internal/fsutil"
)

const providerName = "Filesystem"

// Provider reads and writes bundle files in a directory.
type Provider struct {
	dir    string
	now    func() time.Time
	logger *slog.Logger

	mu       sync.RWMutex
	loggedIn bool
}

// Option configures a Provider.
type Option func(*Provider)

// WithClock sets the clock used for default filenames.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) { p.logger = logger }
}

// New returns an unauthenticated provider for dir.
func New(dir string, opts ...Option) *Provider {
	p := &Provider{
		dir:    dir,
		now:    time.Now,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string     { return providerName }
func (p *Provider) Type() cloud.Type { return cloud.TypeFilesystem }

// Dir returns the target directory.
func (p *Provider) Dir() string { return p.dir }

func (p *Provider) IsAuthenticated() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loggedIn
}

// Login creates the directory if needed and checks that it is one.
func (p *Provider) Login(ctx context.Context) error {
	if p.dir == "" {
		return fmt.Errorf("filesystem login: no directory configured")
	}
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return fmt.Errorf("filesystem login: %w", err)
	}
	info, err := os.Stat(p.dir)
	if err != nil {
		return fmt.Errorf("filesystem login: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("filesystem login: %s is not a directory", p.dir)
	}

	p.mu.Lock()
	p.loggedIn = true
	p.mu.Unlock()
	return nil
}

func (p *Provider) Logout(ctx context.Context) error {
	p.mu.Lock()
	p.loggedIn = false
	p.mu.Unlock()
	return nil
}

func (p *Provider) check(op string) error {
	if !p.IsAuthenticated() {
		return &cloud.AuthError{Provider: providerName, Op: op}
	}
	return nil
}

// path resolves a file id to a path inside the directory.
func (p *Provider) path(op, id string) (string, error) {
	if id == "" || id != filepath.Base(id) || strings.HasPrefix(id, ".") {
		return "", fmt.Errorf("filesystem %s: invalid file name %q", op, id)
	}
	return filepath.Join(p.dir, id), nil
}

// Upload writes the bundle to dir/filename. The file name is the id.
func (p *Provider) Upload(ctx context.Context, b *bundle.Bundle, filename string) (string, error) {
	if err := p.check("upload"); err != nil {
		return "", err
	}
	if filename == "" {
		filename = bundle.DefaultFilename(p.now())
	}
	path, err := p.path("upload", filename)
	if err != nil {
		return "", err
	}
	data, err := bundle.Encode(b)
	if err != nil {
		return "", err
	}
	if err := fsutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return "", fmt.Errorf("filesystem upload: %w", err)
	}
	p.logger.Info("bundle uploaded", "provider", providerName, "path", path)
	return filename, nil
}

func (p *Provider) Download(ctx context.Context, id string) (*bundle.Bundle, error) {
	if err := p.check("download"); err != nil {
		return nil, err
	}
	path, err := p.path("download", id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &cloud.RemoteError{Provider: providerName, Op: "download", StatusCode: 404, Status: "404 Not Found", Body: id}
		}
		return nil, fmt.Errorf("filesystem download: %w", err)
	}
	return bundle.Decode(data)
}

// List returns the .json files in the directory, newest first. Temporary
// files from interrupted writes are skipped.
func (p *Provider) List(ctx context.Context) ([]cloud.RemoteFile, error) {
	if err := p.check("list"); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, fmt.Errorf("filesystem list: %w", err)
	}

	files := []cloud.RemoteFile{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, cloud.RemoteFile{
			ID:        name,
			Name:      name,
			UpdatedAt: info.ModTime().UTC().Format(time.RFC3339Nano),
		})
	}
	cloud.SortNewestFirst(files)
	return files, nil
}

var _ cloud.Provider = (*Provider)(nil)

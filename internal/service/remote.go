package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	"github.com/mschirtzinger/daysync/internal/bundle"
	"github.com/mschirtzinger/daysync/internal/cloud"
	"github.com/mschirtzinger/daysync/internal/cloud/fsdir"
	"github.com/mschirtzinger/daysync/internal/cloud/gdrive"
	"github.com/mschirtzinger/daysync/internal/cloud/onedrive"
	"github.com/mschirtzinger/daysync/internal/cloud/s3"
	"github.com/mschirtzinger/daysync/internal/storage"
)

// TokenSource obtains an OAuth token for provider.
type TokenSource func(ctx context.Context, provider cloud.Type, clientID string) (*oauth2.Token, error)

// ProviderFactory builds an unauthenticated provider for cfg. auth is nil
// for providers that do not use OAuth or when no TokenSource is set.
type ProviderFactory func(cfg cloud.Config, auth cloud.Authenticator) (cloud.Provider, error)

// DefaultProviderFactory dispatches on cfg.Type to the built-in providers.
func DefaultProviderFactory(logger *slog.Logger, now func() time.Time) ProviderFactory {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if now == nil {
		now = time.Now
	}
	return func(cfg cloud.Config, auth cloud.Authenticator) (cloud.Provider, error) {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		switch cfg.Type {
		case cloud.TypeS3:
			return s3.New(*cfg.S3, s3.WithLogger(logger), s3.WithClock(now)), nil
		case cloud.TypeGoogle:
			return gdrive.New(auth, gdrive.WithLogger(logger)), nil
		case cloud.TypeOneDrive:
			return onedrive.New(auth, onedrive.WithLogger(logger)), nil
		case cloud.TypeFilesystem:
			return fsdir.New(cfg.Dir, fsdir.WithLogger(logger), fsdir.WithClock(now)), nil
		default:
			return nil, fmt.Errorf("unknown provider type %q", cfg.Type)
		}
	}
}

// tokenHolder is implemented by the OAuth providers.
type tokenHolder interface {
	SetToken(tok *oauth2.Token)
	Token(op string) (*oauth2.Token, error)
}

// SaveRemoteConfig validates and stores cfg as the active remote. The S3
// part is also stored under its own key and client ids under per-provider
// keys, so switching providers keeps earlier credentials.
func (s *Service) SaveRemoteConfig(ctx context.Context, cfg cloud.Config) error {
	if cfg.Type == cloud.TypeS3 && cfg.S3 != nil {
		s3cfg := *cfg.S3
		if s3cfg.Region == "" {
			s3cfg.Region = cloud.DefaultS3Region
		}
		cfg.S3 = &s3cfg
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	values := map[string]any{storage.KeyRemoteConfig: cfg}
	switch cfg.Type {
	case cloud.TypeS3:
		values[storage.KeyS3Config] = cfg.S3
	case cloud.TypeGoogle:
		if cfg.ClientID != "" {
			values[storage.KeyGoogleClientID] = cfg.ClientID
		}
	case cloud.TypeOneDrive:
		if cfg.ClientID != "" {
			values[storage.KeyOneDriveClientID] = cfg.ClientID
		}
	}

	raw := make(map[string]json.RawMessage, len(values))
	for k, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", k, err)
		}
		raw[k] = data
	}
	if err := s.adapter.BulkSaveSettings(ctx, raw); err != nil {
		return err
	}
	s.logger.Info("remote config saved", "type", cfg.Type)
	return nil
}

// GetRemoteConfig returns the active remote config. A bare s3_config from
// older installs is treated as an S3 remote. Missing OAuth client ids are
// filled from the per-provider keys.
func (s *Service) GetRemoteConfig(ctx context.Context) (*cloud.Config, bool, error) {
	cfg, ok, err := storage.GetSettingAs[cloud.Config](ctx, s.adapter, storage.KeyRemoteConfig)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		s3cfg, ok, err := storage.GetSettingAs[cloud.S3Config](ctx, s.adapter, storage.KeyS3Config)
		if err != nil || !ok {
			return nil, false, err
		}
		return &cloud.Config{Type: cloud.TypeS3, S3: &s3cfg}, true, nil
	}

	if cfg.ClientID == "" {
		var key string
		switch cfg.Type {
		case cloud.TypeGoogle:
			key = storage.KeyGoogleClientID
		case cloud.TypeOneDrive:
			key = storage.KeyOneDriveClientID
		}
		if key != "" {
			id, _, err := storage.GetSettingAs[string](ctx, s.adapter, key)
			if err != nil {
				return nil, false, err
			}
			cfg.ClientID = id
		}
	}
	return &cfg, true, nil
}

// ClearRemoteConfig forgets the active remote and any cached token.
func (s *Service) ClearRemoteConfig(ctx context.Context) error {
	cfg, ok, err := s.GetRemoteConfig(ctx)
	if err != nil {
		return err
	}
	if ok && cfg.Type.IsOAuth() {
		if err := s.adapter.DeleteSetting(ctx, storage.TokenKey(string(cfg.Type))); err != nil {
			return err
		}
	}
	if err := s.adapter.DeleteSetting(ctx, storage.KeyRemoteConfig); err != nil {
		return err
	}
	return s.adapter.DeleteSetting(ctx, storage.KeyS3Config)
}

// resolve returns cfg, or the stored config when cfg is nil.
func (s *Service) resolve(ctx context.Context, cfg *cloud.Config) (cloud.Config, error) {
	if cfg != nil {
		return *cfg, nil
	}
	stored, ok, err := s.GetRemoteConfig(ctx)
	if err != nil {
		return cloud.Config{}, err
	}
	if !ok {
		return cloud.Config{}, fmt.Errorf("no remote configured; run 'daysync remote config' first")
	}
	return *stored, nil
}

// Provider builds the provider for cfg (nil means the stored config) and
// restores a cached, unexpired OAuth token.
func (s *Service) Provider(ctx context.Context, cfg *cloud.Config) (cloud.Provider, error) {
	c, err := s.resolve(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var auth cloud.Authenticator
	if c.Type.IsOAuth() && s.tokens != nil {
		clientID, typ := c.ClientID, c.Type
		auth = func(ctx context.Context) (*oauth2.Token, error) {
			return s.tokens(ctx, typ, clientID)
		}
	}
	p, err := s.providers(c, auth)
	if err != nil {
		return nil, err
	}

	if h, ok := p.(tokenHolder); ok {
		tok, found, err := storage.GetSettingAs[oauth2.Token](ctx, s.adapter, storage.TokenKey(string(c.Type)))
		if err != nil {
			return nil, err
		}
		if found && tok.Valid() {
			h.SetToken(&tok)
		}
	}
	return p, nil
}

// Login authenticates the provider for cfg and caches its token.
func (s *Service) Login(ctx context.Context, cfg *cloud.Config) (cloud.Provider, error) {
	p, err := s.Provider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := s.login(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) login(ctx context.Context, p cloud.Provider) error {
	if err := p.Login(ctx); err != nil {
		return err
	}
	h, ok := p.(tokenHolder)
	if !ok {
		return nil
	}
	tok, err := h.Token("login")
	if err != nil {
		return err
	}
	if err := s.adapter.SaveSetting(ctx, storage.TokenKey(string(p.Type())), tok); err != nil {
		return fmt.Errorf("failed to cache token: %w", err)
	}
	s.logger.Info("logged in", "provider", p.Name())
	return nil
}

// Logout discards the provider's credentials and cached token.
func (s *Service) Logout(ctx context.Context, cfg *cloud.Config) error {
	p, err := s.Provider(ctx, cfg)
	if err != nil {
		return err
	}
	if err := p.Logout(ctx); err != nil {
		return err
	}
	if p.Type().IsOAuth() {
		return s.adapter.DeleteSetting(ctx, storage.TokenKey(string(p.Type())))
	}
	return nil
}

// authenticated returns a ready provider, logging in when needed.
func (s *Service) authenticated(ctx context.Context, cfg *cloud.Config) (cloud.Provider, error) {
	p, err := s.Provider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if !p.IsAuthenticated() {
		if err := s.login(ctx, p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// observe drops the cached token when the provider rejected it.
func (s *Service) observe(ctx context.Context, p cloud.Provider, err error) error {
	if re, ok := cloud.AsRemoteError(err); ok && re.Unauthorized() && p.Type().IsOAuth() {
		if derr := s.adapter.DeleteSetting(ctx, storage.TokenKey(string(p.Type()))); derr != nil {
			s.logger.Warn("failed to drop rejected token", "provider", p.Name(), "error", derr)
		}
	}
	return err
}

// UploadToRemote uploads b, or a fresh export when b is nil, and returns
// the remote id.
func (s *Service) UploadToRemote(ctx context.Context, cfg *cloud.Config, b *bundle.Bundle) (string, error) {
	if b == nil {
		var err error
		if b, err = s.ExportData(ctx); err != nil {
			return "", err
		}
	}
	p, err := s.authenticated(ctx, cfg)
	if err != nil {
		return "", err
	}
	id, err := p.Upload(ctx, b, "")
	if err != nil {
		return "", s.observe(ctx, p, err)
	}
	return id, nil
}

// ListRemoteFiles lists the remote backups, newest first.
func (s *Service) ListRemoteFiles(ctx context.Context, cfg *cloud.Config) ([]cloud.RemoteFile, error) {
	p, err := s.authenticated(ctx, cfg)
	if err != nil {
		return nil, err
	}
	files, err := p.List(ctx)
	if err != nil {
		return nil, s.observe(ctx, p, err)
	}
	return files, nil
}

// LatestFile is the name accepted by DownloadFromRemote for the newest
// backup.
const LatestFile = "latest"

// DownloadFromRemote fetches the backup identified by name, which may be
// a remote id, a file name, or LatestFile.
func (s *Service) DownloadFromRemote(ctx context.Context, cfg *cloud.Config, name string) (*bundle.Bundle, error) {
	p, err := s.authenticated(ctx, cfg)
	if err != nil {
		return nil, err
	}

	id := name
	if name == LatestFile || name == "" {
		files, err := p.List(ctx)
		if err != nil {
			return nil, s.observe(ctx, p, err)
		}
		latest, ok := cloud.Latest(files)
		if !ok {
			return nil, fmt.Errorf("no backups found on %s", p.Name())
		}
		id = latest.ID
	} else if p.Type() != cloud.TypeS3 && p.Type() != cloud.TypeFilesystem {
		// Drive ids are opaque; resolve a file name through the listing.
		files, err := p.List(ctx)
		if err != nil {
			return nil, s.observe(ctx, p, err)
		}
		if f, ok := cloud.Find(files, name); ok {
			id = f.ID
		}
	}

	b, err := p.Download(ctx, id)
	if err != nil {
		return nil, s.observe(ctx, p, err)
	}
	return b, nil
}

// Package gdrive implements the Google Drive cloud provider.
package gdrive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/mschirtzinger/daysync/internal/bundle"
	"github.com/mschirtzinger/daysync/internal/cloud"
)

const providerName = "Google Drive"

// DefaultFilename is used when Upload is given no name.
const DefaultFilename = "backup.json"

// Scope grants access to files created by this application only.
const Scope = drive.DriveFileScope

// Provider stores bundles as JSON files in the user's Drive.
type Provider struct {
	*cloud.TokenState

	endpoint   string
	baseClient *http.Client
	logger     *slog.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithEndpoint points the client at a different API root.
func WithEndpoint(url string) Option {
	return func(p *Provider) { p.endpoint = url }
}

// WithHTTPClient sets the client that carries bearer-token requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.baseClient = c }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) { p.logger = logger }
}

// New returns an unauthenticated provider. auth runs on Login and may be
// nil when tokens are injected with SetToken.
func New(auth cloud.Authenticator, opts ...Option) *Provider {
	p := &Provider{
		TokenState: cloud.NewTokenState(providerName, auth),
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string     { return providerName }
func (p *Provider) Type() cloud.Type { return cloud.TypeGoogle }

// Logout discards the token.
func (p *Provider) Logout(ctx context.Context) error {
	p.TokenState.Logout()
	return nil
}

func (p *Provider) service(ctx context.Context, op string) (*drive.Service, error) {
	tok, err := p.Token(op)
	if err != nil {
		return nil, err
	}
	if p.baseClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.baseClient)
	}
	opts := []option.ClientOption{
		option.WithHTTPClient(oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok))),
	}
	if p.endpoint != "" {
		opts = append(opts, option.WithEndpoint(p.endpoint))
	}
	srv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive client: %w", err)
	}
	return srv, nil
}

// Upload creates a new file and returns its Drive id.
func (p *Provider) Upload(ctx context.Context, b *bundle.Bundle, filename string) (string, error) {
	srv, err := p.service(ctx, "upload")
	if err != nil {
		return "", err
	}
	data, err := bundle.Encode(b)
	if err != nil {
		return "", err
	}
	if filename == "" {
		filename = DefaultFilename
	}

	meta := &drive.File{Name: filename, MimeType: "application/json"}
	file, err := srv.Files.Create(meta).
		Media(bytes.NewReader(data), googleapi.ContentType("application/json")).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", p.Observe(remoteError("upload", err))
	}
	p.logger.Info("bundle uploaded", "provider", providerName, "id", file.Id, "name", filename)
	return file.Id, nil
}

// Download fetches the media of the file with the given id.
func (p *Provider) Download(ctx context.Context, id string) (*bundle.Bundle, error) {
	srv, err := p.service(ctx, "download")
	if err != nil {
		return nil, err
	}
	resp, err := srv.Files.Get(id).Context(ctx).Download()
	if err != nil {
		return nil, p.Observe(remoteError("download", err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read drive file: %w", err)
	}
	return bundle.Decode(data)
}

// List returns the JSON files visible to the application, newest first.
func (p *Provider) List(ctx context.Context) ([]cloud.RemoteFile, error) {
	srv, err := p.service(ctx, "list")
	if err != nil {
		return nil, err
	}
	res, err := srv.Files.List().
		Q(`mimeType="application/json"`).
		Fields("files(id,name,modifiedTime)").
		Context(ctx).
		Do()
	if err != nil {
		return nil, p.Observe(remoteError("list", err))
	}

	files := make([]cloud.RemoteFile, 0, len(res.Files))
	for _, f := range res.Files {
		files = append(files, cloud.RemoteFile{ID: f.Id, Name: f.Name, UpdatedAt: f.ModifiedTime})
	}
	cloud.SortNewestFirst(files)
	return files, nil
}

func remoteError(op string, err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return fmt.Errorf("google drive %s: %w", op, err)
	}
	body := gerr.Message
	if body == "" {
		body = gerr.Body
	}
	return &cloud.RemoteError{
		Provider:   providerName,
		Op:         op,
		StatusCode: gerr.Code,
		Status:     fmt.Sprintf("%d %s", gerr.Code, http.StatusText(gerr.Code)),
		Body:       body,
	}
}

var _ cloud.Provider = (*Provider)(nil)

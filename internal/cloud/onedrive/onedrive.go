// Package onedrive implements the OneDrive cloud provider against the
// Microsoft Graph API. Files live in the application's approot folder.
package onedrive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"

	"github.com/mschirtzinger/daysync/internal/bundle"
	"github.com/mschirtzinger/daysync/internal/cloud"
)

const providerName = "OneDrive"

// DefaultBaseURL is the Graph API root.
const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

// DefaultFilename is used when Upload is given no name.
const DefaultFilename = "backup.json"

// Scopes requested by the popup flow.
const Scopes = "Files.ReadWrite.AppFolder User.Read"

// Provider stores bundles in the OneDrive app folder.
type Provider struct {
	*cloud.TokenState

	baseURL    string
	baseClient *http.Client
	logger     *slog.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithBaseURL points the client at a different Graph root.
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimSuffix(u, "/") }
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
		baseURL:    DefaultBaseURL,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string     { return providerName }
func (p *Provider) Type() cloud.Type { return cloud.TypeOneDrive }

// Logout discards the token.
func (p *Provider) Logout(ctx context.Context) error {
	p.TokenState.Logout()
	return nil
}

// do sends an authorized request and returns the body of a 2xx response.
// Non-2xx responses become a *cloud.RemoteError; a 401 also logs out.
func (p *Provider) do(ctx context.Context, op, method, path string, body []byte) ([]byte, error) {
	tok, err := p.Token(op)
	if err != nil {
		return nil, err
	}
	if p.baseClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.baseClient)
	}
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok))

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("onedrive %s: %w", op, err)
	}
	defer resp.Body.Close()

	if err := cloud.CheckResponse(providerName, op, resp); err != nil {
		return nil, p.Observe(err)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", op, err)
	}
	return data, nil
}

// Upload writes the bundle to approot/<filename>, replacing any file of the
// same name, and returns the item id.
func (p *Provider) Upload(ctx context.Context, b *bundle.Bundle, filename string) (string, error) {
	if filename == "" {
		filename = DefaultFilename
	}
	if _, err := p.Token("upload"); err != nil {
		return "", err
	}
	data, err := bundle.Encode(b)
	if err != nil {
		return "", err
	}

	path := "/me/drive/special/approot:/" + url.PathEscape(filename) + ":/content"
	resp, err := p.do(ctx, "upload", http.MethodPut, path, data)
	if err != nil {
		return "", err
	}
	id := gjson.GetBytes(resp, "id").String()
	if id == "" {
		return "", fmt.Errorf("onedrive upload: response has no item id")
	}
	p.logger.Info("bundle uploaded", "provider", providerName, "id", id, "name", filename)
	return id, nil
}

// Download fetches the content of the item with the given id.
func (p *Provider) Download(ctx context.Context, id string) (*bundle.Bundle, error) {
	data, err := p.do(ctx, "download", http.MethodGet, "/me/drive/items/"+url.PathEscape(id)+"/content", nil)
	if err != nil {
		return nil, err
	}
	return bundle.Decode(data)
}

// List returns the files in the app folder, newest first.
func (p *Provider) List(ctx context.Context) ([]cloud.RemoteFile, error) {
	data, err := p.do(ctx, "list", http.MethodGet, "/me/drive/special/approot/children", nil)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("onedrive list: response is not valid JSON")
	}

	files := []cloud.RemoteFile{}
	gjson.GetBytes(data, "value").ForEach(func(_, item gjson.Result) bool {
		// Folders carry a "folder" facet and are not backups.
		if item.Get("folder").Exists() {
			return true
		}
		files = append(files, cloud.RemoteFile{
			ID:        item.Get("id").String(),
			Name:      item.Get("name").String(),
			UpdatedAt: item.Get("lastModifiedDateTime").String(),
		})
		return true
	})
	cloud.SortNewestFirst(files)
	return files, nil
}

var _ cloud.Provider = (*Provider)(nil)

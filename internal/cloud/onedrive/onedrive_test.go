package onedrive

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/mschirtzinger/daysync/internal/bundle"
	"github.com/mschirtzinger/daysync/internal/cloud"
	"github.com/mschirtzinger/daysync/internal/schema"
)

type fakeGraph struct {
	mu     sync.Mutex
	items  map[string][]byte
	status int
	auth   string
}

func (f *fakeGraph) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.auth = r.Header.Get("Authorization")

	if f.status != 0 {
		w.WriteHeader(f.status)
		_, _ = io.WriteString(w, `{"error":{"code":"InvalidAuthenticationToken"}}`)
		return
	}

	const approot = "/v1.0/me/drive/special/approot"
	switch {
	case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, approot+":/"):
		name := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, approot+":/"), ":/content")
		data, _ := io.ReadAll(r.Body)
		f.items["item-"+name] = data
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "item-" + name, "name": name})
	case r.Method == http.MethodGet && r.URL.Path == approot+"/children":
		_, _ = io.WriteString(w, `{"value":[
			{"id":"a","name":"backup.json","lastModifiedDateTime":"2024-02-01T08:00:00Z"},
			{"id":"dir","name":"old","folder":{"childCount":2},"lastModifiedDateTime":"2024-04-01T08:00:00Z"},
			{"id":"b","name":"motivation-adhd-backup-2024-03-01.json","lastModifiedDateTime":"2024-03-01T08:00:00Z"}
		]}`)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/v1.0/me/drive/items/"):
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1.0/me/drive/items/"), "/content")
		data, ok := f.items[id]
		if !ok {
			http.Error(w, `{"error":{"code":"itemNotFound"}}`, http.StatusNotFound)
			return
		}
		_, _ = w.Write(data)
	default:
		http.Error(w, "unexpected "+r.Method+" "+r.URL.Path, http.StatusBadRequest)
	}
}

func (f *fakeGraph) setStatus(code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = code
}

func (f *fakeGraph) lastAuth() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.auth
}

func setup(t *testing.T) (*Provider, *fakeGraph) {
	t.Helper()
	fake := &fakeGraph{items: map[string][]byte{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	p := New(nil, WithBaseURL(srv.URL+"/v1.0/"), WithHTTPClient(srv.Client()))
	p.SetToken(&oauth2.Token{AccessToken: "graph-token", Expiry: time.Now().Add(time.Hour)})
	return p, fake
}

func testBundle() *bundle.Bundle {
	return &bundle.Bundle{
		Metadata: bundle.Metadata{
			DeviceID:   "11111111-1111-4111-8111-111111111111",
			DeviceName: "Windows - 2024-03-01",
			LastSyncAt: "2024-03-01T12:00:00.000Z",
			Version:    bundle.FormatVersion,
		},
		Todos: []schema.TaskRecord{{
			ID:        "33333333-3333-4333-8333-333333333333",
			Date:      "2024-03-01 (Fri)",
			Title:     "Daily task - 2024-03-01 (Fri)",
			Content:   "stretch",
			CreatedAt: "2024-03-01 07:30:00",
		}},
		Settings: map[string]json.RawMessage{"theme": json.RawMessage(`"light"`)},
	}
}

func TestUnauthenticated(t *testing.T) {
	p := New(nil)
	assert.Equal(t, cloud.TypeOneDrive, p.Type())
	assert.Equal(t, "OneDrive", p.Name())

	_, err := p.Upload(context.Background(), testBundle(), "")
	assert.True(t, cloud.IsAuthError(err))
	_, err = p.Download(context.Background(), "x")
	assert.True(t, cloud.IsAuthError(err))
}

func TestExpiredTokenIsUnauthenticated(t *testing.T) {
	p := New(nil)
	p.SetToken(&oauth2.Token{AccessToken: "old", Expiry: time.Now().Add(-time.Minute)})
	assert.False(t, p.IsAuthenticated())
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	ctx := context.Background()
	p, fake := setup(t)

	id, err := p.Upload(ctx, testBundle(), "")
	require.NoError(t, err)
	assert.Equal(t, "item-backup.json", id)
	assert.Equal(t, "Bearer graph-token", fake.lastAuth())

	got, err := p.Download(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, testBundle().Todos, got.Todos)
	assert.JSONEq(t, `"light"`, string(got.Settings["theme"]))
}

func TestListSkipsFoldersNewestFirst(t *testing.T) {
	p, _ := setup(t)
	files, err := p.List(context.Background())
	require.NoError(t, err)

	require.Len(t, files, 2)
	assert.Equal(t, "b", files[0].ID)
	assert.Equal(t, "a", files[1].ID)

	latest, ok := cloud.Latest(files)
	require.True(t, ok)
	assert.Equal(t, "motivation-adhd-backup-2024-03-01.json", latest.Name)
}

func TestUnauthorizedDemotes(t *testing.T) {
	p, fake := setup(t)
	fake.setStatus(http.StatusUnauthorized)

	_, err := p.List(context.Background())
	re, ok := cloud.AsRemoteError(err)
	require.True(t, ok, "List() error = %v", err)
	assert.Equal(t, http.StatusUnauthorized, re.StatusCode)
	assert.Contains(t, re.Body, "InvalidAuthenticationToken")
	assert.False(t, p.IsAuthenticated())
}

func TestServerErrorKeepsToken(t *testing.T) {
	p, fake := setup(t)
	fake.setStatus(http.StatusInternalServerError)

	_, err := p.Upload(context.Background(), testBundle(), "")
	assert.True(t, cloud.IsRemoteError(err))
	assert.True(t, p.IsAuthenticated())
}

func TestDownloadNotFound(t *testing.T) {
	p, _ := setup(t)
	_, err := p.Download(context.Background(), "missing")
	re, ok := cloud.AsRemoteError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, re.StatusCode)
}

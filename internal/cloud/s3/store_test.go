package s3

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listResult = `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
  <Name>daily</Name>
  <Prefix>backup/</Prefix>
  <KeyCount>1</KeyCount>
  <MaxKeys>1000</MaxKeys>
  <IsTruncated>false</IsTruncated>
  <Contents>
    <Key>backup/sync-2024-03-01.json</Key>
    <LastModified>2024-03-01T12:00:00.000Z</LastModified>
    <Size>10</Size>
  </Contents>
</ListBucketResult>`

const accessDenied = `<?xml version="1.0" encoding="UTF-8"?>
<Error><Code>AccessDenied</Code><Message>Access Denied</Message></Error>`

func newTestMinioStore(t *testing.T, handler http.HandlerFunc) *minioStore {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := testConfig()
	cfg.Endpoint = strings.TrimPrefix(srv.URL, "http://")
	cfg.Insecure = true
	store, err := newMinioStore(cfg, nil)
	require.NoError(t, err)
	return store
}

func TestMinioStoreList(t *testing.T) {
	store := newTestMinioStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(listResult))
	})

	objects, err := store.List(context.Background(), "backup/")
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, "backup/sync-2024-03-01.json", objects[0].Key)
	assert.True(t, objects[0].LastModified.Equal(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)))
}

func TestMinioStoreListError(t *testing.T) {
	store := newTestMinioStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(accessDenied))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := store.List(ctx, "backup/")
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, minio.ToErrorResponse(err).StatusCode)
	assert.NoError(t, ctx.Err(), "List() did not return promptly")
}

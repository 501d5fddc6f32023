// Package cloud defines the interface implemented by remote backup targets
// and the types they share.
//
// Concrete providers live in subpackages (s3, gdrive, onedrive, fsdir) and
// are selected by the Type discriminant of a Config. Every provider starts
// unauthenticated. Login (or injecting a token) moves it to authenticated;
// Logout moves it back. All other operations fail with an AuthError while
// unauthenticated. Providers never retry; a non-2xx response from a
// backend is returned as a *RemoteError.
package cloud

import (
	"context"
	"sort"

	"github.com/mschirtzinger/daysync/internal/bundle"
)

// Type discriminates provider variants.
type Type string

const (
	TypeS3         Type = "s3"
	TypeGoogle     Type = "google"
	TypeOneDrive   Type = "onedrive"
	TypeFilesystem Type = "filesystem"
)

// Types lists every supported provider type.
var Types = []Type{TypeS3, TypeGoogle, TypeOneDrive, TypeFilesystem}

// IsOAuth reports whether the provider authenticates with a bearer token.
func (t Type) IsOAuth() bool {
	return t == TypeGoogle || t == TypeOneDrive
}

// RemoteFile is the normalized listing entry of every provider.
type RemoteFile struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	UpdatedAt string `json:"updatedAt"`
}

// Provider is a remote backup target.
type Provider interface {
	// Name is the human readable backend name.
	Name() string

	// Type is the variant discriminant.
	Type() Type

	// IsAuthenticated reports whether operations other than Login and
	// Logout may be called.
	IsAuthenticated() bool

	// Login acquires credentials.
	Login(ctx context.Context) error

	// Logout discards credentials.
	Logout(ctx context.Context) error

	// Upload stores b and returns the backend id of the new object.
	// An empty filename selects the provider's default.
	Upload(ctx context.Context, b *bundle.Bundle, filename string) (string, error)

	// Download fetches and decodes the bundle with the given id.
	Download(ctx context.Context, id string) (*bundle.Bundle, error)

	// List returns the available backups.
	List(ctx context.Context) ([]RemoteFile, error)
}

// SortNewestFirst orders files by UpdatedAt, then Name, descending.
// UpdatedAt values are RFC 3339 strings, which sort lexically when they
// share a zone. Names embed the backup date, which breaks ties.
func SortNewestFirst(files []RemoteFile) {
	sort.SliceStable(files, func(i, j int) bool {
		if files[i].UpdatedAt != files[j].UpdatedAt {
			return files[i].UpdatedAt > files[j].UpdatedAt
		}
		return files[i].Name > files[j].Name
	})
}

// Latest returns the newest file, or false when files is empty.
func Latest(files []RemoteFile) (RemoteFile, bool) {
	if len(files) == 0 {
		return RemoteFile{}, false
	}
	sorted := append([]RemoteFile(nil), files...)
	SortNewestFirst(sorted)
	return sorted[0], true
}

// Find returns the file whose id or name equals key.
func Find(files []RemoteFile, key string) (RemoteFile, bool) {
	for _, f := range files {
		if f.ID == key {
			return f, true
		}
	}
	for _, f := range files {
		if f.Name == key {
			return f, true
		}
	}
	return RemoteFile{}, false
}

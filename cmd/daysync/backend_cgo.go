//go:build cgo

package main

// Registers the libsql storage backend.
import _ "github.com/mschirtzinger/daysync/internal/storage/libsql"

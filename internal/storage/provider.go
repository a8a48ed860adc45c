// Package storage provides crash-safe file writes and a rooted file provider
// for grid artwork.
package storage

import "io"

// Provider is the interface for files under a single root directory.
type Provider interface {
	// Exists reports whether a regular file exists at path (relative to root).
	Exists(path string) (bool, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically replaces path with the contents of r.
	Write(path string, r io.Reader) error
	// Delete removes the file at path.
	Delete(path string) error
}

var _ Provider = (*FS)(nil)

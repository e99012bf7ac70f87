// Package storage defines the vault file-system abstraction.
package storage

import "github.com/starford/scanvault/internal/models"

// Provider is the interface for vault file operations. All paths are
// relative to the vault root.
type Provider interface {
	// Resolve validates path and returns its absolute location. Paths that
	// leave the root, including through symlinks, are rejected.
	Resolve(path string) (string, error)
	// List returns metadata for every .md file under dir.
	List(dir string) ([]models.NoteMetadata, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Exists reports whether a regular file exists at path.
	Exists(path string) (bool, error)
	// Write atomically writes content to path, creating parent directories.
	Write(path string, content []byte) error
	// Delete removes the file at path. A missing file is not an error.
	Delete(path string) error
}

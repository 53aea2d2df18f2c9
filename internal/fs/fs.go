// Package fs defines the filesystem abstraction used by snapmirror.
// The snapshot builder and the retention pruner only touch the destination
// root through FS, so tests can inject failures.
package fs

import (
	"time"
)

type FileInfo struct {
	Path  string
	Name  string
	IsDir bool
	MTime time.Time
}

type FS interface {
	Stat(path string) (FileInfo, error)
	ReadDir(path string) ([]FileInfo, error)
	// MkdirAll creates path and any missing parents. Existing directories are fine.
	MkdirAll(path string) error
	// Mkdir creates exactly one directory and fails if it already exists.
	Mkdir(path string) error
	RemoveAll(path string) error
	WriteFile(path string, data []byte) error
	ReadFile(path string) ([]byte, error)
}

package storage

import (
	"time"
)

// Namespace selects one of the two logical storage areas
type Namespace string

const (
	// Public holds artifacts served to end users (QR images, final certificate images)
	Public Namespace = "public"
	// Private holds template backgrounds, remote-rendered documents and temp files
	Private Namespace = "private"
)

// Store is a blob store addressed by storage-relative path strings.
// The rendering pipeline never assumes a specific backend.
type Store interface {
	Put(ns Namespace, relPath string, data []byte) error
	Get(ns Namespace, relPath string) ([]byte, error)
	Exists(ns Namespace, relPath string) bool
	Delete(ns Namespace, relPath string) error
	Size(ns Namespace, relPath string) (int64, error)
	ModTime(ns Namespace, relPath string) (time.Time, error)
	// Abs returns the absolute filesystem path for a stored object.
	// Consumers that need direct file access (PDF wrapping) use this.
	Abs(ns Namespace, relPath string) string
}

package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Disk is a filesystem-backed Store with one root directory per namespace
type Disk struct {
	publicRoot  string
	privateRoot string
}

// NewDisk creates a disk store. Roots are created if missing.
func NewDisk(publicRoot, privateRoot string) (*Disk, error) {
	for _, root := range []string{publicRoot, privateRoot} {
		if err := os.MkdirAll(root, 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage root %s: %w", root, err)
		}
	}
	return &Disk{publicRoot: publicRoot, privateRoot: privateRoot}, nil
}

func (d *Disk) root(ns Namespace) string {
	if ns == Public {
		return d.publicRoot
	}
	return d.privateRoot
}

func (d *Disk) resolve(ns Namespace, relPath string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(relPath))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("illegal storage path: %s", relPath)
	}
	return filepath.Join(d.root(ns), clean), nil
}

// Put writes a blob, creating parent directories as needed
func (d *Disk) Put(ns Namespace, relPath string, data []byte) error {
	abs, err := d.resolve(ns, relPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", relPath, err)
	}
	if err := os.WriteFile(abs, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", relPath, err)
	}
	return nil
}

// Get reads a blob
func (d *Disk) Get(ns Namespace, relPath string) ([]byte, error) {
	abs, err := d.resolve(ns, relPath)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(abs)
}

// Exists reports whether a blob exists
func (d *Disk) Exists(ns Namespace, relPath string) bool {
	abs, err := d.resolve(ns, relPath)
	if err != nil {
		return false
	}
	info, err := os.Stat(abs)
	return err == nil && !info.IsDir()
}

// Delete removes a blob. Deleting a missing blob is not an error.
func (d *Disk) Delete(ns Namespace, relPath string) error {
	abs, err := d.resolve(ns, relPath)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Size returns a blob's size in bytes
func (d *Disk) Size(ns Namespace, relPath string) (int64, error) {
	abs, err := d.resolve(ns, relPath)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// ModTime returns a blob's last modification time
func (d *Disk) ModTime(ns Namespace, relPath string) (time.Time, error) {
	abs, err := d.resolve(ns, relPath)
	if err != nil {
		return time.Time{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// Abs returns the absolute filesystem path for a stored object
func (d *Disk) Abs(ns Namespace, relPath string) string {
	abs, err := d.resolve(ns, relPath)
	if err != nil {
		return ""
	}
	return abs
}

package tempfiles

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go_certhub/internal/config"

	"github.com/sirupsen/logrus"
)

// Cleaner prunes the scratch directory used for intermediate render files.
// Two policies apply on every sweep: files older than the age limit are
// removed, then the oldest remaining files go until total size fits the cap.
type Cleaner struct {
	dir         string
	config      config.TempCleanerConfig
	logger      *logrus.Entry
	stopChan    chan struct{}
	stoppedChan chan struct{}
}

// NewCleaner creates a cleaner over a scratch directory
func NewCleaner(dir string, cfg config.TempCleanerConfig, logger *logrus.Entry) *Cleaner {
	return &Cleaner{
		dir:         dir,
		config:      cfg,
		logger:      logger.WithField("component", "temp-cleaner"),
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}
}

// Start starts the cleaner
func (c *Cleaner) Start() {
	if !c.config.Enabled {
		c.logger.Info("Temp cleaner disabled, skipping")
		close(c.stoppedChan)
		return
	}

	c.logger.WithFields(logrus.Fields{
		"interval_sec": c.config.IntervalSec,
		"max_age_h":    c.config.MaxAgeHours,
		"max_bytes":    c.config.MaxTotalBytes,
	}).Info("Temp cleaner starting")

	go c.run()
}

// Stop stops the cleaner
func (c *Cleaner) Stop() {
	if !c.config.Enabled {
		return
	}
	close(c.stopChan)
	<-c.stoppedChan
}

func (c *Cleaner) run() {
	defer close(c.stoppedChan)

	ticker := time.NewTicker(time.Duration(c.config.IntervalSec) * time.Second)
	defer ticker.Stop()

	c.Sweep()

	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-c.stopChan:
			return
		}
	}
}

type tempFile struct {
	path    string
	size    int64
	modTime time.Time
}

// Sweep runs one cleanup pass. The directory listing is snapshotted up
// front; files that disappear mid-sweep are tolerated.
func (c *Cleaner) Sweep() {
	files, err := c.snapshot()
	if err != nil {
		c.logger.WithError(err).Error("Failed to list temp directory")
		return
	}
	if len(files) == 0 {
		return
	}

	cutoff := time.Now().Add(-time.Duration(c.config.MaxAgeHours) * time.Hour)

	var kept []tempFile
	var total int64
	removed := 0
	for _, f := range files {
		if f.modTime.Before(cutoff) {
			if c.remove(f.path) {
				removed++
			}
			continue
		}
		kept = append(kept, f)
		total += f.size
	}

	// Oldest first until the remainder fits the cap
	if c.config.MaxTotalBytes > 0 && total > c.config.MaxTotalBytes {
		sort.Slice(kept, func(i, j int) bool {
			return kept[i].modTime.Before(kept[j].modTime)
		})
		for _, f := range kept {
			if total <= c.config.MaxTotalBytes {
				break
			}
			if c.remove(f.path) {
				total -= f.size
				removed++
			}
		}
	}

	if removed > 0 {
		c.logger.WithField("removed", removed).Info("Temp files cleaned")
	}
}

func (c *Cleaner) snapshot() ([]tempFile, error) {
	var files []tempFile
	err := filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			// Deleted between listing and stat
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		files = append(files, tempFile{path: path, size: info.Size(), modTime: info.ModTime()})
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return files, err
}

func (c *Cleaner) remove(path string) bool {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		c.logger.WithField("file", path).WithError(err).Warn("Failed to remove temp file")
		return false
	}
	return true
}

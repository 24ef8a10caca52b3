package store

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// CleanupInterval is how often the retention sweep runs.
const CleanupInterval = 1 * time.Hour

// Cleanup deletes spooled artifacts older than the configured retention.
// The retention is read through a getter so configuration changes apply
// without a restart.
type Cleanup struct {
	store         *DiskStore
	retentionDays func() int
	stopChan      chan struct{}
	wg            sync.WaitGroup
	mu            sync.Mutex
	running       bool
}

// NewCleanup creates a cleanup sweeper for the given store.
func NewCleanup(store *DiskStore, retentionDays func() int) *Cleanup {
	return &Cleanup{
		store:         store,
		retentionDays: retentionDays,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the cleanup goroutine.
func (c *Cleanup) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.stopChan = make(chan struct{})
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run()

	slog.Info("artifact cleanup started", "path", c.store.Path(), "interval", CleanupInterval)
}

// Stop stops the cleanup goroutine.
func (c *Cleanup) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.stopChan)
	c.mu.Unlock()

	c.wg.Wait()
	slog.Info("artifact cleanup stopped")
}

// run is the main cleanup loop.
func (c *Cleanup) run() {
	defer c.wg.Done()

	// Run immediately on start
	c.runCleanup()

	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.runCleanup()
		}
	}
}

// runCleanup removes artifacts whose modification time falls before the
// retention cutoff. Zero or negative retention keeps everything.
func (c *Cleanup) runCleanup() {
	days := c.retentionDays()
	if days <= 0 {
		return
	}

	cutoff := time.Now().AddDate(0, 0, -days)
	slog.Debug("running artifact cleanup", "path", c.store.Path(), "retention_days", days, "cutoff", cutoff.Format("2006-01-02"))

	entries, err := os.ReadDir(c.store.Path())
	if err != nil {
		slog.Error("failed to read spool directory", "path", c.store.Path(), "error", err)
		return
	}

	var deleted int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(c.store.Path(), entry.Name())
		if err := os.Remove(path); err != nil {
			slog.Error("failed to remove old artifact", "path", path, "error", err)
			continue
		}
		deleted++
		slog.Debug("removed old artifact", "path", path)
	}

	if deleted > 0 {
		slog.Info("artifact cleanup completed", "deleted_files", deleted)
	}
}

// Package cache holds the last-good snapshot store and the background
// janitor that expires it.
package cache

import (
	"context"
	"sync"
	"time"

	"budgetnest/internal/log"
)

// Cache defines a generic cache interface
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	DeletePrefix(prefix string) int
	Size() int
}

// Cleaner is anything the Manager can sweep periodically.
type Cleaner interface {
	CleanExpired() int
}

// CleanerFunc adapts a plain function to Cleaner.
type CleanerFunc func() int

func (f CleanerFunc) CleanExpired() int { return f() }

// Manager runs periodic cleanup over registered caches.
type Manager struct {
	mu          sync.Mutex
	caches      []namedCleaner
	stopCleanup chan struct{}
	cleanupDone chan struct{}
	started     bool
	logger      *log.Logger
}

type namedCleaner struct {
	name string
	c    Cleaner
}

// NewManager creates a new cache manager
func NewManager(logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Manager{
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
		logger:      logger.WithComponent(log.ComponentCache),
	}
}

// Register adds a cache to the manager for cleanup
func (m *Manager) Register(name string, c Cleaner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caches = append(m.caches, namedCleaner{name: name, c: c})
}

// StartCleanup sweeps every interval until Stop is called or ctx ends.
func (m *Manager) StartCleanup(ctx context.Context, interval time.Duration) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	go m.cleanup(ctx, interval)
}

// Sweep runs one cleanup pass and returns the number of removed entries.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	caches := make([]namedCleaner, len(m.caches))
	copy(caches, m.caches)
	m.mu.Unlock()

	total := 0
	for _, nc := range caches {
		n := nc.c.CleanExpired()
		if n > 0 {
			m.logger.Debug("Expired entries removed", "cache", nc.name, "count", n)
		}
		total += n
	}
	return total
}

func (m *Manager) cleanup(ctx context.Context, interval time.Duration) {
	defer close(m.cleanupDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Sweep()
		case <-m.stopCleanup:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop gracefully stops the cleanup routine
func (m *Manager) Stop() {
	m.mu.Lock()
	started := m.started
	select {
	case <-m.stopCleanup:
		m.mu.Unlock()
		return
	default:
		close(m.stopCleanup)
	}
	m.mu.Unlock()

	if started {
		<-m.cleanupDone
	}
	m.logger.Info("Cache cleanup stopped", log.FieldOperation, log.OpShutdown)
}

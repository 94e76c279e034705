// Package dashboard caches per-project summary snapshots so repeated
// dashboard reads do not refan out to the registry, tracker and status
// service every time.
package dashboard

import (
	"sync"
	"time"

	"github.com/ScriptedAlchemy/corral/internal/config"
	"github.com/ScriptedAlchemy/corral/internal/logger"
	"github.com/ScriptedAlchemy/corral/internal/session"
)

// SessionSummary is one session's row in a project summary.
type SessionSummary struct {
	SessionID  string
	Name       string
	Status     session.Status
	Branch     string
	Favorite   bool
	Archived   bool
	GitSummary string
	Ahead      int
	Behind     int
	Executions int
	LastCommit string
}

// MainStatus describes the project's primary checkout: its branch, working
// tree summary and remote tracking counts.
type MainStatus struct {
	Branch     string
	GitSummary string
	Ahead      int
	Behind     int
}

// Summary is a project's dashboard snapshot.
type Summary struct {
	ProjectID string
	Main      MainStatus
	Sessions  []SessionSummary
	BuiltAt   time.Time
}

type entry struct {
	summary  Summary
	cachedAt time.Time
}

// Cache holds project summaries for up to the TTL. The boundary is
// exclusive: an entry exactly TTL old is already expired.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

// NewCache creates a cache with the standard dashboard TTL.
func NewCache() *Cache {
	return NewCacheWithTTL(config.DashboardTTL)
}

// NewCacheWithTTL creates a cache with an explicit TTL.
func NewCacheWithTTL(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached summary for a project if it is still within the
// TTL. An expired entry is evicted on read and reported as a miss.
func (c *Cache) Get(projectID string) (Summary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[projectID]
	if !ok {
		return Summary{}, false
	}
	if c.now().Sub(e.cachedAt) >= c.ttl {
		delete(c.entries, projectID)
		logger.Debug("Dashboard: evicted expired summary for project %s", projectID)
		return Summary{}, false
	}
	return copySummary(e.summary), true
}

// Set stores a summary for the project, replacing any existing entry and
// restarting its TTL.
func (c *Cache) Set(projectID string, summary Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[projectID] = entry{summary: copySummary(summary), cachedAt: c.now()}
}

// Invalidate drops the project's entry. Safe on unknown projects.
func (c *Cache) Invalidate(projectID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, projectID)
}

// InvalidateAll drops every entry.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

// copySummary duplicates the session slice so callers cannot mutate a
// cached entry through a returned (or retained) summary.
func copySummary(s Summary) Summary {
	copied := s
	copied.Sessions = append([]SessionSummary(nil), s.Sessions...)
	return copied
}

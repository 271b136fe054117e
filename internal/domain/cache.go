package domain

import (
	"fmt"
	"sync"
	"time"
)

// TTL classes for cached Insight Hub lookups. Short-lived entries cover
// records that change between calls (builds, releases), medium entries
// cover bulk lists, and long entries cover identity data that is stable
// for the life of a credential.
const (
	ShortTTL  = 5 * time.Minute
	MediumTTL = time.Hour
	LongTTL   = 24 * time.Hour
)

// cacheKind enumerates the kinds of cache keys used by the resolvers.
// Using a closed set of kinds prevents ad-hoc string concatenation from
// colliding across logically different value shapes.
type cacheKind string

const (
	kindOrg                 cacheKind = "org"
	kindProjects            cacheKind = "projects"
	kindCurrentProject      cacheKind = "current_project"
	kindCurrentEventFilters cacheKind = "current_project_event_filters"
	kindProjectLookup       cacheKind = "project_lookup"
	kindBuild               cacheKind = "build"
	kindRelease             cacheKind = "release"
	kindStabilityTargets    cacheKind = "stability_targets"
)

// CacheKey identifies one cached value. Keys are either static (one per
// kind) or scoped to an entity id.
type CacheKey struct {
	kind cacheKind
	id   string
}

// String returns the namespaced string form of the key.
func (k CacheKey) String() string {
	if k.id == "" {
		return string(k.kind)
	}
	return fmt.Sprintf("%s_%s", k.kind, k.id)
}

// OrgKey is the key for the resolved organization.
func OrgKey() CacheKey { return CacheKey{kind: kindOrg} }

// ProjectsKey is the key for the bulk project list.
func ProjectsKey() CacheKey { return CacheKey{kind: kindProjects} }

// CurrentProjectKey is the key for the project bound to the configured
// project API key.
func CurrentProjectKey() CacheKey { return CacheKey{kind: kindCurrentProject} }

// CurrentProjectEventFiltersKey is the key for the current project's
// filterable event field set.
func CurrentProjectEventFiltersKey() CacheKey { return CacheKey{kind: kindCurrentEventFilters} }

// ProjectLookupKey is the per-id project lookup key.
func ProjectLookupKey(projectID string) CacheKey {
	return CacheKey{kind: kindProjectLookup, id: projectID}
}

// BuildKey is the per-id annotated build key.
func BuildKey(buildID string) CacheKey { return CacheKey{kind: kindBuild, id: buildID} }

// ReleaseKey is the per-id annotated release key.
func ReleaseKey(releaseID string) CacheKey { return CacheKey{kind: kindRelease, id: releaseID} }

// StabilityTargetsKey is the per-project stability targets key.
func StabilityTargetsKey(projectID string) CacheKey {
	return CacheKey{kind: kindStabilityTargets, id: projectID}
}

// Cache is a process-local key/value store with per-entry time-to-live.
// A miss and an expired entry are indistinguishable to the caller; both
// should trigger a refetch. Implementations must tolerate concurrent
// Get/Set on the same key. At-most-once population is not guaranteed:
// two concurrent misses may both fetch and both write, and the last
// write wins.
type Cache interface {
	// Get returns the cached value for key, or ok=false when the key is
	// absent or the entry has expired.
	Get(key CacheKey) (interface{}, bool)

	// Set stores value under key with the given time-to-live.
	Set(key CacheKey, value interface{}, ttl time.Duration)
}

// cacheEntry holds one cached value with its expiry time.
type cacheEntry struct {
	value     interface{}
	expiresAt time.Time
}

// MemoryCache is the default in-memory Cache implementation.
// Expired entries are not actively evicted; they read as absent and are
// replaced on the next Set for the same key.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry

	// now is replaceable for tests.
	now func() time.Time
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Get implements Cache.
func (c *MemoryCache) Get(key CacheKey) (interface{}, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key.String()]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.value, true
}

// Set implements Cache.
func (c *MemoryCache) Set(key CacheKey, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key.String()] = cacheEntry{
		value:     value,
		expiresAt: c.now().Add(ttl),
	}
}

package catalog

import (
	"os"
	"path/filepath"
	"sort"

	"frozenkv/internal/collection"
	"frozenkv/internal/frozenerr"
)

// feedState is the per-collection feed lifecycle: Idle -> Feeding ->
// Swapping -> Idle. It exists only to catch programmer misuse (calling
// FeedItem before BeginFeed, or BeginFeed while already feeding); the
// spec's concurrency model serializes these calls per collection name via
// entry.mu, so feedState never needs its own lock.
type feedState int

const (
	stateIdle feedState = iota
	stateFeeding
	stateSwapping
)

// BeginFeed validates the request and creates a staging Collection Store
// for version. It fails with NotOpen, NotFound, VersionExists, or
// VersionNotNewer depending on the catalog and collection's current state.
func (c *Catalog) BeginFeed(name, version string) error {
	if !c.opened.Load() {
		return frozenerr.NotOpen("catalog not open")
	}

	c.mu.RLock()
	e, ok := c.collections[name]
	c.mu.RUnlock()
	if !ok {
		return frozenerr.NotFound("collection not found").WithDetail("collection", name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != stateIdle {
		return frozenerr.InvalidRequest("a feed is already in progress for this collection").
			WithDetail("collection", name)
	}

	// A version strictly older than the current last_version is rejected
	// as VersionNotNewer even if a directory of that name happens to
	// still be on disk (e.g. retained by max_versions_to_keep); a version
	// equal to the current last_version names the active directory
	// itself, which always exists, so that case is reported as
	// VersionExists instead.
	if e.version != "" {
		if versionLess(version, e.version) {
			return frozenerr.VersionNotNewer("version is not newer than the current last_version").
				WithDetail("version", version).WithDetail("last_version", e.version)
		}
		if versionsEqual(version, e.version) {
			return frozenerr.VersionExists("version already exists").WithDetail("version", version)
		}
	}

	collDir := filepath.Join(c.root, name)
	versionDir := filepath.Join(collDir, version)
	if _, err := os.Stat(versionDir); err == nil {
		return frozenerr.VersionExists("version directory already exists").WithDetail("version", version)
	}
	if err := os.Mkdir(versionDir, 0o755); err != nil {
		return frozenerr.IoError(err, "create version directory").WithDetail("version", version)
	}

	staging, err := collection.OpenStaging(versionDir, e.metadata.K(), segmentCaps(e.metadata))
	if err != nil {
		os.RemoveAll(versionDir)
		return err
	}

	e.staging = staging
	e.stagingVersion = version
	e.stagingDir = versionDir
	e.state = stateFeeding
	c.logger.Infow("feed started", "collection", name, "version", version)
	return nil
}

func versionsEqual(a, b string) bool {
	return versionLessOrEqual(a, b) && versionLessOrEqual(b, a)
}

// FeedItem stores one item into the collection's staging store. Callers
// MUST call BeginFeed first; any storage error aborts the feed and
// disposes the staging store (see AbortFeed).
func (c *Catalog) FeedItem(name string, item collection.Item) error {
	e, err := c.feedingEntry(name)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != stateFeeding {
		return frozenerr.InvalidRequest("no feed in progress").WithDetail("collection", name)
	}
	if err := e.staging.Store(item); err != nil {
		c.abortFeedLocked(name, e)
		return err
	}
	return nil
}

func (c *Catalog) feedingEntry(name string) (*entry, error) {
	if !c.opened.Load() {
		return nil, frozenerr.NotOpen("catalog not open")
	}
	c.mu.RLock()
	e, ok := c.collections[name]
	c.mu.RUnlock()
	if !ok {
		return nil, frozenerr.NotFound("collection not found").WithDetail("collection", name)
	}
	return e, nil
}

// EndFeed finalizes the staging store's index and atomically swaps it in
// as the active version, disposing the previously active store. Retention
// then prunes version directories beyond max_versions_to_keep.
func (c *Catalog) EndFeed(name string) error {
	e, err := c.feedingEntry(name)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != stateFeeding {
		return frozenerr.InvalidRequest("no feed in progress").WithDetail("collection", name)
	}

	e.state = stateSwapping
	e.staging.EndOfFeed()

	previous := e.active
	previousVersion := e.version

	e.active = e.staging
	e.version = e.stagingVersion
	e.staging = nil
	stagedVersion := e.stagingVersion
	e.stagingVersion = ""
	e.stagingDir = ""
	e.state = stateIdle

	if previous != nil {
		if err := previous.Close(); err != nil {
			c.logger.Warnw("error closing previous active store", "collection", name, "error", err)
		}
	}

	c.logger.Infow("feed completed", "collection", name, "version", stagedVersion, "previous_version", previousVersion)

	if e.metadata.MaxVersionsToKeep > 0 {
		c.pruneVersionsLocked(name, e)
	}
	return nil
}

// AbortFeed disposes the staging store and deletes its version directory,
// returning the collection to Idle. Called on any error mid-feed.
func (c *Catalog) AbortFeed(name string) {
	e, err := c.feedingEntry(name)
	if err != nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	c.abortFeedLocked(name, e)
}

func (c *Catalog) abortFeedLocked(name string, e *entry) {
	if e.staging != nil {
		if err := e.staging.Close(); err != nil {
			c.logger.Warnw("error closing staging store during abort", "collection", name, "error", err)
		}
	}
	if e.stagingDir != "" {
		if err := os.RemoveAll(e.stagingDir); err != nil {
			c.logger.Warnw("error removing staging directory during abort", "collection", name, "dir", e.stagingDir, "error", err)
		}
	}
	e.staging = nil
	e.stagingVersion = ""
	e.stagingDir = ""
	e.state = stateIdle
}

// pruneVersionsLocked deletes the oldest version directories beyond
// max_versions_to_keep, never the active one. e.mu is already held.
func (c *Catalog) pruneVersionsLocked(name string, e *entry) {
	collDir := filepath.Join(c.root, name)
	dirEntries, err := os.ReadDir(collDir)
	if err != nil {
		c.logger.Warnw("retention: cannot list collection directory", "collection", name, "error", err)
		return
	}
	var versions []string
	for _, de := range dirEntries {
		if de.IsDir() {
			versions = append(versions, de.Name())
		}
	}
	sort.Slice(versions, func(i, j int) bool { return versionLess(versions[i], versions[j]) })

	if len(versions) <= e.metadata.MaxVersionsToKeep {
		return
	}
	toDelete := versions[:len(versions)-e.metadata.MaxVersionsToKeep]
	for _, v := range toDelete {
		if v == e.version {
			continue
		}
		path := filepath.Join(collDir, v)
		if err := os.RemoveAll(path); err != nil {
			c.logger.Warnw("retention: failed to remove old version", "collection", name, "version", v, "error", err)
			continue
		}
		c.logger.Infow("retention: removed old version", "collection", name, "version", v)
	}
}

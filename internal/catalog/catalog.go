package catalog

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"frozenkv/internal/collection"
	"frozenkv/internal/frozenerr"
	"frozenkv/internal/segment"
)

const metadataFileName = "metadata.json"

// Config bundles what a Catalog needs to construct: root directory, logger,
// and the per-collection segment cache size, injected explicitly rather
// than read from package-level state.
type Config struct {
	Root             string
	Logger           *zap.SugaredLogger
	SegmentCacheSize int // bound on simultaneously mmap'd segments per version loaded by Open; 0 = unbounded. A version published by EndFeed keeps all its segments mapped.
}

// entry is the catalog's bookkeeping for one named collection: its
// metadata, the active published Store (nil before any successful feed),
// and the in-flight staging state during a feed. mu serializes every
// create/drop/feed-swap against this one collection so two concurrent
// feeds can never race each other's swap.
type entry struct {
	mu       sync.Mutex
	metadata Metadata
	active   *collection.Store
	version  string // name of the directory backing `active`; "" if none

	state          feedState
	staging        *collection.Store
	stagingVersion string
	stagingDir     string
}

// Catalog is the Data Store: it exclusively owns the root directory tree.
type Catalog struct {
	root      string
	logger    *zap.SugaredLogger
	cacheSize int

	opened atomic.Bool

	mu          sync.RWMutex // guards the collections map itself (membership, not per-entry state)
	collections map[string]*entry
}

// New constructs a Catalog bound to cfg.Root without touching the
// filesystem yet; Open() performs the actual directory scan.
func New(cfg Config) *Catalog {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Catalog{
		root:        cfg.Root,
		logger:      logger,
		cacheSize:   cfg.SegmentCacheSize,
		collections: make(map[string]*entry),
	}
}

// Open scans root for collection subdirectories, reading each one's
// metadata and, where a version directory exists, constructing a
// Collection Store on the lexicographically greatest one. Open is an
// idempotent guard: a second call fails AlreadyOpen.
func (c *Catalog) Open() error {
	if !c.opened.CompareAndSwap(false, true) {
		return frozenerr.AlreadyOpen("catalog already open")
	}

	if err := os.MkdirAll(c.root, 0o755); err != nil {
		return frozenerr.IoError(err, "create root directory").WithDetail("root", c.root)
	}

	dirEntries, err := os.ReadDir(c.root)
	if err != nil {
		return frozenerr.IoError(err, "read root directory").WithDetail("root", c.root)
	}

	for _, de := range dirEntries {
		if !de.IsDir() {
			continue
		}
		name := de.Name()
		collDir := filepath.Join(c.root, name)
		md, err := readMetadata(filepath.Join(collDir, metadataFileName))
		if err != nil {
			c.logger.Warnw("skipping directory without readable metadata", "collection", name, "error", err)
			continue
		}

		e := &entry{metadata: md}
		greatest, err := greatestVersionDir(collDir)
		if err != nil {
			return err
		}
		if greatest != "" {
			store, err := collection.Open(filepath.Join(collDir, greatest), md.K(), segmentCaps(md), c.cacheSize)
			if err != nil {
				return err
			}
			e.active = store
			e.version = greatest
		}
		c.collections[name] = e
	}
	return nil
}

func segmentCaps(md Metadata) segment.Caps {
	return segment.Caps{
		MaxItemsPerSegment:       md.MaxItemsPerSegment,
		SegmentDataCapacityBytes: md.SegmentDataCapacityBytes,
	}
}

func greatestVersionDir(collDir string) (string, error) {
	entries, err := os.ReadDir(collDir)
	if err != nil {
		return "", frozenerr.IoError(err, "read collection directory").WithDetail("dir", collDir)
	}
	var versions []string
	for _, e := range entries {
		if e.IsDir() {
			versions = append(versions, e.Name())
		}
	}
	if len(versions) == 0 {
		return "", nil
	}
	sort.Slice(versions, func(i, j int) bool { return versionLess(versions[i], versions[j]) })
	return versions[len(versions)-1], nil
}

// CreateCollection writes metadata.json into a new collection directory.
// Fails AlreadyExists if the directory already exists.
func (c *Catalog) CreateCollection(md Metadata) error {
	if !c.opened.Load() {
		return frozenerr.NotOpen("catalog not open")
	}

	c.mu.Lock()
	if _, exists := c.collections[md.Name]; exists {
		c.mu.Unlock()
		return frozenerr.AlreadyExists("collection already exists").WithDetail("collection", md.Name)
	}
	e := &entry{}
	c.collections[md.Name] = e
	c.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	md.CreatedAt = time.Now().UTC()
	collDir := filepath.Join(c.root, md.Name)
	if err := os.Mkdir(collDir, 0o755); err != nil {
		c.removeCollectionEntry(md.Name)
		if os.IsExist(err) {
			return frozenerr.AlreadyExists("collection directory already exists").WithDetail("collection", md.Name)
		}
		return frozenerr.IoError(err, "create collection directory").WithDetail("collection", md.Name)
	}
	if err := writeMetadata(filepath.Join(collDir, metadataFileName), md); err != nil {
		os.RemoveAll(collDir)
		c.removeCollectionEntry(md.Name)
		return frozenerr.IoError(err, "write collection metadata").WithDetail("collection", md.Name)
	}

	e.metadata = md
	c.logger.Infow("collection created", "collection", md.Name, "indexes", len(md.Indexes))
	return nil
}

func (c *Catalog) removeCollectionEntry(name string) {
	c.mu.Lock()
	delete(c.collections, name)
	c.mu.Unlock()
}

// DropCollection closes the active store (if any) and removes the
// collection directory recursively. Fails NotFound if absent.
func (c *Catalog) DropCollection(name string) error {
	if !c.opened.Load() {
		return frozenerr.NotOpen("catalog not open")
	}

	c.mu.Lock()
	e, ok := c.collections[name]
	if !ok {
		c.mu.Unlock()
		return frozenerr.NotFound("collection not found").WithDetail("collection", name)
	}
	delete(c.collections, name)
	c.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active != nil {
		if err := e.active.Close(); err != nil {
			c.logger.Warnw("error closing active store on drop", "collection", name, "error", err)
		}
	}
	if err := os.RemoveAll(filepath.Join(c.root, name)); err != nil {
		return frozenerr.IoError(err, "remove collection directory").WithDetail("collection", name)
	}
	c.logger.Infow("collection dropped", "collection", name)
	return nil
}

// CollectionDescription is one entry of GetCollectionsInformation's result.
type CollectionDescription struct {
	Name                     string
	Indexes                  []IndexDescriptor
	LastVersion              *string
	ObjectCount              int
	NonUniqueKeys            int
	TotalSizeBytes           int64
	MaxItemsPerSegment       int
	SegmentDataCapacityBytes int
}

// GetCollectionsInformation enumerates every collection and its derived
// last_version plus live totals from the active store, if any.
func (c *Catalog) GetCollectionsInformation() (map[string]CollectionDescription, error) {
	if !c.opened.Load() {
		return nil, frozenerr.NotOpen("catalog not open")
	}

	c.mu.RLock()
	names := make([]string, 0, len(c.collections))
	entries := make([]*entry, 0, len(c.collections))
	for name, e := range c.collections {
		names = append(names, name)
		entries = append(entries, e)
	}
	c.mu.RUnlock()

	out := make(map[string]CollectionDescription, len(names))
	for i, name := range names {
		e := entries[i]
		e.mu.Lock()
		desc := CollectionDescription{
			Name:                     name,
			Indexes:                  e.metadata.Indexes,
			MaxItemsPerSegment:       e.metadata.MaxItemsPerSegment,
			SegmentDataCapacityBytes: e.metadata.SegmentDataCapacityBytes,
		}
		if e.active != nil {
			v := e.version
			desc.LastVersion = &v
			desc.ObjectCount = e.active.ObjectCount()
			desc.NonUniqueKeys = e.active.NonUniqueKeys()
			desc.TotalSizeBytes = e.active.TotalSizeBytes()
		}
		e.mu.Unlock()
		out[name] = desc
	}
	return out, nil
}

// GetByPrimaryKey delegates to the active store's lookup.
func (c *Catalog) GetByPrimaryKey(name string, key int64) ([][]byte, error) {
	if !c.opened.Load() {
		return nil, frozenerr.NotOpen("catalog not open")
	}

	c.mu.RLock()
	e, ok := c.collections[name]
	c.mu.RUnlock()
	if !ok {
		return nil, frozenerr.NotFound("collection not found").WithDetail("collection", name)
	}

	e.mu.Lock()
	active := e.active
	e.mu.Unlock()
	if active == nil {
		return nil, nil
	}
	return active.GetByPrimary(key)
}

// Close shuts down every active store.
func (c *Catalog) Close() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var firstErr error
	for _, e := range c.collections {
		e.mu.Lock()
		if e.active != nil {
			if err := e.active.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		e.mu.Unlock()
	}
	return firstErr
}

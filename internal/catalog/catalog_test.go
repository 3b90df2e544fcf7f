package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"frozenkv/internal/collection"
	"frozenkv/internal/frozenerr"
)

func newOpenCatalog(t *testing.T) *Catalog {
	t.Helper()
	cat := New(Config{Root: t.TempDir()})
	require.NoError(t, cat.Open())
	return cat
}

func personsMetadata() Metadata {
	return Metadata{
		Name: "persons",
		Indexes: []IndexDescriptor{
			{Name: "id", Unique: true},
			{Name: "name", Unique: false},
			{Name: "age", Unique: false},
		},
		MaxItemsPerSegment:       1_000_000,
		SegmentDataCapacityBytes: 1_000_000_000,
		MaxVersionsToKeep:        10,
	}
}

// E1 — Empty store.
func TestE1EmptyStore(t *testing.T) {
	cat := newOpenCatalog(t)
	info, err := cat.GetCollectionsInformation()
	require.NoError(t, err)
	require.Empty(t, info)
}

// E2 — Create and drop.
func TestE2CreateAndDrop(t *testing.T) {
	cat := newOpenCatalog(t)
	require.NoError(t, cat.CreateCollection(personsMetadata()))

	info, err := cat.GetCollectionsInformation()
	require.NoError(t, err)
	require.Len(t, info, 1)
	require.Nil(t, info["persons"].LastVersion)

	require.NoError(t, cat.DropCollection("persons"))
	info, err = cat.GetCollectionsInformation()
	require.NoError(t, err)
	require.Empty(t, info)

	err = cat.DropCollection("persons")
	require.True(t, frozenerr.Is(err, frozenerr.CodeNotFound))
}

// E3 — Small feed + lookup.
func TestE3SmallFeedAndLookup(t *testing.T) {
	cat := newOpenCatalog(t)
	md := personsMetadata()
	md.Indexes = []IndexDescriptor{{Name: "id", Unique: true}, {Name: "client_id", Unique: false}}
	require.NoError(t, cat.CreateCollection(md))

	require.NoError(t, cat.BeginFeed("persons", "001"))
	require.NoError(t, cat.FeedItem("persons", collection.Item{Data: make([]byte, 100), Keys: []int64{1, 200}}))
	require.NoError(t, cat.FeedItem("persons", collection.Item{Data: make([]byte, 1000), Keys: []int64{2, 300}}))
	require.NoError(t, cat.EndFeed("persons"))

	got, err := cat.GetByPrimaryKey("persons", 2)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Len(t, got[0], 1000)

	info, err := cat.GetCollectionsInformation()
	require.NoError(t, err)
	require.Equal(t, "001", *info["persons"].LastVersion)
}

// E5 — Version monotonicity.
func TestE5VersionMonotonicity(t *testing.T) {
	cat := newOpenCatalog(t)
	md := personsMetadata()
	md.Indexes = []IndexDescriptor{{Name: "id", Unique: true}}
	require.NoError(t, cat.CreateCollection(md))

	require.NoError(t, cat.BeginFeed("persons", "v1"))
	require.NoError(t, cat.FeedItem("persons", collection.Item{Data: []byte("a"), Keys: []int64{1}}))
	require.NoError(t, cat.EndFeed("persons"))

	require.NoError(t, cat.BeginFeed("persons", "v2"))
	require.NoError(t, cat.FeedItem("persons", collection.Item{Data: []byte("b"), Keys: []int64{2}}))
	require.NoError(t, cat.EndFeed("persons"))

	err := cat.BeginFeed("persons", "v1")
	require.True(t, frozenerr.Is(err, frozenerr.CodeVersionNotNewer))

	err = cat.BeginFeed("persons", "v2")
	require.True(t, frozenerr.Is(err, frozenerr.CodeVersionExists))
}

func TestAbortFeedCleansUpStagingDirectory(t *testing.T) {
	cat := newOpenCatalog(t)
	md := personsMetadata()
	md.Indexes = []IndexDescriptor{{Name: "id", Unique: true}}
	md.SegmentDataCapacityBytes = 8
	md.MaxItemsPerSegment = 10
	require.NoError(t, cat.CreateCollection(md))

	require.NoError(t, cat.BeginFeed("persons", "v1"))
	err := cat.FeedItem("persons", collection.Item{Data: make([]byte, 100), Keys: []int64{1}})
	require.True(t, frozenerr.Is(err, frozenerr.CodeItemTooLarge))

	cat.AbortFeed("persons")

	_, statErr := os.Stat(filepath.Join(cat.root, "persons", "v1"))
	require.True(t, statErr != nil)

	// Collection is back to Idle and can be fed again with the same version.
	require.NoError(t, cat.BeginFeed("persons", "v1"))
}

package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"frozenkv/internal/catalog"
	"frozenkv/internal/connector"
	"frozenkv/internal/wire/feedbatch"
)

func startTestServer(t *testing.T) (*Server, *catalog.Catalog) {
	t.Helper()
	cat := catalog.New(catalog.Config{Root: t.TempDir()})
	require.NoError(t, cat.Open())

	srv := New(Config{ListenAddr: "127.0.0.1:0", Catalog: cat})
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve()
	}()

	require.Eventually(t, func() bool { return srv.Addr() != nil }, time.Second, time.Millisecond)

	t.Cleanup(func() {
		srv.Stop()
		<-done
		cat.Close()
	})
	return srv, cat
}

func TestPingRoundTrip(t *testing.T) {
	srv, _ := startTestServer(t)
	c, err := connector.Connect(srv.Addr().String())
	require.NoError(t, err)
	defer c.Close()

	require.True(t, c.Ping())
}

func TestCreateFeedQueryDropOverTheWire(t *testing.T) {
	srv, _ := startTestServer(t)
	c, err := connector.Connect(srv.Addr().String())
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.CreateCollection("persons", "id", []string{"name"}))

	// A second CreateCollection for the same name fails AlreadyExists; the
	// client only sees a failed status, not the code, so just assert
	// failure.
	require.Error(t, c.CreateCollection("persons", "id", nil))

	items := make(chan feedbatch.Item, 2)
	items <- feedbatch.Item{Keys: []int64{1, 100}, Data: []byte("alice")}
	items <- feedbatch.Item{Keys: []int64{2, 200}, Data: []byte("bob")}
	close(items)
	require.NoError(t, c.Feed("persons", "001", items))

	resp, err := c.QueryByPrimaryKey("persons", []int64{1, 2, 999})
	require.NoError(t, err)
	require.True(t, resp.SingleAnswer)
	require.Equal(t, [][]byte{[]byte("alice"), []byte("bob")}, resp.ObjectsData)
	require.Equal(t, "persons", *resp.Collection)

	desc, err := c.GetCollectionsDescription()
	require.NoError(t, err)
	require.Len(t, desc.Collections, 1)
	require.Equal(t, "persons", desc.Collections[0].Name)
	require.Equal(t, "001", *desc.Collections[0].LastVersion)
	require.Equal(t, int32(2), desc.Collections[0].Count)

	require.NoError(t, c.DropCollection("persons"))
	require.Error(t, c.DropCollection("persons"))
}

func TestVersionMonotonicityOverTheWire(t *testing.T) {
	srv, _ := startTestServer(t)
	c, err := connector.Connect(srv.Addr().String())
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.CreateCollection("persons", "id", nil))

	feedOne := make(chan feedbatch.Item, 1)
	feedOne <- feedbatch.Item{Keys: []int64{1}, Data: []byte("a")}
	close(feedOne)
	require.NoError(t, c.Feed("persons", "v1", feedOne))

	feedAgain := make(chan feedbatch.Item)
	close(feedAgain)
	require.Error(t, c.Feed("persons", "v1", feedAgain))
}

package aggregator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"frozenkv/internal/catalog"
	"frozenkv/internal/pool"
	"frozenkv/internal/server"
	"frozenkv/internal/wire/feedbatch"
)

type testReplica struct {
	cat *catalog.Catalog
	srv *server.Server
}

func startReplica(t *testing.T) *testReplica {
	t.Helper()
	cat := catalog.New(catalog.Config{Root: t.TempDir()})
	require.NoError(t, cat.Open())

	srv := server.New(server.Config{ListenAddr: "127.0.0.1:0", Catalog: cat})
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
	return &testReplica{cat: cat, srv: srv}
}

func TestFanOutFeedAndQueryAcrossReplicas(t *testing.T) {
	const n = 3
	replicas := make([]*testReplica, n)
	pools := make([]*pool.Pool, n)
	for i := 0; i < n; i++ {
		replicas[i] = startReplica(t)
		p := pool.New(pool.Config{Addr: replicas[i].srv.Addr().String(), Capacity: 2, WatchdogPeriod: 20 * time.Millisecond})
		p.Start()
		t.Cleanup(p.Stop)
		require.Eventually(t, p.IsConnected, time.Second, time.Millisecond)
		pools[i] = p
	}

	agg := New(pools, nil)

	require.NoError(t, agg.DeclareCollection("persons", "id", []string{"name"}))

	const itemCount = 50
	items := make(chan feedbatch.Item, itemCount)
	for i := 0; i < itemCount; i++ {
		items <- feedbatch.Item{Keys: []int64{int64(i)}, Data: []byte{byte(i)}}
	}
	close(items)
	require.NoError(t, agg.Feed("persons", "001", items))

	for i := 0; i < n; i++ {
		info, err := replicas[i].cat.GetCollectionsInformation()
		require.NoError(t, err)
		require.Equal(t, itemCount, info["persons"].ObjectCount)
		require.Equal(t, "001", *info["persons"].LastVersion)
	}

	resp, err := agg.QueryByPrimaryKey("persons", []int64{0, 1, itemCount - 1})
	require.NoError(t, err)
	require.Len(t, resp.ObjectsData, 3)

	// E6 — stop one replica; fan-out queries still succeed via the rest.
	replicas[0].srv.Stop()
	require.Eventually(t, func() bool { return !pools[0].IsConnected() }, 2*time.Second, 10*time.Millisecond)

	_, err = agg.QueryByPrimaryKey("persons", []int64{0})
	require.NoError(t, err)
}

package feedbatch

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuilderRoundTrip(t *testing.T) {
	b := NewBuilder()
	b.Add(Item{Keys: []int64{1, 2}, Data: []byte("hello")})
	b.Add(Item{Keys: []int64{3}, Data: []byte("world")})

	var buf bytes.Buffer
	require.NoError(t, b.WriteTo(&buf))

	items, err := ReadBatch(&buf)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, []int64{1, 2}, items[0].Keys)
	require.Equal(t, "hello", string(items[0].Data))
	require.Equal(t, []int64{3}, items[1].Keys)
	require.Equal(t, "world", string(items[1].Data))
}

func TestEmptyBatchTerminates(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTerminator(&buf))

	items, err := ReadBatch(&buf)
	require.NoError(t, err)
	require.Nil(t, items)
}

package header

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	cases := []ObjectHeader{
		{OffsetInFile: 0, Length: 100, Keys: []int64{1, 200}},
		{OffsetInFile: 1000, Length: 1000, Keys: []int64{2, 300}},
		{OffsetInFile: 42, Length: 7, Keys: []int64{-5, 0, 9223372036854775807}},
	}
	for _, h := range cases {
		k := len(h.Keys)
		buf := make([]byte, Width(k))
		Encode(buf, h)
		got := Decode(buf, k)
		require.Equal(t, h, got)
		require.Equal(t, 8+8*k, len(buf))
	}
}

func TestEndMarker(t *testing.T) {
	m := EndMarker(2)
	require.True(t, m.IsEndMarker())

	buf := make([]byte, Width(2))
	Encode(buf, m)
	got := Decode(buf, 2)
	require.True(t, got.IsEndMarker())
}

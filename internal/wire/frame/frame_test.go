package frame

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, TagPing, nil))
	require.NoError(t, Write(&buf, TagStatusResponse, []byte("payload")))

	f1, err := Read(&buf)
	require.NoError(t, err)
	require.Equal(t, TagPing, f1.Tag)
	require.Empty(t, f1.Payload)
	f1.Release()

	f2, err := Read(&buf)
	require.NoError(t, err)
	require.Equal(t, TagStatusResponse, f2.Tag)
	require.Equal(t, "payload", string(f2.Payload))
	f2.Release()
}

func TestFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, TagStatusResponse, make([]byte, MaxPayloadSize)))

	// Corrupt the length prefix to exceed MaxPayloadSize.
	raw := buf.Bytes()
	raw[4] = 0xff
	raw[5] = 0xff
	raw[6] = 0xff
	raw[7] = 0x7f

	_, err := Read(bytes.NewReader(raw))
	require.Error(t, err)
}

package payload_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/akonadid/pkg/payload"
)

func TestWriteReadDelete(t *testing.T) {
	store, err := payload.NewStore(t.TempDir())
	require.NoError(t, err)

	name, size, err := store.Write([]byte("hello world"))
	require.NoError(t, err)
	require.EqualValues(t, 11, size)
	require.True(t, store.Exists(name))

	data, err := store.Read(name)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(data))

	require.NoError(t, store.Delete(name))
	require.False(t, store.Exists(name))
	require.NoError(t, store.Delete(name)) // idempotent
}

func TestWriteFromStream(t *testing.T) {
	store, err := payload.NewStore(t.TempDir())
	require.NoError(t, err)

	name, size, err := store.WriteFrom(bytes.NewReader([]byte("streamed payload")))
	require.NoError(t, err)
	require.EqualValues(t, len("streamed payload"), size)

	data, err := store.Read(name)
	require.NoError(t, err)
	require.Equal(t, "streamed payload", string(data))
}

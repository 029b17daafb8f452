package protocol

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/akonadid/pkg/notify"
	"github.com/cuemby/akonadid/pkg/payload"
	"github.com/cuemby/akonadid/pkg/storage"
)

func newTestDepsWithPayload(t *testing.T) (Deps, *payload.Store) {
	t.Helper()
	ctx := context.Background()
	store, err := storage.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	bus := notify.NewBus()
	bus.Start()
	t.Cleanup(bus.Stop)
	payloadStore, err := payload.NewStore(t.TempDir())
	require.NoError(t, err)
	return Deps{Store: store, Bus: bus, Payload: payloadStore}, payloadStore
}

func TestAppendExternalizesLargePart(t *testing.T) {
	deps, payloadStore := newTestDepsWithPayload(t)
	c := newPipeClient(t, deps)

	c.send(`A1 LOGIN "client1"`)
	require.Contains(t, c.readLine(), "A1 OK")
	c.send(`A2 RESSELECT "myresource"`)
	require.Contains(t, c.readLine(), "A2 OK")
	c.send(`A3 COLLECTIONCREATE "inbox"`)
	require.Contains(t, c.readLine(), "A3 OK")
	c.send(`A4 SELECT 2`)
	require.Contains(t, c.readLine(), "A4 OK")

	large := strings.Repeat("x", externalPayloadThreshold+1)
	c.send(fmt.Sprintf(`A5 APPEND text/plain () "r1" (PLD:RFC822) {%d}
%s`, len(large), large))
	require.Contains(t, c.readLine(), "APPEND completed")
	require.Contains(t, c.readLine(), "A5 OK")

	session, err := deps.Store.NewSession(context.Background())
	require.NoError(t, err)
	defer session.Close()
	part, err := session.GetPart(context.Background(), 1, "PLD:RFC822")
	require.NoError(t, err)
	require.True(t, part.External)
	require.NotEmpty(t, part.Path)
	require.True(t, payloadStore.Exists(part.Path))

	c.send(`A6 FETCH UID 1:* (PLD:RFC822)`)
	fetchLine := c.readLine()
	require.Contains(t, fetchLine, large)
	require.Contains(t, c.readLine(), "A6 OK")
}

func TestRemoveUnlinksExternalFileAfterCommit(t *testing.T) {
	deps, payloadStore := newTestDepsWithPayload(t)
	c := newPipeClient(t, deps)

	c.send(`A1 LOGIN "client1"`)
	require.Contains(t, c.readLine(), "A1 OK")
	c.send(`A2 RESSELECT "myresource"`)
	require.Contains(t, c.readLine(), "A2 OK")
	c.send(`A3 COLLECTIONCREATE "inbox"`)
	require.Contains(t, c.readLine(), "A3 OK")
	c.send(`A4 SELECT 2`)
	require.Contains(t, c.readLine(), "A4 OK")

	large := strings.Repeat("y", externalPayloadThreshold+1)
	c.send(fmt.Sprintf(`A5 APPEND text/plain () "r1" (PLD:RFC822) {%d}
%s`, len(large), large))
	require.Contains(t, c.readLine(), "APPEND completed")
	require.Contains(t, c.readLine(), "A5 OK")

	session, err := deps.Store.NewSession(context.Background())
	require.NoError(t, err)
	part, err := session.GetPart(context.Background(), 1, "PLD:RFC822")
	require.NoError(t, err)
	filePath := payloadStore.Path(part.Path)
	require.NoError(t, session.Close())

	c.send(`A6 REMOVE UID 1:*`)
	require.Contains(t, c.readLine(), "A6 OK")

	_, err = os.Stat(filePath)
	require.True(t, os.IsNotExist(err))
}

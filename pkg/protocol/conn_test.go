package protocol

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/akonadid/pkg/notify"
	"github.com/cuemby/akonadid/pkg/storage"
)

type pipeClient struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func (c *pipeClient) send(line string) {
	c.t.Helper()
	_, err := c.conn.Write([]byte(line + "\r\n"))
	require.NoError(c.t, err)
}

func (c *pipeClient) readLine() string {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := c.r.ReadString('\n')
	require.NoError(c.t, err)
	return line
}

func newPipeClient(t *testing.T, deps Deps) *pipeClient {
	t.Helper()
	clientSide, serverSide := net.Pipe()
	ctx := context.Background()
	c, err := NewConn(ctx, serverSide, deps)
	require.NoError(t, err)
	go c.Serve(ctx)
	t.Cleanup(func() { clientSide.Close() })
	return &pipeClient{t: t, conn: clientSide, r: bufio.NewReader(clientSide)}
}

func newTestDeps(t *testing.T) Deps {
	t.Helper()
	ctx := context.Background()
	store, err := storage.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	bus := notify.NewBus()
	bus.Start()
	t.Cleanup(bus.Stop)
	return Deps{Store: store, Bus: bus}
}

func TestLoginResSelectSelectAppendFetch(t *testing.T) {
	deps := newTestDeps(t)
	c := newPipeClient(t, deps)

	c.send(`A1 LOGIN "client1"`)
	require.Contains(t, c.readLine(), "A1 OK")

	c.send(`A2 RESSELECT "myresource"`)
	require.Contains(t, c.readLine(), "A2 OK")

	c.send(`A3 COLLECTIONCREATE "inbox"`)
	require.Contains(t, c.readLine(), "A3 OK")

	c.send(`A4 SELECT 2`)
	require.Contains(t, c.readLine(), "A4 OK")

	c.send(`A5 APPEND text/plain () "r1" (PLD:RFC822) {5}
hello`)
	require.Contains(t, c.readLine(), "APPEND completed")
	require.Contains(t, c.readLine(), "A5 OK")

	c.send(`A6 FETCH UID 1:* (PLD:RFC822)`)
	fetchLine := c.readLine()
	require.Contains(t, fetchLine, "FETCH")
	require.Contains(t, fetchLine, "hello")
	require.Contains(t, c.readLine(), "A6 OK")

	c.send(`A7 LOGOUT`)
	require.Contains(t, c.readLine(), "BYE")
}

func TestUnknownVerbReturnsBad(t *testing.T) {
	deps := newTestDeps(t)
	c := newPipeClient(t, deps)

	c.send(`A1 BOGUSVERB`)
	require.Contains(t, c.readLine(), "BAD")
}

func TestVerbIsCaseInsensitive(t *testing.T) {
	deps := newTestDeps(t)
	c := newPipeClient(t, deps)

	c.send(`A1 login "client1"`)
	require.Contains(t, c.readLine(), "A1 OK")

	c.send(`A2 Resselect "myresource"`)
	require.Contains(t, c.readLine(), "A2 OK")
}

func TestSelectBeforeLoginRejected(t *testing.T) {
	deps := newTestDeps(t)
	c := newPipeClient(t, deps)

	c.send(`A1 SELECT 1`)
	require.Contains(t, c.readLine(), "BAD")
}

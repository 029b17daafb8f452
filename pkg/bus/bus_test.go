package bus_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/cuemby/akonadid/pkg/bus"
)

// requestItemDeliveryHandler implements the raw grpc.ServiceDesc handler shape
// for the one RPC this test exercises.
func requestItemDeliveryHandler(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	var req bus.RequestItemDeliveryArgs
	if err := dec(&req); err != nil {
		return nil, err
	}
	return &bus.RequestItemDeliveryReply{}, nil
}

var fakeResourceDesc = grpc.ServiceDesc{
	ServiceName: "org.freedesktop.Akonadi.Resource",
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RequestItemDelivery", Handler: requestItemDeliveryHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func TestResourceClientRoundTrip(t *testing.T) {
	registry, err := bus.NewRegistry(t.TempDir())
	require.NoError(t, err)

	serviceName := bus.ResourceServiceName("fake")
	l, err := registry.Listen(serviceName)
	require.NoError(t, err)

	srv := grpc.NewServer()
	srv.RegisterService(&fakeResourceDesc, struct{}{})
	bus.RegisterHealth(srv)
	go srv.Serve(l)
	defer srv.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := registry.Dial(ctx, serviceName)
	require.NoError(t, err)
	defer conn.Close()

	client := bus.NewResourceClient(conn)
	require.NoError(t, client.RequestItemDelivery(ctx, 1, "r1", "m", []string{"PLD:RFC822"}))
}

func TestRegistryOwnedReflectsSocketLifecycle(t *testing.T) {
	registry, err := bus.NewRegistry(t.TempDir())
	require.NoError(t, err)

	name := bus.ResourceServiceName("gone")
	require.False(t, registry.Owned(name))

	l, err := registry.Listen(name)
	require.NoError(t, err)
	require.True(t, registry.Owned(name))

	l.Close()
}

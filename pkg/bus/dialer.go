package bus

import (
	"context"

	"github.com/cuemby/akonadid/pkg/retrieval"
)

// ResourceDialer adapts a Registry into the retrieval.Dialer signature the item
// retrieval manager uses to reach resource processes.
func (r *Registry) ResourceDialer() retrieval.Dialer {
	return func(ctx context.Context, resourceName string) (retrieval.ResourceClient, error) {
		conn, err := r.Dial(ctx, ResourceServiceName(resourceName))
		if err != nil {
			return nil, err
		}
		return NewResourceClient(conn), nil
	}
}

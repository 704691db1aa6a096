package supervisor

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/marmos91/nvmeof-gateway/internal/logger"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// RendezvousServer is the one method the monitor-client subprocess
// calls to deliver this peer's assigned group id, per §6's "Monitor
// rendezvous" and §9's "callback-chained initialization... becomes
// explicit ordered startup". It uses genuine protobuf well-known
// types (Int32Value, Empty) rather than hand-authored message
// descriptors, since no .proto toolchain runs in this build.
type RendezvousServer interface {
	GroupID(ctx context.Context, req *wrapperspb.Int32Value) (*emptypb.Empty, error)
}

var rendezvousServiceDesc = grpc.ServiceDesc{
	ServiceName: "nvmeof.gateway.Rendezvous",
	HandlerType: (*RendezvousServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GroupID", Handler: rendezvousGroupIDHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rendezvous.proto",
}

func rendezvousGroupIDHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.Int32Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RendezvousServer).GroupID(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/nvmeof.gateway.Rendezvous/GroupID"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RendezvousServer).GroupID(ctx, req.(*wrapperspb.Int32Value))
	}
	return interceptor(ctx, in, info, handler)
}

// rendezvous is a one-shot RendezvousServer: its once-style latch
// resolves the first GroupID call and ignores (but acks) the rest.
type rendezvous struct {
	once    sync.Once
	groupID chan int32
}

func newRendezvous() *rendezvous {
	return &rendezvous{groupID: make(chan int32, 1)}
}

func (r *rendezvous) GroupID(ctx context.Context, req *wrapperspb.Int32Value) (*emptypb.Empty, error) {
	r.once.Do(func() {
		r.groupID <- req.GetValue()
	})
	return &emptypb.Empty{}, nil
}

// awaitGroupID blocks the caller until GroupID is invoked, or ctx is
// cancelled first.
func (r *rendezvous) awaitGroupID(ctx context.Context) (int32, error) {
	select {
	case gid := <-r.groupID:
		return gid, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// runRendezvousServer starts the one-shot gRPC server on addr and
// returns once a GroupID call resolves the latch (or ctx is done).
// The server keeps running in the background so late or duplicate
// calls from the monitor client don't error.
func runRendezvousServer(ctx context.Context, addr string) (int32, func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return 0, nil, fmt.Errorf("supervisor: listen rendezvous %s: %w", addr, err)
	}

	r := newRendezvous()
	srv := grpc.NewServer()
	srv.RegisterService(&rendezvousServiceDesc, r)

	go func() {
		if err := srv.Serve(ln); err != nil {
			logger.Debug("supervisor: rendezvous server stopped", "error", err)
		}
	}()

	stop := func() { srv.GracefulStop() }

	gid, err := r.awaitGroupID(ctx)
	if err != nil {
		stop()
		return 0, nil, err
	}
	return gid, stop, nil
}

package supervisor

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func TestRendezvousResolvesOnFirstCall(t *testing.T) {
	lis := bufconn.Listen(1024 * 1024)
	r := newRendezvous()
	srv := grpc.NewServer()
	srv.RegisterService(&rendezvousServiceDesc, r)
	go func() { _ = srv.Serve(lis) }()
	defer srv.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err = conn.Invoke(ctx, "/nvmeof.gateway.Rendezvous/GroupID", wrapperspb.Int32(7), &emptypb.Empty{})
	require.NoError(t, err)

	gid, err := r.awaitGroupID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(7), gid)
}

package dispatch

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/marmos91/nvmeof-gateway/pkg/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

func dialTestServer(t *testing.T, w *wireServer) (*grpc.ClientConn, func()) {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	desc := newResourceServiceDesc(w)
	srv := grpc.NewServer()
	srv.RegisterService(&desc, w)
	go func() { _ = srv.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	return conn, func() {
		_ = conn.Close()
		srv.Stop()
	}
}

func TestGetGatewayInfoRoundTripsOverGRPC(t *testing.T) {
	cfg := resource.DefaultConfig("gw-1", 0)
	svc := resource.New(cfg, nil, nil, nil)
	w := &wireServer{s: NewServer(svc)}

	conn, closeAll := dialTestServer(t, w)
	defer closeAll()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := structpb.NewStruct(map[string]interface{}{})
	require.NoError(t, err)
	reply := new(structpb.Struct)

	err = conn.Invoke(ctx, "/nvmeof.gateway.ResourceService/GetGatewayInfo", req, reply)
	require.NoError(t, err)

	assert.Equal(t, float64(0), reply.Fields["status"].GetNumberValue())
	result := reply.Fields["result"].GetStructValue()
	require.NotNil(t, result)
	assert.Equal(t, "gw-1", result.Fields["GatewayName"].GetStringValue())
}

func TestGetSubsystemsRoundTripsOverGRPC(t *testing.T) {
	cfg := resource.DefaultConfig("gw-1", 0)
	svc := resource.New(cfg, nil, nil, nil)
	w := &wireServer{s: NewServer(svc)}

	conn, closeAll := dialTestServer(t, w)
	defer closeAll()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := structpb.NewStruct(map[string]interface{}{"nqn": ""})
	require.NoError(t, err)
	reply := new(structpb.Struct)

	err = conn.Invoke(ctx, "/nvmeof.gateway.ResourceService/GetSubsystems", req, reply)
	require.NoError(t, err)
	assert.Equal(t, float64(0), reply.Fields["status"].GetNumberValue())
}

func TestCreateSubsystemInvalidNQNReportsErrnoStatus(t *testing.T) {
	cfg := resource.DefaultConfig("gw-1", 0)
	svc := resource.New(cfg, nil, nil, nil)
	w := &wireServer{s: NewServer(svc)}

	conn, closeAll := dialTestServer(t, w)
	defer closeAll()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := structpb.NewStruct(map[string]interface{}{"nqn": "not-a-valid-nqn"})
	require.NoError(t, err)
	reply := new(structpb.Struct)

	err = conn.Invoke(ctx, "/nvmeof.gateway.ResourceService/CreateSubsystem", req, reply)
	require.NoError(t, err)

	assert.NotEqual(t, float64(0), reply.Fields["status"].GetNumberValue())
	assert.NotEmpty(t, reply.Fields["error_message"].GetStringValue())
}

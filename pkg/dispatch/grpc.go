package dispatch

import (
	"context"
	"net"

	"github.com/marmos91/nvmeof-gateway/internal/logger"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// operationMethod is the shape every Resource Service gRPC method
// reduces to once Params/Result are carried as google.protobuf.Struct:
// one request Struct in, one response Struct out, never an error for
// the RPC itself — operation failures travel in the response's
// "status"/"error_message" fields, mirroring the engine socket's own
// convention (see server.go's OperationResponse doc).
type operationMethod func(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

// wireServer adapts Server's typed OperationRequest/OperationResponse
// methods to the operationMethod shape the hand-written ServiceDesc
// below dispatches to.
type wireServer struct {
	s *Server
}

func wire(fn func(context.Context, *OperationRequest) (*OperationResponse, error)) operationMethod {
	return func(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
		resp, err := fn(ctx, &OperationRequest{Params: req})
		if err != nil {
			return nil, err
		}
		return responseToStruct(resp), nil
	}
}

func responseToStruct(resp *OperationResponse) *structpb.Struct {
	fields := map[string]interface{}{
		"status": float64(resp.Status),
	}
	if resp.ErrorMessage != "" {
		fields["error_message"] = resp.ErrorMessage
	}
	out, err := structpb.NewStruct(fields)
	if err != nil {
		out = &structpb.Struct{}
	}
	if resp.Result != nil {
		out.Fields["result"] = structpb.NewStructValue(resp.Result)
	}
	return out
}

// operations lists the gRPC-exposed Resource Service methods, grounded
// on §6.1's "one service with methods for each Resource Service
// operation in §4.6.2, plus get_subsystems, get_gateway_info, and the
// log-level controls".
func (w *wireServer) operations() map[string]operationMethod {
	return map[string]operationMethod{
		"CreateSubsystem":                   wire(w.s.CreateSubsystem),
		"DeleteSubsystem":                   wire(w.s.DeleteSubsystem),
		"NamespaceAdd":                      wire(w.s.NamespaceAdd),
		"NamespaceDelete":                   wire(w.s.NamespaceDelete),
		"NamespaceResize":                   wire(w.s.NamespaceResize),
		"NamespaceChangeLoadBalancingGroup": wire(w.s.NamespaceChangeLoadBalancingGroup),
		"NamespaceSetQoSLimits":             wire(w.s.NamespaceSetQoSLimits),
		"AddHost":                           wire(w.s.AddHost),
		"RemoveHost":                        wire(w.s.RemoveHost),
		"CreateListener":                    wire(w.s.CreateListener),
		"DeleteListener":                    wire(w.s.DeleteListener),
		"GetSubsystems":                     wire(w.s.GetSubsystems),
		"GetGatewayInfo":                    wire(w.s.GetGatewayInfo),
		"SetGatewayLogLevel":                wire(w.s.SetGatewayLogLevel),
		"ListListeners":                     wire(w.s.ListListeners),
		"ListHosts":                         wire(w.s.ListHosts),
		"ListNamespaces":                    wire(w.s.ListNamespaces),
		"SetSpdkNVMfLogs":                   wire(w.s.SetSpdkNVMfLogs),
		"DisableSpdkNVMfLogs":               wire(w.s.DisableSpdkNVMfLogs),
		"GetSpdkNVMfLogLevel":               wire(w.s.GetSpdkNVMfLogLevel),
	}
}

// resourceServiceDesc is hand-written in protoc-gen-go-grpc's own
// boilerplate shape (see pkg/supervisor/rendezvous.go's Open Question
// note on why): each method decodes a google.protobuf.Struct, the only
// wire message type the build needs since no .proto toolchain runs.
func newResourceServiceDesc(w *wireServer) grpc.ServiceDesc {
	ops := w.operations()
	methods := make([]grpc.MethodDesc, 0, len(ops))
	for name, fn := range ops {
		methods = append(methods, grpc.MethodDesc{MethodName: name, Handler: operationHandler(name, fn)})
	}
	return grpc.ServiceDesc{
		ServiceName: "nvmeof.gateway.ResourceService",
		HandlerType: (*any)(nil),
		Methods:     methods,
		Streams:     []grpc.StreamDesc{},
		Metadata:    "resource.proto",
	}
}

func operationHandler(name string, fn operationMethod) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return fn(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/nvmeof.gateway.ResourceService/" + name}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return fn(ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Serve starts the Resource Service gRPC server on addr and blocks
// until ctx is cancelled, then gracefully stops it.
func Serve(ctx context.Context, addr string, svc *Server) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	w := &wireServer{s: svc}
	desc := newResourceServiceDesc(w)

	grpcSrv := grpc.NewServer()
	grpcSrv.RegisterService(&desc, w)

	errCh := make(chan error, 1)
	go func() { errCh <- grpcSrv.Serve(ln) }()

	select {
	case <-ctx.Done():
		grpcSrv.GracefulStop()
		logger.Info("dispatch: resource service stopped")
		return nil
	case err := <-errCh:
		return err
	}
}

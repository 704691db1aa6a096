// Package dispatch is the Resource Service's external gRPC surface
// (C9): it decodes inbound calls into the typed request structs
// pkg/resource already defines and invokes the matching Service
// method in authoritative mode, translating its error kind into the
// §7 errno convention. Grounded on the teacher's
// internal/protocol/nfs/dispatch.go HandlerResult pattern — one
// result envelope (status, message, payload) shared by every handler
// — generalized from RPC-record dispatch to gRPC method dispatch.
//
// No `.proto` toolchain runs in this build (§ see DESIGN.md), so
// request/response payloads travel as google.protobuf.Struct — a
// genuine, already-compiled protobuf well-known type for free-form
// JSON-shaped data — decoded into pkg/resource's typed structs via
// mapstructure, the same library the teacher uses for its own config
// decoding.
package dispatch

import (
	"context"
	"encoding/json"

	"github.com/marmos91/nvmeof-gateway/internal/logger"
	"github.com/marmos91/nvmeof-gateway/pkg/gwerrors"
	"github.com/marmos91/nvmeof-gateway/pkg/resource"
	"github.com/mitchellh/mapstructure"
	"google.golang.org/protobuf/types/known/structpb"
)

// OperationRequest is the envelope every dispatch method receives:
// Params carries the operation's typed fields as a generic struct.
type OperationRequest struct {
	Params *structpb.Struct
}

// OperationResponse is the envelope every dispatch method returns,
// mirroring the engine socket's own `response: {code, message}`
// convention (§6's "Engine control socket") so both the internal and
// external RPC surfaces read the same way to an operator.
type OperationResponse struct {
	Status       int32
	ErrorMessage string
	Result       *structpb.Struct
}

// Server implements the gRPC-exposed Resource Service surface.
type Server struct {
	svc *resource.Service
}

// NewServer wraps a Resource Service for external gRPC dispatch.
func NewServer(svc *resource.Service) *Server {
	return &Server{svc: svc}
}

func decodeParams(req *OperationRequest, out interface{}) error {
	if req.Params == nil {
		return nil
	}
	return mapstructure.Decode(req.Params.AsMap(), out)
}

func structResult(v interface{}) *structpb.Struct {
	m, err := toMap(v)
	if err != nil {
		return nil
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil
	}
	return s
}

func errorResponse(err error) OperationResponse {
	logger.Warn("dispatch: operation failed", "error", err)
	return OperationResponse{Status: int32(gwerrors.Errno(err)), ErrorMessage: err.Error()}
}

// CreateSubsystem implements the nvmf_create_subsystem intent.
func (s *Server) CreateSubsystem(ctx context.Context, req *OperationRequest) (*OperationResponse, error) {
	var typed resource.CreateSubsystemRequest
	if err := decodeParams(req, &typed); err != nil {
		return respondErr(err)
	}
	sub, err := s.svc.CreateSubsystem(ctx, resource.ModeAuthoritative, typed)
	if err != nil {
		return respondErr(err)
	}
	return &OperationResponse{Result: structResult(sub)}, nil
}

// DeleteSubsystem implements the nvmf_delete_subsystem intent.
func (s *Server) DeleteSubsystem(ctx context.Context, req *OperationRequest) (*OperationResponse, error) {
	var typed struct {
		NQN   string `mapstructure:"nqn"`
		Force bool   `mapstructure:"force"`
	}
	if err := decodeParams(req, &typed); err != nil {
		return respondErr(err)
	}
	if err := s.svc.DeleteSubsystem(ctx, resource.ModeAuthoritative, typed.NQN, typed.Force); err != nil {
		return respondErr(err)
	}
	return &OperationResponse{}, nil
}

// NamespaceAdd implements the nvmf_subsystem_add_ns intent.
func (s *Server) NamespaceAdd(ctx context.Context, req *OperationRequest) (*OperationResponse, error) {
	var typed resource.NamespaceAddRequest
	if err := decodeParams(req, &typed); err != nil {
		return respondErr(err)
	}
	ns, err := s.svc.NamespaceAdd(ctx, resource.ModeAuthoritative, typed)
	if err != nil {
		return respondErr(err)
	}
	return &OperationResponse{Result: structResult(ns)}, nil
}

// NamespaceDelete implements the nvmf_subsystem_remove_ns intent.
func (s *Server) NamespaceDelete(ctx context.Context, req *OperationRequest) (*OperationResponse, error) {
	var typed struct {
		NQN  string `mapstructure:"nqn"`
		NSID uint32 `mapstructure:"nsid"`
	}
	if err := decodeParams(req, &typed); err != nil {
		return respondErr(err)
	}
	if err := s.svc.NamespaceDelete(ctx, resource.ModeAuthoritative, typed.NQN, typed.NSID); err != nil {
		return respondErr(err)
	}
	return &OperationResponse{}, nil
}

// NamespaceResize implements the bdev resize intent.
func (s *Server) NamespaceResize(ctx context.Context, req *OperationRequest) (*OperationResponse, error) {
	var typed struct {
		NQN        string `mapstructure:"nqn"`
		NSID       uint32 `mapstructure:"nsid"`
		NewSizeMiB int64  `mapstructure:"new_size_mib"`
	}
	if err := decodeParams(req, &typed); err != nil {
		return respondErr(err)
	}
	if err := s.svc.NamespaceResize(ctx, resource.ModeAuthoritative, typed.NQN, typed.NSID, typed.NewSizeMiB); err != nil {
		return respondErr(err)
	}
	return &OperationResponse{}, nil
}

// NamespaceChangeLoadBalancingGroup implements the ANA-group-reassignment intent.
func (s *Server) NamespaceChangeLoadBalancingGroup(ctx context.Context, req *OperationRequest) (*OperationResponse, error) {
	var typed struct {
		NQN         string `mapstructure:"nqn"`
		NSID        uint32 `mapstructure:"nsid"`
		NewANAGroup int    `mapstructure:"anagrpid"`
	}
	if err := decodeParams(req, &typed); err != nil {
		return respondErr(err)
	}
	if err := s.svc.NamespaceChangeLoadBalancingGroup(ctx, resource.ModeAuthoritative, typed.NQN, typed.NSID, typed.NewANAGroup); err != nil {
		return respondErr(err)
	}
	return &OperationResponse{}, nil
}

// NamespaceSetQoSLimits implements the set_qos_limits intent.
func (s *Server) NamespaceSetQoSLimits(ctx context.Context, req *OperationRequest) (*OperationResponse, error) {
	var typed struct {
		NQN      string `mapstructure:"nqn"`
		NSID     uint32 `mapstructure:"nsid"`
		RWIOs    *int64 `mapstructure:"rw_ios"`
		RWMBytes *int64 `mapstructure:"rw_mbytes"`
		RMBytes  *int64 `mapstructure:"r_mbytes"`
		WMBytes  *int64 `mapstructure:"w_mbytes"`
	}
	if err := decodeParams(req, &typed); err != nil {
		return respondErr(err)
	}
	err := s.svc.NamespaceSetQoSLimits(ctx, resource.ModeAuthoritative, typed.NQN, typed.NSID, typed.RWIOs, typed.RWMBytes, typed.RMBytes, typed.WMBytes)
	if err != nil {
		return respondErr(err)
	}
	return &OperationResponse{}, nil
}

// AddHost implements the nvmf_subsystem_add_host intent.
func (s *Server) AddHost(ctx context.Context, req *OperationRequest) (*OperationResponse, error) {
	var typed resource.AddHostRequest
	if err := decodeParams(req, &typed); err != nil {
		return respondErr(err)
	}
	if err := s.svc.AddHost(ctx, resource.ModeAuthoritative, typed); err != nil {
		return respondErr(err)
	}
	return &OperationResponse{}, nil
}

// RemoveHost implements the nvmf_subsystem_remove_host intent.
func (s *Server) RemoveHost(ctx context.Context, req *OperationRequest) (*OperationResponse, error) {
	var typed struct {
		NQN     string `mapstructure:"nqn"`
		HostNQN string `mapstructure:"host_nqn"`
	}
	if err := decodeParams(req, &typed); err != nil {
		return respondErr(err)
	}
	if err := s.svc.RemoveHost(ctx, resource.ModeAuthoritative, typed.NQN, typed.HostNQN); err != nil {
		return respondErr(err)
	}
	return &OperationResponse{}, nil
}

// CreateListener implements the nvmf_subsystem_add_listener intent.
func (s *Server) CreateListener(ctx context.Context, req *OperationRequest) (*OperationResponse, error) {
	var typed resource.CreateListenerRequest
	if err := decodeParams(req, &typed); err != nil {
		return respondErr(err)
	}
	result, err := s.svc.CreateListener(ctx, resource.ModeAuthoritative, typed)
	if err != nil {
		return respondErr(err)
	}
	return &OperationResponse{Result: structResult(result)}, nil
}

// DeleteListener implements the nvmf_subsystem_remove_listener intent.
func (s *Server) DeleteListener(ctx context.Context, req *OperationRequest) (*OperationResponse, error) {
	var typed struct {
		NQN                  string `mapstructure:"nqn"`
		GatewayName          string `mapstructure:"gateway_name"`
		Address              string `mapstructure:"traddr"`
		Port                 int    `mapstructure:"trsvcid"`
		Force                bool   `mapstructure:"force"`
		AnyHostBound         bool   `mapstructure:"any_host_bound"`
		HasActiveConnections bool   `mapstructure:"has_active_connections"`
	}
	if err := decodeParams(req, &typed); err != nil {
		return respondErr(err)
	}
	err := s.svc.DeleteListener(ctx, resource.ModeAuthoritative, typed.NQN, typed.GatewayName, typed.Address, typed.Port, typed.Force, typed.AnyHostBound, typed.HasActiveConnections)
	if err != nil {
		return respondErr(err)
	}
	return &OperationResponse{}, nil
}

// GetSubsystems implements the read-only subsystem enumeration intent.
func (s *Server) GetSubsystems(ctx context.Context, req *OperationRequest) (*OperationResponse, error) {
	var typed struct {
		NQN    string `mapstructure:"nqn"`
		Serial string `mapstructure:"serial"`
	}
	_ = decodeParams(req, &typed)
	subs := s.svc.ListSubsystems(resource.ListSubsystemsFilter{NQN: typed.NQN, Serial: typed.Serial})
	return &OperationResponse{Result: structResult(map[string]interface{}{"subsystems": subs})}, nil
}

// SetGatewayLogLevel implements the gateway-process log-level control.
func (s *Server) SetGatewayLogLevel(ctx context.Context, req *OperationRequest) (*OperationResponse, error) {
	var typed struct {
		Level string `mapstructure:"level"`
	}
	if err := decodeParams(req, &typed); err != nil {
		return respondErr(err)
	}
	s.svc.SetGatewayLogLevel(typed.Level)
	return &OperationResponse{}, nil
}

// GetGatewayInfo implements the get_gateway_info intent.
func (s *Server) GetGatewayInfo(ctx context.Context, req *OperationRequest) (*OperationResponse, error) {
	info := s.svc.GetGatewayInfo()
	return &OperationResponse{Result: structResult(info)}, nil
}

// ListListeners implements the read-only listener enumeration intent.
func (s *Server) ListListeners(ctx context.Context, req *OperationRequest) (*OperationResponse, error) {
	var typed struct {
		NQN string `mapstructure:"nqn"`
	}
	_ = decodeParams(req, &typed)
	listeners := s.svc.ListListeners(typed.NQN)
	return &OperationResponse{Result: structResult(map[string]interface{}{"listeners": listeners})}, nil
}

// ListHosts implements the read-only host enumeration intent.
func (s *Server) ListHosts(ctx context.Context, req *OperationRequest) (*OperationResponse, error) {
	var typed struct {
		NQN string `mapstructure:"nqn"`
	}
	_ = decodeParams(req, &typed)
	hosts := s.svc.ListHosts(typed.NQN)
	return &OperationResponse{Result: structResult(map[string]interface{}{"hosts": hosts})}, nil
}

// ListNamespaces implements the read-only namespace enumeration intent.
func (s *Server) ListNamespaces(ctx context.Context, req *OperationRequest) (*OperationResponse, error) {
	var typed struct {
		NQN  string `mapstructure:"nqn"`
		NSID uint32 `mapstructure:"nsid"`
	}
	_ = decodeParams(req, &typed)
	namespaces := s.svc.ListNamespaces(resource.ListNamespacesFilter{NQN: typed.NQN, NSID: typed.NSID})
	return &OperationResponse{Result: structResult(map[string]interface{}{"namespaces": namespaces})}, nil
}

// SetSpdkNVMfLogs implements the engine log-flag enable intent.
func (s *Server) SetSpdkNVMfLogs(ctx context.Context, req *OperationRequest) (*OperationResponse, error) {
	var typed struct {
		LogLevel   string `mapstructure:"log_level"`
		PrintLevel string `mapstructure:"print_level"`
	}
	if err := decodeParams(req, &typed); err != nil {
		return respondErr(err)
	}
	if err := s.svc.SetSpdkNVMfLogs(ctx, typed.LogLevel, typed.PrintLevel); err != nil {
		return respondErr(err)
	}
	return &OperationResponse{}, nil
}

// DisableSpdkNVMfLogs implements the engine log-flag disable intent.
func (s *Server) DisableSpdkNVMfLogs(ctx context.Context, req *OperationRequest) (*OperationResponse, error) {
	if err := s.svc.DisableSpdkNVMfLogs(ctx); err != nil {
		return respondErr(err)
	}
	return &OperationResponse{}, nil
}

// GetSpdkNVMfLogLevel implements the engine log-flag query intent.
func (s *Server) GetSpdkNVMfLogLevel(ctx context.Context, req *OperationRequest) (*OperationResponse, error) {
	level, err := s.svc.GetSpdkNVMfLogLevel(ctx)
	if err != nil {
		return respondErr(err)
	}
	return &OperationResponse{Result: structResult(map[string]interface{}{"level": level})}, nil
}

func respondErr(err error) (*OperationResponse, error) {
	resp := errorResponse(err)
	return &resp, nil
}

// toMap flattens a result value into structpb-compatible primitives by
// round-tripping it through JSON, same as pkg/resource's own PGS
// encoding — unlike mapstructure, this also converts nested structs
// and slices-of-structs, which structpb.NewStruct otherwise rejects.
func toMap(v interface{}) (map[string]interface{}, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := map[string]interface{}{}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

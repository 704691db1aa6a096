package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for gateway control-plane operations.
// These follow OpenTelemetry semantic conventions where applicable.
const (
	// ========================================================================
	// Entity attributes
	// ========================================================================
	AttrSubsystemNQN = "gw.subsystem_nqn"
	AttrHostNQN      = "gw.host_nqn"
	AttrNamespaceID  = "gw.nsid"
	AttrGatewayName  = "gw.gateway_name"
	AttrGroupName    = "gw.group_name"
	AttrTransport    = "gw.trtype"
	AttrTrAddr       = "gw.traddr"
	AttrTrSvcID      = "gw.trsvcid"

	// ========================================================================
	// PGS / object-store attributes
	// ========================================================================
	AttrPGSKey       = "pgs.key"
	AttrPGSVersion   = "pgs.version"
	AttrPGSETag      = "pgs.etag"
	AttrObjectBucket = "objectstore.bucket"
	AttrObjectKey    = "objectstore.key"

	// ========================================================================
	// Reconciler attributes
	// ========================================================================
	AttrReconcileAdded   = "reconcile.added_keys"
	AttrReconcileRemoved = "reconcile.removed_keys"
	AttrReconcileChanged = "reconcile.changed_keys"
	AttrReconcileMode    = "reconcile.mode" // authoritative | replay

	// ========================================================================
	// Resource Service attributes
	// ========================================================================
	AttrRPCMethod = "resource.method"
	AttrRPCStatus = "resource.status"

	// ========================================================================
	// Discovery Responder attributes
	// ========================================================================
	AttrConnState  = "discovery.conn_state"
	AttrCmdOpcode  = "discovery.opcode"
	AttrSessionID  = "discovery.session_id"
	AttrClientAddr = "client.address"
)

// Span names for gateway control-plane operations.
const (
	SpanPGSGet       = "pgs.get"
	SpanPGSAddKey    = "pgs.add_key"
	SpanPGSRemoveKey = "pgs.remove_key"
	SpanPGSLease     = "pgs.lease"

	SpanReconcileTick    = "reconciler.tick"
	SpanReconcileDispatch = "reconciler.dispatch"

	SpanResourceCreateSubsystem = "resource.create_subsystem"
	SpanResourceDeleteSubsystem = "resource.delete_subsystem"
	SpanResourceNamespaceAdd    = "resource.namespace_add"
	SpanResourceNamespaceDelete = "resource.namespace_delete"
	SpanResourceHostAdd         = "resource.add_host"
	SpanResourceHostRemove      = "resource.remove_host"
	SpanResourceListenerCreate  = "resource.create_listener"
	SpanResourceListenerDelete  = "resource.delete_listener"

	SpanDiscoveryConnection = "discovery.connection"
	SpanDiscoveryICReq      = "discovery.icreq"
	SpanDiscoveryGetLogPage = "discovery.get_log_page"
	SpanDiscoveryAEN        = "discovery.async_event"

	SpanSupervisorSpawn   = "supervisor.spawn"
	SpanSupervisorMonitor = "supervisor.health_check"
)

// SubsystemNQN returns an attribute for a subsystem NQN.
func SubsystemNQN(nqn string) attribute.KeyValue {
	return attribute.String(AttrSubsystemNQN, nqn)
}

// HostNQN returns an attribute for a host NQN.
func HostNQN(nqn string) attribute.KeyValue {
	return attribute.String(AttrHostNQN, nqn)
}

// NamespaceID returns an attribute for a namespace ID.
func NamespaceID(nsid uint32) attribute.KeyValue {
	return attribute.Int64(AttrNamespaceID, int64(nsid))
}

// GatewayName returns an attribute for the reporting gateway's name.
func GatewayName(name string) attribute.KeyValue {
	return attribute.String(AttrGatewayName, name)
}

// GroupName returns an attribute for the cluster group name.
func GroupName(name string) attribute.KeyValue {
	return attribute.String(AttrGroupName, name)
}

// PGSKey returns an attribute for a PGS wire key.
func PGSKey(key string) attribute.KeyValue {
	return attribute.String(AttrPGSKey, key)
}

// PGSVersion returns an attribute for the PGS version counter.
func PGSVersion(version uint64) attribute.KeyValue {
	return attribute.Int64(AttrPGSVersion, int64(version))
}

// ReconcileCounts returns attributes summarizing a reconcile pass.
func ReconcileCounts(added, removed, changed int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrReconcileAdded, added),
		attribute.Int(AttrReconcileRemoved, removed),
		attribute.Int(AttrReconcileChanged, changed),
	}
}

// ReconcileMode returns an attribute for the reconciler's operating mode.
func ReconcileMode(mode string) attribute.KeyValue {
	return attribute.String(AttrReconcileMode, mode)
}

// RPCMethod returns an attribute for a Resource Service method name.
func RPCMethod(method string) attribute.KeyValue {
	return attribute.String(AttrRPCMethod, method)
}

// ClientAddr returns an attribute for a discovery connection's peer address.
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// ConnState returns an attribute for a discovery connection's FSM state.
func ConnState(state string) attribute.KeyValue {
	return attribute.String(AttrConnState, state)
}

// StartPGSSpan starts a span for a PGS object-store operation.
func StartPGSSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, name, trace.WithAttributes(attrs...))
}

// StartReconcileSpan starts a span for a reconciler tick.
func StartReconcileSpan(ctx context.Context, mode string) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanReconcileTick, trace.WithAttributes(ReconcileMode(mode)))
}

// StartResourceSpan starts a span for a Resource Service RPC method.
func StartResourceSpan(ctx context.Context, method string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{RPCMethod(method)}, attrs...)
	return StartSpan(ctx, "resource."+method, trace.WithAttributes(allAttrs...))
}

// StartDiscoverySpan starts a span for a discovery connection event.
func StartDiscoverySpan(ctx context.Context, name string, addr string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{ClientAddr(addr)}, attrs...)
	return StartSpan(ctx, name, trace.WithAttributes(allAttrs...))
}

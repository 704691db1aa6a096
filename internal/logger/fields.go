package logger

import (
	"log/slog"
)

// Standard field keys for structured logging. Use these consistently
// across log statements so the Discovery, Resource Service, Reconciler
// and Supervisor components emit one vocabulary a log aggregator can
// query across, rather than each component inventing its own key names.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Control-plane operation
	// ========================================================================
	KeyOp        = "op"         // Resource Service operation name: namespace_add, add_host, etc.
	KeyStatus    = "status"     // NVMe status code or gRPC status
	KeyStatusMsg = "status_msg" // Human-readable status message

	// ========================================================================
	// NVMe-oF identity
	// ========================================================================
	KeyNQN         = "nqn"          // Subsystem NQN
	KeyHostNQN     = "host_nqn"     // Host NQN, or "*" for any-host
	KeyNSID        = "nsid"         // Namespace ID within a subsystem
	KeyANAGroupID  = "ana_grp_id"   // ANA (Asymmetric Namespace Access) group ID
	KeyBackingName = "backing_name" // bdev_rbd backing device name
	KeyPool        = "pool"         // RBD pool name
	KeyImage       = "image"        // RBD image name
	KeyControllerID = "cntlid"      // NVMe controller ID

	// ========================================================================
	// Gateway / group topology
	// ========================================================================
	KeyPeer  = "peer"  // This or another gateway peer's name
	KeyGroup = "group" // Gateway group name

	// ========================================================================
	// Transport & listeners
	// ========================================================================
	KeyTransportType = "trtype"        // "TCP" (the only transport this gateway serves)
	KeyListenerAddr  = "listener_addr" // traddr:trsvcid a listener is bound to

	// ========================================================================
	// Client / session identification (Discovery Responder connections)
	// ========================================================================
	KeyClientIP     = "client_ip"     // Discovery client IP address
	KeyClientPort   = "client_port"   // Discovery client source port
	KeyConnectionID = "connection_id" // Discovery session generation counter
	KeyRequestID    = "request_id"    // Capsule command ID (CID)

	// ========================================================================
	// Persistent Group State Store
	// ========================================================================
	KeyPGSKey     = "key"     // PGS key being read/written
	KeyPGSVersion = "version" // PGS version/ETag-derived counter

	// ========================================================================
	// Object storage (S3)
	// ========================================================================
	KeyBucket = "bucket" // S3 bucket name
	KeyRegion = "region" // S3 region

	// ========================================================================
	// Operation metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyErrorCode  = "error_code"  // Numeric error code
	KeySource     = "source"      // Data source: pgs, local_cache, reconcile
	KeyAttempt    = "attempt"     // Retry attempt number
	KeyMaxRetries = "max_retries" // Maximum retry attempts

	// ========================================================================
	// Local State Cache
	// ========================================================================
	KeyCacheHit      = "cache_hit"      // Cache hit indicator
	KeyCacheSize     = "cache_size"     // Current cached key count
	KeyCacheCapacity = "cache_capacity" // Maximum cache capacity
	KeyEvicted       = "evicted"        // Number of entries evicted
)

// ============================================================================
// Field constructors for type safety
// These functions provide type-safe construction of slog.Attr values.
// ============================================================================

// ----------------------------------------------------------------------------
// Distributed Tracing
// ----------------------------------------------------------------------------

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// ----------------------------------------------------------------------------
// Control-plane operation
// ----------------------------------------------------------------------------

// Op returns a slog.Attr for the Resource Service operation name
func Op(name string) slog.Attr {
	return slog.String(KeyOp, name)
}

// Status returns a slog.Attr for operation status code
func Status(code int) slog.Attr {
	return slog.Int(KeyStatus, code)
}

// StatusMsg returns a slog.Attr for human-readable status message
func StatusMsg(msg string) slog.Attr {
	return slog.String(KeyStatusMsg, msg)
}

// ----------------------------------------------------------------------------
// NVMe-oF identity
// ----------------------------------------------------------------------------

// NQN returns a slog.Attr for a subsystem NQN
func NQN(nqn string) slog.Attr {
	return slog.String(KeyNQN, nqn)
}

// HostNQN returns a slog.Attr for a host NQN ("*" for any-host)
func HostNQN(hostNQN string) slog.Attr {
	return slog.String(KeyHostNQN, hostNQN)
}

// NSID returns a slog.Attr for a namespace ID
func NSID(nsid uint32) slog.Attr {
	return slog.Any(KeyNSID, nsid)
}

// ANAGroupID returns a slog.Attr for an ANA group ID
func ANAGroupID(id int) slog.Attr {
	return slog.Int(KeyANAGroupID, id)
}

// BackingName returns a slog.Attr for a backing device name
func BackingName(name string) slog.Attr {
	return slog.String(KeyBackingName, name)
}

// ControllerID returns a slog.Attr for an NVMe controller ID
func ControllerID(cntlid int) slog.Attr {
	return slog.Int(KeyControllerID, cntlid)
}

// ----------------------------------------------------------------------------
// Gateway / group topology
// ----------------------------------------------------------------------------

// Peer returns a slog.Attr for a gateway peer name
func Peer(name string) slog.Attr {
	return slog.String(KeyPeer, name)
}

// Group returns a slog.Attr for a gateway group name
func Group(name string) slog.Attr {
	return slog.String(KeyGroup, name)
}

// ----------------------------------------------------------------------------
// Transport & listeners
// ----------------------------------------------------------------------------

// ListenerAddr returns a slog.Attr for a listener's bound address
func ListenerAddr(addr string) slog.Attr {
	return slog.String(KeyListenerAddr, addr)
}

// ----------------------------------------------------------------------------
// Client / session identification
// ----------------------------------------------------------------------------

// ClientIP returns a slog.Attr for a discovery client IP address
func ClientIP(addr string) slog.Attr {
	return slog.String(KeyClientIP, addr)
}

// ConnectionID returns a slog.Attr for a discovery session generation
func ConnectionID(gen uint64) slog.Attr {
	return slog.Uint64(KeyConnectionID, gen)
}

// RequestID returns a slog.Attr for a capsule command ID
func RequestID(cid uint32) slog.Attr {
	return slog.Any(KeyRequestID, cid)
}

// ----------------------------------------------------------------------------
// Persistent Group State Store
// ----------------------------------------------------------------------------

// PGSKey returns a slog.Attr for a PGS key
func PGSKey(key string) slog.Attr {
	return slog.String(KeyPGSKey, key)
}

// PGSVersion returns a slog.Attr for a PGS version
func PGSVersion(v uint64) slog.Attr {
	return slog.Uint64(KeyPGSVersion, v)
}

// ----------------------------------------------------------------------------
// Operation Metadata
// ----------------------------------------------------------------------------

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns a slog.Attr for numeric error code
func ErrorCode(code int) slog.Attr {
	return slog.Int(KeyErrorCode, code)
}

// Source returns a slog.Attr for data source
func Source(src string) slog.Attr {
	return slog.String(KeySource, src)
}

// Attempt returns a slog.Attr for retry attempt number
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// MaxRetries returns a slog.Attr for maximum retry attempts
func MaxRetries(n int) slog.Attr {
	return slog.Int(KeyMaxRetries, n)
}

// ----------------------------------------------------------------------------
// Local State Cache
// ----------------------------------------------------------------------------

// CacheHit returns a slog.Attr for cache hit indicator
func CacheHit(hit bool) slog.Attr {
	return slog.Bool(KeyCacheHit, hit)
}

// CacheSize returns a slog.Attr for current cache size
func CacheSize(size int) slog.Attr {
	return slog.Int(KeyCacheSize, size)
}

// CacheCapacity returns a slog.Attr for maximum cache capacity
func CacheCapacity(capacity int) slog.Attr {
	return slog.Int(KeyCacheCapacity, capacity)
}

// Evicted returns a slog.Attr for number of entries evicted
func Evicted(n int) slog.Attr {
	return slog.Int(KeyEvicted, n)
}

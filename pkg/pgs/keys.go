package pgs

import "strconv"

// Key prefixes and delimiter, per spec.md §3 and the reference
// implementation's GatewayState key builders (original_source/control/state.py).
const (
	KeyDelimiter = "_"

	SubsystemPrefix    = "subsystem_"
	NamespacePrefix    = "namespace_"
	NamespaceQoSPrefix = "qos_"
	HostPrefix         = "host_"
	ListenerPrefix     = "listener_"

	// VersionKey is the reserved key holding the stringified monotonic
	// version counter.
	VersionKey = "omap_version"

	// LegacyPrefix is the obsolete key prefix that, if present, marks
	// the object as a pre-rewrite format the Supervisor must refuse to
	// start against (§4.4.5).
	LegacyPrefix = "bdev"
)

// PrefixOrder is the dispatch order for additions (and the "add" half
// of changes): subsystem → namespace → qos → host → listener. This is
// spec.md §4.5.3's stated order, which differs from the reference
// implementation's actual prefix_list (subsystem, namespace, host, qos,
// listener) — see DESIGN.md's Open Question decision for why spec.md's
// order is the one implemented here.
var PrefixOrder = []string{SubsystemPrefix, NamespacePrefix, NamespaceQoSPrefix, HostPrefix, ListenerPrefix}

// ReversedPrefixOrder is PrefixOrder reversed, used for removals.
func ReversedPrefixOrder() []string {
	out := make([]string, len(PrefixOrder))
	for i, p := range PrefixOrder {
		out[len(PrefixOrder)-1-i] = p
	}
	return out
}

// BuildSubsystemKey returns the key for a subsystem entry.
func BuildSubsystemKey(nqn string) string {
	return SubsystemPrefix + nqn
}

// BuildNamespaceKey returns the key for a namespace entry. nsid of 0
// means "no specific namespace" (used only for prefix-building).
func BuildNamespaceKey(nqn string, nsid uint32) string {
	if nsid == 0 {
		return NamespacePrefix + nqn
	}
	return NamespacePrefix + nqn + KeyDelimiter + strconv.FormatUint(uint64(nsid), 10)
}

// BuildNamespaceQoSKey returns the key for a namespace QoS entry.
func BuildNamespaceQoSKey(nqn string, nsid uint32) string {
	if nsid == 0 {
		return NamespaceQoSPrefix + nqn
	}
	return NamespaceQoSPrefix + nqn + KeyDelimiter + strconv.FormatUint(uint64(nsid), 10)
}

// BuildHostKey returns the key for a host entry. hostNQN of "" means
// "no specific host" (prefix-building only).
func BuildHostKey(nqn, hostNQN string) string {
	if hostNQN == "" {
		return HostPrefix + nqn
	}
	return HostPrefix + nqn + KeyDelimiter + hostNQN
}

// BuildPartialListenerKey returns the subsystem-scoped listener prefix,
// used to enumerate all listeners of a subsystem.
func BuildPartialListenerKey(nqn string) string {
	return ListenerPrefix + nqn
}

// BuildListenerKeySuffix returns the gateway/transport/address/port
// suffix portion of a listener key.
func BuildListenerKeySuffix(gateway, trtype, traddr, trsvcid string) string {
	return gateway + KeyDelimiter + trtype + KeyDelimiter + traddr + KeyDelimiter + trsvcid
}

// BuildListenerKey returns the full key for one listener entry.
func BuildListenerKey(nqn, gateway, trtype, traddr, trsvcid string) string {
	return BuildPartialListenerKey(nqn) + KeyDelimiter + BuildListenerKeySuffix(gateway, trtype, traddr, trsvcid)
}

package discovery

import (
	"github.com/marmos91/nvmeof-gateway/internal/logger"
	"github.com/marmos91/nvmeof-gateway/pkg/localcache"
	"github.com/marmos91/nvmeof-gateway/pkg/pgs"
)

// CacheSource adapts the Local State Cache into a ListenerSource,
// decoding listener_/host_ entries on every call. The Discovery
// Responder never mutates or holds onto the cache: it only reads
// point-in-time snapshots, per §5's isolation between the Discovery
// Responder and the Resource Service.
type CacheSource struct {
	cache *localcache.Cache
}

// NewCacheSource wraps a Local State Cache for discovery log lookups.
func NewCacheSource(cache *localcache.Cache) *CacheSource {
	return &CacheSource{cache: cache}
}

// Listeners decodes every listener_ entry in the current snapshot.
func (c *CacheSource) Listeners() []pgs.Listener {
	snap := c.cache.Snapshot()
	raw := snap.ByPrefix(pgs.ListenerPrefix)
	out := make([]pgs.Listener, 0, len(raw))
	for k, v := range raw {
		l, err := pgs.DecodeListener(v)
		if err != nil {
			logger.Warn("discovery: skipping malformed listener entry", "key", k, "error", err)
			continue
		}
		out = append(out, l)
	}
	return out
}

// HostsBySubsystem decodes every host_<nqn>_ entry for the given
// subsystem NQN.
func (c *CacheSource) HostsBySubsystem(nqn string) []pgs.Host {
	snap := c.cache.Snapshot()
	raw := snap.ByPrefix(pgs.BuildHostKey(nqn, ""))
	out := make([]pgs.Host, 0, len(raw))
	for k, v := range raw {
		h, err := pgs.DecodeHost(v)
		if err != nil {
			logger.Warn("discovery: skipping malformed host entry", "key", k, "error", err)
			continue
		}
		out = append(out, h)
	}
	return out
}

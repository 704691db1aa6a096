package supervisor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/marmos91/nvmeof-gateway/pkg/objectstore"
)

// serviceMapObject is the object-store document name for the gateway
// group's peer registry, distinct from the per-group PGS state object
// so a peer's liveness/addressing metadata never competes for the
// same CAS lock as subsystem/namespace state.
const serviceMapObject = "gateway_services"

// ServiceEntry is one peer's registration in the service map.
type ServiceEntry struct {
	Name          string `json:"name"`
	GroupID       int    `json:"group_id"`
	GatewayAddr   string `json:"gateway_addr"`
	DiscoveryAddr string `json:"discovery_addr"`
	EngineVersion string `json:"engine_version"`
}

// RegisterPeer publishes this peer's ServiceEntry into the object
// store's service map, per §4.8's startup sequence closing step.
// Registration is best-effort CAS with a bounded retry count; peers
// never block startup indefinitely over registry contention.
func RegisterPeer(ctx context.Context, store *objectstore.Store, entry ServiceEntry) error {
	if err := store.CreateIfMissing(ctx, serviceMapObject); err != nil {
		return fmt.Errorf("supervisor: create service map: %w", err)
	}

	const maxAttempts = 10
	for attempt := 0; attempt < maxAttempts; attempt++ {
		_, version, etag, err := store.GetAll(ctx, serviceMapObject)
		if err != nil {
			return fmt.Errorf("supervisor: read service map: %w", err)
		}

		raw, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("supervisor: marshal service entry: %w", err)
		}
		value := string(raw)

		_, _, err = store.WriteCAS(ctx, serviceMapObject, version, etag, entry.Name, &value)
		if err == nil {
			return nil
		}
		if attempt == maxAttempts-1 {
			return fmt.Errorf("supervisor: register peer %s: %w", entry.Name, err)
		}
	}
	return nil
}

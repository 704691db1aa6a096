package config

import (
	"context"
	"fmt"

	"github.com/marmos91/nvmeof-gateway/internal/logger"
	"github.com/marmos91/nvmeof-gateway/pkg/discovery"
	"github.com/marmos91/nvmeof-gateway/pkg/localcache"
	"github.com/marmos91/nvmeof-gateway/pkg/metrics"
	"github.com/marmos91/nvmeof-gateway/pkg/objectstore"
	"github.com/marmos91/nvmeof-gateway/pkg/pgs"
	"github.com/marmos91/nvmeof-gateway/pkg/reconciler"
	"github.com/marmos91/nvmeof-gateway/pkg/resource"
	"github.com/marmos91/nvmeof-gateway/pkg/supervisor"
)

// Gateway bundles one peer's fully wired components, ready for a
// caller (cmd/nvmeof-gatewayd) to run and shut down. It plays the role
// the teacher's registry.Registry played for a DittoServer: the single
// object a command constructs from Config and then drives.
type Gateway struct {
	Config *Config

	Object     *objectstore.Store
	PGS        *pgs.Store
	Cache      *localcache.Cache
	Lease      *pgs.Lease
	Resource   *resource.Service
	Reconciler *reconciler.Reconciler
	Discovery  *discovery.Responder
	Supervisor *supervisor.Supervisor
}

// InitializeGateway wires one peer's full component graph: object
// store, PGS mirror, local cache, change lease, Resource Service,
// Reconciler, Discovery Responder, and Supervisor. It does not start
// any of them — Start does that, once the Supervisor has an engine RPC
// client to hand to the Resource Service.
func InitializeGateway(ctx context.Context, cfg *Config) (*Gateway, error) {
	logger.Debug("config: wiring gateway component graph", "peer", cfg.Gateway.PeerName, "group", cfg.Gateway.GroupName)

	objCfg := objectstore.Config{
		Bucket:            cfg.ObjectStore.Bucket,
		Region:            cfg.ObjectStore.Region,
		Endpoint:          cfg.ObjectStore.Endpoint,
		KeyPrefix:         cfg.ObjectStore.KeyPrefix,
		ForcePathStyle:    cfg.ObjectStore.ForcePathStyle,
		WatchPollInterval: cfg.ObjectStore.WatchPoll,
	}
	objStore, err := objectstore.NewFromConfig(ctx, objCfg)
	if err != nil {
		return nil, fmt.Errorf("config: failed to initialize object store: %w", err)
	}
	objStore.SetMetrics(metrics.NewObjectStoreMetrics())

	pgsStore, err := pgs.Open(ctx, objStore, cfg.Gateway.GroupName)
	if err != nil {
		return nil, fmt.Errorf("config: failed to open PGS object %q: %w", pgs.ObjectName(cfg.Gateway.GroupName), err)
	}
	pgsStore.SetMetrics(metrics.NewPGSMetrics())

	cache := localcache.New()

	leaseCfg := pgs.LeaseConfig{
		Duration:      cfg.Lease.Duration,
		Retries:       cfg.Lease.Retries,
		RetrySleep:    cfg.Lease.RetrySleep,
		DisableUnlock: cfg.Lease.DisableUnlock,
	}
	lease := pgs.NewLease(pgsStore, cfg.Gateway.PeerName, "", leaseCfg)

	resourceCfg := resource.DefaultConfig(cfg.Gateway.PeerName, cfg.Gateway.GroupID)
	resourceCfg.BDevsPerCluster = cfg.PGS.BDevsPerCluster
	resourceCfg.OmapFileUpdateReloads = cfg.PGS.OmapFileUpdateReloads

	// The Resource Service's Engine RPC Client is not known until the
	// Supervisor starts its subprocesses and hands back a live client
	// (Start below); resource.New accepts a nil engine here and
	// (*Gateway).Start rebinds it once the engine is reachable.
	resourceSvc := resource.New(resourceCfg, nil, pgsStore, lease)

	dispatcher := resource.BuildReplayDispatcher(resourceSvc)
	rec := reconciler.New(pgsStore, cache, dispatcher)
	rec.SetMetrics(metrics.NewReconcileMetrics())

	cacheSource := discovery.NewCacheSource(cache)
	responder := discovery.New(cfg.Discovery.ListenAddress, cacheSource, cfg.Gateway.PeerName)
	responder.SetMetrics(metrics.NewDiscoveryMetrics())
	rec.OnChange(responder.NotifyChange)

	supCfg := supervisor.Config{
		PeerName:             cfg.Gateway.PeerName,
		LogDir:               cfg.Supervisor.LogDir,
		MaxLogFileSizeMB:     cfg.Supervisor.MaxLogFileSizeMB,
		MaxLogFiles:          cfg.Supervisor.MaxLogFiles,
		EnginePath:           cfg.Supervisor.EnginePath,
		EngineArgs:           cfg.Supervisor.EngineArgs,
		MonitorPath:          cfg.Supervisor.MonitorPath,
		MonitorArgs:          cfg.Supervisor.MonitorArgs,
		RPCSocketDir:         cfg.Supervisor.RPCSocketDir,
		RPCSocketName:        cfg.Supervisor.RPCSocketName,
		PingSocketName:       cfg.Supervisor.PingSocketName,
		SubsystemsSocketName: cfg.Supervisor.SubsystemsSocketName,
		GatewayAddr:          cfg.Dispatch.ListenAddress,
		DiscoveryAddr:        cfg.Discovery.ListenAddress,
		RendezvousAddr:       cfg.Supervisor.RendezvousAddr,
		ShutdownTimeout:      cfg.ShutdownTimeout,
		Ping: supervisor.PingConfig{
			Interval:                   cfg.Supervisor.Ping.Interval,
			AllowedConsecutiveFailures: cfg.Supervisor.Ping.AllowedConsecutiveFailures,
		},
	}
	sup := supervisor.New(supCfg, objStore)
	sup.SetMetrics(metrics.NewSupervisorMetrics())

	return &Gateway{
		Config:     cfg,
		Object:     objStore,
		PGS:        pgsStore,
		Cache:      cache,
		Lease:      lease,
		Resource:   resourceSvc,
		Reconciler: rec,
		Discovery:  responder,
		Supervisor: sup,
	}, nil
}

// Start brings the Supervisor's subprocesses up, binds the resulting
// engine RPC client into the Resource Service, runs one synchronous
// reconcile pass so the local cache mirrors the PGS before the
// Discovery Responder or Resource Service gRPC surface ever answers a
// request, then returns. The caller is expected to launch Discovery,
// dispatch, and g.Reconciler.Run as background goroutines afterward.
func (g *Gateway) Start(ctx context.Context) error {
	groupID, err := g.Supervisor.Start(ctx)
	if err != nil {
		return fmt.Errorf("config: supervisor start failed: %w", err)
	}
	g.Config.Gateway.GroupID = int(groupID)
	g.Resource.BindEngine(g.Supervisor.EngineClient())

	if err := g.Reconciler.Reconcile(ctx); err != nil {
		return fmt.Errorf("config: initial reconcile failed: %w", err)
	}
	return nil
}

// Shutdown tears the Supervisor's subprocesses down within cfg's
// configured timeout.
func (g *Gateway) Shutdown(ctx context.Context) error {
	return g.Supervisor.Shutdown(ctx)
}

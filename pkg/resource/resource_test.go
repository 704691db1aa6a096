package resource

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/marmos91/nvmeof-gateway/pkg/gwerrors"
	"github.com/marmos91/nvmeof-gateway/pkg/pgs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCASStore is an in-memory stand-in for *pgs.Store that can be told
// to fail its next N CAS calls with gwerrors.ErrStale, to exercise
// authoritativeWrite's retry path without a real S3-backed store.
type fakeCASStore struct {
	mu            sync.Mutex
	version       uint64
	values        map[string]string
	staleFailures int
}

func newFakeCASStore() *fakeCASStore {
	return &fakeCASStore{version: 1, values: map[string]string{}}
}

func (f *fakeCASStore) LocalVersion() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.version
}

func (f *fakeCASStore) AddKey(ctx context.Context, expectedVersion uint64, key, value string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.staleFailures > 0 {
		f.staleFailures--
		return 0, fmt.Errorf("%w: forced test retry", gwerrors.ErrStale)
	}
	if expectedVersion != f.version {
		return 0, fmt.Errorf("%w: version %d != expected %d", gwerrors.ErrStale, f.version, expectedVersion)
	}
	f.values[key] = value
	f.version++
	return f.version, nil
}

func (f *fakeCASStore) RemoveKey(ctx context.Context, expectedVersion uint64, key string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if expectedVersion != f.version {
		return 0, fmt.Errorf("%w: version %d != expected %d", gwerrors.ErrStale, f.version, expectedVersion)
	}
	delete(f.values, key)
	f.version++
	return f.version, nil
}

// fakeLease is a no-op stand-in for *pgs.Lease: authoritativeWrite's
// retry decision is driven entirely by the store's CAS outcome in these
// tests, not by lease contention.
type fakeLease struct{}

func (fakeLease) Acquire(ctx context.Context, expectedVersion uint64) error { return nil }
func (fakeLease) Release(ctx context.Context) error                        { return nil }

// fakeEngine counts invocations per RPC method so a test can assert an
// engine mutation was applied exactly once despite a CAS retry.
type fakeEngine struct {
	mu    sync.Mutex
	calls map[string]int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{calls: map[string]int{}}
}

func (f *fakeEngine) Call(ctx context.Context, method string, params, out any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
	return nil
}

func (f *fakeEngine) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// TestNamespaceChangeLoadBalancingGroup_RetriesCASWithoutDoubleApplyingEngineWork
// forces authoritativeWrite's final CAS to fail once with a stale
// version, triggering exactly one retry. The engine's remove/add calls
// and the cluster refcount move must each happen exactly once — the
// retried invocation of NamespaceChangeLoadBalancingGroup's closure must
// observe its own prior work and republish rather than re-run it.
func TestNamespaceChangeLoadBalancingGroup_RetriesCASWithoutDoubleApplyingEngineWork(t *testing.T) {
	store := newFakeCASStore()
	store.staleFailures = 1 // first AddKey call is forced stale; retry must succeed

	engine := newFakeEngine()
	clusters := newClusterRegistry(32)
	clusters.Acquire(0, "pool_image_5")

	ns := &pgs.Namespace{NQN: "nqn.test:sub1", NSID: 5, UUID: "u1", BackingName: "pool_image_5", ANAGroupID: 0}

	s := &Service{
		cfg:           DefaultConfig("gw1", 0),
		engine:        engine,
		store:         store,
		lease:         fakeLease{},
		namespaces:    map[string]map[uint32]*pgs.Namespace{"nqn.test:sub1": {5: ns}},
		anaGroupOwner: map[int]string{},
		clusters:      clusters,
	}

	err := s.NamespaceChangeLoadBalancingGroup(context.Background(), ModeAuthoritative, "nqn.test:sub1", 5, 1)
	require.NoError(t, err)

	assert.Equal(t, 1, engine.count("nvmf_subsystem_remove_ns"), "remove_ns must not be re-issued on CAS retry")
	assert.Equal(t, 1, engine.count("nvmf_subsystem_add_ns"), "add_ns must not be re-issued on CAS retry")
	assert.Equal(t, 1, engine.count("bdev_rbd_register_cluster"))
	assert.Equal(t, 1, clusters.Refcount(1), "cluster refcount must reflect a single acquire, not a doubled one")
	assert.Equal(t, 0, clusters.Refcount(0), "old cluster must be released exactly once")
	assert.Equal(t, 1, ns.ANAGroupID)

	var published pgs.Namespace
	require.NoError(t, json.Unmarshal([]byte(store.values[pgs.BuildNamespaceKey("nqn.test:sub1", 5)]), &published))
	assert.Equal(t, 1, published.ANAGroupID)
}

func TestClusterRegistryAcquireFillsBeforeCreatingNew(t *testing.T) {
	r := newClusterRegistry(2)

	name1, isNew1 := r.Acquire(0, "dev1")
	assert.Equal(t, "cluster_context_0_0", name1)
	assert.True(t, isNew1)

	name2, isNew2 := r.Acquire(0, "dev2")
	assert.Equal(t, name1, name2)
	assert.False(t, isNew2)

	name3, isNew3 := r.Acquire(0, "dev3")
	assert.NotEqual(t, name1, name3)
	assert.True(t, isNew3)
	assert.Equal(t, "cluster_context_0_1", name3)
}

func TestClusterRegistryReleaseUnregistersOnLastDevice(t *testing.T) {
	r := newClusterRegistry(2)
	name, _ := r.Acquire(1, "devA")

	_, unregistered := r.Release(1, "devA")
	assert.True(t, unregistered)
	assert.Equal(t, 0, r.Refcount(1))

	name2, isNew := r.Acquire(1, "devB")
	assert.Equal(t, name, name2)
	assert.True(t, isNew)
}

func TestClusterRegistryRefcount(t *testing.T) {
	r := newClusterRegistry(4)
	r.Acquire(2, "d1")
	r.Acquire(2, "d2")
	r.Acquire(2, "d3")
	assert.Equal(t, 3, r.Refcount(2))
	r.Release(2, "d2")
	assert.Equal(t, 2, r.Refcount(2))
}

func TestValidatePort(t *testing.T) {
	assert.NoError(t, validatePort(4420))
	assert.Error(t, validatePort(0))
	assert.Error(t, validatePort(65536))
}

func TestValidateNSID(t *testing.T) {
	assert.NoError(t, validateNSID(1, 32))
	assert.Error(t, validateNSID(0, 32))
	assert.Error(t, validateNSID(33, 32))
}

func TestNormalizeAddressBracketsIPv6(t *testing.T) {
	assert.Equal(t, "[::1]", normalizeAddress("::1"))
	assert.Equal(t, "[::1]", normalizeAddress("[::1]"))
	assert.Equal(t, "10.0.0.1", normalizeAddress("10.0.0.1"))
}

func TestJoinHostPort(t *testing.T) {
	assert.Equal(t, "[::1]:4420", joinHostPort("::1", 4420))
	assert.Equal(t, "10.0.0.1:4420", joinHostPort("10.0.0.1", 4420))
}

func TestRoundUpToThousand(t *testing.T) {
	assert.Equal(t, int64(0), roundUpToThousand(0))
	assert.Equal(t, int64(1000), roundUpToThousand(1000))
	assert.Equal(t, int64(2000), roundUpToThousand(1500))
	assert.Equal(t, int64(1000), roundUpToThousand(1))
}

func TestGenerateDHCHAPKeyPairShapeAndRoundTrip(t *testing.T) {
	key, ctrlKey, err := GenerateDHCHAPKeyPair(false)
	require.NoError(t, err)
	assert.Contains(t, key, dhchapKeyPrefix)
	assert.Empty(t, ctrlKey, "non-bidirectional generation must not produce a controller key")

	key2, _, err := GenerateDHCHAPKeyPair(false)
	require.NoError(t, err)
	assert.NotEqual(t, key, key2, "keys must be randomly generated")
}

func TestGenerateDHCHAPKeyPairBidirectionalDerivesDistinctKeys(t *testing.T) {
	hostKey, ctrlKey, err := GenerateDHCHAPKeyPair(true)
	require.NoError(t, err)
	assert.Contains(t, hostKey, dhchapKeyPrefix)
	assert.Contains(t, ctrlKey, dhchapKeyPrefix)
	assert.NotEqual(t, hostKey, ctrlKey, "host and controller legs must not share key material")
}

func TestDHCHAPChallengeResponseDeterministic(t *testing.T) {
	key := []byte("a-fixed-test-key-for-hmac-check")
	challenge := []byte("challenge-bytes")
	r1 := dhchapChallengeResponse(key, challenge)
	r2 := dhchapChallengeResponse(key, challenge)
	assert.Equal(t, r1, r2)
	assert.Len(t, r1, 32)
}

func TestNextFreeNSIDSkipsUsed(t *testing.T) {
	s := &Service{namespaces: map[string]map[uint32]*pgs.Namespace{
		"nqn1": {1: {NSID: 1}, 2: {NSID: 2}},
	}}
	assert.Equal(t, uint32(3), s.nextFreeNSID("nqn1", 32))
}

func TestCntlIDRange(t *testing.T) {
	s := &Service{cfg: Config{GroupID: 2}}
	min, max := s.cntlidRange()
	assert.Equal(t, 2*2040+1, min)
	assert.Equal(t, min+2039, max)
}

func TestSplitNamespaceKey(t *testing.T) {
	nqn, nsid, err := splitNamespaceKey("namespace_nqn.2016-06.io.spdk:cnode1_5")
	require.NoError(t, err)
	assert.Equal(t, "nqn.2016-06.io.spdk:cnode1", nqn)
	assert.Equal(t, uint32(5), nsid)
}

func TestSplitHostKey(t *testing.T) {
	nqn, hostNQN, err := splitHostKey("host_nqn.2016-06.io.spdk:cnode1_nqn.2014-08.org.nvmexpress:uuid:1b4e28ba-2fa1-11d2-883f-0016d3cca427")
	require.NoError(t, err)
	assert.Equal(t, "nqn.2016-06.io.spdk:cnode1", nqn)
	assert.Equal(t, "nqn.2014-08.org.nvmexpress:uuid:1b4e28ba-2fa1-11d2-883f-0016d3cca427", hostNQN)
}

func TestSplitListenerKey(t *testing.T) {
	nqn, gateway, trAddr, trSvcID, err := splitListenerKey("listener_nqn.2016-06.io.spdk:cnode1_gw1_TCP_10.0.0.1_4420")
	require.NoError(t, err)
	assert.Equal(t, "nqn.2016-06.io.spdk:cnode1", nqn)
	assert.Equal(t, "gw1", gateway)
	assert.Equal(t, "10.0.0.1", trAddr)
	assert.Equal(t, "4420", trSvcID)
}

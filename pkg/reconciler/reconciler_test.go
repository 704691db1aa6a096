package reconciler

import (
	"context"
	"testing"

	"github.com/marmos91/nvmeof-gateway/pkg/pgs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeDiffAdded(t *testing.T) {
	local := map[string]string{}
	remote := map[string]string{"subsystem_a": "v1"}
	d := computeDiff(local, remote)
	assert.Equal(t, map[string]string{"subsystem_a": "v1"}, d.Added)
	assert.Empty(t, d.Removed)
	assert.Empty(t, d.Changed)
}

func TestComputeDiffRemoved(t *testing.T) {
	local := map[string]string{"subsystem_a": "v1"}
	remote := map[string]string{}
	d := computeDiff(local, remote)
	assert.Equal(t, map[string]string{"subsystem_a": "v1"}, d.Removed)
	assert.Empty(t, d.Added)
	assert.Empty(t, d.Changed)
}

func TestComputeDiffChanged(t *testing.T) {
	local := map[string]string{"subsystem_a": "v1"}
	remote := map[string]string{"subsystem_a": "v2"}
	d := computeDiff(local, remote)
	assert.Equal(t, map[string]string{"subsystem_a": "v2"}, d.Changed)
	assert.Empty(t, d.Added)
	assert.Empty(t, d.Removed)
}

func TestComputeDiffUnchangedIsIgnored(t *testing.T) {
	local := map[string]string{"subsystem_a": "v1"}
	remote := map[string]string{"subsystem_a": "v1"}
	d := computeDiff(local, remote)
	assert.Empty(t, d.Added)
	assert.Empty(t, d.Removed)
	assert.Empty(t, d.Changed)
}

func TestGroupByPrefix(t *testing.T) {
	keys := map[string]string{
		"subsystem_nqn1":      "a",
		"namespace_nqn1_1":    "b",
		"host_nqn1_hostnqn":   "c",
		"listener_nqn1_gw_tcp": "d",
	}
	grouped := groupByPrefix(keys, pgs.PrefixOrder)
	assert.Len(t, grouped[pgs.SubsystemPrefix], 1)
	assert.Len(t, grouped[pgs.NamespacePrefix], 1)
	assert.Len(t, grouped[pgs.HostPrefix], 1)
	assert.Len(t, grouped[pgs.ListenerPrefix], 1)
	assert.Empty(t, grouped[pgs.NamespaceQoSPrefix])
}

func TestDispatchGroupOrderAdds(t *testing.T) {
	var order []string
	makeHandler := func(prefix string) Handler {
		return Handler{
			Add: func(ctx context.Context, key, value string) error {
				order = append(order, prefix)
				return nil
			},
			Remove: func(ctx context.Context, key, value string) error {
				order = append(order, prefix)
				return nil
			},
		}
	}
	d := NewDispatcher(map[string]Handler{
		pgs.SubsystemPrefix:    makeHandler(pgs.SubsystemPrefix),
		pgs.NamespacePrefix:    makeHandler(pgs.NamespacePrefix),
		pgs.NamespaceQoSPrefix: makeHandler(pgs.NamespaceQoSPrefix),
		pgs.HostPrefix:         makeHandler(pgs.HostPrefix),
		pgs.ListenerPrefix:     makeHandler(pgs.ListenerPrefix),
	})
	r := &Reconciler{dispatcher: d}

	keys := map[string]string{
		"listener_nqn1_gw_tcp_ip_port": "d",
		"host_nqn1_hostnqn":            "c",
		"namespace_nqn1_1":             "b",
		"subsystem_nqn1":               "a",
		"qos_nqn1_1":                   "e",
	}
	r.dispatchGroup(context.Background(), keys, true)
	assert.Equal(t, []string{
		pgs.SubsystemPrefix, pgs.NamespacePrefix, pgs.NamespaceQoSPrefix, pgs.HostPrefix, pgs.ListenerPrefix,
	}, order)

	order = nil
	r.dispatchGroup(context.Background(), keys, false)
	assert.Equal(t, []string{
		pgs.ListenerPrefix, pgs.HostPrefix, pgs.NamespaceQoSPrefix, pgs.NamespacePrefix, pgs.SubsystemPrefix,
	}, order)
}

func TestReversedPrefixOrderIsReverse(t *testing.T) {
	fwd := pgs.PrefixOrder
	rev := pgs.ReversedPrefixOrder()
	require.Len(t, rev, len(fwd))
	for i := range fwd {
		assert.Equal(t, fwd[i], rev[len(rev)-1-i])
	}
}

func TestMergeMaps(t *testing.T) {
	a := map[string]string{"x": "1"}
	b := map[string]string{"y": "2"}
	out := mergeMaps(a, b)
	assert.Equal(t, map[string]string{"x": "1", "y": "2"}, out)
}

func TestHasPrefix(t *testing.T) {
	assert.True(t, hasPrefix("subsystem_foo", "subsystem_"))
	assert.False(t, hasPrefix("sub", "subsystem_"))
	assert.False(t, hasPrefix("namespace_foo", "subsystem_"))
}

package discovery

import (
	"net"
	"testing"
	"time"

	"github.com/marmos91/nvmeof-gateway/pkg/pgs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T) (*Session, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { _ = client.Close() })
	return NewSession(server, time.Minute), client
}

func TestSessionHandleICReqTransitionsToReady(t *testing.T) {
	sess, _ := newTestSession(t)
	require.Equal(t, StateAwaitICReq, sess.State())

	resp, err := sess.HandleICReq(ICReq{})
	require.NoError(t, err)
	assert.Equal(t, uint32(maxDataCapsules), resp.MaxDataCapsules)
	assert.Equal(t, StateReady, sess.State())
}

func TestSessionHandleConnectSetsIdentity(t *testing.T) {
	sess, _ := newTestSession(t)
	sess.HandleConnect("hostnqn1", "subnqn1", 42)
	assert.Equal(t, "hostnqn1", sess.hostNQN)
	assert.Equal(t, "subnqn1", sess.subNQN)
	assert.Equal(t, uint16(42), sess.cntlID)
}

func TestSessionWritePropertyShutdownLatch(t *testing.T) {
	sess, _ := newTestSession(t)
	assert.Equal(t, StateAwaitICReq, sess.State())

	sess.WriteProperty(PropCC, ShutdownNotificationMask)
	assert.True(t, sess.shutdownLatch)
	assert.Equal(t, StateShuttingDown, sess.State())
}

func TestSessionReadWriteProperty(t *testing.T) {
	sess, _ := newTestSession(t)
	sess.WriteProperty(PropCSTS, 0x01)
	assert.Equal(t, uint64(0x01), sess.ReadProperty(PropCSTS))
}

func TestSessionParkAndTakePendingAsync(t *testing.T) {
	sess, _ := newTestSession(t)
	_, ok := sess.TakePendingAsync()
	assert.False(t, ok)

	sess.ParkAsyncEvent(7)
	cid, ok := sess.TakePendingAsync()
	require.True(t, ok)
	assert.Equal(t, uint16(7), cid)

	_, ok = sess.TakePendingAsync()
	assert.False(t, ok)
}

func TestSessionIsIdleExpired(t *testing.T) {
	sess, _ := newTestSession(t)
	assert.False(t, sess.IsIdleExpired(time.Now()))
	assert.True(t, sess.IsIdleExpired(time.Now().Add(2*time.Minute)))
}

func TestSessionLogPageSlice(t *testing.T) {
	sess, _ := newTestSession(t)
	sess.CacheLogPage([]byte("0123456789"))
	assert.Equal(t, []byte("234"), sess.LogPageSlice(2, 3))
	assert.Nil(t, sess.LogPageSlice(100, 5))
	assert.Equal(t, []byte("89"), sess.LogPageSlice(8, 10))
}

func TestSessionAdvanceSQHeadWraps(t *testing.T) {
	sess, _ := newTestSession(t)
	var last uint16
	for i := 0; i < sqHeadWrap; i++ {
		last = sess.AdvanceSQHead()
	}
	assert.Equal(t, uint16(0), last)
}

func TestICReqRoundTrip(t *testing.T) {
	_, err := DecodeICReq(make([]byte, ICReqSize))
	require.NoError(t, err)

	_, err = DecodeICReq(make([]byte, 4))
	assert.Error(t, err)
}

func TestICRespEncodeDecodeSize(t *testing.T) {
	resp := NewICResp()
	buf := resp.Encode()
	assert.Len(t, buf, 120)
}

func TestDecodeCapsuleCmdRejectsShortBody(t *testing.T) {
	_, err := DecodeCapsuleCmd(make([]byte, 10))
	assert.Error(t, err)
}

func TestCompletionQueueEntryEncode(t *testing.T) {
	cqe := CompletionQueueEntry{CID: 9, Status: 0}
	buf := cqe.Encode()
	require.Len(t, buf, 16)
}

func TestNewLogPageChangeEventEncodesAsyncEventDW0(t *testing.T) {
	cqe := NewLogPageChangeEvent(3)
	assert.Equal(t, uint32(0x02)|uint32(0xF0)<<8|uint32(0x70)<<16, cqe.DW0)
	assert.Equal(t, uint16(3), cqe.CID)
}

func TestMaterializeDiscoveryLogHeaderCount(t *testing.T) {
	entries := []LogEntrySource{
		{SubNQN: "nqn.2023-01.io.test:sub1", TrAddr: "10.0.0.1", TrSvcID: "4420", AdrFam: "ipv4"},
		{SubNQN: "nqn.2023-01.io.test:sub2", TrAddr: "10.0.0.2", TrSvcID: "4420", AdrFam: "ipv6"},
	}
	buf := MaterializeDiscoveryLog(entries)
	assert.Len(t, buf, logHeaderSize+2*logEntrySize)
}

func TestFilterListenersHostAccess(t *testing.T) {
	listeners := []pgs.Listener{
		{NQN: "sub1", TrAddr: "10.0.0.1", TrSvcID: "4420", AdrFam: "ipv4"},
		{NQN: "sub2", TrAddr: "10.0.0.2", TrSvcID: "4420", AdrFam: "ipv4"},
	}
	hosts := map[string][]pgs.Host{
		"sub1": {{NQN: "sub1", HostNQN: "hostA"}},
		"sub2": {{NQN: "sub2", HostNQN: "*"}},
	}

	out := FilterListeners(listeners, hosts, "hostA")
	require.Len(t, out, 2)

	out = FilterListeners(listeners, hosts, "hostB")
	require.Len(t, out, 1)
	assert.Equal(t, "sub2", out[0].SubNQN)
}

func TestHasAnyPrefix(t *testing.T) {
	assert.True(t, hasAnyPrefix("subsystem_nqn1", pgs.SubsystemPrefix, pgs.ListenerPrefix))
	assert.True(t, hasAnyPrefix("listener_nqn1", pgs.SubsystemPrefix, pgs.ListenerPrefix))
	assert.False(t, hasAnyPrefix("host_nqn1", pgs.SubsystemPrefix, pgs.ListenerPrefix))
}

func TestTrimNUL(t *testing.T) {
	b := append([]byte("abc"), make([]byte, 5)...)
	assert.Equal(t, []byte("abc"), trimNUL(b))
}

package discovery

import (
	"encoding/binary"

	"github.com/marmos91/nvmeof-gateway/pkg/pgs"
)

const (
	logHeaderSize = 1024
	logEntrySize  = 1024

	trTypeTCP          = 0x03
	addrFamilyIPv4     = 0x01
	addrFamilyIPv6     = 0x02
	subtypeNVMe        = 0x02
	secureNotRequired   = 0x00
	reservedControllerID = 0xFFFF
	asqszDefault       = 128
)

// LogEntrySource is the minimal view of a listener and its owning
// subsystem the materializer needs; callers project pgs.Listener into
// this shape after applying host-access filtering.
type LogEntrySource struct {
	SubNQN  string
	TrAddr  string
	TrSvcID string
	AdrFam  string
}

// MaterializeDiscoveryLog builds the 1024-byte header plus 1024 bytes
// per filtered listener entry, per §4.7.4's GET_LOG_PAGE materialization
// rule. entries must already be filtered against host-access rules
// before calling this.
func MaterializeDiscoveryLog(entries []LogEntrySource) []byte {
	buf := make([]byte, logHeaderSize+len(entries)*logEntrySize)

	binary.LittleEndian.PutUint64(buf[0:8], uint64(len(entries)))

	for i, e := range entries {
		off := logHeaderSize + i*logEntrySize
		entry := buf[off : off+logEntrySize]

		entry[0] = trTypeTCP
		entry[1] = addrFamilyOf(e.AdrFam)
		entry[2] = subtypeNVMe
		entry[3] = secureNotRequired
		binary.LittleEndian.PutUint16(entry[4:6], uint16(i)) // port id = entry index
		binary.LittleEndian.PutUint16(entry[6:8], reservedControllerID)
		binary.LittleEndian.PutUint16(entry[8:10], asqszDefault)

		copyPadded(entry[32:64], []byte(e.TrSvcID), ' ')   // transport svc id, 32B space-padded
		copyPadded(entry[64:320], []byte(e.SubNQN), 0)      // subnqn, 256B NUL-padded
		copyPadded(entry[320:576], []byte(e.TrAddr), ' ')   // traddr, 256B space-padded
	}
	return buf
}

func addrFamilyOf(adrfam string) byte {
	if adrfam == "ipv6" || adrfam == "IPv6" {
		return addrFamilyIPv6
	}
	return addrFamilyIPv4
}

func copyPadded(dst, src []byte, pad byte) {
	n := copy(dst, src)
	for i := n; i < len(dst); i++ {
		dst[i] = pad
	}
}

// FilterListeners applies §4.7.4's host-access rule: a listener's
// subsystem is included only if some host entry for that subsystem
// matches hostNQN exactly or is "*".
func FilterListeners(listeners []pgs.Listener, hostsBySubsystem map[string][]pgs.Host, hostNQN string) []LogEntrySource {
	var out []LogEntrySource
	for _, l := range listeners {
		if !hostAllowed(hostsBySubsystem[l.NQN], hostNQN) {
			continue
		}
		out = append(out, LogEntrySource{SubNQN: l.NQN, TrAddr: l.TrAddr, TrSvcID: l.TrSvcID, AdrFam: l.AdrFam})
	}
	return out
}

func hostAllowed(hosts []pgs.Host, hostNQN string) bool {
	for _, h := range hosts {
		if h.HostNQN == "*" || h.HostNQN == hostNQN {
			return true
		}
	}
	return false
}

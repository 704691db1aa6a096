// Package discovery is the Discovery Responder (C7): an NVMe/TCP
// discovery-service listener, one goroutine per connection, that answers ICReq/Connect/Get
// Log Page/Keep-Alive/Async-Event-Request traffic from hosts probing
// for subsystems and listeners. It is grounded on the teacher's fixed
// record-marking frame reader (internal/adapter/nfs/connection.go) and
// its fixed-layout wire structs (internal/protocol/nfs/types.go),
// generalized from RPC record fragments to NVMe/TCP PDUs.
package discovery

import (
	"encoding/binary"
	"fmt"
)

// PDU type codes used on the admin/discovery queue, per §4.7.3.
const (
	PDUTypeICReq    = 0x01
	PDUTypeICResp   = 0x02
	PDUTypeCapsuleCmd = 0x04
	PDUTypeCapsuleResp = 0x05
	PDUTypeC2HData  = 0x06
)

// ICReq is the Initialize Connection Request PDU, fixed little-endian
// layout, 120-byte body (the 8-byte common header is already stripped).
type ICReq struct {
	PFV          uint16
	HPDA         uint8
	DigestEnable uint8
	MaxR2TLen    uint32
	_            [112]byte // reserved
}

// ICReqSize is the wire size of the ICReq body (post common header).
const ICReqSize = 120

// DecodeICReq parses a fixed 120-byte ICReq body.
func DecodeICReq(b []byte) (ICReq, error) {
	if len(b) < ICReqSize {
		return ICReq{}, fmt.Errorf("discovery: short ICReq: %d bytes", len(b))
	}
	return ICReq{
		PFV:          binary.LittleEndian.Uint16(b[0:2]),
		HPDA:         b[2],
		DigestEnable: b[3],
		MaxR2TLen:    binary.LittleEndian.Uint32(b[4:8]),
	}, nil
}

// ICResp is the Initialize Connection Response PDU body.
type ICResp struct {
	PFV              uint16
	HPDA             uint8
	DigestEnable     uint8
	MaxDataCapsules  uint32
}

// maxDataCapsules is the fixed advertised capsule limit from §4.7.4.
const maxDataCapsules = 131072

// NewICResp builds the gateway's standard ICResp.
func NewICResp() ICResp {
	return ICResp{PFV: 0, HPDA: 0, DigestEnable: 0, MaxDataCapsules: maxDataCapsules}
}

// Encode serializes an ICResp into a fixed 120-byte body.
func (r ICResp) Encode() []byte {
	buf := make([]byte, 120)
	binary.LittleEndian.PutUint16(buf[0:2], r.PFV)
	buf[2] = r.HPDA
	buf[3] = r.DigestEnable
	binary.LittleEndian.PutUint32(buf[4:8], r.MaxDataCapsules)
	return buf
}

// Opcode identifies an NVMe admin command within a Capsule Cmd PDU, per
// §4.7.3/§4.7.4. OpFabricsCommand (0x7F) is the fixed opcode for every
// Fabrics-type command; FabricsSubtype then discriminates CONNECT from
// PROPERTY_GET/PROPERTY_SET.
type Opcode uint8

const (
	OpFabricsCommand Opcode = 0x7F
	OpGetLogPage     Opcode = 0x02
	OpKeepAlive      Opcode = 0x18
	OpAsyncEvent     Opcode = 0x0C
	OpIdentify       Opcode = 0x06
)

// FabricsSubtype further discriminates a Fabrics-type command.
type FabricsSubtype uint8

const (
	SubtypePropertySet FabricsSubtype = 0x00
	SubtypeConnect     FabricsSubtype = 0x01
	SubtypePropertyGet FabricsSubtype = 0x04
)

// CapsuleCmd is the common envelope for admin/fabrics submission
// entries: opcode, command id, fabrics subtype, and a copy of the whole
// 64-byte submission entry.
type CapsuleCmd struct {
	Opcode  Opcode
	CID     uint16
	Subtype FabricsSubtype
	Payload [64]byte
}

// DecodeCapsuleCmd parses the fixed NVMe SQE layout used by both admin
// and fabrics commands (opcode at offset 0, CID at offset 2, the
// fabrics subtype for CONNECT/PROPERTY_GET/PROPERTY_SET is the whole
// byte at offset 4).
func DecodeCapsuleCmd(b []byte) (CapsuleCmd, error) {
	if len(b) < 64 {
		return CapsuleCmd{}, fmt.Errorf("discovery: short capsule cmd: %d bytes", len(b))
	}
	var cmd CapsuleCmd
	cmd.Opcode = Opcode(b[0])
	cmd.CID = binary.LittleEndian.Uint16(b[2:4])
	cmd.Subtype = FabricsSubtype(b[4])
	copy(cmd.Payload[:], b)
	return cmd, nil
}

// PropertyOffset identifies one of the four controller properties a
// PROPERTY_GET/PROPERTY_SET may target, per §4.7.4.
type PropertyOffset uint32

const (
	PropCAP  PropertyOffset = 0x00 // Controller Capabilities
	PropVS   PropertyOffset = 0x08 // Version
	PropCC   PropertyOffset = 0x14 // Controller Configuration
	PropCSTS PropertyOffset = 0x1C // Controller Status
)

// ShutdownNotificationMask is the CC field's shutdown-notification bits.
const ShutdownNotificationMask uint32 = 0b11 << 14

// CompletionQueueEntry is the fixed 16-byte NVMe CQE.
type CompletionQueueEntry struct {
	DW0    uint32
	DW1    uint32
	SQHead uint16
	SQID   uint16
	CID    uint16
	Status uint16
}

// Encode serializes a CQE into its fixed 16-byte wire form.
func (c CompletionQueueEntry) Encode() []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:4], c.DW0)
	binary.LittleEndian.PutUint32(buf[4:8], c.DW1)
	binary.LittleEndian.PutUint16(buf[8:10], c.SQHead)
	binary.LittleEndian.PutUint16(buf[10:12], c.SQID)
	binary.LittleEndian.PutUint16(buf[12:14], c.CID)
	binary.LittleEndian.PutUint16(buf[14:16], c.Status)
	return buf
}

// asyncEventDW0 encodes the log-page-change async event, per §4.7.5:
// async-event-type 0x02, info 0xF0, log-page-identifier 0x70.
const asyncEventDW0 = uint32(0x02) | uint32(0xF0)<<8 | uint32(0x70)<<16

// NewLogPageChangeEvent builds the CQE emitted to a parked
// ASYNC_EVENT_REQUEST when the discovery log changes.
func NewLogPageChangeEvent(cid uint16) CompletionQueueEntry {
	return CompletionQueueEntry{DW0: asyncEventDW0, CID: cid}
}

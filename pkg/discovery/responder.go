package discovery

import (
	"context"
	"encoding/binary"
	"net"
	"sync"
	"time"

	"github.com/marmos91/nvmeof-gateway/internal/logger"
	"github.com/marmos91/nvmeof-gateway/internal/telemetry"
	"github.com/marmos91/nvmeof-gateway/pkg/pgs"
)

// MaxConnections bounds concurrent discovery sessions, per §4.7.1.
const MaxConnections = 10240

// defaultKeepAliveTimeout is the keep-alive timeout of every session;
// CONNECT does not change it.
const defaultKeepAliveTimeout = 30 * time.Second

// ListenerSource supplies the current listener/host state the
// Discovery Responder needs to answer GET_LOG_PAGE requests, backed
// by read-only snapshots of the Local State Cache (§5: "no shared
// mutable state with the Resource Service except read-only snapshots").
type ListenerSource interface {
	Listeners() []pgs.Listener
	HostsBySubsystem(nqn string) []pgs.Host
}

// Responder runs the discovery listener. Per §9's idiomatic-Go
// translation, the reference's single-threaded select()-over-sockets
// loop becomes one accept goroutine plus one goroutine per accepted
// connection — Go's scheduler is the selector — while every
// session-level field and state transition in §4.7.2/§4.7.4 is
// preserved exactly.
type Responder struct {
	addr    string
	source  ListenerSource
	gateway string

	mu       sync.Mutex
	sessions map[uint64]*Session
	sem      chan struct{}

	ln      net.Listener
	metrics Metrics
}

// New builds a Responder bound to addr (default "0.0.0.0:8009") and
// the shared read-only listener/host source.
func New(addr string, source ListenerSource, gatewayName string) *Responder {
	if addr == "" {
		addr = "0.0.0.0:8009"
	}
	return &Responder{
		addr:     addr,
		source:   source,
		gateway:  gatewayName,
		sessions: map[uint64]*Session{},
		sem:      make(chan struct{}, MaxConnections),
	}
}

// Serve runs the accept loop until ctx is cancelled.
func (r *Responder) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", r.addr)
	if err != nil {
		return err
	}
	r.ln = ln
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	go r.runIdleScanner(ctx)

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				logger.Error("discovery: accept failed", logger.Err(err))
				continue
			}
		}
		select {
		case r.sem <- struct{}{}:
			go r.handleConnection(ctx, conn)
		default:
			logger.Warn("discovery: max connections reached, rejecting", "max", MaxConnections)
			if r.metrics != nil {
				r.metrics.RecordRejected()
			}
			_ = conn.Close()
		}
	}
}

func (r *Responder) handleConnection(ctx context.Context, conn net.Conn) {
	defer func() { <-r.sem }()

	sess := NewSession(conn, defaultKeepAliveTimeout)
	_, span := telemetry.StartDiscoverySpan(ctx, "connection", conn.RemoteAddr().String())
	defer span.End()

	r.mu.Lock()
	r.sessions[sess.gen] = sess
	r.mu.Unlock()
	if r.metrics != nil {
		r.metrics.RecordSessionOpened()
	}
	defer func() {
		r.mu.Lock()
		delete(r.sessions, sess.gen)
		r.mu.Unlock()
		_ = sess.Close()
		if r.metrics != nil {
			r.metrics.RecordSessionClosed()
		}
	}()

	for {
		if sess.State() == StateClosed || sess.State() == StateShuttingDown {
			return
		}
		header := make([]byte, 8)
		if _, err := readFull(conn, header); err != nil {
			return
		}
		pduType := header[0]
		length := binary.LittleEndian.Uint16(header[2:4])

		body := make([]byte, int(length))
		if _, err := readFull(conn, body); err != nil {
			return
		}
		sess.RefreshKeepAlive()

		if err := r.dispatchPDU(ctx, sess, pduType, body); err != nil {
			logger.Warn("discovery: malformed PDU or send failure, closing connection",
				logger.ClientIP(conn.RemoteAddr().String()), logger.ConnectionID(sess.gen), logger.Err(err))
			return
		}
	}
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (r *Responder) dispatchPDU(ctx context.Context, sess *Session, pduType byte, body []byte) error {
	switch pduType {
	case PDUTypeICReq:
		req, err := DecodeICReq(body)
		if err != nil {
			return err
		}
		resp, err := sess.HandleICReq(req)
		if err != nil {
			return err
		}
		_, err = sess.conn.Write(resp.Encode())
		return err

	case PDUTypeCapsuleCmd:
		cmd, err := DecodeCapsuleCmd(body)
		if err != nil {
			return err
		}
		return r.dispatchCommand(ctx, sess, cmd)

	default:
		return nil
	}
}

func (r *Responder) dispatchCommand(ctx context.Context, sess *Session, cmd CapsuleCmd) error {
	switch cmd.Opcode {
	case OpFabricsCommand:
		return r.dispatchFabrics(sess, cmd)
	case OpGetLogPage:
		return r.handleGetLogPage(sess, cmd)
	case OpKeepAlive:
		sess.RefreshKeepAlive()
		return r.sendCQE(sess, CompletionQueueEntry{CID: cmd.CID})
	case OpAsyncEvent:
		sess.ParkAsyncEvent(cmd.CID)
		return nil
	default:
		return r.sendCQE(sess, CompletionQueueEntry{CID: cmd.CID})
	}
}

func (r *Responder) dispatchFabrics(sess *Session, cmd CapsuleCmd) error {
	switch cmd.Subtype {
	case SubtypeConnect:
		hostNQN := string(trimNUL(cmd.Payload[8:40]))
		subNQN := string(trimNUL(cmd.Payload[40:48]))
		sess.HandleConnect(hostNQN, subNQN, cmd.CID)
		return r.sendCQE(sess, CompletionQueueEntry{CID: cmd.CID})
	case SubtypePropertyGet:
		offset := PropertyOffset(binary.LittleEndian.Uint32(cmd.Payload[4:8]))
		val := sess.ReadProperty(offset)
		return r.sendCQE(sess, CompletionQueueEntry{CID: cmd.CID, DW0: uint32(val)})
	case SubtypePropertySet:
		offset := PropertyOffset(binary.LittleEndian.Uint32(cmd.Payload[4:8]))
		value := binary.LittleEndian.Uint32(cmd.Payload[8:12])
		sess.WriteProperty(offset, value)
		return r.sendCQE(sess, CompletionQueueEntry{CID: cmd.CID})
	default:
		return r.sendCQE(sess, CompletionQueueEntry{CID: cmd.CID})
	}
}

func (r *Responder) handleGetLogPage(sess *Session, cmd CapsuleCmd) error {
	length := binary.LittleEndian.Uint32(cmd.Payload[8:12])
	offset := binary.LittleEndian.Uint32(cmd.Payload[16:20])

	if length > 16 && offset == 0 {
		listeners := r.source.Listeners()
		hostsBySub := map[string][]pgs.Host{}
		for _, l := range listeners {
			if _, ok := hostsBySub[l.NQN]; !ok {
				hostsBySub[l.NQN] = r.source.HostsBySubsystem(l.NQN)
			}
		}
		filtered := FilterListeners(listeners, hostsBySub, sess.hostNQN)
		sess.CacheLogPage(MaterializeDiscoveryLog(filtered))
	}

	slice := sess.LogPageSlice(int(offset), int(length))
	if slice != nil {
		_, err := sess.conn.Write(slice)
		if err != nil {
			return err
		}
	}
	return r.sendCQE(sess, CompletionQueueEntry{CID: cmd.CID})
}

func (r *Responder) sendCQE(sess *Session, cqe CompletionQueueEntry) error {
	cqe.SQHead = sess.AdvanceSQHead()
	_, err := sess.conn.Write(cqe.Encode())
	return err
}

// NotifyChange implements the Reconciler's change hook: if any changed
// key carries the subsystem_ or listener_ prefix, every parked session
// receives a log-page-change async event, per §4.7.5.
func (r *Responder) NotifyChange(changedKeys map[string]string) {
	relevant := false
	for k := range changedKeys {
		if hasAnyPrefix(k, pgs.SubsystemPrefix, pgs.ListenerPrefix) {
			relevant = true
			break
		}
	}
	if !relevant {
		return
	}

	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	for _, sess := range sessions {
		if cmdID, ok := sess.TakePendingAsync(); ok {
			_ = r.sendCQE(sess, NewLogPageChangeEvent(cmdID))
			if r.metrics != nil {
				r.metrics.RecordLogPageChangeEvent()
			}
		}
	}
}

func (r *Responder) runIdleScanner(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			r.mu.Lock()
			for gen, sess := range r.sessions {
				if sess.IsIdleExpired(now) {
					logger.Info("discovery: evicting idle session", logger.ConnectionID(gen))
					_ = sess.Close()
					delete(r.sessions, gen)
					if r.metrics != nil {
						r.metrics.RecordIdleEvicted()
					}
				}
			}
			r.mu.Unlock()
		}
	}
}

func trimNUL(b []byte) []byte {
	for i, c := range b {
		if c == 0 {
			return b[:i]
		}
	}
	return b
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if len(s) >= len(p) && s[:len(p)] == p {
			return true
		}
	}
	return false
}

package discovery

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is a discovery connection's FSM state, per §4.7.4.
type State int

const (
	StateAwaitICReq State = iota
	StateReady
	StateShuttingDown
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitICReq:
		return "AWAIT_ICREQ"
	case StateReady:
		return "READY"
	case StateShuttingDown:
		return "SHUTTING_DOWN"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// sqHeadWrap is the submission-queue head pointer's wraparound bound,
// per §4.7.2.
const sqHeadWrap = 128

// Session is one NVMe/TCP discovery connection's full state, per
// §4.7.2's field list.
type Session struct {
	mu sync.Mutex

	conn net.Conn

	recvBuf []byte

	sqHead uint16
	cntlID uint16
	gen    uint64

	hostNQN   string
	subNQN    string
	allowlist []LogEntrySource // cached listeners this host may see

	cachedLogPage []byte

	keepAliveAt      time.Time
	keepAliveTimeout time.Duration

	pendingAsync  bool
	asyncCmdID    uint16

	cc  uint32 // Controller Configuration bytes
	csts uint32

	shutdownLatch bool
	state         State
}

var sessionGenCounter uint64
var sessionGenMu sync.Mutex

func nextGeneration() uint64 {
	sessionGenMu.Lock()
	defer sessionGenMu.Unlock()
	sessionGenCounter++
	return sessionGenCounter
}

// NewSession wraps a freshly accepted connection in AWAIT_ICREQ state.
func NewSession(conn net.Conn, keepAliveTimeout time.Duration) *Session {
	return &Session{
		conn:             conn,
		cntlID:           uint16(uuid.New().ID()),
		gen:              nextGeneration(),
		keepAliveAt:      time.Now(),
		keepAliveTimeout: keepAliveTimeout,
		state:            StateAwaitICReq,
	}
}

// State returns the session's current FSM state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// HandleICReq transitions AWAIT_ICREQ -> READY and returns the ICResp
// to send.
func (s *Session) HandleICReq(req ICReq) (ICResp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateReady
	return NewICResp(), nil
}

// HandleConnect populates host/controller identity and starts the
// keep-alive clock, per §4.7.4's Fabric CONNECT transition.
func (s *Session) HandleConnect(hostNQN, subNQN string, cntlID uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hostNQN = hostNQN
	s.subNQN = subNQN
	s.cntlID = cntlID
	s.keepAliveAt = time.Now()
}

// ReadProperty returns the current value of one of the four defined
// controller properties.
func (s *Session) ReadProperty(offset PropertyOffset) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch offset {
	case PropCC:
		return uint64(s.cc)
	case PropCSTS:
		return uint64(s.csts)
	case PropVS:
		return 0x00010000 // NVMe 1.0 version encoding (low bits reserved)
	case PropCAP:
		return 0
	default:
		return 0
	}
}

// WriteProperty writes a controller property; writing CC with the
// shutdown-notification bits set latches SHUTTING_DOWN.
func (s *Session) WriteProperty(offset PropertyOffset, value uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch offset {
	case PropCC:
		s.cc = value
		if value&ShutdownNotificationMask != 0 {
			s.shutdownLatch = true
			s.state = StateShuttingDown
		}
	case PropCSTS:
		s.csts = value
	}
}

// ParkAsyncEvent records a parked ASYNC_EVENT_REQUEST, per §4.7.4.
func (s *Session) ParkAsyncEvent(cmdID uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingAsync = true
	s.asyncCmdID = cmdID
}

// TakePendingAsync clears and returns the parked async command id, if
// any, so the caller can emit its CQE exactly once.
func (s *Session) TakePendingAsync() (cmdID uint16, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.pendingAsync {
		return 0, false
	}
	s.pendingAsync = false
	s.cachedLogPage = nil // invalidate cached log page on the next fetch
	return s.asyncCmdID, true
}

// RefreshKeepAlive records activity for the idle-eviction scanner.
func (s *Session) RefreshKeepAlive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keepAliveAt = time.Now()
}

// IsIdleExpired reports whether this session has exceeded its
// keep-alive timeout.
func (s *Session) IsIdleExpired(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keepAliveTimeout <= 0 {
		return false
	}
	return now.Sub(s.keepAliveAt) > s.keepAliveTimeout
}

// CacheLogPage stores a materialized discovery log for offset/length
// slicing across subsequent GET_LOG_PAGE requests.
func (s *Session) CacheLogPage(page []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cachedLogPage = page
}

// LogPageSlice returns the cached log page slice at [offset, offset+length),
// or nil if nothing is cached yet at that range.
func (s *Session) LogPageSlice(offset, length int) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cachedLogPage == nil || offset >= len(s.cachedLogPage) {
		return nil
	}
	end := offset + length
	if end > len(s.cachedLogPage) {
		end = len(s.cachedLogPage)
	}
	return s.cachedLogPage[offset:end]
}

// AdvanceSQHead wraps the submission-queue head pointer at sqHeadWrap.
func (s *Session) AdvanceSQHead() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sqHead = (s.sqHead + 1) % sqHeadWrap
	return s.sqHead
}

// Close transitions to CLOSED and closes the underlying connection.
func (s *Session) Close() error {
	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()
	return s.conn.Close()
}

package broadcast

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/ordertrack/internal/logging"
	"github.com/pscheid92/ordertrack/internal/metrics"
	"github.com/pscheid92/ordertrack/internal/wire"
	"golang.org/x/time/rate"
)

const (
	writeDeadline       = 5 * time.Second
	defaultPingInterval = 30 * time.Second
	defaultPongGrace    = 60 * time.Second
	defaultSendBuffer   = 16

	// Inbound control frames are cheap to send and expensive to ignore;
	// 10/s with burst 20 is far above anything a sane client needs.
	inboundRatePerSecond = 10
	inboundBurst         = 20
)

// SessionState models the transport session lifecycle.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateOpen
	StateClosing
	StateClosed
)

// Session is one bidirectional client connection. A dedicated write pump
// serializes all outbound frames and heartbeats; the read pump runs on the
// caller's goroutine via ReadPump. Status pushes queue on a bounded channel;
// location pushes go through a latest-wins slot per order so a slow client
// only ever misses intermediate positions, never status transitions.
type Session struct {
	ID      uuid.UUID
	Subject string

	conn    *websocket.Conn
	clock   clockwork.Clock
	limiter *rate.Limiter

	pingInterval time.Duration
	pongGrace    time.Duration

	sendCh       chan []byte
	locationsMu  sync.Mutex
	locations    map[string][]byte
	locationKick chan struct{}

	stateMu sync.Mutex
	state   SessionState

	doneCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// SessionOptions tunes the heartbeat and the outbound buffer. Zero values
// fall back to the package defaults.
type SessionOptions struct {
	PingInterval time.Duration
	PongGrace    time.Duration
	SendBuffer   int
}

func (o *SessionOptions) applyDefaults() {
	if o.PingInterval <= 0 {
		o.PingInterval = defaultPingInterval
	}
	if o.PongGrace <= 0 {
		o.PongGrace = defaultPongGrace
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = defaultSendBuffer
	}
}

// NewSession wraps an upgraded connection and starts its write pump.
func NewSession(conn *websocket.Conn, subject string, clock clockwork.Clock, opts SessionOptions) *Session {
	opts.applyDefaults()
	s := &Session{
		ID:           uuid.New(),
		Subject:      subject,
		conn:         conn,
		clock:        clock,
		limiter:      rate.NewLimiter(inboundRatePerSecond, inboundBurst),
		pingInterval: opts.PingInterval,
		pongGrace:    opts.PongGrace,
		sendCh:       make(chan []byte, opts.SendBuffer),
		locations:    make(map[string][]byte),
		locationKick: make(chan struct{}, 1),
		doneCh:       make(chan struct{}),
		state:        StateConnecting,
	}
	s.configurePongHandler()
	s.setState(StateOpen)
	s.wg.Add(1)
	go s.writePump()
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

func (s *Session) setState(state SessionState) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if state > s.state {
		s.state = state
	}
}

// EnqueueStatus queues a status push. Returns false when the buffer is full,
// which marks the client as too slow to keep.
func (s *Session) EnqueueStatus(data []byte) bool {
	select {
	case s.sendCh <- data:
		return true
	default:
		return false
	}
}

// EnqueueLocation stores a location push in the per-order slot, replacing any
// position that has not been written yet.
func (s *Session) EnqueueLocation(orderID string, data []byte) {
	s.locationsMu.Lock()
	if _, pending := s.locations[orderID]; pending {
		metrics.DispatcherCoalescedLocations.Inc()
	}
	s.locations[orderID] = data
	s.locationsMu.Unlock()

	select {
	case s.locationKick <- struct{}{}:
	default:
	}
}

func (s *Session) takeLocations() [][]byte {
	s.locationsMu.Lock()
	defer s.locationsMu.Unlock()
	if len(s.locations) == 0 {
		return nil
	}
	out := make([][]byte, 0, len(s.locations))
	for _, data := range s.locations {
		out = append(out, data)
	}
	s.locations = make(map[string][]byte)
	return out
}

func (s *Session) writePump() {
	ticker := s.clock.NewTicker(s.pingInterval)
	defer ticker.Stop()
	defer s.wg.Done()

	for {
		select {
		case msg, ok := <-s.sendCh:
			if !ok {
				return
			}
			if !s.write(websocket.TextMessage, msg) {
				return
			}
		case <-s.locationKick:
			for _, msg := range s.takeLocations() {
				if !s.write(websocket.TextMessage, msg) {
					return
				}
			}
		case <-ticker.Chan():
			if !s.write(websocket.PingMessage, nil) {
				metrics.SessionHeartbeatTimeouts.Inc()
				return
			}
		case <-s.doneCh:
			return
		}
	}
}

func (s *Session) write(messageType int, data []byte) bool {
	_ = s.conn.SetWriteDeadline(s.clock.Now().Add(writeDeadline))
	if err := s.conn.WriteMessage(messageType, data); err != nil {
		return false
	}
	return true
}

func (s *Session) configurePongHandler() {
	s.updateReadDeadline()
	s.conn.SetPongHandler(func(string) error {
		s.updateReadDeadline()
		return nil
	})
}

func (s *Session) updateReadDeadline() {
	_ = s.conn.SetReadDeadline(s.clock.Now().Add(s.pongGrace))
}

// ReadPump blocks reading control frames until the connection dies. Each
// decoded frame is handed to onMessage; malformed or flooding input is logged
// and dropped without tearing the session down. A missed pong grace window
// surfaces here as a read deadline error.
func (s *Session) ReadPump(onMessage func(wire.ClientMessage)) {
	defer s.setState(StateClosing)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.logClose(err)
			return
		}
		s.updateReadDeadline()

		if !s.limiter.Allow() {
			logging.WithConnection(s.ID.String()).Warn("Dropping frame from flooding client")
			continue
		}

		msg, err := wire.DecodeClientMessage(data)
		if err != nil {
			metrics.SessionMalformedMessages.Inc()
			logging.WithConnection(s.ID.String()).Warn("Discarding malformed frame", "error", err)
			continue
		}
		onMessage(msg)
	}
}

func (s *Session) logClose(err error) {
	logger := logging.WithConnection(s.ID.String())
	var closeErr *websocket.CloseError
	switch {
	case errors.As(err, &closeErr) && closeErr.Code == websocket.CloseNormalClosure:
		logger.Debug("Session closed normally")
	case errors.As(err, &closeErr):
		metrics.SessionAbnormalCloses.Inc()
		logger.Info("Session closed abnormally", "code", closeErr.Code)
	default:
		metrics.SessionAbnormalCloses.Inc()
		logger.Info("Session read failed", "error", err)
	}
}

// Stop tears the session down immediately without a close frame.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.setState(StateClosing)
		close(s.doneCh)
		_ = s.conn.Close()
		s.setState(StateClosed)
	})
	s.wg.Wait()
}

// StopGraceful sends a close frame with reason before closing.
func (s *Session) StopGraceful(reason string) {
	s.stopOnce.Do(func() {
		s.setState(StateClosing)
		close(s.doneCh)

		// Wait for the write pump to exit before touching the connection,
		// gorilla connections do not tolerate concurrent writers.
		s.wg.Wait()

		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		_ = s.conn.SetWriteDeadline(s.clock.Now().Add(writeDeadline))
		_ = s.conn.WriteMessage(websocket.CloseMessage, closeMsg)
		_ = s.conn.Close()
		s.setState(StateClosed)
	})
	s.wg.Wait()
}

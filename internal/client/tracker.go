package client

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/ordertrack/internal/domain"
	"github.com/pscheid92/ordertrack/internal/wire"
)

// Update is one item on the Updates stream. Exactly one field is set: Record
// for ORDER_UPDATE frames, Err for ERROR frames and connection events.
type Update struct {
	Record *domain.OrderStatusRecord
	Err    error
}

// Tracker maintains one websocket connection to the tracking service and a
// set of watched orders. It resubscribes everything after a reconnect, so
// callers see a fresh snapshot per order and never have to re-Track.
type Tracker struct {
	cfg    Config
	clock  clockwork.Clock
	logger *slog.Logger

	mu         sync.RWMutex
	state      ConnState
	conn       *websocket.Conn
	tracked    map[string]struct{}
	records    map[string]*domain.OrderStatusRecord
	lastSeen   time.Time
	closed       bool
	suppressed   bool
	reconnecting bool

	writeMu sync.Mutex

	updates chan Update
	kick    chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
}

func NewTracker(cfg Config, clock clockwork.Clock, logger *slog.Logger) *Tracker {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	return &Tracker{
		cfg:     cfg,
		clock:   clock,
		logger:  logger,
		state:   StateIdle,
		tracked: make(map[string]struct{}),
		records: make(map[string]*domain.OrderStatusRecord),
		updates: make(chan Update, cfg.UpdateBufferSize),
		kick:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Start dials the service. The caller decides whether a failed first dial is
// fatal; reconnection only guards an established connection.
func (t *Tracker) Start(ctx context.Context) error {
	if err := t.dial(ctx); err != nil {
		t.setState(StateIdle)
		return err
	}
	return nil
}

// Stop closes the connection and the Updates channel. Terminal.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.state = StateStopped
	conn := t.conn
	t.mu.Unlock()

	close(t.done)
	if conn != nil {
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			t.clock.Now().Add(time.Second),
		)
		_ = conn.Close()
	}
	t.wg.Wait()
	close(t.updates)
}

// Disconnect closes the connection without stopping the tracker. No
// reconnection is attempted until Reconnect or Start is called; the tracked
// order set and cached records are kept.
func (t *Tracker) Disconnect() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.suppressed = true
	t.state = StateIdle
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			t.clock.Now().Add(time.Second),
		)
		_ = conn.Close()
	}
}

// Updates returns the stream of order updates and connection events.
func (t *Tracker) Updates() <-chan Update {
	return t.updates
}

// State returns the current connection state.
func (t *Tracker) State() ConnState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

func (t *Tracker) setState(state ConnState) {
	t.mu.Lock()
	if !t.closed {
		t.state = state
	}
	t.mu.Unlock()
}

// Track watches an order. The server answers with a snapshot frame; if the
// connection is down the subscription is replayed once it is back.
func (t *Tracker) Track(orderID string) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrStopped
	}
	t.tracked[orderID] = struct{}{}
	connected := t.state == StateConnected
	t.mu.Unlock()

	if !connected {
		return ErrNotConnected
	}
	return t.sendControl(wire.TypeSubscribe, orderID)
}

// Untrack stops watching an order.
func (t *Tracker) Untrack(orderID string) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrStopped
	}
	delete(t.tracked, orderID)
	delete(t.records, orderID)
	connected := t.state == StateConnected
	t.mu.Unlock()

	if !connected {
		return nil
	}
	return t.sendControl(wire.TypeUnsubscribe, orderID)
}

// Record returns a copy of the last received record for an order.
func (t *Tracker) Record(orderID string) (*domain.OrderStatusRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	record, ok := t.records[orderID]
	if !ok {
		return nil, false
	}
	return record.Clone(), true
}

// IsInProgress reports whether the order is past pending and not terminal,
// based on the last received record.
func (t *Tracker) IsInProgress(orderID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	record, ok := t.records[orderID]
	return ok && record.Status.InProgress()
}

// TimeRemaining returns how long until the estimated delivery time. The
// second return is false when no estimate is known; an overdue order reports
// zero remaining.
func (t *Tracker) TimeRemaining(orderID string) (time.Duration, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	record, ok := t.records[orderID]
	if !ok || record.EstimatedDeliveryTime == nil {
		return 0, false
	}
	remaining := record.EstimatedDeliveryTime.Sub(t.clock.Now())
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// Reconnect forces an immediate dial attempt with a fresh backoff budget. A
// tracker that already gave up or was disconnected is revived; while
// connected it is a no-op.
func (t *Tracker) Reconnect() {
	t.mu.Lock()
	t.suppressed = false
	if t.closed || t.state == StateConnected || t.state == StateConnecting {
		t.mu.Unlock()
		return
	}
	active := t.reconnecting
	t.mu.Unlock()

	if active {
		// An active loop consumes the token at its next wait and resets
		// its attempt counter.
		select {
		case t.kick <- struct{}{}:
		default:
		}
		return
	}
	t.startReconnect(true)
}

// startReconnect spawns the reconnect loop unless one is already running or
// auto-reconnect is suppressed.
func (t *Tracker) startReconnect(immediate bool) {
	t.mu.Lock()
	if t.closed || t.reconnecting || t.suppressed {
		t.mu.Unlock()
		return
	}
	t.reconnecting = true
	t.state = StateReconnecting
	t.mu.Unlock()

	t.wg.Add(1)
	go t.reconnectLoop(immediate)
}

func (t *Tracker) dial(ctx context.Context) error {
	t.setState(StateConnecting)

	target, err := url.Parse(t.cfg.URL)
	if err != nil {
		return err
	}
	if t.cfg.Subject != "" {
		q := target.Query()
		q.Set("subject", t.cfg.Subject)
		target.RawQuery = q.Encode()
	}

	dialer := websocket.Dialer{HandshakeTimeout: t.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, target.String(), nil)
	if err != nil {
		return err
	}

	// Server pings carry the heartbeat; answer and note the activity.
	conn.SetPingHandler(func(data string) error {
		t.touch()
		return conn.WriteControl(websocket.PongMessage, []byte(data), t.clock.Now().Add(time.Second))
	})

	t.mu.Lock()
	t.conn = conn
	t.lastSeen = t.clock.Now()
	t.state = StateConnected
	t.suppressed = false
	t.mu.Unlock()

	connDone := make(chan struct{})
	t.wg.Add(2)
	go t.readLoop(conn, connDone)
	go t.staleLoop(conn, connDone)

	t.logger.Debug("websocket connected", "url", t.cfg.URL)
	return nil
}

func (t *Tracker) touch() {
	t.mu.Lock()
	t.lastSeen = t.clock.Now()
	t.mu.Unlock()
}

func (t *Tracker) sendControl(msgType, orderID string) error {
	t.mu.RLock()
	conn := t.conn
	t.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	data, err := wire.EncodeClientMessage(msgType, orderID)
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = conn.SetWriteDeadline(t.clock.Now().Add(t.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (t *Tracker) readLoop(conn *websocket.Conn, connDone chan struct{}) {
	defer t.wg.Done()
	defer close(connDone)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-t.done:
				return
			default:
			}
			t.mu.RLock()
			suppressed := t.suppressed
			t.mu.RUnlock()
			if suppressed {
				return
			}
			t.logger.Warn("connection lost", "error", err)
			t.startReconnect(false)
			return
		}
		t.touch()
		t.handleFrame(data)
	}
}

// staleLoop closes the connection if the server's heartbeat goes quiet; the
// read loop then takes over and reconnects.
func (t *Tracker) staleLoop(conn *websocket.Conn, connDone chan struct{}) {
	defer t.wg.Done()

	ticker := t.clock.NewTicker(t.cfg.HeartbeatTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-connDone:
			return
		case <-ticker.Chan():
			t.mu.RLock()
			stale := t.clock.Since(t.lastSeen) > t.cfg.HeartbeatTimeout
			t.mu.RUnlock()

			if stale {
				t.logger.Warn("no heartbeat received, closing connection")
				t.emit(Update{Err: ErrStaleConnection})
				_ = conn.Close()
				return
			}
		}
	}
}

func (t *Tracker) handleFrame(data []byte) {
	msg, err := wire.DecodeServerMessage(data)
	if err != nil {
		t.logger.Warn("discarding malformed frame", "error", err)
		return
	}

	switch msg.Type {
	case wire.TypeOrderUpdate:
		if msg.Payload == nil {
			return
		}
		t.mu.Lock()
		t.records[msg.Payload.OrderID] = msg.Payload
		t.mu.Unlock()
		t.emit(Update{Record: msg.Payload.Clone()})

	case wire.TypeError:
		// The server refused this order; replaying the subscription on
		// reconnect would only fail again.
		t.mu.Lock()
		delete(t.tracked, msg.OrderID)
		t.mu.Unlock()
		t.emit(Update{Err: &ProtocolError{OrderID: msg.OrderID, Reason: msg.Error}})

	default:
		t.logger.Warn("unexpected frame type", "type", msg.Type)
	}
}

func (t *Tracker) emit(update Update) {
	select {
	case t.updates <- update:
	default:
		t.logger.Warn("update buffer full, dropping update")
	}
}

func (t *Tracker) reconnectLoop(immediate bool) {
	defer func() {
		t.mu.Lock()
		t.reconnecting = false
		t.mu.Unlock()
		t.wg.Done()
	}()

	attempt := 0
	for {
		if attempt >= t.cfg.MaxReconnectAttempts {
			t.logger.Error("giving up after repeated connection failures", "attempts", attempt)
			t.emit(Update{Err: ErrStopped})
			t.setState(StateStopped)
			return
		}

		if immediate {
			immediate = false
		} else {
			select {
			case <-t.done:
				return
			case <-t.kick:
				attempt = 0
			case <-t.clock.After(backoffWait(t.cfg, attempt)):
			}
		}

		t.mu.RLock()
		suppressed := t.suppressed
		t.mu.RUnlock()
		if suppressed {
			return
		}

		if err := t.dial(context.Background()); err != nil {
			attempt++
			t.logger.Warn("reconnection failed", "attempt", attempt, "error", err)
			t.emit(Update{Err: &ConnectionError{Attempt: attempt, Err: err}})
			t.setState(StateReconnecting)
			continue
		}

		t.logger.Info("reconnected", "url", t.cfg.URL)
		t.resubscribe()
		return
	}
}

// resubscribe replays all tracked orders on a fresh connection. The server
// answers each with a snapshot, which doubles as the state refresh.
func (t *Tracker) resubscribe() {
	t.mu.RLock()
	orders := make([]string, 0, len(t.tracked))
	for orderID := range t.tracked {
		orders = append(orders, orderID)
	}
	t.mu.RUnlock()

	for _, orderID := range orders {
		if err := t.sendControl(wire.TypeSubscribe, orderID); err != nil {
			t.logger.Warn("failed to resubscribe", "order_id", orderID, "error", err)
		}
	}
}

// backoffWait doubles the base wait per attempt, capped at the configured
// maximum.
func backoffWait(cfg Config, attempt int) time.Duration {
	wait := cfg.ReconnectBaseWait << attempt
	if wait > cfg.ReconnectMaxWait || wait <= 0 {
		wait = cfg.ReconnectMaxWait
	}
	return wait
}

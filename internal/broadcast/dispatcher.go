package broadcast

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/ordertrack/internal/domain"
	"github.com/pscheid92/ordertrack/internal/metrics"
	"github.com/pscheid92/ordertrack/internal/mux"
	"github.com/pscheid92/ordertrack/internal/wire"
)

const (
	commandTimeout = 5 * time.Second
	stopTimeout    = 10 * time.Second
)

// dispatcherCmd is the command interface for the Dispatcher actor.
type dispatcherCmd interface{ isDispatcherCmd() }

type baseDispatcherCmd struct{}

func (baseDispatcherCmd) isDispatcherCmd() {}

type registerCmd struct {
	baseDispatcherCmd
	session *Session
}

type unregisterCmd struct {
	baseDispatcherCmd
	connID uuid.UUID
}

type clientCountCmd struct {
	baseDispatcherCmd
	replyChannel chan int
}

type stopCmd struct {
	baseDispatcherCmd
}

// Dispatcher fans registry change events out to subscribed sessions.
//
// Single goroutine + command channel (no mutexes on the session map). Events
// for one order arrive in registry order and land on each session's FIFO send
// buffer in that same order. A session whose buffer is full gets evicted on
// the spot; delivery to everyone else never waits on it.
type Dispatcher struct {
	cmdCh    chan dispatcherCmd
	events   <-chan domain.ChangeEvent
	clock    clockwork.Clock
	subs     *mux.Multiplexer
	sessions map[uuid.UUID]*Session
	done     chan struct{}
}

func NewDispatcher(events <-chan domain.ChangeEvent, subs *mux.Multiplexer, clock clockwork.Clock) *Dispatcher {
	d := &Dispatcher{
		cmdCh:    make(chan dispatcherCmd, 256),
		events:   events,
		clock:    clock,
		subs:     subs,
		sessions: make(map[uuid.UUID]*Session),
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

// Register adds an open session to the fan-out set.
func (d *Dispatcher) Register(session *Session) {
	d.cmdCh <- registerCmd{session: session}
}

// Unregister removes a session and drops all its subscriptions. Safe to call
// more than once for the same connection.
func (d *Dispatcher) Unregister(connID uuid.UUID) {
	d.cmdCh <- unregisterCmd{connID: connID}
}

// ClientCount returns the number of registered sessions, or -1 on timeout.
func (d *Dispatcher) ClientCount() int {
	replyCh := make(chan int, 1)
	d.cmdCh <- clientCountCmd{replyChannel: replyCh}

	timer := d.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case count := <-replyCh:
		return count
	case <-timer.Chan():
		slog.Warn("ClientCount timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stop closes all sessions and shuts the actor down. Blocks until the
// goroutine exits or the stop timeout is reached.
func (d *Dispatcher) Stop() {
	d.cmdCh <- stopCmd{}

	timer := d.clock.NewTimer(stopTimeout)
	defer timer.Stop()

	select {
	case <-d.done:
		slog.Info("Dispatcher stopped gracefully")
	case <-timer.Chan():
		slog.Warn("Dispatcher stop timeout exceeded", "timeout", stopTimeout)
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)

	events := d.events
	for {
		select {
		case cmd := <-d.cmdCh:
			switch c := cmd.(type) {
			case registerCmd:
				d.handleRegister(c.session)
			case unregisterCmd:
				d.handleUnregister(c.connID)
			case clientCountCmd:
				c.replyChannel <- len(d.sessions)
			case stopCmd:
				d.handleStop()
				return
			default:
				slog.Warn("Dispatcher received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
			}
		case ev, ok := <-events:
			if !ok {
				// Registry shut down; keep serving commands until Stop.
				events = nil
				continue
			}
			d.handleEvent(ev)
		}
	}
}

func (d *Dispatcher) handleRegister(session *Session) {
	d.sessions[session.ID] = session
	metrics.DispatcherConnectedClients.Set(float64(len(d.sessions)))
	slog.Debug("Session registered", "connection_id", session.ID.String(), "total_clients", len(d.sessions))
}

func (d *Dispatcher) handleUnregister(connID uuid.UUID) {
	session, exists := d.sessions[connID]
	if !exists {
		return
	}
	delete(d.sessions, connID)
	d.subs.UnsubscribeAll(connID)
	session.Stop()

	metrics.DispatcherConnectedClients.Set(float64(len(d.sessions)))
	slog.Debug("Session unregistered", "connection_id", connID.String(), "remaining_clients", len(d.sessions))
}

func (d *Dispatcher) handleEvent(ev domain.ChangeEvent) {
	metrics.DispatcherEventsTotal.WithLabelValues(string(ev.Kind)).Inc()

	data, err := wire.EncodeUpdate(ev.Record)
	if err != nil {
		slog.Error("Failed to encode update", "order_id", ev.Record.OrderID, "error", err)
		return
	}

	var slow []uuid.UUID
	for _, connID := range d.subs.SubscribersOf(ev.Record.OrderID) {
		session, exists := d.sessions[connID]
		if !exists {
			// Subscription outlived its session; the mux cleanup is on its way.
			continue
		}

		if ev.Kind == domain.EventLocationUpdated {
			session.EnqueueLocation(ev.Record.OrderID, data)
			continue
		}
		if !session.EnqueueStatus(data) {
			slow = append(slow, connID)
		}
	}

	for _, connID := range slow {
		slog.Warn("Disconnecting slow client", "connection_id", connID.String(), "order_id", ev.Record.OrderID)
		metrics.DispatcherSlowClientsEvicted.Inc()
		d.handleUnregister(connID)
	}
}

func (d *Dispatcher) handleStop() {
	slog.Info("Dispatcher shutting down", "clients", len(d.sessions))
	for connID, session := range d.sessions {
		d.subs.UnsubscribeAll(connID)
		session.StopGraceful("Server shutting down")
		delete(d.sessions, connID)
	}
	metrics.DispatcherConnectedClients.Set(0)
}

package client

import (
	"errors"
	"fmt"
	"time"
)

// ConnState is the tracker connection lifecycle.
type ConnState int32

const (
	StateIdle ConnState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateStopped
)

func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

var (
	// ErrNotConnected is returned when a command needs a live connection.
	ErrNotConnected = errors.New("not connected")

	// ErrStopped is returned after Stop or once reconnection gave up.
	ErrStopped = errors.New("tracker stopped")

	// ErrStaleConnection signals missed server heartbeats.
	ErrStaleConnection = errors.New("stale connection: no heartbeat received")
)

// ConnectionError reports a failed dial attempt during reconnection.
type ConnectionError struct {
	Attempt int
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection attempt %d failed: %v", e.Attempt, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProtocolError reports a server-side rejection delivered as an ERROR frame.
type ProtocolError struct {
	OrderID string
	Reason  string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("order %s: %s", e.OrderID, e.Reason)
}

// Config holds the dial target and resilience knobs.
type Config struct {
	// URL is the websocket endpoint, e.g. ws://host:8080/ws.
	URL string

	// Subject identifies the caller for per-order authorization.
	Subject string

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration

	// HeartbeatTimeout is how long without any server ping before the
	// connection counts as stale.
	HeartbeatTimeout time.Duration

	// ReconnectBaseWait doubles per attempt up to ReconnectMaxWait;
	// after MaxReconnectAttempts failures the tracker stops for good.
	ReconnectBaseWait    time.Duration
	ReconnectMaxWait     time.Duration
	MaxReconnectAttempts int

	// UpdateBufferSize is the capacity of the Updates channel.
	UpdateBufferSize int
}

func (c *Config) applyDefaults() {
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.HeartbeatTimeout == 0 {
		c.HeartbeatTimeout = 90 * time.Second
	}
	if c.ReconnectBaseWait == 0 {
		c.ReconnectBaseWait = time.Second
	}
	if c.ReconnectMaxWait == 0 {
		c.ReconnectMaxWait = 30 * time.Second
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 5
	}
	if c.UpdateBufferSize == 0 {
		c.UpdateBufferSize = 100
	}
}

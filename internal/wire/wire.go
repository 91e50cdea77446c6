// Package wire defines the client-facing message framing.
//
// Clients send small JSON control frames (subscribe/unsubscribe); the server
// pushes ORDER_UPDATE frames carrying the full current record and ERROR
// frames for rejected requests. Heartbeats ride on websocket ping/pong
// control frames and never appear here.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/pscheid92/ordertrack/internal/domain"
)

const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypeOrderUpdate = "ORDER_UPDATE"
	TypeError       = "ERROR"
)

// ClientMessage is a frame sent by the client.
type ClientMessage struct {
	Type    string `json:"type"`
	OrderID string `json:"order_id"`
}

// ServerMessage is a frame pushed to the client.
type ServerMessage struct {
	Type    string                    `json:"type"`
	Payload *domain.OrderStatusRecord `json:"payload,omitempty"`
	OrderID string                    `json:"order_id,omitempty"`
	Error   string                    `json:"error,omitempty"`
}

// DecodeClientMessage parses and validates an inbound frame.
func DecodeClientMessage(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientMessage{}, fmt.Errorf("malformed frame: %w", err)
	}
	if msg.Type != TypeSubscribe && msg.Type != TypeUnsubscribe {
		return ClientMessage{}, fmt.Errorf("unexpected frame type %q", msg.Type)
	}
	if msg.OrderID == "" {
		return ClientMessage{}, fmt.Errorf("%s frame without order_id", msg.Type)
	}
	return msg, nil
}

// EncodeClientMessage frames a subscribe/unsubscribe request.
func EncodeClientMessage(msgType, orderID string) ([]byte, error) {
	if msgType != TypeSubscribe && msgType != TypeUnsubscribe {
		return nil, fmt.Errorf("unexpected frame type %q", msgType)
	}
	if orderID == "" {
		return nil, fmt.Errorf("%s frame without order_id", msgType)
	}
	return json.Marshal(ClientMessage{Type: msgType, OrderID: orderID})
}

// DecodeServerMessage parses a frame pushed by the server.
func DecodeServerMessage(data []byte) (ServerMessage, error) {
	var msg ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ServerMessage{}, fmt.Errorf("malformed frame: %w", err)
	}
	if msg.Type != TypeOrderUpdate && msg.Type != TypeError {
		return ServerMessage{}, fmt.Errorf("unexpected frame type %q", msg.Type)
	}
	return msg, nil
}

// EncodeUpdate frames an order record as an ORDER_UPDATE push.
func EncodeUpdate(record *domain.OrderStatusRecord) ([]byte, error) {
	return json.Marshal(ServerMessage{Type: TypeOrderUpdate, Payload: record})
}

// EncodeError frames a request rejection.
func EncodeError(orderID, reason string) ([]byte, error) {
	return json.Marshal(ServerMessage{Type: TypeError, OrderID: orderID, Error: reason})
}

package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/ordertrack/internal/broadcast"
	"github.com/pscheid92/ordertrack/internal/domain"
	"github.com/pscheid92/ordertrack/internal/logging"
	"github.com/pscheid92/ordertrack/internal/mux"
	"github.com/pscheid92/ordertrack/internal/wire"
)

func (s *Server) handleWebSocket(c echo.Context) error {
	subject := c.QueryParam("subject")
	if subject == "" {
		subject = "anonymous"
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade WebSocket: %w", err)
	}

	session := broadcast.NewSession(conn, subject, s.clock, broadcast.SessionOptions{
		PingInterval: s.config.HeartbeatInterval,
		PongGrace:    s.config.PongGrace,
		SendBuffer:   s.config.SendBufferSize,
	})
	s.dispatcher.Register(session)
	logging.WithConnection(session.ID.String()).Debug("WebSocket connected", "subject", subject)

	// Read pump blocks until the connection closes
	ctx := c.Request().Context()
	session.ReadPump(func(msg wire.ClientMessage) {
		switch msg.Type {
		case wire.TypeSubscribe:
			s.handleSubscribe(ctx, session, msg.OrderID)
		case wire.TypeUnsubscribe:
			s.subs.Unsubscribe(session.ID, msg.OrderID)
		}
	})

	s.dispatcher.Unregister(session.ID)

	return nil
}

// handleSubscribe registers interest and pushes the current record so a new
// subscriber does not wait for the next change to learn where the order is.
func (s *Server) handleSubscribe(ctx context.Context, session *broadcast.Session, orderID string) {
	if err := s.subs.Subscribe(ctx, session.ID, session.Subject, orderID); err != nil {
		s.sendErrorFrame(session, orderID, subscribeErrorReason(err))
		return
	}

	record, err := s.registry.Get(ctx, orderID)
	if err != nil {
		s.subs.Unsubscribe(session.ID, orderID)
		s.sendErrorFrame(session, orderID, "order not found")
		return
	}

	data, err := wire.EncodeUpdate(record)
	if err != nil {
		logging.WithOrder(orderID).Error("Failed to encode snapshot", "error", err)
		return
	}
	if !session.EnqueueStatus(data) {
		s.dispatcher.Unregister(session.ID)
	}
}

func (s *Server) sendErrorFrame(session *broadcast.Session, orderID, reason string) {
	data, err := wire.EncodeError(orderID, reason)
	if err != nil {
		logging.WithOrder(orderID).Error("Failed to encode error frame", "error", err)
		return
	}
	if !session.EnqueueStatus(data) {
		s.dispatcher.Unregister(session.ID)
	}
}

func subscribeErrorReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrForbidden):
		return "not authorized for order"
	case errors.Is(err, mux.ErrSubscriptionLimit):
		return "subscription limit reached"
	default:
		return "subscribe failed"
	}
}

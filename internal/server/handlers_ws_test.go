package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/pscheid92/ordertrack/internal/domain"
	"github.com/pscheid92/ordertrack/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialWS(t *testing.T, url string) *ws.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(url, "http") + "/ws"
	conn, _, err := ws.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *ws.Conn) wire.ServerMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg wire.ServerMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func sendSubscribe(t *testing.T, conn *ws.Conn, orderID string) {
	t.Helper()
	frame := `{"type":"subscribe","order_id":"` + orderID + `"}`
	require.NoError(t, conn.WriteMessage(ws.TextMessage, []byte(frame)))
}

func TestWS_SubscribeDeliversSnapshot(t *testing.T) {
	url, _ := testServer(t, nil)
	doJSON(t, http.MethodPost, url+"/api/orders", map[string]string{"order_id": "ord1"}, testToken)

	conn := dialWS(t, url)
	sendSubscribe(t, conn, "ord1")

	msg := readFrame(t, conn)
	assert.Equal(t, wire.TypeOrderUpdate, msg.Type)
	require.NotNil(t, msg.Payload)
	assert.Equal(t, "ord1", msg.Payload.OrderID)
	assert.Equal(t, domain.StatusPending, msg.Payload.Status)
}

func TestWS_SubscriberReceivesTransitions(t *testing.T) {
	url, _ := testServer(t, nil)
	doJSON(t, http.MethodPost, url+"/api/orders", map[string]string{"order_id": "ord1"}, testToken)

	conn := dialWS(t, url)
	sendSubscribe(t, conn, "ord1")
	readFrame(t, conn) // snapshot

	doJSON(t, http.MethodPatch, url+"/api/orders/ord1/status", map[string]string{"status": "confirmed"}, testToken)

	msg := readFrame(t, conn)
	require.NotNil(t, msg.Payload)
	assert.Equal(t, domain.StatusConfirmed, msg.Payload.Status)
}

func TestWS_SubscriberReceivesLocationUpdates(t *testing.T) {
	url, _ := testServer(t, nil)
	doJSON(t, http.MethodPost, url+"/api/orders", map[string]string{"order_id": "ord1"}, testToken)
	doJSON(t, http.MethodPatch, url+"/api/orders/ord1/status", map[string]string{"status": "confirmed"}, testToken)

	conn := dialWS(t, url)
	sendSubscribe(t, conn, "ord1")
	readFrame(t, conn) // snapshot

	doJSON(t, http.MethodPatch, url+"/api/orders/ord1/location", map[string]float64{"lat": 52.5, "lng": 13.4}, testToken)

	msg := readFrame(t, conn)
	require.NotNil(t, msg.Payload)
	require.NotNil(t, msg.Payload.DeliveryPartner)
	require.NotNil(t, msg.Payload.DeliveryPartner.Location)
	assert.InDelta(t, 13.4, msg.Payload.DeliveryPartner.Location.Lng, 1e-9)
}

func TestWS_SubscribeUnknownOrder(t *testing.T) {
	url, _ := testServer(t, nil)

	conn := dialWS(t, url)
	sendSubscribe(t, conn, "ghost")

	msg := readFrame(t, conn)
	assert.Equal(t, wire.TypeError, msg.Type)
	assert.Equal(t, "ghost", msg.OrderID)
	assert.Equal(t, "order not found", msg.Error)
}

func TestWS_SubscribeForbidden(t *testing.T) {
	url, _ := testServer(t, denyAuthorizer{})
	doJSON(t, http.MethodPost, url+"/api/orders", map[string]string{"order_id": "ord1"}, testToken)

	conn := dialWS(t, url)
	sendSubscribe(t, conn, "ord1")

	msg := readFrame(t, conn)
	assert.Equal(t, wire.TypeError, msg.Type)
	assert.Equal(t, "not authorized for order", msg.Error)

	// Denied subscriber must not receive later updates
	doJSON(t, http.MethodPatch, url+"/api/orders/ord1/status", map[string]string{"status": "confirmed"}, testToken)
	_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestWS_SubscriptionLimit(t *testing.T) {
	url, _ := testServer(t, nil)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		doJSON(t, http.MethodPost, url+"/api/orders", map[string]string{"order_id": id}, testToken)
	}

	conn := dialWS(t, url)
	for _, id := range []string{"a", "b", "c", "d"} {
		sendSubscribe(t, conn, id)
		readFrame(t, conn) // snapshot
	}

	sendSubscribe(t, conn, "e")
	msg := readFrame(t, conn)
	assert.Equal(t, wire.TypeError, msg.Type)
	assert.Equal(t, "subscription limit reached", msg.Error)
}

func TestWS_UnsubscribeStopsDelivery(t *testing.T) {
	url, _ := testServer(t, nil)
	doJSON(t, http.MethodPost, url+"/api/orders", map[string]string{"order_id": "ord1"}, testToken)

	conn := dialWS(t, url)
	sendSubscribe(t, conn, "ord1")
	readFrame(t, conn) // snapshot

	require.NoError(t, conn.WriteMessage(ws.TextMessage, []byte(`{"type":"unsubscribe","order_id":"ord1"}`)))
	// The unsubscribe races the next update; give the read pump a moment.
	time.Sleep(100 * time.Millisecond)

	doJSON(t, http.MethodPatch, url+"/api/orders/ord1/status", map[string]string{"status": "confirmed"}, testToken)

	_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

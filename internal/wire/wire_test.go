package wire

import (
	"encoding/json"
	"testing"

	"github.com/pscheid92/ordertrack/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeClientMessage(t *testing.T) {
	msg, err := DecodeClientMessage([]byte(`{"type":"subscribe","order_id":"ord1"}`))
	require.NoError(t, err)
	assert.Equal(t, TypeSubscribe, msg.Type)
	assert.Equal(t, "ord1", msg.OrderID)
}

func TestDecodeClientMessage_Rejects(t *testing.T) {
	cases := []string{
		`{"type":"subscribe"}`,
		`{"type":"ORDER_UPDATE","order_id":"ord1"}`,
		`{"type":`,
		`"subscribe"`,
	}
	for _, raw := range cases {
		_, err := DecodeClientMessage([]byte(raw))
		assert.Error(t, err, raw)
	}
}

func TestEncodeUpdate_CarriesRecord(t *testing.T) {
	data, err := EncodeUpdate(&domain.OrderStatusRecord{OrderID: "ord1", Status: domain.StatusPreparing})
	require.NoError(t, err)

	var msg ServerMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, TypeOrderUpdate, msg.Type)
	require.NotNil(t, msg.Payload)
	assert.Equal(t, domain.StatusPreparing, msg.Payload.Status)
}

func TestEncodeError(t *testing.T) {
	data, err := EncodeError("ord1", "forbidden")
	require.NoError(t, err)

	var msg ServerMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, TypeError, msg.Type)
	assert.Equal(t, "forbidden", msg.Error)
	assert.Equal(t, "ord1", msg.OrderID)
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/ordertrack/internal/broadcast"
	"github.com/pscheid92/ordertrack/internal/config"
	"github.com/pscheid92/ordertrack/internal/domain"
	"github.com/pscheid92/ordertrack/internal/mux"
	"github.com/pscheid92/ordertrack/internal/registry"
	"github.com/pscheid92/ordertrack/internal/store"
	"github.com/stretchr/testify/require"
)

const testToken = "test-token"

// denyAuthorizer rejects every subscription.
type denyAuthorizer struct{}

func (denyAuthorizer) Authorize(context.Context, string, string) error {
	return domain.ErrForbidden
}

// testServer assembles the full stack on a memory store behind an httptest
// server. Returns the server URL and the registry for direct state setup.
func testServer(t *testing.T, auth domain.Authorizer) (string, *registry.Registry) {
	t.Helper()

	if auth == nil {
		auth = domain.AllowAll{}
	}

	cfg := &config.Config{Port: "0", APIToken: testToken, MaxSubscriptionsPerConn: 4}
	clock := clockwork.NewRealClock()

	reg := registry.New(store.NewMemoryStore(), clock)
	subs := mux.New(auth, cfg.MaxSubscriptionsPerConn)
	dispatcher := broadcast.NewDispatcher(reg.Events(), subs, clock)
	t.Cleanup(func() {
		reg.Close()
		dispatcher.Stop()
	})

	srv := NewServer(cfg, reg, subs, dispatcher, clock)
	ts := httptest.NewServer(srv.echo)
	t.Cleanup(ts.Close)

	return ts.URL, reg
}

func doJSON(t *testing.T, method, url string, body any, token string) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeRecord(t *testing.T, resp *http.Response) domain.OrderStatusRecord {
	t.Helper()
	var record domain.OrderStatusRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&record))
	return record
}

package server_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"e2e_relay/internal/app"
	"e2e_relay/internal/config"
	"e2e_relay/internal/model"
	"e2e_relay/internal/repository/memory"
	"e2e_relay/internal/repository/repotest"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type (
	envelope struct {
		Success bool            `json:"success"`
		Message string          `json:"message"`
		Code    string          `json:"code"`
		Data    json.RawMessage `json:"data"`
	}

	client struct {
		t      *testing.T
		base   string
		token  string
		handle string
	}

	wsEvent struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
		Ref  string          `json:"ref"`
	}
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.Server{
			AllowedOrigins: []string{"*"},
			SendBuffer:     16,
		},
		Storage: config.Storage{Driver: config.DriverMemory, Timeout: 5 * time.Second},
		Auth:    config.Auth{Secret: "test-secret", TokenTTL: time.Hour, CookieName: "token"},
		Relay:   config.Relay{RequireContact: true, MaxCiphertext: 1024},
		Prekeys: config.Prekeys{MaxBatch: 10},
	}
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	w := app.Build(testConfig(), memory.New(), nil)
	srv := httptest.NewServer(w.Server.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func (c *client) do(method, path string, body any) (int, envelope) {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, c.base+path, &buf)
	require.NoError(c.t, err)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(c.t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func register(t *testing.T, srv *httptest.Server, name string, prekeys int) *client {
	t.Helper()
	c := &client{t: t, base: srv.URL, handle: fmt.Sprintf("%s-%s@example.com", name, uuid.NewString()[:8])}
	status, env := c.do(http.MethodPost, "/api/register", map[string]any{
		"handle":       c.handle,
		"identity_key": repotest.Key(),
		"signed_prekey": map[string]any{
			"id":        1,
			"key":       repotest.Key(),
			"signature": []byte("sig"),
		},
		"prekeys": repotest.Uploads(1, prekeys),
	})
	require.Equal(t, http.StatusCreated, status, env.Message)

	var res struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &res))
	c.token = res.Token
	return c
}

func befriend(t *testing.T, a, b *client) {
	t.Helper()
	status, env := a.do(http.MethodPost, "/api/contacts", map[string]string{"handle": b.handle})
	require.Equal(t, http.StatusCreated, status, env.Message)
	var c model.Contact
	require.NoError(t, json.Unmarshal(env.Data, &c))

	status, env = b.do(http.MethodPut, fmt.Sprintf("/api/contact-requests/%d", c.ID), map[string]string{"action": "accept"})
	require.Equal(t, http.StatusOK, status, env.Message)
}

func dial(t *testing.T, srv *httptest.Server, c *client) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	header := http.Header{"Authorization": []string{"Bearer " + c.token}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	ev := next(t, conn)
	require.Equal(t, model.EventPendingSummary, ev.Type)
	return conn
}

func next(t *testing.T, conn *websocket.Conn) wsEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ev wsEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestAuth(t *testing.T) {
	srv := newServer(t)

	anon := &client{t: t, base: srv.URL}
	status, env := anon.do(http.MethodGet, "/api/contacts", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", env.Code)

	anon.token = "garbage"
	status, _ = anon.do(http.MethodGet, "/api/contacts", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	alice := register(t, srv, "alice", 0)
	status, env = alice.do(http.MethodPost, "/api/token/refresh", nil)
	assert.Equal(t, http.StatusOK, status, env.Message)

	status, _ = alice.do(http.MethodPost, "/api/register", map[string]any{"handle": alice.handle})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestBundleFlow(t *testing.T) {
	srv := newServer(t)
	alice := register(t, srv, "alice", 0)
	bob := register(t, srv, "bob", 1)

	status, env := alice.do(http.MethodGet, "/api/keys/"+bob.handle, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", env.Code)

	befriend(t, alice, bob)

	status, env = alice.do(http.MethodGet, "/api/keys/"+bob.handle, nil)
	require.Equal(t, http.StatusOK, status, env.Message)
	var first model.PrekeyBundle
	require.NoError(t, json.Unmarshal(env.Data, &first))
	require.NotNil(t, first.OneTimePrekey)
	assert.Equal(t, uint32(1), first.OneTimePrekey.KeyID)

	status, env = alice.do(http.MethodGet, "/api/keys/"+bob.handle, nil)
	require.Equal(t, http.StatusOK, status)
	var second model.PrekeyBundle
	require.NoError(t, json.Unmarshal(env.Data, &second))
	assert.Nil(t, second.OneTimePrekey)

	status, env = bob.do(http.MethodPost, "/api/prekeys", map[string]any{"prekeys": repotest.Uploads(10, 2)})
	require.Equal(t, http.StatusOK, status, env.Message)
	var res model.ReplenishResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, model.ReplenishResult{Reused: 1, Appended: 1}, res)

	status, env = bob.do(http.MethodGet, "/api/prekeys/count", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"unused":2}`, string(env.Data))

	id := uint32(10)
	status, env = alice.do(http.MethodPost, "/api/x3dh", map[string]any{
		"to":            bob.handle,
		"ephemeral_key": repotest.Key(),
		"prekey_id":     id,
	})
	require.Equal(t, http.StatusCreated, status, env.Message)

	status, env = bob.do(http.MethodGet, "/api/x3dh/"+alice.handle, nil)
	require.Equal(t, http.StatusOK, status, env.Message)
	var ek model.EphemeralKey
	require.NoError(t, json.Unmarshal(env.Data, &ek))
	require.NotNil(t, ek.PrekeyID)
	assert.Equal(t, id, *ek.PrekeyID)

	status, _ = alice.do(http.MethodGet, "/api/x3dh/"+bob.handle, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestContactNotification(t *testing.T) {
	srv := newServer(t)
	carol := register(t, srv, "carol", 0)
	dave := register(t, srv, "dave", 0)
	conn := dial(t, srv, dave)

	status, env := carol.do(http.MethodPost, "/api/contacts", map[string]string{"handle": dave.handle})
	require.Equal(t, http.StatusCreated, status, env.Message)

	ev := next(t, conn)
	require.Equal(t, model.EventContactRequest, ev.Type)
	var data model.ContactEvent
	require.NoError(t, json.Unmarshal(ev.Data, &data))
	assert.Equal(t, carol.handle, data.From)

	status, env = dave.do(http.MethodGet, "/api/contact-requests", nil)
	require.Equal(t, http.StatusOK, status)
	var views []model.ContactView
	require.NoError(t, json.Unmarshal(env.Data, &views))
	require.Len(t, views, 1)
	assert.Equal(t, carol.handle, views[0].Peer.Handle)

	status, _ = carol.do(http.MethodPost, "/api/contacts", map[string]string{"handle": carol.handle})
	assert.Equal(t, http.StatusConflict, status)
}

func TestMessaging(t *testing.T) {
	srv := newServer(t)
	alice := register(t, srv, "alice", 0)
	bob := register(t, srv, "bob", 0)
	befriend(t, alice, bob)

	t.Run("offline send then drain", func(t *testing.T) {
		for _, body := range []string{"one", "two"} {
			status, env := alice.do(http.MethodPost, "/api/messages/"+bob.handle, map[string]any{
				"kind":       "text",
				"ciphertext": []byte(body),
			})
			require.Equal(t, http.StatusCreated, status, env.Message)
			var res model.SendResult
			require.NoError(t, json.Unmarshal(env.Data, &res))
			assert.False(t, res.Live)
		}

		status, env := bob.do(http.MethodPost, "/api/messages/"+alice.handle+"/drain", nil)
		require.Equal(t, http.StatusOK, status, env.Message)
		var envs []model.Envelope
		require.NoError(t, json.Unmarshal(env.Data, &envs))
		require.Len(t, envs, 2)
		assert.Less(t, envs[0].ID, envs[1].ID)
		assert.Equal(t, []byte("one"), envs[0].Ciphertext)

		status, env = bob.do(http.MethodPost, "/api/messages/"+alice.handle+"/drain", nil)
		require.Equal(t, http.StatusOK, status)
		assert.JSONEq(t, `[]`, string(env.Data))

		status, env = alice.do(http.MethodGet, "/api/messages/"+bob.handle+"?limit=1", nil)
		require.Equal(t, http.StatusOK, status)
		require.NoError(t, json.Unmarshal(env.Data, &envs))
		require.Len(t, envs, 1)
		assert.Equal(t, []byte("two"), envs[0].Ciphertext)
	})

	t.Run("live websocket round trip", func(t *testing.T) {
		bobConn := dial(t, srv, bob)
		aliceConn := dial(t, srv, alice)

		require.NoError(t, aliceConn.WriteJSON(map[string]any{
			"op":   model.OpSendMessage,
			"ref":  "r1",
			"data": map[string]any{"to": bob.handle, "kind": "text", "ciphertext": []byte("hi")},
		}))

		sent := next(t, aliceConn)
		require.Equal(t, model.EventMessageSent, sent.Type)
		assert.Equal(t, "r1", sent.Ref)
		var ack model.MessageSentEvent
		require.NoError(t, json.Unmarshal(sent.Data, &ack))
		assert.True(t, ack.Live)

		got := next(t, bobConn)
		require.Equal(t, model.EventMessage, got.Type)
		var msg model.MessageEvent
		require.NoError(t, json.Unmarshal(got.Data, &msg))
		assert.Equal(t, ack.ID, msg.ID)
		assert.Equal(t, alice.handle, msg.From)
		assert.Equal(t, []byte("hi"), msg.Ciphertext)

		require.NoError(t, bobConn.WriteJSON(map[string]any{
			"op":   model.OpMessageReceived,
			"data": map[string]any{"id": msg.ID},
		}))
		delivered := next(t, aliceConn)
		require.Equal(t, model.EventMessageDelivered, delivered.Type)
		assert.JSONEq(t, fmt.Sprintf(`{"id":%d,"by":%q}`, msg.ID, bob.handle), string(delivered.Data))

		require.NoError(t, bobConn.WriteJSON(map[string]any{"op": "bogus", "ref": "r2"}))
		bad := next(t, bobConn)
		assert.Equal(t, model.EventError, bad.Type)
		assert.Equal(t, "r2", bad.Ref)

		require.NoError(t, bobConn.WriteJSON(map[string]any{"op": model.OpPing, "ref": "r3"}))
		pong := next(t, bobConn)
		assert.Equal(t, model.EventPong, pong.Type)
	})

	t.Run("reconnect supersedes the old session", func(t *testing.T) {
		first := dial(t, srv, bob)
		second := dial(t, srv, bob)

		require.NoError(t, first.SetReadDeadline(time.Now().Add(5*time.Second)))
		_, _, err := first.ReadMessage()
		assert.Error(t, err, "superseded session is closed")

		status, env := alice.do(http.MethodPost, "/api/messages/"+bob.handle, map[string]any{"ciphertext": []byte("x")})
		require.Equal(t, http.StatusCreated, status, env.Message)
		got := next(t, second)
		assert.Equal(t, model.EventMessage, got.Type)
	})
}

package client

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"e2e_relay/internal/app"
	"e2e_relay/internal/config"
	"e2e_relay/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type screen struct {
	lines chan string
}

func newScreen() *screen {
	return &screen{lines: make(chan string, 1024)}
}

func (s *screen) print(line string) {
	s.lines <- line
}

func (s *screen) waitFor(t *testing.T, substr string) string {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case line := <-s.lines:
			if strings.Contains(line, substr) {
				return line
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %q", substr)
			return ""
		}
	}
}

func newRelay(t *testing.T) string {
	t.Helper()
	cfg := &config.Config{
		Server:  config.Server{AllowedOrigins: []string{"*"}, SendBuffer: 16},
		Storage: config.Storage{Driver: config.DriverMemory, Timeout: 5 * time.Second},
		Auth:    config.Auth{Secret: "test-secret", TokenTTL: time.Hour, CookieName: "token"},
		Relay:   config.Relay{RequireContact: true, MaxCiphertext: 4096},
		Prekeys: config.Prekeys{MaxBatch: 100},
	}
	srv := httptest.NewServer(app.Build(cfg, memory.New(), nil).Server.Handler())
	t.Cleanup(srv.Close)
	return srv.URL
}

func connect(ctx context.Context, t *testing.T, relay, handle, home string) (*Client, *screen) {
	t.Helper()
	s := newScreen()
	c, err := Open(ctx, Options{Server: relay, Handle: handle, Home: home, Prekeys: 5}, s.print)
	require.NoError(t, err)
	go c.Listen(ctx)
	return c, s
}

func TestTwoClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	relay := newRelay(t)
	aliceHome, bobHome := t.TempDir(), t.TempDir()

	alice, aliceScreen := connect(ctx, t, relay, "alice@example.com", aliceHome)
	defer alice.Close()
	bob, bobScreen := connect(ctx, t, relay, "bob@example.com", bobHome)
	aliceScreen.waitFor(t, "registered alice@example.com")
	bobScreen.waitFor(t, "registered bob@example.com")

	require.NoError(t, alice.Exec(ctx, "/chat bob@example.com"))
	assert.Error(t, alice.Exec(ctx, "hello before contact"), "bundle is refused to strangers")

	require.NoError(t, alice.Exec(ctx, "/add bob@example.com"))
	bobScreen.waitFor(t, "alice@example.com wants to connect")
	require.NoError(t, bob.Exec(ctx, "/accept alice@example.com"))
	aliceScreen.waitFor(t, "bob@example.com accepted your request")

	require.NoError(t, alice.Exec(ctx, "hello bob"))
	aliceScreen.waitFor(t, "You:[-] hello bob")
	bobScreen.waitFor(t, "alice@example.com:[-] hello bob")
	aliceScreen.waitFor(t, "secure session with bob@example.com confirmed")

	require.NoError(t, bob.Exec(ctx, "/chat alice@example.com"))
	require.NoError(t, bob.Exec(ctx, "hi alice"))
	aliceScreen.waitFor(t, "bob@example.com:[-] hi alice")

	t.Run("offline messages drain on chat open", func(t *testing.T) {
		require.NoError(t, bob.Close())
		require.NoError(t, alice.Exec(ctx, "are you there"))
		aliceScreen.waitFor(t, "You:[-] are you there")

		back, backScreen := connect(ctx, t, relay, "bob@example.com", bobHome)
		defer back.Close()
		require.NoError(t, back.Exec(ctx, "/chat alice@example.com"))
		backScreen.waitFor(t, "alice@example.com:[-] are you there")

		require.NoError(t, back.Exec(ctx, "yes"))
		aliceScreen.waitFor(t, "bob@example.com:[-] yes")
	})

	t.Run("commands", func(t *testing.T) {
		assert.ErrorIs(t, alice.Exec(ctx, "/quit"), ErrQuit)
		assert.Error(t, alice.Exec(ctx, "/add"))
		assert.Error(t, alice.Exec(ctx, "/bogus"))
		assert.Error(t, alice.Exec(ctx, "/accept carol@example.com"))
		require.NoError(t, alice.Exec(ctx, "/contacts"))
		aliceScreen.waitFor(t, "bob@example.com (accepted, out)")
	})
}

func TestSendWithoutChat(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, _ := connect(ctx, t, newRelay(t), "carol@example.com", t.TempDir())
	defer c.Close()
	assert.Error(t, c.Exec(ctx, "hello"))
}

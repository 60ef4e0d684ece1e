package client

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"e2e_relay/internal/cryptographic/dh"
	"e2e_relay/internal/model"
	"e2e_relay/internal/service/account"
	"e2e_relay/internal/utils/log"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrQuit is returned by Exec for /quit.
var ErrQuit = errors.New("quit")

type (
	Options struct {
		Server string
		Handle string
		Home   string
		// Prekeys is the pool size the client keeps on the relay. It tops
		// up once fewer than LowWater remain.
		Prekeys  int
		LowWater int
	}

	// Printer receives display lines. Lines may carry tview color tags.
	Printer func(line string)

	// Client is one logged-in user: the relay connection, the keyring and
	// the conversation currently open.
	Client struct {
		api      *API
		keys     *Keyring
		sessions *Sessions
		opts     Options
		out      Printer

		conn *websocket.Conn
		wmu  sync.Mutex

		// mu serializes ratchet steps and keyring writes.
		mu   sync.Mutex
		peer string
	}

	inbound struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
		Ref  string          `json:"ref"`
	}
)

func (o *Options) setDefaults() {
	if o.Prekeys <= 0 {
		o.Prekeys = 20
	}
	if o.LowWater <= 0 {
		o.LowWater = o.Prekeys / 4
	}
}

// Open loads or creates the keyring for opts.Handle, registering the handle
// on first use, tops up prekeys and connects the event stream.
func Open(ctx context.Context, opts Options, out Printer) (*Client, error) {
	opts.setDefaults()
	api, err := NewAPI(opts.Server)
	if err != nil {
		return nil, err
	}
	c := &Client{api: api, opts: opts, out: out}

	keys, err := LoadKeyring(opts.Home, opts.Handle)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if keys, err = c.register(ctx); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		api.SetToken(keys.Token)
		if keys.Token, err = api.RefreshToken(ctx); err != nil {
			return nil, errors.Wrap(err, "refresh token")
		}
		if err := keys.Save(); err != nil {
			return nil, err
		}
	}
	c.keys = keys
	c.sessions = NewSessions(keys)

	if err := c.topUp(ctx); err != nil {
		c.printf("[red]prekey top-up failed:[-] %v", err)
	}

	if c.conn, err = api.Dial(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) register(ctx context.Context) (*Keyring, error) {
	keys, err := NewKeyring(c.opts.Home, c.opts.Handle)
	if err != nil {
		return nil, err
	}
	prekeys, err := keys.GeneratePrekeys(c.opts.Prekeys)
	if err != nil {
		return nil, err
	}

	res, err := c.api.Register(ctx, account.Registration{
		Handle:       keys.Handle,
		IdentityKey:  keys.IdentityKey(),
		SignedPrekey: keys.SignedPrekey(),
		Prekeys:      prekeys,
	})
	if err != nil {
		return nil, errors.Wrap(err, "register")
	}
	if res.Warning != "" {
		c.printf("[red]registered, but prekeys were refused:[-] %s", res.Warning)
		keys.Prekeys = make(map[uint32][32]byte)
	}

	keys.Token = res.Token
	if err := keys.Save(); err != nil {
		return nil, err
	}
	c.printf("[gray]registered %s[-]", keys.Handle)
	return keys, nil
}

func (c *Client) Handle() string {
	return c.keys.Handle
}

func (c *Client) Peer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peer
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.keys.Save(); err != nil {
		log.Error("save keyring failed", zap.Error(err))
	}
	return c.conn.Close()
}

func (c *Client) printf(format string, args ...any) {
	if c.out != nil {
		c.out(fmt.Sprintf(format, args...))
	}
}

func (c *Client) write(op string, data any) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return c.conn.WriteJSON(model.Frame{Op: op, Data: raw})
}

// topUp uploads fresh one-time prekeys once the relay's pool runs low.
func (c *Client) topUp(ctx context.Context) error {
	n, err := c.api.CountPrekeys(ctx)
	if err != nil {
		return err
	}
	if n >= c.opts.LowWater {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ups, err := c.keys.GeneratePrekeys(c.opts.Prekeys - n)
	if err != nil {
		return err
	}
	if err := c.keys.Save(); err != nil {
		return err
	}
	res, err := c.api.UploadPrekeys(ctx, ups)
	if err != nil {
		return err
	}
	log.Debug("prekeys uploaded", zap.Int("appended", res.Appended), zap.Int("reused", res.Reused))
	return nil
}

// Exec runs one line of user input: a slash command or a message for the
// open conversation.
func (c *Client) Exec(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		return c.send(ctx, line)
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	needArg := func() error {
		if arg == "" {
			return fmt.Errorf("usage: %s <handle>", cmd)
		}
		return nil
	}

	switch cmd {
	case "/quit":
		return ErrQuit
	case "/add":
		if err := needArg(); err != nil {
			return err
		}
		if err := c.api.RequestContact(ctx, arg); err != nil {
			return err
		}
		c.printf("[gray]contact request sent to %s[-]", arg)
	case "/accept", "/reject":
		if err := needArg(); err != nil {
			return err
		}
		return c.respond(ctx, arg, cmd == "/accept")
	case "/remove":
		if err := needArg(); err != nil {
			return err
		}
		if err := c.api.RemoveContact(ctx, arg); err != nil {
			return err
		}
		c.printf("[gray]removed %s[-]", arg)
	case "/contacts":
		views, err := c.api.Contacts(ctx)
		if err != nil {
			return err
		}
		c.printViews("contacts", views)
	case "/requests":
		views, err := c.api.ContactRequests(ctx)
		if err != nil {
			return err
		}
		c.printViews("pending requests", views)
	case "/chat":
		if err := needArg(); err != nil {
			return err
		}
		return c.openChat(arg)
	default:
		return fmt.Errorf("unknown command %s", cmd)
	}
	return nil
}

func (c *Client) printViews(title string, views []model.ContactView) {
	if len(views) == 0 {
		c.printf("[gray]no %s[-]", title)
		return
	}
	c.printf("[gray]%s:[-]", title)
	for _, v := range views {
		dir := "in"
		if v.Outgoing {
			dir = "out"
		}
		c.printf("  %s (%s, %s)", v.Peer.Handle, v.Status, dir)
	}
}

func (c *Client) respond(ctx context.Context, handle string, accept bool) error {
	handle = model.NormalizeHandle(handle)
	views, err := c.api.ContactRequests(ctx)
	if err != nil {
		return err
	}
	for _, v := range views {
		if v.Peer.Handle == handle && !v.Outgoing {
			if err := c.api.RespondContact(ctx, v.RequestID, accept); err != nil {
				return err
			}
			c.printf("[gray]%s %s[-]", map[bool]string{true: "accepted", false: "rejected"}[accept], handle)
			return nil
		}
	}
	return fmt.Errorf("no pending request from %s", handle)
}

// openChat switches the conversation and asks the relay for what arrived
// while we were away.
func (c *Client) openChat(handle string) error {
	handle = model.NormalizeHandle(handle)
	c.mu.Lock()
	c.peer = handle
	c.mu.Unlock()

	c.printf("[gray]chatting with %s[-]", handle)
	return c.write(model.OpLoadUndelivered, map[string]string{"from": handle})
}

func (c *Client) send(ctx context.Context, text string) error {
	c.mu.Lock()
	peer := c.peer
	if peer == "" {
		c.mu.Unlock()
		return errors.New("no open chat, use /chat <handle>")
	}

	if !c.sessions.Has(peer) {
		if err := c.initiate(ctx, peer); err != nil {
			c.mu.Unlock()
			return err
		}
	}
	kind, blob, err := c.sessions.Seal(peer, []byte(text))
	if err == nil {
		err = c.keys.Save()
	}
	c.mu.Unlock()
	if err != nil {
		return err
	}

	if err := c.write(model.OpSendMessage, map[string]any{"to": peer, "kind": kind, "ciphertext": blob}); err != nil {
		return err
	}
	c.printf("[yellow]You:[-] %s", text)
	return nil
}

// initiate runs X3DH against peer's published bundle. Callers hold mu.
func (c *Client) initiate(ctx context.Context, peer string) error {
	bundle, err := c.api.Bundle(ctx, peer)
	if err != nil {
		return errors.Wrap(err, "fetch bundle")
	}
	if bundle.OneTimePrekey == nil {
		c.printf("[gray]%s has no one-time prekeys left[-]", peer)
	}

	ek, prekeyID, err := c.sessions.Initiate(peer, bundle)
	if err != nil {
		return err
	}
	if err := c.api.SendEphemeral(ctx, peer, ek[:], prekeyID); err != nil {
		c.keys.DropSession(peer)
		return errors.Wrap(err, "publish ephemeral key")
	}
	c.printf("[gray]started a secure session with %s[-]", peer)
	return nil
}

// accept answers peer's newest X3DH initiation. Callers hold mu.
func (c *Client) accept(ctx context.Context, peer string) error {
	profile, err := c.api.Profile(ctx, peer)
	if err != nil {
		return err
	}
	ek, err := c.api.RetrieveEphemeral(ctx, peer)
	if err != nil {
		return errors.Wrap(err, "retrieve ephemeral key")
	}
	return c.sessions.Accept(peer, profile.IdentityKey, ek)
}

// Listen reads events until the connection closes.
func (c *Client) Listen(ctx context.Context) error {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}

		var ev inbound
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Error("decode event failed", zap.Error(err))
			continue
		}
		if err := c.handle(ctx, ev); err != nil {
			c.printf("[red]%s:[-] %v", ev.Type, err)
		}
	}
}

func (c *Client) handle(ctx context.Context, ev inbound) error {
	switch ev.Type {
	case model.EventMessage:
		var m model.MessageEvent
		if err := json.Unmarshal(ev.Data, &m); err != nil {
			return err
		}
		return c.receive(ctx, m, true)

	case model.EventMessagesLoad:
		var load model.MessagesLoadEvent
		if err := json.Unmarshal(ev.Data, &load); err != nil {
			return err
		}
		for _, m := range load.Messages {
			if err := c.receive(ctx, m, false); err != nil {
				c.printf("[red]message %d:[-] %v", m.ID, err)
			}
		}
		if len(load.Messages) > 0 {
			return c.write(model.OpMarkRead, map[string]string{"from": load.From})
		}

	case model.EventMessageSent:
		var m model.MessageSentEvent
		if err := json.Unmarshal(ev.Data, &m); err != nil {
			return err
		}
		if !m.Live {
			c.printf("[gray]%s is offline, message #%d queued[-]", m.To, m.ID)
		}

	case model.EventMessageDelivered:
		var m model.DeliveredEvent
		if err := json.Unmarshal(ev.Data, &m); err != nil {
			return err
		}
		c.printf("[gray]#%d delivered to %s[-]", m.ID, m.By)

	case model.EventMessagesRead:
		var m model.ReadEvent
		if err := json.Unmarshal(ev.Data, &m); err != nil {
			return err
		}
		c.printf("[gray]%s read %d message(s)[-]", m.By, m.Count)

	case model.EventEphemeralKey:
		var m model.EphemeralKeyEvent
		if err := json.Unmarshal(ev.Data, &m); err != nil {
			return err
		}
		c.printf("[gray]%s is starting a secure session[-]", m.From)

	case model.EventRatchetKey:
		var m model.RatchetKeyEvent
		if err := json.Unmarshal(ev.Data, &m); err != nil {
			return err
		}
		c.printf("[gray]secure session with %s confirmed[-]", m.From)

	case model.EventContactRequest:
		var m model.ContactEvent
		if err := json.Unmarshal(ev.Data, &m); err != nil {
			return err
		}
		c.printf("[blue]%s wants to connect, /accept %s or /reject %s[-]", m.From, m.From, m.From)

	case model.EventContactRequestResponse:
		var m model.ContactEvent
		if err := json.Unmarshal(ev.Data, &m); err != nil {
			return err
		}
		c.printf("[blue]%s %s your request[-]", m.From, m.Status)

	case model.EventContactRemoved:
		var m model.ContactEvent
		if err := json.Unmarshal(ev.Data, &m); err != nil {
			return err
		}
		c.printf("[blue]%s removed you from contacts[-]", m.From)

	case model.EventPendingSummary:
		var m map[string]int64
		if err := json.Unmarshal(ev.Data, &m); err != nil {
			return err
		}
		for from, n := range m {
			c.printf("[blue]%d unread from %s, /chat %s[-]", n, from, from)
		}

	case model.EventError:
		var m model.ErrorEvent
		if err := json.Unmarshal(ev.Data, &m); err != nil {
			return err
		}
		return errors.Errorf("%s: %s", m.Code, m.Message)

	case model.EventPong:
	default:
		log.Debug("ignored event", zap.String("type", ev.Type))
	}
	return nil
}

// receive decrypts one envelope. live envelopes are acknowledged, drained
// ones were marked delivered by the relay already.
func (c *Client) receive(ctx context.Context, m model.MessageEvent, live bool) error {
	c.mu.Lock()
	if !c.keys.MarkSeen(m.From, m.ID) {
		c.mu.Unlock()
		return nil
	}

	var plain []byte
	err := func() error {
		if m.Kind == model.KindHandshake {
			if err := c.accept(ctx, m.From); err != nil {
				return err
			}
		}
		var err error
		if plain, err = c.sessions.Open(m.From, m.Ciphertext); err != nil {
			return err
		}
		return c.keys.Save()
	}()
	open := c.peer == m.From
	spk := dh.PublicKey(c.keys.SignedPrekeyPriv)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	c.printf("[green]%s:[-] %s", m.From, plain)

	if live {
		if err := c.write(model.OpMessageReceived, map[string]int64{"id": m.ID}); err != nil {
			return err
		}
		if open {
			if err := c.write(model.OpMarkRead, map[string]string{"from": m.From}); err != nil {
				return err
			}
		}
	}

	if m.Kind == model.KindHandshake {
		if _, err := c.api.RelayRatchetKey(ctx, m.From, spk[:]); err != nil {
			log.Warn("ratchet key confirmation failed", zap.Error(err))
		}
		return c.topUp(ctx)
	}
	return nil
}

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"e2e_relay/internal/apperr"
	"e2e_relay/internal/auth"
	"e2e_relay/internal/model"
	"e2e_relay/internal/service/presence"
	"e2e_relay/internal/utils/log"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

type (
	// session is one websocket connection. Pushes from other goroutines go
	// through send; only writePump touches the connection for writing.
	session struct {
		id   string
		user auth.Identity
		conn *websocket.Conn
		send chan model.Event

		done      chan struct{}
		closeOnce sync.Once
	}

	wsSend struct {
		To         string     `json:"to"`
		Kind       model.Kind `json:"kind"`
		Ciphertext []byte     `json:"ciphertext"`
	}

	wsAck struct {
		ID int64 `json:"id"`
	}

	wsPeer struct {
		From string `json:"from"`
	}
)

var _ presence.Session = (*session)(nil)

func newSession(user auth.Identity, conn *websocket.Conn, buffer int) *session {
	return &session{
		id:   uuid.NewString(),
		user: user,
		conn: conn,
		send: make(chan model.Event, buffer),
		done: make(chan struct{}),
	}
}

func (c *session) ID() string { return c.id }

// Push queues ev without blocking.
func (c *session) Push(ev model.Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

// reply queues a response to one of the session's own frames. It waits for
// room in the queue because drained envelopes are already marked delivered.
func (c *session) reply(ev model.Event) {
	select {
	case c.send <- ev:
	case <-c.done:
	}
}

func (c *session) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (s *HttpServer) HandleWS() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := caller(r)

		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debug("websocket upgrade failed", zap.Error(err))
			return
		}

		sess := newSession(id, conn, s.cfg.Server.SendBuffer)
		if prev := s.svc.Registry.Connect(id.UserID, sess); prev != nil {
			if old, ok := prev.(*session); ok {
				old.close()
			}
		}
		log.Info("session opened", zap.String("user", id.Handle), zap.String("session", sess.id))

		go s.writePump(sess)
		s.sendPendingSummary(sess)
		s.readPump(sess)
	}
}

func (s *HttpServer) sendPendingSummary(c *session) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Storage.Timeout)
	defer cancel()

	summary, err := s.svc.Relay.PendingSummary(ctx, c.user.UserID)
	if err != nil {
		log.Error("pending summary failed", zap.String("user", c.user.Handle), zap.Error(err))
		return
	}
	c.reply(model.Event{Type: model.EventPendingSummary, Data: summary})
}

func (s *HttpServer) readPump(c *session) {
	defer func() {
		s.svc.Registry.Disconnect(c)
		c.close()
		log.Info("session closed", zap.String("user", c.user.Handle), zap.String("session", c.id))
	}()

	c.conn.SetReadLimit(s.maxBody)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var f model.Frame
		if err := c.conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("websocket read failed", zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		ev, err := s.dispatch(c, f)
		if err != nil {
			ev = &model.Event{
				Type: model.EventError,
				Data: model.ErrorEvent{Code: string(apperr.CodeOf(err)), Message: apperr.Message(err)},
			}
			if apperr.HTTPStatus(err) >= http.StatusInternalServerError {
				log.Error("websocket op failed", zap.String("op", f.Op), zap.Error(err))
			}
		}
		if ev != nil {
			ev.Ref = f.Ref
			c.reply(*ev)
		}
	}
}

func (s *HttpServer) writePump(c *session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case ev := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				log.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// dispatch runs one client frame and returns the event answering it, if any.
func (s *HttpServer) dispatch(c *session, f model.Frame) (*model.Event, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Storage.Timeout)
	defer cancel()
	me := c.user.UserID

	switch f.Op {
	case model.OpPing:
		return &model.Event{Type: model.EventPong}, nil

	case model.OpSendMessage:
		var req wsSend
		if err := unmarshal(f.Data, &req); err != nil {
			return nil, err
		}
		if req.Kind == "" {
			req.Kind = model.KindText
		}
		res, err := s.svc.Relay.Send(ctx, me, req.To, req.Kind, req.Ciphertext)
		if err != nil {
			return nil, err
		}
		return &model.Event{Type: model.EventMessageSent, Data: model.MessageSentEvent{
			ID:        res.ID,
			To:        model.NormalizeHandle(req.To),
			Live:      res.Live,
			CreatedAt: res.CreatedAt.UnixMilli(),
		}}, nil

	case model.OpMessageReceived:
		var req wsAck
		if err := unmarshal(f.Data, &req); err != nil {
			return nil, err
		}
		return nil, s.svc.Relay.AcknowledgeDelivered(ctx, me, req.ID)

	case model.OpMarkRead:
		var req wsPeer
		if err := unmarshal(f.Data, &req); err != nil {
			return nil, err
		}
		_, err := s.svc.Relay.AcknowledgeRead(ctx, me, req.From)
		return nil, err

	case model.OpLoadUndelivered:
		var req wsPeer
		if err := unmarshal(f.Data, &req); err != nil {
			return nil, err
		}
		envs, err := s.svc.Relay.DrainUndelivered(ctx, me, req.From)
		if err != nil {
			return nil, err
		}
		from := model.NormalizeHandle(req.From)
		load := model.MessagesLoadEvent{From: from, Messages: make([]model.MessageEvent, len(envs))}
		for i := range envs {
			load.Messages[i] = model.NewMessageEvent(&envs[i], from)
		}
		return &model.Event{Type: model.EventMessagesLoad, Data: load}, nil

	case model.OpEphemeralKey:
		var req ephemeralRequest
		if err := unmarshal(f.Data, &req); err != nil {
			return nil, err
		}
		_, _, err := s.svc.Keys.SendEphemeral(ctx, me, req.To, req.EphemeralKey, req.PrekeyID)
		return nil, err

	case model.OpRatchetKey:
		var req ratchetRequest
		if err := unmarshal(f.Data, &req); err != nil {
			return nil, err
		}
		_, err := s.svc.Keys.RelayRatchetKey(ctx, me, req.To, req.RatchetKey)
		return nil, err

	default:
		return nil, apperr.InvalidArgument("unknown op " + f.Op)
	}
}

func unmarshal(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return apperr.InvalidArgument("frame data is empty")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperr.InvalidArgument("malformed frame data")
	}
	return nil
}

func (s *HttpServer) closeSessions() {
	for _, sess := range s.svc.Registry.Sessions() {
		if c, ok := sess.(*session); ok {
			c.close()
		}
	}
}

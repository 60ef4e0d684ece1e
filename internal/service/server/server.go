package server

import (
	"context"
	"net/http"
	"time"

	"e2e_relay/internal/auth"
	"e2e_relay/internal/config"
	"e2e_relay/internal/service/account"
	"e2e_relay/internal/service/contact"
	"e2e_relay/internal/service/keyexchange"
	"e2e_relay/internal/service/prekey"
	"e2e_relay/internal/service/presence"
	"e2e_relay/internal/service/relay"
	"e2e_relay/internal/utils/log"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

type (
	Services struct {
		Accounts *account.Service
		Prekeys  *prekey.Service
		Contacts *contact.Service
		Keys     *keyexchange.Service
		Relay    *relay.Service
		Registry *presence.Registry
		Tokens   *auth.Issuer
	}

	HttpServer struct {
		svc      Services
		cfg      *config.Config
		upgrader websocket.Upgrader
		maxBody  int64
	}
)

func NewHttpServer(cfg *config.Config, svc Services) *HttpServer {
	s := &HttpServer{
		svc: svc,
		cfg: cfg,
		// base64 in JSON inflates ciphertext by a third
		maxBody: int64(cfg.Relay.MaxCiphertext)*2 + 64<<10,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Handler returns the routed handler with CORS and request logging applied.
func (s *HttpServer) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.Health()).Methods(http.MethodGet)
	r.Handle("/ws", s.authenticate(true)(s.HandleWS())).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.bounded)
	api.HandleFunc("/register", s.Register()).Methods(http.MethodPost)

	p := api.NewRoute().Subrouter()
	p.Use(s.authenticate(false))
	p.HandleFunc("/token/refresh", s.RefreshToken()).Methods(http.MethodPost)
	p.HandleFunc("/users/{handle}", s.GetProfile()).Methods(http.MethodGet)
	p.HandleFunc("/keys/signed", s.RotateSignedPrekey()).Methods(http.MethodPut)
	p.HandleFunc("/keys/{handle}", s.FetchBundle()).Methods(http.MethodGet)

	p.HandleFunc("/contacts", s.RequestContact()).Methods(http.MethodPost)
	p.HandleFunc("/contacts", s.ListContacts()).Methods(http.MethodGet)
	p.HandleFunc("/contacts/{handle}", s.RemoveContact()).Methods(http.MethodDelete)
	p.HandleFunc("/contact-requests", s.ListContactRequests()).Methods(http.MethodGet)
	p.HandleFunc("/contact-requests/{id:[0-9]+}", s.RespondContact()).Methods(http.MethodPut)

	p.HandleFunc("/prekeys", s.ReplenishPrekeys()).Methods(http.MethodPost)
	p.HandleFunc("/prekeys/count", s.CountPrekeys()).Methods(http.MethodGet)
	p.HandleFunc("/x3dh", s.SendEphemeral()).Methods(http.MethodPost)
	p.HandleFunc("/x3dh/{handle}", s.RetrieveEphemeral()).Methods(http.MethodGet)
	p.HandleFunc("/ratchet", s.RelayRatchetKey()).Methods(http.MethodPost)

	p.HandleFunc("/messages/ack/{id:[0-9]+}", s.AcknowledgeDelivered()).Methods(http.MethodPost)
	p.HandleFunc("/messages/{handle}/read", s.AcknowledgeRead()).Methods(http.MethodPost)
	p.HandleFunc("/messages/{handle}/drain", s.DrainUndelivered()).Methods(http.MethodPost)
	p.HandleFunc("/messages/{handle}", s.SendMessage()).Methods(http.MethodPost)
	p.HandleFunc("/messages/{handle}", s.History()).Methods(http.MethodGet)

	return cors.New(s.cfg.CorsOptions()).Handler(requestLogger(r))
}

// Run serves until ctx is cancelled, then closes live sessions and drains
// in-flight requests.
func (s *HttpServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Server.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("relay listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "listen")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		s.closeSessions()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *HttpServer) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		JSONResponse(w, http.StatusOK, Payload{
			Success: true,
			Data:    map[string]int{"sessions": s.svc.Registry.Count()},
		})
	}
}

func (s *HttpServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range s.cfg.Server.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	log.Debug("websocket origin refused", zap.String("origin", origin))
	return false
}

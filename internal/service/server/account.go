package server

import (
	"net/http"

	"e2e_relay/internal/apperr"
	"e2e_relay/internal/model"
	"e2e_relay/internal/service/account"

	"github.com/gorilla/mux"
)

type registerResponse struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

func (s *HttpServer) setTokenCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.Auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.svc.Tokens.TTL().Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *HttpServer) Register() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req account.Registration
		if err := s.decode(w, r, &req); err != nil {
			fail(w, r, err)
			return
		}

		user, err := s.svc.Accounts.Register(r.Context(), req)
		if user == nil {
			fail(w, r, err)
			return
		}

		token, terr := s.svc.Tokens.Issue(user.ID, user.Handle)
		if terr != nil {
			fail(w, r, terr)
			return
		}
		s.setTokenCookie(w, token)

		// The user exists even when the initial prekey upload failed; the
		// client retries that upload with its new token.
		p := Payload{Success: true, Data: registerResponse{User: user, Token: token}}
		if err != nil {
			p.Message = apperr.Message(err)
			p.Code = apperr.CodeOf(err)
		}
		JSONResponse(w, http.StatusCreated, p)
	}
}

func (s *HttpServer) RefreshToken() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := caller(r)
		user, err := s.svc.Accounts.Get(r.Context(), id.UserID)
		if err != nil {
			fail(w, r, err)
			return
		}

		token, err := s.svc.Tokens.Issue(user.ID, user.Handle)
		if err != nil {
			fail(w, r, err)
			return
		}
		s.setTokenCookie(w, token)
		reply(w, http.StatusOK, map[string]string{"token": token})
	}
}

func (s *HttpServer) GetProfile() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := s.svc.Accounts.Lookup(r.Context(), mux.Vars(r)["handle"])
		if err != nil {
			fail(w, r, err)
			return
		}
		reply(w, http.StatusOK, user.Profile())
	}
}

func (s *HttpServer) RotateSignedPrekey() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var spk model.SignedPrekey
		if err := s.decode(w, r, &spk); err != nil {
			fail(w, r, err)
			return
		}
		if err := s.svc.Accounts.RotateSignedPrekey(r.Context(), caller(r).UserID, spk); err != nil {
			fail(w, r, err)
			return
		}
		reply(w, http.StatusOK, nil)
	}
}

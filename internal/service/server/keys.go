package server

import (
	"net/http"

	"e2e_relay/internal/model"

	"github.com/gorilla/mux"
)

type (
	replenishRequest struct {
		Prekeys []model.PrekeyUpload `json:"prekeys"`
	}

	ephemeralRequest struct {
		To           string  `json:"to"`
		EphemeralKey []byte  `json:"ephemeral_key"`
		PrekeyID     *uint32 `json:"prekey_id"`
	}

	ephemeralResponse struct {
		*model.EphemeralKey
		Live bool `json:"live"`
	}

	ratchetRequest struct {
		To         string `json:"to"`
		RatchetKey []byte `json:"ratchet_key"`
	}
)

func (s *HttpServer) FetchBundle() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := s.svc.Keys.FetchBundle(r.Context(), caller(r).UserID, mux.Vars(r)["handle"])
		if err != nil {
			fail(w, r, err)
			return
		}
		reply(w, http.StatusOK, b)
	}
}

func (s *HttpServer) ReplenishPrekeys() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req replenishRequest
		if err := s.decode(w, r, &req); err != nil {
			fail(w, r, err)
			return
		}

		res, err := s.svc.Prekeys.Replenish(r.Context(), caller(r).UserID, req.Prekeys)
		if err != nil {
			fail(w, r, err)
			return
		}
		reply(w, http.StatusOK, res)
	}
}

func (s *HttpServer) CountPrekeys() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := s.svc.Prekeys.CountUnused(r.Context(), caller(r).UserID)
		if err != nil {
			fail(w, r, err)
			return
		}
		reply(w, http.StatusOK, map[string]int{"unused": n})
	}
}

func (s *HttpServer) SendEphemeral() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ephemeralRequest
		if err := s.decode(w, r, &req); err != nil {
			fail(w, r, err)
			return
		}

		k, live, err := s.svc.Keys.SendEphemeral(r.Context(), caller(r).UserID, req.To, req.EphemeralKey, req.PrekeyID)
		if err != nil {
			fail(w, r, err)
			return
		}
		reply(w, http.StatusCreated, ephemeralResponse{EphemeralKey: k, Live: live})
	}
}

func (s *HttpServer) RetrieveEphemeral() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		k, err := s.svc.Keys.RetrieveEphemeral(r.Context(), caller(r).UserID, mux.Vars(r)["handle"])
		if err != nil {
			fail(w, r, err)
			return
		}
		reply(w, http.StatusOK, k)
	}
}

func (s *HttpServer) RelayRatchetKey() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ratchetRequest
		if err := s.decode(w, r, &req); err != nil {
			fail(w, r, err)
			return
		}

		live, err := s.svc.Keys.RelayRatchetKey(r.Context(), caller(r).UserID, req.To, req.RatchetKey)
		if err != nil {
			fail(w, r, err)
			return
		}
		reply(w, http.StatusOK, map[string]bool{"live": live})
	}
}

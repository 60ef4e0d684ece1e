package server

import (
	"net/http"
	"strconv"

	"e2e_relay/internal/apperr"
	"e2e_relay/internal/model"

	"github.com/gorilla/mux"
)

type sendRequest struct {
	Kind       model.Kind `json:"kind"`
	Ciphertext []byte     `json:"ciphertext"`
}

func (s *HttpServer) SendMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sendRequest
		if err := s.decode(w, r, &req); err != nil {
			fail(w, r, err)
			return
		}
		if req.Kind == "" {
			req.Kind = model.KindText
		}

		res, err := s.svc.Relay.Send(r.Context(), caller(r).UserID, mux.Vars(r)["handle"], req.Kind, req.Ciphertext)
		if err != nil {
			fail(w, r, err)
			return
		}
		reply(w, http.StatusCreated, res)
	}
}

func (s *HttpServer) AcknowledgeDelivered() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
		if err != nil {
			fail(w, r, apperr.InvalidArgument("invalid message id"))
			return
		}
		if err := s.svc.Relay.AcknowledgeDelivered(r.Context(), caller(r).UserID, id); err != nil {
			fail(w, r, err)
			return
		}
		reply(w, http.StatusOK, nil)
	}
}

func (s *HttpServer) AcknowledgeRead() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := s.svc.Relay.AcknowledgeRead(r.Context(), caller(r).UserID, mux.Vars(r)["handle"])
		if err != nil {
			fail(w, r, err)
			return
		}
		reply(w, http.StatusOK, map[string]int{"count": n})
	}
}

func (s *HttpServer) DrainUndelivered() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := s.svc.Relay.DrainUndelivered(r.Context(), caller(r).UserID, mux.Vars(r)["handle"])
		if err != nil {
			fail(w, r, err)
			return
		}
		if res == nil {
			res = []model.Envelope{}
		}
		reply(w, http.StatusOK, res)
	}
}

func (s *HttpServer) History() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		before, err := queryInt(q.Get("before"))
		if err != nil {
			fail(w, r, apperr.InvalidArgument("invalid before"))
			return
		}
		limit, err := queryInt(q.Get("limit"))
		if err != nil {
			fail(w, r, apperr.InvalidArgument("invalid limit"))
			return
		}

		res, err := s.svc.Relay.History(r.Context(), caller(r).UserID, mux.Vars(r)["handle"], before, int(limit))
		if err != nil {
			fail(w, r, err)
			return
		}
		if res == nil {
			res = []model.Envelope{}
		}
		reply(w, http.StatusOK, res)
	}
}

func queryInt(v string) (int64, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.ParseInt(v, 10, 64)
}

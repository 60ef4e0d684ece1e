package server

import (
	"net/http"
	"strconv"

	"e2e_relay/internal/apperr"

	"github.com/gorilla/mux"
)

type (
	contactRequest struct {
		Handle string `json:"handle"`
	}

	contactResponse struct {
		Action string `json:"action"`
	}
)

func (s *HttpServer) RequestContact() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req contactRequest
		if err := s.decode(w, r, &req); err != nil {
			fail(w, r, err)
			return
		}

		c, err := s.svc.Contacts.Request(r.Context(), caller(r).UserID, req.Handle)
		if err != nil {
			fail(w, r, err)
			return
		}
		reply(w, http.StatusCreated, c)
	}
}

func (s *HttpServer) ListContacts() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		views, err := s.svc.Contacts.Contacts(r.Context(), caller(r).UserID)
		if err != nil {
			fail(w, r, err)
			return
		}
		reply(w, http.StatusOK, views)
	}
}

func (s *HttpServer) ListContactRequests() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		views, err := s.svc.Contacts.PendingRequests(r.Context(), caller(r).UserID)
		if err != nil {
			fail(w, r, err)
			return
		}
		reply(w, http.StatusOK, views)
	}
}

func (s *HttpServer) RespondContact() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
		if err != nil {
			fail(w, r, apperr.InvalidArgument("invalid request id"))
			return
		}

		var req contactResponse
		if err := s.decode(w, r, &req); err != nil {
			fail(w, r, err)
			return
		}

		var accept bool
		switch req.Action {
		case "accept":
			accept = true
		case "reject":
		default:
			fail(w, r, apperr.InvalidArgument("action must be accept or reject"))
			return
		}

		c, err := s.svc.Contacts.Respond(r.Context(), caller(r).UserID, id, accept)
		if err != nil {
			fail(w, r, err)
			return
		}
		reply(w, http.StatusOK, c)
	}
}

func (s *HttpServer) RemoveContact() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.svc.Contacts.Remove(r.Context(), caller(r).UserID, mux.Vars(r)["handle"]); err != nil {
			fail(w, r, err)
			return
		}
		reply(w, http.StatusOK, nil)
	}
}

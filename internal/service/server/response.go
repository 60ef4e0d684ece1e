package server

import (
	"encoding/json"
	"io"
	"net/http"

	"e2e_relay/internal/apperr"
	"e2e_relay/internal/utils/log"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Payload struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Code    apperr.Code `json:"code,omitempty"`
	Data    any         `json:"data,omitempty"`
}

func JSONResponse(w http.ResponseWriter, status int, p Payload) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		log.Error("encode response failed", zap.Error(err))
	}
}

func reply(w http.ResponseWriter, status int, data any) {
	JSONResponse(w, status, Payload{Success: true, Data: data})
}

// fail maps err onto its HTTP status. Details of unclassified errors stay in
// the log.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	JSONResponse(w, status, Payload{
		Message: apperr.Message(err),
		Code:    apperr.CodeOf(err),
	})
}

func (s *HttpServer) decode(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, s.maxBody)
	defer body.Close()

	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return apperr.ErrCiphertextTooLarge
		case errors.Is(err, io.EOF):
			return apperr.InvalidArgument("request body is empty")
		default:
			return apperr.InvalidArgument("malformed request body")
		}
	}
	return nil
}

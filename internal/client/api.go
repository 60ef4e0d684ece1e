package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"e2e_relay/internal/apperr"
	"e2e_relay/internal/model"
	"e2e_relay/internal/service/account"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

type (
	// API talks to the relay's REST and websocket endpoints.
	API struct {
		base  *url.URL
		http  *http.Client
		token string
	}

	// APIError is a non-2xx answer from the relay.
	APIError struct {
		Status  int
		Code    apperr.Code
		Message string
	}

	payload struct {
		Success bool            `json:"success"`
		Message string          `json:"message"`
		Code    apperr.Code     `json:"code"`
		Data    json.RawMessage `json:"data"`
	}

	RegisterResult struct {
		User  *model.User `json:"user"`
		Token string      `json:"token"`
		// Warning is set when the account exists but the initial prekey
		// upload was refused.
		Warning string `json:"-"`
	}
)

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

// IsCode reports whether err is an APIError with code c.
func IsCode(err error, c apperr.Code) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Code == c
}

func NewAPI(server string) (*API, error) {
	u, err := url.Parse(server)
	if err != nil {
		return nil, errors.Wrap(err, "parse server url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return &API{base: u, http: &http.Client{Timeout: 15 * time.Second}}, nil
}

func (a *API) SetToken(token string) {
	a.token = token
}

func (a *API) do(ctx context.Context, method, path string, query url.Values, in, out any) (*payload, error) {
	u := a.base.JoinPath(path)
	u.RawQuery = query.Encode()

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, errors.Wrap(err, "encode request")
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()
	defer io.Copy(io.Discard, resp.Body)

	var p payload
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, errors.Wrapf(err, "decode %s %s", method, path)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &APIError{Status: resp.StatusCode, Code: p.Code, Message: p.Message}
	}
	if out != nil && len(p.Data) > 0 {
		if err := json.Unmarshal(p.Data, out); err != nil {
			return nil, errors.Wrapf(err, "decode %s %s", method, path)
		}
	}
	return &p, nil
}

func (a *API) Register(ctx context.Context, reg account.Registration) (*RegisterResult, error) {
	var res RegisterResult
	p, err := a.do(ctx, http.MethodPost, "/api/register", nil, reg, &res)
	if err != nil {
		return nil, err
	}
	res.Warning = p.Message
	a.token = res.Token
	return &res, nil
}

func (a *API) RefreshToken(ctx context.Context) (string, error) {
	var res struct {
		Token string `json:"token"`
	}
	if _, err := a.do(ctx, http.MethodPost, "/api/token/refresh", nil, nil, &res); err != nil {
		return "", err
	}
	a.token = res.Token
	return res.Token, nil
}

func (a *API) Profile(ctx context.Context, handle string) (*model.Profile, error) {
	var p model.Profile
	_, err := a.do(ctx, http.MethodGet, "/api/users/"+url.PathEscape(handle), nil, nil, &p)
	return &p, err
}

func (a *API) RotateSignedPrekey(ctx context.Context, spk model.SignedPrekey) error {
	_, err := a.do(ctx, http.MethodPut, "/api/keys/signed", nil, spk, nil)
	return err
}

func (a *API) Bundle(ctx context.Context, handle string) (*model.PrekeyBundle, error) {
	var b model.PrekeyBundle
	_, err := a.do(ctx, http.MethodGet, "/api/keys/"+url.PathEscape(handle), nil, nil, &b)
	return &b, err
}

func (a *API) UploadPrekeys(ctx context.Context, keys []model.PrekeyUpload) (model.ReplenishResult, error) {
	var res model.ReplenishResult
	_, err := a.do(ctx, http.MethodPost, "/api/prekeys", nil, map[string]any{"prekeys": keys}, &res)
	return res, err
}

func (a *API) CountPrekeys(ctx context.Context) (int, error) {
	var res struct {
		Unused int `json:"unused"`
	}
	_, err := a.do(ctx, http.MethodGet, "/api/prekeys/count", nil, nil, &res)
	return res.Unused, err
}

func (a *API) RequestContact(ctx context.Context, handle string) error {
	_, err := a.do(ctx, http.MethodPost, "/api/contacts", nil, map[string]string{"handle": handle}, nil)
	return err
}

func (a *API) Contacts(ctx context.Context) ([]model.ContactView, error) {
	var res []model.ContactView
	_, err := a.do(ctx, http.MethodGet, "/api/contacts", nil, nil, &res)
	return res, err
}

func (a *API) ContactRequests(ctx context.Context) ([]model.ContactView, error) {
	var res []model.ContactView
	_, err := a.do(ctx, http.MethodGet, "/api/contact-requests", nil, nil, &res)
	return res, err
}

func (a *API) RespondContact(ctx context.Context, id int64, accept bool) error {
	action := "reject"
	if accept {
		action = "accept"
	}
	path := "/api/contact-requests/" + strconv.FormatInt(id, 10)
	_, err := a.do(ctx, http.MethodPut, path, nil, map[string]string{"action": action}, nil)
	return err
}

func (a *API) RemoveContact(ctx context.Context, handle string) error {
	_, err := a.do(ctx, http.MethodDelete, "/api/contacts/"+url.PathEscape(handle), nil, nil, nil)
	return err
}

func (a *API) SendEphemeral(ctx context.Context, to string, key []byte, prekeyID *uint32) error {
	req := map[string]any{"to": to, "ephemeral_key": key, "prekey_id": prekeyID}
	_, err := a.do(ctx, http.MethodPost, "/api/x3dh", nil, req, nil)
	return err
}

func (a *API) RetrieveEphemeral(ctx context.Context, from string) (*model.EphemeralKey, error) {
	var k model.EphemeralKey
	_, err := a.do(ctx, http.MethodGet, "/api/x3dh/"+url.PathEscape(from), nil, nil, &k)
	return &k, err
}

func (a *API) RelayRatchetKey(ctx context.Context, to string, key []byte) (bool, error) {
	var res struct {
		Live bool `json:"live"`
	}
	_, err := a.do(ctx, http.MethodPost, "/api/ratchet", nil, map[string]any{"to": to, "ratchet_key": key}, &res)
	return res.Live, err
}

func (a *API) Send(ctx context.Context, to string, kind model.Kind, ciphertext []byte) (model.SendResult, error) {
	var res model.SendResult
	req := map[string]any{"kind": kind, "ciphertext": ciphertext}
	_, err := a.do(ctx, http.MethodPost, "/api/messages/"+url.PathEscape(to), nil, req, &res)
	return res, err
}

func (a *API) Drain(ctx context.Context, from string) ([]model.Envelope, error) {
	var res []model.Envelope
	_, err := a.do(ctx, http.MethodPost, "/api/messages/"+url.PathEscape(from)+"/drain", nil, nil, &res)
	return res, err
}

func (a *API) AcknowledgeDelivered(ctx context.Context, id int64) error {
	_, err := a.do(ctx, http.MethodPost, "/api/messages/ack/"+strconv.FormatInt(id, 10), nil, nil, nil)
	return err
}

func (a *API) AcknowledgeRead(ctx context.Context, from string) (int, error) {
	var res struct {
		Count int `json:"count"`
	}
	_, err := a.do(ctx, http.MethodPost, "/api/messages/"+url.PathEscape(from)+"/read", nil, nil, &res)
	return res.Count, err
}

// Dial opens the event stream. The caller owns the returned connection.
func (a *API) Dial(ctx context.Context) (*websocket.Conn, error) {
	u := *a.base
	u.Scheme = "ws"
	if a.base.Scheme == "https" {
		u.Scheme = "wss"
	}
	u.Path = "/ws"

	header := http.Header{}
	header.Set("Authorization", "Bearer "+a.token)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, errors.Wrap(err, "dial websocket")
	}
	return conn, nil
}

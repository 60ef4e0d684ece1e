package client

import (
	"encoding/json"

	"e2e_relay/internal/cryptographic/dh"
	"e2e_relay/internal/model"
	"e2e_relay/internal/protocol/doubleratchet"
	"e2e_relay/internal/protocol/x3dh"

	"github.com/pkg/errors"
)

var (
	ErrNoSession         = errors.New("no session with peer")
	ErrBadSignedPrekey   = errors.New("signed prekey signature does not verify")
	ErrUnknownPrekey     = errors.New("one-time prekey already used or unknown")
	ErrMalformedIdentity = errors.New("malformed identity key")
)

// Sealed is the ciphertext blob stored in an envelope. Only the two clients
// ever parse it.
type Sealed struct {
	Header model.Header `json:"h"`
	Body   []byte       `json:"c"`
}

// Sessions runs X3DH and the double ratchet on top of a Keyring.
type Sessions struct {
	keys *Keyring
}

func NewSessions(keys *Keyring) *Sessions {
	return &Sessions{keys: keys}
}

func identityDH(identityKey []byte) ([]byte, error) {
	if len(identityKey) < 32 {
		return nil, ErrMalformedIdentity
	}
	return identityKey[:32], nil
}

// Initiate runs the sender half of X3DH against bundle and installs a fresh
// session with peer. The returned ephemeral key and prekey id are published
// so the peer can derive the same secret.
func (s *Sessions) Initiate(peer string, b *model.PrekeyBundle) ([32]byte, *uint32, error) {
	if !VerifySignedPrekey(b.IdentityKey, b.SignedPrekey) {
		return [32]byte{}, nil, ErrBadSignedPrekey
	}
	ikPub, err := identityDH(b.IdentityKey)
	if err != nil {
		return [32]byte{}, nil, err
	}

	ekPriv, ekPub, err := dh.NewX25519KeyPair()
	if err != nil {
		return [32]byte{}, nil, err
	}

	bundle := &model.SenderKeyBundle{
		IKPrivA: s.keys.IdentityPriv[:],
		EKPrivA: ekPriv[:],
		IKPubB:  ikPub,
		SPKPubB: b.SignedPrekey.PublicKey,
	}
	var prekeyID *uint32
	if b.OneTimePrekey != nil {
		bundle.OTKPubB = b.OneTimePrekey.PublicKey
		id := b.OneTimePrekey.KeyID
		prekeyID = &id
	}

	sender := &x3dh.X3DHSender{}
	sk, err := sender.GenerateShareKey(bundle)
	if err != nil {
		return [32]byte{}, nil, err
	}
	spk, err := dh.Key32(b.SignedPrekey.PublicKey)
	if err != nil {
		return [32]byte{}, nil, err
	}

	s.keys.SetSession(peer, doubleratchet.NewInitiator(sk, spk))
	return ekPub, prekeyID, nil
}

// Accept runs the receiver half of X3DH for an initiation by peer, replacing
// any earlier session with them.
func (s *Sessions) Accept(peer string, identityKey []byte, ek *model.EphemeralKey) error {
	ikPub, err := identityDH(identityKey)
	if err != nil {
		return err
	}

	bundle := &model.ReceiverKeyBundle{
		IKPubA:   ikPub,
		EKPubA:   ek.PublicKey,
		IKPrivB:  s.keys.IdentityPriv[:],
		SPKPrivB: s.keys.SignedPrekeyPriv[:],
	}
	if ek.PrekeyID != nil {
		otk, ok := s.keys.TakePrekey(*ek.PrekeyID)
		if !ok {
			return ErrUnknownPrekey
		}
		bundle.OTKPrivB = otk[:]
	}

	receiver := &x3dh.X3DHReceiver{}
	sk, err := receiver.GenerateShareKey(bundle)
	if err != nil {
		return err
	}

	s.keys.SetSession(peer, doubleratchet.NewResponder(sk, s.keys.SignedPrekeyPriv))
	return nil
}

func (s *Sessions) Has(peer string) bool {
	return s.keys.Session(peer) != nil
}

// Seal encrypts plaintext for peer. The first message of an initiated
// session is a handshake, which tells the peer to run Accept first.
func (s *Sessions) Seal(peer string, plaintext []byte) (model.Kind, []byte, error) {
	st := s.keys.Session(peer)
	if st == nil {
		return "", nil, ErrNoSession
	}

	kind := model.KindText
	if st.SendingChainKey == nil && st.ReceivingChainKey == nil {
		kind = model.KindHandshake
	}

	hdr, ct, err := st.Send(plaintext)
	if err != nil {
		return "", nil, err
	}
	blob, err := json.Marshal(Sealed{Header: *hdr, Body: ct})
	if err != nil {
		return "", nil, errors.Wrap(err, "encode sealed message")
	}
	return kind, blob, nil
}

func (s *Sessions) Open(peer string, blob []byte) ([]byte, error) {
	st := s.keys.Session(peer)
	if st == nil {
		return nil, ErrNoSession
	}

	var m Sealed
	if err := json.Unmarshal(blob, &m); err != nil {
		return nil, errors.Wrap(err, "decode sealed message")
	}
	return st.Receive(m.Header, m.Body)
}

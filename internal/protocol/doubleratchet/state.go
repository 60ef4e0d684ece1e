package doubleratchet

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"e2e_relay/internal/cryptographic/dh"
	"e2e_relay/internal/cryptographic/encryption"
	"e2e_relay/internal/model"

	"github.com/pkg/errors"
)

// MaxSkip bounds the stored keys of messages that have not arrived yet.
const MaxSkip = 1000

var (
	ErrNoRemoteKey   = errors.New("remote ratchet key not set")
	ErrNoChain       = errors.New("no receiving chain")
	ErrSkipExhausted = errors.New("too many skipped messages")
)

func headerToAAD(h model.Header) []byte {
	b := make([]byte, 32+4+4)
	copy(b[:32], h.Pub[:])
	binary.BigEndian.PutUint32(b[32:36], h.MsgNum)
	binary.BigEndian.PutUint32(b[36:40], h.Prev)
	return b
}

func skippedKey(pub [32]byte, msgNum uint32) string {
	return hex.EncodeToString(pub[:]) + ":" + fmt.Sprint(msgNum)
}

// RatchetState is one side of a session. It is plain data so the client can
// persist it as JSON between runs.
type RatchetState struct {
	RootKey []byte

	DHsPriv [32]byte
	DHsPub  [32]byte
	DHr     [32]byte

	SendingChainKey   []byte
	ReceivingChainKey []byte
	Ns                uint32
	Nr                uint32
	PN                uint32

	Skipped map[string][]byte
}

// NewInitiator starts the session of the party that ran X3DH as sender.
// theirPub is the responder's signed prekey.
func NewInitiator(sk []byte, theirPub [32]byte) *RatchetState {
	return &RatchetState{RootKey: sk, DHr: theirPub, Skipped: make(map[string][]byte)}
}

// NewResponder starts the session of the X3DH receiver, whose first ratchet
// key pair is its signed prekey.
func NewResponder(sk []byte, ourPriv [32]byte) *RatchetState {
	return &RatchetState{
		RootKey: sk,
		DHsPriv: ourPriv,
		DHsPub:  dh.PublicKey(ourPriv),
		Skipped: make(map[string][]byte),
	}
}

// CanSend reports whether the remote ratchet key is known. A responder learns
// it from the initiator's first message.
func (s *RatchetState) CanSend() bool {
	return s.DHr != [32]byte{}
}

func (s *RatchetState) ratchetSending() error {
	if !s.CanSend() {
		return ErrNoRemoteKey
	}
	priv, pub, err := dh.NewX25519KeyPair()
	if err != nil {
		return err
	}
	shared, err := dh.X25519SharedSecret(priv, s.DHr)
	if err != nil {
		return err
	}
	if s.RootKey, s.SendingChainKey, err = KDFRootKey(s.RootKey, shared); err != nil {
		return err
	}
	s.DHsPriv, s.DHsPub = priv, pub
	s.Ns = 0
	return nil
}

func (s *RatchetState) skipUntil(until uint32) error {
	if until <= s.Nr {
		return nil
	}
	if s.ReceivingChainKey == nil {
		return ErrNoChain
	}
	if n := int(until - s.Nr); n > MaxSkip || len(s.Skipped)+n > MaxSkip {
		return ErrSkipExhausted
	}

	for s.Nr < until {
		var mk []byte
		var err error
		if s.ReceivingChainKey, mk, err = KDFChainKey(s.ReceivingChainKey); err != nil {
			return err
		}
		s.Skipped[skippedKey(s.DHr, s.Nr)] = mk
		s.Nr++
	}
	return nil
}

// Send encrypts plaintext on the sending chain, starting a new chain first if
// the last step was a receive ratchet.
func (s *RatchetState) Send(plaintext []byte) (*model.Header, []byte, error) {
	if s.SendingChainKey == nil {
		if err := s.ratchetSending(); err != nil {
			return nil, nil, err
		}
	}

	var (
		mk  []byte
		err error
	)
	if s.SendingChainKey, mk, err = KDFChainKey(s.SendingChainKey); err != nil {
		return nil, nil, err
	}
	hdr := &model.Header{Pub: s.DHsPub, MsgNum: s.Ns, Prev: s.PN}
	s.Ns++

	ct, err := encryption.AEADEncrypt(mk, plaintext, headerToAAD(*hdr))
	if err != nil {
		return nil, nil, err
	}
	return hdr, ct, nil
}

// Receive decrypts one message. On failure the state is left as it was.
func (s *RatchetState) Receive(h model.Header, ciphertext []byte) ([]byte, error) {
	key := skippedKey(h.Pub, h.MsgNum)
	if mk, ok := s.Skipped[key]; ok {
		plain, err := encryption.AEADDecrypt(mk, ciphertext, headerToAAD(h))
		if err != nil {
			return nil, err
		}
		delete(s.Skipped, key)
		return plain, nil
	}

	next := s.clone()
	plain, err := next.receive(h, ciphertext)
	if err != nil {
		return nil, err
	}
	*s = *next
	return plain, nil
}

func (s *RatchetState) receive(h model.Header, ciphertext []byte) ([]byte, error) {
	if h.Pub != s.DHr {
		if s.ReceivingChainKey != nil {
			if err := s.skipUntil(h.Prev); err != nil {
				return nil, err
			}
		}

		shared, err := dh.X25519SharedSecret(s.DHsPriv, h.Pub)
		if err != nil {
			return nil, err
		}
		if s.RootKey, s.ReceivingChainKey, err = KDFRootKey(s.RootKey, shared); err != nil {
			return nil, err
		}
		s.DHr = h.Pub
		s.PN, s.Ns, s.Nr = s.Ns, 0, 0
		s.SendingChainKey = nil
	}

	if err := s.skipUntil(h.MsgNum); err != nil {
		return nil, err
	}
	if s.ReceivingChainKey == nil {
		return nil, ErrNoChain
	}

	var (
		mk  []byte
		err error
	)
	if s.ReceivingChainKey, mk, err = KDFChainKey(s.ReceivingChainKey); err != nil {
		return nil, err
	}
	s.Nr++

	return encryption.AEADDecrypt(mk, ciphertext, headerToAAD(h))
}

func (s *RatchetState) clone() *RatchetState {
	c := *s
	c.Skipped = make(map[string][]byte, len(s.Skipped))
	for k, v := range s.Skipped {
		c.Skipped[k] = v
	}
	return &c
}

package client

import (
	"crypto/ed25519"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"e2e_relay/internal/cryptographic/dh"
	"e2e_relay/internal/cryptographic/signature"
	"e2e_relay/internal/model"
	"e2e_relay/internal/protocol/doubleratchet"

	"github.com/pkg/errors"
)

// maxSeen bounds the per-peer list of envelope ids kept for dedupe.
const maxSeen = 512

type (
	// Keyring is everything the client keeps on disk for one handle: the
	// token, private keys and the ratchet state of every conversation.
	Keyring struct {
		Handle string `json:"handle"`
		Token  string `json:"token"`

		IdentityPriv [32]byte           `json:"identity_priv"`
		SigningPriv  ed25519.PrivateKey `json:"signing_priv"`

		SignedPrekeyID   uint32   `json:"signed_prekey_id"`
		SignedPrekeyPriv [32]byte `json:"signed_prekey_priv"`

		NextPrekeyID uint32              `json:"next_prekey_id"`
		Prekeys      map[uint32][32]byte `json:"prekeys"`

		Sessions map[string]*doubleratchet.RatchetState `json:"sessions"`
		Seen     map[string][]int64                     `json:"seen"`

		path string
		mu   sync.Mutex
	}
)

func keyringPath(home, handle string) string {
	return filepath.Join(home, model.NormalizeHandle(handle)+".json")
}

// NewKeyring generates identity and signed prekey material for handle.
func NewKeyring(home, handle string) (*Keyring, error) {
	idPriv, _, err := dh.NewX25519KeyPair()
	if err != nil {
		return nil, err
	}
	_, signPriv, err := signature.NewEd25519Keypair()
	if err != nil {
		return nil, err
	}
	spkPriv, _, err := dh.NewX25519KeyPair()
	if err != nil {
		return nil, err
	}

	return &Keyring{
		Handle:           model.NormalizeHandle(handle),
		IdentityPriv:     idPriv,
		SigningPriv:      signPriv,
		SignedPrekeyID:   1,
		SignedPrekeyPriv: spkPriv,
		NextPrekeyID:     1,
		Prekeys:          make(map[uint32][32]byte),
		Sessions:         make(map[string]*doubleratchet.RatchetState),
		Seen:             make(map[string][]int64),
		path:             keyringPath(home, handle),
	}, nil
}

// LoadKeyring reads the keyring of handle. It returns os.ErrNotExist when the
// handle was never registered from this home.
func LoadKeyring(home, handle string) (*Keyring, error) {
	path := keyringPath(home, handle)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	k := &Keyring{path: path}
	if err := json.Unmarshal(data, k); err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	if k.Prekeys == nil {
		k.Prekeys = make(map[uint32][32]byte)
	}
	if k.Sessions == nil {
		k.Sessions = make(map[string]*doubleratchet.RatchetState)
	}
	if k.Seen == nil {
		k.Seen = make(map[string][]int64)
	}
	return k, nil
}

// Save writes the keyring atomically with owner-only permissions.
func (k *Keyring) Save() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	data, err := json.MarshalIndent(k, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode keyring")
	}
	if err := os.MkdirAll(filepath.Dir(k.path), 0o700); err != nil {
		return errors.Wrap(err, "create keyring dir")
	}

	tmp := k.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.Wrap(err, "write keyring")
	}
	return errors.Wrap(os.Rename(tmp, k.path), "replace keyring")
}

// IdentityKey is the published identity: the X25519 public key followed by
// the Ed25519 key that signs prekeys.
func (k *Keyring) IdentityKey() []byte {
	pub := dh.PublicKey(k.IdentityPriv)
	return append(pub[:], k.SigningPriv.Public().(ed25519.PublicKey)...)
}

func (k *Keyring) SignedPrekey() model.SignedPrekey {
	pub := dh.PublicKey(k.SignedPrekeyPriv)
	return model.SignedPrekey{
		KeyID:     k.SignedPrekeyID,
		PublicKey: pub[:],
		Signature: signature.ED25519Sign(k.SigningPriv, signedPrekeyMessage(k.SignedPrekeyID, pub[:])),
	}
}

// GeneratePrekeys creates n one-time prekeys and returns their public halves.
func (k *Keyring) GeneratePrekeys(n int) ([]model.PrekeyUpload, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	res := make([]model.PrekeyUpload, 0, n)
	for i := 0; i < n; i++ {
		priv, pub, err := dh.NewX25519KeyPair()
		if err != nil {
			return nil, err
		}
		id := k.NextPrekeyID
		k.NextPrekeyID++
		k.Prekeys[id] = priv
		res = append(res, model.PrekeyUpload{KeyID: id, PublicKey: pub[:]})
	}
	return res, nil
}

// TakePrekey removes and returns the private half of one-time prekey id.
func (k *Keyring) TakePrekey(id uint32) ([32]byte, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	priv, ok := k.Prekeys[id]
	delete(k.Prekeys, id)
	return priv, ok
}

func (k *Keyring) Session(peer string) *doubleratchet.RatchetState {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.Sessions[peer]
}

func (k *Keyring) SetSession(peer string, s *doubleratchet.RatchetState) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.Sessions[peer] = s
}

// MarkSeen records envelope id from peer and reports whether it was new.
func (k *Keyring) MarkSeen(peer string, id int64) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	for _, seen := range k.Seen[peer] {
		if seen == id {
			return false
		}
	}
	ids := append(k.Seen[peer], id)
	if len(ids) > maxSeen {
		ids = ids[len(ids)-maxSeen:]
	}
	k.Seen[peer] = ids
	return true
}

func signedPrekeyMessage(id uint32, pub []byte) []byte {
	msg := make([]byte, 4, 4+len(pub))
	binary.BigEndian.PutUint32(msg, id)
	return append(msg, pub...)
}

// VerifySignedPrekey checks spk against a published identity key.
func VerifySignedPrekey(identityKey []byte, spk model.SignedPrekey) bool {
	if len(identityKey) != 32+ed25519.PublicKeySize {
		return false
	}
	return signature.ED25519Verify(identityKey[32:], signedPrekeyMessage(spk.KeyID, spk.PublicKey), spk.Signature)
}

func (k *Keyring) DropSession(peer string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.Sessions, peer)
}

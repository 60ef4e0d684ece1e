package x3dh

import (
	"bytes"

	"e2e_relay/internal/cryptographic/dh"
	"e2e_relay/internal/cryptographic/kdf"
	"e2e_relay/internal/model"
)

var info = []byte("e2e_relay X3DH")

type (
	X3DHBase struct{}

	X3DHSender struct {
		X3DHBase
	}

	X3DHReceiver struct {
		X3DHBase
	}
)

// GenerateShareKey derives the 32-byte session key from the DH outputs. dh4
// is nil when the handshake ran without a one-time prekey.
func (X3DHBase) GenerateShareKey(dh1, dh2, dh3, dh4 []byte) ([]byte, error) {
	// 32 0xFF bytes prefix the input key material for X25519.
	ikm := bytes.Repeat([]byte{0xFF}, 32)
	ikm = append(ikm, dh1...)
	ikm = append(ikm, dh2...)
	ikm = append(ikm, dh3...)
	ikm = append(ikm, dh4...)

	sk := make([]byte, 32)
	if err := kdf.HKDF(ikm, make([]byte, 32), info, sk); err != nil {
		return nil, err
	}
	return sk, nil
}

func (s *X3DHSender) GenerateShareKey(skb *model.SenderKeyBundle) ([]byte, error) {
	ikPriv, err := dh.Key32(skb.IKPrivA)
	if err != nil {
		return nil, err
	}
	ekPriv, err := dh.Key32(skb.EKPrivA)
	if err != nil {
		return nil, err
	}
	ikPub, err := dh.Key32(skb.IKPubB)
	if err != nil {
		return nil, err
	}
	spkPub, err := dh.Key32(skb.SPKPubB)
	if err != nil {
		return nil, err
	}

	dh1, err := dh.X25519SharedSecret(ikPriv, spkPub)
	if err != nil {
		return nil, err
	}
	dh2, err := dh.X25519SharedSecret(ekPriv, ikPub)
	if err != nil {
		return nil, err
	}
	dh3, err := dh.X25519SharedSecret(ekPriv, spkPub)
	if err != nil {
		return nil, err
	}

	var dh4 []byte
	if skb.OTKPubB != nil {
		otkPub, err := dh.Key32(skb.OTKPubB)
		if err != nil {
			return nil, err
		}
		if dh4, err = dh.X25519SharedSecret(ekPriv, otkPub); err != nil {
			return nil, err
		}
	}

	return s.X3DHBase.GenerateShareKey(dh1, dh2, dh3, dh4)
}

func (s *X3DHReceiver) GenerateShareKey(rkb *model.ReceiverKeyBundle) ([]byte, error) {
	ikPub, err := dh.Key32(rkb.IKPubA)
	if err != nil {
		return nil, err
	}
	ekPub, err := dh.Key32(rkb.EKPubA)
	if err != nil {
		return nil, err
	}
	ikPriv, err := dh.Key32(rkb.IKPrivB)
	if err != nil {
		return nil, err
	}
	spkPriv, err := dh.Key32(rkb.SPKPrivB)
	if err != nil {
		return nil, err
	}

	dh1, err := dh.X25519SharedSecret(spkPriv, ikPub)
	if err != nil {
		return nil, err
	}
	dh2, err := dh.X25519SharedSecret(ikPriv, ekPub)
	if err != nil {
		return nil, err
	}
	dh3, err := dh.X25519SharedSecret(spkPriv, ekPub)
	if err != nil {
		return nil, err
	}

	var dh4 []byte
	if rkb.OTKPrivB != nil {
		otkPriv, err := dh.Key32(rkb.OTKPrivB)
		if err != nil {
			return nil, err
		}
		if dh4, err = dh.X25519SharedSecret(otkPriv, ekPub); err != nil {
			return nil, err
		}
	}

	return s.X3DHBase.GenerateShareKey(dh1, dh2, dh3, dh4)
}

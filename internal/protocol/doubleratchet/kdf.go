package doubleratchet

import (
	"e2e_relay/internal/cryptographic/kdf"
)

var (
	rootInfo  = []byte("e2e_relay ratchet root")
	chainInfo = []byte("e2e_relay ratchet chain")
)

// KDFRootKey mixes a DH output into the root key and returns the next root
// key and a fresh chain key.
func KDFRootKey(rootKey, dhOut []byte) (newRootKey, newChainKey []byte, err error) {
	buf := make([]byte, 64)
	if err := kdf.HKDF(dhOut, rootKey, rootInfo, buf); err != nil {
		return nil, nil, err
	}
	return buf[:32], buf[32:], nil
}

// KDFChainKey steps a chain and returns the next chain key and the message
// key for the current index.
func KDFChainKey(chainKey []byte) (nextChainKey, msgKey []byte, err error) {
	buf := make([]byte, 64)
	if err := kdf.HKDF(chainKey, nil, chainInfo, buf); err != nil {
		return nil, nil, err
	}
	return buf[:32], buf[32:], nil
}

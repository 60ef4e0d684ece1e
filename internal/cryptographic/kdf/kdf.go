package kdf

import (
	"crypto/sha256"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/hkdf"
)

// HKDF fills out with HKDF-SHA256 output.
func HKDF(secret, salt, info, out []byte) error {
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, info), out); err != nil {
		return errors.Wrap(err, "hkdf")
	}
	return nil
}

// Package secrets encrypts tenant carrier credentials at rest.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/cockroachdb/errors"
)

const (
	keySize   = 32
	nonceSize = 16
	tagSize   = 16
)

// ErrMalformed is returned for ciphertexts that are not in iv:tag:ciphertext form.
var ErrMalformed = errors.New("malformed ciphertext")

// Box seals and opens strings with AES-256-GCM.
// Sealed values are packed as hex(iv):hex(tag):hex(ciphertext).
type Box struct {
	aead cipher.AEAD
}

// NewBox creates a Box from a 64 character hex key.
func NewBox(hexKey string) (*Box, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, errors.Wrap(err, "encryption key is not valid hex")
	}
	if len(key) != keySize {
		return nil, errors.Newf("encryption key must be %d bytes, got %d", keySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "creating cipher")
	}
	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, errors.Wrap(err, "creating gcm")
	}
	return &Box{aead: aead}, nil
}

// Encrypt seals plaintext with a fresh random IV.
func (b *Box) Encrypt(plaintext string) (string, error) {
	iv := make([]byte, nonceSize)
	if _, err := rand.Read(iv); err != nil {
		return "", errors.Wrap(err, "generating iv")
	}

	sealed := b.aead.Seal(nil, iv, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ct), nil
}

// Decrypt opens a value produced by Encrypt.
func (b *Box) Decrypt(packed string) (string, error) {
	parts := strings.Split(packed, ":")
	if len(parts) != 3 {
		return "", ErrMalformed
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != nonceSize {
		return "", errors.Wrap(ErrMalformed, "iv")
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != tagSize {
		return "", errors.Wrap(ErrMalformed, "tag")
	}
	ct, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", errors.Wrap(ErrMalformed, "ciphertext")
	}

	plaintext, err := b.aead.Open(nil, iv, append(ct, tag...), nil)
	if err != nil {
		return "", errors.Wrap(err, "decrypting")
	}
	return string(plaintext), nil
}

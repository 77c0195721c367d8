package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"io"

	"github.com/pkg/errors"
)

// Crypter encrypts short secrets at rest with AES-GCM. The key is derived
// from the configured system secret via HashByteSecret so any secret length
// yields a valid 32 byte AEAD key.
type Crypter struct {
	aead cipher.AEAD
}

func NewCrypter(systemSecret string) (*Crypter, error) {
	block, err := aes.NewCipher(HashByteSecret([]byte(systemSecret)))
	if err != nil {
		return nil, errors.Wrap(err, "could not initialise cipher")
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "could not initialise aead")
	}

	return &Crypter{aead: aead}, nil
}

// Encrypt seals the plaintext and returns base64(nonce || ciphertext).
func (c *Crypter) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.Wrap(err, "could not generate nonce")
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *Crypter) Decrypt(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", errors.Wrap(err, "ciphertext is not valid base64")
	}

	nonceSize := c.aead.NonceSize()
	if len(sealed) < nonceSize {
		return "", errors.New("ciphertext shorter than nonce")
	}

	plaintext, err := c.aead.Open(nil, sealed[:nonceSize], sealed[nonceSize:], nil)
	if err != nil {
		return "", errors.Wrap(err, "could not decrypt ciphertext")
	}
	return string(plaintext), nil
}

package business

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/wardenhq/service-identity/utils"
)

const (
	recoveryCodeCount   = 8
	recoveryCodeLength  = 8
	recoveryCodeCharset = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// CredentialStore owns password hashing and the recovery code material.
// Recovery codes never touch the database in the clear.
type CredentialStore struct {
	hasher  *utils.BCrypt
	crypter *utils.Crypter
}

func NewCredentialStore(crypter *utils.Crypter) *CredentialStore {
	return &CredentialStore{
		hasher:  utils.NewBCrypt(),
		crypter: crypter,
	}
}

func (s *CredentialStore) HashPassword(ctx context.Context, password string) ([]byte, error) {
	hash, err := s.hasher.Hash(ctx, []byte(password))
	if err != nil {
		return nil, errors.Wrap(err, "could not hash password")
	}
	return hash, nil
}

// VerifyPassword is nil safe: accounts provisioned from an identity provider
// have no hash and always fail password verification.
func (s *CredentialStore) VerifyPassword(ctx context.Context, hash []byte, password string) bool {
	if len(hash) == 0 {
		return false
	}
	return s.hasher.Compare(ctx, hash, []byte(password)) == nil
}

func (s *CredentialStore) GenerateRecoveryCodes() []string {
	codes := make([]string, recoveryCodeCount)
	for i := range codes {
		codes[i] = utils.GenerateRandomStringFromCharset(recoveryCodeLength, recoveryCodeCharset)
	}
	return codes
}

func (s *CredentialStore) EncryptRecoveryCodes(codes []string) (string, error) {
	payload, err := json.Marshal(codes)
	if err != nil {
		return "", errors.Wrap(err, "could not marshal recovery codes")
	}
	return s.crypter.Encrypt(string(payload))
}

func (s *CredentialStore) DecryptRecoveryCodes(encrypted string) ([]string, error) {
	payload, err := s.crypter.Decrypt(encrypted)
	if err != nil {
		return nil, err
	}
	var codes []string
	if err = json.Unmarshal([]byte(payload), &codes); err != nil {
		return nil, errors.Wrap(err, "could not unmarshal recovery codes")
	}
	return codes, nil
}

func (s *CredentialStore) EncryptSecret(secret string) (string, error) {
	return s.crypter.Encrypt(secret)
}

func (s *CredentialStore) DecryptSecret(encrypted string) (string, error) {
	return s.crypter.Decrypt(encrypted)
}

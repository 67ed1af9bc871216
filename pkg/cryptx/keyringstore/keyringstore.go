// Package keyringstore persists the master encryption key in the OS
// credential store (Keychain, Credential Manager, Secret Service).
package keyringstore

import (
	"encoding/base64"
	"errors"

	"github.com/abraxas-365/personal-ai-core/pkg/cryptx"
	"github.com/zalando/go-keyring"
)

// Store implements cryptx.KeyStore against the OS keyring.
type Store struct {
	Service string
	Account string
}

// New creates a keyring-backed key store under the given service/account
// names.
func New(service, account string) *Store {
	if service == "" {
		service = "personal_ai_agent_go"
	}
	if account == "" {
		account = "encryption_master_key"
	}
	return &Store{Service: service, Account: account}
}

// Load retrieves the base64-encoded master key from the OS keyring.
func (s *Store) Load() ([]byte, error) {
	encoded, err := keyring.Get(s.Service, s.Account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, cryptx.ErrKeyNotFound
		}
		return nil, err
	}
	return base64.StdEncoding.DecodeString(encoded)
}

// Save persists the master key to the OS keyring, base64-encoded.
func (s *Store) Save(key []byte) error {
	return keyring.Set(s.Service, s.Account, base64.StdEncoding.EncodeToString(key))
}

package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

const keyringService = "greenbyte"

// OpenKeyring opens the OS keyring, falling back to an encrypted file
// backend under fileDir when no native backend is available.
func OpenKeyring(fileDir, filePassword string) (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: keyringService,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  fileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt(filePassword),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// KeyringStore keeps each account's record as a JSON item in a keyring.
type KeyringStore struct {
	Ring keyring.Keyring
}

func NewKeyringStore(ring keyring.Keyring) *KeyringStore {
	return &KeyringStore{Ring: ring}
}

func itemKey(account string) string { return "oauth/" + account }

func (s *KeyringStore) Load(ctx context.Context, account string) (Credentials, error) {
	if err := ctx.Err(); err != nil {
		return Credentials{}, err
	}
	item, err := s.Ring.Get(itemKey(account))
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return Credentials{}, ErrNotAuthenticated
		}
		return Credentials{}, fmt.Errorf("getting credential %q: %w", account, err)
	}
	var creds Credentials
	if err := json.Unmarshal(item.Data, &creds); err != nil {
		return Credentials{}, fmt.Errorf("decode credential %q: %w", account, err)
	}
	return creds, nil
}

func (s *KeyringStore) Save(ctx context.Context, account string, creds Credentials) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("encode credential %q: %w", account, err)
	}
	err = s.Ring.Set(keyring.Item{
		Key:         itemKey(account),
		Data:        data,
		Label:       "greenbyte " + account,
		Description: "Gmail OAuth credentials",
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", account, err)
	}
	return nil
}

var _ Store = (*KeyringStore)(nil)

package cookies

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "pagegrab"
	keyringPrefix  = "cookies_"
)

// KeyringStore keeps cookies in the system keychain, one entry per site host
type KeyringStore struct {
	key string
}

// NewKeyringStore creates a keychain store for host
func NewKeyringStore(host string) *KeyringStore {
	return &KeyringStore{key: keyringPrefix + host}
}

// Load reads the keychain entry. A missing entry is an empty set.
func (k *KeyringStore) Load() (Set, error) {
	data, err := keyring.Get(keyringService, k.key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return Set{}, nil
		}
		return nil, ioError("load", fmt.Errorf("failed to retrieve from keyring: %w", err))
	}

	var set Set
	if err := json.Unmarshal([]byte(data), &set); err != nil {
		return nil, ioError("load", fmt.Errorf("failed to unmarshal cookies: %w", err))
	}
	if set == nil {
		set = Set{}
	}
	return set, nil
}

// Save replaces the keychain entry
func (k *KeyringStore) Save(set Set) error {
	if set == nil {
		set = Set{}
	}
	data, err := json.Marshal(set)
	if err != nil {
		return ioError("save", err)
	}
	if err := keyring.Set(keyringService, k.key, string(data)); err != nil {
		return ioError("save", fmt.Errorf("failed to store in keyring: %w", err))
	}
	return nil
}

// Clear deletes the keychain entry
func (k *KeyringStore) Clear() error {
	err := keyring.Delete(keyringService, k.key)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return ioError("clear", fmt.Errorf("failed to delete from keyring: %w", err))
	}
	return nil
}

// Describe names the keychain entry
func (k *KeyringStore) Describe() string {
	return "keyring " + keyringService + "/" + k.key
}

package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
)

// ErrNoToken is returned when no admin token is stored for a node.
var ErrNoToken = errors.New("dungeon: no admin token stored")

// TokenStore keeps admin tokens in the OS keychain, keyed by node URL,
// with an optional file fallback for hosts without a keyring.
type TokenStore struct {
	service      string
	fallbackPath string
	mu           sync.Mutex
}

// NewTokenStore creates a store. fallbackPath may be empty.
func NewTokenStore(serviceName, fallbackPath string) *TokenStore {
	if strings.TrimSpace(serviceName) == "" {
		serviceName = "dungeonctl"
	}
	return &TokenStore{service: serviceName, fallbackPath: fallbackPath}
}

// DefaultFallbackPath is ~/.config/dungeonctl/tokens.json.
func DefaultFallbackPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "dungeonctl", "tokens.json")
}

func nodeKey(node string) string {
	return strings.TrimRight(strings.TrimSpace(node), "/") + "/admin"
}

// Set stores token for node.
func (k *TokenStore) Set(node, token string) error {
	if strings.TrimSpace(node) == "" {
		return fmt.Errorf("dungeon: node url is required")
	}
	if err := keyring.Set(k.service, nodeKey(node), token); err == nil {
		return nil
	} else if !isKeyringUnavailable(err) {
		return fmt.Errorf("dungeon: keyring set: %w", err)
	}
	return k.setFallback(nodeKey(node), token)
}

// Get returns the token stored for node, or ErrNoToken.
func (k *TokenStore) Get(node string) (string, error) {
	if strings.TrimSpace(node) == "" {
		return "", fmt.Errorf("dungeon: node url is required")
	}
	val, err := keyring.Get(k.service, nodeKey(node))
	if err == nil {
		return val, nil
	}
	if !isKeyringUnavailable(err) && !errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("dungeon: keyring get: %w", err)
	}
	return k.getFallback(nodeKey(node))
}

// Delete forgets the token for node in both places.
func (k *TokenStore) Delete(node string) error {
	err := keyring.Delete(k.service, nodeKey(node))
	ferr := k.deleteFallback(nodeKey(node))
	if err != nil && !errors.Is(err, keyring.ErrNotFound) && !isKeyringUnavailable(err) {
		return fmt.Errorf("dungeon: keyring delete: %w", err)
	}
	return ferr
}

func isKeyringUnavailable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "secret service") ||
		strings.Contains(msg, "dbus") ||
		strings.Contains(msg, "no keychain") ||
		strings.Contains(msg, "keyring backend not available")
}

func (k *TokenStore) setFallback(key, value string) error {
	if strings.TrimSpace(k.fallbackPath) == "" {
		return fmt.Errorf("dungeon: keyring unavailable and no fallback path configured")
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	data, err := k.readFallbackUnlocked()
	if err != nil {
		return err
	}
	data[key] = value
	return k.writeFallbackUnlocked(data)
}

func (k *TokenStore) getFallback(key string) (string, error) {
	if strings.TrimSpace(k.fallbackPath) == "" {
		return "", ErrNoToken
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	data, err := k.readFallbackUnlocked()
	if err != nil {
		return "", err
	}
	val, ok := data[key]
	if !ok {
		return "", ErrNoToken
	}
	return val, nil
}

func (k *TokenStore) deleteFallback(key string) error {
	if strings.TrimSpace(k.fallbackPath) == "" {
		return nil
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	data, err := k.readFallbackUnlocked()
	if err != nil {
		return err
	}
	if _, ok := data[key]; !ok {
		return nil
	}
	delete(data, key)
	return k.writeFallbackUnlocked(data)
}

func (k *TokenStore) readFallbackUnlocked() (map[string]string, error) {
	out := map[string]string{}
	raw, err := os.ReadFile(k.fallbackPath)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("dungeon: read fallback tokens: %w", err)
	}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("dungeon: decode fallback tokens: %w", err)
	}
	return out, nil
}

func (k *TokenStore) writeFallbackUnlocked(data map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(k.fallbackPath), 0o700); err != nil {
		return fmt.Errorf("dungeon: mkdir fallback dir: %w", err)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("dungeon: encode fallback tokens: %w", err)
	}
	if err := os.WriteFile(k.fallbackPath, raw, 0o600); err != nil {
		return fmt.Errorf("dungeon: write fallback tokens: %w", err)
	}
	return nil
}

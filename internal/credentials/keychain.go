package credentials

import (
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// KeychainService is the generic-password service name the password is stored under.
const KeychainService = "turmeric"

// KeychainCredentialsFetcher reads the Paprika password for a known email
// from the macOS keychain, caching it briefly so every re-authentication
// does not shell out.
type KeychainCredentialsFetcher struct {
	email       string
	mu          sync.RWMutex
	cached      string
	lastRefresh time.Time
	cacheTTL    time.Duration
	lookup      func(service, account string) (string, error)
	logger      *zerolog.Logger
}

// NewKeychainCredentialsFetcher creates a new keychain-based credentials fetcher
func NewKeychainCredentialsFetcher(email string) *KeychainCredentialsFetcher {
	return &KeychainCredentialsFetcher{
		email:    email,
		cacheTTL: 5 * time.Minute,
		lookup:   findGenericPassword,
	}
}

// NewKeychainCredentialsFetcherWithLogger creates a new keychain-based credentials fetcher with logger
func NewKeychainCredentialsFetcherWithLogger(email string, logger zerolog.Logger) *KeychainCredentialsFetcher {
	f := NewKeychainCredentialsFetcher(email)
	f.logger = &logger
	return f
}

// GetCredentials returns the email and the keychain password
func (k *KeychainCredentialsFetcher) GetCredentials() (Credentials, error) {
	if strings.TrimSpace(k.email) == "" {
		return Credentials{}, fmt.Errorf("keychain lookup needs an email: %w", ErrMissingCredentials)
	}

	k.mu.RLock()
	if k.cached != "" && time.Since(k.lastRefresh) < k.cacheTTL {
		password := k.cached
		k.mu.RUnlock()
		return Credentials{Email: k.email, Password: password}, nil
	}
	k.mu.RUnlock()

	password, err := k.lookup(KeychainService, k.email)
	if err != nil {
		if k.logger != nil {
			k.logger.Error().Err(err).Str("account", k.email).Msg("Failed to read password from keychain")
		}
		return Credentials{}, err
	}
	if password == "" {
		return Credentials{}, fmt.Errorf("empty keychain password for %s: %w", k.email, ErrMissingCredentials)
	}

	k.mu.Lock()
	k.cached = password
	k.lastRefresh = time.Now()
	k.mu.Unlock()

	return Credentials{Email: k.email, Password: password}, nil
}

func findGenericPassword(service, account string) (string, error) {
	cmd := exec.Command("security", "find-generic-password", "-s", service, "-a", account, "-w")
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("failed to retrieve password from Keychain: %w", err)
	}
	return strings.TrimRight(string(output), "\r\n"), nil
}

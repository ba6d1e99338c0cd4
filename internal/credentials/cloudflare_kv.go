//go:build js && wasm

package credentials

import (
	"encoding/json"
	"fmt"

	"github.com/syumai/workers/cloudflare/kv"
)

const kvCredentialsKey = "paprika_credentials"

// CloudflareKVFetcher retrieves credentials from Cloudflare KV
type CloudflareKVFetcher struct {
	kvStore *kv.Namespace
}

// NewCloudflareKVFetcher creates a new Cloudflare KV-based credentials fetcher
func NewCloudflareKVFetcher(namespace string) (*CloudflareKVFetcher, error) {
	// The binding name is configured in wrangler.toml
	kvStore, err := kv.NewNamespace(namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize KV namespace: %w", err)
	}
	return &CloudflareKVFetcher{kvStore: kvStore}, nil
}

// GetCredentials retrieves credentials from Cloudflare KV
func (c *CloudflareKVFetcher) GetCredentials() (Credentials, error) {
	credsJSON, err := c.kvStore.GetString(kvCredentialsKey, nil)
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to get credentials from KV: %w", err)
	}

	if credsJSON == "" {
		return Credentials{}, fmt.Errorf("no credentials found in KV: %w", ErrMissingCredentials)
	}

	var creds Credentials
	if err := json.Unmarshal([]byte(credsJSON), &creds); err != nil {
		return Credentials{}, fmt.Errorf("failed to parse credentials JSON: %w", err)
	}
	if err := creds.Validate(); err != nil {
		return Credentials{}, err
	}

	return creds, nil
}

// SetCredentials stores credentials in KV (used for initial setup)
func (c *CloudflareKVFetcher) SetCredentials(creds Credentials) error {
	if err := creds.Validate(); err != nil {
		return err
	}

	credsJSON, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	if err := c.kvStore.PutString(kvCredentialsKey, string(credsJSON), nil); err != nil {
		return fmt.Errorf("failed to store credentials in KV: %w", err)
	}

	return nil
}

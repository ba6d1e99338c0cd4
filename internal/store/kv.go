//go:build js && wasm

package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dvcrn/turmeric/internal/coordinator"
	"github.com/syumai/workers/cloudflare/kv"
)

// KV persists entries in a Cloudflare KV namespace, one key per resource.
// Workers keep no memory between requests, so this is what carries the
// cadence from one invocation to the next.
type KV struct {
	ns        *kv.Namespace
	account   string
	resources []string
}

// NewKV binds the KV namespace configured in wrangler.toml
func NewKV(namespace, account string, resources []string) (*KV, error) {
	ns, err := kv.NewNamespace(namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize KV namespace: %w", err)
	}
	return &KV{ns: ns, account: account, resources: resources}, nil
}

func (s *KV) key(resource string) string {
	return "entry:" + s.account + ":" + resource
}

func (s *KV) Load(ctx context.Context) ([]coordinator.Entry, error) {
	var entries []coordinator.Entry
	for _, resource := range s.resources {
		raw, err := s.ns.GetString(s.key(resource), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to get %s entry from KV: %w", resource, err)
		}
		if raw == "" {
			continue
		}

		var e coordinator.Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("failed to parse %s entry: %w", resource, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *KV) Save(ctx context.Context, entry coordinator.Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal %s entry: %w", entry.Resource, err)
	}
	if err := s.ns.PutString(s.key(entry.Resource), string(raw), nil); err != nil {
		return fmt.Errorf("failed to store %s entry in KV: %w", entry.Resource, err)
	}
	return nil
}

func (s *KV) Close() error {
	return nil
}

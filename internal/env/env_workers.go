//go:build js && wasm

package env

import "github.com/syumai/workers/cloudflare"

// Get returns the worker binding name; empty values count as unset
func Get(name string) (string, bool) {
	v := cloudflare.Getenv(name)
	return v, v != ""
}

//go:build !js || !wasm

// Package env reads process settings. On Workers the same names come from
// the worker's bindings instead of the process environment.
package env

import "os"

// Get returns the value of name and whether it was set
func Get(name string) (string, bool) {
	return os.LookupEnv(name)
}

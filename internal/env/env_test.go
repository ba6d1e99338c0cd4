//go:build !js || !wasm

package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	t.Setenv("TURMERIC_TEST_VALUE", "42")

	v, ok := Get("TURMERIC_TEST_VALUE")
	assert.True(t, ok)
	assert.Equal(t, "42", v)

	_, ok = Get("TURMERIC_TEST_VALUE_UNSET")
	assert.False(t, ok)
}

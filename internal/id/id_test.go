package id

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewIsUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for range 100 {
		v := New()
		assert.True(t, Valid(v), v)
		_, dup := seen[v]
		assert.False(t, dup)
		seen[v] = struct{}{}
	}
}

func TestRequest(t *testing.T) {
	a, b := Request(), Request()
	assert.Len(t, a, 20)
	assert.NotEqual(t, a, b)
	assert.False(t, Valid(a))
}

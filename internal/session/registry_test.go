package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLifecycle(t *testing.T) {
	r := NewRegistry()
	s := New(nil)

	r.Register(s)
	require.Equal(t, 1, r.Len())

	got, ok := r.Lookup(s.ID)
	require.True(t, ok)
	assert.Same(t, s, got)

	r.Unregister(s.ID)
	assert.Equal(t, 0, r.Len())
	_, ok = r.Lookup(s.ID)
	assert.False(t, ok)
}

func TestRegistryLookupUnknown(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Lookup("missing")
	assert.False(t, ok)
}

func TestSwapTranscript(t *testing.T) {
	s := New(nil)

	assert.Equal(t, "", s.SwapTranscript("first"))
	assert.Equal(t, "first", s.SwapTranscript("first second"))
	assert.Equal(t, "first second", s.Transcript())
}

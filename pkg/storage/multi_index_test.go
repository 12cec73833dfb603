package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiIndex(t *testing.T) {
	t.Run("register and lookup", func(t *testing.T) {
		m := NewMultiIndex()
		session := NewTripleIndex()
		browser := NewTripleIndex()
		require.NoError(t, m.Register("session", session))
		require.NoError(t, m.Register("browser", browser))
		assert.ErrorIs(t, m.Register("session", NewTripleIndex()), ErrScopeRegistered)

		session.Store("alice", "tag", "person", nil)
		browser.Store("bob", "tag", "person", nil)

		assert.True(t, m.Contains([]string{"session"}, "alice", "tag", "person", nil))
		assert.False(t, m.Contains([]string{"session"}, "bob", "tag", "person", nil))
		assert.True(t, m.Contains([]string{"session", "browser"}, "bob", "tag", "person", nil))

		levels := m.ALookup([]string{"session", "browser", "missing"}, "tag", "person", nil, nil)
		assert.Len(t, levels, 2)
		assert.Equal(t, 2, m.CardinalityEstimate([]string{"session", "browser"}))
		assert.Equal(t, []string{"session", "browser"}, m.Scopes())
	})

	t.Run("get index creates missing scopes", func(t *testing.T) {
		m := NewMultiIndex()
		idx := m.GetIndex("session")
		assert.Same(t, idx, m.GetIndex("session"))
		_, ok := m.Index("session")
		assert.True(t, ok)
	})

	t.Run("unregister", func(t *testing.T) {
		m := NewMultiIndex()
		require.NoError(t, m.Register("session", NewTripleIndex()))
		require.NoError(t, m.Unregister("session"))
		assert.ErrorIs(t, m.Unregister("session"), ErrUnknownScope)
		assert.Empty(t, m.Scopes())
	})
}

func TestMultiIndex_StoreAndMerge(t *testing.T) {
	m := NewMultiIndex()
	m.Store([]string{"session", "browser"}, "alice", "tag", "person", nil)
	m.Store([]string{"browser"}, "alice", "tag", "admin", nil)

	assert.True(t, m.Contains([]string{"session"}, "alice", "tag", "person", nil))
	assert.ElementsMatch(t, []Value{"person", "person", "admin"}, m.DangerousMergeLookup("alice", "tag", nil))

	m.Unstore([]string{"browser"}, "alice", "tag", "person", nil)
	assert.ElementsMatch(t, []Value{"person", "admin"}, m.DangerousMergeLookup("alice", "tag", nil))
	m.Unstore([]string{"missing"}, "alice", "tag", "person", nil)
}

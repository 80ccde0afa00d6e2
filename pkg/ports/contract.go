package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/tutorgraph/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSearchCacheContract runs a suite of tests to verify that a SearchCache implementation
// adheres to the defined interface contract.
func RunSearchCacheContract(t *testing.T, cache SearchCache) {
	ctx := context.Background()
	key := "contract-test-" + time.Now().Format("20060102150405")

	results := []domain.SearchResult{
		{Title: "Fractions", URL: "https://example.com/fractions", Content: "A fraction is a part of a whole.", Score: 0.9},
		{Title: "Adjectives", URL: "https://example.com/adjectives", Content: "Adjectives describe nouns."},
	}

	t.Run("Set and Get", func(t *testing.T) {
		err := cache.Set(ctx, key, results)
		require.NoError(t, err, "Set should not return error")

		got, ok, err := cache.Get(ctx, key)
		require.NoError(t, err, "Get should not return error")
		require.True(t, ok, "Get should hit after Set")
		assert.Equal(t, results, got)
	})

	t.Run("Get Miss", func(t *testing.T) {
		_, ok, err := cache.Get(ctx, "missing-"+key)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Returned Slice Is Detached", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, key, results))

		got, ok, err := cache.Get(ctx, key)
		require.NoError(t, err)
		require.True(t, ok)
		got[0].Title = "mutated"

		again, _, err := cache.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "Fractions", again[0].Title)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, key, results))

		err := cache.Delete(ctx, key)
		require.NoError(t, err, "Delete should not return error")

		_, ok, err := cache.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok, "Get after Delete should miss")

		assert.NoError(t, cache.Delete(ctx, key), "Deleting a missing key should not fail")
	})
}

// RunStateStoreContract runs a suite of tests to verify that a StateStore implementation
// adheres to the defined interface contract.
func RunStateStoreContract(t *testing.T, store StateStore) {
	ctx := context.Background()
	sessionID := "contract-session-" + time.Now().Format("20060102150405")

	newState := func(t *testing.T) domain.State {
		t.Helper()
		s, err := domain.NewState(domain.RoleTeacher,
			domain.HumanMessage("Quiz me on fractions"),
			domain.NamedMessage("Math", "Let's check fractions."),
		)
		require.NoError(t, err)
		s.Next = domain.RouteFinish
		s.CurrentSupervisor = domain.MathSupervisor
		return s
	}

	t.Run("Save and Load", func(t *testing.T) {
		state := newState(t)

		err := store.Save(ctx, sessionID, state)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, state, loaded)
	})

	t.Run("Save Overwrites", func(t *testing.T) {
		state := newState(t).WithMessage(domain.HumanMessage("again"))
		require.NoError(t, store.Save(ctx, sessionID, state))

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Len(t, loaded.Messages, 3)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, sessionID, newState(t)))

		err := store.Delete(ctx, sessionID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")
		assert.NoError(t, store.Delete(ctx, sessionID), "Deleting a missing session should not fail")
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		require.NoError(t, store.Save(ctx, id1, newState(t)))
		require.NoError(t, store.Save(ctx, id2, newState(t)))
		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		sessions, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, id1)
		assert.Contains(t, sessions, id2)
	})
}

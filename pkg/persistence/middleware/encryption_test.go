package middleware_test

import (
	"context"
	"crypto/rand"
	"io"
	"testing"

	"github.com/aretw0/tutorgraph/pkg/domain"
	"github.com/aretw0/tutorgraph/pkg/persistence/middleware"
	"github.com/aretw0/tutorgraph/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) []byte {
	t.Helper()
	k := make([]byte, 32)
	_, err := io.ReadFull(rand.Reader, k)
	require.NoError(t, err)
	return k
}

func encrypted(t *testing.T, store ports.StateStore, cfg middleware.EncryptionConfig) ports.StateStore {
	t.Helper()
	mw, err := middleware.NewEncryptionMiddleware(cfg)
	require.NoError(t, err)
	return mw(store)
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	ports.RunStateStoreContract(t, encrypted(t, newMemoryStore(), middleware.EncryptionConfig{ActiveKey: generateKey(t)}))
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	inner := newMemoryStore()
	store := encrypted(t, inner, middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	ctx := context.Background()

	state, err := domain.NewState(domain.RoleStudent, domain.HumanMessage("my secret homework"))
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, "s1", state))

	raw, err := inner.Load(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, raw.Messages, 1)
	assert.NotContains(t, raw.Messages[0].Content, "secret")
	assert.Equal(t, state.RunID, raw.RunID)

	loaded, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, state, loaded)
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	inner := newMemoryStore()
	oldKey, newKey := generateKey(t), generateKey(t)
	ctx := context.Background()

	oldStore := encrypted(t, inner, middleware.EncryptionConfig{ActiveKey: oldKey})
	state, err := domain.NewState(domain.RoleTeacher, domain.HumanMessage("sealed with the old key"))
	require.NoError(t, err)
	require.NoError(t, oldStore.Save(ctx, "rotation", state))

	newStore := encrypted(t, inner, middleware.EncryptionConfig{ActiveKey: newKey, FallbackKeys: [][]byte{oldKey}})
	loaded, err := newStore.Load(ctx, "rotation")
	require.NoError(t, err)
	assert.Equal(t, state, loaded)

	require.NoError(t, newStore.Save(ctx, "rotation", loaded))
	_, err = oldStore.Load(ctx, "rotation")
	assert.Error(t, err, "the old key alone must not open a state sealed with the new key")
}

func TestEncryptionMiddleware_PlainStateRejected(t *testing.T) {
	inner := newMemoryStore()
	ctx := context.Background()
	state, err := domain.NewState(domain.RoleStudent, domain.HumanMessage("plain"))
	require.NoError(t, err)
	require.NoError(t, inner.Save(ctx, "plain", state))

	store := encrypted(t, inner, middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	_, err = store.Load(ctx, "plain")
	assert.ErrorContains(t, err, "encrypted envelope")
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	_, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")})
	assert.ErrorIs(t, err, middleware.ErrInvalidKey)

	_, err = middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    generateKey(t),
		FallbackKeys: [][]byte{[]byte("short")},
	})
	assert.ErrorIs(t, err, middleware.ErrInvalidKey)
}

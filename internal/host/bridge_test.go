package host

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/cchat/internal/anthropic"
	"github.com/theirongolddev/cchat/internal/store"
)

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "***", MaskKey("short"))
	assert.Equal(t, "sk-ant-...wxyz", MaskKey("sk-ant-api03-abcdefwxyz"))
}

func TestBridge_SecretsAndValidation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "sk-good-key-0001" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	vault, err := store.NewVault(store.NewMemory(), make([]byte, 32))
	require.NoError(t, err)
	b := New(vault, anthropic.NewClient(anthropic.Options{BaseURL: srv.URL}), nil)
	ctx := context.Background()

	require.NoError(t, b.SetSecret(ctx, "p1", "sk-good-key-0001"))
	secret, err := b.GetSecret(ctx, "p1")
	require.NoError(t, err)

	assert.NoError(t, b.ValidateCredential(ctx, secret))
	assert.ErrorIs(t, b.ValidateCredential(ctx, "sk-bad-key-0002"), anthropic.ErrUnauthorized)

	require.NoError(t, b.DeleteSecret(ctx, "p1"))
	_, err = b.GetSecret(ctx, "p1")
	assert.ErrorIs(t, err, store.ErrSecretNotFound)
}

package credential

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/cchat/internal/anthropic"
	"github.com/theirongolddev/cchat/internal/event"
	"github.com/theirongolddev/cchat/internal/store"
)

type fakeSecrets struct {
	mu       sync.Mutex
	data     map[string]string
	setErr   error
	delErr   error
	setCalls int
}

func newFakeSecrets() *fakeSecrets { return &fakeSecrets{data: map[string]string{}} }

func (f *fakeSecrets) GetSecret(_ context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[id]
	if !ok {
		return "", store.ErrSecretNotFound
	}
	return v, nil
}

func (f *fakeSecrets) SetSecret(_ context.Context, id, secret string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCalls++
	if f.setErr != nil {
		return f.setErr
	}
	f.data[id] = secret
	return nil
}

func (f *fakeSecrets) DeleteSecret(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.delErr != nil {
		return f.delErr
	}
	delete(f.data, id)
	return nil
}

type validatorFunc func(ctx context.Context, secret string) error

func (v validatorFunc) ValidateCredential(ctx context.Context, secret string) error {
	return v(ctx, secret)
}

func acceptOnly(good string) validatorFunc {
	return func(_ context.Context, secret string) error {
		if secret == good {
			return nil
		}
		return anthropic.ErrUnauthorized
	}
}

type fixture struct {
	store   *Store
	secrets *fakeSecrets
	kv      *store.Memory
	events  []event.Event
}

func newFixture(t *testing.T, v Validator) *fixture {
	t.Helper()
	f := &fixture{secrets: newFakeSecrets(), kv: store.NewMemory()}
	bus := event.NewBus(0)
	bus.Subscribe(func(ev event.Event) { f.events = append(f.events, ev) })
	f.store = New(f.secrets, v, f.kv, bus, nil)
	return f
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		v       validatorFunc
		wantErr error
	}{
		{"accepted", acceptOnly("sk-good"), nil},
		{"rejected", acceptOnly("other"), ErrInvalidCredential},
		{"network", func(context.Context, string) error { return errors.New("dial tcp: refused") }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.v)
			err := f.store.Validate(context.Background(), "sk-good")
			switch {
			case tt.name == "network":
				require.Error(t, err)
				assert.NotErrorIs(t, err, ErrInvalidCredential)
				assert.Contains(t, f.store.Err(), "refused")
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
				assert.NotEmpty(t, f.store.Err())
			default:
				assert.NoError(t, err)
				assert.Empty(t, f.store.Err())
			}
			assert.False(t, f.store.IsAuthenticated())
			assert.False(t, f.store.IsAuthenticating())
			assert.Empty(t, f.store.Profiles())
		})
	}
}

func TestValidate_EmptySecret(t *testing.T) {
	called := false
	f := newFixture(t, validatorFunc(func(context.Context, string) error { called = true; return nil }))
	assert.ErrorIs(t, f.store.Validate(context.Background(), "  "), ErrEmptySecret)
	assert.False(t, called)
}

func TestLogin_InvalidNeverStores(t *testing.T) {
	f := newFixture(t, acceptOnly("sk-good"))
	_, err := f.store.Login(context.Background(), "sk-bad", "Work")
	assert.ErrorIs(t, err, ErrInvalidCredential)
	assert.Equal(t, 0, f.secrets.setCalls)
	assert.False(t, f.store.IsAuthenticated())
}

func TestLogin_StoresActiveProfile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, acceptOnly("sk-ant-good-1234"))

	p, err := f.store.Login(ctx, "sk-ant-good-1234", "Work")
	require.NoError(t, err)

	assert.Equal(t, "1234", p.KeySuffix)
	assert.Equal(t, "Work", p.Name)
	assert.True(t, f.store.IsAuthenticated())
	active, ok := f.store.Active()
	require.True(t, ok)
	assert.Equal(t, p.ID, active.ID)

	secret, err := f.store.ActiveSecret(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-good-1234", secret)

	var activeID string
	found, err := store.GetJSON(ctx, f.kv, store.KeyActiveProfile, &activeID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, p.ID, activeID)
}

func TestStore_FailsClosedWhenSecretWriteFails(t *testing.T) {
	f := newFixture(t, acceptOnly("x"))
	f.secrets.setErr = errors.New("keychain locked")

	_, err := f.store.Store(context.Background(), "sk-new", "Home")
	require.Error(t, err)
	assert.Empty(t, f.store.Profiles())
	assert.False(t, f.store.IsAuthenticated())
	assert.Contains(t, f.store.Err(), "keychain locked")
}

func TestActivate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, acceptOnly("x"))
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	f.store.now = func() time.Time { return base }

	first, err := f.store.Store(ctx, "sk-one", "One")
	require.NoError(t, err)
	_, err = f.store.Store(ctx, "sk-two", "Two")
	require.NoError(t, err)

	assert.ErrorIs(t, f.store.Activate(ctx, "nope"), ErrProfileNotFound)

	later := base.Add(time.Hour)
	f.store.now = func() time.Time { return later }
	require.NoError(t, f.store.Activate(ctx, first.ID))

	active, ok := f.store.Active()
	require.True(t, ok)
	assert.Equal(t, first.ID, active.ID)
	assert.Equal(t, later, active.LastUsedAt)
}

func TestRemove_OnlyActiveProfile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, acceptOnly("sk-only"))
	p, err := f.store.Login(ctx, "sk-only", "Only")
	require.NoError(t, err)

	require.NoError(t, f.store.Remove(ctx, p.ID))

	assert.False(t, f.store.IsAuthenticated())
	_, ok := f.store.Active()
	assert.False(t, ok)
	assert.Empty(t, f.store.Profiles())
	_, err = f.secrets.GetSecret(ctx, p.ID)
	assert.ErrorIs(t, err, store.ErrSecretNotFound)
	_, err = f.store.ActiveSecret(ctx)
	assert.ErrorIs(t, err, ErrNoActiveProfile)
}

func TestRemove_ActiveFallsBackToFirstRemaining(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, acceptOnly("x"))
	a, err := f.store.Store(ctx, "sk-a", "A")
	require.NoError(t, err)
	_, err = f.store.Store(ctx, "sk-b", "B")
	require.NoError(t, err)
	c, err := f.store.Store(ctx, "sk-c", "C")
	require.NoError(t, err)

	require.NoError(t, f.store.Remove(ctx, c.ID))

	active, ok := f.store.Active()
	require.True(t, ok)
	assert.Equal(t, a.ID, active.ID)
	assert.True(t, f.store.IsAuthenticated())
	assert.ErrorIs(t, f.store.Remove(ctx, c.ID), ErrProfileNotFound)
}

func TestRemove_FailsClosedWhenSecretDeleteFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, acceptOnly("sk-keep"))
	p, err := f.store.Login(ctx, "sk-keep", "Keep")
	require.NoError(t, err)
	f.secrets.delErr = errors.New("keychain locked")

	err = f.store.Remove(ctx, p.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "keychain locked")
	assert.Contains(t, f.store.Err(), "keychain locked")

	profiles := f.store.Profiles()
	require.Len(t, profiles, 1)
	assert.Equal(t, p.ID, profiles[0].ID)
	assert.True(t, f.store.IsAuthenticated())
	secret, err := f.secrets.GetSecret(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "sk-keep", secret)

	f.secrets.delErr = nil
	require.NoError(t, f.store.Remove(ctx, p.ID))
	assert.Empty(t, f.store.Profiles())
}

func TestCheckSession_RestoresFromPersistence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, acceptOnly("sk-keep"))
	p, err := f.store.Login(ctx, "sk-keep", "Keep")
	require.NoError(t, err)

	restarted := New(f.secrets, acceptOnly("sk-keep"), f.kv, event.NewBus(0), nil)
	require.NoError(t, restarted.Load(ctx))
	assert.False(t, restarted.IsAuthenticated(), "not authenticated before the check")

	assert.True(t, restarted.CheckSession(ctx))
	active, ok := restarted.Active()
	require.True(t, ok)
	assert.Equal(t, p.ID, active.ID)

	revoked := New(f.secrets, acceptOnly("rotated"), f.kv, event.NewBus(0), nil)
	require.NoError(t, revoked.Load(ctx))
	assert.False(t, revoked.CheckSession(ctx))
	assert.NotEmpty(t, revoked.Err())
}

func TestCheckSession_NoProfile(t *testing.T) {
	f := newFixture(t, acceptOnly("x"))
	assert.False(t, f.store.CheckSession(context.Background()))
}

func TestStore_PublishesEvents(t *testing.T) {
	f := newFixture(t, acceptOnly("x"))
	_, err := f.store.Store(context.Background(), "sk", "P")
	require.NoError(t, err)

	require.NotEmpty(t, f.events)
	last := f.events[len(f.events)-1]
	assert.Equal(t, event.TopicCredential, last.Topic)
	assert.Equal(t, "stored", last.Kind)
}

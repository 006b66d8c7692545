// Package credential manages named API-key profiles and the active one.
package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/theirongolddev/cchat/internal/anthropic"
	"github.com/theirongolddev/cchat/internal/event"
	"github.com/theirongolddev/cchat/internal/model"
	"github.com/theirongolddev/cchat/internal/store"
)

var (
	// ErrInvalidCredential means the API rejected the secret.
	ErrInvalidCredential = errors.New("credential: API key rejected")
	// ErrProfileNotFound is returned for unknown profile IDs.
	ErrProfileNotFound = errors.New("credential: profile not found")
	// ErrNoActiveProfile is returned when a secret is requested with no profile active.
	ErrNoActiveProfile = errors.New("credential: no active profile")
	// ErrEmptySecret is returned before any I/O for a blank secret.
	ErrEmptySecret = errors.New("credential: empty API key")
)

// Secrets stores profile secrets out of band.
type Secrets interface {
	GetSecret(ctx context.Context, profileID string) (string, error)
	SetSecret(ctx context.Context, profileID, secret string) error
	DeleteSecret(ctx context.Context, profileID string) error
}

// Validator checks a secret against the API.
type Validator interface {
	ValidateCredential(ctx context.Context, secret string) error
}

// Store tracks profiles and which one is active.
type Store struct {
	secrets   Secrets
	validator Validator
	kv        store.KV
	bus       *event.Bus
	log       *slog.Logger
	now       func() time.Time

	// op serialises credential operations so two never overlap.
	op        sync.Mutex
	persistMu sync.Mutex

	mu             sync.RWMutex
	profiles       []model.Profile
	activeID       string
	authenticated  bool
	authenticating bool
	err            string
}

// New returns an empty store. Call Load to restore persisted profiles.
func New(secrets Secrets, validator Validator, kv store.KV, bus *event.Bus, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		secrets:   secrets,
		validator: validator,
		kv:        kv,
		bus:       bus,
		log:       logger,
		now:       time.Now,
	}
}

// Load restores the profile list and active ID. It does not validate;
// call CheckSession for that.
func (s *Store) Load(ctx context.Context) error {
	var profiles []model.Profile
	if _, err := store.GetJSON(ctx, s.kv, store.KeyProfiles, &profiles); err != nil {
		s.setErr(err)
		return err
	}
	var activeID string
	if _, err := store.GetJSON(ctx, s.kv, store.KeyActiveProfile, &activeID); err != nil {
		s.setErr(err)
		return err
	}

	s.mu.Lock()
	s.profiles = profiles
	s.activeID = ""
	if indexOf(profiles, activeID) >= 0 {
		s.activeID = activeID
	}
	s.mu.Unlock()
	return nil
}

// Validate asks the API whether secret is accepted. A nil return means
// valid; ErrInvalidCredential means rejected; anything else means the
// check itself failed and validity is unknown.
func (s *Store) Validate(ctx context.Context, secret string) error {
	s.op.Lock()
	defer s.op.Unlock()
	return s.validate(ctx, secret)
}

func (s *Store) validate(ctx context.Context, secret string) error {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		s.setErr(ErrEmptySecret)
		return ErrEmptySecret
	}

	s.mu.Lock()
	s.authenticating = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.authenticating = false
		s.mu.Unlock()
	}()

	err := s.validator.ValidateCredential(ctx, secret)
	switch {
	case err == nil:
		s.setErr(nil)
		return nil
	case anthropic.IsUnauthorized(err):
		err = ErrInvalidCredential
	default:
		err = fmt.Errorf("credential: validation failed: %w", err)
	}
	s.setErr(err)
	s.log.Info("credential validation failed", "error", err)
	s.bus.Emit(event.TopicCredential, "validation_failed", "", err)
	return err
}

// Store saves secret as a new active profile named name. Nothing is added
// if the secret cannot be written.
func (s *Store) Store(ctx context.Context, secret, name string) (model.Profile, error) {
	s.op.Lock()
	defer s.op.Unlock()
	return s.store(ctx, secret, name)
}

func (s *Store) store(ctx context.Context, secret, name string) (model.Profile, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		s.setErr(ErrEmptySecret)
		return model.Profile{}, ErrEmptySecret
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Default"
	}

	now := s.now()
	p := model.Profile{
		ID:         uuid.NewString(),
		Name:       name,
		KeySuffix:  model.KeySuffix(secret),
		CreatedAt:  now,
		LastUsedAt: now,
	}
	if err := s.secrets.SetSecret(ctx, p.ID, secret); err != nil {
		err = fmt.Errorf("credential: storing secret: %w", err)
		s.setErr(err)
		return model.Profile{}, err
	}

	s.mu.Lock()
	s.profiles = append(s.profiles, p)
	s.activeID = p.ID
	s.authenticated = true
	s.err = ""
	s.mu.Unlock()

	s.persist(ctx)
	s.log.Info("profile stored", "profile", p.ID, "name", p.Name)
	s.bus.Emit(event.TopicCredential, "stored", p.ID, nil)
	return p, nil
}

// Login validates secret and stores it as a new profile on success.
func (s *Store) Login(ctx context.Context, secret, name string) (model.Profile, error) {
	s.op.Lock()
	defer s.op.Unlock()
	if err := s.validate(ctx, secret); err != nil {
		return model.Profile{}, err
	}
	return s.store(ctx, secret, name)
}

// Activate makes id the active profile.
func (s *Store) Activate(ctx context.Context, id string) error {
	s.op.Lock()
	defer s.op.Unlock()

	s.mu.Lock()
	i := indexOf(s.profiles, id)
	if i < 0 {
		s.err = ErrProfileNotFound.Error()
		s.mu.Unlock()
		return ErrProfileNotFound
	}
	s.profiles[i].LastUsedAt = s.now()
	s.activeID = id
	s.authenticated = true
	s.mu.Unlock()

	s.persist(ctx)
	s.bus.Emit(event.TopicCredential, "activated", id, nil)
	return nil
}

// Remove deletes a profile and its secret. When the active profile is
// removed the first remaining profile takes over, or none. Nothing is
// removed if the secret cannot be deleted.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.op.Lock()
	defer s.op.Unlock()

	s.mu.RLock()
	found := indexOf(s.profiles, id) >= 0
	s.mu.RUnlock()
	if !found {
		s.setErr(ErrProfileNotFound)
		return ErrProfileNotFound
	}

	// The profile is kept when its secret survives, so a retry can
	// still find and delete it.
	if err := s.secrets.DeleteSecret(ctx, id); err != nil && !errors.Is(err, store.ErrSecretNotFound) {
		s.log.Warn("deleting secret failed", "profile", id, "error", err)
		s.setErr(err)
		return fmt.Errorf("credential: deleting secret: %w", err)
	}

	s.mu.Lock()
	i := indexOf(s.profiles, id)
	s.profiles = append(s.profiles[:i], s.profiles[i+1:]...)
	if s.activeID == id {
		s.activeID = ""
		s.authenticated = false
		if len(s.profiles) > 0 {
			s.activeID = s.profiles[0].ID
			s.authenticated = true
		}
	}
	s.mu.Unlock()

	s.persist(ctx)
	s.bus.Emit(event.TopicCredential, "removed", id, nil)
	return nil
}

// CheckSession re-validates the persisted active profile's secret and
// reports whether the session is authenticated.
func (s *Store) CheckSession(ctx context.Context) bool {
	s.op.Lock()
	defer s.op.Unlock()

	s.mu.RLock()
	id := s.activeID
	s.mu.RUnlock()
	if id == "" {
		s.setAuthenticated(false)
		return false
	}

	secret, err := s.secrets.GetSecret(ctx, id)
	if err != nil {
		s.setErr(fmt.Errorf("credential: reading secret: %w", err))
		s.setAuthenticated(false)
		return false
	}
	if err := s.validate(ctx, secret); err != nil {
		s.setAuthenticated(false)
		return false
	}
	s.setAuthenticated(true)
	s.bus.Emit(event.TopicCredential, "session_checked", id, nil)
	return true
}

// ActiveSecret fetches the active profile's secret. It is read from the
// secret store on every call and never cached.
func (s *Store) ActiveSecret(ctx context.Context) (string, error) {
	s.mu.RLock()
	id := s.activeID
	s.mu.RUnlock()
	if id == "" {
		return "", ErrNoActiveProfile
	}
	return s.secrets.GetSecret(ctx, id)
}

// Profiles returns a copy of the profile list in creation order.
func (s *Store) Profiles() []model.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Profile(nil), s.profiles...)
}

// Active returns the active profile, if any.
func (s *Store) Active() (model.Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := indexOf(s.profiles, s.activeID); i >= 0 {
		return s.profiles[i], true
	}
	return model.Profile{}, false
}

// IsAuthenticated reports whether an active profile has been validated or
// freshly stored in this session.
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated && s.activeID != ""
}

// IsAuthenticating reports whether a validation is in flight.
func (s *Store) IsAuthenticating() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticating
}

// Err returns the last error message, or "".
func (s *Store) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *Store) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		s.err = ""
		return
	}
	s.err = err.Error()
}

func (s *Store) setAuthenticated(v bool) {
	s.mu.Lock()
	s.authenticated = v
	s.mu.Unlock()
}

func (s *Store) persist(ctx context.Context) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.RLock()
	profiles := append([]model.Profile{}, s.profiles...)
	activeID := s.activeID
	s.mu.RUnlock()

	err := store.SetJSON(ctx, s.kv, store.KeyProfiles, profiles)
	if err == nil {
		if activeID == "" {
			err = s.kv.Delete(ctx, store.KeyActiveProfile)
		} else {
			err = store.SetJSON(ctx, s.kv, store.KeyActiveProfile, activeID)
		}
	}
	if err != nil {
		s.log.Warn("persisting profiles failed", "error", err)
		s.setErr(err)
		s.bus.Emit(event.TopicCredential, "persist_failed", "", err)
	}
}

func indexOf(profiles []model.Profile, id string) int {
	if id == "" {
		return -1
	}
	for i, p := range profiles {
		if p.ID == id {
			return i
		}
	}
	return -1
}

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"zerocode-chat/internal/model"
	"zerocode-chat/internal/pkg/jwtutil"
	"zerocode-chat/internal/store"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrAuthFailed     = errors.New("authentication failed")
	ErrNotLoggedIn    = errors.New("not logged in")
	ErrSessionExpired = errors.New("session expired")
)

const minPasswordLength = 6

// AuthService is a stand-in for a real identity backend. Any well-formed email with a
// password of at least six characters is accepted; nothing is verified against stored
// credentials. The resulting AuthState is persisted per user under the auth key.
type AuthService struct {
	store         store.Store
	authKey       string
	jwtSecret     string
	tokenTTL      time.Duration
	avatarBaseURL string
	latency       time.Duration
	now           func() time.Time
}

type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

type LoginInput struct {
	Email    string
	Password string
}

func NewAuthService(st store.Store, authKey, jwtSecret string, tokenTTL time.Duration, avatarBaseURL string, latency time.Duration) *AuthService {
	return &AuthService{
		store:         st,
		authKey:       authKey,
		jwtSecret:     jwtSecret,
		tokenTTL:      tokenTTL,
		avatarBaseURL: avatarBaseURL,
		latency:       latency,
		now:           time.Now,
	}
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*model.AuthState, error) {
	email := strings.TrimSpace(strings.ToLower(input.Email))
	name := strings.TrimSpace(input.Name)
	if email == "" || name == "" || len(input.Password) < minPasswordLength {
		return nil, ErrInvalidInput
	}
	if err := s.simulateLatency(ctx); err != nil {
		return nil, err
	}
	return s.signIn(ctx, email, name)
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (*model.AuthState, error) {
	email := strings.TrimSpace(strings.ToLower(input.Email))
	if email == "" || len(input.Password) < minPasswordLength {
		return nil, ErrAuthFailed
	}
	if err := s.simulateLatency(ctx); err != nil {
		return nil, err
	}
	name, _, _ := strings.Cut(email, "@")
	return s.signIn(ctx, email, name)
}

// Logout drops the persisted auth state. The user's chat log is untouched.
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrInvalidInput
	}
	if err := s.store.Delete(ctx, store.Key(s.authKey, userID)); err != nil {
		return fmt.Errorf("delete auth state failed: %w", err)
	}
	return nil
}

// Current returns the persisted auth state for userID.
func (s *AuthService) Current(ctx context.Context, userID string) (*model.AuthState, error) {
	raw, ok, err := s.store.Get(ctx, store.Key(s.authKey, userID))
	if err != nil {
		return nil, fmt.Errorf("read auth state failed: %w", err)
	}
	if !ok {
		return nil, ErrNotLoggedIn
	}

	var state model.AuthState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		// A corrupt blob counts as logged out, and is removed.
		_ = s.store.Delete(ctx, store.Key(s.authKey, userID))
		return nil, ErrNotLoggedIn
	}
	if !state.IsAuthenticated || state.User == nil {
		return nil, ErrNotLoggedIn
	}
	return &state, nil
}

// Authenticate resolves a bearer token to its still-logged-in user.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*model.User, error) {
	claims, err := jwtutil.ParseToken(s.jwtSecret, token)
	if err != nil {
		return nil, ErrSessionExpired
	}
	state, err := s.Current(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if state.Token != token {
		return nil, ErrSessionExpired
	}
	return state.User, nil
}

func (s *AuthService) signIn(ctx context.Context, email, name string) (*model.AuthState, error) {
	user := &model.User{
		ID:     UserIDForEmail(email),
		Email:  email,
		Name:   name,
		Avatar: s.avatarURL(email),
	}

	token, err := jwtutil.GenerateToken(s.jwtSecret, s.tokenTTL, user.ID, user.Email, s.now())
	if err != nil {
		return nil, err
	}

	state := &model.AuthState{User: user, Token: token, IsAuthenticated: true}
	payload, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("marshal auth state failed: %w", err)
	}
	if err := s.store.Set(ctx, store.Key(s.authKey, user.ID), string(payload)); err != nil {
		return nil, fmt.Errorf("persist auth state failed: %w", err)
	}
	return state, nil
}

func (s *AuthService) avatarURL(email string) string {
	if s.avatarBaseURL == "" {
		return ""
	}
	return s.avatarBaseURL + "?seed=" + url.QueryEscape(email)
}

func (s *AuthService) simulateLatency(ctx context.Context) error {
	if s.latency <= 0 {
		return nil
	}
	t := time.NewTimer(s.latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// UserIDForEmail derives a stable id so a returning user finds their chat log again.
func UserIDForEmail(email string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("mailto:"+strings.ToLower(email))).String()
}

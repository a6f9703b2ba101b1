package client

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tasknest/tasknest/internal/handler/dto"
)

// Session is the signed-in state shared by the API client and the Board.
// It is filled by login or register and cleared by logout, account
// deletion, or a server answer of INVALID_TOKEN or UNKNOWN_USER. When a
// path is set the session survives between CLI invocations.
type Session struct {
	mu        sync.RWMutex
	path      string
	token     string
	expiresAt time.Time
	user      *dto.UserResponse
	now       func() time.Time
}

type sessionFile struct {
	Token     string    `yaml:"token"`
	ExpiresAt time.Time `yaml:"expiresAt"`
	UserID    string    `yaml:"userId"`
	Name      string    `yaml:"name"`
	Email     string    `yaml:"email"`
	CreatedAt time.Time `yaml:"createdAt"`
}

// NewSession returns an empty session persisted at path. An empty path
// keeps the session in memory only.
func NewSession(path string) *Session {
	return &Session{path: path, now: time.Now}
}

// LoadSession reads the session stored at path. A missing file yields an
// empty session bound to path.
func LoadSession(path string) (*Session, error) {
	s := NewSession(path)
	if path == "" {
		return s, nil
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("read session: %w", err)
	}

	var f sessionFile
	if err := yaml.Unmarshal(buf, &f); err != nil {
		return nil, fmt.Errorf("parse session %s: %w", path, err)
	}

	s.token = f.Token
	s.expiresAt = f.ExpiresAt
	if f.UserID != "" {
		s.user = &dto.UserResponse{ID: f.UserID, Name: f.Name, Email: f.Email, CreatedAt: f.CreatedAt}
	}
	return s, nil
}

// Set stores a freshly issued token and its user.
func (s *Session) Set(resp *dto.AuthResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = resp.Token
	s.expiresAt = resp.ExpiresAt
	if resp.User != nil {
		u := *resp.User
		s.user = &u
	} else {
		s.user = nil
	}
	return s.save()
}

// SetUser refreshes the cached user record, as returned by /api/auth/me.
func (s *Session) SetUser(user *dto.UserResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" {
		return nil
	}
	u := *user
	s.user = &u
	return s.save()
}

// Clear forgets the token and removes the stored file.
func (s *Session) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = ""
	s.expiresAt = time.Time{}
	s.user = nil

	if s.path == "" {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}

// Token returns the bearer token, or "" when signed out or expired.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.validLocked() {
		return ""
	}
	return s.token
}

// User returns a copy of the signed-in user, or nil.
func (s *Session) User() *dto.UserResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.validLocked() || s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// Authenticated reports whether an unexpired token is held.
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.validLocked()
}

func (s *Session) validLocked() bool {
	if s.token == "" {
		return false
	}
	return s.expiresAt.IsZero() || s.now().Before(s.expiresAt)
}

// save writes the session file with owner-only permissions. Caller holds mu.
func (s *Session) save() error {
	if s.path == "" {
		return nil
	}

	f := sessionFile{Token: s.token, ExpiresAt: s.expiresAt}
	if s.user != nil {
		f.UserID = s.user.ID
		f.Name = s.user.Name
		f.Email = s.user.Email
		f.CreatedAt = s.user.CreatedAt
	}

	buf, err := yaml.Marshal(&f)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	if err := os.WriteFile(s.path, buf, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(s.path, 0o600); err != nil {
		return fmt.Errorf("chmod session: %w", err)
	}
	return nil
}

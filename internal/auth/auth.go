// Package auth covers admin credential checks and the in-memory API token
// store backing the admin endpoints.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultTokenTTL = 12 * time.Hour
	BcryptCost      = 12
)

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

type tokenEntry struct {
	Username  string
	ExpiresAt time.Time
}

// TokenStore issues and validates bearer tokens for the admin API.
type TokenStore struct {
	mu     sync.RWMutex
	ttl    time.Duration
	tokens map[string]tokenEntry
	nowFn  func() time.Time
}

func NewTokenStore(ttl time.Duration) *TokenStore {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenStore{
		ttl:    ttl,
		tokens: make(map[string]tokenEntry),
		nowFn:  time.Now,
	}
}

func (s *TokenStore) Create(username string) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	token := hex.EncodeToString(b)
	s.mu.Lock()
	s.tokens[token] = tokenEntry{
		Username:  username,
		ExpiresAt: s.nowFn().Add(s.ttl),
	}
	s.mu.Unlock()
	return token, nil
}

func (s *TokenStore) Get(token string) (string, bool) {
	s.mu.RLock()
	entry, ok := s.tokens[token]
	s.mu.RUnlock()
	if !ok || s.nowFn().After(entry.ExpiresAt) {
		return "", false
	}
	return entry.Username, true
}

func (s *TokenStore) Delete(token string) {
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
}

func (s *TokenStore) DeleteByUsername(username string) {
	s.mu.Lock()
	for token, entry := range s.tokens {
		if entry.Username == username {
			delete(s.tokens, token)
		}
	}
	s.mu.Unlock()
}

// Cleanup drops expired tokens and returns how many were removed.
func (s *TokenStore) Cleanup() int {
	now := s.nowFn()
	removed := 0
	s.mu.Lock()
	for token, entry := range s.tokens {
		if now.After(entry.ExpiresAt) {
			delete(s.tokens, token)
			removed++
		}
	}
	s.mu.Unlock()
	return removed
}

func (s *TokenStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}

// SetNowFunc sets the clock function used for testing.
func (s *TokenStore) SetNowFunc(fn func() time.Time) {
	s.nowFn = fn
}

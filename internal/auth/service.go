// Package auth is the authentication collaborator: accounts with bcrypt
// passwords, opaque session tokens and an observable sign-in/sign-out stream.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"expensewise/internal/cache"
)

const minPasswordLen = 6

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
)

type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Repository persists accounts. Store backends implement it.
type Repository interface {
	CreateUser(ctx context.Context, u User) error
	UserByEmail(ctx context.Context, email string) (User, error)
	UserByID(ctx context.Context, id string) (User, error)
	ListUserIDs(ctx context.Context) ([]string, error)
}

type Session struct {
	Token     string
	UserID    string
	Email     string
	ExpiresAt time.Time
}

type EventType string

const (
	SignedIn  EventType = "signed_in"
	SignedOut EventType = "signed_out"
)

type Event struct {
	Type   EventType
	UserID string
}

type Service struct {
	repo     Repository
	sessions *cache.LRUCache[Session]
	ttl      time.Duration

	mu        sync.Mutex
	listeners map[uint64]func(Event)
	nextID    uint64

	// active holds each user's live session tokens. SignedOut is emitted when
	// the last one ends, whether by logout, expiry or eviction.
	activeMu sync.Mutex
	active   map[string]map[string]struct{}
}

func NewService(repo Repository, ttl time.Duration, maxSessions int) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if maxSessions <= 0 {
		maxSessions = 10000
	}
	s := &Service{
		repo:      repo,
		sessions:  cache.NewLRUCache[Session](maxSessions, ttl),
		ttl:       ttl,
		listeners: make(map[uint64]func(Event)),
		active:    make(map[string]map[string]struct{}),
	}
	s.sessions.OnEvict(func(token string, sess Session) {
		s.endSession(token, sess.UserID)
	})
	return s
}

// Sessions exposes the session cache so it can be registered for cleanup.
func (s *Service) Sessions() cache.Cleaner {
	return s.sessions
}

func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// SignUp creates an account and starts a session for it.
func (s *Service) SignUp(ctx context.Context, email, password string) (Session, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return Session{}, err
	}
	if len(password) < minPasswordLen {
		return Session{}, ErrWeakPassword
	}
	if _, err := s.repo.UserByEmail(ctx, email); err == nil {
		return Session{}, ErrEmailTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return Session{}, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return Session{}, err
	}
	u := User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		return Session{}, fmt.Errorf("create user: %w", err)
	}
	return s.startSession(u)
}

// Login verifies credentials and starts a session.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return Session{}, ErrInvalidCredentials
	}
	u, err := s.repo.UserByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, fmt.Errorf("lookup user: %w", err)
	}
	if !ComparePasswords(u.PasswordHash, password) {
		return Session{}, ErrInvalidCredentials
	}
	return s.startSession(u)
}

// Logout ends the session. Unknown tokens are ignored. Other sessions of the
// same user stay signed in.
func (s *Service) Logout(token string) {
	sess, ok := s.sessions.Get(token)
	if !ok {
		return
	}
	s.sessions.Delete(token)
	s.endSession(token, sess.UserID)
}

// ActiveSessions reports how many unexpired sessions uid holds.
func (s *Service) ActiveSessions(uid string) int {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	return len(s.active[uid])
}

func (s *Service) endSession(token, uid string) {
	s.activeMu.Lock()
	tokens := s.active[uid]
	if _, ok := tokens[token]; !ok {
		s.activeMu.Unlock()
		return
	}
	delete(tokens, token)
	last := len(tokens) == 0
	if last {
		delete(s.active, uid)
	}
	s.activeMu.Unlock()

	if last {
		s.emit(Event{Type: SignedOut, UserID: uid})
	}
}

// CurrentUser resolves a session token.
func (s *Service) CurrentUser(token string) (Session, bool) {
	if token == "" {
		return Session{}, false
	}
	return s.sessions.Get(token)
}

// Subscribe registers fn for auth-state changes and returns its cancel func.
func (s *Service) Subscribe(fn func(Event)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Service) startSession(u User) (Session, error) {
	token, err := newToken()
	if err != nil {
		return Session{}, err
	}
	sess := Session{
		Token:     token,
		UserID:    u.ID,
		Email:     u.Email,
		ExpiresAt: time.Now().Add(s.ttl),
	}
	s.activeMu.Lock()
	if s.active[u.ID] == nil {
		s.active[u.ID] = make(map[string]struct{})
	}
	s.active[u.ID][token] = struct{}{}
	s.activeMu.Unlock()

	s.sessions.Set(token, sess)
	s.emit(Event{Type: SignedIn, UserID: u.ID})
	return sess, nil
}

func (s *Service) emit(ev Event) {
	s.mu.Lock()
	fns := make([]func(Event), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"medicapp-sync/internal/domain"
	"medicapp-sync/internal/repository"
	"medicapp-sync/pkg/jwt"

	"go.uber.org/zap"
)

// SessionService keeps the single logical authentication session with
// sliding-window expiry. Activity refreshes the inactivity timer; the timer
// firing is what pushes the absolute expiry forward, via RenewSession.
type SessionService struct {
	store          repository.SessionStore
	secret         string
	duration       time.Duration
	renewThreshold time.Duration
	logger         *zap.Logger

	now func() time.Time

	activityCh chan struct{}

	mu        sync.Mutex
	subs      map[int]func(*domain.SessionUser)
	nextSubID int
}

func NewSessionService(
	store repository.SessionStore,
	secret string,
	duration, renewThreshold time.Duration,
	logger *zap.Logger,
) *SessionService {
	return &SessionService{
		store:          store,
		secret:         secret,
		duration:       duration,
		renewThreshold: renewThreshold,
		logger:         logger,
		now:            time.Now,
		activityCh:     make(chan struct{}, 1),
		subs:           make(map[int]func(*domain.SessionUser)),
	}
}

// Run drives the inactivity timer. Each activity event resets it; when it
// fires, RenewSession decides whether the expiry moves.
func (s *SessionService) Run(ctx context.Context) {
	timer := time.NewTimer(s.renewThreshold)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.activityCh:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(s.renewThreshold)
		case <-timer.C:
			s.RenewSession()
			timer.Reset(s.renewThreshold)
		}
	}
}

// CreateSession mints a token, persists the envelope, and tells subscribers
// who is signed in.
func (s *SessionService) CreateSession(user domain.SessionUser) (*domain.Session, error) {
	token, err := jwt.GenerateToken(user.ID, s.duration, s.secret)
	if err != nil {
		return nil, err
	}

	now := s.now()
	session := &domain.Session{
		Token:        token,
		ExpiresAt:    now.Add(s.duration),
		LastActivity: now,
		User:         user,
	}

	if err := s.store.SaveSession(session); err != nil {
		return nil, err
	}

	s.notify(&session.User)
	return session, nil
}

// GetCurrentSession returns the signed-in user, or nil when there is none.
// The denormalized user key answers the common logged-out case without
// touching the envelope; the envelope is only parsed for the expiry check.
// An expired or corrupt persisted session is cleared as a side effect; it
// degrades to logged-out, never to an error.
func (s *SessionService) GetCurrentSession() (*domain.SessionUser, error) {
	user, err := s.store.LoadSessionUser()
	if err != nil {
		if errors.Is(err, repository.ErrSessionCorrupt) {
			s.logger.Warn("clearing corrupt session state")
			return nil, s.ClearSession()
		}
		return nil, err
	}
	if user == nil {
		return nil, nil
	}

	session, err := s.store.LoadSession()
	if err != nil {
		if errors.Is(err, repository.ErrSessionCorrupt) {
			s.logger.Warn("clearing corrupt session state")
			return nil, s.ClearSession()
		}
		return nil, err
	}
	if session == nil {
		// A user copy without its envelope means a half-written session.
		s.logger.Warn("clearing desynced session state")
		return nil, s.ClearSession()
	}

	if session.Expired(s.now()) {
		return nil, s.ClearSession()
	}

	return user, nil
}

// RenewSession extends the expiry by a full duration when the session has
// gone inactive past the renewal threshold. Returns false only when the
// session is already gone or past its absolute expiry.
func (s *SessionService) RenewSession() bool {
	session, err := s.store.LoadSession()
	if err != nil {
		if errors.Is(err, repository.ErrSessionCorrupt) {
			_ = s.ClearSession()
		}
		return false
	}
	if session == nil {
		return false
	}

	now := s.now()
	if session.Expired(now) {
		_ = s.ClearSession()
		return false
	}

	if now.Sub(session.LastActivity) >= s.renewThreshold {
		session.ExpiresAt = now.Add(s.duration)
		if err := s.store.SaveSession(session); err != nil {
			s.logger.Error("failed to persist renewed session", zap.Error(err))
			return true
		}
		s.logger.Debug("session renewed", zap.Time("expires_at", session.ExpiresAt))
	}

	return true
}

// UpdateActivity refreshes the last-activity timestamp of a still-valid
// session. It does not itself extend the expiry.
func (s *SessionService) UpdateActivity() {
	session, err := s.store.LoadSession()
	if err != nil || session == nil {
		return
	}
	if session.Expired(s.now()) {
		return
	}

	session.LastActivity = s.now()
	if err := s.store.SaveSession(session); err != nil {
		s.logger.Error("failed to persist session activity", zap.Error(err))
		return
	}

	select {
	case s.activityCh <- struct{}{}:
	default:
	}
}

// ClearSession removes both persisted session keys and notifies subscribers
// with nil.
func (s *SessionService) ClearSession() error {
	if err := s.store.ClearSession(); err != nil {
		return err
	}
	s.notify(nil)
	return nil
}

// GetTimeRemaining reports whole minutes until expiry, rounded up, floored
// at zero.
func (s *SessionService) GetTimeRemaining() int {
	session, err := s.store.LoadSession()
	if err != nil || session == nil {
		return 0
	}

	remaining := session.ExpiresAt.Sub(s.now())
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Minutes()))
}

// OnSessionChange registers a subscriber, invokes it immediately with the
// current state, and returns an unsubscribe function.
func (s *SessionService) OnSessionChange(fn func(*domain.SessionUser)) func() {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = fn
	s.mu.Unlock()

	current, _ := s.GetCurrentSession()
	fn(current)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// Authenticate resolves a bearer token to the current session's user. Any
// mismatch, expiry, or verification failure reads as "not signed in". A
// successful call counts as user activity.
func (s *SessionService) Authenticate(token string) *domain.SessionUser {
	session, err := s.store.LoadSession()
	if err != nil || session == nil {
		return nil
	}
	if session.Expired(s.now()) || session.Token != token {
		return nil
	}
	if _, err := jwt.ValidateToken(token, s.secret); err != nil {
		return nil
	}

	s.UpdateActivity()

	user := session.User
	return &user
}

func (s *SessionService) notify(user *domain.SessionUser) {
	s.mu.Lock()
	subs := make([]func(*domain.SessionUser), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(user)
	}
}

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/fjod/tranex/internal/domain"
	"github.com/fjod/tranex/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const DefaultKeyPrefix = "tranex-auth"

var (
	ErrNotSignedIn    = errors.New("not signed in")
	ErrSessionExpired = errors.New("session expired")
	ErrUnavailable    = errors.New("authentication service unavailable")
)

// Result is what every Service operation returns. Failures are reported in
// Error and never as Go errors, so callers can render them directly.
type Result struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	User    *domain.User    `json:"user,omitempty"`
	Session *domain.Session `json:"session,omitempty"`
}

func failure(err error) Result {
	return Result{Error: err.Error()}
}

// Service keeps one auth session per browser session in storage.
type Service struct {
	provider   Provider
	storage    storage.Storage
	keyPrefix  string
	redirectTo string
	log        *zap.Logger
	now        func() time.Time

	refreshes singleflight.Group // refresh tokens are single use
}

func NewService(p Provider, st storage.Storage, redirectTo string, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		provider:   p,
		storage:    st,
		keyPrefix:  DefaultKeyPrefix,
		redirectTo: redirectTo,
		log:        log,
		now:        time.Now,
	}
}

func (s *Service) key(sessionID string) string {
	return s.keyPrefix + ":" + sessionID
}

// SignUp registers a user. When the provider requires email confirmation no
// session is stored and Result.Session is nil.
func (s *Service) SignUp(ctx context.Context, sessionID, email, password, fullName string) Result {
	var metadata map[string]any
	if fullName != "" {
		metadata = map[string]any{"full_name": fullName}
	}
	user, session, err := s.provider.SignUp(ctx, email, password, metadata)
	if err != nil {
		s.log.Warn("sign up failed", zap.Error(err))
		return failure(providerFailure(err))
	}
	if session != nil {
		s.save(ctx, sessionID, session)
	}
	return Result{Success: true, User: user, Session: session}
}

func (s *Service) SignIn(ctx context.Context, sessionID, email, password string) Result {
	session, err := s.provider.SignIn(ctx, email, password)
	if err != nil {
		s.log.Warn("sign in failed", zap.Error(err))
		return failure(providerFailure(err))
	}
	s.save(ctx, sessionID, session)
	user := session.User
	return Result{Success: true, User: &user, Session: session}
}

// SignOut ends the provider session and always forgets the local one.
func (s *Service) SignOut(ctx context.Context, sessionID string) Result {
	session, err := s.load(ctx, sessionID)
	if errors.Is(err, ErrNotSignedIn) {
		return Result{Success: true}
	}
	s.forget(ctx, sessionID)
	if err != nil {
		return Result{Success: true}
	}

	if err := s.provider.SignOut(ctx, session.AccessToken); err != nil {
		s.log.Warn("sign out failed", zap.Error(err))
		return failure(providerFailure(err))
	}
	return Result{Success: true}
}

func (s *Service) ResetPassword(ctx context.Context, email string) Result {
	if err := s.provider.RecoverPassword(ctx, email, s.redirectTo); err != nil {
		s.log.Warn("password reset failed", zap.Error(err))
		return failure(providerFailure(err))
	}
	return Result{Success: true}
}

func (s *Service) UpdatePassword(ctx context.Context, sessionID, password string) Result {
	session, err := s.load(ctx, sessionID)
	if err != nil {
		return failure(err)
	}
	user, err := s.provider.UpdatePassword(ctx, session.AccessToken, password)
	if err != nil {
		s.log.Warn("password update failed", zap.Error(err))
		s.forgetIfRejected(ctx, sessionID, err)
		return failure(providerFailure(err))
	}
	session.User = *user
	s.save(ctx, sessionID, session)
	return Result{Success: true, User: user}
}

// CurrentUser asks the provider who owns the stored token.
func (s *Service) CurrentUser(ctx context.Context, sessionID string) Result {
	session, err := s.load(ctx, sessionID)
	if err != nil {
		return failure(err)
	}
	user, err := s.provider.GetUser(ctx, session.AccessToken)
	if err != nil {
		s.log.Warn("get user failed", zap.Error(err))
		s.forgetIfRejected(ctx, sessionID, err)
		return failure(providerFailure(err))
	}
	return Result{Success: true, User: user}
}

// CurrentSession reports the stored session without a provider round trip.
// No session is a successful result with a nil Session.
func (s *Service) CurrentSession(ctx context.Context, sessionID string) Result {
	session, err := s.load(ctx, sessionID)
	if errors.Is(err, ErrNotSignedIn) {
		return Result{Success: true}
	}
	if err != nil {
		return failure(err)
	}
	user := session.User
	return Result{Success: true, User: &user, Session: session}
}

// load returns ErrNotSignedIn or ErrSessionExpired for missing, unreadable
// and expired sessions. An expired session is refreshed when it carries a
// refresh token and removed when that fails.
func (s *Service) load(ctx context.Context, sessionID string) (*domain.Session, error) {
	raw, err := s.storage.Get(ctx, s.key(sessionID))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotSignedIn
	}
	if err != nil {
		s.log.Error("auth session read failed", zap.String("session_id", sessionID), zap.Error(err))
		return nil, ErrNotSignedIn
	}

	var session domain.Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil || session.AccessToken == "" {
		s.log.Warn("discarding unreadable auth session", zap.String("session_id", sessionID))
		s.forget(ctx, sessionID)
		return nil, ErrNotSignedIn
	}
	if session.Expired(s.now()) {
		return s.refresh(ctx, sessionID, &session)
	}
	return &session, nil
}

func (s *Service) refresh(ctx context.Context, sessionID string, expired *domain.Session) (*domain.Session, error) {
	if expired.RefreshToken == "" {
		s.forget(ctx, sessionID)
		return nil, ErrSessionExpired
	}

	v, err, _ := s.refreshes.Do(sessionID, func() (interface{}, error) {
		fresh, err := s.provider.RefreshSession(ctx, expired.RefreshToken)
		if err != nil || fresh.AccessToken == "" || fresh.Expired(s.now()) {
			s.log.Info("auth session refresh failed", zap.String("session_id", sessionID), zap.Error(err))
			s.forget(ctx, sessionID)
			return nil, ErrSessionExpired
		}
		if fresh.User.ID == "" {
			fresh.User = expired.User
		}
		s.save(ctx, sessionID, fresh)
		s.log.Debug("auth session refreshed", zap.String("session_id", sessionID))
		return fresh, nil
	})
	if err != nil {
		return nil, err
	}
	session := *v.(*domain.Session)
	return &session, nil
}

func (s *Service) save(ctx context.Context, sessionID string, session *domain.Session) {
	data, err := json.Marshal(session)
	if err != nil {
		s.log.Error("auth session encode failed", zap.Error(err))
		return
	}
	if err := s.storage.Set(ctx, s.key(sessionID), string(data)); err != nil {
		s.log.Error("auth session write failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (s *Service) forget(ctx context.Context, sessionID string) {
	if err := s.storage.Delete(ctx, s.key(sessionID)); err != nil {
		s.log.Error("auth session delete failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (s *Service) forgetIfRejected(ctx context.Context, sessionID string, err error) {
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Status == http.StatusUnauthorized {
		s.forget(ctx, sessionID)
	}
}

// providerFailure keeps provider messages (bad credentials, weak password)
// and hides transport details.
func providerFailure(err error) error {
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Status < http.StatusInternalServerError {
		return errors.New(pe.Message)
	}
	return ErrUnavailable
}

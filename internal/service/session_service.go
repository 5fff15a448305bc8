package service

import (
	"context"
	"errors"
	"fmt"

	"ticketing-service/internal/auth"
	"ticketing-service/internal/models"
	"ticketing-service/internal/store"
	"ticketing-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UserStore is the slice of the persistence layer the auth paths need.
// *store.Store satisfies it.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// SessionStore persists refresh-token lineages. *store.Store satisfies it.
type SessionStore interface {
	CreateSession(ctx context.Context, session *models.Session) error
	GetSessionByID(ctx context.Context, id string) (*models.Session, error)
	RotateSession(ctx context.Context, id, oldFingerprint, newFingerprint string) (int64, error)
	RevokeSession(ctx context.Context, id string) error
	RevokeUserSessions(ctx context.Context, userID string) error
}

// TokenPair is handed to the HTTP layer; the refresh token travels only in an
// HTTP-only cookie, never in a response body.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// SessionService issues and rotates token pairs and detects refresh token
// replay. One session row per lineage; replay of any rotated-out token
// revokes the whole lineage.
type SessionService struct {
	users    UserStore
	sessions SessionStore
	tokens   *auth.TokenService
	logger   *zap.Logger
}

// NewSessionService creates a new session service
func NewSessionService(users UserStore, sessions SessionStore, tokens *auth.TokenService) *SessionService {
	return &SessionService{
		users:    users,
		sessions: sessions,
		tokens:   tokens,
		logger:   util.GetLogger(),
	}
}

// Register creates a user account and issues its first token pair.
func (s *SessionService) Register(ctx context.Context, name, email, password string) (*models.User, *TokenPair, error) {
	ctx, span := util.StartSpan(ctx, "SessionService.Register")
	defer span.End()

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, nil, err
	}

	user := &models.User{
		ID:           uuid.New().String(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, nil, err
	}

	pair, err := s.IssuePair(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("User registered", zap.String("user_id", user.ID))
	return user, pair, nil
}

// Login verifies credentials and issues a fresh token pair.
func (s *SessionService) Login(ctx context.Context, email, password string) (*models.User, *TokenPair, error) {
	ctx, span := util.StartSpan(ctx, "SessionService.Login")
	defer span.End()

	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, nil, err
	}

	if !auth.CheckPassword(user.PasswordHash, password) {
		return nil, nil, ErrInvalidCredentials
	}

	pair, err := s.IssuePair(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("User logged in", zap.String("user_id", user.ID))
	return user, pair, nil
}

// IssuePair starts a new session lineage and returns its first token pair.
func (s *SessionService) IssuePair(ctx context.Context, userID string) (*TokenPair, error) {
	sessionID := uuid.New().String()

	refresh, err := s.tokens.MintRefreshToken(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to mint refresh token: %w", err)
	}

	session := &models.Session{
		ID:              sessionID,
		UserID:          userID,
		Fingerprint:     refresh.Fingerprint,
		RotationVersion: 1,
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	access, err := s.tokens.MintAccessToken(userID)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh.Token(),
	}, nil
}

// Rotate exchanges a valid refresh token for a fresh pair. The fingerprint
// check-and-replace is a single conditional update: of two concurrent calls
// bearing the same token, exactly one rotates. The loser's fingerprint no
// longer matches, which is indistinguishable from replay of a stolen token,
// so the whole lineage is revoked.
func (s *SessionService) Rotate(ctx context.Context, presented string) (*TokenPair, error) {
	ctx, span := util.StartSpan(ctx, "SessionService.Rotate")
	defer span.End()

	sessionID, fingerprint, err := s.tokens.ParseRefreshToken(presented)
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.GetSessionByID(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, auth.ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}

	if session.Revoked() {
		return nil, ErrSessionRevoked
	}

	next, err := s.tokens.MintRefreshToken(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to mint refresh token: %w", err)
	}

	version, err := s.sessions.RotateSession(ctx, sessionID, fingerprint, next.Fingerprint)
	if errors.Is(err, store.ErrStaleFingerprint) {
		return nil, s.handleStaleRotation(ctx, session)
	}
	if err != nil {
		return nil, err
	}

	util.TokenRotationsTotal.Inc()
	s.logger.Info("Refresh token rotated",
		zap.String("session_id", sessionID),
		zap.Int64("rotation_version", version))

	access, err := s.tokens.MintAccessToken(session.UserID)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: next.Token(),
	}, nil
}

// handleStaleRotation resolves a failed fingerprint check-and-replace: either
// the session was revoked concurrently, or a rotated-out token was presented.
// The latter is treated as theft and never silently ignored.
func (s *SessionService) handleStaleRotation(ctx context.Context, session *models.Session) error {
	current, err := s.sessions.GetSessionByID(ctx, session.ID)
	if err == nil && current.Revoked() {
		return ErrSessionRevoked
	}

	util.TokenReplaysDetectedTotal.Inc()
	util.SessionsRevokedTotal.WithLabelValues("replay").Inc()
	s.logger.Warn("Stale refresh token replayed, revoking session lineage",
		zap.String("session_id", session.ID),
		zap.String("user_id", session.UserID))

	if err := s.sessions.RevokeSession(ctx, session.ID); err != nil {
		s.logger.Error("Failed to revoke session after replay",
			zap.String("session_id", session.ID),
			zap.Error(err))
	}

	return auth.ErrInvalidToken
}

// Logout revokes every active lineage for the user.
func (s *SessionService) Logout(ctx context.Context, userID string) error {
	ctx, span := util.StartSpan(ctx, "SessionService.Logout")
	defer span.End()

	if err := s.sessions.RevokeUserSessions(ctx, userID); err != nil {
		return err
	}

	util.SessionsRevokedTotal.WithLabelValues("logout").Inc()
	s.logger.Info("User sessions revoked", zap.String("user_id", userID))
	return nil
}

// VerifyAccess validates an access token locally and returns its user id.
func (s *SessionService) VerifyAccess(token string) (string, error) {
	return s.tokens.VerifyAccessToken(token)
}

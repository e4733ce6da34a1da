package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/lost-and-found/internal/metrics"
	"github.com/iliyamo/lost-and-found/internal/model"
	"github.com/iliyamo/lost-and-found/internal/repository"
	"github.com/iliyamo/lost-and-found/internal/session"
	"github.com/iliyamo/lost-and-found/internal/utils"
)

// Ban defaults.
const (
	DefaultBanDuration = "24h"
	DefaultBanReason   = "Violation of terms"
	NoBanEnd           = "none"
	PermanentBan       = "permanent"

	deletedReason        = "Account deleted by administrator"
	cascadeDeletedReason = "User account deleted"
)

// AuthConfig carries token and hashing settings.
type AuthConfig struct {
	JWTSecret      string
	AccessTTLMin   int
	RefreshTTLDays int
	BcryptCost     int
}

// Session is the result of a successful sign-in or refresh.
type Session struct {
	User           *model.User `json:"user"`
	AccessToken    string      `json:"access_token"`
	AccessExpires  time.Time   `json:"access_expires"`
	RefreshToken   string      `json:"refresh_token"`
	RefreshExpires time.Time   `json:"refresh_expires"`
}

// AuthStore owns account lifecycle: registration, sign-in, token refresh,
// role edits, bans, soft deletion and restoration. It also mirrors the
// signed-in identity of a client and persists its tokens through a
// session.Store.
type AuthStore struct {
	d        Deps
	cfg      AuthConfig
	sessions session.Store

	mu      sync.RWMutex
	current *model.User
}

func NewAuthStore(d Deps, cfg AuthConfig, sessions session.Store) *AuthStore {
	if sessions == nil {
		sessions = &session.MemoryStore{}
	}
	return &AuthStore{d: d, cfg: cfg, sessions: sessions}
}

func now() time.Time { return time.Now().UTC() }

// Register creates an account with the given profile. Role 0 registers a
// regular user.
func (s *AuthStore) Register(ctx context.Context, email, password, fullName string, role model.Role) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, newError(CodeInvalidInput, "a valid email is required")
	}
	if role == model.RoleNone {
		role = model.RoleUser
	}
	if !role.Valid() {
		return nil, newError(CodeInvalidInput, "unknown role")
	}
	t := now()
	md := model.Metadata{FullName: strings.TrimSpace(fullName), Role: role, LastUpdated: &t}
	amd := model.AppMetadata{
		Role:        role,
		Status:      model.StatusActive,
		Permissions: []string{},
		CreatedBy:   model.SystemActor,
	}
	u, err := s.d.Users.Create(ctx, email, password, md, amd, s.cfg.BcryptCost)
	switch {
	case errors.Is(err, repository.ErrEmailExists):
		return nil, newError(CodeConflict, "email already exists")
	case errors.Is(err, utils.ErrWeakPassword):
		return nil, wrapError(CodeInvalidInput, "password rejected", err)
	case err != nil:
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	s.d.Log.Info("user registered", zap.String("user_id", u.ID), zap.Int("role", int(role)))
	return u, nil
}

// Login verifies credentials and issues a token pair without touching the
// client-side state. Deleted accounts and accounts under an active ban are
// refused.
func (s *AuthStore) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.d.Users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, repository.ErrNotFound) {
		metrics.AuthAttempts.WithLabelValues("invalid").Inc()
		return nil, newError(CodeInvalidLogin, "invalid credentials")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		metrics.AuthAttempts.WithLabelValues("invalid").Inc()
		return nil, newError(CodeInvalidLogin, "invalid credentials")
	}
	if err := checkActive(u); err != nil {
		metrics.AuthAttempts.WithLabelValues("refused").Inc()
		return nil, err
	}
	sess, err := s.issue(ctx, u)
	if err != nil {
		return nil, err
	}
	metrics.AuthAttempts.WithLabelValues("success").Inc()
	return sess, nil
}

func checkActive(u *model.User) error {
	if u.IsDeleted() {
		return newError(CodeUserDeleted, "this account has been deleted")
	}
	if u.BanActive(now()) {
		msg := "this account is banned"
		if u.AppMetadata.BanReason != "" {
			msg += ": " + u.AppMetadata.BanReason
		}
		return newError(CodeUserBanned, msg)
	}
	return nil
}

func (s *AuthStore) issue(ctx context.Context, u *model.User) (*Session, error) {
	access, err := utils.NewAccessToken(s.cfg.JWTSecret, u.ID, int(u.Role()), s.cfg.AccessTTLMin)
	if err != nil {
		return nil, fmt.Errorf("issue access failed: %w", err)
	}
	refresh, err := utils.NewRefreshToken(s.cfg.RefreshTTLDays)
	if err != nil {
		return nil, fmt.Errorf("issue refresh failed: %w", err)
	}
	if err := s.d.Tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return nil, fmt.Errorf("save refresh failed: %w", err)
	}
	return &Session{
		User:           u,
		AccessToken:    access.Token,
		AccessExpires:  access.Exp,
		RefreshToken:   refresh.Raw,
		RefreshExpires: refresh.Exp,
	}, nil
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// pair is issued.
func (s *AuthStore) Refresh(ctx context.Context, refreshRaw string) (*Session, error) {
	hash := utils.HashRefreshRaw(refreshRaw)
	uid, err := s.d.Tokens.ValidateRefresh(ctx, hash)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, newError(CodeInvalidLogin, "invalid refresh token")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to validate refresh token: %w", err)
	}
	u, err := s.d.Users.GetByID(ctx, uid)
	if err != nil {
		return nil, s.lookupError(err)
	}
	if err := checkActive(u); err != nil {
		return nil, err
	}
	if err := s.d.Tokens.RevokeByHash(ctx, hash); err != nil {
		return nil, fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return s.issue(ctx, u)
}

// Logout revokes one refresh token.
func (s *AuthStore) Logout(ctx context.Context, refreshRaw string) error {
	if err := s.d.Tokens.RevokeByHash(ctx, utils.HashRefreshRaw(refreshRaw)); err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}

// SignIn logs in, persists the tokens and records the signed-in user.
func (s *AuthStore) SignIn(ctx context.Context, email, password string) (*Session, error) {
	sess, err := s.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := s.remember(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *AuthStore) remember(sess *Session) error {
	err := s.sessions.Save(session.Tokens{
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		UserID:       sess.User.ID,
	})
	if err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	s.mu.Lock()
	s.current = sess.User
	s.mu.Unlock()
	return nil
}

// SignOut revokes the persisted refresh token and forgets the session.
func (s *AuthStore) SignOut(ctx context.Context) error {
	tokens, err := s.sessions.Load()
	if err == nil && tokens.RefreshToken != "" {
		if err := s.Logout(ctx, tokens.RefreshToken); err != nil {
			s.d.Log.Warn("refresh token not revoked on sign-out", zap.Error(err))
		}
	}
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
	return s.sessions.Clear()
}

// Initialize restores the persisted session. An expired access token is
// renewed with the refresh token; a session that cannot be renewed is
// cleared. It returns nil without error when nobody is signed in.
func (s *AuthStore) Initialize(ctx context.Context) (*model.User, error) {
	tokens, err := s.sessions.Load()
	if errors.Is(err, session.ErrNoSession) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var u *model.User
	if claims, err := utils.ParseAccessToken(s.cfg.JWTSecret, tokens.AccessToken); err == nil {
		u, err = s.d.Users.GetByID(ctx, claims.UserID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("failed to load user: %w", err)
		}
		if u != nil && checkActive(u) != nil {
			u = nil
		}
	}
	if u == nil && tokens.RefreshToken != "" {
		sess, err := s.Refresh(ctx, tokens.RefreshToken)
		if err == nil {
			return sess.User, s.remember(sess)
		}
		s.d.Log.Info("stored session could not be refreshed", zap.Error(err))
	}
	if u == nil {
		return nil, s.sessions.Clear()
	}
	s.mu.Lock()
	s.current = u
	s.mu.Unlock()
	return u, nil
}

// Current returns the signed-in user, or nil.
func (s *AuthStore) Current() *model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Tokens returns the persisted tokens of the signed-in client.
func (s *AuthStore) Tokens() (session.Tokens, error) { return s.sessions.Load() }

// GetUser fetches one account.
func (s *AuthStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	u, err := s.d.Users.GetByID(ctx, id)
	if err != nil {
		return nil, s.lookupError(err)
	}
	return u, nil
}

func (s *AuthStore) lookupError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return newError(CodeUserNotFound, "user not found")
	}
	return wrapError(CodeUnexpected, "failed to load user", err)
}

// requireAdmin checks that actorID may perform administrative actions.
// model.SystemActor is always allowed.
func (s *AuthStore) requireAdmin(ctx context.Context, actorID string) error {
	if actorID == model.SystemActor {
		return nil
	}
	actor, err := s.d.Users.GetByID(ctx, actorID)
	if errors.Is(err, repository.ErrNotFound) {
		return newError(CodePermissionDenied, "insufficient permissions")
	}
	if err != nil {
		return wrapError(CodeUnexpected, "failed to verify permissions", err)
	}
	if !actor.IsAdmin() || actor.IsDeleted() {
		return newError(CodePermissionDenied, "insufficient permissions")
	}
	return nil
}

// GetAllUsers lists every account. Admin only.
func (s *AuthStore) GetAllUsers(ctx context.Context, actorID string) ([]model.User, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	users, err := s.d.Users.List(ctx)
	if err != nil {
		return nil, wrapError(CodeUnexpected, "failed to list users", err)
	}
	return users, nil
}

// UsersByIDs resolves a set of ids to public summaries in one lookup.
// Unknown ids map to model.UnknownUser.
func (s *AuthStore) UsersByIDs(ctx context.Context, ids []string) (map[string]model.UserSummary, error) {
	out := make(map[string]model.UserSummary, len(ids))
	for _, id := range ids {
		out[id] = model.UnknownUser(id)
	}
	users, err := s.d.Users.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to look up users: %w", err)
	}
	for _, u := range users {
		out[u.ID] = u.Summary()
	}
	return out, nil
}

// AdminUserID returns the id of the admin that answers support threads.
func (s *AuthStore) AdminUserID(ctx context.Context) (string, error) {
	return adminUserID(ctx, s.d.Users)
}

// UpdateProfile changes the signed-in user's own display name.
func (s *AuthStore) UpdateProfile(ctx context.Context, userID, fullName string) (*model.User, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	t := now()
	u.Metadata.FullName = strings.TrimSpace(fullName)
	u.Metadata.LastUpdated = &t
	if err := s.d.Users.UpdateMetadata(ctx, userID, u.Metadata); err != nil {
		return nil, wrapError(CodeUnexpected, "failed to update profile", err)
	}
	s.refreshCurrent(u)
	return u, nil
}

// EditUser sets another account's display name and role. Admin only. An
// empty fullName keeps the current one.
func (s *AuthStore) EditUser(ctx context.Context, actorID, userID, fullName string, role model.Role) (*model.User, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, newError(CodeInvalidInput, "unknown role")
	}
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	t := now()
	if name := strings.TrimSpace(fullName); name != "" {
		u.Metadata.FullName = name
	}
	u.Metadata.Role = role
	u.Metadata.LastUpdated = &t
	u.AppMetadata.Role = role
	u.AppMetadata.UpdatedBy = actorID
	u.AppMetadata.LastUpdated = &t

	tx, err := s.d.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapError(CodeUnexpected, "failed to update user", err)
	}
	defer tx.Rollback()
	if err := s.d.Users.UpdateProfileTx(ctx, tx, userID, u.Metadata, u.AppMetadata); err != nil {
		return nil, wrapError(CodeUnexpected, "failed to update user", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, wrapError(CodeUnexpected, "failed to update user", err)
	}
	metrics.RecordModeration("edit")
	s.refreshCurrent(u)
	return u, nil
}

// ParseBanDuration turns a ban duration into its end time. An empty value
// means DefaultBanDuration; "none" and "permanent" mean no end.
func ParseBanDuration(duration string, from time.Time) (normalized string, until *time.Time, err error) {
	duration = strings.TrimSpace(duration)
	if duration == "" {
		duration = DefaultBanDuration
	}
	if duration == NoBanEnd || duration == PermanentBan {
		return duration, nil, nil
	}
	d, err := time.ParseDuration(duration)
	if err != nil || d <= 0 {
		return "", nil, newError(CodeInvalidDuration, fmt.Sprintf("invalid ban duration %q", duration))
	}
	end := from.Add(d)
	return duration, &end, nil
}

// BanUser bans userID for duration (Go duration syntax, or "none"). Admin
// only. Active refresh tokens of the user are revoked.
func (s *AuthStore) BanUser(ctx context.Context, actorID, userID, duration, reason string) (*model.User, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	t := now()
	duration, until, err := ParseBanDuration(duration, t)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(reason) == "" {
		reason = DefaultBanReason
	}
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	amd := &u.AppMetadata
	amd.Banned = true
	amd.BanDuration = duration
	amd.BanReason = reason
	amd.BannedAt = &t
	amd.BannedUntil = until
	amd.UnbannedAt = nil
	amd.UpdatedBy = actorID
	amd.LastUpdated = &t
	if !amd.Deleted {
		amd.Status = model.StatusBanned
	}
	if err := s.d.Users.UpdateAppMetadata(ctx, userID, *amd); err != nil {
		return nil, wrapError(CodeUnexpected, "failed to ban user", err)
	}
	if err := s.d.Tokens.RevokeAllForUser(ctx, userID); err != nil {
		s.d.Log.Warn("refresh tokens not revoked after ban", zap.String("user_id", userID), zap.Error(err))
	}
	metrics.RecordModeration("ban")
	s.d.Log.Info("user banned", zap.String("user_id", userID), zap.String("actor", actorID), zap.String("duration", duration))
	return u, nil
}

// UnbanUser lifts a ban. Admin only.
func (s *AuthStore) UnbanUser(ctx context.Context, actorID, userID string) (*model.User, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	t := now()
	amd := &u.AppMetadata
	amd.Banned = false
	amd.BanDuration = NoBanEnd
	amd.BanReason = ""
	amd.BannedAt = nil
	amd.BannedUntil = nil
	amd.UnbannedAt = &t
	amd.UpdatedBy = actorID
	amd.LastUpdated = &t
	if !amd.Deleted {
		amd.Status = model.StatusActive
	}
	if err := s.d.Users.UpdateAppMetadata(ctx, userID, *amd); err != nil {
		return nil, wrapError(CodeUnexpected, "failed to unban user", err)
	}
	metrics.RecordModeration("unban")
	return u, nil
}

// DeleteUser soft deletes an account. In one transaction it flags the
// user's items (posted or claimed), conversations and messages as deleted
// with the user's cascade marker, masks the message texts, revokes the user's
// refresh tokens and marks the account deleted and permanently banned.
// Admin only.
func (s *AuthStore) DeleteUser(ctx context.Context, actorID, userID string) (*model.User, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	if actorID == userID {
		return nil, newError(CodePermissionDenied, "administrators cannot delete their own account")
	}
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	t := now()
	amd := &u.AppMetadata
	amd.Deleted = true
	amd.DeletedAt = &t
	amd.DeletedBy = actorID
	amd.DeletedReason = deletedReason
	amd.OriginalEmail = u.Email
	amd.Status = model.StatusDeleted
	amd.Banned = true
	amd.BanDuration = PermanentBan
	amd.BanReason = deletedReason
	amd.BannedAt = &t
	amd.BannedUntil = nil
	amd.Restored = false
	amd.RestoredAt = nil
	amd.RestoredBy = ""
	amd.LastUpdated = &t

	tx, err := s.d.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapError(CodeUnexpected, "failed to delete user", err)
	}
	defer tx.Rollback()

	marker := model.CascadeMarkerFor(userID)
	items, err := s.d.Items.SoftDeleteByUserTx(ctx, tx, userID, marker, cascadeDeletedReason)
	if err != nil {
		return nil, wrapError(CodeUnexpected, "failed to delete user items", err)
	}
	convs, err := s.d.Conversations.SoftDeleteByUserTx(ctx, tx, userID, marker, cascadeDeletedReason)
	if err != nil {
		return nil, wrapError(CodeUnexpected, "failed to delete user conversations", err)
	}
	msgs, err := s.d.Messages.SoftDeleteByAuthorTx(ctx, tx, userID, marker)
	if err != nil {
		return nil, wrapError(CodeUnexpected, "failed to delete user messages", err)
	}
	if err := s.d.Tokens.RevokeAllForUserTx(ctx, tx, userID); err != nil {
		return nil, wrapError(CodeUnexpected, "failed to revoke user tokens", err)
	}
	if err := s.d.Users.UpdateAccountTx(ctx, tx, userID, *amd, false); err != nil {
		return nil, wrapError(CodeUnexpected, "failed to mark user as deleted", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, wrapError(CodeUnexpected, "failed to delete user", err)
	}
	u.EmailConfirmed = false

	metrics.RecordModeration("delete")
	s.d.Log.Info("user soft deleted",
		zap.String("user_id", userID), zap.String("actor", actorID),
		zap.Int64("items", items), zap.Int64("conversations", convs), zap.Int64("messages", msgs))
	return u, nil
}

// RestoreUser reverses DeleteUser: it clears the delete and ban state and
// restores exactly the rows the deletion flagged. Flagged items and
// conversations shared with a user who is still deleted stay deleted and
// are handed over to that user's marker, so they return with that user.
// Admin only.
func (s *AuthStore) RestoreUser(ctx context.Context, actorID, userID string) (*model.User, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.IsDeleted() {
		return nil, newError(CodeUserNotDeleted, "user is not deleted and doesn't need to be restored")
	}

	t := now()
	amd := &u.AppMetadata
	amd.Deleted = false
	amd.DeletedAt = nil
	amd.DeletedBy = ""
	amd.DeletedReason = ""
	amd.Status = model.StatusActive
	amd.Banned = false
	amd.BanDuration = ""
	amd.BanReason = ""
	amd.BannedAt = nil
	amd.BannedUntil = nil
	amd.Restored = true
	amd.RestoredAt = &t
	amd.RestoredBy = actorID
	amd.LastUpdated = &t

	marker := model.CascadeMarkerFor(userID)
	held, err := s.stillDeletedPartners(ctx, userID, marker)
	if err != nil {
		return nil, wrapError(CodeRestoreFailed, "failed to restore user", err)
	}

	tx, err := s.d.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapError(CodeRestoreFailed, "failed to restore user", err)
	}
	defer tx.Rollback()

	for _, p := range held {
		if _, err := s.d.Items.HandOverTx(ctx, tx, p, marker, model.CascadeMarkerFor(p)); err != nil {
			return nil, wrapError(CodeRestoreFailed, "failed to restore user items", err)
		}
		if _, err := s.d.Conversations.HandOverTx(ctx, tx, p, marker, model.CascadeMarkerFor(p)); err != nil {
			return nil, wrapError(CodeRestoreFailed, "failed to restore user conversations", err)
		}
	}
	if _, err := s.d.Items.RestoreByUserTx(ctx, tx, userID, marker); err != nil {
		return nil, wrapError(CodeRestoreFailed, "failed to restore user items", err)
	}
	if _, err := s.d.Conversations.RestoreByUserTx(ctx, tx, userID, marker); err != nil {
		return nil, wrapError(CodeRestoreFailed, "failed to restore user conversations", err)
	}
	if _, err := s.d.Messages.RestoreByAuthorTx(ctx, tx, userID, marker); err != nil {
		return nil, wrapError(CodeRestoreFailed, "failed to restore user messages", err)
	}
	if err := s.d.Users.UpdateAccountTx(ctx, tx, userID, *amd, true); err != nil {
		return nil, wrapError(CodeRestoreFailed, "failed to restore user", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, wrapError(CodeRestoreFailed, "failed to restore user", err)
	}
	u.EmailConfirmed = true

	metrics.RecordModeration("restore")
	s.d.Log.Info("user restored", zap.String("user_id", userID), zap.String("actor", actorID))
	return u, nil
}

// stillDeletedPartners returns the deleted users that share an item or a
// conversation flagged with marker. It runs before the restore transaction
// opens.
func (s *AuthStore) stillDeletedPartners(ctx context.Context, userID, marker string) ([]string, error) {
	fromItems, err := s.d.Items.CascadePartners(ctx, userID, marker)
	if err != nil {
		return nil, err
	}
	fromConvs, err := s.d.Conversations.CascadePartners(ctx, userID, marker)
	if err != nil {
		return nil, err
	}
	var held []string
	for _, id := range slices.Compact(slices.Sorted(slices.Values(append(fromItems, fromConvs...)))) {
		p, err := s.d.Users.GetByID(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if p.IsDeleted() {
			held = append(held, id)
		}
	}
	return held, nil
}

// ChangePassword replaces userID's password after verifying the current one.
func (s *AuthStore) ChangePassword(ctx context.Context, userID, current, next string) error {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if !utils.VerifyPassword(u.PasswordHash, current) {
		return newError(CodeInvalidLogin, "current password is incorrect")
	}
	hash, err := utils.HashPassword(next, s.cfg.BcryptCost)
	if errors.Is(err, utils.ErrWeakPassword) {
		return wrapError(CodeInvalidInput, "password rejected", err)
	}
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.d.Users.UpdatePassword(ctx, userID, hash); err != nil {
		return wrapError(CodeUnexpected, "failed to change password", err)
	}
	return nil
}

func (s *AuthStore) refreshCurrent(u *model.User) {
	s.mu.Lock()
	if s.current != nil && s.current.ID == u.ID {
		s.current = u
	}
	s.mu.Unlock()
}

// Package service holds the stores the HTTP handlers and the terminal
// client are built on: messages, conversations, items and accounts.
package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/iliyamo/lost-and-found/internal/logger"
	"github.com/iliyamo/lost-and-found/internal/model"
	"github.com/iliyamo/lost-and-found/internal/realtime"
	"github.com/iliyamo/lost-and-found/internal/repository"
)

// Realtime channel and table names.
const (
	TableMessages      = "messages"
	TableConversations = "conversations"
	TableItems         = "items"

	EventNewMessage = "new_message"
)

// MessageChannel returns the broadcast channel of a conversation.
func MessageChannel(conversationID string) string { return "message_" + conversationID }

// Deps bundles what the stores share.
type Deps struct {
	DB            *sql.DB
	Users         *repository.UserRepo
	Tokens        *repository.TokenRepo
	Items         *repository.ItemRepo
	Conversations *repository.ConversationRepo
	Messages      *repository.MessageRepo
	Bus           realtime.Broadcaster
	Feed          realtime.RowFeed
	Log           *zap.Logger
}

// NewDeps builds every repository over db. bus and feed may be nil, in
// which case realtime publication is skipped.
func NewDeps(db *sql.DB, bus realtime.Broadcaster, feed realtime.RowFeed, log *zap.Logger) Deps {
	return Deps{
		DB:            db,
		Users:         repository.NewUserRepo(db),
		Tokens:        repository.NewTokenRepo(db),
		Items:         repository.NewItemRepo(db),
		Conversations: repository.NewConversationRepo(db),
		Messages:      repository.NewMessageRepo(db),
		Bus:           bus,
		Feed:          feed,
		Log:           logger.OrNop(log),
	}
}

func (d Deps) publishChange(ctx context.Context, table, kind string, row any) {
	if d.Feed == nil {
		return
	}
	if err := d.Feed.PublishChange(ctx, table, kind, row); err != nil {
		d.Log.Warn("row change not published", zap.String("table", table), zap.String("kind", kind), zap.Error(err))
	}
}

// adminUserID returns the oldest account carrying the admin role.
func adminUserID(ctx context.Context, users *repository.UserRepo) (string, error) {
	admins, err := users.ListByRole(ctx, model.RoleAdmin)
	if err != nil {
		return "", wrapError(CodeUnexpected, "failed to look up admin", err)
	}
	for _, u := range admins {
		if !u.IsDeleted() {
			return u.ID, nil
		}
	}
	return "", newError(CodeNoAdmin, "no admin user is available")
}

// userRole returns the role of id, or RoleNone for unknown users.
func userRole(ctx context.Context, users *repository.UserRepo, id string) (model.Role, error) {
	u, err := users.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.RoleNone, nil
	}
	if err != nil {
		return model.RoleNone, err
	}
	return u.Role(), nil
}

package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/lost-and-found/internal/model"
)

// MessageRepo reads and writes the `messages` table. Reads skip soft-deleted
// rows; ordering is always created_at then id so equal timestamps stay stable.
type MessageRepo struct{ db *sql.DB }

func NewMessageRepo(db *sql.DB) *MessageRepo { return &MessageRepo{db: db} }

const messageColumns = "id,conversation_id,message,user_id,created_at,isread,deleted_at"

func scanMessage(s rowScanner) (*model.Message, error) {
	var (
		m         model.Message
		deletedAt sql.NullTime
	)
	if err := s.Scan(&m.ID, &m.ConversationID, &m.Message, &m.UserID, &m.CreatedAt, &m.IsRead, &deletedAt); err != nil {
		return nil, err
	}
	m.CreatedAt = m.CreatedAt.UTC()
	m.DeletedAt = timePtr(deletedAt)
	return &m, nil
}

// Create inserts an unread message and fills in its id and timestamp.
func (r *MessageRepo) Create(ctx context.Context, m *model.Message) error {
	m.CreatedAt = now()
	m.IsRead = false
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO messages (conversation_id, message, user_id, created_at, isread) VALUES (?,?,?,?,?)",
		m.ConversationID, m.Message, m.UserID, m.CreatedAt, false)
	if err != nil {
		return err
	}
	m.ID, err = res.LastInsertId()
	return err
}

// ListByConversation returns the live messages of a conversation in
// creation order.
func (r *MessageRepo) ListByConversation(ctx context.Context, conversationID string) ([]model.Message, error) {
	return r.list(ctx,
		"SELECT "+messageColumns+" FROM messages WHERE conversation_id=? AND deleted_at IS NULL ORDER BY created_at, id",
		conversationID)
}

// ListByConversations returns the live messages of several conversations,
// each group in creation order.
func (r *MessageRepo) ListByConversations(ctx context.Context, ids []string) ([]model.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ph, args := inClause(ids)
	return r.list(ctx,
		"SELECT "+messageColumns+" FROM messages WHERE conversation_id IN ("+ph+") AND deleted_at IS NULL ORDER BY conversation_id, created_at, id",
		args...)
}

func (r *MessageRepo) list(ctx context.Context, q string, args ...any) ([]model.Message, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// MarkRead flags every unread message of the conversation not authored by
// readerID and returns how many rows changed.
func (r *MessageRepo) MarkRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE messages SET isread=? WHERE conversation_id=? AND user_id<>? AND isread=? AND deleted_at IS NULL",
		true, conversationID, readerID, false)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountUnread counts live unread messages in conversationID not authored by
// readerID.
func (r *MessageRepo) CountUnread(ctx context.Context, conversationID, readerID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM messages WHERE conversation_id=? AND user_id<>? AND isread=? AND deleted_at IS NULL",
		conversationID, readerID, false).Scan(&n)
	return n, err
}

// CountUnreadForItem counts live unread messages for readerID across the
// live conversations about itemID.
func (r *MessageRepo) CountUnreadForItem(ctx context.Context, itemID int64, readerID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM messages m JOIN conversations c ON c.id = m.conversation_id"+
			" WHERE c.item_id=? AND c.deleted_at IS NULL AND m.user_id<>? AND m.isread=? AND m.deleted_at IS NULL",
		itemID, readerID, false).Scan(&n)
	return n, err
}

// CountUnreadByConversation groups live unread messages not authored by
// readerID by conversation, restricted to ids. Conversations without unread
// messages are absent from the result.
func (r *MessageRepo) CountUnreadByConversation(ctx context.Context, ids []string, readerID string) (map[string]int, error) {
	out := make(map[string]int)
	if len(ids) == 0 {
		return out, nil
	}
	ph, args := inClause(ids)
	args = append(args, readerID, false)
	rows, err := r.db.QueryContext(ctx,
		"SELECT conversation_id, COUNT(*) FROM messages WHERE conversation_id IN ("+ph+")"+
			" AND user_id<>? AND isread=? AND deleted_at IS NULL GROUP BY conversation_id",
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id string
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = n
	}
	return out, rows.Err()
}

// Count counts live messages.
func (r *MessageRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages WHERE deleted_at IS NULL").Scan(&n)
	return n, err
}

// SoftDeleteByAuthorTx masks and flags every live message authored by
// userID. The original text is kept in original_message; it must be
// assigned before message because MySQL applies SET clauses in order.
func (r *MessageRepo) SoftDeleteByAuthorTx(ctx context.Context, tx *sql.Tx, userID, by string) (int64, error) {
	res, err := tx.ExecContext(ctx,
		"UPDATE messages SET original_message=message, message=?, deleted_at=?, deleted_by=? WHERE user_id=? AND deleted_at IS NULL",
		model.DeletedMessageText, now(), by, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RestoreByAuthorTx reverses SoftDeleteByAuthorTx for rows carrying marker.
func (r *MessageRepo) RestoreByAuthorTx(ctx context.Context, tx *sql.Tx, userID, marker string) (int64, error) {
	res, err := tx.ExecContext(ctx,
		"UPDATE messages SET message=COALESCE(original_message, message), original_message=NULL, deleted_at=NULL, deleted_by=NULL"+
			" WHERE user_id=? AND deleted_by=?",
		userID, marker)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func inClause(ids []string) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(ids)), ","), args
}

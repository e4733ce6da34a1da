package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/iliyamo/lost-and-found/internal/model"
)

// ConversationRepo reads and writes the `conversations` table. The
// (scope_key, sender_id, receiver_id) unique index guarantees one
// conversation per item and participant pair.
type ConversationRepo struct{ db *sql.DB }

func NewConversationRepo(db *sql.DB) *ConversationRepo { return &ConversationRepo{db: db} }

const conversationColumns = "c.id,c.item_id,c.sender_id,c.receiver_id,c.created_at,c.deleted_at"

func scanConversation(s rowScanner, extra ...any) (*model.Conversation, error) {
	var (
		c         model.Conversation
		itemID    sql.NullInt64
		deletedAt sql.NullTime
	)
	dest := append([]any{&c.ID, &itemID, &c.SenderID, &c.ReceiverID, &c.CreatedAt, &deletedAt}, extra...)
	if err := s.Scan(dest...); err != nil {
		return nil, err
	}
	if itemID.Valid {
		v := itemID.Int64
		c.ItemID = &v
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.DeletedAt = timePtr(deletedAt)
	return &c, nil
}

func (r *ConversationRepo) list(ctx context.Context, q string, args ...any) ([]model.Conversation, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// Find looks up the conversation for an exact (item, sender, receiver)
// triple. A nil item selects the support scope.
func (r *ConversationRepo) Find(ctx context.Context, itemID *int64, senderID, receiverID string) (*model.Conversation, error) {
	c, err := scanConversation(r.db.QueryRowContext(ctx,
		"SELECT "+conversationColumns+" FROM conversations c WHERE c.scope_key=? AND c.sender_id=? AND c.receiver_id=?",
		model.ScopeKey(itemID), senderID, receiverID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// Create inserts c with a fresh id. A concurrent insert of the same triple
// yields ErrConflict.
func (r *ConversationRepo) Create(ctx context.Context, c *model.Conversation) error {
	c.ID = uuid.NewString()
	c.CreatedAt = now()
	var item any
	if c.ItemID != nil {
		item = *c.ItemID
	}
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO conversations (id, item_id, scope_key, sender_id, receiver_id, created_at) VALUES (?,?,?,?,?,?)",
		c.ID, item, model.ScopeKey(c.ItemID), c.SenderID, c.ReceiverID, c.CreatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

// GetByID fetches a live conversation.
func (r *ConversationRepo) GetByID(ctx context.Context, id string) (*model.Conversation, error) {
	c, err := scanConversation(r.db.QueryRowContext(ctx,
		"SELECT "+conversationColumns+" FROM conversations c WHERE c.id=? AND c.deleted_at IS NULL", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// ListByItem returns the live conversations about itemID, newest first.
func (r *ConversationRepo) ListByItem(ctx context.Context, itemID int64) ([]model.Conversation, error) {
	return r.list(ctx,
		"SELECT "+conversationColumns+" FROM conversations c WHERE c.item_id=? AND c.deleted_at IS NULL ORDER BY c.created_at DESC, c.id",
		itemID)
}

// ListSupport returns one page of support conversations, newest first.
func (r *ConversationRepo) ListSupport(ctx context.Context, limit, offset int) ([]model.Conversation, error) {
	return r.list(ctx,
		"SELECT "+conversationColumns+" FROM conversations c WHERE c.item_id IS NULL AND c.deleted_at IS NULL ORDER BY c.created_at DESC, c.id LIMIT ? OFFSET ?",
		limit, offset)
}

// CountSupport counts live support conversations.
func (r *ConversationRepo) CountSupport(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM conversations WHERE item_id IS NULL AND deleted_at IS NULL").Scan(&n)
	return n, err
}

// ListForUser returns the live conversations userID takes part in, newest
// first, with a summary of the item each one is about.
func (r *ConversationRepo) ListForUser(ctx context.Context, userID string) ([]model.Conversation, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+conversationColumns+", i.id, i.title, i.description, i.status"+
			" FROM conversations c LEFT JOIN items i ON i.id = c.item_id"+
			" WHERE (c.sender_id=? OR c.receiver_id=?) AND c.deleted_at IS NULL"+
			" ORDER BY c.created_at DESC, c.id",
		userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Conversation
	for rows.Next() {
		var (
			id                  sql.NullInt64
			title, desc, status sql.NullString
		)
		c, err := scanConversation(rows, &id, &title, &desc, &status)
		if err != nil {
			return nil, err
		}
		if id.Valid {
			c.Item = &model.ItemSummary{ID: id.Int64, Title: title.String, Description: desc.String, Status: status.String}
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// IDsForReader returns the ids of live conversations whose unread messages
// count towards readerID. Admins only see threads addressed to them; other
// users see every thread they take part in.
func (r *ConversationRepo) IDsForReader(ctx context.Context, readerID string, admin bool) ([]string, error) {
	q := "SELECT id FROM conversations WHERE (sender_id=? OR receiver_id=?) AND deleted_at IS NULL"
	args := []any{readerID, readerID}
	if admin {
		q = "SELECT id FROM conversations WHERE receiver_id=? AND sender_id<>? AND deleted_at IS NULL"
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountDistinctContacts counts the distinct senders that opened a
// conversation about itemID.
func (r *ConversationRepo) CountDistinctContacts(ctx context.Context, itemID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(DISTINCT sender_id) FROM conversations WHERE item_id=? AND deleted_at IS NULL",
		itemID).Scan(&n)
	return n, err
}

// Count counts live conversations.
func (r *ConversationRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM conversations WHERE deleted_at IS NULL").Scan(&n)
	return n, err
}

// SoftDeleteByUserTx flags every live conversation userID takes part in.
func (r *ConversationRepo) SoftDeleteByUserTx(ctx context.Context, tx *sql.Tx, userID, by, reason string) (int64, error) {
	res, err := tx.ExecContext(ctx,
		"UPDATE conversations SET deleted_at=?, deleted_by=?, deleted_reason=? WHERE (sender_id=? OR receiver_id=?) AND deleted_at IS NULL",
		now(), by, reason, userID, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CascadePartners returns the other participants of conversations flagged
// with marker.
func (r *ConversationRepo) CascadePartners(ctx context.Context, userID, marker string) ([]string, error) {
	return partners(ctx, r.db,
		"SELECT sender_id, receiver_id FROM conversations WHERE deleted_by=? AND (sender_id=? OR receiver_id=?)",
		userID, marker, userID, userID)
}

// HandOverTx moves marker to partnerMarker on flagged conversations with
// partnerID.
func (r *ConversationRepo) HandOverTx(ctx context.Context, tx *sql.Tx, partnerID, marker, partnerMarker string) (int64, error) {
	res, err := tx.ExecContext(ctx,
		"UPDATE conversations SET deleted_by=? WHERE deleted_by=? AND (sender_id=? OR receiver_id=?)",
		partnerMarker, marker, partnerID, partnerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RestoreByUserTx reverses SoftDeleteByUserTx for rows carrying marker.
func (r *ConversationRepo) RestoreByUserTx(ctx context.Context, tx *sql.Tx, userID, marker string) (int64, error) {
	res, err := tx.ExecContext(ctx,
		"UPDATE conversations SET deleted_at=NULL, deleted_by=NULL, deleted_reason=NULL WHERE (sender_id=? OR receiver_id=?) AND deleted_by=?",
		userID, userID, marker)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

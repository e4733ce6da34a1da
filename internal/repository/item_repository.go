package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/lost-and-found/internal/model"
)

// ItemRepo reads and writes the `items` table. Soft-deleted rows are
// invisible to every query except the restore path.
type ItemRepo struct{ db *sql.DB }

func NewItemRepo(db *sql.DB) *ItemRepo { return &ItemRepo{db: db} }

// ItemFilter narrows List. Zero values mean "no restriction", except that
// claimed items are hidden unless IncludeClaimed is set.
type ItemFilter struct {
	Status         string
	OwnerID        string
	IncludeClaimed bool
	Limit          int
}

const itemColumns = "id,title,description,status,user_id,claimed_by,created_at,deleted_at,deleted_by,deleted_reason"

func scanItem(s rowScanner) (*model.Item, error) {
	var (
		it                            model.Item
		userID, claimedBy, by, reason sql.NullString
		deletedAt                     sql.NullTime
	)
	if err := s.Scan(&it.ID, &it.Title, &it.Description, &it.Status, &userID, &claimedBy,
		&it.CreatedAt, &deletedAt, &by, &reason); err != nil {
		return nil, err
	}
	it.UserID = userID.String
	it.ClaimedBy = claimedBy.String
	it.CreatedAt = it.CreatedAt.UTC()
	it.DeletedAt = timePtr(deletedAt)
	it.DeletedBy = by.String
	it.DeletedReason = reason.String
	return &it, nil
}

// Create inserts a new unclaimed item and fills in its id and timestamp.
func (r *ItemRepo) Create(ctx context.Context, it *model.Item) error {
	it.CreatedAt = now()
	it.ClaimedBy = ""
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO items (title, description, status, user_id, claimed_by, created_at) VALUES (?,?,?,?,NULL,?)",
		it.Title, it.Description, it.Status, nullString(it.UserID), it.CreatedAt)
	if err != nil {
		return err
	}
	it.ID, err = res.LastInsertId()
	return err
}

// GetByID fetches a live item.
func (r *ItemRepo) GetByID(ctx context.Context, id int64) (*model.Item, error) {
	it, err := scanItem(r.db.QueryRowContext(ctx,
		"SELECT "+itemColumns+" FROM items WHERE id=? AND deleted_at IS NULL", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return it, err
}

// List returns live items matching f, newest first.
func (r *ItemRepo) List(ctx context.Context, f ItemFilter) ([]model.Item, error) {
	where := []string{"deleted_at IS NULL"}
	var args []any
	if f.Status != "" {
		where = append(where, "status=?")
		args = append(args, f.Status)
	}
	if f.OwnerID != "" {
		where = append(where, "user_id=?")
		args = append(args, f.OwnerID)
	}
	if !f.IncludeClaimed {
		where = append(where, "claimed_by IS NULL")
	}
	q := "SELECT " + itemColumns + " FROM items WHERE " + strings.Join(where, " AND ") + " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *it)
	}
	return out, rows.Err()
}

// SetClaimedBy writes claimed_by; an empty claimer clears it.
func (r *ItemRepo) SetClaimedBy(ctx context.Context, id int64, claimer string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE items SET claimed_by=? WHERE id=? AND deleted_at IS NULL",
		nullString(claimer), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDeleteByUserTx flags every live item posted or claimed by userID.
func (r *ItemRepo) SoftDeleteByUserTx(ctx context.Context, tx *sql.Tx, userID, by, reason string) (int64, error) {
	res, err := tx.ExecContext(ctx,
		"UPDATE items SET deleted_at=?, deleted_by=?, deleted_reason=? WHERE (user_id=? OR claimed_by=?) AND deleted_at IS NULL",
		now(), by, reason, userID, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RestoreByUserTx clears the soft delete on items of userID that were
// flagged by the given marker. Rows deleted by anyone else stay deleted.
func (r *ItemRepo) RestoreByUserTx(ctx context.Context, tx *sql.Tx, userID, marker string) (int64, error) {
	res, err := tx.ExecContext(ctx,
		"UPDATE items SET deleted_at=NULL, deleted_by=NULL, deleted_reason=NULL WHERE (user_id=? OR claimed_by=?) AND deleted_by=?",
		userID, userID, marker)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CascadePartners returns the other users attached to items flagged with
// marker: the claimer of userID's items and the poster of items userID
// claimed.
func (r *ItemRepo) CascadePartners(ctx context.Context, userID, marker string) ([]string, error) {
	return partners(ctx, r.db,
		"SELECT user_id, claimed_by FROM items WHERE deleted_by=? AND (user_id=? OR claimed_by=?)",
		userID, marker, userID, userID)
}

// HandOverTx moves marker to partnerMarker on flagged items partnerID is
// attached to, so they come back with partnerID instead.
func (r *ItemRepo) HandOverTx(ctx context.Context, tx *sql.Tx, partnerID, marker, partnerMarker string) (int64, error) {
	res, err := tx.ExecContext(ctx,
		"UPDATE items SET deleted_by=? WHERE deleted_by=? AND (user_id=? OR claimed_by=?)",
		partnerMarker, marker, partnerID, partnerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ItemCounts aggregates live items for the dashboard.
type ItemCounts struct {
	Total    int64
	Lost     int64
	Found    int64
	Resolved int64
	Posters  int64
}

// Counts computes ItemCounts in one pass.
func (r *ItemRepo) Counts(ctx context.Context) (ItemCounts, error) {
	var c ItemCounts
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status='lost' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status='found' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN claimed_by IS NOT NULL THEN 1 ELSE 0 END), 0),
		       COUNT(DISTINCT user_id)
		FROM items WHERE deleted_at IS NULL`).Scan(&c.Total, &c.Lost, &c.Found, &c.Resolved, &c.Posters)
	return c, err
}

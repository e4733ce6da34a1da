package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/iliyamo/lost-and-found/internal/model"
	"github.com/iliyamo/lost-and-found/internal/utils"
)

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

var ErrEmailExists = errors.New("email already exists")

const userColumns = "id,email,password_hash,email_confirmed,metadata,app_metadata,created_at,updated_at"

// Create hashes the password, inserts the user and returns the stored row.
func (r *UserRepo) Create(ctx context.Context, email, password string, md model.Metadata, amd model.AppMetadata, cost int) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return nil, err
	}
	mdJSON, err := json.Marshal(md)
	if err != nil {
		return nil, err
	}
	amdJSON, err := json.Marshal(amd)
	if err != nil {
		return nil, err
	}
	u := &model.User{
		ID:             uuid.NewString(),
		Email:          email,
		PasswordHash:   hash,
		EmailConfirmed: true,
		CreatedAt:      now(),
		Metadata:       md,
		AppMetadata:    amd,
	}
	u.UpdatedAt = u.CreatedAt
	_, err = r.DB.ExecContext(ctx,
		"INSERT INTO users ("+userColumns+") VALUES (?,?,?,?,?,?,?,?)",
		u.ID, u.Email, u.PasswordHash, u.EmailConfirmed, string(mdJSON), string(amdJSON), u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailExists
		}
		return nil, err
	}
	return u, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(s rowScanner) (*model.User, error) {
	var (
		u       model.User
		md, amd []byte
	)
	if err := s.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.EmailConfirmed, &md, &amd, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	if len(md) > 0 {
		if err := json.Unmarshal(md, &u.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata of user %s: %w", u.ID, err)
		}
	}
	if len(amd) > 0 {
		if err := json.Unmarshal(amd, &u.AppMetadata); err != nil {
			return nil, fmt.Errorf("decoding app_metadata of user %s: %w", u.ID, err)
		}
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return &u, nil
}

func (r *UserRepo) getOne(ctx context.Context, where string, arg any) (*model.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE "+where+" LIMIT 1", arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getOne(ctx, "email=?", strings.ToLower(strings.TrimSpace(email)))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	return r.getOne(ctx, "id=?", id)
}

// List returns every user, oldest first.
func (r *UserRepo) List(ctx context.Context) ([]model.User, error) {
	return r.query(ctx, "SELECT "+userColumns+" FROM users ORDER BY created_at, id")
}

// ListByIDs returns the users whose id is in ids. Unknown ids are skipped.
func (r *UserRepo) ListByIDs(ctx context.Context, ids []string) ([]model.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ph, args := inClause(ids)
	return r.query(ctx, "SELECT "+userColumns+" FROM users WHERE id IN ("+ph+")", args...)
}

func (r *UserRepo) query(ctx context.Context, q string, args ...any) ([]model.User, error) {
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// UpdateMetadata replaces the profile document of a user.
func (r *UserRepo) UpdateMetadata(ctx context.Context, id string, md model.Metadata) error {
	b, err := json.Marshal(md)
	if err != nil {
		return err
	}
	return r.exec(ctx, r.DB, "UPDATE users SET metadata=?, updated_at=? WHERE id=?", string(b), now(), id)
}

// UpdateProfileTx replaces both metadata documents in one statement.
func (r *UserRepo) UpdateProfileTx(ctx context.Context, tx *sql.Tx, id string, md model.Metadata, amd model.AppMetadata) error {
	mdJSON, err := json.Marshal(md)
	if err != nil {
		return err
	}
	amdJSON, err := json.Marshal(amd)
	if err != nil {
		return err
	}
	return r.exec(ctx, tx, "UPDATE users SET metadata=?, app_metadata=?, updated_at=? WHERE id=?",
		string(mdJSON), string(amdJSON), now(), id)
}

// UpdateAppMetadata replaces the administrator-controlled document.
func (r *UserRepo) UpdateAppMetadata(ctx context.Context, id string, amd model.AppMetadata) error {
	b, err := json.Marshal(amd)
	if err != nil {
		return err
	}
	return r.exec(ctx, r.DB, "UPDATE users SET app_metadata=?, updated_at=? WHERE id=?", string(b), now(), id)
}

// UpdateAccountTx replaces app_metadata and the email confirmation flag
// inside a transaction. Used by delete and restore.
func (r *UserRepo) UpdateAccountTx(ctx context.Context, tx *sql.Tx, id string, amd model.AppMetadata, emailConfirmed bool) error {
	b, err := json.Marshal(amd)
	if err != nil {
		return err
	}
	return r.exec(ctx, tx, "UPDATE users SET app_metadata=?, email_confirmed=?, updated_at=? WHERE id=?",
		string(b), emailConfirmed, now(), id)
}

// UpdatePassword stores a new password hash.
func (r *UserRepo) UpdatePassword(ctx context.Context, id, hash string) error {
	return r.exec(ctx, r.DB, "UPDATE users SET password_hash=?, updated_at=? WHERE id=?", hash, now(), id)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *UserRepo) exec(ctx context.Context, db execer, q string, args ...any) error {
	res, err := db.ExecContext(ctx, q, args...)
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

// ListByRole returns users whose effective role is role, oldest first. The
// profile role wins over the app metadata role, as in model.User.Role.
func (r *UserRepo) ListByRole(ctx context.Context, role model.Role) ([]model.User, error) {
	return r.query(ctx,
		"SELECT "+userColumns+" FROM users"+
			" WHERE JSON_EXTRACT(metadata, '$.role') = ?"+
			" OR (JSON_EXTRACT(metadata, '$.role') IS NULL AND JSON_EXTRACT(app_metadata, '$.role') = ?)"+
			" ORDER BY created_at, id",
		int(role), int(role))
}

package model

import "time"

// Role is the numeric role code carried in a user's metadata.
type Role int

const (
	RoleNone    Role = 0
	RoleAdmin   Role = 1
	RoleUser    Role = 2
	RoleStudent Role = 3
	RoleFaculty Role = 4
)

// Name returns the display name of the role.
func (r Role) Name() string {
	switch r {
	case RoleAdmin:
		return "Admin"
	case RoleUser:
		return "User"
	case RoleStudent:
		return "Student"
	case RoleFaculty:
		return "Faculty"
	case RoleNone:
		return "No Role"
	}
	return "Unknown Role"
}

// Valid reports whether r is one of the enumerated role codes.
func (r Role) Valid() bool { return r >= RoleAdmin && r <= RoleFaculty }

// Account status values derived from AppMetadata.
const (
	StatusActive  = "active"
	StatusBanned  = "banned"
	StatusDeleted = "deleted"
)

// SystemActor is recorded as the actor of privileged operations that were
// not performed by a signed-in administrator.
const SystemActor = "system"

// CascadeMarkerFor is written to deleted_by on rows that were soft deleted
// as a side effect of deleting userID. Restoring userID only touches rows
// carrying that user's marker.
func CascadeMarkerFor(userID string) string { return "cascade:" + userID }

// Metadata is the user-editable profile part of a user record.
//
// Fields:
//  FullName    – display name chosen at registration.
//  Role        – role code; takes precedence over AppMetadata.Role.
//  LastUpdated – when the profile was last changed.
type Metadata struct {
	FullName    string     `json:"full_name,omitempty"`
	Role        Role       `json:"role,omitempty"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
}

// AppMetadata is the administrator-controlled part of a user record. It
// carries the role used for access control plus the ban and soft-delete
// state of the account.
type AppMetadata struct {
	Role        Role     `json:"role,omitempty"`
	Status      string   `json:"status,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	CreatedBy   string   `json:"created_by,omitempty"`

	Banned      bool       `json:"banned"`
	BanDuration string     `json:"ban_duration,omitempty"`
	BanReason   string     `json:"ban_reason,omitempty"`
	BannedAt    *time.Time `json:"banned_at,omitempty"`
	BannedUntil *time.Time `json:"banned_until,omitempty"` // nil while banned means permanent
	UnbannedAt  *time.Time `json:"unbanned_at,omitempty"`

	Deleted       bool       `json:"deleted"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`
	DeletedBy     string     `json:"deleted_by,omitempty"`
	DeletedReason string     `json:"deleted_reason,omitempty"`
	OriginalEmail string     `json:"original_email,omitempty"`

	Restored   bool       `json:"restored,omitempty"`
	RestoredAt *time.Time `json:"restored_at,omitempty"`
	RestoredBy string     `json:"restored_by,omitempty"`

	UpdatedBy   string     `json:"updated_by,omitempty"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
}

// User represents an account as stored in the `users` table. Metadata and
// AppMetadata are persisted as JSON documents.
type User struct {
	ID             string      `json:"id"`
	Email          string      `json:"email"`
	PasswordHash   string      `json:"-"`
	EmailConfirmed bool        `json:"email_confirmed"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	Metadata       Metadata    `json:"metadata"`
	AppMetadata    AppMetadata `json:"app_metadata"`
}

// Role returns the profile role, falling back to the app metadata role.
func (u User) Role() Role {
	if u.Metadata.Role != RoleNone {
		return u.Metadata.Role
	}
	return u.AppMetadata.Role
}

// IsAdmin reports whether the user carries the admin role code.
func (u User) IsAdmin() bool { return u.Role() == RoleAdmin }

// IsDeleted reports whether the account has been soft deleted.
func (u User) IsDeleted() bool { return u.AppMetadata.Deleted }

// IsBanned reports whether the ban flag is set, regardless of expiry.
func (u User) IsBanned() bool { return u.AppMetadata.Banned }

// BanActive reports whether a ban still applies at now.
func (u User) BanActive(now time.Time) bool {
	if !u.AppMetadata.Banned {
		return false
	}
	until := u.AppMetadata.BannedUntil
	return until == nil || now.Before(*until)
}

// IsRestricted reports whether the account is banned or deleted.
func (u User) IsRestricted() bool { return u.IsBanned() || u.IsDeleted() }

// Status derives the account status; deletion wins over a ban.
func (u User) Status() string {
	switch {
	case u.IsDeleted():
		return StatusDeleted
	case u.IsBanned():
		return StatusBanned
	}
	return StatusActive
}

// DisplayName returns the full name when set, otherwise the email.
func (u User) DisplayName() string {
	if u.Metadata.FullName != "" {
		return u.Metadata.FullName
	}
	return u.Email
}

// Summary returns the public profile used to enrich conversations.
func (u User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Email: u.Email, FullName: u.Metadata.FullName}
}

// UserSummary is the small identity attached to conversations.
type UserSummary struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name,omitempty"`
}

// UnknownUser is used when a participant id cannot be resolved.
func UnknownUser(id string) UserSummary {
	return UserSummary{ID: id, Email: "Unknown User"}
}

// RefreshToken models an entry in the `refresh_tokens` table. Only the
// SHA-256 hash of the token is stored.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    string     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}

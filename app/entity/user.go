package entity

import (
	"database/sql"
	"time"
)

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// ValidRole reports whether s is one of the declared roles.
func ValidRole(s string) bool {
	return s == RoleUser || s == RoleAdmin
}

// User is the identity record. PasswordHash and RefreshTokenHash only ever
// hold one-way hashes; the plaintext never touches the store. TokenVersion
// increments on every refresh-hash overwrite and is the compare-and-swap
// key for rotation.
type User struct {
	ID               string
	Username         string
	Email            string
	PasswordHash     string
	Role             string
	Confirmed        bool
	RefreshTokenHash sql.NullString
	TokenVersion     uint64
	PhotoName        sql.NullString
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// PublicUser is the projection returned to clients. It never carries the
// password hash or the refresh-token hash.
type PublicUser struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Confirmed bool   `json:"confirmed"`
	PhotoName string `json:"photo_name,omitempty"`
}

func (u *User) Public() *PublicUser {
	pub := &PublicUser{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		Confirmed: u.Confirmed,
	}
	if u.PhotoName.Valid {
		pub.PhotoName = u.PhotoName.String
	}
	return pub
}

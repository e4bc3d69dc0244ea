package models

import "time"

// User is the stored user record. RefreshToken and RefreshTokenExpiry are
// either both set or both nil.
type User struct {
	ID                 int64
	UserName           string
	Email              string
	PassHash           []byte
	RefreshToken       *string
	RefreshTokenExpiry *time.Time
	LastLoginTime      *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// HasSession reports whether the user currently holds a refresh token.
func (u *User) HasSession() bool {
	return u.RefreshToken != nil && u.RefreshTokenExpiry != nil
}

// SetSession replaces the refresh token slot. A user has a single slot, so
// starting a session on one device ends it on any other.
func (u *User) SetSession(token string, expiresAt time.Time) {
	u.RefreshToken = &token
	u.RefreshTokenExpiry = &expiresAt
}

// ClearSession nils both refresh token fields.
func (u *User) ClearSession() {
	u.RefreshToken = nil
	u.RefreshTokenExpiry = nil
}

// View returns the public projection of the user.
func (u *User) View() UserView {
	return UserView{
		UserID:        u.ID,
		UserName:      u.UserName,
		Email:         u.Email,
		LastLoginTime: u.LastLoginTime,
		CreatedAt:     u.CreatedAt,
	}
}

// UserView is what clients get to see about a user.
type UserView struct {
	UserID        int64      `json:"userId"`
	UserName      string     `json:"userName"`
	Email         string     `json:"email"`
	LastLoginTime *time.Time `json:"lastLoginTime,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

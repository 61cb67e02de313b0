// Package domain holds the strongly-typed entities of the chat system:
// users, chats, messages and reactions, plus the enums that constrain them.
package domain

import "time"

// UserStatus is the presence state of a user.
type UserStatus string

const (
	StatusOnline  UserStatus = "online"
	StatusAway    UserStatus = "away"
	StatusOffline UserStatus = "offline"
	StatusBusy    UserStatus = "busy"
)

// Valid reports whether s is one of the enumerated statuses.
func (s UserStatus) Valid() bool {
	switch s {
	case StatusOnline, StatusAway, StatusOffline, StatusBusy:
		return true
	}
	return false
}

// User is a registered account.
type User struct {
	ID             string     `json:"id"`
	Username       string     `json:"username"`
	Email          string     `json:"email"`
	FullName       string     `json:"full_name"`
	HashedPassword string     `json:"-"`
	Status         UserStatus `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// UserPatch is a partial update to a User. Nil fields are left unchanged.
type UserPatch struct {
	Email    *string     `json:"email,omitempty"`
	FullName *string     `json:"full_name,omitempty"`
	Status   *UserStatus `json:"status,omitempty"`
}

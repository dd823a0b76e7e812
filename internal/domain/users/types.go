package users

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("user not found")

// User is the account read model. Registration and credential handling live
// in the identity service; this backend only resolves token subjects.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

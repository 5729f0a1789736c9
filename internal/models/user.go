package models

import (
	"time"

	"github.com/google/uuid"
)

// User is an account. REST clients register one themselves; chat users get
// one synthesized on first contact, with a tg<chatid> handle and a random
// secret they never see.
type User struct {
	ID        uuid.UUID `db:"id"`
	Username  string    `db:"username"`
	Email     string    `db:"email"`
	Password  string    `db:"password"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

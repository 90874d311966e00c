package entity

import "time"

type UserBalance struct {
	UserID  string
	Credits int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

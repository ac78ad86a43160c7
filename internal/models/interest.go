package models

import "time"

// MaxInterests bounds the distinct tags a user may hold
const MaxInterests = 20

// UserInterest is a weighted tag owned by a single user
type UserInterest struct {
	UserID    string    `json:"-" db:"user_id"`
	Tag       string    `json:"tag" db:"interest_tag"`
	Weight    float64   `json:"weight" db:"weight"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// InterestInput is a tag/weight pair supplied by a caller
type InterestInput struct {
	Tag    string  `json:"tag"`
	Weight float64 `json:"weight"`
}

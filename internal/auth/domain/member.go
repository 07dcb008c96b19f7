package domain

import "time"

const RoleUser = "USER"

type Member struct {
	ID           string
	Email        string
	Name         string
	PhoneNumber  string
	PasswordHash string // argon2id PHC string
	Role         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

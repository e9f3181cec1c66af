package models

import (
	"time"
)

type User struct {
	ID                 uint   `gorm:"primaryKey"`
	EmailAddress       string `gorm:"uniqueIndex;size:254;not null"`
	DiscordIdentity    `gorm:"embedded"`
	PBKDF2PasswordHash string `gorm:"column:pbkdf2_password_hash;not null"`
	SRPPasswordSalt    string `gorm:"column:srp_password_salt;size:64;not null"`
	SRPPasswordHash    string `gorm:"column:srp_password_hash;not null"`
	RoleID             uint   `gorm:"not null"`
	Role               Role
	IsVerified         bool      `gorm:"not null;default:false"`
	Accounts           []Account `gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// MainAccount returns the account flagged as main, falling back to the first
// account. It returns nil for a user without accounts.
func (u *User) MainAccount() *Account {
	for i := range u.Accounts {
		if u.Accounts[i].IsMain {
			return &u.Accounts[i]
		}
	}
	if len(u.Accounts) > 0 {
		return &u.Accounts[0]
	}
	return nil
}

package models

import (
	"time"
)

type TokenPurpose string

const (
	TokenPurposeEmailAddressVerification TokenPurpose = "EmailAddressVerification"
	TokenPurposeDiscordVerification      TokenPurpose = "DiscordVerification"
)

// Token is a single-use, purpose-tagged value. Data carries the payload the
// purpose needs: the email address for registration tokens and the Discord ID
// for Discord verification tokens.
type Token struct {
	ID                uint         `gorm:"primaryKey"`
	Purpose           TokenPurpose `gorm:"size:32;index;not null"`
	EmailAddress      string       `gorm:"size:254;not null"`
	Value             string       `gorm:"uniqueIndex;size:36;not null"`
	Data              string       `gorm:"size:254;not null"`
	TimestampCreated  time.Time    `gorm:"autoCreateTime"`
	TimestampConsumed *time.Time
}

func (t Token) IsConsumed() bool {
	return t.TimestampConsumed != nil
}

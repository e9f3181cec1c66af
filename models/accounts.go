package models

import (
	"fmt"
	"time"
)

type Clan struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"uniqueIndex;size:64;not null"`
	Tag       string `gorm:"uniqueIndex;size:4;not null"`
	CreatedAt time.Time
}

type Account struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"uniqueIndex;size:15;not null"`
	IsMain    bool   `gorm:"not null;default:false"`
	UserID    uint   `gorm:"index;not null"`
	ClanID    *uint  `gorm:"index"`
	Clan      *Clan
	CreatedAt time.Time
}

// NameWithClanTag renders the account name prefixed by its clan tag, e.g. "[TAG]Name".
func (a Account) NameWithClanTag() string {
	if a.Clan == nil || a.Clan.Tag == "" {
		return a.Name
	}
	return fmt.Sprintf("[%s]%s", a.Clan.Tag, a.Name)
}

// ClanName and ClanTag return empty strings for accounts without a clan.
func (a Account) ClanName() string {
	if a.Clan == nil {
		return ""
	}
	return a.Clan.Name
}

func (a Account) ClanTag() string {
	if a.Clan == nil {
		return ""
	}
	return a.Clan.Tag
}

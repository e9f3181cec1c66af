package models

// DiscordIdentity holds the external identity fields linked to a User. All
// fields are nil for users registered through the email flow.
type DiscordIdentity struct {
	DiscordID         *string `gorm:"column:discord_id;uniqueIndex;size:20"`
	DiscordUsername   *string `gorm:"column:discord_username;size:32"`
	DiscordAvatarHash *string `gorm:"column:discord_avatar_hash;size:128"`
}

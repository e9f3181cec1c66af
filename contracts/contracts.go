// Package contracts holds the JSON bodies exchanged between the portal and
// the account API.
package contracts

// ---------- Requests ----------

type RegisterUser struct {
	Token           string `json:"token" validate:"required"`
	Name            string `json:"name" validate:"required,accountname"`
	Password        string `json:"password" validate:"required,max=128"`
	ConfirmPassword string `json:"confirmPassword" validate:"required"`
}

type RegisterDiscordUser struct {
	DiscordID         string  `json:"discordID" validate:"required,max=20"`
	DiscordUsername   string  `json:"discordUsername" validate:"required,max=32"`
	DiscordEmail      string  `json:"discordEmail" validate:"required,email,max=254"`
	DiscordAvatarHash *string `json:"discordAvatarHash" validate:"omitempty,max=128"`
	AccountName       string  `json:"accountName" validate:"required,accountname"`
	Password          string  `json:"password" validate:"required,max=128"`
	ConfirmPassword   string  `json:"confirmPassword" validate:"required"`
}

type LogIn struct {
	Name     string `json:"name" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LogInDiscord identifies a user by Discord ID. When DiscordUsername is set
// the identity fields replace the stored ones.
type LogInDiscord struct {
	DiscordID         string  `json:"discordID" validate:"required,max=20"`
	DiscordUsername   string  `json:"discordUsername,omitempty" validate:"omitempty,max=32"`
	DiscordAvatarHash *string `json:"discordAvatarHash,omitempty" validate:"omitempty,max=128"`
}

// ---------- Responses ----------

type BasicAccount struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

type BasicUser struct {
	ID           uint           `json:"id"`
	EmailAddress string         `json:"emailAddress"`
	Accounts     []BasicAccount `json:"accounts"`
}

type DiscordUser struct {
	UserID            uint           `json:"userID"`
	DiscordID         string         `json:"discordID"`
	DiscordUsername   string         `json:"discordUsername"`
	DiscordAvatarHash *string        `json:"discordAvatarHash"`
	EmailAddress      string         `json:"emailAddress"`
	IsVerified        bool           `json:"isVerified"`
	Accounts          []BasicAccount `json:"accounts"`
}

// AuthenticationToken is returned by both login operations. TokenType is
// always "JWT".
type AuthenticationToken struct {
	UserID     uint   `json:"userID"`
	TokenType  string `json:"tokenType"`
	Token      string `json:"token"`
	IsVerified bool   `json:"isVerified"`
	Role       string `json:"role"`
}

type AccountNameAvailability struct {
	IsAvailable bool   `json:"isAvailable"`
	AccountName string `json:"accountName"`
}

type Message struct {
	Message string `json:"message"`
}

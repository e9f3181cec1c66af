// Package session keeps the portal's signed session cookie and links the
// Discord identity in it to an account API user.
package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/discord"
)

// ActivityWriteInterval throttles how often LastActivity is rewritten.
const ActivityWriteInterval = 30 * time.Second

// Claims is the session bundle carried in the cookie. UserID stays nil until
// the Discord identity is registered with the account API.
type Claims struct {
	DiscordID         string `json:"discord_id"`
	DiscordUsername   string `json:"discord_username"`
	DiscordGlobalName string `json:"discord_global_name,omitempty"`
	Email             string `json:"email"`
	AvatarHash        string `json:"avatar_hash,omitempty"`
	UserID            *uint  `json:"user_id,omitempty"`
	IsVerified        bool   `json:"is_verified"`
	APIToken          string `json:"api_token,omitempty"`
	Role              string `json:"role,omitempty"`
	LastActivity      int64  `json:"last_activity"`
	jwt.RegisteredClaims
}

func (c *Claims) IsRegistered() bool {
	return c.UserID != nil
}

// IsActive reports whether the user finished registration and verification.
func (c *Claims) IsActive() bool {
	return c.IsRegistered() && c.IsVerified
}

func (c *Claims) DisplayName() string {
	if c.DiscordGlobalName != "" {
		return c.DiscordGlobalName
	}
	return c.DiscordUsername
}

func (c *Claims) AvatarURL() string {
	return discord.AvatarURL(c.DiscordID, c.AvatarHash)
}

// IdleFor is the time since the last recorded activity.
func (c *Claims) IdleFor(now time.Time) time.Duration {
	return now.Sub(time.Unix(c.LastActivity, 0))
}

// Touch records activity at now unless the last write is more recent than
// ActivityWriteInterval. It reports whether the claims changed.
func (c *Claims) Touch(now time.Time) bool {
	if c.IdleFor(now) < ActivityWriteInterval {
		return false
	}
	c.LastActivity = now.Unix()
	return true
}

// clearLink forgets everything learned from the account API.
func (c *Claims) clearLink() {
	c.UserID = nil
	c.IsVerified = false
	c.APIToken = ""
	c.Role = ""
}

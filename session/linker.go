package session

import (
	"context"
	"errors"
	"log/slog"

	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/contracts"
	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/discord"
	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/metrics"
)

// ErrEmailNotVerified rejects Discord identities whose email address
// Discord has not verified.
var ErrEmailNotVerified = errors.New("discord email address is not verified")

// Backend is the part of the account API the linker needs.
type Backend interface {
	LoginWithDiscord(ctx context.Context, payload contracts.LogInDiscord) (*contracts.AuthenticationToken, error)
}

// Linker attaches account API state to session claims.
type Linker struct {
	backend Backend
	logger  *slog.Logger
}

func NewLinker(backend Backend, logger *slog.Logger) *Linker {
	return &Linker{backend: backend, logger: logger}
}

// SignIn copies a freshly authenticated Discord profile into claims and
// looks the identity up in the account API.
func (l *Linker) SignIn(ctx context.Context, claims *Claims, profile *discord.Profile) error {
	if !profile.Verified {
		return ErrEmailNotVerified
	}

	claims.DiscordID = profile.ID
	claims.DiscordUsername = profile.Username
	claims.DiscordGlobalName = ""
	if profile.GlobalName != nil {
		claims.DiscordGlobalName = *profile.GlobalName
	}
	claims.Email = profile.Email
	claims.AvatarHash = ""
	if profile.Avatar != nil {
		claims.AvatarHash = *profile.Avatar
	}
	claims.clearLink()

	l.Refresh(ctx, claims, false)
	return nil
}

// Refresh asks the account API for the user behind claims.DiscordID when
// claims are not linked yet, or always when forced. The Discord username and
// avatar travel along so the account API keeps them current. A failed or
// empty answer leaves claims unchanged.
func (l *Linker) Refresh(ctx context.Context, claims *Claims, forced bool) {
	if claims.DiscordID == "" {
		return
	}
	if claims.IsRegistered() && !forced {
		return
	}

	token, err := l.backend.LoginWithDiscord(ctx, loginPayload(claims))
	metrics.ObserveSessionRefresh(err)
	if err != nil {
		l.logger.WarnContext(ctx, "session refresh failed", "discord_id", claims.DiscordID, "error", err)
		return
	}
	if token == nil {
		return
	}

	userID := token.UserID
	claims.UserID = &userID
	claims.IsVerified = token.IsVerified
	claims.APIToken = token.Token
	claims.Role = token.Role
}

func loginPayload(claims *Claims) contracts.LogInDiscord {
	payload := contracts.LogInDiscord{
		DiscordID:       claims.DiscordID,
		DiscordUsername: claims.DiscordUsername,
	}
	if claims.AvatarHash != "" {
		avatar := claims.AvatarHash
		payload.DiscordAvatarHash = &avatar
	}
	return payload
}

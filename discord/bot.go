// Package discord talks to the Discord REST API: the bot that delivers
// verification links and the OAuth2 profile lookup used at sign-in.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

const DefaultAPIURL = "https://discord.com/api/v10"

// BotClient sends direct messages as the portal's bot user.
type BotClient struct {
	session             *discordgo.Session
	verificationBaseURL string
	logger              *slog.Logger
}

// NewBotClient builds a REST-only bot session; no gateway connection is
// opened. apiURL replaces discordgo's API base when it is not the default.
func NewBotClient(apiURL, token, verificationBaseURL string, logger *slog.Logger) (*BotClient, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	var transport http.RoundTripper = http.DefaultTransport
	if apiURL != "" && apiURL != DefaultAPIURL {
		base, err := url.Parse(strings.TrimSuffix(apiURL, "/"))
		if err != nil {
			return nil, fmt.Errorf("invalid discord api url: %w", err)
		}
		transport = &endpointTransport{base: base, next: transport}
	}
	s.Client = &http.Client{Timeout: 10 * time.Second, Transport: transport}
	s.ShouldRetryOnRateLimit = false

	return &BotClient{
		session:             s,
		verificationBaseURL: strings.TrimSuffix(verificationBaseURL, "/"),
		logger:              logger,
	}, nil
}

// endpointTransport sends requests meant for discordgo's API base to base.
type endpointTransport struct {
	base *url.URL
	next http.RoundTripper
}

func (t *endpointTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	rest, ok := strings.CutPrefix(r.URL.String(), discordgo.EndpointAPI)
	if !ok {
		return t.next.RoundTrip(r)
	}
	target, err := url.Parse(t.base.String() + "/" + rest)
	if err != nil {
		return nil, err
	}
	r = r.Clone(r.Context())
	r.URL = target
	r.Host = target.Host
	return t.next.RoundTrip(r)
}

// VerificationURL is the portal page that redeems token.
func VerificationURL(baseURL, token string) string {
	return strings.TrimSuffix(baseURL, "/") + "/verify?token=" + url.QueryEscape(token)
}

const embedColor = 0x10B981

func verificationEmbed(accountName, link string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "NEXUS Re:BIRTH Account Verification",
		Description: fmt.Sprintf("Welcome, **%s**!\n\nPlease use the link below to verify your account and gain access to the web portal.", accountName),
		Color:       embedColor,
		Fields: []*discordgo.MessageEmbedField{{
			Name:  "Verification Link",
			Value: fmt.Sprintf("[Click Here To Verify Your Account](%s)", link),
		}},
		Footer: &discordgo.MessageEmbedFooter{Text: "If you did not create this account, please ignore this message."},
	}
}

// SendVerificationDM opens a DM channel with the user and posts the
// verification link into it.
func (c *BotClient) SendVerificationDM(ctx context.Context, discordID, accountName, token string) error {
	ch, err := c.session.UserChannelCreate(discordID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("create dm channel for %s: %w", discordID, err)
	}

	embed := verificationEmbed(accountName, VerificationURL(c.verificationBaseURL, token))
	if _, err := c.session.ChannelMessageSendEmbed(ch.ID, embed, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send verification dm to %s: %w", discordID, err)
	}

	c.logger.InfoContext(ctx, "verification dm sent", "discord_id", discordID, "account", accountName)
	return nil
}

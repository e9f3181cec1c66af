package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Profile is the Discord user behind an OAuth2 access token.
type Profile struct {
	ID         string  `json:"id"`
	Username   string  `json:"username"`
	GlobalName *string `json:"global_name"`
	Email      string  `json:"email"`
	Avatar     *string `json:"avatar"`
	Verified   bool    `json:"verified"`
}

// AvatarURL is the CDN link of a user's avatar, or an empty string when the
// user has none.
func AvatarURL(userID, avatarHash string) string {
	if userID == "" || avatarHash == "" {
		return ""
	}
	return fmt.Sprintf("https://cdn.discordapp.com/avatars/%s/%s.png", userID, avatarHash)
}

// FetchProfile reads /users/@me with client, which must carry the user's
// OAuth2 access token.
func FetchProfile(ctx context.Context, client *http.Client, apiURL string) (*Profile, error) {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(apiURL, "/")+"/users/@me", nil)
	if err != nil {
		return nil, err
	}

	res, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: res.StatusCode}
	}

	var p Profile
	if err := json.NewDecoder(res.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode discord profile: %w", err)
	}
	if p.ID == "" {
		return nil, fmt.Errorf("discord profile without id")
	}
	return &p, nil
}

// StatusError is a non-2xx answer from Discord.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("discord returned status %d", e.StatusCode)
}

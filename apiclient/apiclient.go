// Package apiclient is the portal's typed client for the account API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/contracts"
)

// Error is a non-2xx answer from the account API.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("account api returned %d: %s", e.Status, e.Message)
}

// IsStatus reports whether err is an Error with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == status
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// ---------- Authentication ----------

func (c *Client) RegisterDiscordUser(ctx context.Context, payload contracts.RegisterDiscordUser) (*contracts.DiscordUser, error) {
	var out contracts.DiscordUser
	if err := c.do(ctx, http.MethodPost, "/User/RegisterDiscord", "", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetUserByDiscordID returns nil without error when no user is linked.
func (c *Client) GetUserByDiscordID(ctx context.Context, discordID string) (*contracts.DiscordUser, error) {
	var out contracts.DiscordUser
	err := c.do(ctx, http.MethodGet, "/User/Discord/"+url.PathEscape(discordID), "", nil, &out)
	if IsStatus(err, http.StatusNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// LoginWithDiscord returns nil without error when no user is linked.
func (c *Client) LoginWithDiscord(ctx context.Context, payload contracts.LogInDiscord) (*contracts.AuthenticationToken, error) {
	var out contracts.AuthenticationToken
	err := c.do(ctx, http.MethodPost, "/User/LoginDiscord", "", payload, &out)
	if IsStatus(err, http.StatusNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ---------- Users ----------

func (c *Client) GetUser(ctx context.Context, userID uint, token string) (*contracts.BasicUser, error) {
	var out contracts.BasicUser
	if err := c.do(ctx, http.MethodGet, "/User/"+strconv.FormatUint(uint64(userID), 10), token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CheckAccountName(ctx context.Context, name string) (*contracts.AccountNameAvailability, error) {
	var out contracts.AccountNameAvailability
	if err := c.do(ctx, http.MethodGet, "/User/CheckAccountName/"+url.PathEscape(name), "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) VerifyDiscordAccount(ctx context.Context, token string) (*contracts.Message, error) {
	var out contracts.Message
	if err := c.do(ctx, http.MethodGet, "/User/VerifyDiscord/"+url.PathEscape(token), "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ResendVerification(ctx context.Context, discordID string) (*contracts.Message, error) {
	var out contracts.Message
	if err := c.do(ctx, http.MethodPost, "/User/ResendVerification", "", contracts.LogInDiscord{DiscordID: discordID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Ping checks that the account API answers its health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", "", nil, nil)
}

// ---------- Transport ----------

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return &Error{Status: res.StatusCode, Message: readErrorMessage(res)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func readErrorMessage(res *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(res.Body, 4096))

	var envelope errorEnvelope
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	if text := strings.TrimSpace(string(raw)); text != "" {
		return text
	}
	return http.StatusText(res.StatusCode)
}

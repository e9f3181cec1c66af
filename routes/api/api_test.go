package routes_api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/apiclient"
	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/contracts"
	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/middlewares"
	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/session"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fakeBackend struct {
	registered *contracts.RegisterDiscordUser
	resentFor  string
	verifyErr  error
	err        error
	linked     *contracts.AuthenticationToken
}

func (b *fakeBackend) CheckAccountName(_ context.Context, name string) (*contracts.AccountNameAvailability, error) {
	if b.err != nil {
		return nil, b.err
	}
	return &contracts.AccountNameAvailability{IsAvailable: name != "Taken", AccountName: name}, nil
}

func (b *fakeBackend) RegisterDiscordUser(_ context.Context, payload contracts.RegisterDiscordUser) (*contracts.DiscordUser, error) {
	if b.err != nil {
		return nil, b.err
	}
	b.registered = &payload
	b.linked = &contracts.AuthenticationToken{UserID: 8, Token: "api-token", Role: "USER"}
	return &contracts.DiscordUser{UserID: 8, DiscordID: payload.DiscordID, Accounts: []contracts.BasicAccount{{ID: 1, Name: payload.AccountName}}}, nil
}

func (b *fakeBackend) VerifyDiscordAccount(_ context.Context, token string) (*contracts.Message, error) {
	if b.verifyErr != nil {
		return nil, b.verifyErr
	}
	if b.linked != nil {
		b.linked.IsVerified = true
	}
	return &contracts.Message{Message: "Account verified successfully."}, nil
}

func (b *fakeBackend) ResendVerification(_ context.Context, discordID string) (*contracts.Message, error) {
	if b.err != nil {
		return nil, b.err
	}
	b.resentFor = discordID
	return &contracts.Message{Message: "sent"}, nil
}

func (b *fakeBackend) LoginWithDiscord(_ context.Context, _ contracts.LogInDiscord) (*contracts.AuthenticationToken, error) {
	if b.linked == nil {
		return nil, nil
	}
	token := *b.linked
	return &token, nil
}

type fixture struct {
	router  http.Handler
	store   *session.Store
	backend *fakeBackend
	cookie  *http.Cookie
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		store:   session.NewStore(testSecret, 7*24*time.Hour, false, nil),
		backend: &fakeBackend{},
	}

	r := chi.NewRouter()
	r.Use(middlewares.Session(f.store, time.Hour, logger))
	NewHandler(f.backend, f.store, session.NewLinker(f.backend, logger), logger).Mount(r)
	f.router = r

	claims, err := f.store.New()
	require.NoError(t, err)
	claims.DiscordID = "disc123"
	claims.DiscordUsername = "zed"
	claims.Email = "zed@example.com"
	claims.AvatarHash = "abc"
	rec := httptest.NewRecorder()
	require.NoError(t, f.store.Save(rec, claims))
	f.cookie = rec.Result().Cookies()[0]
	return f
}

func (f *fixture) do(t *testing.T, method, target, body string, signedIn bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if signedIn {
		req.AddCookie(f.cookie)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Error
}

func sessionIn(t *testing.T, store *session.Store, rec *httptest.ResponseRecorder) *session.Claims {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	claims, err := store.Load(req)
	require.NoError(t, err)
	return claims
}

func TestCheckAccountName(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/check-account-name?name=Zed", "", false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Not authenticated", errorOf(t, rec))

	rec = f.do(t, http.MethodGet, "/api/check-account-name", "", true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Name parameter is required", errorOf(t, rec))

	rec = f.do(t, http.MethodGet, "/api/check-account-name?name=Taken", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	var availability contracts.AccountNameAvailability
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&availability))
	assert.False(t, availability.IsAvailable)
}

func TestRegister(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/register", `{}`, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	body := `{"discordID":"someone-else","accountName":"Zed","password":"Passw0rd!","confirmPassword":"Passw0rd!"}`
	rec = f.do(t, http.MethodPost, "/api/register", body, true)
	require.Equal(t, http.StatusCreated, rec.Code)

	require.NotNil(t, f.backend.registered)
	assert.Equal(t, "disc123", f.backend.registered.DiscordID)
	assert.Equal(t, "zed", f.backend.registered.DiscordUsername)
	assert.Equal(t, "zed@example.com", f.backend.registered.DiscordEmail)
	require.NotNil(t, f.backend.registered.DiscordAvatarHash)
	assert.Equal(t, "abc", *f.backend.registered.DiscordAvatarHash)
	assert.Equal(t, "Zed", f.backend.registered.AccountName)

	claims := sessionIn(t, f.store, rec)
	require.NotNil(t, claims)
	require.True(t, claims.IsRegistered())
	assert.Equal(t, uint(8), *claims.UserID)
	assert.False(t, claims.IsVerified)
	assert.Equal(t, "api-token", claims.APIToken)
}

func TestRegister_Errors(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/register", `not json`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.backend.err = &apiclient.Error{Status: http.StatusConflict, Message: `Account with name "Zed" already exists`}
	rec = f.do(t, http.MethodPost, "/api/register", `{"accountName":"Zed"}`, true)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, `Account with name "Zed" already exists`, errorOf(t, rec))

	f.backend.err = errors.New("dial tcp: connection refused")
	rec = f.do(t, http.MethodPost, "/api/register", `{"accountName":"Zed"}`, true)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Registration failed", errorOf(t, rec))
}

func TestVerify(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/verify", "", false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No verification token provided.", errorOf(t, rec))

	rec = f.do(t, http.MethodGet, "/api/verify?token=abc", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"message":"Account verified successfully."}`, rec.Body.String())

	f.backend.verifyErr = &apiclient.Error{Status: http.StatusConflict, Message: "This verification token has already been used."}
	rec = f.do(t, http.MethodGet, "/api/verify?token=abc", "", false)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "This verification token has already been used.", errorOf(t, rec))

	f.backend.verifyErr = errors.New("timeout")
	rec = f.do(t, http.MethodGet, "/api/verify?token=abc", "", false)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to verify account. Please try again.", errorOf(t, rec))
}

func TestVerify_RefreshesSignedInSession(t *testing.T) {
	f := newFixture(t)
	f.backend.linked = &contracts.AuthenticationToken{UserID: 8, Token: "api-token", Role: "USER"}

	rec := f.do(t, http.MethodGet, "/api/verify?token=abc", "", true)
	require.Equal(t, http.StatusOK, rec.Code)

	claims := sessionIn(t, f.store, rec)
	require.NotNil(t, claims)
	assert.True(t, claims.IsActive())
}

func TestResendVerification(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/resend-verification", "", false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/resend-verification", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())
	assert.Equal(t, "disc123", f.backend.resentFor)

	f.backend.err = &apiclient.Error{Status: http.StatusConflict, Message: "User is already verified."}
	rec = f.do(t, http.MethodPost, "/api/resend-verification", "", true)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "User is already verified.", errorOf(t, rec))
}

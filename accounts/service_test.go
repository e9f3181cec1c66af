package accounts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/apierrors"
	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/claims"
	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/contracts"
	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/models"
	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/storage"
)

// ---------- Fixtures ----------

type sentMessage struct {
	DiscordID   string
	AccountName string
	Token       string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (f *fakeNotifier) SendVerificationDM(_ context.Context, discordID, accountName, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{discordID, accountName, token})
	return nil
}

func (f *fakeNotifier) last(t *testing.T) sentMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fixture struct {
	svc      *Service
	db       *gorm.DB
	issuer   *claims.Issuer
	notifier *fakeNotifier
	logs     *syncBuffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := storage.InitDB("sqlite://:memory:")
	require.NoError(t, err)
	require.NoError(t, storage.RunMigrations(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	logs := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, nil))
	issuer := claims.NewIssuer(storage.JWTConfiguration{
		SigningKey: "0123456789abcdef0123456789abcdef",
		Issuer:     "nexus-account-api",
		Audience:   "nexus-web-portal",
		Duration:   time.Hour,
	})
	notifier := &fakeNotifier{}

	svc := NewService(db, issuer, notifier, LogMailer{Logger: logger}, logger, Config{EnforcePasswordPolicy: true})
	return &fixture{svc: svc, db: db, issuer: issuer, notifier: notifier, logs: logs}
}

func discordInput(discordID, accountName string) contracts.RegisterDiscordUser {
	return contracts.RegisterDiscordUser{
		DiscordID:       discordID,
		DiscordUsername: "user_" + discordID,
		DiscordEmail:    discordID + "@example.com",
		AccountName:     accountName,
		Password:        "Passw0rd!",
		ConfirmPassword: "Passw0rd!",
	}
}

func statusOf(err error) int {
	return apierrors.StatusCode(err)
}

func (f *fixture) registerDiscord(t *testing.T, discordID, accountName string) *contracts.DiscordUser {
	t.Helper()
	user, err := f.svc.RegisterDiscord(context.Background(), discordInput(discordID, accountName))
	require.NoError(t, err)
	return user
}

func (f *fixture) countTokens(t *testing.T, discordID string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.Token{}).Where("data = ?", discordID).Count(&n).Error)
	return n
}

// ---------- Discord registration and verification ----------

func TestDiscordRegistrationScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.RegisterDiscord(ctx, discordInput("disc123", "Zed"))
	require.NoError(t, err)
	require.Len(t, created.Accounts, 1)
	assert.Equal(t, "Zed", created.Accounts[0].Name)
	assert.False(t, created.IsVerified)
	assert.Equal(t, "disc123", created.DiscordID)

	login, err := f.svc.LogInDiscord(ctx, contracts.LogInDiscord{DiscordID: "disc123"})
	require.NoError(t, err)
	assert.False(t, login.IsVerified)
	assert.Equal(t, "JWT", login.TokenType)
	assert.Equal(t, created.UserID, login.UserID)
	assert.Equal(t, string(models.RoleUser), login.Role)

	principal, err := f.issuer.Parse(login.Token)
	require.NoError(t, err)
	assert.Equal(t, "Zed", principal.AccountName)

	dm := f.notifier.last(t)
	assert.Equal(t, "disc123", dm.DiscordID)
	assert.Equal(t, "Zed", dm.AccountName)

	msg, err := f.svc.VerifyDiscord(ctx, dm.Token)
	require.NoError(t, err)
	assert.Equal(t, "Account verified successfully.", msg.Message)

	login, err = f.svc.LogInDiscord(ctx, contracts.LogInDiscord{DiscordID: "disc123"})
	require.NoError(t, err)
	assert.True(t, login.IsVerified)
}

func TestRegisterDiscord_FirstAccountIsMain(t *testing.T) {
	f := newFixture(t)
	created := f.registerDiscord(t, "disc1", "Main")

	var accounts []models.Account
	require.NoError(t, f.db.Where("user_id = ?", created.UserID).Find(&accounts).Error)
	require.Len(t, accounts, 1)
	assert.True(t, accounts[0].IsMain)

	var user models.User
	require.NoError(t, f.db.First(&user, created.UserID).Error)
	assert.NotEmpty(t, user.PBKDF2PasswordHash)
	assert.NotEmpty(t, user.SRPPasswordSalt)
	assert.NotEmpty(t, user.SRPPasswordHash)
	assert.False(t, user.IsVerified)
}

func TestRegisterDiscord_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerDiscord(t, "disc1", "Taken")

	mismatch := discordInput("disc2", "Other")
	mismatch.ConfirmPassword = "different"
	_, err := f.svc.RegisterDiscord(ctx, mismatch)
	assert.Equal(t, http.StatusBadRequest, statusOf(err))

	weak := discordInput("disc2", "Other")
	weak.Password, weak.ConfirmPassword = "password", "password"
	_, err = f.svc.RegisterDiscord(ctx, weak)
	assert.Equal(t, http.StatusBadRequest, statusOf(err))
	assert.Contains(t, err.Error(), "uppercase")

	badName := discordInput("disc2", "no spaces")
	_, err = f.svc.RegisterDiscord(ctx, badName)
	assert.Equal(t, http.StatusBadRequest, statusOf(err))

	_, err = f.svc.RegisterDiscord(ctx, discordInput("disc1", "Fresh"))
	assert.Equal(t, http.StatusConflict, statusOf(err))

	_, err = f.svc.RegisterDiscord(ctx, discordInput("disc2", "Taken"))
	assert.Equal(t, http.StatusConflict, statusOf(err))
}

func TestRegisterDiscord_PolicyDisabledInDevelopment(t *testing.T) {
	f := newFixture(t)
	f.svc.cfg.EnforcePasswordPolicy = false

	in := discordInput("disc1", "Dev")
	in.Password, in.ConfirmPassword = "password", "password"
	_, err := f.svc.RegisterDiscord(context.Background(), in)
	require.NoError(t, err)
}

func TestRegisterDiscord_MessageFailureIsNotSurfaced(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("discord down")

	_, err := f.svc.RegisterDiscord(context.Background(), discordInput("disc1", "Quiet"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.countTokens(t, "disc1"))
	assert.Contains(t, f.logs.String(), "verification message not sent")
}

func TestConcurrentRegistrationsForSameName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for range 2 {
		availability, err := f.svc.CheckAccountName(ctx, "Ace")
		require.NoError(t, err)
		assert.True(t, availability.IsAvailable)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.RegisterDiscord(ctx, discordInput(fmt.Sprintf("ace%d", i), "Ace"))
		}()
	}
	wg.Wait()

	var succeeded, conflicted int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case statusOf(err) == http.StatusConflict:
			conflicted++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, conflicted)

	var n int64
	require.NoError(t, f.db.Model(&models.Account{}).Where("name = ?", "Ace").Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestVerifyDiscord_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerDiscord(t, "disc1", "Zed")
	token := f.notifier.last(t).Token

	_, err := f.svc.VerifyDiscord(ctx, "not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, statusOf(err))

	_, err = f.svc.VerifyDiscord(ctx, uuid.NewString())
	assert.Equal(t, http.StatusNotFound, statusOf(err))

	_, err = f.svc.VerifyDiscord(ctx, token)
	require.NoError(t, err)

	_, err = f.svc.VerifyDiscord(ctx, token)
	assert.Equal(t, http.StatusConflict, statusOf(err))

	orphan := models.Token{
		Purpose:      models.TokenPurposeDiscordVerification,
		EmailAddress: "ghost@example.com",
		Value:        uuid.NewString(),
		Data:         "ghost",
	}
	require.NoError(t, f.db.Create(&orphan).Error)
	_, err = f.svc.VerifyDiscord(ctx, orphan.Value)
	assert.Equal(t, http.StatusNotFound, statusOf(err))
}

func TestVerifyDiscord_WrongPurpose(t *testing.T) {
	f := newFixture(t)
	f.registerDiscord(t, "disc1", "Zed")

	email := models.Token{
		Purpose:      models.TokenPurposeEmailAddressVerification,
		EmailAddress: "disc1@example.com",
		Value:        uuid.NewString(),
		Data:         "disc1",
	}
	require.NoError(t, f.db.Create(&email).Error)

	_, err := f.svc.VerifyDiscord(context.Background(), email.Value)
	assert.Equal(t, http.StatusNotFound, statusOf(err))
}

func TestVerifyDiscord_ConcurrentRedemption(t *testing.T) {
	f := newFixture(t)
	f.registerDiscord(t, "disc1", "Zed")
	token := f.notifier.last(t).Token

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.VerifyDiscord(context.Background(), token)
		}()
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.Equal(t, http.StatusConflict, statusOf(err))
	}
	assert.Equal(t, 1, succeeded)
}

func TestConsumeToken_CompareAndSet(t *testing.T) {
	f := newFixture(t)
	token := models.Token{
		Purpose:      models.TokenPurposeDiscordVerification,
		EmailAddress: "a@example.com",
		Value:        uuid.NewString(),
		Data:         "a",
	}
	require.NoError(t, f.db.Create(&token).Error)

	require.NoError(t, consumeToken(f.db, token.ID, time.Now()))
	assert.ErrorIs(t, consumeToken(f.db, token.ID, time.Now()), errTokenConsumed)

	var stored models.Token
	require.NoError(t, f.db.First(&stored, token.ID).Error)
	assert.True(t, stored.IsConsumed())
}

func TestResendVerification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerDiscord(t, "disc1", "Zed")
	first := f.notifier.last(t).Token

	msg, err := f.svc.ResendVerification(ctx, contracts.LogInDiscord{DiscordID: "disc1"})
	require.NoError(t, err)
	assert.Contains(t, msg.Message, "resent")

	second := f.notifier.last(t)
	assert.NotEqual(t, first, second.Token)
	assert.Equal(t, "Zed", second.AccountName)
	assert.Equal(t, int64(2), f.countTokens(t, "disc1"))

	// Superseded tokens are not revoked.
	_, err = f.svc.VerifyDiscord(ctx, first)
	require.NoError(t, err)

	_, err = f.svc.ResendVerification(ctx, contracts.LogInDiscord{DiscordID: "disc1"})
	assert.Equal(t, http.StatusConflict, statusOf(err))
	assert.Equal(t, int64(2), f.countTokens(t, "disc1"), "no token minted for a verified user")

	_, err = f.svc.ResendVerification(ctx, contracts.LogInDiscord{DiscordID: "nobody"})
	assert.Equal(t, http.StatusNotFound, statusOf(err))
}

func TestResendVerification_DeliveryFailureIsLogged(t *testing.T) {
	f := newFixture(t)
	f.registerDiscord(t, "disc1", "Zed")
	f.notifier.err = errors.New("discord down")

	msg, err := f.svc.ResendVerification(context.Background(), contracts.LogInDiscord{DiscordID: "disc1"})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.Message)
	assert.Equal(t, int64(2), f.countTokens(t, "disc1"))
	assert.Contains(t, f.logs.String(), "verification message not sent")
}

// ---------- Login ----------

func TestLogIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.registerDiscord(t, "disc1", "Zed")

	token, err := f.svc.LogIn(ctx, contracts.LogIn{Name: "Zed", Password: "Passw0rd!"})
	require.NoError(t, err)
	assert.Equal(t, created.UserID, token.UserID)

	principal, err := f.issuer.Parse(token.Token)
	require.NoError(t, err)
	assert.Equal(t, created.UserID, principal.UserID)
	assert.Equal(t, created.Accounts[0].ID, principal.AccountID)
	assert.Equal(t, "disc1@example.com", principal.Email)

	_, err = f.svc.LogIn(ctx, contracts.LogIn{Name: "Zed", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, statusOf(err))

	_, err = f.svc.LogIn(ctx, contracts.LogIn{Name: "Nobody", Password: "Passw0rd!"})
	assert.Equal(t, http.StatusNotFound, statusOf(err))
}

func TestLogInDiscord_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.LogInDiscord(context.Background(), contracts.LogInDiscord{DiscordID: "nobody"})
	assert.Equal(t, http.StatusNotFound, statusOf(err))
}

func TestLogInDiscord_NoAccounts(t *testing.T) {
	f := newFixture(t)
	created := f.registerDiscord(t, "disc1", "Zed")
	require.NoError(t, f.db.Where("user_id = ?", created.UserID).Delete(&models.Account{}).Error)

	_, err := f.svc.LogInDiscord(context.Background(), contracts.LogInDiscord{DiscordID: "disc1"})
	assert.Equal(t, http.StatusNotFound, statusOf(err))
}

func TestLogin_UnknownRoleIsUnprocessable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.registerDiscord(t, "disc1", "Zed")

	moderator := models.Role{Name: "MODERATOR"}
	require.NoError(t, f.db.Create(&moderator).Error)
	require.NoError(t, f.db.Model(&models.User{}).Where("id = ?", created.UserID).Update("role_id", moderator.ID).Error)

	token, err := f.svc.LogInDiscord(ctx, contracts.LogInDiscord{DiscordID: "disc1"})
	assert.Nil(t, token)
	assert.Equal(t, http.StatusUnprocessableEntity, statusOf(err))

	token, err = f.svc.LogIn(ctx, contracts.LogIn{Name: "Zed", Password: "Passw0rd!"})
	assert.Nil(t, token)
	assert.Equal(t, http.StatusUnprocessableEntity, statusOf(err))

	assert.Contains(t, f.logs.String(), "[BUG]")
}

func TestLogInDiscord_AdministratorRole(t *testing.T) {
	f := newFixture(t)
	created := f.registerDiscord(t, "disc1", "Boss")

	var admin models.Role
	require.NoError(t, f.db.Where("name = ?", string(models.RoleAdministrator)).First(&admin).Error)
	require.NoError(t, f.db.Model(&models.User{}).Where("id = ?", created.UserID).Update("role_id", admin.ID).Error)

	token, err := f.svc.LogInDiscord(context.Background(), contracts.LogInDiscord{DiscordID: "disc1"})
	require.NoError(t, err)
	assert.Equal(t, string(models.RoleAdministrator), token.Role)

	principal, err := f.issuer.Parse(token.Token)
	require.NoError(t, err)
	assert.True(t, principal.IsAdministrator())
}

func TestLogInDiscord_RefreshesDiscordIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerDiscord(t, "disc123", "Zed")

	// a login without identity fields leaves the stored ones alone
	_, err := f.svc.LogInDiscord(ctx, contracts.LogInDiscord{DiscordID: "disc123"})
	require.NoError(t, err)
	user, err := f.svc.GetUserByDiscordID(ctx, "disc123")
	require.NoError(t, err)
	assert.Equal(t, "user_disc123", user.DiscordUsername)

	avatar := "a_new"
	_, err = f.svc.LogInDiscord(ctx, contracts.LogInDiscord{DiscordID: "disc123", DiscordUsername: "zed_renamed", DiscordAvatarHash: &avatar})
	require.NoError(t, err)
	user, err = f.svc.GetUserByDiscordID(ctx, "disc123")
	require.NoError(t, err)
	assert.Equal(t, "zed_renamed", user.DiscordUsername)
	require.NotNil(t, user.DiscordAvatarHash)
	assert.Equal(t, "a_new", *user.DiscordAvatarHash)

	// removing the avatar on Discord clears it here
	_, err = f.svc.LogInDiscord(ctx, contracts.LogInDiscord{DiscordID: "disc123", DiscordUsername: "zed_renamed"})
	require.NoError(t, err)
	user, err = f.svc.GetUserByDiscordID(ctx, "disc123")
	require.NoError(t, err)
	assert.Nil(t, user.DiscordAvatarHash)
}

// ---------- Email registration ----------

func (f *fixture) emailToken(t *testing.T, emailAddress string) string {
	t.Helper()
	token := models.Token{
		Purpose:      models.TokenPurposeEmailAddressVerification,
		EmailAddress: emailAddress,
		Value:        uuid.NewString(),
		Data:         emailAddress,
	}
	require.NoError(t, f.db.Create(&token).Error)
	return token.Value
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	value := f.emailToken(t, "new@example.com")

	in := contracts.RegisterUser{Token: value, Name: "Newbie", Password: "Passw0rd!", ConfirmPassword: "Passw0rd!"}
	user, err := f.svc.Register(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", user.EmailAddress)
	require.Len(t, user.Accounts, 1)
	assert.Equal(t, "Newbie", user.Accounts[0].Name)

	var token models.Token
	require.NoError(t, f.db.Where("value = ?", value).First(&token).Error)
	assert.True(t, token.IsConsumed())

	var account models.Account
	require.NoError(t, f.db.Where("name = ?", "Newbie").First(&account).Error)
	assert.True(t, account.IsMain)

	_, err = f.svc.Register(ctx, in)
	assert.Equal(t, http.StatusConflict, statusOf(err))
	assert.Contains(t, f.logs.String(), "registration confirmation email")
}

func TestRegister_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, contracts.RegisterUser{Token: uuid.NewString(), Name: "Newbie", Password: "Passw0rd!", ConfirmPassword: "Passw0rd!"})
	assert.Equal(t, http.StatusNotFound, statusOf(err))

	_, err = f.svc.Register(ctx, contracts.RegisterUser{Token: uuid.NewString(), Name: "Newbie", Password: "Passw0rd!", ConfirmPassword: "nope"})
	assert.Equal(t, http.StatusBadRequest, statusOf(err))

	first := f.emailToken(t, "dup@example.com")
	_, err = f.svc.Register(ctx, contracts.RegisterUser{Token: first, Name: "First", Password: "Passw0rd!", ConfirmPassword: "Passw0rd!"})
	require.NoError(t, err)

	second := f.emailToken(t, "dup@example.com")
	_, err = f.svc.Register(ctx, contracts.RegisterUser{Token: second, Name: "Second", Password: "Passw0rd!", ConfirmPassword: "Passw0rd!"})
	assert.Equal(t, http.StatusConflict, statusOf(err))

	third := f.emailToken(t, "other@example.com")
	_, err = f.svc.Register(ctx, contracts.RegisterUser{Token: third, Name: "First", Password: "Passw0rd!", ConfirmPassword: "Passw0rd!"})
	assert.Equal(t, http.StatusConflict, statusOf(err))
}

// ---------- Lookup ----------

func TestGetUser_MasksEmailForStandardUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.registerDiscord(t, "disc1", "Zed")

	clan := models.Clan{Name: "Legion", Tag: "LGN"}
	require.NoError(t, f.db.Create(&clan).Error)
	require.NoError(t, f.db.Model(&models.Account{}).Where("user_id = ?", created.UserID).Update("clan_id", clan.ID).Error)

	asAdmin, err := f.svc.GetUser(ctx, created.UserID, models.RoleAdministrator)
	require.NoError(t, err)
	assert.Equal(t, "disc1@example.com", asAdmin.EmailAddress)
	require.Len(t, asAdmin.Accounts, 1)
	assert.Equal(t, "[LGN]Zed", asAdmin.Accounts[0].Name)

	asUser, err := f.svc.GetUser(ctx, created.UserID, models.RoleUser)
	require.NoError(t, err)
	assert.Equal(t, "*****@*******.***", asUser.EmailAddress)

	_, err = f.svc.GetUser(ctx, 9999, models.RoleAdministrator)
	assert.Equal(t, http.StatusNotFound, statusOf(err))
}

func TestGetUserByDiscordID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.registerDiscord(t, "disc1", "Zed")

	user, err := f.svc.GetUserByDiscordID(ctx, "disc1")
	require.NoError(t, err)
	assert.Equal(t, created.UserID, user.UserID)
	assert.Equal(t, "user_disc1", user.DiscordUsername)
	assert.False(t, user.IsVerified)
	require.Len(t, user.Accounts, 1)

	_, err = f.svc.GetUserByDiscordID(ctx, "nobody")
	assert.Equal(t, http.StatusNotFound, statusOf(err))
}

func TestCheckAccountName(t *testing.T) {
	f := newFixture(t)
	f.registerDiscord(t, "disc1", "Zed")

	got, err := f.svc.CheckAccountName(context.Background(), "Zed")
	require.NoError(t, err)
	assert.Equal(t, &contracts.AccountNameAvailability{IsAvailable: false, AccountName: "Zed"}, got)

	got, err = f.svc.CheckAccountName(context.Background(), "Free")
	require.NoError(t, err)
	assert.True(t, got.IsAvailable)
}

func TestMaskEmailAddress(t *testing.T) {
	assert.Equal(t, "***.*@*******.***", MaskEmailAddress("zed.1@example.com"))
	assert.Equal(t, "", MaskEmailAddress(""))
}

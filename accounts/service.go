// Package accounts implements user registration, login and the Discord
// verification handshake of the account API.
package accounts

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/apierrors"
	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/claims"
	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/contracts"
	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/credentials"
	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/metrics"
	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/models"
	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/validation"
)

const tokenTypeJWT = "JWT"

// fallback name used in verification messages for users without accounts
const defaultAccountName = "Player"

var errTokenConsumed = errors.New("token already consumed")

type Config struct {
	// EnforcePasswordPolicy is disabled in development.
	EnforcePasswordPolicy bool
}

type Service struct {
	db       *gorm.DB
	issuer   *claims.Issuer
	notifier Notifier
	mailer   Mailer
	validate *validator.Validate
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(db *gorm.DB, issuer *claims.Issuer, notifier Notifier, mailer Mailer, logger *slog.Logger, cfg Config) *Service {
	return &Service{
		db:       db,
		issuer:   issuer,
		notifier: notifier,
		mailer:   mailer,
		validate: validation.New(),
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// ---------- Registration ----------

// Register creates a user and its main account from an email registration
// token, consuming the token.
func (s *Service) Register(ctx context.Context, in contracts.RegisterUser) (*contracts.BasicUser, error) {
	user, err := s.register(ctx, in)
	metrics.ObserveRegistration("email", err)
	return user, err
}

func (s *Service) register(ctx context.Context, in contracts.RegisterUser) (*contracts.BasicUser, error) {
	if err := s.checkInput(in); err != nil {
		return nil, err
	}
	if err := s.checkPassword(in.Password, in.ConfirmPassword); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)

	var token models.Token
	err := db.Where("value = ? AND purpose = ?", in.Token, models.TokenPurposeEmailAddressVerification).First(&token).Error
	if isNotFound(err) {
		return nil, apierrors.NewNotFoundError(fmt.Sprintf("Email registration token %q", in.Token))
	}
	if err != nil {
		return nil, s.internal(ctx, "load registration token", err)
	}
	if token.IsConsumed() {
		return nil, apierrors.NewConflictError(fmt.Sprintf("Email registration token %q has already been consumed", in.Token))
	}

	emailAddress := token.Data

	taken, err := exists(db.Model(&models.User{}).Where("email_address = ?", emailAddress))
	if err != nil {
		return nil, s.internal(ctx, "check email address", err)
	}
	if taken {
		return nil, apierrors.NewConflictError(fmt.Sprintf("User with email %q already exists", emailAddress))
	}

	if err := s.checkAccountNameFree(ctx, in.Name); err != nil {
		return nil, err
	}

	role, err := s.standardRole(ctx)
	if isNotFound(err) {
		return nil, apierrors.NewNotFoundError(fmt.Sprintf("User role %q", models.RoleUser))
	}
	if err != nil {
		return nil, s.internal(ctx, "load standard role", err)
	}

	user, err := newUser(emailAddress, in.Name, in.Password, role)
	if err != nil {
		return nil, s.internal(ctx, "derive credentials", err)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		return consumeToken(tx, token.ID, s.now())
	})
	switch {
	case errors.Is(err, errTokenConsumed):
		return nil, apierrors.NewConflictError(fmt.Sprintf("Email registration token %q has already been consumed", in.Token))
	case isDuplicateKey(err):
		return nil, apierrors.NewConflictError(fmt.Sprintf("Account with name %q already exists", in.Name))
	case err != nil:
		return nil, s.internal(ctx, "create user", err)
	}

	account := user.Accounts[0]

	if err := s.mailer.SendEmailAddressRegistrationConfirmation(ctx, user.EmailAddress, account.Name); err != nil {
		s.logger.WarnContext(ctx, "registration confirmation not sent", "user_id", user.ID, "error", err)
	}

	return &contracts.BasicUser{
		ID:           user.ID,
		EmailAddress: user.EmailAddress,
		Accounts:     []contracts.BasicAccount{{ID: account.ID, Name: account.Name}},
	}, nil
}

// RegisterDiscord creates an unverified user linked to a Discord identity,
// its main account and a verification token, then sends the verification
// link by direct message.
func (s *Service) RegisterDiscord(ctx context.Context, in contracts.RegisterDiscordUser) (*contracts.DiscordUser, error) {
	user, err := s.registerDiscord(ctx, in)
	metrics.ObserveRegistration("discord", err)
	return user, err
}

func (s *Service) registerDiscord(ctx context.Context, in contracts.RegisterDiscordUser) (*contracts.DiscordUser, error) {
	if err := s.checkInput(in); err != nil {
		return nil, err
	}
	if err := s.checkPassword(in.Password, in.ConfirmPassword); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)

	taken, err := exists(db.Model(&models.User{}).Where("discord_id = ?", in.DiscordID))
	if err != nil {
		return nil, s.internal(ctx, "check discord id", err)
	}
	if taken {
		return nil, apierrors.NewConflictError(fmt.Sprintf("User with Discord ID %q already exists", in.DiscordID))
	}

	if err := s.checkAccountNameFree(ctx, in.AccountName); err != nil {
		return nil, err
	}

	role, err := s.standardRole(ctx)
	if isNotFound(err) {
		return nil, apierrors.ErrBadRequest.WithMessage(fmt.Sprintf("User role %q was not found", models.RoleUser))
	}
	if err != nil {
		return nil, s.internal(ctx, "load standard role", err)
	}

	user, err := newUser(in.DiscordEmail, in.AccountName, in.Password, role)
	if err != nil {
		return nil, s.internal(ctx, "derive credentials", err)
	}
	user.DiscordIdentity = models.DiscordIdentity{
		DiscordID:         &in.DiscordID,
		DiscordUsername:   &in.DiscordUsername,
		DiscordAvatarHash: in.DiscordAvatarHash,
	}

	token, err := newDiscordVerificationToken(in.DiscordEmail, in.DiscordID)
	if err != nil {
		return nil, s.internal(ctx, "mint verification token", err)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		return tx.Create(token).Error
	})
	switch {
	case isDuplicateKey(err):
		return nil, apierrors.NewConflictError(fmt.Sprintf("Account with name %q, Discord ID %q or email address %q already exists", in.AccountName, in.DiscordID, in.DiscordEmail))
	case err != nil:
		return nil, s.internal(ctx, "create discord user", err)
	}

	account := user.Accounts[0]

	// The user exists either way; a failed message can be retried with ResendVerification.
	if err := s.sendVerification(ctx, in.DiscordID, account.Name, token.Value); err != nil {
		s.logger.WarnContext(ctx, "verification message not sent", "discord_id", in.DiscordID, "error", err)
	}

	return &contracts.DiscordUser{
		UserID:            user.ID,
		DiscordID:         in.DiscordID,
		DiscordUsername:   in.DiscordUsername,
		DiscordAvatarHash: in.DiscordAvatarHash,
		EmailAddress:      user.EmailAddress,
		IsVerified:        user.IsVerified,
		Accounts:          []contracts.BasicAccount{{ID: account.ID, Name: account.Name}},
	}, nil
}

// CheckAccountName reports whether name is free. The answer is advisory;
// registration re-checks and the unique index decides races.
func (s *Service) CheckAccountName(ctx context.Context, name string) (*contracts.AccountNameAvailability, error) {
	taken, err := exists(s.db.WithContext(ctx).Model(&models.Account{}).Where("name = ?", name))
	if err != nil {
		return nil, s.internal(ctx, "check account name", err)
	}
	return &contracts.AccountNameAvailability{IsAvailable: !taken, AccountName: name}, nil
}

// ---------- Login ----------

// LogIn authenticates an account by name and password.
func (s *Service) LogIn(ctx context.Context, in contracts.LogIn) (*contracts.AuthenticationToken, error) {
	token, err := s.logIn(ctx, in)
	metrics.ObserveLogin("password", err)
	return token, err
}

func (s *Service) logIn(ctx context.Context, in contracts.LogIn) (*contracts.AuthenticationToken, error) {
	if err := s.checkInput(in); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)

	var account models.Account
	err := db.Preload("Clan").Where("name = ?", in.Name).First(&account).Error
	if isNotFound(err) {
		return nil, apierrors.NewNotFoundError(fmt.Sprintf("Account %q", in.Name))
	}
	if err != nil {
		return nil, s.internal(ctx, "load account", err)
	}

	var user models.User
	err = db.Preload("Role").First(&user, account.UserID).Error
	if isNotFound(err) {
		return nil, apierrors.NewNotFoundError(fmt.Sprintf("Account %q", in.Name))
	}
	if err != nil {
		return nil, s.internal(ctx, "load user", err)
	}

	if !credentials.VerifyPBKDF2(user.PBKDF2PasswordHash, in.Password) {
		return nil, apierrors.NewUnauthorizedError("Invalid user name and/or password")
	}

	return s.issueToken(ctx, &user, &account)
}

// LogInDiscord authenticates a user by Discord ID, acting for the main
// account.
func (s *Service) LogInDiscord(ctx context.Context, in contracts.LogInDiscord) (*contracts.AuthenticationToken, error) {
	token, err := s.logInDiscord(ctx, in)
	metrics.ObserveLogin("discord", err)
	return token, err
}

func (s *Service) logInDiscord(ctx context.Context, in contracts.LogInDiscord) (*contracts.AuthenticationToken, error) {
	if err := s.checkInput(in); err != nil {
		return nil, err
	}

	user, err := s.userByDiscordID(ctx, in.DiscordID, "Role", "Accounts.Clan")
	if isNotFound(err) {
		return nil, apierrors.NewNotFoundError(fmt.Sprintf("User with Discord ID %q", in.DiscordID))
	}
	if err != nil {
		return nil, s.internal(ctx, "load user", err)
	}

	account := user.MainAccount()
	if account == nil {
		return nil, apierrors.ErrNotFound.WithMessage(fmt.Sprintf("User with Discord ID %q has no accounts", in.DiscordID))
	}

	s.refreshDiscordIdentity(ctx, user, in)

	return s.issueToken(ctx, user, account)
}

// refreshDiscordIdentity stores the username and avatar Discord reported at
// sign-in when they changed since they were last saved.
func (s *Service) refreshDiscordIdentity(ctx context.Context, user *models.User, in contracts.LogInDiscord) {
	if in.DiscordUsername == "" {
		return
	}
	if equalString(user.DiscordUsername, &in.DiscordUsername) && equalString(user.DiscordAvatarHash, in.DiscordAvatarHash) {
		return
	}

	username := in.DiscordUsername
	err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).Updates(map[string]any{
		"discord_username":    username,
		"discord_avatar_hash": in.DiscordAvatarHash,
	}).Error
	if err != nil {
		// a stale username must not block the login
		s.logger.WarnContext(ctx, "refresh discord identity", "user_id", user.ID, "error", err)
		return
	}

	user.DiscordUsername = &username
	user.DiscordAvatarHash = in.DiscordAvatarHash
	s.logger.InfoContext(ctx, "discord identity refreshed", "user_id", user.ID, "discord_username", username)
}

func equalString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (s *Service) issueToken(ctx context.Context, user *models.User, account *models.Account) (*contracts.AuthenticationToken, error) {
	role, err := models.ParseRoleName(user.Role.Name)
	if err != nil {
		s.logger.ErrorContext(ctx, "[BUG] unknown user role", "role", user.Role.Name, "user_id", user.ID)
		return nil, apierrors.ErrUnprocessable.WithMessage(fmt.Sprintf("Unknown user role %q", user.Role.Name))
	}

	token, err := s.issuer.Issue(claims.Subject{User: user, Account: account, Role: role})
	if err != nil {
		return nil, s.internal(ctx, "issue token", err)
	}

	return &contracts.AuthenticationToken{
		UserID:     user.ID,
		TokenType:  tokenTypeJWT,
		Token:      token,
		IsVerified: user.IsVerified,
		Role:       string(role),
	}, nil
}

// ---------- Lookup ----------

// GetUser returns a user as seen by a caller holding callerRole. Only
// administrators see the email address unmasked.
func (s *Service) GetUser(ctx context.Context, id uint, callerRole models.RoleName) (*contracts.BasicUser, error) {
	var user models.User
	err := s.db.WithContext(ctx).Preload("Accounts.Clan").First(&user, id).Error
	if isNotFound(err) {
		return nil, apierrors.NewNotFoundError(fmt.Sprintf("User with ID %d", id))
	}
	if err != nil {
		return nil, s.internal(ctx, "load user", err)
	}
	sortAccounts(user.Accounts)

	emailAddress := user.EmailAddress
	switch callerRole {
	case models.RoleAdministrator:
	case models.RoleUser:
		emailAddress = MaskEmailAddress(emailAddress)
	default:
		s.logger.ErrorContext(ctx, "[BUG] unknown caller role", "role", callerRole)
		return nil, apierrors.ErrBadRequest.WithMessage(fmt.Sprintf("Unknown user role %q", callerRole))
	}

	return &contracts.BasicUser{
		ID:           user.ID,
		EmailAddress: emailAddress,
		Accounts:     basicAccounts(user.Accounts),
	}, nil
}

// GetUserByDiscordID returns the user linked to discordID.
func (s *Service) GetUserByDiscordID(ctx context.Context, discordID string) (*contracts.DiscordUser, error) {
	user, err := s.userByDiscordID(ctx, discordID, "Accounts.Clan")
	if isNotFound(err) {
		return nil, apierrors.NewNotFoundError(fmt.Sprintf("User with Discord ID %q", discordID))
	}
	if err != nil {
		return nil, s.internal(ctx, "load user", err)
	}

	var username string
	if user.DiscordUsername != nil {
		username = *user.DiscordUsername
	}

	return &contracts.DiscordUser{
		UserID:            user.ID,
		DiscordID:         discordID,
		DiscordUsername:   username,
		DiscordAvatarHash: user.DiscordAvatarHash,
		EmailAddress:      user.EmailAddress,
		IsVerified:        user.IsVerified,
		Accounts:          basicAccounts(user.Accounts),
	}, nil
}

// ---------- Verification ----------

// VerifyDiscord redeems a Discord verification token. The token is stamped
// and the user flagged verified in one transaction; a token can be redeemed
// once even under concurrent requests.
func (s *Service) VerifyDiscord(ctx context.Context, tokenValue string) (*contracts.Message, error) {
	msg, err := s.verifyDiscord(ctx, tokenValue)
	metrics.ObserveVerification(err)
	return msg, err
}

func (s *Service) verifyDiscord(ctx context.Context, tokenValue string) (*contracts.Message, error) {
	parsed, err := uuid.Parse(tokenValue)
	if err != nil {
		return nil, apierrors.ErrBadRequest.WithMessage("Invalid verification token format.")
	}

	db := s.db.WithContext(ctx)

	var token models.Token
	err = db.Where("value = ? AND purpose = ?", parsed.String(), models.TokenPurposeDiscordVerification).First(&token).Error
	if isNotFound(err) {
		return nil, apierrors.ErrNotFound.WithMessage("Verification token was not found.")
	}
	if err != nil {
		return nil, s.internal(ctx, "load verification token", err)
	}
	if token.IsConsumed() {
		return nil, apierrors.NewConflictError("This verification token has already been used.")
	}

	var user models.User
	err = db.Where("discord_id = ?", token.Data).First(&user).Error
	if isNotFound(err) {
		return nil, apierrors.ErrNotFound.WithMessage("User associated with this verification token was not found.")
	}
	if err != nil {
		return nil, s.internal(ctx, "load user", err)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := consumeToken(tx, token.ID, s.now()); err != nil {
			return err
		}
		return tx.Model(&models.User{}).Where("id = ?", user.ID).Update("is_verified", true).Error
	})
	if errors.Is(err, errTokenConsumed) {
		return nil, apierrors.NewConflictError("This verification token has already been used.")
	}
	if err != nil {
		return nil, s.internal(ctx, "redeem verification token", err)
	}

	s.logger.InfoContext(ctx, "discord account verified", "user_id", user.ID)
	return &contracts.Message{Message: "Account verified successfully."}, nil
}

// ResendVerification mints a fresh verification token for an unverified
// user and sends it. Tokens sent earlier stay redeemable.
func (s *Service) ResendVerification(ctx context.Context, in contracts.LogInDiscord) (*contracts.Message, error) {
	if err := s.checkInput(in); err != nil {
		return nil, err
	}

	user, err := s.userByDiscordID(ctx, in.DiscordID, "Accounts")
	if isNotFound(err) {
		return nil, apierrors.ErrNotFound.WithMessage(fmt.Sprintf("User with Discord ID %q was not found.", in.DiscordID))
	}
	if err != nil {
		return nil, s.internal(ctx, "load user", err)
	}
	if user.IsVerified {
		return nil, apierrors.NewConflictError("User is already verified.")
	}

	accountName := defaultAccountName
	if account := user.MainAccount(); account != nil {
		accountName = account.Name
	}

	token, err := newDiscordVerificationToken(user.EmailAddress, in.DiscordID)
	if err != nil {
		return nil, s.internal(ctx, "mint verification token", err)
	}
	if err := s.db.WithContext(ctx).Create(token).Error; err != nil {
		return nil, s.internal(ctx, "store verification token", err)
	}

	if err := s.sendVerification(ctx, in.DiscordID, accountName, token.Value); err != nil {
		s.logger.WarnContext(ctx, "verification message not sent", "discord_id", in.DiscordID, "error", err)
	}

	return &contracts.Message{Message: "Verification link has been resent to your Discord DM."}, nil
}

func (s *Service) sendVerification(ctx context.Context, discordID, accountName, token string) error {
	err := s.notifier.SendVerificationDM(ctx, discordID, accountName, token)
	metrics.ObserveVerificationMessage(err)
	return err
}

// ---------- Helpers ----------

func (s *Service) checkInput(in any) error {
	if err := s.validate.Struct(in); err != nil {
		if fields := validation.Fields(err); fields != nil {
			return apierrors.NewValidationErrors(fields)
		}
		return apierrors.ErrBadRequest
	}
	return nil
}

func (s *Service) checkPassword(password, confirmPassword string) error {
	if password != confirmPassword {
		return apierrors.NewValidationError("confirmPassword", "Passwords do not match")
	}
	if s.cfg.EnforcePasswordPolicy {
		if problems := validation.PasswordProblems(password); len(problems) > 0 {
			return apierrors.NewValidationError("password", strings.Join(problems, ". "))
		}
	}
	return nil
}

func (s *Service) checkAccountNameFree(ctx context.Context, name string) error {
	taken, err := exists(s.db.WithContext(ctx).Model(&models.Account{}).Where("name = ?", name))
	if err != nil {
		return s.internal(ctx, "check account name", err)
	}
	if taken {
		return apierrors.NewConflictError(fmt.Sprintf("Account with name %q already exists", name))
	}
	return nil
}

func (s *Service) standardRole(ctx context.Context) (*models.Role, error) {
	var role models.Role
	if err := s.db.WithContext(ctx).Where("name = ?", string(models.RoleUser)).First(&role).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

func (s *Service) userByDiscordID(ctx context.Context, discordID string, preloads ...string) (*models.User, error) {
	q := s.db.WithContext(ctx)
	for _, p := range preloads {
		q = q.Preload(p)
	}

	var user models.User
	if err := q.Where("discord_id = ?", discordID).First(&user).Error; err != nil {
		return nil, err
	}
	sortAccounts(user.Accounts)
	return &user, nil
}

func (s *Service) internal(ctx context.Context, op string, err error) error {
	s.logger.ErrorContext(ctx, op+" failed", "error", err)
	return apierrors.ErrInternal
}

func newUser(emailAddress, accountName, password string, role *models.Role) (*models.User, error) {
	creds, err := credentials.Derive(password)
	if err != nil {
		return nil, err
	}
	return &models.User{
		EmailAddress:       emailAddress,
		PBKDF2PasswordHash: creds.PBKDF2Hash,
		SRPPasswordSalt:    creds.SRPSalt,
		SRPPasswordHash:    creds.SRPHash,
		RoleID:             role.ID,
		Accounts:           []models.Account{{Name: accountName, IsMain: true}},
	}, nil
}

func newDiscordVerificationToken(emailAddress, discordID string) (*models.Token, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	return &models.Token{
		Purpose:      models.TokenPurposeDiscordVerification,
		EmailAddress: emailAddress,
		Value:        value.String(),
		Data:         discordID,
	}, nil
}

// consumeToken stamps a token that has not been consumed yet.
func consumeToken(tx *gorm.DB, id uint, now time.Time) error {
	res := tx.Model(&models.Token{}).
		Where("id = ? AND timestamp_consumed IS NULL", id).
		Update("timestamp_consumed", now)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errTokenConsumed
	}
	return nil
}

func exists(q *gorm.DB) (bool, error) {
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func sortAccounts(accounts []models.Account) {
	slices.SortFunc(accounts, func(a, b models.Account) int {
		return cmp.Compare(a.ID, b.ID)
	})
}

func basicAccounts(accounts []models.Account) []contracts.BasicAccount {
	out := make([]contracts.BasicAccount, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, contracts.BasicAccount{ID: a.ID, Name: a.NameWithClanTag()})
	}
	return out
}

// MaskEmailAddress replaces every letter and digit with '*', keeping the
// shape of the address.
func MaskEmailAddress(emailAddress string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return '*'
		}
		return r
	}, emailAddress)
}

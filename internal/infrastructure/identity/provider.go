package identity

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/growsmart/internal/domain"
	"github.com/growsmart/internal/infrastructure/smtp"
	"github.com/growsmart/internal/infrastructure/sns"
	"github.com/growsmart/internal/pkg/id"
	"golang.org/x/crypto/bcrypt"
)

const (
	otpDigits          = 6
	maxOTPAttempts     = 5
	minPasswordLength  = 6
	emailTokenTTL      = 24 * time.Hour
	resetTokenTTL      = time.Hour
	tokenTypeEmail     = "email"
	tokenTypeReset     = "reset"
	fieldPasswordHash  = "password_hash"
	fieldEmailVerified = "email_verified"
)

type accountStore interface {
	Put(ctx context.Context, a *domain.Account) error
	Get(ctx context.Context, accountID string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	GetByPhone(ctx context.Context, phone string) (*domain.Account, error)
	Update(ctx context.Context, accountID string, updates map[string]interface{}) error
}

type challengeStore interface {
	Put(ctx context.Context, c *domain.PhoneChallenge) error
	Get(ctx context.Context, handle string) (*domain.PhoneChallenge, error)
	SetAttempts(ctx context.Context, handle string, attempts int) error
	Delete(ctx context.Context, handle string) error
}

type tokenStore interface {
	Put(ctx context.Context, t *domain.AccountToken) error
	Get(ctx context.Context, accountID, tokenType string) (*domain.AccountToken, error)
	Delete(ctx context.Context, accountID, tokenType string) error
}

type tokenSigner interface {
	Sign(id domain.Identity) (string, error)
}

type throttle interface {
	Allow(ctx context.Context, key string) bool
}

// ProviderDeps holds the collaborators of the identity provider.
// Throttle may be nil. With a nil SMS sender phone challenges are unavailable.
type ProviderDeps struct {
	Accounts   accountStore
	Challenges challengeStore
	Tokens     tokenStore
	Mailer     smtp.Mailer
	SMS        sns.SMSSender
	Signer     tokenSigner
	Throttle   throttle
	OTPTTL     time.Duration
}

// Provider is the identity oracle: credential checks, phone challenges,
// verification and reset mail, and signed identity tokens.
type Provider struct {
	accounts   accountStore
	challenges challengeStore
	tokens     tokenStore
	mailer     smtp.Mailer
	sms        sns.SMSSender
	signer     tokenSigner
	throttle   throttle
	otpTTL     time.Duration
}

func NewProvider(deps ProviderDeps) *Provider {
	ttl := deps.OTPTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Provider{
		accounts:   deps.Accounts,
		challenges: deps.Challenges,
		tokens:     deps.Tokens,
		mailer:     deps.Mailer,
		sms:        deps.SMS,
		signer:     deps.Signer,
		throttle:   deps.Throttle,
		otpTTL:     ttl,
	}
}

// Authenticate checks an email and password pair.
func (p *Provider) Authenticate(ctx context.Context, email, password string) (domain.Identity, error) {
	a, err := p.accounts.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Identity{}, fmt.Errorf("invalid email or password: %w", domain.ErrAuthentication)
	}
	if err != nil {
		return domain.Identity{}, err
	}
	if a.PasswordHash == "" {
		return domain.Identity{}, fmt.Errorf("invalid email or password: %w", domain.ErrAuthentication)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil {
		return domain.Identity{}, fmt.Errorf("invalid email or password: %w", domain.ErrAuthentication)
	}
	return p.issue(a)
}

// CreateIdentity registers a new email/password account.
func (p *Provider) CreateIdentity(ctx context.Context, email, password string) (domain.Identity, error) {
	email = normalizeEmail(email)
	if email == "" {
		return domain.Identity{}, domain.NewValidationError("sign-up", "email is required", "email")
	}
	if len(password) < minPasswordLength {
		return domain.Identity{}, domain.NewValidationError("sign-up",
			fmt.Sprintf("password must be at least %d characters", minPasswordLength), "password")
	}
	_, err := p.accounts.GetByEmail(ctx, email)
	if err == nil {
		return domain.Identity{}, fmt.Errorf("email %s already registered: %w", email, domain.ErrConflict)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Identity{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	a := &domain.Account{
		AccountID:    id.New(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := p.accounts.Put(ctx, a); err != nil {
		return domain.Identity{}, err
	}
	return p.issue(a)
}

// SendEmailVerification mails a single-use verification token to the account's address.
func (p *Provider) SendEmailVerification(ctx context.Context, accountID string) error {
	a, err := p.accounts.Get(ctx, accountID)
	if err != nil {
		return err
	}
	if a.Email == "" {
		return fmt.Errorf("account %s has no email: %w", accountID, domain.ErrNotFound)
	}
	token, err := id.Token(16)
	if err != nil {
		return err
	}
	if err := p.tokens.Put(ctx, &domain.AccountToken{
		AccountID: accountID,
		Type:      tokenTypeEmail,
		Code:      token,
		ExpiresAt: time.Now().Add(emailTokenTTL).Unix(),
	}); err != nil {
		return err
	}
	if err := p.mailer.SendEmail(ctx, a.Email, "Verify your GrowSmart email", "Your verification code: "+token); err != nil {
		return fmt.Errorf("send verification mail: %w: %w", domain.ErrUnavailable, err)
	}
	return nil
}

// ConfirmEmail consumes a verification token and marks the address verified.
func (p *Provider) ConfirmEmail(ctx context.Context, accountID, code string) error {
	if err := p.consumeToken(ctx, accountID, tokenTypeEmail, code); err != nil {
		return err
	}
	return p.accounts.Update(ctx, accountID, map[string]interface{}{fieldEmailVerified: true})
}

// SendPasswordReset mails a reset token. Unknown addresses are rejected.
func (p *Provider) SendPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return domain.NewValidationError("forgot-password", "email is required", "email")
	}
	a, err := p.accounts.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("no account for %s: %w", email, domain.ErrNotFound)
	}
	if err != nil {
		return err
	}
	token, err := id.Token(16)
	if err != nil {
		return err
	}
	if err := p.tokens.Put(ctx, &domain.AccountToken{
		AccountID: a.AccountID,
		Type:      tokenTypeReset,
		Code:      token,
		ExpiresAt: time.Now().Add(resetTokenTTL).Unix(),
	}); err != nil {
		return err
	}
	if err := p.mailer.SendEmail(ctx, a.Email, "Reset your GrowSmart password", "Your password reset code: "+token); err != nil {
		return fmt.Errorf("send reset mail: %w: %w", domain.ErrUnavailable, err)
	}
	return nil
}

// ResetPassword consumes a reset token and replaces the password hash.
func (p *Provider) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return domain.NewValidationError("reset-password",
			fmt.Sprintf("password must be at least %d characters", minPasswordLength), "password")
	}
	a, err := p.accounts.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("invalid reset code: %w", domain.ErrAuthentication)
	}
	if err != nil {
		return err
	}
	if err := p.consumeToken(ctx, a.AccountID, tokenTypeReset, code); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return p.accounts.Update(ctx, a.AccountID, map[string]interface{}{fieldPasswordHash: string(hash)})
}

// RequestPhoneChallenge issues a one-time code by SMS and returns the handle
// the code must be confirmed against.
func (p *Provider) RequestPhoneChallenge(ctx context.Context, phone string) (domain.ChallengeHandle, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", domain.NewValidationError("phone-verification", "phone number is required", "phone")
	}
	if p.sms == nil {
		return "", fmt.Errorf("sms delivery is not configured: %w", domain.ErrUnavailable)
	}
	if p.throttle != nil && !p.throttle.Allow(ctx, phone) {
		return "", fmt.Errorf("too many codes requested for %s: %w", phone, domain.ErrRateLimited)
	}
	code, err := id.Code(otpDigits)
	if err != nil {
		return "", err
	}
	c := &domain.PhoneChallenge{
		Handle:    id.New(),
		Phone:     phone,
		Code:      code,
		ExpiresAt: time.Now().Add(p.otpTTL).Unix(),
	}
	if err := p.challenges.Put(ctx, c); err != nil {
		return "", err
	}
	if err := p.sms.SendSMS(ctx, phone, "Your GrowSmart verification code is "+code); err != nil {
		if derr := p.challenges.Delete(ctx, c.Handle); derr != nil {
			slog.Warn("failed to delete undelivered challenge", "handle", c.Handle, "err", derr)
		}
		return "", fmt.Errorf("send otp: %w: %w", domain.ErrUnavailable, err)
	}
	return domain.ChallengeHandle(c.Handle), nil
}

// ConfirmPhoneChallenge exchanges a handle and code for an identity. An
// account is created on first confirmation of an unknown phone number.
func (p *Provider) ConfirmPhoneChallenge(ctx context.Context, handle domain.ChallengeHandle, code string) (domain.Identity, error) {
	c, err := p.challenges.Get(ctx, string(handle))
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Identity{}, fmt.Errorf("verification session expired: %w", domain.ErrAuthentication)
	}
	if err != nil {
		return domain.Identity{}, err
	}
	if c.ExpiresAt < time.Now().Unix() || c.Attempts >= maxOTPAttempts {
		p.dropChallenge(ctx, c.Handle)
		return domain.Identity{}, fmt.Errorf("verification session expired: %w", domain.ErrAuthentication)
	}
	if subtle.ConstantTimeCompare([]byte(c.Code), []byte(code)) != 1 {
		if err := p.challenges.SetAttempts(ctx, c.Handle, c.Attempts+1); err != nil {
			slog.Warn("failed to record otp attempt", "handle", c.Handle, "err", err)
		}
		return domain.Identity{}, fmt.Errorf("invalid verification code: %w", domain.ErrAuthentication)
	}
	p.dropChallenge(ctx, c.Handle)

	a, err := p.accounts.GetByPhone(ctx, c.Phone)
	if errors.Is(err, domain.ErrNotFound) {
		now := time.Now().UTC()
		a = &domain.Account{AccountID: id.New(), Phone: c.Phone, CreatedAt: now, UpdatedAt: now}
		if err := p.accounts.Put(ctx, a); err != nil {
			return domain.Identity{}, err
		}
	} else if err != nil {
		return domain.Identity{}, err
	}
	return p.issue(a)
}

func (p *Provider) issue(a *domain.Account) (domain.Identity, error) {
	ident := a.Identity()
	token, err := p.signer.Sign(ident)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("sign identity token: %w", err)
	}
	ident.Token = token
	return ident, nil
}

func (p *Provider) consumeToken(ctx context.Context, accountID, tokenType, code string) error {
	t, err := p.tokens.Get(ctx, accountID, tokenType)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("invalid %s code: %w", tokenType, domain.ErrAuthentication)
	}
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(t.Code), []byte(code)) != 1 {
		return fmt.Errorf("invalid %s code: %w", tokenType, domain.ErrAuthentication)
	}
	if t.ExpiresAt < time.Now().Unix() {
		return fmt.Errorf("%s code expired: %w", tokenType, domain.ErrAuthentication)
	}
	if err := p.tokens.Delete(ctx, accountID, tokenType); err != nil {
		slog.Warn("failed to delete consumed token", "account_id", accountID, "type", tokenType, "err", err)
	}
	return nil
}

func (p *Provider) dropChallenge(ctx context.Context, handle string) {
	if err := p.challenges.Delete(ctx, handle); err != nil {
		slog.Warn("failed to delete phone challenge", "handle", handle, "err", err)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/growsmart/internal/domain"
)

const otpLength = 6

type SignInRequest struct {
	Method   domain.SignupMethod `json:"method" validate:"required,oneof=email phone"`
	Email    string              `json:"email"`
	Password string              `json:"password"`
	Username string              `json:"username"`
	Phone    string              `json:"phone"`
}

type SignUpRequest struct {
	Method   domain.SignupMethod `json:"method" validate:"required,oneof=email phone"`
	Username string              `json:"username"`
	Email    string              `json:"email"`
	Password string              `json:"password"`
	Phone    string              `json:"phone"`
}

// Snapshot is the observable state of a workflow.
type Snapshot struct {
	State                    domain.AuthState            `json:"state"`
	Identity                 *domain.Identity            `json:"identity,omitempty"`
	Username                 string                      `json:"username,omitempty"`
	Pending                  *domain.PendingVerification `json:"pending,omitempty"`
	EmailVerificationPending bool                        `json:"email_verification_pending"`
	// VerificationEmailSent is false when an email sign-up succeeded but the
	// verification message could not be delivered.
	VerificationEmailSent *bool `json:"verification_email_sent,omitempty"`
}

type sessionStore interface {
	Authenticate(ctx context.Context, email, password string) (domain.Identity, error)
	CreateIdentity(ctx context.Context, email, password string) (domain.Identity, error)
	SendEmailVerification(ctx context.Context) error
	RequestPhoneChallenge(ctx context.Context, phone string) (domain.ChallengeHandle, error)
	ConfirmPhoneChallenge(ctx context.Context, handle domain.ChallengeHandle, code string) (domain.Identity, error)
	SendPasswordReset(ctx context.Context, email string) error
	SignOut()
}

type profileStore interface {
	Get(ctx context.Context, userID string) (*domain.Profile, error)
	Create(ctx context.Context, p *domain.Profile) error
}

type ServiceDeps struct {
	Session  sessionStore
	Profiles profileStore
	// Timeout bounds each profile repository call.
	Timeout time.Duration
}

// Workflow drives sign-in, sign-up and sign-out for one app session.
// At most one operation runs at a time; a concurrent call fails with ErrBusy.
type Workflow struct {
	session  sessionStore
	profiles profileStore
	timeout  time.Duration

	busy sync.Mutex

	mu           sync.RWMutex
	state        domain.AuthState
	identity     *domain.Identity
	username     string
	pending      *domain.PendingVerification
	emailPending bool
	emailSent    *bool
}

func NewWorkflow(deps ServiceDeps) *Workflow {
	return &Workflow{
		session:  deps.Session,
		profiles: deps.Profiles,
		timeout:  deps.Timeout,
		state:    domain.StateSignedOut,
	}
}

// Snapshot returns a copy of the current workflow state.
func (w *Workflow) Snapshot() Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	s := Snapshot{
		State:                    w.state,
		Username:                 w.username,
		EmailVerificationPending: w.emailPending,
		VerificationEmailSent:    w.emailSent,
	}
	if w.identity != nil {
		id := *w.identity
		s.Identity = &id
	}
	if w.pending != nil {
		p := *w.pending
		s.Pending = &p
	}
	return s
}

// SignIn authenticates by email or starts a phone challenge.
func (w *Workflow) SignIn(ctx context.Context, req SignInRequest) (Snapshot, error) {
	if !w.busy.TryLock() {
		return w.Snapshot(), fmt.Errorf("sign-in: %w", domain.ErrBusy)
	}
	defer w.busy.Unlock()

	if err := w.requireSignedOut("sign-in"); err != nil {
		return w.Snapshot(), err
	}
	var err error
	switch req.Method {
	case domain.MethodEmail:
		err = w.signInEmail(ctx, req)
	case domain.MethodPhone:
		err = w.startPhone(ctx, "sign-in", req.Phone, domain.PurposeSignIn, "")
	default:
		err = domain.NewValidationError("sign-in", "unknown sign-in method", "method")
	}
	return w.Snapshot(), err
}

// SignUp creates an email account or starts a phone challenge for a new account.
func (w *Workflow) SignUp(ctx context.Context, req SignUpRequest) (Snapshot, error) {
	if !w.busy.TryLock() {
		return w.Snapshot(), fmt.Errorf("sign-up: %w", domain.ErrBusy)
	}
	defer w.busy.Unlock()

	if err := w.requireSignedOut("sign-up"); err != nil {
		return w.Snapshot(), err
	}
	var err error
	switch req.Method {
	case domain.MethodEmail:
		err = w.signUpEmail(ctx, req)
	case domain.MethodPhone:
		if strings.TrimSpace(req.Username) == "" {
			err = domain.NewValidationError("sign-up", "required fields are empty", "username")
			break
		}
		err = w.startPhone(ctx, "sign-up", req.Phone, domain.PurposeSignUp, strings.TrimSpace(req.Username))
	default:
		err = domain.NewValidationError("sign-up", "unknown sign-up method", "method")
	}
	return w.Snapshot(), err
}

// ConfirmOTP completes a pending phone challenge. Codes that are not exactly
// six digits are rejected without contacting the identity provider. A
// rejected code keeps the workflow awaiting a retry.
func (w *Workflow) ConfirmOTP(ctx context.Context, code string) (Snapshot, error) {
	if !w.busy.TryLock() {
		return w.Snapshot(), fmt.Errorf("otp: %w", domain.ErrBusy)
	}
	defer w.busy.Unlock()

	w.mu.RLock()
	pending := w.pending
	w.mu.RUnlock()
	if pending == nil {
		return w.Snapshot(), fmt.Errorf("no verification in progress: %w", domain.ErrConflict)
	}
	if !isOTP(code) {
		return w.Snapshot(), domain.NewValidationError("otp", "code must be exactly 6 digits", "code")
	}

	id, err := w.session.ConfirmPhoneChallenge(ctx, pending.Handle, code)
	if err != nil {
		return w.Snapshot(), err
	}
	w.mu.Lock()
	w.pending = nil
	w.mu.Unlock()

	p, err := w.getProfile(ctx, id.ID)
	if errors.Is(err, domain.ErrNotFound) && pending.Purpose == domain.PurposeSignUp {
		p = &domain.Profile{
			UserID:       id.ID,
			Username:     pending.Username,
			MobileNumber: pending.Phone,
			CreatedAt:    time.Now().UTC(),
		}
		err = w.createProfile(ctx, p)
	}
	if err != nil {
		w.enterIncomplete(id)
		return w.Snapshot(), err
	}
	w.enterSignedIn(id, p.Username, false)
	return w.Snapshot(), nil
}

// CancelOTP abandons a pending phone challenge.
func (w *Workflow) CancelOTP() (Snapshot, error) {
	if !w.busy.TryLock() {
		return w.Snapshot(), fmt.Errorf("otp: %w", domain.ErrBusy)
	}
	defer w.busy.Unlock()

	w.mu.Lock()
	if w.state == domain.StateAwaitingOTP {
		w.pending = nil
		w.state = domain.StateSignedOut
	}
	w.mu.Unlock()
	return w.Snapshot(), nil
}

// ForgotPassword requests a reset message. The workflow state is unchanged.
func (w *Workflow) ForgotPassword(ctx context.Context, email string) error {
	if !w.busy.TryLock() {
		return fmt.Errorf("forgot-password: %w", domain.ErrBusy)
	}
	defer w.busy.Unlock()

	email = strings.TrimSpace(email)
	if email == "" {
		return domain.NewValidationError("forgot-password", "email is required", "email")
	}
	return w.session.SendPasswordReset(ctx, email)
}

// SignOut returns to SignedOut from any state and clears cached session data.
func (w *Workflow) SignOut() (Snapshot, error) {
	if !w.busy.TryLock() {
		return w.Snapshot(), fmt.Errorf("sign-out: %w", domain.ErrBusy)
	}
	defer w.busy.Unlock()
	w.reset()
	return w.Snapshot(), nil
}

func (w *Workflow) signInEmail(ctx context.Context, req SignInRequest) error {
	email := strings.TrimSpace(req.Email)
	username := strings.TrimSpace(req.Username)
	if missing := emptyFields(map[string]string{"email": email, "password": req.Password, "username": username}); len(missing) > 0 {
		return domain.NewValidationError("sign-in", "required fields are empty", missing...)
	}

	id, err := w.session.Authenticate(ctx, email, req.Password)
	if err != nil {
		return err
	}
	p, err := w.getProfile(ctx, id.ID)
	if err != nil {
		w.enterIncomplete(id)
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("no profile data for %s: %w", id.ID, err)
		}
		return err
	}
	if p.Username != username {
		slog.Warn("username mismatch on sign-in", "identity_id", id.ID)
		w.reset()
		return fmt.Errorf("username does not match: %w: %w", domain.ErrAuthentication, domain.ErrIntegrity)
	}
	w.enterSignedIn(id, p.Username, !id.EmailVerified)
	return nil
}

func (w *Workflow) signUpEmail(ctx context.Context, req SignUpRequest) error {
	username := strings.TrimSpace(req.Username)
	email := strings.TrimSpace(req.Email)
	if missing := emptyFields(map[string]string{"username": username, "email": email, "password": req.Password}); len(missing) > 0 {
		return domain.NewValidationError("sign-up", "required fields are empty", missing...)
	}

	id, err := w.session.CreateIdentity(ctx, email, req.Password)
	if err != nil {
		return err
	}
	sent := true
	if err := w.session.SendEmailVerification(ctx); err != nil {
		slog.Warn("verification email not sent", "identity_id", id.ID, "err", err)
		sent = false
	}

	p := &domain.Profile{
		UserID:       id.ID,
		Username:     username,
		Email:        email,
		MobileNumber: strings.TrimSpace(req.Phone),
		CreatedAt:    time.Now().UTC(),
	}
	if err := w.createProfile(ctx, p); err != nil {
		slog.Error("profile creation failed after sign-up", "identity_id", id.ID, "err", err)
		w.reset()
		return err
	}
	w.enterSignedIn(id, username, true)
	w.mu.Lock()
	w.emailSent = &sent
	w.mu.Unlock()
	return nil
}

func (w *Workflow) startPhone(ctx context.Context, flow, phone string, purpose domain.Purpose, username string) error {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return domain.NewValidationError(flow, "required fields are empty", "phone")
	}
	h, err := w.session.RequestPhoneChallenge(ctx, phone)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.pending = &domain.PendingVerification{Handle: h, Phone: phone, Purpose: purpose, Username: username}
	w.state = domain.StateAwaitingOTP
	w.mu.Unlock()
	slog.Info("phone challenge issued", "purpose", purpose)
	return nil
}

// requireSignedOut allows a new attempt from SignedOut or AwaitingOtp; the
// latter replaces the pending challenge.
func (w *Workflow) requireSignedOut(flow string) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.state == domain.StateSignedIn || w.state == domain.StateSignedInIncomplete {
		return fmt.Errorf("%s: already signed in: %w", flow, domain.ErrConflict)
	}
	return nil
}

func (w *Workflow) enterSignedIn(id domain.Identity, username string, emailPending bool) {
	w.mu.Lock()
	w.state = domain.StateSignedIn
	w.identity = &id
	w.username = username
	w.pending = nil
	w.emailPending = emailPending
	w.emailSent = nil
	w.mu.Unlock()
	slog.Info("signed in", "identity_id", id.ID)
}

func (w *Workflow) enterIncomplete(id domain.Identity) {
	w.mu.Lock()
	w.state = domain.StateSignedInIncomplete
	w.identity = &id
	w.username = ""
	w.pending = nil
	w.mu.Unlock()
	slog.Warn("signed in without profile", "identity_id", id.ID)
}

func (w *Workflow) reset() {
	w.session.SignOut()
	w.mu.Lock()
	w.state = domain.StateSignedOut
	w.identity = nil
	w.username = ""
	w.pending = nil
	w.emailPending = false
	w.emailSent = nil
	w.mu.Unlock()
}

func (w *Workflow) getProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	ctx, cancel := w.bound(ctx)
	defer cancel()
	return w.profiles.Get(ctx, userID)
}

func (w *Workflow) createProfile(ctx context.Context, p *domain.Profile) error {
	ctx, cancel := w.bound(ctx)
	defer cancel()
	return w.profiles.Create(ctx, p)
}

func (w *Workflow) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if w.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, w.timeout)
}

func isOTP(code string) bool {
	if len(code) != otpLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// emptyFields returns the names of blank fields in a stable order.
func emptyFields(fields map[string]string) []string {
	var missing []string
	for _, name := range []string{"username", "email", "password", "phone"} {
		if v, ok := fields[name]; ok && v == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

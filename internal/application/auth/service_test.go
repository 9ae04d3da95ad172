package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/growsmart/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockSession struct{ mock.Mock }

func (m *mockSession) Authenticate(ctx context.Context, email, password string) (domain.Identity, error) {
	args := m.Called(ctx, email, password)
	id, _ := args.Get(0).(domain.Identity)
	return id, args.Error(1)
}
func (m *mockSession) CreateIdentity(ctx context.Context, email, password string) (domain.Identity, error) {
	args := m.Called(ctx, email, password)
	id, _ := args.Get(0).(domain.Identity)
	return id, args.Error(1)
}
func (m *mockSession) SendEmailVerification(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
func (m *mockSession) RequestPhoneChallenge(ctx context.Context, phone string) (domain.ChallengeHandle, error) {
	args := m.Called(ctx, phone)
	h, _ := args.Get(0).(domain.ChallengeHandle)
	return h, args.Error(1)
}
func (m *mockSession) ConfirmPhoneChallenge(ctx context.Context, handle domain.ChallengeHandle, code string) (domain.Identity, error) {
	args := m.Called(ctx, handle, code)
	id, _ := args.Get(0).(domain.Identity)
	return id, args.Error(1)
}
func (m *mockSession) SendPasswordReset(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}
func (m *mockSession) SignOut() { m.Called() }

type mockProfiles struct{ mock.Mock }

func (m *mockProfiles) Get(ctx context.Context, userID string) (*domain.Profile, error) {
	args := m.Called(ctx, userID)
	if p, _ := args.Get(0).(*domain.Profile); p != nil {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockProfiles) Create(ctx context.Context, p *domain.Profile) error {
	return m.Called(ctx, p).Error(0)
}

// --- helpers ---

func newWorkflow(s *mockSession, p *mockProfiles) *Workflow {
	return NewWorkflow(ServiceDeps{Session: s, Profiles: p})
}

func emailSignIn(username string) SignInRequest {
	return SignInRequest{Method: domain.MethodEmail, Email: "alice@example.com", Password: "secret1", Username: username}
}

func awaitingOTP(t *testing.T, s *mockSession, p *mockProfiles, purpose domain.Purpose) *Workflow {
	t.Helper()
	s.On("RequestPhoneChallenge", mock.Anything, "+919999999999").Return(domain.ChallengeHandle("h1"), nil)
	w := newWorkflow(s, p)
	var err error
	if purpose == domain.PurposeSignUp {
		_, err = w.SignUp(context.Background(), SignUpRequest{Method: domain.MethodPhone, Username: "ravi", Phone: "+919999999999"})
	} else {
		_, err = w.SignIn(context.Background(), SignInRequest{Method: domain.MethodPhone, Phone: "+919999999999"})
	}
	require.NoError(t, err)
	require.Equal(t, domain.StateAwaitingOTP, w.Snapshot().State)
	return w
}

// --- email sign-in ---

func TestSignIn_Email_Success(t *testing.T) {
	s, p := &mockSession{}, &mockProfiles{}
	s.On("Authenticate", mock.Anything, "alice@example.com", "secret1").Return(domain.Identity{ID: "u1", EmailVerified: true}, nil)
	p.On("Get", mock.Anything, "u1").Return(&domain.Profile{UserID: "u1", Username: "alice"}, nil)

	snap, err := newWorkflow(s, p).SignIn(context.Background(), emailSignIn("alice"))
	require.NoError(t, err)
	assert.Equal(t, domain.StateSignedIn, snap.State)
	assert.Equal(t, "alice", snap.Username)
	assert.False(t, snap.EmailVerificationPending)
}

func TestSignIn_Email_UsernameMismatchForcesSignOut(t *testing.T) {
	s, p := &mockSession{}, &mockProfiles{}
	s.On("Authenticate", mock.Anything, mock.Anything, mock.Anything).Return(domain.Identity{ID: "u1"}, nil)
	s.On("SignOut").Return()
	p.On("Get", mock.Anything, "u1").Return(&domain.Profile{UserID: "u1", Username: "alice"}, nil)

	snap, err := newWorkflow(s, p).SignIn(context.Background(), emailSignIn("bob"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAuthentication)
	assert.ErrorIs(t, err, domain.ErrIntegrity)
	assert.Contains(t, err.Error(), "username does not match")
	assert.Equal(t, domain.StateSignedOut, snap.State)
	assert.Nil(t, snap.Identity)
	s.AssertCalled(t, "SignOut")
}

func TestSignIn_Email_NoProfileIsIncomplete(t *testing.T) {
	s, p := &mockSession{}, &mockProfiles{}
	s.On("Authenticate", mock.Anything, mock.Anything, mock.Anything).Return(domain.Identity{ID: "u1"}, nil)
	p.On("Get", mock.Anything, "u1").Return(nil, domain.ErrNotFound)

	snap, err := newWorkflow(s, p).SignIn(context.Background(), emailSignIn("alice"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, domain.StateSignedInIncomplete, snap.State)
}

func TestSignIn_Email_RejectedCredentials(t *testing.T) {
	s, p := &mockSession{}, &mockProfiles{}
	s.On("Authenticate", mock.Anything, mock.Anything, mock.Anything).Return(nil, domain.ErrAuthentication)

	snap, err := newWorkflow(s, p).SignIn(context.Background(), emailSignIn("alice"))
	assert.ErrorIs(t, err, domain.ErrAuthentication)
	assert.Equal(t, domain.StateSignedOut, snap.State)
	p.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestSignIn_Email_EmptyFields(t *testing.T) {
	s := &mockSession{}
	_, err := newWorkflow(s, &mockProfiles{}).SignIn(context.Background(), SignInRequest{Method: domain.MethodEmail, Email: "a@x.io"})

	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "sign-in", ve.Flow)
	assert.Equal(t, []string{"username", "password"}, ve.Fields)
	s.AssertNotCalled(t, "Authenticate", mock.Anything, mock.Anything, mock.Anything)
}

func TestSignIn_UnknownMethod(t *testing.T) {
	_, err := newWorkflow(&mockSession{}, &mockProfiles{}).SignIn(context.Background(), SignInRequest{Method: "carrier-pigeon"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestSignIn_WhileSignedIn(t *testing.T) {
	s, p := &mockSession{}, &mockProfiles{}
	s.On("Authenticate", mock.Anything, mock.Anything, mock.Anything).Return(domain.Identity{ID: "u1"}, nil)
	p.On("Get", mock.Anything, "u1").Return(&domain.Profile{Username: "alice"}, nil)
	w := newWorkflow(s, p)
	_, err := w.SignIn(context.Background(), emailSignIn("alice"))
	require.NoError(t, err)

	_, err = w.SignIn(context.Background(), emailSignIn("alice"))
	assert.ErrorIs(t, err, domain.ErrConflict)
	s.AssertNumberOfCalls(t, "Authenticate", 1)
}

// --- busy guard ---

func TestSignIn_ConcurrentAttemptIsRejected(t *testing.T) {
	s, p := &mockSession{}, &mockProfiles{}
	entered := make(chan struct{})
	release := make(chan struct{})
	s.On("Authenticate", mock.Anything, mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		close(entered)
		<-release
	}).Return(domain.Identity{ID: "u1"}, nil).Once()
	p.On("Get", mock.Anything, "u1").Return(&domain.Profile{Username: "alice"}, nil)
	w := newWorkflow(s, p)

	done := make(chan error, 1)
	go func() {
		_, err := w.SignIn(context.Background(), emailSignIn("alice"))
		done <- err
	}()
	<-entered

	_, err := w.SignIn(context.Background(), emailSignIn("alice"))
	assert.ErrorIs(t, err, domain.ErrBusy)
	_, err = w.SignOut()
	assert.ErrorIs(t, err, domain.ErrBusy)

	close(release)
	require.NoError(t, <-done)
	s.AssertNumberOfCalls(t, "Authenticate", 1)
	assert.Equal(t, domain.StateSignedIn, w.Snapshot().State)
}

// --- phone ---

func TestConfirmOTP_WrongLengthNeverReachesProvider(t *testing.T) {
	s, p := &mockSession{}, &mockProfiles{}
	w := awaitingOTP(t, s, p, domain.PurposeSignIn)

	for _, code := range []string{"", "1", "12345", "1234567", "12345a", "１２３４５６", "123 45"} {
		snap, err := w.ConfirmOTP(context.Background(), code)
		assert.ErrorIs(t, err, domain.ErrValidation, "code %q", code)
		assert.Equal(t, domain.StateAwaitingOTP, snap.State)
	}
	s.AssertNotCalled(t, "ConfirmPhoneChallenge", mock.Anything, mock.Anything, mock.Anything)
}

func TestConfirmOTP_RejectedCodeStaysAwaiting(t *testing.T) {
	s, p := &mockSession{}, &mockProfiles{}
	w := awaitingOTP(t, s, p, domain.PurposeSignIn)
	s.On("ConfirmPhoneChallenge", mock.Anything, domain.ChallengeHandle("h1"), "000000").Return(nil, domain.ErrAuthentication)

	snap, err := w.ConfirmOTP(context.Background(), "000000")
	assert.ErrorIs(t, err, domain.ErrAuthentication)
	assert.Equal(t, domain.StateAwaitingOTP, snap.State)
	require.NotNil(t, snap.Pending)
	assert.Equal(t, "+919999999999", snap.Pending.Phone)
}

func TestConfirmOTP_SignInWithProfile(t *testing.T) {
	s, p := &mockSession{}, &mockProfiles{}
	w := awaitingOTP(t, s, p, domain.PurposeSignIn)
	s.On("ConfirmPhoneChallenge", mock.Anything, domain.ChallengeHandle("h1"), "123456").Return(domain.Identity{ID: "u7", Phone: "+919999999999"}, nil)
	p.On("Get", mock.Anything, "u7").Return(&domain.Profile{UserID: "u7", Username: "ravi"}, nil)

	snap, err := w.ConfirmOTP(context.Background(), "123456")
	require.NoError(t, err)
	assert.Equal(t, domain.StateSignedIn, snap.State)
	assert.Nil(t, snap.Pending)
	assert.Equal(t, "ravi", snap.Username)
}

func TestConfirmOTP_SignInWithoutProfileIsIncomplete(t *testing.T) {
	s, p := &mockSession{}, &mockProfiles{}
	w := awaitingOTP(t, s, p, domain.PurposeSignIn)
	s.On("ConfirmPhoneChallenge", mock.Anything, mock.Anything, "123456").Return(domain.Identity{ID: "u7"}, nil)
	p.On("Get", mock.Anything, "u7").Return(nil, domain.ErrNotFound)

	snap, err := w.ConfirmOTP(context.Background(), "123456")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, domain.StateSignedInIncomplete, snap.State)
	p.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestConfirmOTP_SignUpCreatesProfile(t *testing.T) {
	s, p := &mockSession{}, &mockProfiles{}
	w := awaitingOTP(t, s, p, domain.PurposeSignUp)
	s.On("ConfirmPhoneChallenge", mock.Anything, mock.Anything, "123456").Return(domain.Identity{ID: "u8"}, nil)
	p.On("Get", mock.Anything, "u8").Return(nil, domain.ErrNotFound)
	p.On("Create", mock.Anything, mock.MatchedBy(func(pr *domain.Profile) bool {
		return pr.UserID == "u8" && pr.Username == "ravi" && pr.MobileNumber == "+919999999999"
	})).Return(nil)

	snap, err := w.ConfirmOTP(context.Background(), "123456")
	require.NoError(t, err)
	assert.Equal(t, domain.StateSignedIn, snap.State)
	p.AssertExpectations(t)
}

func TestConfirmOTP_WithoutPendingChallenge(t *testing.T) {
	s := &mockSession{}
	_, err := newWorkflow(s, &mockProfiles{}).ConfirmOTP(context.Background(), "123456")
	assert.ErrorIs(t, err, domain.ErrConflict)
	s.AssertNotCalled(t, "ConfirmPhoneChallenge", mock.Anything, mock.Anything, mock.Anything)
}

func TestCancelOTP_DropsPending(t *testing.T) {
	s, p := &mockSession{}, &mockProfiles{}
	w := awaitingOTP(t, s, p, domain.PurposeSignIn)

	snap, err := w.CancelOTP()
	require.NoError(t, err)
	assert.Equal(t, domain.StateSignedOut, snap.State)
	assert.Nil(t, snap.Pending)

	_, err = w.ConfirmOTP(context.Background(), "123456")
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestSignUp_Phone_RequiresUsername(t *testing.T) {
	s := &mockSession{}
	_, err := newWorkflow(s, &mockProfiles{}).SignUp(context.Background(), SignUpRequest{Method: domain.MethodPhone, Phone: "+1555"})
	assert.ErrorIs(t, err, domain.ErrValidation)
	s.AssertNotCalled(t, "RequestPhoneChallenge", mock.Anything, mock.Anything)
}

// --- email sign-up ---

func TestSignUp_Email_CreatesProfileAndSendsVerification(t *testing.T) {
	s, p := &mockSession{}, &mockProfiles{}
	s.On("CreateIdentity", mock.Anything, "alice@example.com", "secret1").Return(domain.Identity{ID: "u1", Email: "alice@example.com"}, nil)
	s.On("SendEmailVerification", mock.Anything).Return(nil)
	p.On("Create", mock.Anything, mock.MatchedBy(func(pr *domain.Profile) bool {
		return pr.UserID == "u1" && pr.Username == "alice" && pr.Email == "alice@example.com" && pr.MobileNumber == "+1555"
	})).Return(nil)

	snap, err := newWorkflow(s, p).SignUp(context.Background(), SignUpRequest{
		Method: domain.MethodEmail, Username: "alice", Email: "alice@example.com", Password: "secret1", Phone: "+1555",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StateSignedIn, snap.State)
	assert.True(t, snap.EmailVerificationPending)
	require.NotNil(t, snap.VerificationEmailSent)
	assert.True(t, *snap.VerificationEmailSent)
}

func TestSignUp_Email_VerificationFailureIsReported(t *testing.T) {
	s, p := &mockSession{}, &mockProfiles{}
	s.On("CreateIdentity", mock.Anything, mock.Anything, mock.Anything).Return(domain.Identity{ID: "u1"}, nil)
	s.On("SendEmailVerification", mock.Anything).Return(errors.New("smtp down"))
	p.On("Create", mock.Anything, mock.Anything).Return(nil)

	snap, err := newWorkflow(s, p).SignUp(context.Background(), SignUpRequest{
		Method: domain.MethodEmail, Username: "alice", Email: "alice@example.com", Password: "secret1",
	})
	require.NoError(t, err)
	require.NotNil(t, snap.VerificationEmailSent)
	assert.False(t, *snap.VerificationEmailSent)
}

func TestSignUp_Email_ProfileFailureSignsOut(t *testing.T) {
	s, p := &mockSession{}, &mockProfiles{}
	s.On("CreateIdentity", mock.Anything, mock.Anything, mock.Anything).Return(domain.Identity{ID: "u1"}, nil)
	s.On("SendEmailVerification", mock.Anything).Return(nil)
	s.On("SignOut").Return()
	p.On("Create", mock.Anything, mock.Anything).Return(domain.ErrUnavailable)

	snap, err := newWorkflow(s, p).SignUp(context.Background(), SignUpRequest{
		Method: domain.MethodEmail, Username: "alice", Email: "alice@example.com", Password: "secret1",
	})
	assert.ErrorIs(t, err, domain.ErrUnavailable)
	assert.Equal(t, domain.StateSignedOut, snap.State)
	assert.Nil(t, snap.Identity)
	s.AssertCalled(t, "SignOut")
}

// --- forgot password / sign-out ---

func TestForgotPassword_EmptyEmail(t *testing.T) {
	s := &mockSession{}
	err := newWorkflow(s, &mockProfiles{}).ForgotPassword(context.Background(), " ")
	assert.ErrorIs(t, err, domain.ErrValidation)
	s.AssertNotCalled(t, "SendPasswordReset", mock.Anything, mock.Anything)
}

func TestForgotPassword_ProviderRejection(t *testing.T) {
	s := &mockSession{}
	s.On("SendPasswordReset", mock.Anything, "ghost@example.com").Return(domain.ErrNotFound)
	w := newWorkflow(s, &mockProfiles{})

	err := w.ForgotPassword(context.Background(), "ghost@example.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, domain.StateSignedOut, w.Snapshot().State)
}

func TestSignOut_ClearsState(t *testing.T) {
	s, p := &mockSession{}, &mockProfiles{}
	s.On("Authenticate", mock.Anything, mock.Anything, mock.Anything).Return(domain.Identity{ID: "u1"}, nil)
	s.On("SignOut").Return()
	p.On("Get", mock.Anything, "u1").Return(&domain.Profile{Username: "alice"}, nil)
	w := newWorkflow(s, p)
	_, err := w.SignIn(context.Background(), emailSignIn("alice"))
	require.NoError(t, err)

	snap, err := w.SignOut()
	require.NoError(t, err)
	assert.Equal(t, domain.StateSignedOut, snap.State)
	assert.Nil(t, snap.Identity)
	assert.Empty(t, snap.Username)
	s.AssertCalled(t, "SignOut")
}

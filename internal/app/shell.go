package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/growsmart/internal/application/auth"
	"github.com/growsmart/internal/application/history"
	"github.com/growsmart/internal/application/prediction"
	"github.com/growsmart/internal/application/session"
	"github.com/growsmart/internal/domain"
)

type identityOracle interface {
	Authenticate(ctx context.Context, email, password string) (domain.Identity, error)
	CreateIdentity(ctx context.Context, email, password string) (domain.Identity, error)
	SendEmailVerification(ctx context.Context, identityID string) error
	RequestPhoneChallenge(ctx context.Context, phone string) (domain.ChallengeHandle, error)
	ConfirmPhoneChallenge(ctx context.Context, handle domain.ChallengeHandle, code string) (domain.Identity, error)
	SendPasswordReset(ctx context.Context, email string) error
}

type profileRepo interface {
	Get(ctx context.Context, userID string) (*domain.Profile, error)
	Create(ctx context.Context, p *domain.Profile) error
	ReplaceEntries(ctx context.Context, userID string, entries []domain.PredictionEntry) error
}

type predictionOracle interface {
	PredictRainfall(ctx context.Context, q domain.RainfallQuery) (float64, error)
	PredictCrop(ctx context.Context, q domain.CropQuery) (string, error)
	PredictYield(ctx context.Context, q domain.YieldQuery) (float64, error)
}

// Deps are shared by every shell; each shell builds its own workflow state on top.
type Deps struct {
	Identity          identityOracle
	Profiles          profileRepo
	Oracle            predictionOracle
	CallTimeout       time.Duration
	PredictionTimeout time.Duration
}

// State is what the front-end renders: the auth snapshot plus, once signed
// in, the history view.
type State struct {
	auth.Snapshot
	History    *history.Snapshot   `json:"history,omitempty"`
	Submitting *prediction.Pending `json:"submitting,omitempty"`
}

// Shell is one app session. Unauthenticated callers reach only the auth
// operations; history and predictions require the SignedIn state and the
// identity the caller's token was issued for.
type Shell struct {
	session     *session.Store
	auth        *auth.Workflow
	history     *history.Manager
	predictions *prediction.Service
	unsubscribe func()
}

func NewShell(d Deps) *Shell {
	store := session.NewStore(d.Identity, d.CallTimeout)
	hist := history.NewManager(d.Profiles, d.CallTimeout)
	s := &Shell{
		session: store,
		auth: auth.NewWorkflow(auth.ServiceDeps{
			Session:  store,
			Profiles: d.Profiles,
			Timeout:  d.CallTimeout,
		}),
		history: hist,
		predictions: prediction.NewService(prediction.ServiceDeps{
			Oracle:  d.Oracle,
			History: hist,
			Timeout: d.PredictionTimeout,
		}),
	}
	s.unsubscribe = store.Subscribe(func(id domain.Identity, ok bool) {
		if !ok {
			hist.Reset()
		}
	})
	return s
}

// Close detaches the shell from its session store.
func (s *Shell) Close() {
	s.unsubscribe()
}

func (s *Shell) State() State {
	st := State{Snapshot: s.auth.Snapshot()}
	if st.State == domain.StateSignedIn {
		h := s.history.Snapshot()
		p := s.predictions.Pending()
		st.History = &h
		st.Submitting = &p
	}
	return st
}

// signedOut reports whether the shell holds no session and no pending verification.
func (s *Shell) signedOut() bool {
	return s.auth.Snapshot().State == domain.StateSignedOut
}

// Token returns the identity token of the current session, if signed in.
func (s *Shell) Token() string {
	id, ok := s.session.Current()
	if !ok {
		return ""
	}
	return id.Token
}

func (s *Shell) SignIn(ctx context.Context, req auth.SignInRequest) (State, error) {
	snap, err := s.auth.SignIn(ctx, req)
	return s.afterAuth(ctx, snap, err)
}

func (s *Shell) SignUp(ctx context.Context, req auth.SignUpRequest) (State, error) {
	snap, err := s.auth.SignUp(ctx, req)
	return s.afterAuth(ctx, snap, err)
}

func (s *Shell) ConfirmOTP(ctx context.Context, code string) (State, error) {
	snap, err := s.auth.ConfirmOTP(ctx, code)
	return s.afterAuth(ctx, snap, err)
}

func (s *Shell) CancelOTP() (State, error) {
	_, err := s.auth.CancelOTP()
	return s.State(), err
}

func (s *Shell) ForgotPassword(ctx context.Context, email string) error {
	return s.auth.ForgotPassword(ctx, email)
}

func (s *Shell) SignOut() (State, error) {
	_, err := s.auth.SignOut()
	return s.State(), err
}

// History returns the history view, loading it on first access.
func (s *Shell) History(ctx context.Context, subject string) (history.Snapshot, error) {
	id, err := s.authorize(subject)
	if err != nil {
		return history.Snapshot{}, err
	}
	if snap := s.history.Snapshot(); snap.Loaded || snap.Loading {
		return snap, nil
	}
	if _, err := s.history.Load(ctx, id.ID); err != nil && !errors.Is(err, domain.ErrBusy) {
		return s.history.Snapshot(), err
	}
	return s.history.Snapshot(), nil
}

func (s *Shell) RefreshHistory(ctx context.Context, subject string) (history.Snapshot, error) {
	if _, err := s.authorize(subject); err != nil {
		return history.Snapshot{}, err
	}
	_, err := s.history.Refresh(ctx)
	return s.history.Snapshot(), err
}

func (s *Shell) RemoveEntry(ctx context.Context, subject string, index int, entryID string) (history.Snapshot, error) {
	if _, err := s.authorize(subject); err != nil {
		return history.Snapshot{}, err
	}
	_, err := s.history.Remove(ctx, index, entryID)
	return s.history.Snapshot(), err
}

func (s *Shell) PredictRainfall(ctx context.Context, subject string, in prediction.RainfallInput) (prediction.Result, error) {
	id, err := s.authorize(subject)
	if err != nil {
		return prediction.Result{}, err
	}
	return s.predictions.SubmitRainfall(ctx, id.ID, in)
}

func (s *Shell) PredictCrop(ctx context.Context, subject string, in prediction.CropInput) (prediction.Result, error) {
	id, err := s.authorize(subject)
	if err != nil {
		return prediction.Result{}, err
	}
	return s.predictions.SubmitCrop(ctx, id.ID, in)
}

func (s *Shell) PredictYield(ctx context.Context, subject string, in prediction.YieldInput) (prediction.Result, error) {
	id, err := s.authorize(subject)
	if err != nil {
		return prediction.Result{}, err
	}
	return s.predictions.SubmitYield(ctx, id.ID, in)
}

// afterAuth loads history once a workflow step lands in SignedIn. A failed
// load does not undo the sign-in; the history view reports it as not loaded.
func (s *Shell) afterAuth(ctx context.Context, snap auth.Snapshot, err error) (State, error) {
	if err == nil && snap.State == domain.StateSignedIn && snap.Identity != nil {
		if _, lerr := s.history.Load(ctx, snap.Identity.ID); lerr != nil {
			slog.Warn("history load after sign-in failed", "identity_id", snap.Identity.ID, "err", lerr)
		}
	}
	return s.State(), err
}

func (s *Shell) authorize(subject string) (domain.Identity, error) {
	snap := s.auth.Snapshot()
	if snap.State != domain.StateSignedIn || snap.Identity == nil {
		return domain.Identity{}, fmt.Errorf("session is %s: %w", snap.State, domain.ErrSignedOut)
	}
	if subject != snap.Identity.ID {
		return domain.Identity{}, fmt.Errorf("token does not belong to this session: %w", domain.ErrAuthentication)
	}
	return *snap.Identity, nil
}

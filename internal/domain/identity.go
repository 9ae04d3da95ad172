package domain

// Identity is the authenticated-user handle issued by the identity provider.
// Token is the signed identity token handed to the front-end.
type Identity struct {
	ID            string `json:"id"`
	Email         string `json:"email,omitempty"`
	Phone         string `json:"phone,omitempty"`
	EmailVerified bool   `json:"email_verified"`
	Token         string `json:"-"`
}

// SignupMethod selects the credential path of a sign-in or sign-up attempt.
type SignupMethod string

const (
	MethodEmail SignupMethod = "email"
	MethodPhone SignupMethod = "phone"
)

// AuthState is the client-observable authentication state of one session.
type AuthState string

const (
	StateSignedOut          AuthState = "signed_out"
	StateAwaitingOTP        AuthState = "awaiting_otp"
	StateSignedIn           AuthState = "signed_in"
	StateSignedInIncomplete AuthState = "signed_in_incomplete"
)

// ChallengeHandle identifies an in-progress phone verification at the provider.
type ChallengeHandle string

// PendingVerification lives between "OTP requested" and "OTP confirmed or abandoned".
// Purpose and Username record what to do once the code is confirmed.
type PendingVerification struct {
	Handle   ChallengeHandle `json:"-"`
	Phone    string          `json:"phone"`
	Purpose  Purpose         `json:"purpose"`
	Username string          `json:"-"`
}

// Purpose distinguishes a phone sign-in from a phone sign-up.
type Purpose string

const (
	PurposeSignIn Purpose = "sign_in"
	PurposeSignUp Purpose = "sign_up"
)

package domain

// PhoneChallenge stores an issued OTP for a phone verification session.
// PK: handle. ExpiresAt is a Unix timestamp used as DynamoDB TTL.
type PhoneChallenge struct {
	Handle    string `json:"handle" dynamodbav:"handle"`
	Phone     string `json:"phone" dynamodbav:"phone"`
	Code      string `json:"-" dynamodbav:"code"`
	Attempts  int    `json:"attempts" dynamodbav:"attempts"`
	ExpiresAt int64  `json:"expires_at" dynamodbav:"expires_at"`
}

// AccountToken stores single-use email verification and password reset tokens.
// PK: account_id, SK: type ("email" | "reset").
type AccountToken struct {
	AccountID string `json:"account_id" dynamodbav:"account_id"`
	Type      string `json:"type" dynamodbav:"type"`
	Code      string `json:"-" dynamodbav:"code"`
	ExpiresAt int64  `json:"expires_at" dynamodbav:"expires_at"`
}

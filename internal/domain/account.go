package domain

import "time"

// Account is the identity provider's credential record.
// PK: account_id. GSIs: email-index, phone-index.
type Account struct {
	AccountID     string    `json:"id" dynamodbav:"account_id"`
	Email         string    `json:"email,omitempty" dynamodbav:"email,omitempty"`
	Phone         string    `json:"phone,omitempty" dynamodbav:"phone,omitempty"`
	PasswordHash  string    `json:"-" dynamodbav:"password_hash,omitempty"`
	EmailVerified bool      `json:"email_verified" dynamodbav:"email_verified"`
	CreatedAt     time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt     time.Time `json:"updated" dynamodbav:"updated_at"`
}

// Identity projects the account into the client-observable handle.
func (a *Account) Identity() Identity {
	return Identity{
		ID:            a.AccountID,
		Email:         a.Email,
		Phone:         a.Phone,
		EmailVerified: a.EmailVerified,
	}
}

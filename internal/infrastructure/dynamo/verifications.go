package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/growsmart/internal/domain"
)

// ChallengeRepo stores phone OTP challenges. PK: handle.
type ChallengeRepo struct {
	client    API
	tableName string
}

func NewChallengeRepo(client API, tableName string) *ChallengeRepo {
	return &ChallengeRepo{client: client, tableName: tableName}
}

func (r *ChallengeRepo) Put(ctx context.Context, c *domain.PhoneChallenge) error {
	item, err := attributevalue.MarshalMap(c)
	if err != nil {
		return fmt.Errorf("marshal challenge: %w", err)
	}
	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	}); err != nil {
		return unavailable("put challenge", err)
	}
	return nil
}

func (r *ChallengeRepo) Get(ctx context.Context, handle string) (*domain.PhoneChallenge, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey("handle", handle),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, unavailable("get challenge", err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("challenge not found: %w", domain.ErrNotFound)
	}
	var c domain.PhoneChallenge
	if err := attributevalue.UnmarshalMap(out.Item, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ChallengeRepo) SetAttempts(ctx context.Context, handle string, attempts int) error {
	ue, err := buildUpdateExpr(map[string]interface{}{fieldAttempts: attempts})
	if err != nil {
		return err
	}
	if _, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("handle", handle),
		UpdateExpression:          aws.String(ue.Expr),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	}); err != nil {
		return unavailable("update challenge", err)
	}
	return nil
}

func (r *ChallengeRepo) Delete(ctx context.Context, handle string) error {
	if _, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("handle", handle),
	}); err != nil {
		return unavailable("delete challenge", err)
	}
	return nil
}

// TokenRepo manages email verification and password reset tokens.
// PK: account_id, SK: type ("email" | "reset").
type TokenRepo struct {
	client    API
	tableName string
}

func NewTokenRepo(client API, tableName string) *TokenRepo {
	return &TokenRepo{client: client, tableName: tableName}
}

func (r *TokenRepo) Put(ctx context.Context, t *domain.AccountToken) error {
	item, err := attributevalue.MarshalMap(t)
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}
	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	}); err != nil {
		return unavailable("put token", err)
	}
	return nil
}

func (r *TokenRepo) Get(ctx context.Context, accountID, tokenType string) (*domain.AccountToken, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       compositeKey("account_id", accountID, "type", tokenType),
	})
	if err != nil {
		return nil, unavailable("get token", err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("token not found: %w", domain.ErrNotFound)
	}
	var t domain.AccountToken
	if err := attributevalue.UnmarshalMap(out.Item, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TokenRepo) Delete(ctx context.Context, accountID, tokenType string) error {
	if _, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       compositeKey("account_id", accountID, "type", tokenType),
	}); err != nil {
		return unavailable("delete token", err)
	}
	return nil
}

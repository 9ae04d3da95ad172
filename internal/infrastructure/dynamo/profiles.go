package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/growsmart/internal/domain"
)

// ProfileRepo provides typed DynamoDB operations for the profiles table.
// One item per identity, keyed by user_id; the prediction history is a list attribute.
type ProfileRepo struct {
	client    API
	tableName string
}

func NewProfileRepo(client API, tableName string) *ProfileRepo {
	return &ProfileRepo{client: client, tableName: tableName}
}

func (r *ProfileRepo) Get(ctx context.Context, userID string) (*domain.Profile, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey("user_id", userID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, unavailable("get profile", err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("profile %s: %w", userID, domain.ErrNotFound)
	}
	var p domain.Profile
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, fmt.Errorf("unmarshal profile: %w", err)
	}
	return &p, nil
}

// Create writes a new profile. It refuses to overwrite an existing one.
func (r *ProfileRepo) Create(ctx context.Context, p *domain.Profile) error {
	if p.Predictions == nil {
		p.Predictions = []domain.PredictionEntry{}
	}
	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.tableName),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#pk)"),
		ExpressionAttributeNames: map[string]string{"#pk": "user_id"},
	})
	if isConditionFailed(err) {
		return fmt.Errorf("profile %s already exists: %w", p.UserID, domain.ErrConflict)
	}
	if err != nil {
		return unavailable("create profile", err)
	}
	return nil
}

// ReplaceEntries overwrites the whole prediction list of an existing profile.
func (r *ProfileRepo) ReplaceEntries(ctx context.Context, userID string, entries []domain.PredictionEntry) error {
	if entries == nil {
		entries = []domain.PredictionEntry{}
	}
	ue, err := buildUpdateExpr(map[string]interface{}{
		fieldPredictions: entries,
		fieldUpdatedAt:   time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	ue.Names["#pk"] = "user_id"
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("user_id", userID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("attribute_exists(#pk)"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if isConditionFailed(err) {
		return fmt.Errorf("profile %s: %w", userID, domain.ErrNotFound)
	}
	if err != nil {
		return unavailable("replace predictions", err)
	}
	return nil
}

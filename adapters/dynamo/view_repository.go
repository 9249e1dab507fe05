package dynamo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/example/cqrs-es/cqrs"
	"github.com/example/cqrs-es/persist"
)

// dynamoView is the view table item, keyed by view id.
type dynamoView struct {
	ViewID  string `dynamodbav:"view_id"`
	Version int64  `dynamodbav:"version"`
	Payload string `dynamodbav:"payload"`
}

// ViewRepository stores views as JSON payloads in a DynamoDB table,
// versioned for optimistic locking.
type ViewRepository[V cqrs.View[E], E cqrs.DomainEvent] struct {
	client  *dynamodb.Client
	table   string
	newView func() V
}

// NewViewRepository creates a repository over the configured view
// table. The newView factory must return a pointer so stored payloads
// can be unmarshaled into it.
func NewViewRepository[V cqrs.View[E], E cqrs.DomainEvent](client *dynamodb.Client, cfg Config, newView func() V) *ViewRepository[V, E] {
	return &ViewRepository[V, E]{client: client, table: cfg.ViewTable, newView: newView}
}

func (r *ViewRepository[V, E]) Load(ctx context.Context, viewID string) (V, bool, error) {
	view, _, found, err := r.LoadWithContext(ctx, viewID)
	return view, found, err
}

func (r *ViewRepository[V, E]) LoadWithContext(ctx context.Context, viewID string) (V, persist.ViewContext, bool, error) {
	var zero V
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.table),
		Key: map[string]types.AttributeValue{
			"view_id": &types.AttributeValueMemberS{Value: viewID},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return zero, persist.ViewContext{}, false, &persist.ConnectionError{Err: err}
	}
	if result.Item == nil {
		return zero, persist.ViewContext{}, false, nil
	}

	var dv dynamoView
	if err := attributevalue.UnmarshalMap(result.Item, &dv); err != nil {
		return zero, persist.ViewContext{}, false, &persist.DeserializationError{Err: err}
	}
	view := r.newView()
	if err := json.Unmarshal([]byte(dv.Payload), view); err != nil {
		return zero, persist.ViewContext{}, false, &persist.DeserializationError{Err: err}
	}
	return view, persist.NewViewContext(viewID, dv.Version), true, nil
}

// UpdateView writes the view conditioned on the loaded version so a
// concurrent writer surfaces persist.ErrOptimisticLock.
func (r *ViewRepository[V, E]) UpdateView(ctx context.Context, view V, context persist.ViewContext) error {
	payload, err := json.Marshal(view)
	if err != nil {
		return &persist.UnknownError{Err: err}
	}

	item, err := attributevalue.MarshalMap(dynamoView{
		ViewID:  context.ViewInstanceID,
		Version: context.Version + 1,
		Payload: string(payload),
	})
	if err != nil {
		return &persist.UnknownError{Err: err}
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item:      item,
	}
	if context.Version == 0 {
		input.ConditionExpression = aws.String("attribute_not_exists(view_id)")
	} else {
		input.ConditionExpression = aws.String("version = :expected")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", context.Version)},
		}
	}
	if _, err := r.client.PutItem(ctx, input); err != nil {
		return classify(err)
	}
	return nil
}

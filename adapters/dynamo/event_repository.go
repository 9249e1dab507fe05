// Package dynamo implements the persist repository contracts on
// DynamoDB. Events are keyed by (aggregate instance, sequence) with
// conditional writes for optimistic locking, and a transaction keeps
// events and snapshot updates atomic.
package dynamo

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/caarlos0/env/v11"

	"github.com/example/cqrs-es/persist"
)

// Config holds table names, loadable from the environment.
type Config struct {
	EventTable    string `env:"DYNAMO_EVENT_TABLE" envDefault:"events"`
	SnapshotTable string `env:"DYNAMO_SNAPSHOT_TABLE" envDefault:"snapshots"`
	ViewTable     string `env:"DYNAMO_VIEW_TABLE" envDefault:"views"`
}

// LoadConfigFromEnv reads Config from DYNAMO_* environment variables.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse dynamo config: %w", err)
	}
	return cfg, nil
}

// Connect builds a DynamoDB client from the default AWS configuration
// chain (environment, shared config, instance role).
func Connect(ctx context.Context) (*dynamodb.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return dynamodb.NewFromConfig(cfg), nil
}

// dynamoEvent is the event table item. The partition key joins
// aggregate type and id so different aggregate types never collide.
type dynamoEvent struct {
	Instance      string `dynamodbav:"instance"`
	Sequence      uint64 `dynamodbav:"sequence"`
	AggregateType string `dynamodbav:"aggregate_type"`
	AggregateID   string `dynamodbav:"aggregate_id"`
	EventType     string `dynamodbav:"event_type"`
	EventVersion  string `dynamodbav:"event_version"`
	Payload       string `dynamodbav:"payload"`
	Metadata      string `dynamodbav:"metadata"`
	// GSI1PK/GSI1SK back the by-aggregate-type index used for full
	// replays, ordered by aggregate id then sequence.
	GSI1PK string `dynamodbav:"gsi1pk"`
	GSI1SK string `dynamodbav:"gsi1sk"`
}

// dynamoSnapshot is the snapshot table item, keyed by instance.
type dynamoSnapshot struct {
	Instance        string `dynamodbav:"instance"`
	AggregateType   string `dynamodbav:"aggregate_type"`
	AggregateID     string `dynamodbav:"aggregate_id"`
	LastSequence    uint64 `dynamodbav:"last_sequence"`
	CurrentSnapshot uint64 `dynamodbav:"current_snapshot"`
	Payload         string `dynamodbav:"payload"`
}

func instanceKey(aggregateType, aggregateID string) string {
	return aggregateType + "|" + aggregateID
}

func replaySortKey(aggregateID string, sequence uint64) string {
	return fmt.Sprintf("%s#%020d", aggregateID, sequence)
}

// EventRepository stores events and snapshots in DynamoDB tables.
type EventRepository struct {
	client            *dynamodb.Client
	eventTable        string
	snapshotTable     string
	streamChannelSize int
}

var _ persist.EventRepository = (*EventRepository)(nil)

// NewEventRepository creates a repository over the configured tables.
func NewEventRepository(client *dynamodb.Client, cfg Config) *EventRepository {
	return &EventRepository{
		client:            client,
		eventTable:        cfg.EventTable,
		snapshotTable:     cfg.SnapshotTable,
		streamChannelSize: persist.DefaultStreamChannelSize,
	}
}

// WithStreamChannelSize overrides the replay stream buffer capacity.
func (r *EventRepository) WithStreamChannelSize(size int) *EventRepository {
	r.streamChannelSize = size
	return r
}

func (r *EventRepository) GetEvents(ctx context.Context, aggregateType, aggregateID string) ([]persist.SerializedEvent, error) {
	return r.GetLastEvents(ctx, aggregateType, aggregateID, 0)
}

func (r *EventRepository) GetLastEvents(ctx context.Context, aggregateType, aggregateID string, lastSequence uint64) ([]persist.SerializedEvent, error) {
	var events []persist.SerializedEvent
	var startKey map[string]types.AttributeValue
	for {
		result, err := r.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(r.eventTable),
			KeyConditionExpression: aws.String("#inst = :inst AND #seq > :seq"),
			ExpressionAttributeNames: map[string]string{
				"#inst": "instance",
				"#seq":  "sequence",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":inst": &types.AttributeValueMemberS{Value: instanceKey(aggregateType, aggregateID)},
				":seq":  &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", lastSequence)},
			},
			ScanIndexForward:  aws.Bool(true),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, &persist.ConnectionError{Err: err}
		}
		page, err := unmarshalEvents(result.Items)
		if err != nil {
			return nil, err
		}
		events = append(events, page...)
		if result.LastEvaluatedKey == nil {
			return events, nil
		}
		startKey = result.LastEvaluatedKey
	}
}

func unmarshalEvents(items []map[string]types.AttributeValue) ([]persist.SerializedEvent, error) {
	events := make([]persist.SerializedEvent, 0, len(items))
	for _, item := range items {
		var de dynamoEvent
		if err := attributevalue.UnmarshalMap(item, &de); err != nil {
			return nil, &persist.DeserializationError{Err: err}
		}
		events = append(events, persist.SerializedEvent{
			AggregateID:   de.AggregateID,
			Sequence:      de.Sequence,
			AggregateType: de.AggregateType,
			EventType:     de.EventType,
			EventVersion:  de.EventVersion,
			Payload:       []byte(de.Payload),
			Metadata:      []byte(de.Metadata),
		})
	}
	return events, nil
}

func (r *EventRepository) GetSnapshot(ctx context.Context, aggregateType, aggregateID string) (*persist.SerializedSnapshot, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.snapshotTable),
		Key: map[string]types.AttributeValue{
			"instance": &types.AttributeValueMemberS{Value: instanceKey(aggregateType, aggregateID)},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, &persist.ConnectionError{Err: err}
	}
	if result.Item == nil {
		return nil, nil
	}

	var ds dynamoSnapshot
	if err := attributevalue.UnmarshalMap(result.Item, &ds); err != nil {
		return nil, &persist.DeserializationError{Err: err}
	}
	return &persist.SerializedSnapshot{
		AggregateType:   ds.AggregateType,
		AggregateID:     ds.AggregateID,
		Aggregate:       []byte(ds.Payload),
		CurrentSequence: ds.LastSequence,
		CurrentSnapshot: ds.CurrentSnapshot,
	}, nil
}

// Persist writes all events plus the optional snapshot update in one
// TransactWriteItems call. Conditional checks reject sequences or
// snapshot versions that another writer claimed first.
func (r *EventRepository) Persist(ctx context.Context, events []persist.SerializedEvent, snapshot *persist.SerializedSnapshot) error {
	if len(events) == 0 && snapshot == nil {
		return nil
	}

	items := make([]types.TransactWriteItem, 0, len(events)+1)
	for _, event := range events {
		item, err := attributevalue.MarshalMap(dynamoEvent{
			Instance:      instanceKey(event.AggregateType, event.AggregateID),
			Sequence:      event.Sequence,
			AggregateType: event.AggregateType,
			AggregateID:   event.AggregateID,
			EventType:     event.EventType,
			EventVersion:  event.EventVersion,
			Payload:       string(event.Payload),
			Metadata:      string(event.Metadata),
			GSI1PK:        event.AggregateType,
			GSI1SK:        replaySortKey(event.AggregateID, event.Sequence),
		})
		if err != nil {
			return &persist.UnknownError{Err: err}
		}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName:           aws.String(r.eventTable),
				Item:                item,
				ConditionExpression: aws.String("attribute_not_exists(#inst)"),
				ExpressionAttributeNames: map[string]string{
					"#inst": "instance",
				},
			},
		})
	}

	if snapshot != nil {
		item, err := attributevalue.MarshalMap(dynamoSnapshot{
			Instance:        instanceKey(snapshot.AggregateType, snapshot.AggregateID),
			AggregateType:   snapshot.AggregateType,
			AggregateID:     snapshot.AggregateID,
			LastSequence:    snapshot.CurrentSequence,
			CurrentSnapshot: snapshot.CurrentSnapshot,
			Payload:         string(snapshot.Aggregate),
		})
		if err != nil {
			return &persist.UnknownError{Err: err}
		}
		put := &types.Put{
			TableName: aws.String(r.snapshotTable),
			Item:      item,
		}
		if snapshot.CurrentSnapshot == 1 {
			put.ConditionExpression = aws.String("attribute_not_exists(#inst)")
			put.ExpressionAttributeNames = map[string]string{"#inst": "instance"}
		} else {
			put.ConditionExpression = aws.String("current_snapshot = :expected")
			put.ExpressionAttributeValues = map[string]types.AttributeValue{
				":expected": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", snapshot.CurrentSnapshot-1)},
			}
		}
		items = append(items, types.TransactWriteItem{Put: put})
	}

	_, err := r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	return classify(err)
}

// classify maps SDK errors into the persistence taxonomy. A cancelled
// transaction with a conditional check failure means another writer
// claimed the sequence or snapshot version.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		for _, reason := range canceled.CancellationReasons {
			if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
				return fmt.Errorf("%w: %s", persist.ErrOptimisticLock, canceled.Error())
			}
		}
		return &persist.UnknownError{Err: err}
	}
	var conditional *types.ConditionalCheckFailedException
	if errors.As(err, &conditional) {
		return fmt.Errorf("%w: %s", persist.ErrOptimisticLock, conditional.Error())
	}
	return &persist.ConnectionError{Err: err}
}

// StreamEvents pages through one aggregate instance's history in the
// background, feeding a bounded replay stream.
func (r *EventRepository) StreamEvents(ctx context.Context, aggregateType, aggregateID string) (*persist.ReplayStream, error) {
	feed, stream := persist.NewReplayStream(r.streamChannelSize)
	go func() {
		defer feed.Close()
		var startKey map[string]types.AttributeValue
		for {
			result, err := r.client.Query(ctx, &dynamodb.QueryInput{
				TableName:              aws.String(r.eventTable),
				KeyConditionExpression: aws.String("#inst = :inst"),
				ExpressionAttributeNames: map[string]string{
					"#inst": "instance",
				},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":inst": &types.AttributeValueMemberS{Value: instanceKey(aggregateType, aggregateID)},
				},
				ScanIndexForward:  aws.Bool(true),
				ExclusiveStartKey: startKey,
			})
			if err != nil {
				_ = feed.PushErr(ctx, &persist.ConnectionError{Err: err})
				return
			}
			if !r.pushItems(ctx, feed, result.Items) {
				return
			}
			if result.LastEvaluatedKey == nil {
				return
			}
			startKey = result.LastEvaluatedKey
		}
	}()
	return stream, nil
}

// StreamAllEvents pages through every instance of the aggregate type
// via the by-type index.
func (r *EventRepository) StreamAllEvents(ctx context.Context, aggregateType string) (*persist.ReplayStream, error) {
	feed, stream := persist.NewReplayStream(r.streamChannelSize)
	go func() {
		defer feed.Close()
		var startKey map[string]types.AttributeValue
		for {
			result, err := r.client.Query(ctx, &dynamodb.QueryInput{
				TableName:              aws.String(r.eventTable),
				IndexName:              aws.String("GSI1"),
				KeyConditionExpression: aws.String("gsi1pk = :pk"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":pk": &types.AttributeValueMemberS{Value: aggregateType},
				},
				ScanIndexForward:  aws.Bool(true),
				ExclusiveStartKey: startKey,
			})
			if err != nil {
				_ = feed.PushErr(ctx, &persist.ConnectionError{Err: err})
				return
			}
			if !r.pushItems(ctx, feed, result.Items) {
				return
			}
			if result.LastEvaluatedKey == nil {
				return
			}
			startKey = result.LastEvaluatedKey
		}
	}()
	return stream, nil
}

func (r *EventRepository) pushItems(ctx context.Context, feed *persist.ReplayFeed, items []map[string]types.AttributeValue) bool {
	events, err := unmarshalEvents(items)
	if err != nil {
		_ = feed.PushErr(ctx, err)
		return false
	}
	for _, event := range events {
		if err := feed.Push(ctx, event); err != nil {
			return false
		}
	}
	return true
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"parts-order-bot/internal/domain"
)

const (
	skMeta           = "META#"
	skPrefixTurn     = "TURN#"
	entityOrder      = "order"
	ttlDuration      = 90 * 24 * time.Hour // 90-day TTL
	defaultListIndex = "entityType-updatedAt-index"
	codeCondFailed   = "ConditionalCheckFailed"
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Client stores orders and their processed turns in one DynamoDB table.
//
// Layout: PK=ORDER#<id>; SK=META# holds the order, SK=TURN#<messageId>
// holds one processed inbound message. Order items carry entityType and
// updatedAt for the dashboard listing index.
type Client struct {
	api       dynamodbAPI
	tableName string
	listIndex string
	now       func() time.Time
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName, listIndex: defaultListIndex, now: time.Now}, nil
}

// orderPK returns the DynamoDB partition key for an order.
func orderPK(orderID string) string {
	return "ORDER#" + orderID
}

func turnSK(messageID string) string {
	return skPrefixTurn + messageID
}

func (c *Client) ttlValue() int64 {
	return c.now().Add(ttlDuration).Unix()
}

// GetOrder reads an order with a consistent read.
func (c *Client) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            itemKey(orderPK(orderID), skMeta),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("repository: GetOrder get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.Order{}, domain.ErrNotFound
	}
	data, err := strAttr(out.Item, "data")
	if err != nil {
		return domain.Order{}, fmt.Errorf("repository: GetOrder: %w", err)
	}
	return decodeOrder(data)
}

// GetTurn reads the stored result of a processed inbound message.
func (c *Client) GetTurn(ctx context.Context, orderID, messageID string) (domain.TurnRecord, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            itemKey(orderPK(orderID), turnSK(messageID)),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.TurnRecord{}, fmt.Errorf("repository: GetTurn get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.TurnRecord{}, domain.ErrNotFound
	}
	data, err := strAttr(out.Item, "data")
	if err != nil {
		return domain.TurnRecord{}, fmt.Errorf("repository: GetTurn: %w", err)
	}
	return decodeTurn(data)
}

// SaveOrder writes the order if the stored version is order.Version-1 (or
// absent for version 1). With a turn, both items are written in one
// transaction and the turn must not exist yet.
func (c *Client) SaveOrder(ctx context.Context, order domain.Order, turn *domain.TurnRecord) error {
	item, err := c.orderItem(order)
	if err != nil {
		return fmt.Errorf("repository: SaveOrder: %w", err)
	}
	cond, values := versionCondition(order.Version)

	if turn == nil {
		_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:                 aws.String(c.tableName),
			Item:                      item,
			ConditionExpression:       cond,
			ExpressionAttributeValues: values,
		})
		if err != nil {
			var condErr *types.ConditionalCheckFailedException
			if errors.As(err, &condErr) {
				return fmt.Errorf("repository: SaveOrder: %w", domain.ErrOrderConflict)
			}
			return fmt.Errorf("repository: SaveOrder: %w", err)
		}
		return nil
	}

	tItem, err := c.turnItem(*turn)
	if err != nil {
		return fmt.Errorf("repository: SaveOrder: %w", err)
	}
	_, err = c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:                 aws.String(c.tableName),
					Item:                      item,
					ConditionExpression:       cond,
					ExpressionAttributeValues: values,
				},
			},
			{
				Put: &types.Put{
					TableName:           aws.String(c.tableName),
					Item:                tItem,
					ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: SaveOrder: %w", transactionError(err))
	}
	return nil
}

// ListOrders returns the most recently updated orders first.
func (c *Client) ListOrders(ctx context.Context, limit int) ([]domain.Order, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		IndexName:              aws.String(c.listIndex),
		KeyConditionExpression: aws.String("entityType = :type"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":type": &types.AttributeValueMemberS{Value: entityOrder},
		},
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		in.Limit = aws.Int32(int32(limit))
	}

	out, err := c.api.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("repository: ListOrders query: %w", err)
	}

	orders := make([]domain.Order, 0, len(out.Items))
	for _, item := range out.Items {
		data, err := strAttr(item, "data")
		if err != nil {
			return nil, fmt.Errorf("repository: ListOrders: %w", err)
		}
		o, err := decodeOrder(data)
		if err != nil {
			return nil, fmt.Errorf("repository: ListOrders: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func (c *Client) orderItem(o domain.Order) (map[string]types.AttributeValue, error) {
	data, err := encodeOrder(o)
	if err != nil {
		return nil, err
	}
	return map[string]types.AttributeValue{
		"PK":         &types.AttributeValueMemberS{Value: orderPK(o.ID)},
		"SK":         &types.AttributeValueMemberS{Value: skMeta},
		"entityType": &types.AttributeValueMemberS{Value: entityOrder},
		"orderId":    &types.AttributeValueMemberS{Value: o.ID},
		"status":     &types.AttributeValueMemberS{Value: string(o.Status)},
		"updatedAt":  &types.AttributeValueMemberS{Value: sortableTime(o.UpdatedAt)},
		"version":    &types.AttributeValueMemberN{Value: strconv.FormatInt(o.Version, 10)},
		"data":       &types.AttributeValueMemberS{Value: data},
		"ttl":        &types.AttributeValueMemberN{Value: strconv.FormatInt(c.ttlValue(), 10)},
	}, nil
}

func (c *Client) turnItem(t domain.TurnRecord) (map[string]types.AttributeValue, error) {
	data, err := encodeTurn(t)
	if err != nil {
		return nil, err
	}
	return map[string]types.AttributeValue{
		"PK":   &types.AttributeValueMemberS{Value: orderPK(t.OrderID)},
		"SK":   &types.AttributeValueMemberS{Value: turnSK(t.MessageID)},
		"data": &types.AttributeValueMemberS{Value: data},
		"ttl":  &types.AttributeValueMemberN{Value: strconv.FormatInt(c.ttlValue(), 10)},
	}, nil
}

func versionCondition(version int64) (*string, map[string]types.AttributeValue) {
	if version <= 1 {
		return aws.String("attribute_not_exists(PK)"), nil
	}
	return aws.String("version = :expected"), map[string]types.AttributeValue{
		":expected": &types.AttributeValueMemberN{Value: strconv.FormatInt(version-1, 10)},
	}
}

// transactionError maps per-item cancellation reasons to domain errors.
// Item 0 is the order, item 1 the turn.
func transactionError(err error) error {
	var canceled *types.TransactionCanceledException
	if !errors.As(err, &canceled) {
		return err
	}
	for i, r := range canceled.CancellationReasons {
		if aws.ToString(r.Code) != codeCondFailed {
			continue
		}
		if i == 0 {
			return domain.ErrOrderConflict
		}
		return domain.ErrDuplicateTurn
	}
	return err
}

func itemKey(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

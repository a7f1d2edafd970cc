package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"chat-agent/internal/domain"
	"chat-agent/internal/ids"
)

type messageItem struct {
	PK             string      `dynamodbav:"PK"`
	SK             string      `dynamodbav:"SK"`
	Entity         string      `dynamodbav:"entity"`
	ID             string      `dynamodbav:"id"`
	ConversationID string      `dynamodbav:"conversationId"`
	Role           domain.Role `dynamodbav:"role"`
	Content        string      `dynamodbav:"content"`
	Timestamp      time.Time   `dynamodbav:"timestamp"`
}

func (it messageItem) toDomain() domain.Message {
	return domain.Message{
		ID:             it.ID,
		ConversationID: it.ConversationID,
		Role:           it.Role,
		Content:        it.Content,
		Timestamp:      it.Timestamp,
	}
}

// CreateMessage appends a message to a conversation's partition. The write is
// a single PutItem, so a message is either fully visible or absent.
func (c *Client) CreateMessage(ctx context.Context, conversationID string, role domain.Role, content string) (domain.Message, error) {
	if !role.Valid() {
		return domain.Message{}, fmt.Errorf("repository: CreateMessage: invalid role %q", role)
	}
	id, ts := ids.NewMessageID()
	msg := domain.Message{
		ID:             id,
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Timestamp:      ts,
	}
	item, err := attributevalue.MarshalMap(messageItem{
		PK:             convPK(conversationID),
		SK:             msgSK(id),
		Entity:         entityMessage,
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		Role:           msg.Role,
		Content:        msg.Content,
		Timestamp:      msg.Timestamp,
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("repository: CreateMessage marshal: %w", err)
	}

	_, err = c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("repository: CreateMessage: %w", err)
	}
	return msg, nil
}

// ListMessages returns a conversation's messages in ascending sort-key order,
// which is timestamp order. An unknown conversation yields an empty slice.
func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	p := dynamodb.NewQueryPaginator(c.api, messagesQuery(c.tableName, conversationID))

	msgs := []domain.Message{}
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("repository: ListMessages query: %w", err)
		}
		var items []messageItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("repository: ListMessages unmarshal: %w", err)
		}
		for _, it := range items {
			msgs = append(msgs, it.toDomain())
		}
	}
	return msgs, nil
}

// DeleteMessages removes every message of a conversation and returns how many
// were deleted.
func (c *Client) DeleteMessages(ctx context.Context, conversationID string) (int, error) {
	in := messagesQuery(c.tableName, conversationID)
	in.ProjectionExpression = aws.String("PK, SK")
	p := dynamodb.NewQueryPaginator(c.api, in)

	var keys []map[string]types.AttributeValue
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("repository: DeleteMessages query: %w", err)
		}
		keys = append(keys, page.Items...)
	}

	for start := 0; start < len(keys); start += batchWriteLimit {
		end := min(start+batchWriteLimit, len(keys))
		if err := c.batchDelete(ctx, keys[start:end]); err != nil {
			return 0, fmt.Errorf("repository: DeleteMessages: %w", err)
		}
	}
	return len(keys), nil
}

func (c *Client) batchDelete(ctx context.Context, keys []map[string]types.AttributeValue) error {
	reqs := make([]types.WriteRequest, 0, len(keys))
	for _, k := range keys {
		reqs = append(reqs, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{Key: map[string]types.AttributeValue{"PK": k["PK"], "SK": k["SK"]}},
		})
	}

	pending := map[string][]types.WriteRequest{c.tableName: reqs}
	for attempt := 0; attempt < batchWriteAttempts; attempt++ {
		out, err := c.api.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return fmt.Errorf("batch write: %w", err)
		}
		if out == nil || len(out.UnprocessedItems[c.tableName]) == 0 {
			return nil
		}
		pending = map[string][]types.WriteRequest{c.tableName: out.UnprocessedItems[c.tableName]}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(batchBackoff * time.Duration(attempt+1)):
		}
	}
	return fmt.Errorf("batch write: %d items still unprocessed after %d attempts", len(pending[c.tableName]), batchWriteAttempts)
}

func messagesQuery(tableName, conversationID string) *dynamodb.QueryInput {
	return &dynamodb.QueryInput{
		TableName:              aws.String(tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: convPK(conversationID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixMsg},
		},
		ScanIndexForward: aws.Bool(true),
		ConsistentRead:   aws.Bool(true),
	}
}

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

type conversationItem struct {
	PK        string    `dynamodbav:"PK"`
	SK        string    `dynamodbav:"SK"`
	Entity    string    `dynamodbav:"entity"`
	ID        string    `dynamodbav:"id"`
	Name      string    `dynamodbav:"name"`
	CreatedAt time.Time `dynamodbav:"createdAt"`
}

func (it conversationItem) toDomain() domain.Conversation {
	return domain.Conversation{ID: it.ID, Name: it.Name, CreatedAt: it.CreatedAt}
}

// CreateConversation writes a new conversation header with a fresh id.
func (c *Client) CreateConversation(ctx context.Context, name string) (domain.Conversation, error) {
	conv := domain.Conversation{
		ID:        ids.NewConversationID(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	item, err := attributevalue.MarshalMap(conversationItem{
		PK:        convPK(conv.ID),
		SK:        skMeta,
		Entity:    entityConversation,
		ID:        conv.ID,
		Name:      conv.Name,
		CreatedAt: conv.CreatedAt,
	})
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("repository: CreateConversation marshal: %w", err)
	}

	_, err = c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("repository: CreateConversation: %w", err)
	}
	return conv, nil
}

// GetConversation returns the header for id or domain.ErrNotFound.
func (c *Client) GetConversation(ctx context.Context, id string) (domain.Conversation, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            conversationKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("repository: GetConversation get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.Conversation{}, fmt.Errorf("repository: GetConversation %q: %w", id, domain.ErrNotFound)
	}

	var item conversationItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return domain.Conversation{}, fmt.Errorf("repository: GetConversation unmarshal: %w", err)
	}
	return item.toDomain(), nil
}

// ListConversations returns every conversation header in table scan order.
func (c *Client) ListConversations(ctx context.Context) ([]domain.Conversation, error) {
	p := dynamodb.NewScanPaginator(c.api, &dynamodb.ScanInput{
		TableName:                aws.String(c.tableName),
		FilterExpression:         aws.String("#entity = :entity"),
		ExpressionAttributeNames: map[string]string{"#entity": "entity"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":entity": &types.AttributeValueMemberS{Value: entityConversation},
		},
	})

	convs := []domain.Conversation{}
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("repository: ListConversations scan: %w", err)
		}
		var items []conversationItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("repository: ListConversations unmarshal: %w", err)
		}
		for _, it := range items {
			convs = append(convs, it.toDomain())
		}
	}
	return convs, nil
}

// RenameConversation sets the name of an existing conversation.
func (c *Client) RenameConversation(ctx context.Context, id, name string) (domain.Conversation, error) {
	out, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(c.tableName),
		Key:                      conversationKey(id),
		UpdateExpression:         aws.String("SET #name = :name"),
		ConditionExpression:      aws.String("attribute_exists(PK)"),
		ExpressionAttributeNames: map[string]string{"#name": "name"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":name": &types.AttributeValueMemberS{Value: name},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		if isConditionFailed(err) {
			return domain.Conversation{}, fmt.Errorf("repository: RenameConversation %q: %w", id, domain.ErrNotFound)
		}
		return domain.Conversation{}, fmt.Errorf("repository: RenameConversation: %w", err)
	}

	var item conversationItem
	if err := attributevalue.UnmarshalMap(out.Attributes, &item); err != nil {
		return domain.Conversation{}, fmt.Errorf("repository: RenameConversation unmarshal: %w", err)
	}
	return item.toDomain(), nil
}

// DeleteConversation removes the header only. Messages are removed separately
// with DeleteMessages.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	_, err := c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(c.tableName),
		Key:                 conversationKey(id),
		ConditionExpression: aws.String("attribute_exists(PK)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("repository: DeleteConversation %q: %w", id, domain.ErrNotFound)
		}
		return fmt.Errorf("repository: DeleteConversation: %w", err)
	}
	return nil
}

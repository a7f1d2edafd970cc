// Package boltstore is a single-file conversation store for local runs of the
// standalone server. It implements the same conversation and message methods
// as the DynamoDB repository.
package boltstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"chat-agent/internal/domain"
	"chat-agent/internal/ids"
)

var (
	conversationsBucket = []byte("conversations")
	// messagesBucket holds one nested bucket per conversation, keyed by message
	// id. Ids sort by creation time, so a cursor walk is timestamp order.
	messagesBucket = []byte("messages")
)

type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the database file at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("boltstore: create dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("boltstore: open %q: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(conversationsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(messagesBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("boltstore: init buckets: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateConversation(ctx context.Context, name string) (domain.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return domain.Conversation{}, err
	}
	conv := domain.Conversation{
		ID:        ids.NewConversationID(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(conversationsBucket), conv.ID, conv)
	})
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("boltstore: CreateConversation: %w", err)
	}
	return conv, nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (domain.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return domain.Conversation{}, err
	}
	var conv domain.Conversation
	err := s.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(conversationsBucket), id, &conv)
	})
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("boltstore: GetConversation %q: %w", id, err)
	}
	return conv, nil
}

func (s *Store) ListConversations(ctx context.Context) ([]domain.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	convs := []domain.Conversation{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(conversationsBucket).ForEach(func(_, v []byte) error {
			var conv domain.Conversation
			if err := json.Unmarshal(v, &conv); err != nil {
				return err
			}
			convs = append(convs, conv)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("boltstore: ListConversations: %w", err)
	}
	return convs, nil
}

func (s *Store) RenameConversation(ctx context.Context, id, name string) (domain.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return domain.Conversation{}, err
	}
	var conv domain.Conversation
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(conversationsBucket)
		if err := getJSON(b, id, &conv); err != nil {
			return err
		}
		conv.Name = name
		return putJSON(b, id, conv)
	})
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("boltstore: RenameConversation %q: %w", id, err)
	}
	return conv, nil
}

func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(conversationsBucket)
		if b.Get([]byte(id)) == nil {
			return domain.ErrNotFound
		}
		return b.Delete([]byte(id))
	})
	if err != nil {
		return fmt.Errorf("boltstore: DeleteConversation %q: %w", id, err)
	}
	return nil
}

func (s *Store) CreateMessage(ctx context.Context, conversationID string, role domain.Role, content string) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}
	if !role.Valid() {
		return domain.Message{}, fmt.Errorf("boltstore: CreateMessage: invalid role %q", role)
	}
	id, ts := ids.NewMessageID()
	msg := domain.Message{
		ID:             id,
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Timestamp:      ts,
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(messagesBucket).CreateBucketIfNotExists([]byte(conversationID))
		if err != nil {
			return err
		}
		return putJSON(b, id, msg)
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("boltstore: CreateMessage: %w", err)
	}
	return msg, nil
}

func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	msgs := []domain.Message{}
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(messagesBucket).Bucket([]byte(conversationID))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var msg domain.Message
			if err := json.Unmarshal(v, &msg); err != nil {
				return fmt.Errorf("decode message %q: %w", k, err)
			}
			msgs = append(msgs, msg)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("boltstore: ListMessages: %w", err)
	}
	return msgs, nil
}

func (s *Store) DeleteMessages(ctx context.Context, conversationID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int
	err := s.db.Update(func(tx *bolt.Tx) error {
		parent := tx.Bucket(messagesBucket)
		b := parent.Bucket([]byte(conversationID))
		if b == nil {
			return nil
		}
		if err := b.ForEach(func(_, _ []byte) error { n++; return nil }); err != nil {
			return err
		}
		return parent.DeleteBucket([]byte(conversationID))
	})
	if err != nil {
		return 0, fmt.Errorf("boltstore: DeleteMessages: %w", err)
	}
	return n, nil
}

func putJSON(b *bolt.Bucket, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), raw)
}

func getJSON(b *bolt.Bucket, key string, v any) error {
	raw := b.Get([]byte(key))
	if raw == nil {
		return domain.ErrNotFound
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	return nil
}

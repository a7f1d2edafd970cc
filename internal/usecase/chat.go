package usecase

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"chat-agent/internal/domain"
)

const (
	defaultMaxMessageLen   = 4000
	defaultListConcurrency = 8

	outcomeAnswered = "answered"
	outcomeStalled  = "stalled"
	outcomeRejected = "rejected"
	outcomeFailed   = "failed"
)

type ConversationStore interface {
	CreateConversation(ctx context.Context, name string) (domain.Conversation, error)
	GetConversation(ctx context.Context, id string) (domain.Conversation, error)
	ListConversations(ctx context.Context) ([]domain.Conversation, error)
	RenameConversation(ctx context.Context, id, name string) (domain.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
}

type MessageStore interface {
	CreateMessage(ctx context.Context, conversationID string, role domain.Role, content string) (domain.Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error)
	DeleteMessages(ctx context.Context, conversationID string) (int, error)
}

type CompletionGateway interface {
	Complete(ctx context.Context, turns []domain.ChatMessage) (string, error)
}

// TurnObserver is notified once per PostUserTurn call.
type TurnObserver interface {
	ObserveTurn(outcome string, elapsed time.Duration)
}

type failureKinder interface {
	FailureKind() string
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// ChatService coordinates the conversation store, the message store and the
// completion gateway. It holds no per-conversation state; every call reads
// what it needs from the stores.
type ChatService struct {
	conversations ConversationStore
	messages      MessageStore
	gateway       CompletionGateway
	observer      TurnObserver
	log           zerolog.Logger

	historyWindow   int
	maxMessageLen   int
	listConcurrency int
}

type Option func(*ChatService)

func WithLogger(log zerolog.Logger) Option {
	return func(s *ChatService) { s.log = log }
}

// WithHistoryWindow sets how many stored messages, ending with the new user
// turn, are sent to the gateway. The default of 1 sends only the new turn.
func WithHistoryWindow(n int) Option {
	return func(s *ChatService) {
		if n > 0 {
			s.historyWindow = n
		}
	}
}

func WithMaxMessageLength(n int) Option {
	return func(s *ChatService) {
		if n > 0 {
			s.maxMessageLen = n
		}
	}
}

func WithTurnObserver(o TurnObserver) Option {
	return func(s *ChatService) { s.observer = o }
}

func NewChatService(cs ConversationStore, ms MessageStore, gw CompletionGateway, opts ...Option) (*ChatService, error) {
	if cs == nil {
		return nil, errors.New("usecase: conversation store must not be nil")
	}
	if ms == nil {
		return nil, errors.New("usecase: message store must not be nil")
	}
	if gw == nil {
		return nil, errors.New("usecase: completion gateway must not be nil")
	}
	s := &ChatService{
		conversations:   cs,
		messages:        ms,
		gateway:         gw,
		log:             zerolog.Nop(),
		historyWindow:   1,
		maxMessageLen:   defaultMaxMessageLen,
		listConcurrency: defaultListConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateConversation stores a new conversation. A blank name becomes
// domain.DefaultConversationName.
func (s *ChatService) CreateConversation(ctx context.Context, name string) (domain.ConversationWithMessages, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = domain.DefaultConversationName
	}
	conv, err := s.conversations.CreateConversation(ctx, name)
	if err != nil {
		return domain.ConversationWithMessages{}, newError(ErrorStore, "conversation_write_error", err)
	}
	return domain.ConversationWithMessages{Conversation: conv, Messages: []domain.Message{}}, nil
}

// ListConversations returns every conversation, newest first, each joined with
// its messages in storage order.
func (s *ChatService) ListConversations(ctx context.Context) ([]domain.ConversationWithMessages, error) {
	convs, err := s.conversations.ListConversations(ctx)
	if err != nil {
		return nil, newError(ErrorStore, "conversation_list_error", err)
	}
	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].CreatedAt.After(convs[j].CreatedAt)
	})

	out := make([]domain.ConversationWithMessages, len(convs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.listConcurrency)
	for i, conv := range convs {
		i, conv := i, conv
		g.Go(func() error {
			msgs, err := s.messages.ListMessages(gctx, conv.ID)
			if err != nil {
				return err
			}
			out[i] = domain.ConversationWithMessages{Conversation: conv, Messages: nonNil(msgs)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, newError(ErrorStore, "message_list_error", err)
	}
	return out, nil
}

// ListMessages returns a conversation's messages in storage order. An unknown
// conversation yields an empty slice, not an error.
func (s *ChatService) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, newError(ErrorValidation, "missing_conversation_id", nil)
	}
	msgs, err := s.messages.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, newError(ErrorStore, "message_list_error", err)
	}
	return nonNil(msgs), nil
}

// PostUserTurn persists text as a user message, asks the gateway for a reply
// and persists the reply as an assistant message. The three steps are
// independent writes: if the gateway fails, the user message stays and the
// conversation ends with an unanswered turn until the next call.
func (s *ChatService) PostUserTurn(ctx context.Context, conversationID, text string) (reply string, err error) {
	start := time.Now()
	outcome := outcomeFailed
	defer func() {
		if s.observer != nil {
			s.observer.ObserveTurn(outcome, time.Since(start))
		}
	}()

	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		outcome = outcomeRejected
		return "", newError(ErrorValidation, "missing_conversation_id", nil)
	}
	if strings.TrimSpace(text) == "" {
		outcome = outcomeRejected
		return "", newError(ErrorValidation, "empty_message", nil)
	}
	if len([]rune(text)) > s.maxMessageLen {
		outcome = outcomeRejected
		return "", newError(ErrorValidation, "message_too_long", nil)
	}

	conv, err := s.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			outcome = outcomeRejected
			return "", newError(ErrorNotFound, "conversation_not_found", err)
		}
		return "", newError(ErrorStore, "conversation_read_error", err)
	}

	userMsg, err := s.messages.CreateMessage(ctx, conversationID, domain.RoleUser, text)
	if err != nil {
		return "", newError(ErrorStore, "user_message_write_error", err)
	}

	reply, err = s.gateway.Complete(ctx, s.buildTurns(ctx, userMsg))
	if err != nil {
		outcome = outcomeStalled
		reason := "completion_failed"
		var fk failureKinder
		if errors.As(err, &fk) {
			reason = "completion_" + fk.FailureKind()
		}
		ev := s.log.Warn().
			Err(err).
			Str("conversationId", conversationID).
			Str("userMessageId", userMsg.ID).
			Str("reason", reason)
		if status, ok := upstreamStatusCode(err); ok {
			ev = ev.Int("upstreamStatus", status)
		}
		ev.Msg("user turn stalled: completion failed")
		return "", newError(ErrorCompletionFailed, reason, err)
	}
	if strings.TrimSpace(reply) == "" {
		outcome = outcomeStalled
		return "", newError(ErrorCompletionFailed, "completion_empty", nil)
	}

	if _, err := s.messages.CreateMessage(ctx, conversationID, domain.RoleAssistant, reply); err != nil {
		outcome = outcomeStalled
		return "", newError(ErrorStore, "assistant_message_write_error", err)
	}

	if conv.Name == domain.DefaultConversationName {
		if _, err := s.conversations.RenameConversation(ctx, conversationID, titleFrom(text)); err != nil {
			s.log.Warn().Err(err).Str("conversationId", conversationID).Msg("auto-title rename failed")
		}
	}

	outcome = outcomeAnswered
	return reply, nil
}

// RenameConversation sets a conversation's name and returns it joined with its
// messages.
func (s *ChatService) RenameConversation(ctx context.Context, id, name string) (domain.ConversationWithMessages, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.ConversationWithMessages{}, newError(ErrorValidation, "missing_conversation_id", nil)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.ConversationWithMessages{}, newError(ErrorValidation, "empty_name", nil)
	}

	conv, err := s.conversations.RenameConversation(ctx, id, name)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ConversationWithMessages{}, newError(ErrorNotFound, "conversation_not_found", err)
		}
		return domain.ConversationWithMessages{}, newError(ErrorStore, "conversation_write_error", err)
	}

	msgs, err := s.messages.ListMessages(ctx, id)
	if err != nil {
		return domain.ConversationWithMessages{}, newError(ErrorStore, "message_list_error", err)
	}
	return domain.ConversationWithMessages{Conversation: conv, Messages: nonNil(msgs)}, nil
}

// DeleteConversation removes a conversation's messages and then its header.
// Deleting an unknown conversation succeeds.
func (s *ChatService) DeleteConversation(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return newError(ErrorValidation, "missing_conversation_id", nil)
	}

	n, err := s.messages.DeleteMessages(ctx, id)
	if err != nil {
		return newError(ErrorStore, "message_delete_error", err)
	}
	if err := s.conversations.DeleteConversation(ctx, id); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return newError(ErrorStore, "conversation_delete_error", err)
	}

	s.log.Info().Str("conversationId", id).Int("messagesDeleted", n).Msg("conversation deleted")
	return nil
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) || statusErr.HTTPStatusCode() == 0 {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}

func nonNil(msgs []domain.Message) []domain.Message {
	if msgs == nil {
		return []domain.Message{}
	}
	return msgs
}

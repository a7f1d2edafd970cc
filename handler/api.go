package handler

import (
	"context"
	"errors"
	"net/http"

	"chat-agent/internal/domain"
	"chat-agent/internal/usecase"
)

const (
	correlationHeader = "X-Correlation-Id"
	routePrefix       = "/api/chat"
	rootMessage       = "AI Agent API is running"
)

// ChatUseCase is the set of operations exposed over HTTP.
type ChatUseCase interface {
	CreateConversation(ctx context.Context, name string) (domain.ConversationWithMessages, error)
	ListConversations(ctx context.Context) ([]domain.ConversationWithMessages, error)
	ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error)
	PostUserTurn(ctx context.Context, conversationID, text string) (string, error)
	RenameConversation(ctx context.Context, id, name string) (domain.ConversationWithMessages, error)
	DeleteConversation(ctx context.Context, id string) error
}

type createRequest struct {
	Name string `json:"name"`
}

type postMessageRequest struct {
	Message string `json:"message"`
}

type renameRequest struct {
	Name string `json:"name"`
}

type postMessageResponse struct {
	Response string `json:"response"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var errorMessages = map[usecase.ErrorCode]string{
	usecase.ErrorValidation:       "invalid request",
	usecase.ErrorNotFound:         "chat not found",
	usecase.ErrorStore:            "storage unavailable",
	usecase.ErrorCompletionFailed: "failed to get a response from the assistant",
}

// errorStatus maps a use-case failure to an HTTP status and a body that
// carries only the error code and a fixed message.
func errorStatus(err error) (int, errorResponse) {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		return http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorStore), Message: "internal error"}
	}

	body := errorResponse{Error: string(ucErr.Code), Message: errorMessages[ucErr.Code]}
	switch ucErr.Code {
	case usecase.ErrorValidation:
		body.Message = ucErr.Reason
		return http.StatusBadRequest, body
	case usecase.ErrorNotFound:
		return http.StatusNotFound, body
	case usecase.ErrorCompletionFailed:
		return http.StatusBadGateway, body
	default:
		if body.Message == "" {
			body.Message = "internal error"
		}
		return http.StatusInternalServerError, body
	}
}

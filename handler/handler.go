package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chat-agent/internal/usecase"
)

// Handler serves the chat API from API Gateway proxy events.
type Handler struct {
	uc  ChatUseCase
	log zerolog.Logger
}

func NewHandler(uc ChatUseCase, log zerolog.Logger) (*Handler, error) {
	if uc == nil {
		return nil, errors.New("handler: use case must not be nil")
	}
	return &Handler{uc: uc, log: log}, nil
}

type result struct {
	status int
	body   any
	err    error
}

func success(body any) result { return result{status: http.StatusOK, body: body} }

func failed(err error) result {
	status, body := errorStatus(err)
	return result{status: status, body: body, err: err}
}

func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	corrID := correlationID(req.Headers)
	method := strings.ToUpper(req.HTTPMethod)

	var res result
	if method == http.MethodOptions {
		res = result{status: http.StatusNoContent}
	} else {
		body, err := requestBody(req)
		if err != nil {
			res = result{
				status: http.StatusBadRequest,
				body:   errorResponse{Error: string(usecase.ErrorValidation), Message: "invalid_body_encoding"},
				err:    err,
			}
		} else {
			res = h.route(ctx, method, req.Path, body)
		}
	}

	h.logRequest(method, req.Path, corrID, res)
	return h.respond(res, corrID), nil
}

func (h *Handler) route(ctx context.Context, method, path string, body []byte) result {
	segs := pathSegments(path)
	switch {
	case len(segs) == 0:
		if method != http.MethodGet {
			return methodNotAllowed()
		}
		return success(messageResponse{Message: rootMessage})

	case len(segs) == 1 && segs[0] == "chats":
		switch method {
		case http.MethodGet:
			convs, err := h.uc.ListConversations(ctx)
			if err != nil {
				return failed(err)
			}
			return success(convs)
		case http.MethodPost:
			var in createRequest
			if err := decodeBody(body, &in); err != nil {
				return invalidJSON(err)
			}
			conv, err := h.uc.CreateConversation(ctx, in.Name)
			if err != nil {
				return failed(err)
			}
			return success(conv)
		}
		return methodNotAllowed()

	case len(segs) == 2 && segs[0] == "chats":
		id := segs[1]
		switch method {
		case http.MethodPut:
			var in renameRequest
			if err := decodeBody(body, &in); err != nil {
				return invalidJSON(err)
			}
			conv, err := h.uc.RenameConversation(ctx, id, in.Name)
			if err != nil {
				return failed(err)
			}
			return success(conv)
		case http.MethodDelete:
			if err := h.uc.DeleteConversation(ctx, id); err != nil {
				return failed(err)
			}
			return success(messageResponse{Message: "Chat deleted successfully"})
		}
		return methodNotAllowed()

	case len(segs) == 3 && segs[0] == "chats" && segs[2] == "messages":
		id := segs[1]
		switch method {
		case http.MethodGet:
			msgs, err := h.uc.ListMessages(ctx, id)
			if err != nil {
				return failed(err)
			}
			return success(msgs)
		case http.MethodPost:
			var in postMessageRequest
			if err := decodeBody(body, &in); err != nil {
				return invalidJSON(err)
			}
			reply, err := h.uc.PostUserTurn(ctx, id, in.Message)
			if err != nil {
				return failed(err)
			}
			return success(postMessageResponse{Response: reply})
		}
		return methodNotAllowed()
	}

	return result{
		status: http.StatusNotFound,
		body:   errorResponse{Error: string(usecase.ErrorNotFound), Message: "route not found"},
	}
}

func (h *Handler) respond(res result, corrID string) events.APIGatewayProxyResponse {
	headers := map[string]string{
		"Content-Type":                 "application/json",
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Headers": "Content-Type, " + correlationHeader,
		"Access-Control-Allow-Methods": "GET, POST, PUT, DELETE, OPTIONS",
		correlationHeader:              corrID,
	}
	if res.body == nil {
		return events.APIGatewayProxyResponse{StatusCode: res.status, Headers: headers}
	}

	b, err := json.Marshal(res.body)
	if err != nil {
		h.log.Error().Err(err).Str("correlationId", corrID).Msg("encode response")
		b, _ = json.Marshal(errorResponse{Error: string(usecase.ErrorStore), Message: "internal error"})
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError, Headers: headers, Body: string(b)}
	}
	return events.APIGatewayProxyResponse{StatusCode: res.status, Headers: headers, Body: string(b)}
}

func (h *Handler) logRequest(method, path, corrID string, res result) {
	ev := h.log.Info()
	switch {
	case res.status >= 500:
		ev = h.log.Error()
	case res.status >= 400:
		ev = h.log.Warn()
	}
	if res.err != nil {
		ev = ev.Err(res.err)
	}
	ev.Str("method", method).
		Str("path", path).
		Int("status", res.status).
		Str("correlationId", corrID).
		Msg("request handled")
}

func methodNotAllowed() result {
	return result{
		status: http.StatusMethodNotAllowed,
		body:   errorResponse{Error: "METHOD_NOT_ALLOWED", Message: "method not allowed"},
	}
}

func invalidJSON(err error) result {
	return result{
		status: http.StatusBadRequest,
		body:   errorResponse{Error: string(usecase.ErrorValidation), Message: "invalid_json"},
		err:    err,
	}
}

// pathSegments strips the optional /api/chat prefix and splits the rest.
func pathSegments(path string) []string {
	if path == routePrefix || strings.HasPrefix(path, routePrefix+"/") {
		path = strings.TrimPrefix(path, routePrefix)
	}
	var segs []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

func requestBody(req events.APIGatewayProxyRequest) ([]byte, error) {
	if !req.IsBase64Encoded {
		return []byte(req.Body), nil
	}
	b, err := base64.StdEncoding.DecodeString(req.Body)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// decodeBody treats an empty body as an empty object.
func decodeBody(body []byte, v any) error {
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	return json.Unmarshal(body, v)
}

func correlationID(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, correlationHeader) && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return uuid.NewString()
}

package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"chat-agent/internal/domain"
	"chat-agent/internal/usecase"
)

func newTestRouter(t *testing.T, uc ChatUseCase) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r, err := NewRouter(uc, zerolog.Nop())
	require.NoError(t, err)
	return r
}

func serve(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestNewRouter_ValidatesDependency(t *testing.T) {
	_, err := NewRouter(nil, zerolog.Nop())
	require.Error(t, err)
}

func TestRouter_Root(t *testing.T) {
	w := serve(newTestRouter(t, &stubUseCase{}), http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, rootMessage, parseBody[messageResponse](t, w.Body.String()).Message)
	require.NotEmpty(t, w.Header().Get(correlationHeader))
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_ServesBothPrefixes(t *testing.T) {
	uc := &stubUseCase{convs: []domain.ConversationWithMessages{testConv}}
	r := newTestRouter(t, uc)

	for _, path := range []string{"/chats", "/api/chat/chats"} {
		w := serve(r, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, w.Code, path)
		out := parseBody[[]domain.ConversationWithMessages](t, w.Body.String())
		require.Len(t, out, 1)
	}
}

func TestRouter_Operations(t *testing.T) {
	uc := &stubUseCase{conv: testConv, reply: "hello"}
	r := newTestRouter(t, uc)

	w := serve(r, http.MethodPost, "/chats", `{"name":"Trip"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "Trip", uc.lastText)

	w = serve(r, http.MethodPost, "/chats", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "", uc.lastText)

	w = serve(r, http.MethodPost, "/api/chat/chats/conv-1/messages", `{"message":"hi"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "conv-1", uc.lastID)
	require.Equal(t, "hello", parseBody[postMessageResponse](t, w.Body.String()).Response)

	w = serve(r, http.MethodGet, "/chats/conv-9/messages", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "conv-9", uc.lastID)

	w = serve(r, http.MethodPut, "/chats/conv-1", `{"name":"Renamed"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "Renamed", uc.lastText)

	w = serve(r, http.MethodDelete, "/chats/conv-3", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "conv-3", uc.lastID)
}

func TestRouter_InvalidJSON(t *testing.T) {
	w := serve(newTestRouter(t, &stubUseCase{}), http.MethodPut, "/chats/conv-1", `{`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, string(usecase.ErrorValidation), parseBody[errorResponse](t, w.Body.String()).Error)
}

func TestRouter_MapsErrors(t *testing.T) {
	uc := &stubUseCase{err: &usecase.Error{Code: usecase.ErrorNotFound, Reason: "conversation_not_found"}}
	w := serve(newTestRouter(t, uc), http.MethodPut, "/chats/missing", `{"name":"x"}`)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, string(usecase.ErrorNotFound), parseBody[errorResponse](t, w.Body.String()).Error)

	uc = &stubUseCase{err: &usecase.Error{Code: usecase.ErrorCompletionFailed, Reason: "completion_timeout", Err: errors.New("deadline")}}
	w = serve(newTestRouter(t, uc), http.MethodPost, "/chats/c/messages", `{"message":"hi"}`)
	require.Equal(t, http.StatusBadGateway, w.Code)
	require.NotContains(t, w.Body.String(), "deadline")
}

func TestRouter_PreflightAndCorrelation(t *testing.T) {
	r := newTestRouter(t, &stubUseCase{})

	w := serve(r, http.MethodOptions, "/chats/conv-1", "")
	require.Equal(t, http.StatusNoContent, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(correlationHeader, "corr-7")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, "corr-7", rec.Header().Get(correlationHeader))
}

func TestRouter_ChunkedEmptyBodyIsEmptyObject(t *testing.T) {
	uc := &stubUseCase{conv: testConv, lastText: "unset"}
	r := newTestRouter(t, uc)

	req := httptest.NewRequest(http.MethodPost, "/chats", strings.NewReader(""))
	req.ContentLength = -1
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "", uc.lastText)
}

func TestRouter_RoutingErrorsAreJSON(t *testing.T) {
	r := newTestRouter(t, &stubUseCase{})

	w := serve(r, http.MethodGet, "/unknown", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, string(usecase.ErrorNotFound), parseBody[errorResponse](t, w.Body.String()).Error)

	w = serve(r, http.MethodPatch, "/chats/conv-1", "")
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
	require.Equal(t, "METHOD_NOT_ALLOWED", parseBody[errorResponse](t, w.Body.String()).Error)
}

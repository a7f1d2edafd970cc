package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chat-agent/internal/domain"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

type countingKeys struct {
	key   string
	err   error
	calls int
}

func (k *countingKeys) APIKey(context.Context) (string, error) {
	k.calls++
	return k.key, k.err
}

func newTestClient(t *testing.T, srv *httptest.Server, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{
		WithBaseURL(srv.URL + "/v1"),
		WithModel("test-model"),
		WithHTTPClient(&http.Client{Timeout: 2 * time.Second}),
	}, opts...)
	c, err := NewClient(StaticKey("sk-test"), opts...)
	require.NoError(t, err)
	return c
}

func userTurn(content string) []domain.ChatMessage {
	return []domain.ChatMessage{{Role: domain.RoleUser, Content: content}}
}

func completionBody(content string) string {
	return `{
		"id": "chatcmpl-123",
		"object": "chat.completion",
		"created": 1670000000,
		"choices": [{
			"index": 0,
			"message": {"role": "assistant", "content": ` + jsonString(content) + `},
			"finish_reason": "stop"
		}]
	}`
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func requireKind(t *testing.T, err error, kind ErrorKind) *ProviderError {
	t.Helper()
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, kind, perr.Kind)
	return perr
}

// ---------------------------------------------------------------------------
// NewClient
// ---------------------------------------------------------------------------

func TestNewClient_NilKeySource(t *testing.T) {
	_, err := NewClient(nil)
	require.ErrorContains(t, err, "nil")
}

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient(StaticKey("sk"), WithBaseURL(" "), WithModel(""), WithTimeout(0))
	require.NoError(t, err)
	require.Equal(t, defaultBaseURL, c.baseURL)
	require.Equal(t, defaultModel, c.model)
	require.Equal(t, defaultTimeout, c.timeout)
}

// ---------------------------------------------------------------------------
// Complete
// ---------------------------------------------------------------------------

func TestComplete_HappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.Unmarshal(raw, &body))
		require.Equal(t, "test-model", body.Model)
		require.Len(t, body.Messages, 1)
		require.Equal(t, "user", body.Messages[0].Role)
		require.Equal(t, "hi", body.Messages[0].Content)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody("hello")))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	got, err := c.Complete(context.Background(), userTurn("hi"))
	require.NoError(t, err)
	require.Equal(t, "hello", got)
}

func TestComplete_KeyResolvedOnce(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody("ok")))
	}))
	defer srv.Close()

	keys := &countingKeys{key: "sk-lazy"}
	c, err := NewClient(keys, WithBaseURL(srv.URL+"/v1"))
	require.NoError(t, err)
	require.Zero(t, keys.calls, "key must not be fetched at construction")

	for i := 0; i < 3; i++ {
		_, err := c.Complete(context.Background(), userTurn("hi"))
		require.NoError(t, err)
	}
	require.Equal(t, 1, keys.calls)
	require.Equal(t, int32(3), hits.Load())
}

func TestComplete_KeyFailure(t *testing.T) {
	c, err := NewClient(&countingKeys{err: errors.New("ssm unavailable")})
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), userTurn("hi"))
	requireKind(t, err, KindAuth)
	require.ErrorContains(t, err, "ssm unavailable")
}

type blockingKeys struct{}

func (blockingKeys) APIKey(ctx context.Context) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestComplete_KeyResolutionIsBoundedByTimeout(t *testing.T) {
	c, err := NewClient(blockingKeys{}, WithTimeout(30*time.Millisecond))
	require.NoError(t, err)

	start := time.Now()
	_, err = c.Complete(context.Background(), userTurn("hi"))
	requireKind(t, err, KindTimeout)
	require.Less(t, time.Since(start), time.Second)
}

func TestComplete_NoTurns(t *testing.T) {
	c, err := NewClient(StaticKey("sk"))
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), nil)
	requireKind(t, err, KindMalformed)
}

func TestComplete_StatusErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		kind   ErrorKind
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down","type":"rate_limit_exceeded"}}`, KindRateLimited},
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"bad key","type":"invalid_request_error"}}`, KindAuth},
		{"server error", http.StatusInternalServerError, `{"error":{"message":"boom","type":"server_error"}}`, KindStatus},
		{"non-json error body", http.StatusBadGateway, `upstream unavailable`, KindStatus},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv).Complete(context.Background(), userTurn("hi"))
			perr := requireKind(t, err, tc.kind)
			require.Equal(t, tc.status, perr.HTTPStatusCode())
		})
	}
}

func TestComplete_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","choices":[]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Complete(context.Background(), userTurn("hi"))
	requireKind(t, err, KindMalformed)
	require.ErrorContains(t, err, "no choices")
}

func TestComplete_EmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody("   ")))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Complete(context.Background(), userTurn("hi"))
	requireKind(t, err, KindMalformed)
}

func TestComplete_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`not-a-json`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Complete(context.Background(), userTurn("hi"))
	requireKind(t, err, KindMalformed)
}

func TestComplete_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv, WithTimeout(30*time.Millisecond))
	start := time.Now()
	_, err := c.Complete(context.Background(), userTurn("hi"))
	requireKind(t, err, KindTimeout)
	require.Less(t, time.Since(start), time.Second)
}

func TestComplete_NetworkError(t *testing.T) {
	c, err := NewClient(StaticKey("sk"),
		WithBaseURL("http://127.0.0.1:1/v1"),
		WithHTTPClient(&http.Client{Timeout: time.Second}),
	)
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), userTurn("hi"))
	requireKind(t, err, KindNetwork)
	require.ErrorContains(t, err, "request failed")
}

func TestStaticKey_Empty(t *testing.T) {
	_, err := StaticKey(" ").APIKey(context.Background())
	require.Error(t, err)
}

package paramstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeGetter is a minimal Getter stub.
type fakeGetter struct {
	vals  []string
	errs  []error
	names []string
}

func (f *fakeGetter) GetParameter(_ context.Context, name string) (string, error) {
	idx := len(f.names)
	f.names = append(f.names, name)
	var (
		val string
		err error
	)
	if idx < len(f.vals) {
		val = f.vals[idx]
	}
	if idx < len(f.errs) {
		err = f.errs[idx]
	}
	return val, err
}

func TestNewTokenSource_Validates(t *testing.T) {
	_, err := NewTokenSource(nil, "/chat-agent")
	require.ErrorContains(t, err, "nil")

	_, err = NewTokenSource(&fakeGetter{}, " / ")
	require.ErrorContains(t, err, "prefix")
}

func TestAPIKey_CachedAfterFirstSuccess(t *testing.T) {
	g := &fakeGetter{vals: []string{`{"token":"sk-from-ssm"}`}}
	ts, err := NewTokenSource(g, "/chat-agent/")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		key, err := ts.APIKey(context.Background())
		require.NoError(t, err)
		require.Equal(t, "sk-from-ssm", key)
	}
	require.Equal(t, []string{"/chat-agent/open-ai-token"}, g.names)
}

func TestAPIKey_RetriesAfterFailure(t *testing.T) {
	g := &fakeGetter{
		vals: []string{"", `{"token":"sk-second"}`},
		errs: []error{errors.New("ssm unavailable"), nil},
	}
	ts, err := NewTokenSource(g, "/chat-agent")
	require.NoError(t, err)

	_, err = ts.APIKey(context.Background())
	require.ErrorContains(t, err, "ssm unavailable")

	key, err := ts.APIKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sk-second", key)
}

func TestAPIKey_BadPayloads(t *testing.T) {
	cases := map[string]string{
		`{"broken`:          "unmarshal",
		`{"other":"value"}`: "API token is empty",
		`{"token":"  "}`:    "API token is empty",
	}
	for raw, want := range cases {
		ts, err := NewTokenSource(&fakeGetter{vals: []string{raw}}, "/chat-agent")
		require.NoError(t, err)
		_, err = ts.APIKey(context.Background())
		require.ErrorContains(t, err, want, "payload=%s", raw)
	}
}

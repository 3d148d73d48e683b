package paramstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
)

// fakeSSM records the request and returns a canned parameter.
type fakeSSM struct {
	value *string
	err   error
	in    *ssm.GetParameterInput
}

func (f *fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: in.Name, Value: f.value}}, nil
}

func strPtr(s string) *string { return &s }

func newStore(t *testing.T, api *fakeSSM) *KeyStore {
	t.Helper()
	s, err := NewKeyStore(api)
	require.NoError(t, err)
	return s
}

func TestNewKeyStore_NilClient(t *testing.T) {
	_, err := NewKeyStore(nil)
	require.ErrorContains(t, err, "must not be nil")
}

func TestAPIKey_BareValueIsDecrypted(t *testing.T) {
	api := &fakeSSM{value: strPtr("  AIza-bare\n")}
	key, err := newStore(t, api).APIKey(context.Background(), " /verilogai/gemini-api-key ")
	require.NoError(t, err)
	require.Equal(t, "AIza-bare", key)
	require.Equal(t, "/verilogai/gemini-api-key", *api.in.Name)
	require.True(t, *api.in.WithDecryption)
}

func TestAPIKey_JSONPayload(t *testing.T) {
	cases := []struct {
		name  string
		value string
		want  string
	}{
		{name: "api_key", value: `{"api_key":"AIza-a"}`, want: "AIza-a"},
		{name: "token", value: `{"token":"AIza-t"}`, want: "AIza-t"},
		{name: "api_key wins", value: `{"api_key":"AIza-a","token":"AIza-t"}`, want: "AIza-a"},
		{name: "blank api_key falls back", value: `{"api_key":" ","token":"AIza-t"}`, want: "AIza-t"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			key, err := newStore(t, &fakeSSM{value: strPtr(tc.value)}).APIKey(context.Background(), "p")
			require.NoError(t, err)
			require.Equal(t, tc.want, key)
		})
	}
}

func TestAPIKey_ParameterNotFound(t *testing.T) {
	api := &fakeSSM{err: &types.ParameterNotFound{Message: strPtr("no such parameter")}}
	_, err := newStore(t, api).APIKey(context.Background(), "/missing")
	require.ErrorIs(t, err, ErrKeyNotFound)
	require.ErrorContains(t, err, "/missing")
}

func TestAPIKey_SSMError(t *testing.T) {
	_, err := newStore(t, &fakeSSM{err: errors.New("access denied")}).APIKey(context.Background(), "p")
	require.ErrorContains(t, err, "access denied")
	require.NotErrorIs(t, err, ErrKeyNotFound)
}

func TestAPIKey_EmptyValues(t *testing.T) {
	for _, value := range []*string{nil, strPtr("   "), strPtr(`{"token":""}`), strPtr(`{}`)} {
		_, err := newStore(t, &fakeSSM{value: value}).APIKey(context.Background(), "p")
		require.ErrorIs(t, err, ErrEmptyKey)
	}
}

func TestResolveAPIKey_Rejects(t *testing.T) {
	_, err := ResolveAPIKey(context.Background(), nil, "p")
	require.ErrorContains(t, err, "fetcher must not be nil")

	s := newStore(t, &fakeSSM{value: strPtr("k")})
	_, err = ResolveAPIKey(context.Background(), s, "  ")
	require.ErrorContains(t, err, "name is required")

	_, err = newStore(t, &fakeSSM{value: strPtr(`{"token":`)}).APIKey(context.Background(), "p")
	require.ErrorContains(t, err, "not a valid key object")

	_, err = newStore(t, &fakeSSM{value: strPtr("AIza one")}).APIKey(context.Background(), "p")
	require.ErrorContains(t, err, "contains whitespace")
}

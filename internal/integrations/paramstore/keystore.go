// Package paramstore loads the Gemini API key from an AWS Systems Manager
// SecureString parameter.
package paramstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

var (
	// ErrKeyNotFound is returned when the configured parameter does not exist.
	ErrKeyNotFound = errors.New("paramstore: gemini api key parameter not found")
	// ErrEmptyKey is returned when the parameter holds no usable key.
	ErrEmptyKey = errors.New("paramstore: gemini api key is empty")
)

type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Fetcher returns the decrypted raw value of a parameter.
type Fetcher interface {
	Fetch(ctx context.Context, name string) (string, error)
}

// KeyStore reads the Gemini API key out of Parameter Store.
type KeyStore struct {
	api ssmAPI
}

func NewKeyStore(api ssmAPI) (*KeyStore, error) {
	if api == nil {
		return nil, errors.New("paramstore: ssm client must not be nil")
	}
	return &KeyStore{api: api}, nil
}

func (s *KeyStore) Fetch(ctx context.Context, name string) (string, error) {
	withDecryption := true
	out, err := s.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: &withDecryption,
	})
	if err != nil {
		var notFound *types.ParameterNotFound
		if errors.As(err, &notFound) {
			return "", fmt.Errorf("%w: %s", ErrKeyNotFound, name)
		}
		return "", fmt.Errorf("paramstore: read gemini api key %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("%w: parameter %q has no value", ErrEmptyKey, name)
	}
	return *out.Parameter.Value, nil
}

// APIKey fetches name and extracts the Gemini key from it.
func (s *KeyStore) APIKey(ctx context.Context, name string) (string, error) {
	return ResolveAPIKey(ctx, s, name)
}

// keyPayload is the JSON shape stored by deployments that keep several
// fields in one parameter. api_key wins over token.
type keyPayload struct {
	APIKey string `json:"api_key"`
	Token  string `json:"token"`
}

// ResolveAPIKey reads name through f. The value is either the bare key or a
// JSON object carrying it under "api_key" or "token".
func ResolveAPIKey(ctx context.Context, f Fetcher, name string) (string, error) {
	if f == nil {
		return "", errors.New("paramstore: fetcher must not be nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("paramstore: gemini api key parameter name is required")
	}

	raw, err := f.Fetch(ctx, name)
	if err != nil {
		return "", err
	}
	key := strings.TrimSpace(raw)
	if strings.HasPrefix(key, "{") {
		var p keyPayload
		if err := json.Unmarshal([]byte(key), &p); err != nil {
			return "", fmt.Errorf("paramstore: parameter %q is not a valid key object: %w", name, err)
		}
		key = strings.TrimSpace(p.APIKey)
		if key == "" {
			key = strings.TrimSpace(p.Token)
		}
	}
	if key == "" {
		return "", fmt.Errorf("%w: parameter %q", ErrEmptyKey, name)
	}
	if strings.ContainsAny(key, " \t\r\n") {
		return "", fmt.Errorf("paramstore: parameter %q: gemini api key contains whitespace", name)
	}
	return key, nil
}

// Package credentials persists provider API keys so the API server and
// workers can start without XAI_API_KEY in their environment.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"scenegen/internal/infra"
	"scenegen/internal/sqlinline"
)

const (
	ProviderXAI = "xai"
)

var ErrEmptyKey = errors.New("api key is required")

type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// XAIAPIKey returns the stored xAI key, or "" when none was saved.
func (s *Store) XAIAPIKey(ctx context.Context) (string, error) {
	return s.Token(ctx, ProviderXAI)
}

func (s *Store) SetXAIAPIKey(ctx context.Context, key string) error {
	return s.SetToken(ctx, ProviderXAI, key, nil)
}

func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

// SetToken upserts the key for provider. props is stored as jsonb and may be nil.
func (s *Store) SetToken(ctx context.Context, provider, token string, props map[string]any) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrEmptyKey
	}
	if props == nil {
		props = map[string]any{}
	}
	raw, err := json.Marshal(props)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token, raw)
	return err
}

// EnsureSchema creates the integration_tokens table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.sql.Exec(ctx, sqlinline.QCreateIntegrationTokens)
	return err
}

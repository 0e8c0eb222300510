package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"

	"aicoo/internal/domain"
	"aicoo/internal/repo"
)

const apiKeyPrefix = "coo_"

// ErrUnknownAPIKey is returned when a presented key matches no stored hash.
var ErrUnknownAPIKey = errors.New("unknown api key")

// CreateAPIKey issues a key for owner. The plaintext is only returned here; the
// store keeps its hash.
func (e Engine) CreateAPIKey(ctx context.Context, owner, name string) (string, domain.APIKey, error) {
	if strings.TrimSpace(owner) == "" {
		return "", domain.APIKey{}, invalid("owner_email", "is required")
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", domain.APIKey{}, err
	}
	plain := apiKeyPrefix + hex.EncodeToString(buf)
	key := domain.APIKey{
		ID:         newID(),
		OwnerEmail: owner,
		Name:       strings.TrimSpace(name),
		KeyHash:    repo.HashAPIKey(plain),
		CreatedAt:  e.now().Format(repo.TimeLayout),
	}
	if err := e.Repo.InsertAPIKey(ctx, key); err != nil {
		return "", domain.APIKey{}, err
	}
	return plain, key, nil
}

// ResolveAPIKey returns the owner of a plaintext key.
func (e Engine) ResolveAPIKey(ctx context.Context, plain string) (string, error) {
	key, err := e.Repo.GetAPIKeyByHash(ctx, repo.HashAPIKey(plain))
	if errors.Is(err, repo.ErrNotFound) {
		return "", ErrUnknownAPIKey
	}
	if err != nil {
		return "", err
	}
	return key.OwnerEmail, nil
}

func (e Engine) ListAPIKeys(ctx context.Context, owner string) ([]domain.APIKey, error) {
	return e.Repo.ListAPIKeys(ctx, owner)
}

func (e Engine) DeleteAPIKey(ctx context.Context, owner, id string) error {
	return scoped(e.Repo.DeleteAPIKey(ctx, id, owner), "api key", id)
}

package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"upkeep/internal/domain"
	"upkeep/internal/events"
	"upkeep/internal/repo"
)

const apiKeyPrefix = "upk_"

// CreatedAPIKey carries the raw key. It is returned once and never stored.
type CreatedAPIKey struct {
	domain.APIKey
	Key string `json:"key"`
}

func (e Engine) CreateAPIKey(ctx context.Context, accountID, name string) (CreatedAPIKey, error) {
	name = strings.TrimSpace(name)
	if len(name) > 100 {
		return CreatedAPIKey{}, invalid("name", "must be at most 100")
	}
	raw := apiKeyPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
	key := domain.APIKey{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(raw),
		CreatedAt: e.timestamp(),
	}
	tx, w, err := e.begin(ctx)
	if err != nil {
		return CreatedAPIKey{}, e.fail(ctx, "create api key", err)
	}
	defer tx.Rollback()
	if _, err := e.Repo.GetAccountTx(ctx, tx, accountID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return CreatedAPIKey{}, notFound("account")
		}
		return CreatedAPIKey{}, e.fail(ctx, "create api key", err)
	}
	if err := e.Repo.InsertAPIKeyTx(ctx, tx, key); err != nil {
		return CreatedAPIKey{}, e.fail(ctx, "create api key", err)
	}
	if err := w.Append(ctx, tx, events.APIKeyCreated, accountID, "api_key", key.ID, accountID, events.EventPayload{"name": name}); err != nil {
		return CreatedAPIKey{}, e.fail(ctx, "create api key", err)
	}
	if err := tx.Commit(); err != nil {
		return CreatedAPIKey{}, e.fail(ctx, "create api key", err)
	}
	return CreatedAPIKey{APIKey: key, Key: raw}, nil
}

func (e Engine) ListAPIKeys(ctx context.Context, accountID string) ([]domain.APIKey, error) {
	keys, err := e.Repo.ListAPIKeys(ctx, accountID)
	return keys, e.fail(ctx, "list api keys", err)
}

func (e Engine) DeleteAPIKey(ctx context.Context, accountID, id string) error {
	if strings.TrimSpace(id) == "" {
		return invalid("id", "is required")
	}
	tx, w, err := e.begin(ctx)
	if err != nil {
		return e.fail(ctx, "delete api key", err)
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteAPIKeyTx(ctx, tx, accountID, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return notFoundOrForbidden("api key")
		}
		return e.fail(ctx, "delete api key", err)
	}
	if err := w.Append(ctx, tx, events.APIKeyDeleted, accountID, "api_key", id, accountID, nil); err != nil {
		return e.fail(ctx, "delete api key", err)
	}
	if err := tx.Commit(); err != nil {
		return e.fail(ctx, "delete api key", err)
	}
	return nil
}

// AuthenticateAPIKey resolves a raw key to its owning account.
func (e Engine) AuthenticateAPIKey(ctx context.Context, raw string) (domain.APIKey, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.APIKey{}, invalid("api_key", "is required")
	}
	key, err := e.Repo.GetAPIKeyByHash(ctx, repo.HashAPIKey(raw))
	if errors.Is(err, repo.ErrNotFound) {
		return domain.APIKey{}, notFound("api key")
	}
	return key, e.fail(ctx, "authenticate api key", err)
}

// ListEvents lists the account's most recent events.
func (e Engine) ListEvents(ctx context.Context, accountID string, limit int, evtType, entityKind, entityID string) ([]domain.Event, error) {
	if limit > 500 {
		limit = 500
	}
	items, err := e.Repo.LatestEvents(ctx, limit, accountID, evtType, entityKind, entityID)
	return items, e.fail(ctx, "list events", err)
}

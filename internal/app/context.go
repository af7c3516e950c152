package app

import (
	"context"
	"errors"
	"fmt"

	"upkeep/internal/domain"
	"upkeep/internal/engine"
	"upkeep/internal/repo"
)

// DefaultAccountID is provisioned when a workspace has no account yet.
const DefaultAccountID = "local-user"

// ResolveAccount picks the account a CLI command acts for. It prefers the
// override, then the only account in the store. When the store is empty the
// default account is created on the starter plan.
func ResolveAccount(ctx context.Context, eng engine.Engine, override string) (domain.Account, error) {
	id := override
	if id == "" {
		acct, err := eng.Repo.SingleAccount(ctx)
		switch {
		case err == nil:
			return acct, nil
		case errors.Is(err, repo.ErrNotFound):
			id = DefaultAccountID
		default:
			return domain.Account{}, fmt.Errorf("resolve account: %w", err)
		}
	}
	return eng.EnsureAccount(ctx, engine.AccountProfile{ID: id})
}

package store

import (
	"context"
	"fmt"

	"github.com/dvloznov/pocketsync/internal/domain"
)

// UpsertEntity dispatches to the typed upsert for e. The set of entity kinds
// is closed, so an unknown kind is a programming error.
func UpsertEntity(ctx context.Context, s EntityStore, e domain.Entity) (UpsertResult, error) {
	switch v := e.(type) {
	case *domain.Account:
		return s.UpsertAccount(ctx, v)
	case *domain.Category:
		return s.UpsertCategory(ctx, v)
	case *domain.Transaction:
		return s.UpsertTransaction(ctx, v)
	default:
		return UpsertResult{}, fmt.Errorf("UpsertEntity: unsupported entity %T", e)
	}
}

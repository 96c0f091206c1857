package orchestration

import (
	"context"
	"strings"

	"github.com/steveyegge/cutover/internal/storage"
	"github.com/steveyegge/cutover/internal/types"
)

// ScopeItemInput holds the fields of a new scope item.
type ScopeItemInput struct {
	Name        string
	Description string
	Owner       string
}

// ScopeItemUpdate holds optional scope item edits.
type ScopeItemUpdate struct {
	Name        *string
	Description *string
	Owner       *string
}

func validateScopeItem(item *types.ScopeItem) error {
	if strings.TrimSpace(item.Name) == "" {
		return types.Invalid("name", "is required")
	}
	if len(item.Name) > 255 {
		return types.Invalid("name", "must be 255 characters or less (got %d)", len(item.Name))
	}
	return nil
}

// CreateScopeItem creates a scope item in the program.
func (s *Service) CreateScopeItem(ctx context.Context, scope types.Scope, in ScopeItemInput) (*types.ScopeItem, error) {
	now := s.clock()
	item := &types.ScopeItem{
		ID:          s.newID(),
		TenantID:    scope.TenantID,
		ProgramID:   scope.ProgramID,
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Owner:       in.Owner,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := validateScopeItem(item); err != nil {
		return nil, err
	}
	err := s.write(ctx, "scope_item.create", scope, func(ctx context.Context, tx storage.Transaction) error {
		return tx.CreateScopeItem(ctx, item)
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// ListScopeItems returns the program's scope items.
func (s *Service) ListScopeItems(ctx context.Context, scope types.Scope) ([]*types.ScopeItem, error) {
	var items []*types.ScopeItem
	err := s.read(ctx, "scope_item.list", scope, func(ctx context.Context, q storage.Queries) error {
		var err error
		items, err = q.ListScopeItems(ctx, scope)
		return err
	})
	return items, err
}

// UpdateScopeItem applies field edits.
func (s *Service) UpdateScopeItem(ctx context.Context, scope types.Scope, id string, upd ScopeItemUpdate) (*types.ScopeItem, error) {
	var item *types.ScopeItem
	err := s.write(ctx, "scope_item.update", scope, func(ctx context.Context, tx storage.Transaction) error {
		var err error
		item, err = tx.GetScopeItem(ctx, scope, id)
		if err != nil {
			return err
		}
		if upd.Name != nil {
			item.Name = strings.TrimSpace(*upd.Name)
		}
		if upd.Description != nil {
			item.Description = *upd.Description
		}
		if upd.Owner != nil {
			item.Owner = *upd.Owner
		}
		if err := validateScopeItem(item); err != nil {
			return err
		}
		item.UpdatedAt = s.clock()
		return tx.UpdateScopeItem(ctx, scope, item)
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// DeleteScopeItem removes a scope item that no task references.
func (s *Service) DeleteScopeItem(ctx context.Context, scope types.Scope, id string) error {
	return s.write(ctx, "scope_item.delete", scope, func(ctx context.Context, tx storage.Transaction) error {
		if _, err := tx.GetScopeItem(ctx, scope, id); err != nil {
			return err
		}
		n, err := tx.CountTasksForScopeItem(ctx, scope, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return types.Invalid("scope_item", "%s is referenced by %d task(s)", id, n)
		}
		return tx.DeleteScopeItem(ctx, scope, id)
	})
}

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"fintrack/internal/core"
)

// DefaultCurrencyFunc supplies the currency for accounts created without one.
type DefaultCurrencyFunc func(ctx context.Context) (string, error)

// CatalogService manages accounts and categories.
type CatalogService struct {
	store           CatalogStore
	invalidator     StatsInvalidator
	defaultCurrency DefaultCurrencyFunc
}

func NewCatalogService(store CatalogStore, invalidator StatsInvalidator, defaultCurrency DefaultCurrencyFunc) *CatalogService {
	return &CatalogService{store: store, invalidator: invalidator, defaultCurrency: defaultCurrency}
}

func (s *CatalogService) normalizeAccount(ctx context.Context, a core.Account) (core.Account, error) {
	a.Name = strings.TrimSpace(a.Name)
	a.Currency = strings.ToUpper(strings.TrimSpace(a.Currency))
	if a.Currency == "" && s.defaultCurrency != nil {
		cur, err := s.defaultCurrency(ctx)
		if err != nil {
			return core.Account{}, fmt.Errorf("default currency: %w", err)
		}
		a.Currency = cur
	}
	if a.Type == "" {
		a.Type = core.AccountOther
	}
	return a, a.Validate()
}

func (s *CatalogService) CreateAccount(ctx context.Context, a core.Account) (core.Account, error) {
	a, err := s.normalizeAccount(ctx, a)
	if err != nil {
		return core.Account{}, err
	}
	a.ID = 0
	return s.store.CreateAccount(ctx, a)
}

// UpdateAccount renames, retypes or archives an account. Balances only move
// through transactions.
func (s *CatalogService) UpdateAccount(ctx context.Context, a core.Account) (core.Account, error) {
	a, err := s.normalizeAccount(ctx, a)
	if err != nil {
		return core.Account{}, err
	}
	updated, err := s.store.UpdateAccount(ctx, a)
	if err != nil {
		return core.Account{}, err
	}
	s.namesChanged()
	return updated, nil
}

func (s *CatalogService) DeleteAccount(ctx context.Context, id int64) error {
	return s.store.DeleteAccount(ctx, id)
}

func (s *CatalogService) GetAccount(ctx context.Context, id int64) (core.Account, error) {
	return s.store.GetAccount(ctx, id)
}

func (s *CatalogService) ListAccounts(ctx context.Context, includeArchived bool) ([]core.Account, error) {
	return s.store.ListAccounts(ctx, includeArchived)
}

func (s *CatalogService) checkCategory(ctx context.Context, op string, c core.Category) (core.Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	if c.ParentID == nil {
		return c, nil
	}
	parent, err := s.store.GetCategory(ctx, *c.ParentID)
	if errors.Is(err, core.ErrNotFound) {
		return core.Category{}, core.ValidationError(op, "parent category %d does not exist", *c.ParentID)
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get parent category: %w", err)
	}
	if parent.Type != c.Type {
		return core.Category{}, core.ValidationError(op, "parent category must be an %s category", c.Type)
	}
	if c.ID != 0 && parent.ParentID != nil && *parent.ParentID == c.ID {
		return core.Category{}, core.ValidationError(op, "category cannot be nested under its own child")
	}
	return c, nil
}

func (s *CatalogService) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	c.ID = 0
	c, err := s.checkCategory(ctx, "create category", c)
	if err != nil {
		return core.Category{}, err
	}
	return s.store.CreateCategory(ctx, c)
}

func (s *CatalogService) UpdateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	const op = "update category"
	current, err := s.store.GetCategory(ctx, c.ID)
	if err != nil {
		return core.Category{}, err
	}
	if current.Type != c.Type {
		return core.Category{}, core.ValidationError(op, "category type cannot change")
	}
	if c, err = s.checkCategory(ctx, op, c); err != nil {
		return core.Category{}, err
	}
	updated, err := s.store.UpdateCategory(ctx, c)
	if err != nil {
		return core.Category{}, err
	}
	s.namesChanged()
	return updated, nil
}

// DeleteCategory removes the category and its budgets.
func (s *CatalogService) DeleteCategory(ctx context.Context, id int64) error {
	if err := s.store.DeleteCategory(ctx, id); err != nil {
		return err
	}
	s.namesChanged()
	return nil
}

func (s *CatalogService) GetCategory(ctx context.Context, id int64) (core.Category, error) {
	return s.store.GetCategory(ctx, id)
}

func (s *CatalogService) ListCategories(ctx context.Context, typ core.CategoryType, includeArchived bool) ([]core.Category, error) {
	if typ != "" && !typ.Valid() {
		return nil, core.ValidationError("list categories", "unknown category type %q", typ)
	}
	return s.store.ListCategories(ctx, typ, includeArchived)
}

// ReorderCategories stores the manual order given by ids.
func (s *CatalogService) ReorderCategories(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return core.ValidationError("reorder categories", "no categories given")
	}
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return core.ValidationError("reorder categories", "category %d listed twice", id)
		}
		seen[id] = struct{}{}
	}
	return s.store.ReorderCategories(ctx, ids)
}

func (s *CatalogService) namesChanged() {
	if s.invalidator != nil {
		s.invalidator.Clear()
	}
}

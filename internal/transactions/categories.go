package transactions

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/storage"
)

// CategoryRepository reads the seeded defaults plus user-defined categories.
// Lists are cached per user and dropped whenever that user adds one.
type CategoryRepository struct {
	store storage.Store
	cache cache.Cache[[]core.Category]
}

// NewCategoryRepository uses c to memoize per-user lists; c may be nil.
func NewCategoryRepository(store storage.Store, c cache.Cache[[]core.Category]) *CategoryRepository {
	return &CategoryRepository{store: store, cache: c}
}

// List returns the shared defaults followed by the user's own categories.
func (r *CategoryRepository) List(ctx context.Context, userID string) ([]core.Category, error) {
	if r.cache != nil {
		if list, ok := r.cache.Get(userID); ok {
			return list, nil
		}
	}

	shared, err := r.query(ctx, storage.Equal("user_id", nil))
	if err != nil {
		return nil, err
	}
	own := []core.Category{}
	if userID != "" {
		if own, err = r.query(ctx, storage.Equal("user_id", userID)); err != nil {
			return nil, err
		}
	}
	list := append(shared, own...)

	if r.cache != nil {
		r.cache.Set(userID, list)
	}
	return list, nil
}

// Exists matches name case-insensitively against List.
func (r *CategoryRepository) Exists(ctx context.Context, userID, name string) (bool, error) {
	list, err := r.List(ctx, userID)
	if err != nil {
		return false, err
	}
	name = strings.TrimSpace(name)
	for _, c := range list {
		if strings.EqualFold(c.Name, name) {
			return true, nil
		}
	}
	return false, nil
}

// Add stores a user-defined category.
func (r *CategoryRepository) Add(ctx context.Context, userID string, c core.Category) (core.Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return core.Category{}, &core.ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if strings.TrimSpace(userID) == "" {
		return core.Category{}, &core.ValidationError{Field: "user_id", Reason: "must not be empty"}
	}
	exists, err := r.Exists(ctx, userID, c.Name)
	if err != nil {
		return core.Category{}, err
	}
	if exists {
		return core.Category{}, fmt.Errorf("category %q already exists: %w", c.Name, core.ErrConstraintViolation)
	}

	c.ID = uuid.NewString()
	c.UserID = &userID
	c.IsDefault = false
	if c.Icon == "" {
		c.Icon = "label"
	}
	if err := r.store.Insert(ctx, storage.TableCategories, storage.CategoryRow(c)); err != nil {
		return core.Category{}, fmt.Errorf("insert category: %w", err)
	}
	if r.cache != nil {
		r.cache.Delete(userID)
	}

	slog.InfoContext(ctx, "Category created", "id", c.ID, "name", c.Name, "user_id", userID)
	return c, nil
}

func (r *CategoryRepository) query(ctx context.Context, where storage.Cond) ([]core.Category, error) {
	rows, err := r.store.Query(ctx, storage.TableCategories, storage.Query{Where: []storage.Cond{where}})
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	out := make([]core.Category, 0, len(rows))
	for _, row := range rows {
		c, err := categoryFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

package catalog

import (
	"context"

	"gorm.io/gorm"

	"brewery-production-backend/internal/model"
)

// RecipeCatalog is the read-only recipe metadata service.
type RecipeCatalog interface {
	Recipes(ctx context.Context, ids []int64) (map[int64]model.Recipe, error)
}

type gormRecipes struct {
	db *gorm.DB
}

// NewGormRecipes reads recipes from the shared database. Tenant scoping is
// applied by the database guard.
func NewGormRecipes(db *gorm.DB) RecipeCatalog {
	return &gormRecipes{db: db}
}

func (r *gormRecipes) Recipes(ctx context.Context, ids []int64) (map[int64]model.Recipe, error) {
	out := make(map[int64]model.Recipe, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var recipes []model.Recipe
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&recipes).Error; err != nil {
		return nil, err
	}
	for _, rec := range recipes {
		out[rec.ID] = rec
	}
	return out, nil
}

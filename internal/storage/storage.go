// Package storage defines the persistence interface for menus and catalog foods.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/wtm/internal/models"
)

var (
	// ErrNotFound is returned when a menu or food does not exist.
	ErrNotFound = errors.New("not found")
	// ErrMenuNotFound is returned when a food references a menu that does not exist.
	ErrMenuNotFound = fmt.Errorf("menu %w", ErrNotFound)
)

// Storage defines menu and food persistence operations.
type Storage interface {
	// Menu operations
	CreateMenu(ctx context.Context, menu *models.Menu) error
	GetMenu(ctx context.Context, id int64) (*models.Menu, error)
	UpdateMenu(ctx context.Context, menu *models.Menu) error
	DeleteMenu(ctx context.Context, id int64) error
	ListMenus(ctx context.Context, offset, limit int) ([]*models.Menu, error)

	// Food operations
	CreateFood(ctx context.Context, food *models.Food) error
	BatchCreateFoods(ctx context.Context, foods []*models.Food) error
	GetFood(ctx context.Context, id int64) (*models.Food, error)
	UpdateFood(ctx context.Context, food *models.Food) error
	DeleteFood(ctx context.Context, id int64) error
	ListFoods(ctx context.Context, offset, limit int) ([]*models.Food, error)
	ListFoodsByMenu(ctx context.Context, menuID int64) ([]*models.Food, error)

	// Embedding operations
	SetFoodEmbedding(ctx context.Context, id int64, embedding []float32) error
	ListEmbeddedFoods(ctx context.Context) ([]*models.Food, error)
	ListFoodsMissingEmbedding(ctx context.Context, afterID int64, limit int) ([]*models.Food, error)
	ClearEmbeddings(ctx context.Context) (int64, error)

	// Stats
	CountMenus(ctx context.Context) (int64, error)
	CountFoods(ctx context.Context) (int64, error)
	CountEmbeddedFoods(ctx context.Context) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

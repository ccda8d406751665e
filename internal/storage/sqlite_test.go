package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hyperjump/wtm/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "db", "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func f64(v float64) *float64 { return &v }

func TestSQLiteStorage_MenuCRUD(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	menu := &models.Menu{OriginalImageURL: "uploads/menu.jpg", OCRText: "Cola: 2000"}
	if err := store.CreateMenu(ctx, menu); err != nil {
		t.Fatal(err)
	}
	if menu.ID == 0 || menu.CreatedAt.IsZero() {
		t.Errorf("ID and CreatedAt should be set: %+v", menu)
	}

	got, err := store.GetMenu(ctx, menu.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.OCRText != "Cola: 2000" || got.OriginalImageURL != "uploads/menu.jpg" {
		t.Errorf("got %+v", got)
	}

	menu.OCRText = "Cola: 2500"
	if err := store.UpdateMenu(ctx, menu); err != nil {
		t.Fatal(err)
	}
	got, _ = store.GetMenu(ctx, menu.ID)
	if got.OCRText != "Cola: 2500" {
		t.Errorf("expected updated text, got %q", got.OCRText)
	}

	second := &models.Menu{OCRText: "second"}
	_ = store.CreateMenu(ctx, second)
	menus, err := store.ListMenus(ctx, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(menus) != 2 || menus[0].ID != second.ID {
		t.Errorf("expected newest first, got %d menus", len(menus))
	}
	n, _ := store.CountMenus(ctx)
	if n != 2 {
		t.Errorf("CountMenus=%d", n)
	}

	if _, err := store.GetMenu(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := store.UpdateMenu(ctx, &models.Menu{ID: 999}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStorage_FoodCRUD(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	food := &models.Food{Name: "김치찌개", Ingredients: "kimchi, pork", Calories: f64(450)}
	if err := store.CreateFood(ctx, food); err != nil {
		t.Fatal(err)
	}
	if food.ID == 0 {
		t.Fatal("ID should be set")
	}

	got, err := store.GetFood(ctx, food.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "김치찌개" || got.Calories == nil || *got.Calories != 450 || got.Protein != nil {
		t.Errorf("got %+v", got)
	}
	if got.MenuID != nil || got.HasEmbedding {
		t.Errorf("catalog-only food should have no menu and no embedding: %+v", got)
	}

	name := "된장찌개"
	(&models.FoodUpdate{Name: &name}).Apply(got)
	if err := store.UpdateFood(ctx, got); err != nil {
		t.Fatal(err)
	}
	got, _ = store.GetFood(ctx, food.ID)
	if got.Name != "된장찌개" || got.Ingredients != "kimchi, pork" {
		t.Errorf("partial update lost fields: %+v", got)
	}

	if err := store.DeleteFood(ctx, food.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetFood(ctx, food.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.DeleteFood(ctx, food.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for second delete, got %v", err)
	}
}

func TestSQLiteStorage_FoodRequiresExistingMenu(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	missing := int64(42)
	err := store.CreateFood(ctx, &models.Food{Name: "Pizza", MenuID: &missing})
	if !errors.Is(err, ErrMenuNotFound) || !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrMenuNotFound, got %v", err)
	}

	food := &models.Food{Name: "Pizza"}
	_ = store.CreateFood(ctx, food)
	food.MenuID = &missing
	if err := store.UpdateFood(ctx, food); !errors.Is(err, ErrMenuNotFound) {
		t.Errorf("expected ErrMenuNotFound on update, got %v", err)
	}
}

func TestSQLiteStorage_DeleteMenuCascades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	menu := &models.Menu{OCRText: "Pizza: 15"}
	_ = store.CreateMenu(ctx, menu)
	_ = store.CreateFood(ctx, &models.Food{Name: "Pizza", MenuID: &menu.ID})
	_ = store.CreateFood(ctx, &models.Food{Name: "Pasta", MenuID: &menu.ID})
	_ = store.CreateFood(ctx, &models.Food{Name: "Cola"})

	foods, err := store.ListFoodsByMenu(ctx, menu.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(foods) != 2 {
		t.Fatalf("expected 2 menu foods, got %d", len(foods))
	}

	if err := store.DeleteMenu(ctx, menu.ID); err != nil {
		t.Fatal(err)
	}
	n, _ := store.CountFoods(ctx)
	if n != 1 {
		t.Errorf("expected only the catalog-only food to remain, got %d", n)
	}
	if err := store.DeleteMenu(ctx, menu.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStorage_Embeddings(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	foods := []*models.Food{{Name: "a"}, {Name: "b"}, {Name: "c"}}
	if err := store.BatchCreateFoods(ctx, foods); err != nil {
		t.Fatal(err)
	}

	missing, err := store.ListFoodsMissingEmbedding(ctx, 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(missing) != 2 || missing[0].ID != foods[0].ID {
		t.Fatalf("unexpected missing page: %d", len(missing))
	}
	rest, _ := store.ListFoodsMissingEmbedding(ctx, missing[1].ID, 2)
	if len(rest) != 1 || rest[0].ID != foods[2].ID {
		t.Fatalf("unexpected second page: %d", len(rest))
	}

	vec := []float32{0.6, -0.8, 0}
	if err := store.SetFoodEmbedding(ctx, foods[1].ID, vec); err != nil {
		t.Fatal(err)
	}
	if err := store.SetFoodEmbedding(ctx, 999, vec); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	embedded, err := store.ListEmbeddedFoods(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(embedded) != 1 || !embedded[0].HasEmbedding {
		t.Fatalf("expected one embedded food, got %d", len(embedded))
	}
	for i := range vec {
		if embedded[0].Embedding[i] != vec[i] {
			t.Fatalf("embedding round trip: got %v, want %v", embedded[0].Embedding, vec)
		}
	}
	n, _ := store.CountEmbeddedFoods(ctx)
	if n != 1 {
		t.Errorf("CountEmbeddedFoods=%d", n)
	}

	// Clearing a stale embedding through UpdateFood.
	got, _ := store.GetFood(ctx, foods[1].ID)
	newName := "bb"
	(&models.FoodUpdate{Name: &newName}).Apply(got)
	if err := store.UpdateFood(ctx, got); err != nil {
		t.Fatal(err)
	}
	n, _ = store.CountEmbeddedFoods(ctx)
	if n != 0 {
		t.Errorf("renamed food should lose its embedding, embedded=%d", n)
	}

	_ = store.SetFoodEmbedding(ctx, foods[0].ID, vec)
	_ = store.SetFoodEmbedding(ctx, foods[2].ID, vec)
	cleared, err := store.ClearEmbeddings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if cleared != 2 {
		t.Errorf("ClearEmbeddings=%d", cleared)
	}
}

func TestSQLiteStorage_BatchCreateIsAtomic(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	missing := int64(7)
	err := store.BatchCreateFoods(ctx, []*models.Food{{Name: "ok"}, {Name: "bad", MenuID: &missing}})
	if !errors.Is(err, ErrMenuNotFound) {
		t.Fatalf("expected ErrMenuNotFound, got %v", err)
	}
	n, _ := store.CountFoods(ctx)
	if n != 0 {
		t.Errorf("failed batch should not insert anything, got %d", n)
	}
}

func TestSQLiteStorage_inMemory(t *testing.T) {
	store, err := NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()
	if err := store.CreateFood(ctx, &models.Food{Name: "x"}); err != nil {
		t.Fatal(err)
	}
	foods, err := store.ListFoods(ctx, 0, 10)
	if err != nil || len(foods) != 1 {
		t.Errorf("got %d foods, err %v", len(foods), err)
	}
	if err := store.Ping(ctx); err != nil {
		t.Error(err)
	}
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/wtm/internal/models"
	"github.com/hyperjump/wtm/internal/vector"
)

// DefaultListLimit is used when a list call passes a non-positive limit.
const DefaultListLimit = 100

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist. ":memory:" opens a private in-memory database.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	inMemory := dbPath == ":memory:"
	if dir := filepath.Dir(dbPath); !inMemory && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite3", dbPath+sep+"_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if inMemory {
		// Every new connection to ":memory:" is a fresh database.
		db.SetMaxOpenConns(1)
	} else {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL: %w", err)
		}
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS menus (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		original_image_url TEXT NOT NULL DEFAULT '',
		ocr_text TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS foods (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		menu_id INTEGER,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		image_url TEXT NOT NULL DEFAULT '',
		ingredients TEXT NOT NULL DEFAULT '',
		embedding BLOB,
		calories REAL,
		protein REAL,
		carbs REAL,
		fat REAL,
		allergens TEXT NOT NULL DEFAULT '',
		translated_name TEXT NOT NULL DEFAULT '',
		translated_description TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (menu_id) REFERENCES menus(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_foods_menu_id ON foods(menu_id);
	CREATE INDEX IF NOT EXISTS idx_foods_name ON foods(name);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateMenu inserts a menu and sets its ID and CreatedAt.
func (s *SQLiteStorage) CreateMenu(ctx context.Context, menu *models.Menu) error {
	menu.CreatedAt = time.Now()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO menus (original_image_url, ocr_text, created_at) VALUES (?, ?, ?)`,
		menu.OriginalImageURL, menu.OCRText, menu.CreatedAt,
	)
	if err != nil {
		return err
	}
	menu.ID, err = result.LastInsertId()
	return err
}

// GetMenu returns a menu by ID.
func (s *SQLiteStorage) GetMenu(ctx context.Context, id int64) (*models.Menu, error) {
	var menu models.Menu
	err := s.db.QueryRowContext(ctx,
		`SELECT id, original_image_url, ocr_text, created_at FROM menus WHERE id = ?`, id,
	).Scan(&menu.ID, &menu.OriginalImageURL, &menu.OCRText, &menu.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: menu %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &menu, nil
}

// UpdateMenu updates an existing menu.
func (s *SQLiteStorage) UpdateMenu(ctx context.Context, menu *models.Menu) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE menus SET original_image_url = ?, ocr_text = ? WHERE id = ?`,
		menu.OriginalImageURL, menu.OCRText, menu.ID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: menu %d", ErrNotFound, menu.ID)
	}
	return nil
}

// DeleteMenu removes a menu and its foods.
func (s *SQLiteStorage) DeleteMenu(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM foods WHERE menu_id = ?`, id); err != nil {
		return err
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM menus WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: menu %d", ErrNotFound, id)
	}
	return tx.Commit()
}

// ListMenus returns menus newest first with offset and limit.
func (s *SQLiteStorage) ListMenus(ctx context.Context, offset, limit int) ([]*models.Menu, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, original_image_url, ocr_text, created_at
		 FROM menus ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	menus := []*models.Menu{}
	for rows.Next() {
		var menu models.Menu
		if err := rows.Scan(&menu.ID, &menu.OriginalImageURL, &menu.OCRText, &menu.CreatedAt); err != nil {
			return nil, err
		}
		menus = append(menus, &menu)
	}
	return menus, rows.Err()
}

const foodColumns = `id, menu_id, name, description, image_url, ingredients, embedding,
	calories, protein, carbs, fat, allergens, translated_name, translated_description,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFood(row rowScanner) (*models.Food, error) {
	var f models.Food
	var menuID sql.NullInt64
	var calories, protein, carbs, fat sql.NullFloat64
	var blob []byte
	if err := row.Scan(&f.ID, &menuID, &f.Name, &f.Description, &f.ImageURL, &f.Ingredients, &blob,
		&calories, &protein, &carbs, &fat, &f.Allergens, &f.TranslatedName, &f.TranslatedDescription,
		&f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	if menuID.Valid {
		f.MenuID = &menuID.Int64
	}
	f.Calories = nullFloat(calories)
	f.Protein = nullFloat(protein)
	f.Carbs = nullFloat(carbs)
	f.Fat = nullFloat(fat)
	if len(blob) > 0 {
		f.Embedding = DecodeEmbedding(blob)
		f.HasEmbedding = true
	}
	return &f, nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}

func foodArgs(f *models.Food) []any {
	var menuID any
	if f.MenuID != nil {
		menuID = *f.MenuID
	}
	return []any{menuID, f.Name, f.Description, f.ImageURL, f.Ingredients, EncodeEmbedding(f.Embedding),
		floatArg(f.Calories), floatArg(f.Protein), floatArg(f.Carbs), floatArg(f.Fat),
		f.Allergens, f.TranslatedName, f.TranslatedDescription}
}

func floatArg(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func insertFood(ctx context.Context, db execer, f *models.Food) error {
	if f.MenuID != nil {
		var exists int
		err := db.QueryRowContext(ctx, `SELECT 1 FROM menus WHERE id = ?`, *f.MenuID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %d", ErrMenuNotFound, *f.MenuID)
		}
		if err != nil {
			return err
		}
	}
	now := time.Now()
	f.CreatedAt = now
	f.UpdatedAt = now
	args := append(foodArgs(f), f.CreatedAt, f.UpdatedAt)
	result, err := db.ExecContext(ctx,
		`INSERT INTO foods (menu_id, name, description, image_url, ingredients, embedding,
			calories, protein, carbs, fat, allergens, translated_name, translated_description,
			created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args...,
	)
	if err != nil {
		return err
	}
	f.ID, err = result.LastInsertId()
	f.HasEmbedding = len(f.Embedding) > 0
	return err
}

// CreateFood inserts a food and sets its ID and timestamps.
// A non-nil MenuID must reference an existing menu.
func (s *SQLiteStorage) CreateFood(ctx context.Context, food *models.Food) error {
	return insertFood(ctx, s.db, food)
}

// BatchCreateFoods inserts multiple foods in a transaction.
func (s *SQLiteStorage) BatchCreateFoods(ctx context.Context, foods []*models.Food) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, f := range foods {
		if err := insertFood(ctx, tx, f); err != nil {
			return fmt.Errorf("food %q: %w", f.Name, err)
		}
	}
	return tx.Commit()
}

// GetFood returns a food by ID, including its embedding when present.
func (s *SQLiteStorage) GetFood(ctx context.Context, id int64) (*models.Food, error) {
	f, err := scanFood(s.db.QueryRowContext(ctx, `SELECT `+foodColumns+` FROM foods WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: food %d", ErrNotFound, id)
	}
	return f, err
}

// UpdateFood writes every column of food, including its embedding (nil clears it).
func (s *SQLiteStorage) UpdateFood(ctx context.Context, food *models.Food) error {
	if food.MenuID != nil {
		if _, err := s.GetMenu(ctx, *food.MenuID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("%w: %d", ErrMenuNotFound, *food.MenuID)
			}
			return err
		}
	}
	food.UpdatedAt = time.Now()
	args := append(foodArgs(food), food.UpdatedAt, food.ID)
	result, err := s.db.ExecContext(ctx,
		`UPDATE foods SET menu_id = ?, name = ?, description = ?, image_url = ?, ingredients = ?,
			embedding = ?, calories = ?, protein = ?, carbs = ?, fat = ?, allergens = ?,
			translated_name = ?, translated_description = ?, updated_at = ?
		 WHERE id = ?`,
		args...,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: food %d", ErrNotFound, food.ID)
	}
	food.HasEmbedding = len(food.Embedding) > 0
	return nil
}

// DeleteFood removes a food by ID.
func (s *SQLiteStorage) DeleteFood(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM foods WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: food %d", ErrNotFound, id)
	}
	return nil
}

func (s *SQLiteStorage) queryFoods(ctx context.Context, query string, args ...any) ([]*models.Food, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	foods := []*models.Food{}
	for rows.Next() {
		f, err := scanFood(rows)
		if err != nil {
			return nil, err
		}
		foods = append(foods, f)
	}
	return foods, rows.Err()
}

// ListFoods returns foods ordered by ID with offset and limit.
func (s *SQLiteStorage) ListFoods(ctx context.Context, offset, limit int) ([]*models.Food, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return s.queryFoods(ctx, `SELECT `+foodColumns+` FROM foods ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
}

// ListFoodsByMenu returns the foods attached to a menu, ordered by ID.
func (s *SQLiteStorage) ListFoodsByMenu(ctx context.Context, menuID int64) ([]*models.Food, error) {
	return s.queryFoods(ctx, `SELECT `+foodColumns+` FROM foods WHERE menu_id = ? ORDER BY id`, menuID)
}

// SetFoodEmbedding stores the embedding of one food.
func (s *SQLiteStorage) SetFoodEmbedding(ctx context.Context, id int64, embedding []float32) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE foods SET embedding = ?, updated_at = ? WHERE id = ?`,
		EncodeEmbedding(embedding), time.Now(), id,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: food %d", ErrNotFound, id)
	}
	return nil
}

// ListEmbeddedFoods returns every food that has an embedding, ordered by ID.
func (s *SQLiteStorage) ListEmbeddedFoods(ctx context.Context) ([]*models.Food, error) {
	return s.queryFoods(ctx, `SELECT `+foodColumns+` FROM foods WHERE embedding IS NOT NULL ORDER BY id`)
}

// ListFoodsMissingEmbedding returns up to limit foods without an embedding whose
// ID is greater than afterID, ordered by ID.
func (s *SQLiteStorage) ListFoodsMissingEmbedding(ctx context.Context, afterID int64, limit int) ([]*models.Food, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return s.queryFoods(ctx,
		`SELECT `+foodColumns+` FROM foods WHERE embedding IS NULL AND id > ? ORDER BY id LIMIT ?`,
		afterID, limit)
}

// ClearEmbeddings drops every stored embedding and returns how many were cleared.
func (s *SQLiteStorage) ClearEmbeddings(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE foods SET embedding = NULL WHERE embedding IS NOT NULL`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// CountMenus returns the total number of menus.
func (s *SQLiteStorage) CountMenus(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM menus`).Scan(&count)
	return count, err
}

// CountFoods returns the total number of foods.
func (s *SQLiteStorage) CountFoods(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM foods`).Scan(&count)
	return count, err
}

// CountEmbeddedFoods returns the number of foods with an embedding.
func (s *SQLiteStorage) CountEmbeddedFoods(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM foods WHERE embedding IS NOT NULL`).Scan(&count)
	return count, err
}

// Ping checks that the database is reachable.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// EncodeEmbedding returns the BLOB form of v, or nil for an absent embedding.
func EncodeEmbedding(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	return vector.Float32SliceToBytes(v)
}

// DecodeEmbedding parses a BLOB written by EncodeEmbedding.
func DecodeEmbedding(b []byte) []float32 {
	return vector.BytesToFloat32Slice(b)
}

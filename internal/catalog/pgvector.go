package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"regexp"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/hyperjump/wtm/internal/models"
	"github.com/hyperjump/wtm/internal/storage"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// PgvectorCatalog runs searches inside PostgreSQL with the pgvector extension.
// The scan is exact: the dimension guard in the query keeps approximate
// indexes on the embedding column from being used.
type PgvectorCatalog struct {
	db     *sqlx.DB
	dims   int
	table  string
	source storage.Storage
	logger *zap.Logger
}

type pgCandidateRow struct {
	ID          int64          `db:"id"`
	Name        string         `db:"name"`
	Description sql.NullString `db:"description"`
	Ingredients sql.NullString `db:"ingredients"`
	Similarity  float64        `db:"similarity"`
}

// OpenPgvectorCatalog connects to dsn through the pgx driver. When a mirror
// source is configured the table and extension are created if missing.
func OpenPgvectorCatalog(ctx context.Context, dsn string, dims int, opts ...Option) (*PgvectorCatalog, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}
	c, err := NewPgvectorCatalog(db, dims, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if c.source != nil {
		if err := c.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return c, nil
}

// NewPgvectorCatalog wraps an open database handle.
func NewPgvectorCatalog(db *sqlx.DB, dims int, opts ...Option) (*PgvectorCatalog, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	o := applyOptions(opts)
	if !tableName.MatchString(o.table) {
		return nil, fmt.Errorf("invalid table name: %q", o.table)
	}
	return &PgvectorCatalog{db: db, dims: dims, table: o.table, source: o.source, logger: o.logger}, nil
}

// EnsureSchema creates the pgvector extension and the mirror table.
func (c *PgvectorCatalog) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGINT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			ingredients TEXT,
			embedding vector(%d)
		)`, c.table, c.dims),
	}
	for _, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: ensure schema: %w", ErrCatalogUnavailable, err)
		}
	}
	return nil
}

func (c *PgvectorCatalog) searchQuery() string {
	return fmt.Sprintf(`SELECT id, name, description, ingredients, similarity FROM (
		SELECT id, name, description, ingredients,
			CASE WHEN vector_dims(embedding) = $2 THEN 1 - (embedding <=> $1) END AS similarity
		FROM %s
		WHERE embedding IS NOT NULL AND vector_norm(embedding) > 0
	) AS scored
	WHERE similarity >= $3
	ORDER BY similarity DESC, id ASC
	LIMIT $4`, c.table)
}

// Search implements Index.
func (c *PgvectorCatalog) Search(ctx context.Context, query []float32, topK int, minSimilarity float64) ([]models.MatchCandidate, error) {
	if err := validateQuery(query, c.dims); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []models.MatchCandidate{}, nil
	}

	var rows []pgCandidateRow
	err := c.db.SelectContext(ctx, &rows, c.searchQuery(),
		pgvector.NewVector(query), c.dims, minSimilarity, topK)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}

	out := make([]models.MatchCandidate, 0, len(rows))
	for _, r := range rows {
		// zero-magnitude rows have no direction and never match
		if math.IsNaN(r.Similarity) {
			continue
		}
		out = append(out, models.MatchCandidate{
			Food: &models.Food{
				ID:           r.ID,
				Name:         r.Name,
				Description:  r.Description.String,
				Ingredients:  r.Ingredients.String,
				HasEmbedding: true,
			},
			Similarity: clampSimilarity(r.Similarity),
		})
	}
	return out, nil
}

// Refresh copies every embedded food from the mirror source into the table and
// removes rows that no longer have an embedding. Without a source it is a no-op.
func (c *PgvectorCatalog) Refresh(ctx context.Context) error {
	if c.source == nil {
		return nil
	}
	foods, err := c.source.ListEmbeddedFoods(ctx)
	if err != nil {
		return fmt.Errorf("list embedded foods: %w", err)
	}

	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}
	defer tx.Rollback()

	upsert := fmt.Sprintf(`INSERT INTO %s (id, name, description, ingredients, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description,
			ingredients = EXCLUDED.ingredients, embedding = EXCLUDED.embedding`, c.table)
	keep := make([]int64, 0, len(foods))
	for _, f := range foods {
		if len(f.Embedding) != c.dims {
			continue
		}
		if _, err := tx.ExecContext(ctx, upsert, f.ID, f.Name, f.Description, f.Ingredients, pgvector.NewVector(f.Embedding)); err != nil {
			return fmt.Errorf("%w: upsert food %d: %w", ErrCatalogUnavailable, f.ID, err)
		}
		keep = append(keep, f.ID)
	}

	if len(keep) == 0 {
		_, err = tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, c.table))
	} else {
		var q string
		var args []any
		q, args, err = sqlx.In(fmt.Sprintf(`DELETE FROM %s WHERE id NOT IN (?)`, c.table), keep)
		if err == nil {
			_, err = tx.ExecContext(ctx, tx.Rebind(q), args...)
		}
	}
	if err != nil {
		return fmt.Errorf("%w: prune: %w", ErrCatalogUnavailable, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}
	c.logger.Info("pgvector catalog mirrored", zap.Int("foods", len(keep)))
	return nil
}

// Dimensions returns the embedding length the catalog accepts.
func (c *PgvectorCatalog) Dimensions() int {
	return c.dims
}

// Stats implements StatsReporter.
func (c *PgvectorCatalog) Stats(ctx context.Context) (Stats, error) {
	var n int
	q := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE embedding IS NOT NULL AND vector_dims(embedding) = $1`, c.table)
	if err := c.db.GetContext(ctx, &n, q, c.dims); err != nil {
		return Stats{}, fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}
	return Stats{Backend: "pgvector", Dimensions: c.dims, Size: n}, nil
}

// Close closes the database handle.
func (c *PgvectorCatalog) Close() error {
	return c.db.Close()
}

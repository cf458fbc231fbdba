// Package postgres provides the Postgres-backed catalog store.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropradar/catalog-crawler/internal/catalog"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// DB is the pool surface the store needs; pgxpool.Pool and pgxmock both
// satisfy it.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// Store persists products, sizes, and their junction rows in Postgres.
// UpsertProduct is called from a single goroutine per run, so the size ID
// cache needs no locking.
type Store struct {
	db        DB
	sizeCache map[string]int64
}

// New connects a pool and returns the store.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewWithDB(pool)
}

// NewWithDB constructs a store from an existing pool (primarily for testing).
func NewWithDB(db DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	return &Store{db: db, sizeCache: make(map[string]int64)}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id            BIGSERIAL PRIMARY KEY,
	url           TEXT NOT NULL UNIQUE,
	name          TEXT NOT NULL,
	brand         TEXT NOT NULL,
	gender        TEXT NOT NULL,
	is_genderless BOOLEAN NOT NULL DEFAULT FALSE,
	category_path TEXT[] NOT NULL DEFAULT '{}',
	regular       DOUBLE PRECISION NOT NULL,
	lowest        DOUBLE PRECISION NOT NULL,
	discount      INTEGER NOT NULL DEFAULT 0,
	description   TEXT NOT NULL DEFAULT '',
	images        TEXT[] NOT NULL DEFAULT '{}',
	product_code  TEXT NOT NULL DEFAULT '',
	color         TEXT NOT NULL DEFAULT '',
	composition   TEXT NOT NULL DEFAULT '',
	country       TEXT NOT NULL DEFAULT '',
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS sizes (
	id   BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS product_sizes (
	product_id BIGINT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
	size_id    BIGINT NOT NULL REFERENCES sizes(id),
	ordinal    INTEGER NOT NULL,
	PRIMARY KEY (product_id, size_id)
);`

// Init creates the schema if it does not exist.
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

const upsertProductSQL = `
INSERT INTO products (
	url, name, brand, gender, is_genderless, category_path,
	regular, lowest, discount, description, images,
	product_code, color, composition, country, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,now())
ON CONFLICT (url) DO UPDATE SET
	name = EXCLUDED.name,
	brand = EXCLUDED.brand,
	gender = EXCLUDED.gender,
	is_genderless = EXCLUDED.is_genderless,
	category_path = EXCLUDED.category_path,
	regular = EXCLUDED.regular,
	lowest = EXCLUDED.lowest,
	discount = EXCLUDED.discount,
	description = EXCLUDED.description,
	images = EXCLUDED.images,
	product_code = EXCLUDED.product_code,
	color = EXCLUDED.color,
	composition = EXCLUDED.composition,
	country = EXCLUDED.country,
	updated_at = now()
RETURNING id`

const upsertSizeSQL = `
INSERT INTO sizes (name) VALUES ($1)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING id`

// UpsertProduct writes the product and rewrites its size junction rows in
// one transaction.
func (s *Store) UpsertProduct(ctx context.Context, p catalog.Product) error {
	if p.URL == "" {
		return fmt.Errorf("product url is required")
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var productID int64
	err = tx.QueryRow(ctx, upsertProductSQL,
		p.URL, p.Name, p.Brand, p.Gender, p.IsGenderless, p.CategoryPath,
		p.Regular, p.Lowest, p.Discount, p.Description, p.Images,
		p.ProductCode, p.Color, p.Composition, p.Country,
	).Scan(&productID)
	if err != nil {
		return fmt.Errorf("upsert product %s: %w", p.URL, err)
	}

	// Size IDs minted in this transaction are staged locally and only
	// promoted to the cache after commit. A cached ID from a rolled-back
	// transaction would point at a row that never existed.
	staged := make(map[string]int64)
	sizeIDs := make([]int64, len(p.Sizes))
	for i, size := range p.Sizes {
		id, ok := s.sizeCache[size]
		if !ok {
			if id, ok = staged[size]; !ok {
				if err := tx.QueryRow(ctx, upsertSizeSQL, size).Scan(&id); err != nil {
					return fmt.Errorf("upsert size %q: %w", size, err)
				}
				staged[size] = id
			}
		}
		sizeIDs[i] = id
	}

	if _, err := tx.Exec(ctx, `DELETE FROM product_sizes WHERE product_id = $1`, productID); err != nil {
		return fmt.Errorf("clear sizes for %s: %w", p.URL, err)
	}
	for i, sizeID := range sizeIDs {
		_, err := tx.Exec(ctx,
			`INSERT INTO product_sizes (product_id, size_id, ordinal) VALUES ($1,$2,$3)`,
			productID, sizeID, i)
		if err != nil {
			return fmt.Errorf("link size for %s: %w", p.URL, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit %s: %w", p.URL, err)
	}
	for size, id := range staged {
		s.sizeCache[size] = id
	}
	return nil
}

// URLSet returns every stored product URL sorted ascending.
func (s *Store) URLSet(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT url FROM products ORDER BY url`)
	if err != nil {
		return nil, fmt.Errorf("query urls: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("scan url: %w", err)
		}
		urls = append(urls, url)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate urls: %w", err)
	}
	return urls, nil
}

// Retire deletes the products for the given URLs; junction rows go with
// them via the cascade.
func (s *Store) Retire(ctx context.Context, urls []string) error {
	if len(urls) == 0 {
		return nil
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM products WHERE url = ANY($1)`, urls); err != nil {
		return fmt.Errorf("retire products: %w", err)
	}
	return nil
}

const selectProductsSQL = `
SELECT
	p.url, p.name, p.brand, p.gender, p.is_genderless, p.category_path,
	p.regular, p.lowest, p.discount, p.description, p.images,
	p.product_code, p.color, p.composition, p.country,
	COALESCE(array_agg(s.name ORDER BY ps.ordinal) FILTER (WHERE s.name IS NOT NULL), '{}')
FROM products p
LEFT JOIN product_sizes ps ON ps.product_id = p.id
LEFT JOIN sizes s ON s.id = ps.size_id
GROUP BY p.id
ORDER BY p.url`

// Products returns every stored product sorted by URL.
func (s *Store) Products(ctx context.Context) ([]catalog.Product, error) {
	rows, err := s.db.Query(ctx, selectProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var products []catalog.Product
	for rows.Next() {
		var p catalog.Product
		err := rows.Scan(
			&p.URL, &p.Name, &p.Brand, &p.Gender, &p.IsGenderless, &p.CategoryPath,
			&p.Regular, &p.Lowest, &p.Discount, &p.Description, &p.Images,
			&p.ProductCode, &p.Color, &p.Composition, &p.Country, &p.Sizes,
		)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		if len(p.Sizes) == 0 {
			p.Sizes = nil
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}

// Close releases the pool.
func (s *Store) Close() {
	if s == nil || s.db == nil {
		return
	}
	s.db.Close()
}

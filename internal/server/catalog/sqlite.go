package catalog

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/fjod/go_cart/cartsync/internal/domain"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLite is a catalog backed by a products table.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(dbPath string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &SQLite{db: db}, nil
}

// RunMigrations applies the embedded schema and seed migrations.
func (s *SQLite) RunMigrations() error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("could not open migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

func (s *SQLite) Lookup(ctx context.Context, productID int64) (domain.ProductSummary, error) {
	const query = `
		SELECT id, name, price, image_url
		FROM products
		WHERE id = ?
	`

	var p domain.ProductSummary
	err := s.db.QueryRowContext(ctx, query, productID).Scan(&p.ID, &p.Name, &p.Price, &p.ImageURL)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ProductSummary{}, ErrProductNotFound
	}
	if err != nil {
		return domain.ProductSummary{}, fmt.Errorf("failed to query product: %w", err)
	}
	return p, nil
}

func (s *SQLite) List(ctx context.Context) ([]domain.ProductSummary, error) {
	const query = `
		SELECT id, name, price, image_url
		FROM products
		ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []domain.ProductSummary
	for rows.Next() {
		var p domain.ProductSummary
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.ImageURL); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return products, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

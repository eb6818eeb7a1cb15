package db

import (
	"context"
	"errors"
	"fmt"

	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/retrotrack/backend/internal/models"
)

type PostgresStore struct {
	Pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{Pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.Pool.Close()
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

// Migrator exposes the embedded Postgres migrations over a database/sql
// handle borrowed from the pool. The driver pins one pool connection until
// the migrator is closed, and the pool cannot close while it is held.
func (s *PostgresStore) Migrator() (*Migrator, error) {
	sqlDB := stdlib.OpenDBFromPool(s.Pool)
	driver, err := migratepgx.WithInstance(sqlDB, &migratepgx.Config{})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to create pgx migrate driver: %w", err)
	}
	mg, err := newMigrator("migrations/postgres", "pgx5", driver, true)
	if err != nil {
		_ = driver.Close()
		return nil, err
	}
	return mg, nil
}

func (s *PostgresStore) Migrate() (err error) {
	mg, err := s.Migrator()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := mg.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close migrator: %w", cerr)
		}
	}()
	return mg.Up()
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) CreateDataset(ctx context.Context, ds models.Dataset, routes []models.InefficientRoute) (int, error) {
	var inserted int
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO datasets (id, user_id, filename, size_bytes, uploaded_at, parsed_data)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, ds.ID, ds.UserID, ds.Filename, ds.SizeBytes, ds.UploadedAt, []byte(ds.ParsedData))
		if err != nil {
			return fmt.Errorf("insert dataset: %w", err)
		}
		inserted, err = insertRoutesTx(ctx, tx, ds.ID, routes)
		return err
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func (s *PostgresStore) GetDataset(ctx context.Context, id string) (models.Dataset, error) {
	var ds models.Dataset
	var blob []byte
	err := s.Pool.QueryRow(ctx, `
		SELECT id::text, user_id, filename, size_bytes, uploaded_at, parsed_data
		FROM datasets WHERE id = $1
	`, id).Scan(&ds.ID, &ds.UserID, &ds.Filename, &ds.SizeBytes, &ds.UploadedAt, &blob)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Dataset{}, ErrNotFound
	}
	if err != nil {
		return models.Dataset{}, err
	}
	ds.ParsedData = blob
	return ds, nil
}

func (s *PostgresStore) ListDatasets(ctx context.Context, userID string) ([]models.Dataset, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id::text, user_id, filename, size_bytes, uploaded_at
		FROM datasets WHERE user_id = $1
		ORDER BY uploaded_at DESC, id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Dataset{}
	for rows.Next() {
		var ds models.Dataset
		if err := rows.Scan(&ds.ID, &ds.UserID, &ds.Filename, &ds.SizeBytes, &ds.UploadedAt); err != nil {
			return nil, err
		}
		out = append(out, ds)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteDataset(ctx context.Context, id string) (int64, error) {
	var removed int64
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM inefficient_routes WHERE dataset_id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete routes: %w", err)
		}
		removed = tag.RowsAffected()
		tag, err = tx.Exec(ctx, `DELETE FROM datasets WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete dataset: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *PostgresStore) UpsertRoutes(ctx context.Context, datasetID string, routes []models.InefficientRoute) (int, error) {
	var inserted int
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		inserted, err = insertRoutesTx(ctx, tx, datasetID, routes)
		return err
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// insertRoutesTx queues one skip-if-exists insert per route and returns how
// many rows were actually created.
func insertRoutesTx(ctx context.Context, tx pgx.Tx, datasetID string, routes []models.InefficientRoute) (int, error) {
	if len(routes) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, r := range routes {
		batch.Queue(`
			INSERT INTO inefficient_routes (
				dataset_id, base_address, shipping_address, starting_time,
				expected_delivery_time, actual_delivery_time,
				expected_cost, actual_cost, max_cost_per_hour
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			ON CONFLICT (dataset_id, base_address, starting_time) DO NOTHING
		`, datasetID, r.BaseAddress, r.ShippingAddress, r.StartingTime,
			r.ExpectedDeliveryTime, r.ActualDeliveryTime,
			r.ExpectedCost, r.ActualCost, r.MaxCostPerHour)
	}
	br := tx.SendBatch(ctx, batch)
	inserted := 0
	for range routes {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return 0, fmt.Errorf("insert route: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, br.Close()
}

func (s *PostgresStore) ListRoutes(ctx context.Context, datasetID string) ([]models.InefficientRoute, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, dataset_id::text, base_address, shipping_address, starting_time,
			expected_delivery_time, actual_delivery_time,
			expected_cost, actual_cost, max_cost_per_hour,
			optimized_delivery_hours, time_saved_hours, created_at
		FROM inefficient_routes
		WHERE dataset_id = $1
		ORDER BY id
	`, datasetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.InefficientRoute{}
	for rows.Next() {
		var r models.InefficientRoute
		if err := rows.Scan(
			&r.ID, &r.DatasetID, &r.BaseAddress, &r.ShippingAddress, &r.StartingTime,
			&r.ExpectedDeliveryTime, &r.ActualDeliveryTime,
			&r.ExpectedCost, &r.ActualCost, &r.MaxCostPerHour,
			&r.OptimizedDeliveryHours, &r.TimeSavedHours, &r.CreatedAt,
		); err != nil {
			return nil, err
		}
		r.StartingTime = r.StartingTime.UTC()
		r.ExpectedDeliveryTime = r.ExpectedDeliveryTime.UTC()
		r.ActualDeliveryTime = r.ActualDeliveryTime.UTC()
		r.CreatedAt = r.CreatedAt.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteRoutes(ctx context.Context, datasetID string) (int64, error) {
	var removed int64
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM inefficient_routes WHERE dataset_id = $1`, datasetID)
		removed = tag.RowsAffected()
		return err
	})
	return removed, err
}

// SaveOptimizations writes every update in one transaction. Rows that
// already carry an optimized time are left untouched.
func (s *PostgresStore) SaveOptimizations(ctx context.Context, updates []models.OptimizationUpdate) (int, error) {
	if len(updates) == 0 {
		return 0, nil
	}
	var saved int
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, u := range updates {
			batch.Queue(`
				UPDATE inefficient_routes
				SET optimized_delivery_hours = $2, time_saved_hours = $3
				WHERE id = $1 AND optimized_delivery_hours IS NULL
			`, u.RouteID, u.OptimizedDeliveryHours, u.TimeSavedHours)
		}
		br := tx.SendBatch(ctx, batch)
		for range updates {
			tag, err := br.Exec()
			if err != nil {
				_ = br.Close()
				return fmt.Errorf("save optimization: %w", err)
			}
			saved += int(tag.RowsAffected())
		}
		return br.Close()
	})
	if err != nil {
		return 0, err
	}
	return saved, nil
}

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "modernc.org/sqlite"

	"github.com/retrotrack/backend/internal/models"
)

// sqliteTime keeps a fixed width so stored timestamps compare and sort as text.
const sqliteTime = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore is the single-file backend used for local runs and tests.
type SQLiteStore struct {
	DB *sql.DB
}

func NewSQLite(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer at a time
	db.SetMaxOpenConns(1)
	return &SQLiteStore{DB: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.DB.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

func (s *SQLiteStore) Migrator() (*Migrator, error) {
	driver, err := sqlite.WithInstance(s.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite migrate driver: %w", err)
	}
	// the driver wraps s.DB itself, so closing it would close the store
	return newMigrator("migrations/sqlite", "sqlite", driver, false)
}

func (s *SQLiteStore) Migrate() (err error) {
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

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) CreateDataset(ctx context.Context, ds models.Dataset, routes []models.InefficientRoute) (int, error) {
	var inserted int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO datasets (id, user_id, filename, size_bytes, uploaded_at, parsed_data)
			VALUES (?, ?, ?, ?, ?, ?)
		`, ds.ID, ds.UserID, ds.Filename, ds.SizeBytes, formatTime(ds.UploadedAt), []byte(ds.ParsedData))
		if err != nil {
			return fmt.Errorf("insert dataset: %w", err)
		}
		inserted, err = s.insertRoutesTx(ctx, tx, ds.ID, routes)
		return err
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func (s *SQLiteStore) GetDataset(ctx context.Context, id string) (models.Dataset, error) {
	var (
		ds       models.Dataset
		uploaded string
		blob     []byte
	)
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, user_id, filename, size_bytes, uploaded_at, parsed_data
		FROM datasets WHERE id = ?
	`, id).Scan(&ds.ID, &ds.UserID, &ds.Filename, &ds.SizeBytes, &uploaded, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Dataset{}, ErrNotFound
	}
	if err != nil {
		return models.Dataset{}, err
	}
	if ds.UploadedAt, err = parseTime(uploaded); err != nil {
		return models.Dataset{}, err
	}
	ds.ParsedData = blob
	return ds, nil
}

func (s *SQLiteStore) ListDatasets(ctx context.Context, userID string) ([]models.Dataset, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, user_id, filename, size_bytes, uploaded_at
		FROM datasets WHERE user_id = ?
		ORDER BY uploaded_at DESC, id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Dataset{}
	for rows.Next() {
		var (
			ds       models.Dataset
			uploaded string
		)
		if err := rows.Scan(&ds.ID, &ds.UserID, &ds.Filename, &ds.SizeBytes, &uploaded); err != nil {
			return nil, err
		}
		if ds.UploadedAt, err = parseTime(uploaded); err != nil {
			return nil, err
		}
		out = append(out, ds)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteDataset(ctx context.Context, id string) (int64, error) {
	var removed int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM inefficient_routes WHERE dataset_id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete routes: %w", err)
		}
		removed, _ = res.RowsAffected()
		res, err = tx.ExecContext(ctx, `DELETE FROM datasets WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete dataset: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *SQLiteStore) UpsertRoutes(ctx context.Context, datasetID string, routes []models.InefficientRoute) (int, error) {
	var inserted int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		inserted, err = s.insertRoutesTx(ctx, tx, datasetID, routes)
		return err
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func (s *SQLiteStore) insertRoutesTx(ctx context.Context, tx *sql.Tx, datasetID string, routes []models.InefficientRoute) (int, error) {
	if len(routes) == 0 {
		return 0, nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO inefficient_routes (
			dataset_id, base_address, shipping_address, starting_time,
			expected_delivery_time, actual_delivery_time,
			expected_cost, actual_cost, max_cost_per_hour, created_at
		) VALUES (?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT (dataset_id, base_address, starting_time) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare route insert: %w", err)
	}
	defer stmt.Close()

	now := formatTime(time.Now())
	inserted := 0
	for _, r := range routes {
		res, err := stmt.ExecContext(ctx, datasetID, r.BaseAddress, r.ShippingAddress, formatTime(r.StartingTime),
			formatTime(r.ExpectedDeliveryTime), formatTime(r.ActualDeliveryTime),
			r.ExpectedCost, r.ActualCost, r.MaxCostPerHour, now)
		if err != nil {
			return 0, fmt.Errorf("insert route: %w", err)
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}
	return inserted, nil
}

func (s *SQLiteStore) ListRoutes(ctx context.Context, datasetID string) ([]models.InefficientRoute, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, dataset_id, base_address, shipping_address, starting_time,
			expected_delivery_time, actual_delivery_time,
			expected_cost, actual_cost, max_cost_per_hour,
			optimized_delivery_hours, time_saved_hours, created_at
		FROM inefficient_routes
		WHERE dataset_id = ?
		ORDER BY id
	`, datasetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.InefficientRoute{}
	for rows.Next() {
		var (
			r                       models.InefficientRoute
			start, expected, actual string
			created                 string
			optimized, saved        sql.NullFloat64
		)
		if err := rows.Scan(
			&r.ID, &r.DatasetID, &r.BaseAddress, &r.ShippingAddress, &start,
			&expected, &actual,
			&r.ExpectedCost, &r.ActualCost, &r.MaxCostPerHour,
			&optimized, &saved, &created,
		); err != nil {
			return nil, err
		}
		for _, f := range []struct {
			dst *time.Time
			raw string
		}{{&r.StartingTime, start}, {&r.ExpectedDeliveryTime, expected}, {&r.ActualDeliveryTime, actual}, {&r.CreatedAt, created}} {
			if *f.dst, err = parseTime(f.raw); err != nil {
				return nil, err
			}
		}
		if optimized.Valid {
			v := optimized.Float64
			r.OptimizedDeliveryHours = &v
		}
		if saved.Valid {
			v := saved.Float64
			r.TimeSavedHours = &v
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteRoutes(ctx context.Context, datasetID string) (int64, error) {
	var removed int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM inefficient_routes WHERE dataset_id = ?`, datasetID)
		if err != nil {
			return err
		}
		removed, _ = res.RowsAffected()
		return nil
	})
	return removed, err
}

func (s *SQLiteStore) SaveOptimizations(ctx context.Context, updates []models.OptimizationUpdate) (int, error) {
	if len(updates) == 0 {
		return 0, nil
	}
	var saved int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, u := range updates {
			res, err := tx.ExecContext(ctx, `
				UPDATE inefficient_routes
				SET optimized_delivery_hours = ?, time_saved_hours = ?
				WHERE id = ? AND optimized_delivery_hours IS NULL
			`, u.OptimizedDeliveryHours, u.TimeSavedHours, u.RouteID)
			if err != nil {
				return fmt.Errorf("save optimization: %w", err)
			}
			n, _ := res.RowsAffected()
			saved += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return saved, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTime)
}

func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(sqliteTime, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", raw, err)
	}
	return t, nil
}

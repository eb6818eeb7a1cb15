// Package db is the persistence boundary for datasets and inefficient routes.
package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/retrotrack/backend/internal/models"
)

var ErrNotFound = errors.New("not found")

// Repository is implemented by PostgresStore and SQLiteStore.
//
// Route creation is skip-if-exists on (dataset_id, base_address,
// starting_time); enrichment is update-if-absent. Neither ever overwrites a
// stored optimized time.
type Repository interface {
	Ping(ctx context.Context) error
	Close() error

	// CreateDataset stores the dataset and its routes in one transaction and
	// returns the number of routes inserted.
	CreateDataset(ctx context.Context, ds models.Dataset, routes []models.InefficientRoute) (int, error)
	GetDataset(ctx context.Context, id string) (models.Dataset, error)
	// ListDatasets returns metadata only; ParsedData is left empty.
	ListDatasets(ctx context.Context, userID string) ([]models.Dataset, error)
	// DeleteDataset removes the routes and then the dataset atomically.
	DeleteDataset(ctx context.Context, id string) (int64, error)

	UpsertRoutes(ctx context.Context, datasetID string, routes []models.InefficientRoute) (int, error)
	ListRoutes(ctx context.Context, datasetID string) ([]models.InefficientRoute, error)
	DeleteRoutes(ctx context.Context, datasetID string) (int64, error)
	SaveOptimizations(ctx context.Context, updates []models.OptimizationUpdate) (int, error)
}

// Open picks the backend named by driver ("postgres" or "sqlite") and brings
// its schema up to date.
func Open(ctx context.Context, driver, dsn string) (Repository, error) {
	switch driver {
	case "postgres", "":
		s, err := NewPostgres(ctx, dsn)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	case "sqlite":
		s, err := NewSQLite(dsn)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown db driver %q", driver)
	}
}

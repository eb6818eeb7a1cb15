package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/retrotrack/backend/internal/db"
	"github.com/retrotrack/backend/internal/ingest"
	"github.com/retrotrack/backend/internal/metrics"
	"github.com/retrotrack/backend/internal/models"
)

// Pipeline ties normalization, classification, enrichment and aggregation to
// the store. Each call runs within the caller's context; a fill pass is
// additionally bounded by FillBudget.
type Pipeline struct {
	Repo           db.Repository
	Optimizer      *Optimizer
	Logger         zerolog.Logger
	EnrichOnUpload bool
	// FillBudget caps a single fill pass. When the caller's context has a
	// deadline the pass also ends after three quarters of the time left, so
	// the caller keeps room to persist and aggregate. Zero means no cap of
	// its own.
	FillBudget time.Duration
	Now        func() time.Time
}

type Upload struct {
	UserID    string
	Filename  string
	Path      string
	SizeBytes int64
}

type IngestResult struct {
	Dataset       models.Dataset `json:"dataset"`
	SheetsScanned int            `json:"sheets_scanned"`
	SheetsMatched int            `json:"sheets_matched"`
	RowsRead      int            `json:"rows_read"`
	RowsSkipped   int            `json:"rows_skipped"`
	Records       int            `json:"records"`
	Inefficient   int            `json:"inefficient"`
	Inserted      int            `json:"inserted"`
	Fill          *FillResult    `json:"fill,omitempty"`
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

// Ingest reads the workbook at up.Path and stores it as a new dataset. A
// workbook that cannot be read yields an *ingest.ParseError and nothing is
// written.
func (p *Pipeline) Ingest(ctx context.Context, up Upload) (IngestResult, error) {
	norm, err := ingest.NormalizeFile(up.Path)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("parse_error").Inc()
		return IngestResult{}, err
	}
	return p.IngestNormalized(ctx, up, norm)
}

func (p *Pipeline) IngestNormalized(ctx context.Context, up Upload, norm ingest.Result) (IngestResult, error) {
	blob, err := json.Marshal(norm)
	if err != nil {
		return IngestResult{}, fmt.Errorf("encode parsed data: %w", err)
	}
	ds := models.Dataset{
		ID:         uuid.NewString(),
		UserID:     up.UserID,
		Filename:   up.Filename,
		SizeBytes:  up.SizeBytes,
		UploadedAt: p.now(),
		ParsedData: blob,
	}
	routes := Classify(ds.ID, norm.Records)

	inserted, err := p.Repo.CreateDataset(ctx, ds, routes)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("db_error").Inc()
		return IngestResult{}, fmt.Errorf("store dataset: %w", err)
	}
	metrics.UploadsTotal.WithLabelValues("ok").Inc()
	metrics.RowsSkipped.Add(float64(norm.RowsSkipped))
	metrics.RoutesInserted.Add(float64(inserted))

	res := IngestResult{
		Dataset:       ds,
		SheetsScanned: norm.SheetsScanned,
		SheetsMatched: norm.SheetsMatched,
		RowsRead:      norm.RowsRead,
		RowsSkipped:   norm.RowsSkipped,
		Records:       len(norm.Records),
		Inefficient:   len(routes),
		Inserted:      inserted,
	}
	p.Logger.Info().
		Str("dataset_id", ds.ID).
		Str("filename", ds.Filename).
		Int("records", res.Records).
		Int("rows_skipped", res.RowsSkipped).
		Int("inserted", inserted).
		Msg("dataset ingested")

	if p.EnrichOnUpload {
		fill, err := p.Fill(ctx, ds.ID)
		if err != nil {
			p.Logger.Warn().Err(err).Str("dataset_id", ds.ID).Msg("fill after upload failed")
		}
		res.Fill = &fill
	}
	return res, nil
}

// Rederive replays the stored normalizer output through the classifier.
// Routes already present are kept as they are.
func (p *Pipeline) Rederive(ctx context.Context, datasetID string) (int, error) {
	ds, err := p.Repo.GetDataset(ctx, datasetID)
	if err != nil {
		return 0, err
	}
	var norm ingest.Result
	if err := json.Unmarshal(ds.ParsedData, &norm); err != nil {
		return 0, fmt.Errorf("decode parsed data: %w", err)
	}
	inserted, err := p.Repo.UpsertRoutes(ctx, ds.ID, Classify(ds.ID, norm.Records))
	if err != nil {
		return 0, fmt.Errorf("upsert routes: %w", err)
	}
	metrics.RoutesInserted.Add(float64(inserted))
	p.Logger.Info().Str("dataset_id", ds.ID).Int("inserted", inserted).Msg("routes re-derived")
	return inserted, nil
}

// Fill runs one optimized-time pass over the dataset's stored routes. A pass
// cut short by the fill budget is not an error: its finished routes are
// stored and the result is marked Partial, so repeated calls keep making
// progress.
func (p *Pipeline) Fill(ctx context.Context, datasetID string) (FillResult, error) {
	if p.Optimizer == nil {
		return FillResult{}, nil
	}
	routes, err := p.Repo.ListRoutes(ctx, datasetID)
	if err != nil {
		return FillResult{}, err
	}

	fillCtx, cancel := p.fillContext(ctx)
	defer cancel()
	res, err := p.Optimizer.FillOptimizedTimes(fillCtx, routes)
	if err != nil && ctx.Err() == nil && res.Pending == nil && errors.Is(err, context.DeadlineExceeded) {
		res.Partial = true
		metrics.PartialFills.Inc()
		p.Logger.Info().
			Str("dataset_id", datasetID).
			Int("updated", res.Updated).
			Int("unfinished", res.Unfinished).
			Msg("fill budget exhausted")
		return res, nil
	}
	return res, err
}

func (p *Pipeline) fillContext(ctx context.Context) (context.Context, context.CancelFunc) {
	budget := p.FillBudget
	if deadline, ok := ctx.Deadline(); ok {
		share := time.Until(deadline) * 3 / 4
		if budget <= 0 || share < budget {
			budget = share
		}
	}
	if budget <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, budget)
}

// Summarize fills what it can within the fill budget and aggregates the
// stored routes on the caller's context. A failed fill pass is logged and
// does not prevent the summary.
func (p *Pipeline) Summarize(ctx context.Context, datasetID string) (models.SummaryReport, error) {
	if _, err := p.Fill(ctx, datasetID); err != nil {
		if ctx.Err() != nil {
			return models.SummaryReport{}, ctx.Err()
		}
		p.Logger.Warn().Err(err).Str("dataset_id", datasetID).Msg("fill before summary failed")
	}
	routes, err := p.Repo.ListRoutes(ctx, datasetID)
	if err != nil {
		return models.SummaryReport{}, err
	}
	return BuildSummary(datasetID, routes, p.now()), nil
}

package service

import (
	"time"

	"github.com/retrotrack/backend/internal/models"
)

const reportTimeLayout = "2006-01-02 15:04"

// BuildSummary aggregates the stored routes of one dataset. It has no side
// effects; averages divide by the total route count and are 0 when there are
// no routes.
func BuildSummary(datasetID string, routes []models.InefficientRoute, now time.Time) models.SummaryReport {
	rep := models.SummaryReport{
		DatasetID:        datasetID,
		InefficientCount: len(routes),
		DelayTable:       DelayTable(routes),
		CostTable:        CostTable(routes),
		GeneratedAt:      now,
	}
	for _, r := range routes {
		rep.TotalDelayedHours += r.DelayHours()
		if r.TimeSavedHours != nil {
			rep.TotalTimeSavedHours += *r.TimeSavedHours
		}
	}
	for _, row := range rep.CostTable {
		rep.TotalCostSaved += row.CostSaved
	}
	if n := float64(rep.InefficientCount); n > 0 {
		rep.AvgDelayedHours = rep.TotalDelayedHours / n
		rep.AvgTimeSavedHours = rep.TotalTimeSavedHours / n
		rep.AvgCostSaved = rep.TotalCostSaved / n
	}
	return rep
}

func DelayTable(routes []models.InefficientRoute) []models.DelayRow {
	out := make([]models.DelayRow, 0, len(routes))
	for _, r := range routes {
		out = append(out, models.DelayRow{
			RouteID:                r.ID,
			DatasetID:              r.DatasetID,
			BaseAddress:            r.BaseAddress,
			ShippingAddress:        r.ShippingAddress,
			StartingTime:           r.StartingTime.Format(reportTimeLayout),
			ExpectedDeliveryTime:   r.ExpectedDeliveryTime.Format(reportTimeLayout),
			ActualDeliveryTime:     r.ActualDeliveryTime.Format(reportTimeLayout),
			ExpectedCost:           r.ExpectedCost,
			ActualCost:             r.ActualCost,
			DelayHours:             r.DelayHours(),
			OptimizedDeliveryHours: r.OptimizedDeliveryHours,
			TimeSavedHours:         r.TimeSavedHours,
		})
	}
	return out
}

// CostTable prices only the routes that have an optimized time.
func CostTable(routes []models.InefficientRoute) []models.CostRow {
	out := make([]models.CostRow, 0, len(routes))
	for _, r := range routes {
		if r.OptimizedDeliveryHours == nil {
			continue
		}
		optimized := *r.OptimizedDeliveryHours
		actual := r.ActualDurationHours()
		optimizedCost := r.MaxCostPerHour * optimized
		actualCost := r.MaxCostPerHour * actual
		out = append(out, models.CostRow{
			RouteID:                r.ID,
			BaseAddress:            r.BaseAddress,
			ShippingAddress:        r.ShippingAddress,
			ActualDurationHours:    actual,
			OptimizedDeliveryHours: optimized,
			MaxCostPerHour:         r.MaxCostPerHour,
			OptimizedCost:          optimizedCost,
			ActualCost:             actualCost,
			CostSaved:              actualCost - optimizedCost,
		})
	}
	return out
}

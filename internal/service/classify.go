package service

import (
	"github.com/retrotrack/backend/internal/models"
)

// IsInefficient reports whether a shipment overran its expected delivery by
// strictly more than the threshold.
func IsInefficient(rec models.ShipmentRecord) bool {
	return complete(rec) && rec.DelayHours() > models.DelayThresholdHours
}

func complete(rec models.ShipmentRecord) bool {
	return rec.BaseAddress != "" && rec.ShippingAddress != "" &&
		!rec.StartingTime.IsZero() && !rec.ExpectedDeliveryTime.IsZero() && !rec.ActualDeliveryTime.IsZero()
}

// Classify keeps the inefficient records, in input order, as routes owned by
// datasetID. Duplicates are passed through; the store drops them.
func Classify(datasetID string, records []models.ShipmentRecord) []models.InefficientRoute {
	out := make([]models.InefficientRoute, 0, len(records))
	for _, rec := range records {
		if !IsInefficient(rec) {
			continue
		}
		out = append(out, models.RouteFromRecord(datasetID, rec))
	}
	return out
}

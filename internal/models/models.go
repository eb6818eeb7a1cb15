package models

import (
	"encoding/json"
	"time"
)

// DelayThresholdHours is the admission bound for InefficientRoute. A shipment
// qualifies only when its delay is strictly greater than this value.
const DelayThresholdHours = 24.0

// ShipmentRecord is one normalized spreadsheet row. Delivery times are
// already resolved to absolute timestamps.
type ShipmentRecord struct {
	Sheet                string    `json:"sheet,omitempty"`
	BaseAddress          string    `json:"base_address" validate:"required"`
	ShippingAddress      string    `json:"shipping_address" validate:"required"`
	StartingTime         time.Time `json:"starting_time" validate:"required"`
	ExpectedDeliveryTime time.Time `json:"expected_delivery_time" validate:"required"`
	ActualDeliveryTime   time.Time `json:"actual_delivery_time" validate:"required"`
	ExpectedCost         float64   `json:"expected_cost" validate:"gte=0"`
	ActualCost           float64   `json:"actual_cost" validate:"gte=0"`
	MaxCostPerHour       float64   `json:"max_cost_per_hour" validate:"gte=0"`
}

func (r ShipmentRecord) DelayHours() float64 {
	return hoursBetween(r.ActualDeliveryTime, r.ExpectedDeliveryTime)
}

type InefficientRoute struct {
	ID                     int64     `json:"id"`
	DatasetID              string    `json:"dataset_id"`
	BaseAddress            string    `json:"base_address"`
	ShippingAddress        string    `json:"shipping_address"`
	StartingTime           time.Time `json:"starting_time"`
	ExpectedDeliveryTime   time.Time `json:"expected_delivery_time"`
	ActualDeliveryTime     time.Time `json:"actual_delivery_time"`
	ExpectedCost           float64   `json:"expected_cost"`
	ActualCost             float64   `json:"actual_cost"`
	MaxCostPerHour         float64   `json:"max_cost_per_hour"`
	OptimizedDeliveryHours *float64  `json:"optimized_delivery_hours"`
	TimeSavedHours         *float64  `json:"time_saved_hours"`
	CreatedAt              time.Time `json:"created_at"`
}

// DelayHours is derived from the stored timestamps on every call.
func (r InefficientRoute) DelayHours() float64 {
	return hoursBetween(r.ActualDeliveryTime, r.ExpectedDeliveryTime)
}

func (r InefficientRoute) ActualDurationHours() float64 {
	return hoursBetween(r.ActualDeliveryTime, r.StartingTime)
}

func (r InefficientRoute) Optimized() bool {
	return r.OptimizedDeliveryHours != nil
}

// RouteFromRecord copies a shipment into a route owned by datasetID.
func RouteFromRecord(datasetID string, rec ShipmentRecord) InefficientRoute {
	return InefficientRoute{
		DatasetID:            datasetID,
		BaseAddress:          rec.BaseAddress,
		ShippingAddress:      rec.ShippingAddress,
		StartingTime:         rec.StartingTime,
		ExpectedDeliveryTime: rec.ExpectedDeliveryTime,
		ActualDeliveryTime:   rec.ActualDeliveryTime,
		ExpectedCost:         rec.ExpectedCost,
		ActualCost:           rec.ActualCost,
		MaxCostPerHour:       rec.MaxCostPerHour,
	}
}

type Dataset struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	Filename   string          `json:"filename"`
	SizeBytes  int64           `json:"size_bytes"`
	UploadedAt time.Time       `json:"uploaded_at"`
	ParsedData json.RawMessage `json:"-"`
}

// OptimizationUpdate is one pending write from a fill pass.
type OptimizationUpdate struct {
	RouteID                int64   `json:"route_id"`
	OptimizedDeliveryHours float64 `json:"optimized_delivery_hours"`
	TimeSavedHours         float64 `json:"time_saved_hours"`
}

type DelayRow struct {
	RouteID                int64    `json:"route_id"`
	DatasetID              string   `json:"dataset_id"`
	BaseAddress            string   `json:"base_address"`
	ShippingAddress        string   `json:"shipping_address"`
	StartingTime           string   `json:"starting_time"`
	ExpectedDeliveryTime   string   `json:"expected_delivery_time"`
	ActualDeliveryTime     string   `json:"actual_delivery_time"`
	ExpectedCost           float64  `json:"expected_cost"`
	ActualCost             float64  `json:"actual_cost"`
	DelayHours             float64  `json:"delay_hours"`
	OptimizedDeliveryHours *float64 `json:"optimized_delivery_hours"`
	TimeSavedHours         *float64 `json:"time_saved_hours"`
}

type CostRow struct {
	RouteID                int64   `json:"route_id"`
	BaseAddress            string  `json:"base_address"`
	ShippingAddress        string  `json:"shipping_address"`
	ActualDurationHours    float64 `json:"actual_duration_hours"`
	OptimizedDeliveryHours float64 `json:"optimized_delivery_hours"`
	MaxCostPerHour         float64 `json:"max_cost_per_hour"`
	OptimizedCost          float64 `json:"optimized_cost"`
	ActualCost             float64 `json:"actual_cost"`
	CostSaved              float64 `json:"cost_saved"`
}

type SummaryReport struct {
	DatasetID           string     `json:"dataset_id"`
	InefficientCount    int        `json:"inefficient_count"`
	TotalDelayedHours   float64    `json:"total_delayed_hours"`
	AvgDelayedHours     float64    `json:"avg_delayed_hours"`
	TotalTimeSavedHours float64    `json:"total_time_saved_hours"`
	AvgTimeSavedHours   float64    `json:"avg_time_saved_hours"`
	TotalCostSaved      float64    `json:"total_cost_saved"`
	AvgCostSaved        float64    `json:"avg_cost_saved"`
	DelayTable          []DelayRow `json:"delay_table"`
	CostTable           []CostRow  `json:"cost_table"`
	GeneratedAt         time.Time  `json:"generated_at"`
}

func hoursBetween(later, earlier time.Time) float64 {
	return later.Sub(earlier).Hours()
}

// Package storage talks to the flight-plan record store, either the remote
// storage service over gRPC or a PostgreSQL database.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/signalsfoundry/svc-compliance/model"
)

// Field names understood by search filters and update masks.
const (
	FieldFlightPlanID          = "flight_plan_id"
	FieldScheduledDeparture    = "scheduled_departure"
	FieldFlightStatus          = "flight_status"
	FieldFlightPlanApproval    = "flight_plan_approval"
	FieldFlightReleaseApproval = "flight_release_approval"
)

// FlightStatus is the lifecycle state of a stored flight plan.
type FlightStatus int32

const (
	FlightStatusReady FlightStatus = iota
	FlightStatusBoarding
	FlightStatusInFlight
	FlightStatusFinished
	FlightStatusCancelled
	FlightStatusDraft
)

func (s FlightStatus) String() string {
	switch s {
	case FlightStatusReady:
		return "ready"
	case FlightStatusBoarding:
		return "boarding"
	case FlightStatusInFlight:
		return "in_flight"
	case FlightStatusFinished:
		return "finished"
	case FlightStatusCancelled:
		return "cancelled"
	case FlightStatusDraft:
		return "draft"
	default:
		return fmt.Sprintf("flight_status(%d)", int32(s))
	}
}

// FlightPlanData holds the stored fields of a flight plan.
type FlightPlanData struct {
	ScheduledDeparture    *time.Time   `json:"scheduled_departure,omitempty"`
	FlightStatus          FlightStatus `json:"flight_status"`
	FlightPlanApproval    *time.Time   `json:"flight_plan_approval,omitempty"`
	FlightReleaseApproval *time.Time   `json:"flight_release_approval,omitempty"`
}

// FlightPlanObject is a stored flight plan.
type FlightPlanObject struct {
	ID   string          `json:"id"`
	Data *FlightPlanData `json:"data,omitempty"`
}

// Record converts the object into a pending-request entry. Objects without a
// scheduled departure cannot be tracked.
func (o FlightPlanObject) Record() (model.FlightPlanRecord, error) {
	if o.Data == nil || o.Data.ScheduledDeparture == nil {
		return model.FlightPlanRecord{}, fmt.Errorf("flight plan %q: %w", o.ID, model.ErrMissingDeparture)
	}
	return model.FlightPlanRecord{
		FlightPlanID:       o.ID,
		ScheduledDeparture: o.Data.ScheduledDeparture.UTC(),
	}, nil
}

// FieldMask lists the fields an update touches.
type FieldMask struct {
	Paths []string `json:"paths"`
}

// UpdateObject is a partial update of one flight plan.
type UpdateObject struct {
	ID   string         `json:"id"`
	Data FlightPlanData `json:"data"`
	Mask FieldMask      `json:"mask"`
}

// ValidationError describes one rejected field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"error"`
}

// ValidationResult is the store's verdict on an update.
type ValidationResult struct {
	Success bool              `json:"success"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

// UpdateResponse is returned by Update. A nil ValidationResult means the
// store did not report one.
type UpdateResponse struct {
	Object           *FlightPlanObject `json:"object,omitempty"`
	ValidationResult *ValidationResult `json:"validation_result,omitempty"`
}

// FlightPlanStore is the record-store contract.
type FlightPlanStore interface {
	Search(ctx context.Context, filter *AdvancedSearchFilter) ([]FlightPlanObject, error)
	Update(ctx context.Context, obj UpdateObject) (*UpdateResponse, error)
	Close() error
}

// ApprovalUpdate builds the partial update that stamps field with ts.
func ApprovalUpdate(id, field string, ts time.Time) UpdateObject {
	ts = ts.UTC()
	obj := UpdateObject{ID: id, Mask: FieldMask{Paths: []string{field}}}
	switch field {
	case FieldFlightPlanApproval:
		obj.Data.FlightPlanApproval = &ts
	case FieldFlightReleaseApproval:
		obj.Data.FlightReleaseApproval = &ts
	}
	return obj
}

// StatusUpdate builds the partial update that sets the flight status.
func StatusUpdate(id string, status FlightStatus) UpdateObject {
	return UpdateObject{
		ID:   id,
		Data: FlightPlanData{FlightStatus: status},
		Mask: FieldMask{Paths: []string{FieldFlightStatus}},
	}
}

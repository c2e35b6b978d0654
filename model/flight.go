package model

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrMissingDeparture is returned when a stored flight plan has no scheduled
// departure and therefore cannot be tracked.
var ErrMissingDeparture = errors.New("flight plan has no scheduled departure")

// FlightPlanRecord is a pending request tracked by a reconciler until the
// authority reaches a decision or the departure time passes.
type FlightPlanRecord struct {
	FlightPlanID       string
	ScheduledDeparture time.Time
}

// Expired reports whether the departure window passed before a decision.
func (r FlightPlanRecord) Expired(now time.Time) bool {
	return r.ScheduledDeparture.Before(now)
}

// Submission is what gets handed to a regional authority, either from an
// inbound RPC or from a reconciler admitting a stored record.
type Submission struct {
	FlightPlanID       string
	ScheduledDeparture *time.Time
	Data               json.RawMessage
}

// RequestStatus is the authority's decision state for a request.
type RequestStatus int

const (
	RequestStatusPending RequestStatus = iota
	RequestStatusApproved
	RequestStatusDenied
)

func (s RequestStatus) String() string {
	switch s {
	case RequestStatusPending:
		return "pending"
	case RequestStatusApproved:
		return "approved"
	case RequestStatusDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status is a final decision.
func (s RequestStatus) Terminal() bool {
	return s == RequestStatusApproved || s == RequestStatusDenied
}

// StatusResponse is a status answer with the time the decision was made.
type StatusResponse struct {
	Status    RequestStatus
	Timestamp time.Time
}

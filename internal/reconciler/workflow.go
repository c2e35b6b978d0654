package reconciler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/signalsfoundry/svc-compliance/internal/logging"
	"github.com/signalsfoundry/svc-compliance/internal/region"
	"github.com/signalsfoundry/svc-compliance/internal/storage"
	"github.com/signalsfoundry/svc-compliance/model"
)

// Workflow names.
const (
	WorkflowPlan    = "plan"
	WorkflowRelease = "release"
)

// ErrValidationFailed is returned by a DecisionHandler when the record store
// answered but did not accept the write. Such writes are not retried.
var ErrValidationFailed = errors.New("record store rejected update")

// Store is the slice of the record store a reconciler needs.
type Store interface {
	Search(ctx context.Context, filter *storage.AdvancedSearchFilter) ([]storage.FlightPlanObject, error)
	Update(ctx context.Context, obj storage.UpdateObject) (*storage.UpdateResponse, error)
}

// Authority submits requests of one workflow and reports their status.
type Authority interface {
	Submit(ctx context.Context, sub model.Submission) error
	Status(ctx context.Context, flightPlanID string) (model.StatusResponse, error)
}

// DecisionHandler records a terminal authority decision.
type DecisionHandler interface {
	OnApproved(ctx context.Context, flightPlanID string, at time.Time) error
	OnDenied(ctx context.Context, flightPlanID string, at time.Time) error
}

type planAuthority struct{ b region.Backend }

// PlanAuthority adapts the flight-plan half of a region backend.
func PlanAuthority(b region.Backend) Authority { return planAuthority{b: b} }

func (a planAuthority) Submit(ctx context.Context, sub model.Submission) error {
	return a.b.SubmitFlightPlan(ctx, sub)
}

func (a planAuthority) Status(ctx context.Context, id string) (model.StatusResponse, error) {
	return a.b.FlightPlanStatus(ctx, id)
}

type releaseAuthority struct{ b region.Backend }

// ReleaseAuthority adapts the flight-release half of a region backend.
func ReleaseAuthority(b region.Backend) Authority { return releaseAuthority{b: b} }

func (a releaseAuthority) Submit(ctx context.Context, sub model.Submission) error {
	return a.b.SubmitFlightRelease(ctx, sub)
}

func (a releaseAuthority) Status(ctx context.Context, id string) (model.StatusResponse, error) {
	return a.b.FlightReleaseStatus(ctx, id)
}

// PlanHandler stamps approvals and cancels denied flight plans. It logs to
// the logger on the context, falling back to Logger.
type PlanHandler struct {
	Store  Store
	Logger logging.Logger
}

func (h PlanHandler) OnApproved(ctx context.Context, id string, at time.Time) error {
	logging.FromContext(ctx, h.Logger).Info(ctx, "flight plan approved by authority", logging.String("flight_plan_id", id))
	return writeUpdate(ctx, h.Store, storage.ApprovalUpdate(id, storage.FieldFlightPlanApproval, at))
}

func (h PlanHandler) OnDenied(ctx context.Context, id string, _ time.Time) error {
	logging.FromContext(ctx, h.Logger).Warn(ctx, "flight plan denied by authority; cancelling", logging.String("flight_plan_id", id))
	return writeUpdate(ctx, h.Store, storage.StatusUpdate(id, storage.FlightStatusCancelled))
}

// ReleaseHandler stamps release approvals. A denied release leaves the
// flight plan untouched; the reconciler remembers the denial so the release
// is not requested again.
type ReleaseHandler struct {
	Store  Store
	Logger logging.Logger
}

func (h ReleaseHandler) OnApproved(ctx context.Context, id string, at time.Time) error {
	logging.FromContext(ctx, h.Logger).Info(ctx, "flight release approved by authority", logging.String("flight_plan_id", id))
	return writeUpdate(ctx, h.Store, storage.ApprovalUpdate(id, storage.FieldFlightReleaseApproval, at))
}

func (h ReleaseHandler) OnDenied(ctx context.Context, id string, _ time.Time) error {
	logging.FromContext(ctx, h.Logger).Warn(ctx, "flight release denied by authority; flight plan left unchanged", logging.String("flight_plan_id", id))
	return nil
}

func writeUpdate(ctx context.Context, store Store, obj storage.UpdateObject) error {
	resp, err := store.Update(ctx, obj)
	if err != nil {
		return fmt.Errorf("update flight plan %s: %w", obj.ID, err)
	}
	if resp == nil || resp.ValidationResult == nil {
		return fmt.Errorf("update flight plan %s: %w: validation result missing", obj.ID, ErrValidationFailed)
	}
	if !resp.ValidationResult.Success {
		msgs := make([]string, 0, len(resp.ValidationResult.Errors))
		for _, e := range resp.ValidationResult.Errors {
			msgs = append(msgs, e.Field+": "+e.Message)
		}
		return fmt.Errorf("update flight plan %s: %w: %s", obj.ID, ErrValidationFailed, strings.Join(msgs, "; "))
	}
	return nil
}

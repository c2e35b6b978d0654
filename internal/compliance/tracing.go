package compliance

import (
	"context"

	"github.com/signalsfoundry/svc-compliance/internal/grpcapi"
	"github.com/signalsfoundry/svc-compliance/internal/logging"
	"github.com/signalsfoundry/svc-compliance/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
)

const tracerName = "github.com/signalsfoundry/svc-compliance/internal/compliance"

// Span attribute keys shared by the RPC span and the authority span.
const (
	attrFlightPlanID = attribute.Key("flight_plan.id")
	attrRegion       = attribute.Key("compliance.region")
	attrWorkflow     = attribute.Key("compliance.workflow")
	attrAccepted     = attribute.Key("compliance.accepted")
	attrRejection    = attribute.Key("compliance.rejection")
)

const (
	workflowPlan    = "flight_plan"
	workflowRelease = "flight_release"
)

// TracingOption configures TracingUnaryServerInterceptor.
type TracingOption func(*tracingConfig)

type tracingConfig struct {
	provider trace.TracerProvider
}

// WithTracerProvider records spans on tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) TracingOption {
	return func(c *tracingConfig) {
		if tp != nil {
			c.provider = tp
		}
	}
}

// TracingUnaryServerInterceptor names the RPC span after the compliance
// method and tags it with the flight plan, workflow and outcome. A server span
// is started when the otelgrpc handler has not already created one.
func TracingUnaryServerInterceptor(opts ...TracingOption) grpc.UnaryServerInterceptor {
	cfg := tracingConfig{provider: otel.GetTracerProvider()}
	for _, opt := range opts {
		opt(&cfg)
	}
	tracer := cfg.provider.Tracer(tracerName)

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		_, method := observability.SplitMethod(info.FullMethod)
		spanName := "compliance." + method
		span := trace.SpanFromContext(ctx)
		created := false
		if !span.SpanContext().IsValid() {
			ctx, span = tracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindServer))
			created = true
		} else {
			span.SetName(spanName)
		}

		span.SetAttributes(requestAttributes(req)...)
		if reqID := logging.RequestIDFromContext(ctx); reqID != "" {
			span.SetAttributes(attribute.String("request_id", reqID))
		}

		resp, err := handler(ctx, req)
		if err != nil {
			span.RecordError(err)
		} else {
			span.SetAttributes(outcomeAttributes(resp)...)
		}

		if created {
			span.End()
		}
		return resp, err
	}
}

func requestAttributes(req any) []attribute.KeyValue {
	switch r := req.(type) {
	case *grpcapi.FlightPlanRequest:
		return []attribute.KeyValue{attrFlightPlanID.String(r.FlightPlanID), attrWorkflow.String(workflowPlan)}
	case *grpcapi.FlightReleaseRequest:
		return []attribute.KeyValue{attrFlightPlanID.String(r.FlightPlanID), attrWorkflow.String(workflowRelease)}
	}
	return nil
}

func outcomeAttributes(resp any) []attribute.KeyValue {
	var (
		accepted bool
		result   *string
	)
	switch r := resp.(type) {
	case *grpcapi.FlightPlanResponse:
		accepted, result = r.Submitted, r.Result
	case *grpcapi.FlightReleaseResponse:
		accepted, result = r.Released, r.Result
	default:
		return nil
	}
	attrs := []attribute.KeyValue{attrAccepted.Bool(accepted)}
	if result != nil {
		attrs = append(attrs, attrRejection.String(*result))
	}
	return attrs
}

// startAuthoritySpan covers one call into the regional authority. It uses
// the provider of the enclosing RPC span when there is one.
func startAuthoritySpan(ctx context.Context, workflow, region, flightPlanID string) (context.Context, trace.Span) {
	var tracer trace.Tracer
	if parent := trace.SpanFromContext(ctx); parent.SpanContext().IsValid() {
		tracer = parent.TracerProvider().Tracer(tracerName)
	} else {
		tracer = otel.Tracer(tracerName)
	}
	return tracer.Start(ctx, "region.submit_"+workflow,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attrFlightPlanID.String(flightPlanID),
			attrRegion.String(region),
			attrWorkflow.String(workflow),
		),
	)
}

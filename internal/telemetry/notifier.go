package telemetry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/signalsfoundry/svc-compliance/internal/logging"
	"github.com/vmihailenco/msgpack/v5"
)

// Payload encodings.
const (
	EncodingJSON    = "json"
	EncodingMsgpack = "msgpack"
)

// Metrics counts publish attempts. *observability.LoopCollector implements it.
type Metrics interface {
	IncTelemetryPublish(result string)
}

// FlightPlan is the message body for an accepted flight plan.
type FlightPlan struct {
	FlightPlanID string `json:"flight_plan_id" msgpack:"flight_plan_id"`
	Data         string `json:"data" msgpack:"data"`
}

// Notifier encodes accepted flight plans and publishes them. Failures are
// logged and counted, never returned.
type Notifier struct {
	pub      Publisher
	encoding string
	log      logging.Logger
	metrics  Metrics
}

// NewNotifier returns a Notifier. A nil publisher yields a notifier that
// only logs.
func NewNotifier(pub Publisher, encoding string, log logging.Logger, metrics Metrics) (*Notifier, error) {
	switch encoding {
	case "":
		encoding = EncodingJSON
	case EncodingJSON, EncodingMsgpack:
	default:
		return nil, fmt.Errorf("telemetry: unknown encoding %q", encoding)
	}
	return &Notifier{
		pub:      pub,
		encoding: encoding,
		log:      logging.OrNoop(log).With(logging.Component("telemetry")),
		metrics:  metrics,
	}, nil
}

// FlightPlanAccepted publishes fp to the cargo routing key.
func (n *Notifier) FlightPlanAccepted(ctx context.Context, fp FlightPlan) {
	if n == nil {
		return
	}
	log := logging.FromContext(ctx, n.log).With(logging.String("flight_plan_id", fp.FlightPlanID))

	msg, err := n.encode(fp)
	if err != nil {
		log.Error(ctx, "could not encode flight plan telemetry", logging.Err(err))
		n.count("encode_error")
		return
	}
	if n.pub == nil {
		log.Warn(ctx, "no message queue publisher; telemetry dropped")
		n.count("error")
		return
	}
	if err := n.pub.Publish(ctx, ExchangeFlightPlan, RoutingKeyCargo, msg); err != nil {
		log.Error(ctx, "flight plan telemetry push failed", logging.Err(err))
		n.count("error")
		return
	}
	log.Info(ctx, "flight plan telemetry pushed", logging.String("message_id", msg.ID))
	n.count("ok")
}

func (n *Notifier) encode(fp FlightPlan) (Message, error) {
	msg := Message{ID: uuid.NewString()}
	var err error
	switch n.encoding {
	case EncodingMsgpack:
		msg.ContentType = "application/msgpack"
		msg.Body, err = msgpack.Marshal(fp)
	default:
		msg.ContentType = "application/json"
		msg.Body, err = json.Marshal(fp)
	}
	return msg, err
}

func (n *Notifier) count(result string) {
	if n.metrics != nil {
		n.metrics.IncTelemetryPublish(result)
	}
}

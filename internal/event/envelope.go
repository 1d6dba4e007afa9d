package event

import (
	"strings"

	"github.com/knaznarjes/MoveBackendDevops-sub000/internal/domain"
	apperrors "github.com/knaznarjes/MoveBackendDevops-sub000/pkg/errors"
	pkgkafka "github.com/knaznarjes/MoveBackendDevops-sub000/pkg/kafka"
)

// Operation is the kind of change a content event announces.
type Operation string

const (
	OperationCreated Operation = "created"
	OperationUpdated Operation = "updated"
	OperationDeleted Operation = "deleted"
)

// aggregateType labels content events on the bus.
const aggregateType = "content"

// Envelope is one content change. Payload carries the full record for
// created and updated; for deleted only the id is meaningful.
type Envelope struct {
	Operation Operation
	ID        string
	Payload   domain.ContentRecord
}

// NewEnvelope wraps rec for op.
func NewEnvelope(op Operation, rec domain.ContentRecord) Envelope {
	return Envelope{Operation: op, ID: rec.ID, Payload: rec}
}

// Topics names the channel of each operation.
type Topics struct {
	Created string `env:"SEARCH_TOPIC_CREATED" envDefault:"content.created"`
	Updated string `env:"SEARCH_TOPIC_UPDATED" envDefault:"content.updated"`
	Deleted string `env:"SEARCH_TOPIC_DELETED" envDefault:"content.deleted"`
}

// DefaultTopics returns the standard topic names.
func DefaultTopics() Topics {
	return Topics{
		Created: "content.created",
		Updated: "content.updated",
		Deleted: "content.deleted",
	}
}

// For returns the topic carrying op.
func (t Topics) For(op Operation) (string, error) {
	switch op {
	case OperationCreated:
		return t.Created, nil
	case OperationUpdated:
		return t.Updated, nil
	case OperationDeleted:
		return t.Deleted, nil
	}
	return "", apperrors.InvalidInputf("unknown operation %q", op)
}

// Operation returns the operation carried on topic.
func (t Topics) Operation(topic string) (Operation, bool) {
	switch topic {
	case t.Created:
		return OperationCreated, true
	case t.Updated:
		return OperationUpdated, true
	case t.Deleted:
		return OperationDeleted, true
	}
	return "", false
}

// All lists the topics in operation order.
func (t Topics) All() []string {
	return []string{t.Created, t.Updated, t.Deleted}
}

type deletedData struct {
	ID string `json:"id"`
}

// Encode wraps env in the bus event format: the event type is the
// operation's topic and the aggregate id is the content id.
func Encode(env Envelope, topics Topics, source string) (*pkgkafka.Event, error) {
	topic, err := topics.For(env.Operation)
	if err != nil {
		return nil, err
	}

	var data any = env.Payload
	if env.Operation == OperationDeleted {
		data = deletedData{ID: env.ID}
	}
	return pkgkafka.NewEvent(topic, env.ID, aggregateType, source, data)
}

// Decode reads the envelope for op out of ev. A payload without an id falls
// back to the event's aggregate id; an event with neither is rejected.
func Decode(ev *pkgkafka.Event, op Operation) (Envelope, error) {
	env := Envelope{Operation: op}

	switch op {
	case OperationCreated, OperationUpdated:
		if err := ev.UnmarshalData(&env.Payload); err != nil {
			return Envelope{}, apperrors.InvalidInputf("decode %s event %s: %v", op, ev.EventID, err)
		}
		env.ID = env.Payload.ID
	case OperationDeleted:
		var d deletedData
		if len(ev.Data) > 0 {
			if err := ev.UnmarshalData(&d); err != nil {
				return Envelope{}, apperrors.InvalidInputf("decode %s event %s: %v", op, ev.EventID, err)
			}
		}
		env.ID = d.ID
	default:
		return Envelope{}, apperrors.InvalidInputf("unknown operation %q", op)
	}

	if strings.TrimSpace(env.ID) == "" {
		env.ID = ev.AggregateID
	}
	if strings.TrimSpace(env.ID) == "" {
		return Envelope{}, apperrors.InvalidInputf("%s event %s has no content id", op, ev.EventID)
	}
	env.Payload.ID = env.ID
	return env, nil
}

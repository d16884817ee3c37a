package audit

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
)

type OrderAudit struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OrderID   string             `bson:"order_id" json:"order_id"`
	EventType string             `bson:"event_type" json:"event_type"`
	OldStatus string             `bson:"old_status,omitempty" json:"old_status,omitempty"`
	NewStatus string             `bson:"new_status" json:"new_status"`
	Actor     string             `bson:"actor,omitempty" json:"actor,omitempty"`
	Timestamp time.Time          `bson:"timestamp" json:"timestamp"`
}

type Recorder interface {
	Record(ctx context.Context, entry *OrderAudit) error
	ListByOrder(ctx context.Context, orderID string, limit int) ([]OrderAudit, error)
}

// Nop discards entries. Used when no mongo URI is configured.
type Nop struct{}

func (Nop) Record(context.Context, *OrderAudit) error { return nil }

func (Nop) ListByOrder(context.Context, string, int) ([]OrderAudit, error) {
	return []OrderAudit{}, nil
}

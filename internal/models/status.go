package models

import "time"

// DeliveryState is the per-recipient message state machine. Transitions are
// strictly forward and may not skip Delivered.
type DeliveryState int16

const (
	StateSent      DeliveryState = 0
	StateDelivered DeliveryState = 1
	StateRead      DeliveryState = 2
)

// DeliveryStatus tracks one recipient's progress for one message. Rows are
// created for every conversation member except the sender at send time; the
// set is frozen, later joiners get no retroactive row.
type DeliveryStatus struct {
	MessageID   int64         `db:"message_id" json:"message_id"`
	UserID      int64         `db:"user_id" json:"user_id"`
	State       DeliveryState `db:"status" json:"status"`
	DeliveredAt *time.Time    `db:"delivered_at" json:"delivered_at,omitempty"`
	ReadAt      *time.Time    `db:"read_at" json:"read_at,omitempty"`
}

package ws

import "time"

// ConnInfo is the per-connection metadata tracked alongside each websocket
// in the hub. UserID drives the sender-exclusion rule on broadcast; the rest
// feeds the lifecycle events mirrored onto the bus.
type ConnInfo struct {
	ConnID      string
	UserID      int64
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

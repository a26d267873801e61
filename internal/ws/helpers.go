package ws

import "github.com/google/uuid"

// newConnID tags each connection so lifecycle events on the bus can be
// correlated across connect, error and disconnect.
func newConnID() string {
	return uuid.NewString()
}

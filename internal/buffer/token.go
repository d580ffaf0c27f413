package buffer

import "github.com/google/uuid"

// newBatchToken generates a time-sortable UUIDv7 batch token.
//
// UUIDv7 embeds a timestamp in the most significant bits, so tokens
// sort by flush time - helpful when inspecting a buffer database by
// hand after an incident.
//
// Panics if UUID generation fails (should never happen in practice).
func newBatchToken() string {
	return uuid.Must(uuid.NewV7()).String()
}

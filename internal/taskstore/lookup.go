package taskstore

import "github.com/a2arun/agentnode/internal/a2atypes"

// Lookup adapts Store to a2atypes.TaskLookup, used by the validator to
// reject messages referencing unknown task-ids without exposing the rest
// of Store's mutation surface to internal/a2atypes.
type Lookup struct {
	Store *Store
}

// Get implements a2atypes.TaskLookup.
func (l Lookup) Get(taskID string) (a2atypes.TaskState, bool) {
	return l.Store.GetState(taskID)
}

var _ a2atypes.TaskLookup = Lookup{}

package checkpoint

import (
	"context"
	"strings"
)

// Recover reads every retained "task:*" checkpoint from store and invokes
// restore for each. This is the §4.6 "recovery-on-start" path: called once
// during node startup before the dispatcher begins accepting requests.
func Recover(ctx context.Context, store Store, restore func(taskID string, snapshot []byte)) error {
	keys, err := store.List(ctx, "task:")
	if err != nil {
		return err
	}
	for _, key := range keys {
		cp, ok, err := store.Get(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		taskID := strings.TrimPrefix(key, "task:")
		restore(taskID, cp.WorkerState)
	}
	return nil
}

package populate

import (
	"context"
)

// UserLookup loads users by id in one batch. Missing ids are absent from the map.
type UserLookup[U any] func(ctx context.Context, ids []int32) (map[int32]*U, error)

// AttachUsers resolves the user referenced by each record with a single batched
// lookup. key returns the foreign id held by a record (0 means none) and attach
// stores the resolved user, or nil when the user does not exist. The same call
// serves event participants, verifiers and message authors.
func AttachUsers[R any, U any](ctx context.Context, records []R, key func(R) int32, attach func(R, *U), lookup UserLookup[U]) error {
	if len(records) == 0 {
		return nil
	}

	seen := make(map[int32]bool, len(records))
	ids := make([]int32, 0, len(records))
	for _, record := range records {
		id := key(record)
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}

	users := map[int32]*U{}
	if len(ids) > 0 {
		var err error
		users, err = lookup(ctx, ids)
		if err != nil {
			return err
		}
	}

	for _, record := range records {
		attach(record, users[key(record)])
	}
	return nil
}

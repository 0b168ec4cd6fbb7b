package board

import (
	"boardsync/domain"
)

// MergeTasks combines a freshly fetched snapshot with the ledger so a
// concurrent background refresh can never clobber pending optimistic state.
// Every pending entry wins over the fetched value for its id; entries the
// fetch has not indexed yet (e.g. the server is still moving the task to
// its new status) are appended. The result contains each task id exactly
// once.
func MergeTasks(fetched []domain.Task, ledger *Ledger) []domain.Task {
	merged := make([]domain.Task, 0, len(fetched))
	seen := make(map[string]struct{}, len(fetched))
	for _, t := range fetched {
		if _, dup := seen[t.ID]; dup {
			continue
		}
		seen[t.ID] = struct{}{}
		merged = append(merged, t)
	}

	if ledger == nil || ledger.PendingCount() == 0 {
		return merged
	}

	ledger.Each(func(taskID string, optimistic domain.Task) {
		if _, ok := seen[taskID]; ok {
			for i := range merged {
				if merged[i].ID == taskID {
					merged[i] = optimistic
					break
				}
			}
			return
		}
		seen[taskID] = struct{}{}
		merged = append(merged, optimistic)
	})
	return merged
}

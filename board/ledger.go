package board

import (
	"boardsync/domain"
)

type ledgerEntry struct {
	optimistic domain.Task
	// snapshot is the full visible list as it was before the optimistic
	// mutation, kept so a failed persist can restore it verbatim.
	snapshot []domain.Task
}

// Ledger tracks in-flight client-side mutations that the server has not yet
// confirmed. Presence of an entry is the pending flag; there is no separate
// pending set to keep in sync. The Ledger is not safe for concurrent use;
// the Engine serializes access.
type Ledger struct {
	entries map[string]*ledgerEntry
	order   []string
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{entries: make(map[string]*ledgerEntry)}
}

// Begin records an optimistic value for the task and the pre-mutation list
// snapshot. An existing entry for the same task is overwritten, keeping its
// original snapshot so a later revert restores the oldest known-good state.
func (l *Ledger) Begin(taskID string, optimistic domain.Task, snapshot []domain.Task) {
	if existing, ok := l.entries[taskID]; ok {
		existing.optimistic = optimistic
		return
	}
	l.entries[taskID] = &ledgerEntry{optimistic: optimistic, snapshot: snapshot}
	l.order = append(l.order, taskID)
}

// Confirm removes the entry once a trusted confirmation was observed. It is
// a no-op when the entry is absent, so duplicate confirmations are harmless.
func (l *Ledger) Confirm(taskID string) bool {
	if _, ok := l.entries[taskID]; !ok {
		return false
	}
	l.remove(taskID)
	return true
}

// Revert removes the entry and returns the pre-mutation snapshot so the
// caller can restore it.
func (l *Ledger) Revert(taskID string) ([]domain.Task, bool) {
	e, ok := l.entries[taskID]
	if !ok {
		return nil, false
	}
	l.remove(taskID)
	return e.snapshot, true
}

// IsPending reports whether the task has an unconfirmed mutation.
func (l *Ledger) IsPending(taskID string) bool {
	_, ok := l.entries[taskID]
	return ok
}

// PendingCount returns the number of unconfirmed mutations.
func (l *Ledger) PendingCount() int {
	return len(l.entries)
}

// Each visits pending entries in begin order.
func (l *Ledger) Each(fn func(taskID string, optimistic domain.Task)) {
	for _, id := range l.order {
		if e, ok := l.entries[id]; ok {
			fn(id, e.optimistic)
		}
	}
}

func (l *Ledger) remove(taskID string) {
	delete(l.entries, taskID)
	for i, id := range l.order {
		if id == taskID {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}

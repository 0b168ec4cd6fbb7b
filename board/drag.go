package board

import (
	"sort"

	"boardsync/domain"
)

// Phase is the engine's coarse interaction state. Every asynchronous
// handler consults it before touching shared state, replacing the drift
// prone collection of ad hoc boolean flags the UI used to carry.
type Phase int32

const (
	// PhaseIdle means no gesture is active; merges and push events apply
	// immediately.
	PhaseIdle Phase = iota
	// PhaseDragging means a pointer gesture is in flight; all background
	// mutations of the visible list are deferred.
	PhaseDragging
	// PhasePersisting covers the drag-end commit window: gate check,
	// optimistic apply and launch of the persist request.
	PhasePersisting
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseDragging:
		return "dragging"
	case PhasePersisting:
		return "persisting"
	default:
		return "unknown"
	}
}

// Hover describes the pointer position during a drag gesture, expressed
// against the element under the pointer: the hovered column and, when the
// pointer is over a card, that card's id and vertical bounds.
type Hover struct {
	StatusID string
	TaskID   string
	PointerY float64
	TopY     float64
	BottomY  float64
}

type dropTarget struct {
	statusID string
	// index is the insertion position among the target column's tasks with
	// the dragged task excluded.
	index int
}

// dragSession exists only while a gesture is active. It is owned by the
// Engine and cleared unconditionally on drag end, including error paths.
type dragSession struct {
	taskID         string
	originStatusID string
	originIndex    int
	target         *dropTarget
}

// columnTasks returns the tasks of one column ordered by their sort hint,
// excluding the given task id.
func columnTasks(list []domain.Task, statusID, excludeID string) []domain.Task {
	col := make([]domain.Task, 0, len(list))
	for _, t := range list {
		if t.StatusID != statusID || t.ID == excludeID {
			continue
		}
		col = append(col, t)
	}
	sort.SliceStable(col, func(i, j int) bool {
		if col[i].Order != col[j].Order {
			return col[i].Order < col[j].Order
		}
		return col[i].ID < col[j].ID
	})
	return col
}

// resolveHover recomputes the candidate drop target from the pointer
// position. It runs continuously during the gesture, so it must stay cheap
// and must never trigger I/O. Above the midpoint of the hovered card
// inserts before it, at or below inserts after; empty column space appends.
func resolveHover(list []domain.Task, statuses []domain.Status, sess *dragSession, h Hover) (dropTarget, bool) {
	status, ok := statusByID(statuses, h.StatusID)
	if !ok || status.Hidden {
		return dropTarget{}, false
	}

	if h.TaskID == "" || h.TaskID == sess.taskID {
		if h.TaskID == sess.taskID && sess.originStatusID == h.StatusID {
			// Hovering the dragged card over itself, including the sole
			// card of a column, resolves to its own slot.
			return dropTarget{statusID: h.StatusID, index: sess.originIndex}, true
		}
		col := columnTasks(list, h.StatusID, sess.taskID)
		return dropTarget{statusID: h.StatusID, index: len(col)}, true
	}

	col := columnTasks(list, h.StatusID, sess.taskID)
	idx := -1
	for i, t := range col {
		if t.ID == h.TaskID {
			idx = i
			break
		}
	}
	if idx < 0 {
		// Hovered card is not in the hovered column; fall back to append.
		return dropTarget{statusID: h.StatusID, index: len(col)}, true
	}
	mid := (h.TopY + h.BottomY) / 2
	if h.PointerY >= mid {
		idx++
	}
	return dropTarget{statusID: h.StatusID, index: idx}, true
}

// applyMove produces a new task list with the task moved to the given
// column and insertion index, renumbering sort hints in the affected
// columns. The input list is never mutated; the visible list is always
// replaced wholesale.
func applyMove(list []domain.Task, statuses []domain.Status, taskID, destStatusID string, index int) ([]domain.Task, domain.Task, bool) {
	var moved domain.Task
	found := false
	rest := make([]domain.Task, 0, len(list))
	for _, t := range list {
		if t.ID == taskID {
			moved = t
			found = true
			continue
		}
		rest = append(rest, t)
	}
	if !found {
		return nil, domain.Task{}, false
	}

	originStatusID := moved.StatusID
	moved.StatusID = destStatusID

	dest := columnTasks(rest, destStatusID, "")
	if index < 0 {
		index = 0
	}
	if index > len(dest) {
		index = len(dest)
	}
	dest = append(dest[:index:index], append([]domain.Task{moved}, dest[index:]...)...)
	for i := range dest {
		dest[i].Order = i
	}

	out := make([]domain.Task, 0, len(list))
	for _, s := range statuses {
		var col []domain.Task
		switch s.ID {
		case destStatusID:
			col = dest
		case originStatusID:
			col = columnTasks(rest, s.ID, "")
			for i := range col {
				col[i].Order = i
			}
		default:
			col = columnTasks(rest, s.ID, "")
		}
		out = append(out, col...)
	}
	// Tasks referencing a column that is not on this board keep their place
	// at the end of the list rather than silently vanishing.
	known := make(map[string]struct{}, len(statuses))
	for _, s := range statuses {
		known[s.ID] = struct{}{}
	}
	for _, t := range rest {
		if _, ok := known[t.StatusID]; !ok {
			out = append(out, t)
		}
	}

	for _, t := range out {
		if t.ID == taskID {
			moved = t
			break
		}
	}
	return out, moved, true
}

// sortTasks returns the list in board order: columns by their configured
// order, cards by their sort hint.
func sortTasks(list []domain.Task, statuses []domain.Status) []domain.Task {
	rank := make(map[string]int, len(statuses))
	for i, s := range statuses {
		rank[s.ID] = i
	}
	out := append([]domain.Task(nil), list...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, iok := rank[out[i].StatusID]
		rj, jok := rank[out[j].StatusID]
		if iok != jok {
			return iok
		}
		if ri != rj {
			return ri < rj
		}
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func statusByID(statuses []domain.Status, id string) (domain.Status, bool) {
	for _, s := range statuses {
		if s.ID == id {
			return s, true
		}
	}
	return domain.Status{}, false
}

func taskByID(list []domain.Task, id string) (domain.Task, bool) {
	for _, t := range list {
		if t.ID == id {
			return t, true
		}
	}
	return domain.Task{}, false
}

// columnIndexOf returns the task's position among its column peers with
// itself excluded, i.e. the insertion index that would leave the board
// unchanged.
func columnIndexOf(list []domain.Task, task domain.Task) int {
	col := columnTasks(list, task.StatusID, task.ID)
	idx := len(col)
	for i, t := range col {
		if t.Order > task.Order || (t.Order == task.Order && t.ID > task.ID) {
			idx = i
			break
		}
	}
	return idx
}

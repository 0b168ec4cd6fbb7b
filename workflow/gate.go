package workflow

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"boardsync/domain"
)

// Definitions resolves workflow definitions, typically through a Cache.
type Definitions interface {
	Workflow(ctx context.Context, id string) (domain.Workflow, error)
}

// UnavailableError reports that the workflow definition could not be
// fetched or parsed. The gate fails closed on it: an unverifiable move is a
// rejected move, never a silently allowed one.
type UnavailableError struct {
	WorkflowID string
	Err        error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("workflow %s is unavailable, the move was not applied", e.WorkflowID)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// MismatchError reports that the task's current status could not be linked
// to any status of its workflow.
type MismatchError struct {
	TaskID     string
	WorkflowID string
	StatusName string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("current status %q is not linked to workflow %s", e.StatusName, e.WorkflowID)
}

// NotInWorkflowError reports that the proposed destination column has no
// counterpart in the workflow.
type NotInWorkflowError struct {
	WorkflowID string
	StatusName string
}

func (e *NotInWorkflowError) Error() string {
	return fmt.Sprintf("%q is not part of workflow %s", e.StatusName, e.WorkflowID)
}

// NoTransitionError reports that the workflow defines no edge between the
// two statuses.
type NoTransitionError struct {
	From string
	To   string
}

func (e *NoTransitionError) Error() string {
	return fmt.Sprintf("no transition exists from %q to %q", e.From, e.To)
}

// Gate validates proposed column moves against workflow transition graphs.
type Gate struct {
	defs   Definitions
	logger *log.Logger
}

// NewGate creates a gate backed by the given definition source.
func NewGate(defs Definitions, logger *log.Logger) *Gate {
	if defs == nil {
		panic("workflow.NewGate: definitions source is required")
	}
	if logger == nil {
		panic("workflow.NewGate: logger is required")
	}
	return &Gate{defs: defs, logger: logger}
}

// Allowed reports whether moving the task from its current column to dest
// is a legal transition. Tasks without a workflow are unrestricted. A nil
// return means the move may proceed; any error both names the reason and
// aborts the commit before state is touched.
func (g *Gate) Allowed(ctx context.Context, task domain.Task, current, dest domain.Status) error {
	if task.WorkflowID == "" {
		return nil
	}

	wf, err := g.defs.Workflow(ctx, task.WorkflowID)
	if err != nil {
		g.logger.Errorf("workflow %s lookup failed: %v", task.WorkflowID, err)
		return &UnavailableError{WorkflowID: task.WorkflowID, Err: err}
	}

	source, ok := g.resolveSource(wf, task, current)
	if !ok {
		return &MismatchError{TaskID: task.ID, WorkflowID: wf.ID, StatusName: current.Name}
	}
	target, ok := wf.StatusForColumn(dest)
	if !ok {
		return &NotInWorkflowError{WorkflowID: wf.ID, StatusName: dest.Name}
	}

	// Pure reorder within a column is never a workflow transition.
	if source.ID == target.ID {
		return nil
	}
	if !wf.HasTransition(source.ID, target.ID) {
		return &NoTransitionError{From: source.Name, To: target.Name}
	}
	return nil
}

// resolveSource finds the task's current workflow status, preferring the
// explicit reference, then the denormalized snapshot, then the column's
// back-reference or key.
func (g *Gate) resolveSource(wf domain.Workflow, task domain.Task, current domain.Status) (domain.WorkflowStatus, bool) {
	if task.WorkflowStatusID != "" {
		if s, ok := wf.StatusByID(task.WorkflowStatusID); ok {
			return s, true
		}
	}
	if task.WorkflowStatus != nil {
		if s, ok := wf.StatusByID(task.WorkflowStatus.ID); ok {
			return s, true
		}
	}
	return wf.StatusForColumn(current)
}

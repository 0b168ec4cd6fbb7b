package workflow

import (
	"context"
	"errors"
	"io"
	"testing"

	log "github.com/sirupsen/logrus"

	"boardsync/domain"
)

type stubDefs struct {
	workflows map[string]domain.Workflow
	err       error
	calls     int
}

func (s *stubDefs) Workflow(ctx context.Context, id string) (domain.Workflow, error) {
	s.calls++
	if s.err != nil {
		return domain.Workflow{}, s.err
	}
	wf, ok := s.workflows[id]
	if !ok {
		return domain.Workflow{}, errors.New("not found")
	}
	return wf, nil
}

func testWorkflow() domain.Workflow {
	return domain.Workflow{
		ID:   "wf-1",
		Name: "Default",
		Statuses: []domain.WorkflowStatus{
			{ID: "ws-open", Name: "Open", StatusID: "todo"},
			{ID: "ws-active", Name: "Active", StatusID: "doing"},
			{ID: "ws-closed", Name: "Closed", StatusID: "done"},
		},
		Transitions: []domain.Transition{
			{From: "ws-open", To: "ws-active"},
			{From: "ws-active", To: "ws-closed"},
			{From: "ws-active", To: "ws-open"},
		},
	}
}

func newTestGate(defs *stubDefs) *Gate {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return NewGate(defs, logger)
}

var (
	colTodo  = domain.Status{ID: "todo", Name: "To Do"}
	colDoing = domain.Status{ID: "doing", Name: "In Progress"}
	colDone  = domain.Status{ID: "done", Name: "Done"}
	colMisc  = domain.Status{ID: "misc", Name: "Misc"}
)

func TestGateAllowsDefinedTransition(t *testing.T) {
	gate := newTestGate(&stubDefs{workflows: map[string]domain.Workflow{"wf-1": testWorkflow()}})
	task := domain.Task{ID: "t1", WorkflowID: "wf-1", StatusID: "todo"}

	if err := gate.Allowed(context.Background(), task, colTodo, colDoing); err != nil {
		t.Fatalf("expected allowed, got %v", err)
	}
}

func TestGateRejectsMissingEdge(t *testing.T) {
	gate := newTestGate(&stubDefs{workflows: map[string]domain.Workflow{"wf-1": testWorkflow()}})
	task := domain.Task{ID: "t1", WorkflowID: "wf-1", StatusID: "todo"}

	// Open to Closed skips Active and has no edge.
	err := gate.Allowed(context.Background(), task, colTodo, colDone)
	var noEdge *NoTransitionError
	if !errors.As(err, &noEdge) {
		t.Fatalf("expected NoTransitionError, got %v", err)
	}
	if noEdge.From != "Open" || noEdge.To != "Closed" {
		t.Fatalf("error must name workflow statuses, got %+v", noEdge)
	}

	// Transitions are directed; the reverse edge does not apply.
	task.StatusID = "done"
	if err := gate.Allowed(context.Background(), task, colDone, colDoing); err == nil {
		t.Fatal("reverse of a directed edge must be rejected")
	}
}

func TestGateSkipsTasksWithoutWorkflow(t *testing.T) {
	defs := &stubDefs{err: errors.New("must not be called")}
	gate := newTestGate(defs)
	task := domain.Task{ID: "t1", StatusID: "todo"}

	if err := gate.Allowed(context.Background(), task, colTodo, colDone); err != nil {
		t.Fatalf("tasks without a workflow are unrestricted, got %v", err)
	}
	if defs.calls != 0 {
		t.Fatal("definition source must not be consulted")
	}
}

func TestGateFailsClosedWhenDefinitionsUnavailable(t *testing.T) {
	cause := errors.New("fetch workflow: connection refused")
	gate := newTestGate(&stubDefs{err: cause})
	task := domain.Task{ID: "t1", WorkflowID: "wf-1"}

	err := gate.Allowed(context.Background(), task, colTodo, colDoing)
	var unavailable *UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected UnavailableError, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatal("cause must be wrapped")
	}
}

func TestGateReportsUnlinkedCurrentStatus(t *testing.T) {
	gate := newTestGate(&stubDefs{workflows: map[string]domain.Workflow{"wf-1": testWorkflow()}})
	task := domain.Task{ID: "t1", WorkflowID: "wf-1", StatusID: "misc"}

	err := gate.Allowed(context.Background(), task, colMisc, colDoing)
	var mismatch *MismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected MismatchError, got %v", err)
	}
}

func TestGateReportsDestinationOutsideWorkflow(t *testing.T) {
	gate := newTestGate(&stubDefs{workflows: map[string]domain.Workflow{"wf-1": testWorkflow()}})
	task := domain.Task{ID: "t1", WorkflowID: "wf-1", StatusID: "todo"}

	err := gate.Allowed(context.Background(), task, colTodo, colMisc)
	var notIn *NotInWorkflowError
	if !errors.As(err, &notIn) {
		t.Fatalf("expected NotInWorkflowError, got %v", err)
	}
}

func TestGatePrefersExplicitWorkflowStatusReference(t *testing.T) {
	gate := newTestGate(&stubDefs{workflows: map[string]domain.Workflow{"wf-1": testWorkflow()}})
	// The task sits in the doing column but its workflow reference says
	// Open; the reference wins.
	task := domain.Task{ID: "t1", WorkflowID: "wf-1", StatusID: "doing", WorkflowStatusID: "ws-open"}

	if err := gate.Allowed(context.Background(), task, colDoing, colDoing); err != nil {
		t.Fatalf("Open to Active is a legal edge, got %v", err)
	}
	err := gate.Allowed(context.Background(), task, colDoing, colDone)
	var noEdge *NoTransitionError
	if !errors.As(err, &noEdge) {
		t.Fatalf("expected NoTransitionError via the explicit reference, got %v", err)
	}
}

func TestGateFallsBackToDenormalizedSnapshot(t *testing.T) {
	gate := newTestGate(&stubDefs{workflows: map[string]domain.Workflow{"wf-1": testWorkflow()}})
	task := domain.Task{
		ID:             "t1",
		WorkflowID:     "wf-1",
		StatusID:       "misc",
		WorkflowStatus: &domain.WorkflowStatus{ID: "ws-active", Name: "Active"},
	}

	if err := gate.Allowed(context.Background(), task, colMisc, colDone); err != nil {
		t.Fatalf("snapshot should resolve Active, Active to Closed is legal: %v", err)
	}
}

func TestGateReorderWithinColumn(t *testing.T) {
	gate := newTestGate(&stubDefs{workflows: map[string]domain.Workflow{"wf-1": testWorkflow()}})
	task := domain.Task{ID: "t1", WorkflowID: "wf-1", StatusID: "todo"}

	if err := gate.Allowed(context.Background(), task, colTodo, colTodo); err != nil {
		t.Fatalf("same column is never a transition, got %v", err)
	}
}

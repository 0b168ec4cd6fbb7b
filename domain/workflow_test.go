package domain

import "testing"

func TestStatusForColumnPrefersBackReference(t *testing.T) {
	wf := Workflow{
		Statuses: []WorkflowStatus{
			{ID: "ws-a", Key: "doing", StatusID: "col-1"},
			{ID: "ws-b", Key: "todo"},
		},
	}

	if s, ok := wf.StatusForColumn(Status{ID: "col-1", Key: "todo"}); !ok || s.ID != "ws-a" {
		t.Fatalf("expected back-reference match ws-a, got %+v ok=%v", s, ok)
	}
	if s, ok := wf.StatusForColumn(Status{ID: "col-9", Key: "todo"}); !ok || s.ID != "ws-b" {
		t.Fatalf("expected key match ws-b, got %+v ok=%v", s, ok)
	}
	if _, ok := wf.StatusForColumn(Status{ID: "col-9", Key: "done"}); ok {
		t.Fatal("expected no match for unlinked column")
	}
}

func TestHasTransition(t *testing.T) {
	wf := Workflow{Transitions: []Transition{{From: "a", To: "b"}}}
	if !wf.HasTransition("a", "b") {
		t.Fatal("expected edge a->b")
	}
	if wf.HasTransition("b", "a") {
		t.Fatal("edges are directed; b->a must not exist")
	}
}

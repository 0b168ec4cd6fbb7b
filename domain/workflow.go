package domain

// Workflow is a directed graph of statuses and the legal transitions
// between them, independent of any one board's column layout.
type Workflow struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Statuses    []WorkflowStatus `json:"statuses"`
	Transitions []Transition     `json:"transitions"`
}

// WorkflowStatus is one node of a workflow graph. StatusID back-references
// the board column the node maps to, when such a mapping exists.
type WorkflowStatus struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Key      string `json:"key,omitempty"`
	StatusID string `json:"statusId,omitempty"`
}

// Transition is a directed edge between two workflow statuses.
type Transition struct {
	Name string `json:"name,omitempty"`
	From string `json:"from"`
	To   string `json:"to"`
}

// StatusByID returns the workflow status with the given id.
func (w Workflow) StatusByID(id string) (WorkflowStatus, bool) {
	for _, s := range w.Statuses {
		if s.ID == id {
			return s, true
		}
	}
	return WorkflowStatus{}, false
}

// StatusForColumn resolves a workflow status from a board column, matching
// the explicit back-reference first and the column key second.
func (w Workflow) StatusForColumn(column Status) (WorkflowStatus, bool) {
	for _, s := range w.Statuses {
		if s.StatusID != "" && s.StatusID == column.ID {
			return s, true
		}
	}
	if column.Key != "" {
		for _, s := range w.Statuses {
			if s.Key != "" && s.Key == column.Key {
				return s, true
			}
		}
	}
	return WorkflowStatus{}, false
}

// HasTransition reports whether at least one edge exists from one workflow
// status to another.
func (w Workflow) HasTransition(from, to string) bool {
	for _, t := range w.Transitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

package domain

// Priority levels mirror the five-step scale used by the board UI.
const (
	PriorityHighest = "HIGHEST"
	PriorityHigh    = "HIGH"
	PriorityNormal  = "NORMAL"
	PriorityLow     = "LOW"
	PriorityLowest  = "LOWEST"
)

// Task represents a single board card in the read model. The server owns
// the canonical copy; the client holds a cached one.
type Task struct {
	ID               string          `json:"id"`
	Number           int             `json:"number,omitempty"`
	Title            string          `json:"title"`
	Notes            string          `json:"notes,omitempty"`
	Priority         string          `json:"priority,omitempty"`
	Tags             []string        `json:"tags,omitempty"`
	StartDate        string          `json:"startDate,omitempty"`
	DueDate          string          `json:"dueDate,omitempty"`
	SprintID         string          `json:"sprintId,omitempty"`
	AssigneeID       string          `json:"assigneeId,omitempty"`
	StatusID         string          `json:"statusId"`
	Order            int             `json:"order"`
	WorkflowID       string          `json:"workflowId,omitempty"`
	WorkflowStatusID string          `json:"workflowStatusId,omitempty"`
	WorkflowStatus   *WorkflowStatus `json:"workflowStatus,omitempty"`
}

// Status represents one board column. Columns are loaded once per board and
// are read-only inputs for the reconciliation engine.
type Status struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Key      string `json:"key"`
	Order    int    `json:"order"`
	Color    string `json:"color,omitempty"`
	IsStart  bool   `json:"isStart,omitempty"`
	IsDone   bool   `json:"isDone,omitempty"`
	WIPLimit int    `json:"wipLimit,omitempty"`
	Hidden   bool   `json:"hidden,omitempty"`
}

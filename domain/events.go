package domain

import "github.com/bytedance/sonic"

// Push event types delivered over the board's event stream.
const (
	TaskCreated = "task.created"
	TaskUpdated = "task.updated"
)

// Event is a push notification announcing a task change. Data carries the
// updated task when the server included it; a missing or malformed payload
// must be resolved with a forced refetch, never trusted.
type Event struct {
	Type   string                 `json:"type"`
	TaskID string                 `json:"taskId"`
	Data   sonic.NoCopyRawMessage `json:"data,omitempty"`
	Time   int64                  `json:"time,omitempty"`
}

// TaskPayload decodes the embedded task, if any.
func (e Event) TaskPayload() (Task, bool) {
	if len(e.Data) == 0 {
		return Task{}, false
	}
	var t Task
	if err := sonic.Unmarshal(e.Data, &t); err != nil {
		return Task{}, false
	}
	if t.ID == "" {
		t.ID = e.TaskID
	}
	return t, true
}

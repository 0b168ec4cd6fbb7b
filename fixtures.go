package main

import "boardsync/domain"

func demoStatuses() []domain.Status {
	return []domain.Status{
		{ID: "todo", Name: "To Do", Key: "todo", Order: 0, Color: "#8ecae6", IsStart: true},
		{ID: "doing", Name: "In Progress", Key: "doing", Order: 1, Color: "#ffb703", WIPLimit: 3},
		{ID: "review", Name: "In Review", Key: "review", Order: 2, Color: "#fb8500"},
		{ID: "done", Name: "Done", Key: "done", Order: 3, Color: "#95d5b2", IsDone: true},
	}
}

func demoTasks() []domain.Task {
	return []domain.Task{
		{ID: "t-1", Number: 1, Title: "Sketch the onboarding flow", Priority: domain.PriorityHigh, StatusID: "todo", Order: 0, WorkflowID: "wf-default"},
		{ID: "t-2", Number: 2, Title: "Wire up the billing webhook", Priority: domain.PriorityNormal, StatusID: "todo", Order: 1, WorkflowID: "wf-default", Tags: []string{"backend"}},
		{ID: "t-3", Number: 3, Title: "Fix the flaky export test", Priority: domain.PriorityLow, StatusID: "doing", Order: 0, WorkflowID: "wf-default"},
		{ID: "t-4", Number: 4, Title: "Draft the release notes", Priority: domain.PriorityNormal, StatusID: "review", Order: 0},
	}
}

func demoWorkflows() []domain.Workflow {
	return []domain.Workflow{
		{
			ID:   "wf-default",
			Name: "Default",
			Statuses: []domain.WorkflowStatus{
				{ID: "ws-todo", Name: "To Do", Key: "todo", StatusID: "todo"},
				{ID: "ws-doing", Name: "In Progress", Key: "doing", StatusID: "doing"},
				{ID: "ws-review", Name: "In Review", Key: "review", StatusID: "review"},
				{ID: "ws-done", Name: "Done", Key: "done", StatusID: "done"},
			},
			Transitions: []domain.Transition{
				{From: "ws-todo", To: "ws-doing"},
				{From: "ws-doing", To: "ws-review"},
				{From: "ws-doing", To: "ws-todo"},
				{From: "ws-review", To: "ws-doing"},
				{From: "ws-review", To: "ws-done"},
				{From: "ws-done", To: "ws-todo"},
			},
		},
	}
}

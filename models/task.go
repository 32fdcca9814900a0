package models

import (
	"context"
	"time"
)

// TaskStatus is the terminal (or running) status of a Task.
type TaskStatus string

const (
	TaskRunning   TaskStatus = "running"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
	TaskEscalated TaskStatus = "escalated"
)

// Task is a live binding of Agent × WorkItem × RoutingDecision (spec.md §3).
type Task struct {
	ID              string
	AgentID         string
	WorkFingerprint string
	StartedAt       time.Time
	Status          TaskStatus
	FailureReason   string
	Attempt         int

	Cancel context.CancelFunc `json:"-"`
}

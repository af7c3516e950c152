// Package workorder holds the work order lifecycle rules: explicit status
// changes, task completion toggles and the completion cascade.
package workorder

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"upkeep/internal/domain"
)

var ErrInvalidStatus = errors.New("invalid status")

// ParseStatus validates s against the fixed status enumeration.
func ParseStatus(s string) (domain.WorkOrderStatus, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "InProgress" {
		return domain.StatusInProgress, nil
	}
	for _, st := range domain.WorkOrderStatuses {
		if string(st) == trimmed {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w %q", ErrInvalidStatus, s)
}

func stamp(now time.Time) *string {
	ts := now.UTC().Format(time.RFC3339)
	return &ts
}

// SetStatus applies an explicit status change. Any status may follow any
// other; Completed stamps completed_at and everything else clears it.
func SetStatus(wo *domain.WorkOrder, status domain.WorkOrderStatus, now time.Time) {
	wo.Status = status
	if status == domain.StatusCompleted {
		wo.CompletedAt = stamp(now)
	} else {
		wo.CompletedAt = nil
	}
	wo.UpdatedAt = now.UTC().Format(time.RFC3339)
}

// ToggleTask marks a task complete or incomplete. completed_by is only
// recorded when marking complete.
func ToggleTask(task *domain.WorkOrderTask, done bool, actorID string, now time.Time) {
	task.IsCompleted = done
	if done {
		task.CompletedAt = stamp(now)
		actor := actorID
		task.CompletedBy = &actor
		return
	}
	task.CompletedAt = nil
	task.CompletedBy = nil
}

// ShouldAutoComplete reports whether every task is complete. An order with no
// tasks never qualifies.
func ShouldAutoComplete(tasks []domain.WorkOrderTask) bool {
	if len(tasks) == 0 {
		return false
	}
	for _, t := range tasks {
		if !t.IsCompleted {
			return false
		}
	}
	return true
}

// Cascade forces the order to Completed once all of its tasks are done,
// whatever its prior status. It reports whether it changed the order; an
// order already Completed keeps its original completed_at. It never moves an
// order out of Completed.
func Cascade(wo *domain.WorkOrder, tasks []domain.WorkOrderTask, now time.Time) bool {
	if !ShouldAutoComplete(tasks) || wo.Status == domain.StatusCompleted {
		return false
	}
	SetStatus(wo, domain.StatusCompleted, now)
	return true
}

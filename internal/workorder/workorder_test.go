package workorder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upkeep/internal/domain"
)

var now = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func TestParseStatus(t *testing.T) {
	for _, s := range []string{"Open", "In Progress", "Completed", "Cancelled"} {
		got, err := ParseStatus(s)
		require.NoError(t, err)
		assert.Equal(t, domain.WorkOrderStatus(s), got)
	}
	got, err := ParseStatus("InProgress")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, got)

	for _, s := range []string{"Paused", "", "open", "Done"} {
		_, err := ParseStatus(s)
		assert.ErrorIs(t, err, ErrInvalidStatus, s)
	}
}

func TestSetStatusStampsAndClears(t *testing.T) {
	wo := domain.WorkOrder{Status: domain.StatusOpen}
	SetStatus(&wo, domain.StatusCompleted, now)
	require.NotNil(t, wo.CompletedAt)
	assert.Equal(t, "2024-01-01T12:00:00Z", *wo.CompletedAt)

	SetStatus(&wo, domain.StatusCancelled, now.Add(time.Hour))
	assert.Nil(t, wo.CompletedAt)
	assert.Equal(t, domain.StatusCancelled, wo.Status)

	// terminal states do not block reopening
	SetStatus(&wo, domain.StatusOpen, now.Add(2*time.Hour))
	assert.Equal(t, domain.StatusOpen, wo.Status)
	assert.Equal(t, "2024-01-01T14:00:00Z", wo.UpdatedAt)
}

func TestToggleTask(t *testing.T) {
	task := domain.WorkOrderTask{}
	ToggleTask(&task, true, "acct-1", now)
	assert.True(t, task.IsCompleted)
	require.NotNil(t, task.CompletedAt)
	require.NotNil(t, task.CompletedBy)
	assert.Equal(t, "acct-1", *task.CompletedBy)

	ToggleTask(&task, false, "acct-2", now)
	assert.False(t, task.IsCompleted)
	assert.Nil(t, task.CompletedAt)
	assert.Nil(t, task.CompletedBy)
}

func tasks(done ...bool) []domain.WorkOrderTask {
	out := make([]domain.WorkOrderTask, len(done))
	for i, d := range done {
		out[i] = domain.WorkOrderTask{OrderIndex: i, IsCompleted: d}
	}
	return out
}

func TestCascade(t *testing.T) {
	assert.False(t, ShouldAutoComplete(nil))
	assert.False(t, ShouldAutoComplete(tasks(true, false, true)))
	assert.True(t, ShouldAutoComplete(tasks(true, true, true)))

	wo := domain.WorkOrder{Status: domain.StatusCancelled}
	assert.False(t, Cascade(&wo, tasks(true, false), now))
	assert.Equal(t, domain.StatusCancelled, wo.Status)

	assert.True(t, Cascade(&wo, tasks(true, true), now))
	assert.Equal(t, domain.StatusCompleted, wo.Status)
	require.NotNil(t, wo.CompletedAt)
	stamped := *wo.CompletedAt

	// a repeated cascade keeps the first completion time
	assert.False(t, Cascade(&wo, tasks(true, true), now.Add(time.Hour)))
	assert.Equal(t, stamped, *wo.CompletedAt)

	// un-toggling leaves the order completed
	assert.False(t, Cascade(&wo, tasks(true, false), now))
	assert.Equal(t, domain.StatusCompleted, wo.Status)
	assert.NotNil(t, wo.CompletedAt)

	empty := domain.WorkOrder{Status: domain.StatusInProgress}
	assert.False(t, Cascade(&empty, nil, now))
	assert.Equal(t, domain.StatusInProgress, empty.Status)
}

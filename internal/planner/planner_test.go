package planner

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upkeep/internal/domain"
)

var ref = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

const day = int64(secondsPerDay)

func item(id string, days int) domain.ChecklistItem {
	return domain.ChecklistItem{
		ID:                id,
		Title:             "Task " + id,
		TaskText:          "Do " + id,
		FrequencyDays:     days,
		Priority:          "High",
		EstimatedDuration: 30,
		Active:            true,
	}
}

func opts(multiplier string) Options {
	return Options{HorizonDays: 90, Multiplier: decimal.RequireFromString(multiplier), Reference: ref}
}

func TestThirtyDayCadenceHitsBoundary(t *testing.T) {
	s, err := Generate([]domain.ChecklistItem{item("a", 30)}, opts("1"))
	require.NoError(t, err)
	require.Len(t, s.Tasks, 3)
	assert.Equal(t, 3, s.TotalScheduled)
	for i, want := range []int64{30, 60, 90} {
		assert.Equal(t, ref.Unix()+want*day, s.Tasks[i].DueDate)
		assert.Equal(t, int(want), s.Tasks[i].DaysFromNow)
	}
	assert.Equal(t, "2024-01-31", s.Tasks[0].DueDateReadable)
	assert.Equal(t, "2024-03-31", s.Tasks[2].DueDateReadable)
	assert.Equal(t, "Task a", s.Tasks[0].TaskName)
	assert.Equal(t, "Do a", s.Tasks[0].TaskDescription)
	assert.Equal(t, 30, s.Tasks[0].FrequencyDays)
}

func TestMultiplierTwoHalvesCadence(t *testing.T) {
	s, err := Generate([]domain.ChecklistItem{item("a", 30)}, opts("2"))
	require.NoError(t, err)
	require.Len(t, s.Tasks, 3)
	for i, want := range []int64{15, 30, 45} {
		assert.Equal(t, ref.Unix()+want*day, s.Tasks[i].DueDate)
	}
}

func TestMultiplierBelowOneStretchesCadence(t *testing.T) {
	s, err := Generate([]domain.ChecklistItem{item("a", 30)}, opts("0.5"))
	require.NoError(t, err)
	require.Len(t, s.Tasks, 1)
	assert.Equal(t, ref.Unix()+60*day, s.Tasks[0].DueDate)
}

func TestOccurrencesBeyondHorizonDropped(t *testing.T) {
	s, err := Generate([]domain.ChecklistItem{item("a", 60)}, opts("1"))
	require.NoError(t, err)
	require.Len(t, s.Tasks, 1)
	assert.Equal(t, 60, s.Tasks[0].DaysFromNow)

	s, err = Generate([]domain.ChecklistItem{item("b", 91)}, opts("1"))
	require.NoError(t, err)
	assert.Empty(t, s.Tasks)
	assert.NotNil(t, s.Tasks)
	assert.Equal(t, 0, s.TotalScheduled)
}

func TestEffectiveCadenceRounds(t *testing.T) {
	c, err := EffectiveCadence(1, decimal.RequireFromString("7"))
	require.NoError(t, err)
	// 86400/7 = 12342.857...
	assert.Equal(t, int64(12343), c)

	c, err = EffectiveCadence(30, decimal.RequireFromString("1.5"))
	require.NoError(t, err)
	assert.Equal(t, 20*day, c)
}

func TestTinyMultiplierSaturatesCadence(t *testing.T) {
	c, err := EffectiveCadence(30, decimal.RequireFromString("0.0000000000001"))
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), c)

	s, err := Generate([]domain.ChecklistItem{item("a", 30)}, opts("0.0000000000001"))
	require.NoError(t, err)
	assert.Empty(t, s.Tasks)
	assert.Equal(t, 0, s.TotalScheduled)
}

func TestZeroCadenceSchedulesAtReference(t *testing.T) {
	c, err := EffectiveCadence(1, decimal.RequireFromString("200000"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), c)

	s, err := Generate([]domain.ChecklistItem{item("a", 1)}, opts("200000"))
	require.NoError(t, err)
	require.Len(t, s.Tasks, 3)
	assert.Equal(t, 3, s.TotalScheduled)
	for _, task := range s.Tasks {
		assert.Equal(t, ref.Unix(), task.DueDate)
		assert.Equal(t, 0, task.DaysFromNow)
	}
}

func TestDaysFromNowRoundsToNearestDay(t *testing.T) {
	// 10 days / 3 = 3.333 days
	s, err := Generate([]domain.ChecklistItem{item("a", 10)}, opts("3"))
	require.NoError(t, err)
	require.Len(t, s.Tasks, 3)
	assert.Equal(t, []int{3, 7, 10}, []int{s.Tasks[0].DaysFromNow, s.Tasks[1].DaysFromNow, s.Tasks[2].DaysFromNow})
}

func TestSortedAndTruncated(t *testing.T) {
	items := []domain.ChecklistItem{item("monthly", 30), item("weekly", 7), item("fortnight", 14), item("quarter", 90)}
	s, err := Generate(items, opts("1"))
	require.NoError(t, err)
	// 3 + 3 + 3 + 1
	assert.Equal(t, 10, s.TotalScheduled)
	require.Len(t, s.Tasks, 10)
	for i := 1; i < len(s.Tasks); i++ {
		assert.LessOrEqual(t, s.Tasks[i-1].DueDate, s.Tasks[i].DueDate)
	}

	items = append(items, item("daily", 1))
	s, err = Generate(items, opts("1"))
	require.NoError(t, err)
	assert.Equal(t, 13, s.TotalScheduled)
	require.Len(t, s.Tasks, 10)
	assert.Equal(t, "daily", s.Tasks[0].ChecklistID)
	assert.Equal(t, int64(1), (s.Tasks[0].DueDate-ref.Unix())/day)
}

func TestTiesKeepItemOrder(t *testing.T) {
	items := []domain.ChecklistItem{item("first", 30), item("second", 30), item("third", 15)}
	s, err := Generate(items, opts("1"))
	require.NoError(t, err)
	var order []string
	for _, task := range s.Tasks {
		order = append(order, fmt.Sprintf("%s@%d", task.ChecklistID, task.DaysFromNow))
	}
	assert.Equal(t, []string{
		"third@15", "first@30", "second@30", "third@30", "third@45",
		"first@60", "second@60", "first@90", "second@90",
	}, order)
}

func TestInactiveItemsSkipped(t *testing.T) {
	inactive := item("off", 7)
	inactive.Active = false
	s, err := Generate([]domain.ChecklistItem{inactive, item("on", 30)}, opts("1"))
	require.NoError(t, err)
	assert.Equal(t, 3, s.TotalScheduled)
	for _, task := range s.Tasks {
		assert.Equal(t, "on", task.ChecklistID)
	}
}

func TestInvalidInputs(t *testing.T) {
	for _, m := range []string{"0", "-1", "-0.5"} {
		_, err := Generate([]domain.ChecklistItem{item("a", 30)}, opts(m))
		assert.True(t, errors.Is(err, ErrInvalidMultiplier), m)
	}
	_, err := Generate([]domain.ChecklistItem{item("a", 30)}, Options{Reference: ref})
	assert.ErrorIs(t, err, ErrInvalidMultiplier)

	_, err = Generate([]domain.ChecklistItem{item("bad", 0)}, opts("1"))
	assert.ErrorIs(t, err, ErrInvalidCadence)
}

func TestNextDue(t *testing.T) {
	s, err := Generate([]domain.ChecklistItem{item("a", 30), item("b", 7)}, opts("1"))
	require.NoError(t, err)
	next, ok := s.NextDue()
	require.True(t, ok)
	assert.Equal(t, ref.Add(7*24*time.Hour), next)

	_, ok = Schedule{}.NextDue()
	assert.False(t, ok)
}

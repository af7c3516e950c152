// Package planner expands recurring checklist items into a bounded, dated
// maintenance schedule.
package planner

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"upkeep/internal/domain"
)

const secondsPerDay = 86400

const (
	DefaultHorizonDays = 90
	DefaultOccurrences = 3
	DefaultLimit       = 10
)

var (
	ErrInvalidMultiplier = errors.New("cadence multiplier must be positive")
	ErrInvalidCadence    = errors.New("checklist cadence must be positive")
	ErrInvalidHorizon    = errors.New("horizon must be positive")
)

// Options control a single Generate call. Zero values take the defaults,
// except Multiplier which must be set.
type Options struct {
	HorizonDays int
	Multiplier  decimal.Decimal
	Reference   time.Time
	Occurrences int
	Limit       int
}

// ScheduledTask is one planned occurrence of a checklist item.
type ScheduledTask struct {
	ChecklistID       string `json:"checklist_id"`
	TaskName          string `json:"task_name"`
	TaskDescription   string `json:"task_description"`
	FrequencyDays     int    `json:"frequency_days"`
	Priority          string `json:"priority"`
	EstimatedDuration int    `json:"estimated_duration"`
	DueDate           int64  `json:"due_date"`
	DueDateReadable   string `json:"due_date_readable"`
	DaysFromNow       int    `json:"days_from_now"`
}

// Schedule is the truncated, ordered result plus the pre-truncation count.
type Schedule struct {
	Tasks          []ScheduledTask `json:"schedule"`
	TotalScheduled int             `json:"total_scheduled"`
}

// EffectiveCadence returns the interval in whole seconds between
// occurrences of an item with the given cadence under multiplier. Cadences
// too large for int64 saturate at math.MaxInt64.
func EffectiveCadence(frequencyDays int, multiplier decimal.Decimal) (int64, error) {
	if multiplier.Sign() <= 0 {
		return 0, ErrInvalidMultiplier
	}
	if frequencyDays <= 0 {
		return 0, ErrInvalidCadence
	}
	seconds := decimal.NewFromInt(int64(frequencyDays) * secondsPerDay)
	cadence := seconds.Div(multiplier).Round(0)
	if cadence.GreaterThan(maxCadence) {
		return math.MaxInt64, nil
	}
	return cadence.IntPart(), nil
}

var maxCadence = decimal.NewFromInt(math.MaxInt64)

// Generate plans occurrences k=1..Occurrences for each active item, keeping
// those within the horizon (inclusive). The result is ordered by due date,
// ties keeping item order, and cut to Limit entries.
func Generate(items []domain.ChecklistItem, opts Options) (Schedule, error) {
	if opts.Multiplier.Sign() <= 0 {
		return Schedule{}, ErrInvalidMultiplier
	}
	if opts.HorizonDays == 0 {
		opts.HorizonDays = DefaultHorizonDays
	}
	if opts.HorizonDays < 0 {
		return Schedule{}, ErrInvalidHorizon
	}
	if opts.Occurrences <= 0 {
		opts.Occurrences = DefaultOccurrences
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Reference.IsZero() {
		opts.Reference = time.Now()
	}
	ref := opts.Reference.Unix()
	horizon := int64(opts.HorizonDays) * secondsPerDay

	var tasks []ScheduledTask
	for _, item := range items {
		if !item.Active {
			continue
		}
		cadence, err := EffectiveCadence(item.FrequencyDays, opts.Multiplier)
		if err != nil {
			return Schedule{}, fmt.Errorf("checklist %s: %w", item.ID, err)
		}
		// A cadence rounding to zero puts every occurrence at the reference time.
		for k := int64(1); k <= int64(opts.Occurrences); k++ {
			if cadence > horizon/k {
				break
			}
			offset := cadence * k
			due := ref + offset
			tasks = append(tasks, ScheduledTask{
				ChecklistID:       item.ID,
				TaskName:          item.Title,
				TaskDescription:   item.TaskText,
				FrequencyDays:     item.FrequencyDays,
				Priority:          item.Priority,
				EstimatedDuration: item.EstimatedDuration,
				DueDate:           due,
				DueDateReadable:   time.Unix(due, 0).UTC().Format("2006-01-02"),
				DaysFromNow:       daysFrom(offset),
			})
		}
	}

	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].DueDate < tasks[j].DueDate })

	out := Schedule{TotalScheduled: len(tasks), Tasks: tasks}
	if len(out.Tasks) > opts.Limit {
		out.Tasks = out.Tasks[:opts.Limit]
	}
	if out.Tasks == nil {
		out.Tasks = []ScheduledTask{}
	}
	return out, nil
}

// NextDue returns the earliest planned occurrence, if any.
func (s Schedule) NextDue() (time.Time, bool) {
	if len(s.Tasks) == 0 {
		return time.Time{}, false
	}
	return time.Unix(s.Tasks[0].DueDate, 0).UTC(), true
}

func daysFrom(offset int64) int {
	return int(decimal.NewFromInt(offset).Div(decimal.NewFromInt(secondsPerDay)).Round(0).IntPart())
}

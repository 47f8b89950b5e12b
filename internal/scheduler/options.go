package scheduler

import (
	"context"
	"time"

	"github.com/noah-isme/timetable-engine/internal/models"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
)

const (
	// backtracksPerCourse sizes the default backtrack budget.
	backtracksPerCourse     = 10
	defaultRepairIterations = 50
)

// Weights scale the soft-cost terms used to rank placement candidates.
type Weights struct {
	// Workload penalises variance of load across the faculty qualified for a course.
	Workload float64 `json:"workload" yaml:"workload"`
	// Utilization penalises unused room capacity as a fraction of the room.
	Utilization float64 `json:"utilization" yaml:"utilization"`
	// Preference penalises slots outside a faculty member's preferred set.
	Preference float64 `json:"preference" yaml:"preference"`
	// DaySpread penalises stacking hours of the same course on one day.
	DaySpread float64 `json:"day_spread" yaml:"day_spread"`
}

// Options tunes generation and repair. The zero value is usable but disables
// every soft objective; start from DefaultOptions instead.
type Options struct {
	PrioritizeCore           bool `json:"prioritize_core" yaml:"prioritize_core"`
	RespectFacultyPreference bool `json:"respect_faculty_preference" yaml:"respect_faculty_preference"`
	OptimizeRoomUtilization  bool `json:"optimize_room_utilization" yaml:"optimize_room_utilization"`

	// MaxBacktrackAttempts bounds undo-and-retry steps. Zero selects
	// 10 per course; a negative value disables backtracking.
	MaxBacktrackAttempts int `json:"max_backtrack_attempts" yaml:"max_backtrack_attempts"`
	// MaxRepairIterations caps repair passes. Zero selects 50.
	MaxRepairIterations int `json:"max_repair_iterations" yaml:"max_repair_iterations"`

	RandomSeed int64     `json:"random_seed" yaml:"random_seed"`
	Deadline   time.Time `json:"deadline,omitempty" yaml:"deadline"`

	Weights         Weights                     `json:"weights" yaml:"weights"`
	PriorityWeights map[models.CourseType]int   `json:"priority_weights,omitempty" yaml:"priority_weights"`
	Preferences     map[string][]models.SlotKey `json:"preferences,omitempty" yaml:"preferences"`
}

// DefaultPriorityWeights ranks core > practical > lab > elective.
func DefaultPriorityWeights() map[models.CourseType]int {
	return map[models.CourseType]int{
		models.CourseTypeCore:      4,
		models.CourseTypePractical: 3,
		models.CourseTypeLab:       2,
		models.CourseTypeElective:  1,
	}
}

// DefaultOptions enables every objective with weights workload 1, utilization 0.5,
// preference 2 and day spread 0.5.
func DefaultOptions() Options {
	return Options{
		PrioritizeCore:           true,
		RespectFacultyPreference: true,
		OptimizeRoomUtilization:  true,
		MaxRepairIterations:      defaultRepairIterations,
		Weights: Weights{
			Workload:    1,
			Utilization: 0.5,
			Preference:  2,
			DaySpread:   0.5,
		},
		PriorityWeights: DefaultPriorityWeights(),
	}
}

// Validate rejects negative weights.
func (o Options) Validate() error {
	w := o.Weights
	if w.Workload < 0 || w.Utilization < 0 || w.Preference < 0 || w.DaySpread < 0 {
		return appErrors.Clone(appErrors.ErrInvalidWeights, "soft-cost weights must not be negative")
	}
	for t, v := range o.PriorityWeights {
		if v < 0 {
			return appErrors.Clone(appErrors.ErrInvalidWeights, "priority weight for "+string(t)+" must not be negative")
		}
	}
	return nil
}

func (o Options) backtrackBudget(courses int) int {
	switch {
	case o.MaxBacktrackAttempts < 0:
		return 0
	case o.MaxBacktrackAttempts == 0:
		return backtracksPerCourse * courses
	default:
		return o.MaxBacktrackAttempts
	}
}

func (o Options) repairIterations() int {
	if o.MaxRepairIterations <= 0 {
		return defaultRepairIterations
	}
	return o.MaxRepairIterations
}

func (o Options) priority(t models.CourseType) int {
	if !o.PrioritizeCore {
		return 0
	}
	if o.PriorityWeights == nil {
		return DefaultPriorityWeights()[t]
	}
	return o.PriorityWeights[t]
}

// prefers reports whether the faculty has no preference data or likes the slot.
func (o Options) prefers(facultyID string, slot models.SlotKey) bool {
	if !o.RespectFacultyPreference {
		return true
	}
	preferred, ok := o.Preferences[facultyID]
	if !ok || len(preferred) == 0 {
		return true
	}
	for _, p := range preferred {
		if p == slot {
			return true
		}
	}
	return false
}

// WithoutDeadline drops the absolute deadline so options can be kept and reused by
// later runs.
func (o Options) WithoutDeadline() Options {
	o.Deadline = time.Time{}
	return o
}

// expired reports cancellation through either the context or the deadline.
func (o Options) expired(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	return !o.Deadline.IsZero() && time.Now().After(o.Deadline)
}

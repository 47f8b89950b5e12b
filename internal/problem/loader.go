// Package problem reads timetable problems from YAML files.
package problem

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/timetable-engine/internal/models"
	"github.com/noah-isme/timetable-engine/internal/scheduler"
)

// Grid expands into one slot per (day, period). Start and PeriodMinutes are optional
// and only fill the informational times.
type Grid struct {
	Days          []int  `yaml:"days"`
	Periods       int    `yaml:"periods"`
	Start         string `yaml:"start"`
	PeriodMinutes int    `yaml:"period_minutes"`
	BreakMinutes  int    `yaml:"break_minutes"`
}

// File is the on-disk layout of a problem.
type File struct {
	TermID      string              `yaml:"term"`
	ProgramID   string              `yaml:"program"`
	Courses     []models.Course     `yaml:"courses"`
	Faculty     []models.Faculty    `yaml:"faculty"`
	Rooms       []models.Room       `yaml:"rooms"`
	Slots       []models.TimeSlot   `yaml:"slots"`
	Grid        *Grid               `yaml:"grid"`
	Assignments []models.Assignment `yaml:"assignments"`
	Options     scheduler.Options   `yaml:"options"`
}

// Problem returns the entity catalog portion of the file.
func (f *File) Problem() models.TimetableProblem {
	return models.TimetableProblem{
		Courses: f.Courses,
		Faculty: f.Faculty,
		Rooms:   f.Rooms,
		Slots:   f.Slots,
	}
}

// Load reads and validates a problem file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read problem file: %w", err)
	}
	file, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return file, nil
}

// Parse decodes a problem document. Options not present in the document keep
// their scheduler defaults.
func Parse(data []byte) (*File, error) {
	file := &File{Options: scheduler.DefaultOptions()}
	if err := yaml.Unmarshal(data, file); err != nil {
		return nil, fmt.Errorf("parse problem yaml: %w", err)
	}
	if file.Grid != nil {
		slots, err := file.Grid.expand()
		if err != nil {
			return nil, err
		}
		file.Slots = append(file.Slots, slots...)
	}
	problem := file.Problem()
	if err := validator.New().Struct(problem); err != nil {
		return nil, fmt.Errorf("invalid problem: %w", err)
	}
	if err := file.Options.Validate(); err != nil {
		return nil, err
	}
	return file, nil
}

func (g Grid) expand() ([]models.TimeSlot, error) {
	if len(g.Days) == 0 || g.Periods <= 0 {
		return nil, fmt.Errorf("grid needs days and periods")
	}
	var start time.Time
	timed := strings.TrimSpace(g.Start) != "" && g.PeriodMinutes > 0
	if timed {
		parsed, err := time.Parse("15:04", g.Start)
		if err != nil {
			return nil, fmt.Errorf("grid start %q: %w", g.Start, err)
		}
		start = parsed
	}
	slots := make([]models.TimeSlot, 0, len(g.Days)*g.Periods)
	for _, day := range g.Days {
		for period := 1; period <= g.Periods; period++ {
			slot := models.TimeSlot{Day: day, Period: period}
			if timed {
				offset := time.Duration((period-1)*(g.PeriodMinutes+g.BreakMinutes)) * time.Minute
				begin := start.Add(offset)
				slot.Start = begin.Format("15:04")
				slot.End = begin.Add(time.Duration(g.PeriodMinutes) * time.Minute).Format("15:04")
			}
			slots = append(slots, slot)
		}
	}
	return slots, nil
}

package service

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/noah-isme/timetable-engine/internal/models"
	"github.com/noah-isme/timetable-engine/internal/scheduler"
	"github.com/noah-isme/timetable-engine/pkg/export"
)

var listHeaders = []string{"Day", "Period", "Time", "Course", "Subject", "Faculty", "Room", "Students", "Notes"}

// TimetableDataset lays out a set as rows for the export renderers. FacultyID and
// RoomID in params narrow the output to one resource.
func TimetableDataset(catalog *scheduler.Catalog, set *scheduler.AssignmentSet, params models.ExportJobParams, title string) export.Dataset {
	assignments := filterAssignments(set.All(), params)
	sort.SliceStable(assignments, func(i, j int) bool {
		a, b := assignments[i], assignments[j]
		if a.Slot != b.Slot {
			return a.Slot.Less(b.Slot)
		}
		if a.RoomID != b.RoomID {
			return a.RoomID < b.RoomID
		}
		return a.ID < b.ID
	})
	if params.View == models.ExportViewGrid {
		return gridDataset(catalog, assignments, title)
	}
	return listDataset(catalog, assignments, title)
}

func filterAssignments(all []models.Assignment, params models.ExportJobParams) []models.Assignment {
	if params.FacultyID == "" && params.RoomID == "" {
		return all
	}
	out := all[:0]
	for _, a := range all {
		if params.FacultyID != "" && a.FacultyID != params.FacultyID {
			continue
		}
		if params.RoomID != "" && a.RoomID != params.RoomID {
			continue
		}
		out = append(out, a)
	}
	return out
}

func listDataset(catalog *scheduler.Catalog, assignments []models.Assignment, title string) export.Dataset {
	times := slotTimes(catalog)
	rows := make([]map[string]string, 0, len(assignments))
	for _, a := range assignments {
		course, _ := catalog.Course(a.CourseID)
		rows = append(rows, map[string]string{
			"Day":      models.DayName(a.Slot.Day),
			"Period":   strconv.Itoa(a.Slot.Period),
			"Time":     times[a.Slot],
			"Course":   displayName(course.Name, course.ID),
			"Subject":  course.Subject,
			"Faculty":  facultyName(catalog, a.FacultyID),
			"Room":     roomName(catalog, a.RoomID),
			"Students": strconv.Itoa(course.ExpectedStudents),
			"Notes":    a.Notes,
		})
	}
	return export.Dataset{Title: title, Headers: listHeaders, Rows: rows}
}

// gridDataset emits one row per period and one column per teaching day.
func gridDataset(catalog *scheduler.Catalog, assignments []models.Assignment, title string) export.Dataset {
	days := make([]int, 0, 7)
	periods := make([]int, 0, 16)
	seenDay := map[int]bool{}
	seenPeriod := map[int]bool{}
	for _, slot := range catalog.Slots() {
		if !seenDay[slot.Day] {
			seenDay[slot.Day] = true
			days = append(days, slot.Day)
		}
		if !seenPeriod[slot.Period] {
			seenPeriod[slot.Period] = true
			periods = append(periods, slot.Period)
		}
	}
	sort.Ints(days)
	sort.Ints(periods)

	cells := make(map[models.SlotKey][]string, len(assignments))
	for _, a := range assignments {
		course, _ := catalog.Course(a.CourseID)
		cells[a.Slot] = append(cells[a.Slot], fmt.Sprintf("%s / %s / %s",
			displayName(course.Name, course.ID), facultyName(catalog, a.FacultyID), roomName(catalog, a.RoomID)))
	}

	headers := []string{"Period", "Time"}
	for _, day := range days {
		headers = append(headers, models.DayName(day))
	}
	times := periodTimes(catalog)
	rows := make([]map[string]string, 0, len(periods))
	for _, period := range periods {
		row := map[string]string{
			"Period": strconv.Itoa(period),
			"Time":   times[period],
		}
		for _, day := range days {
			key := models.SlotKey{Day: day, Period: period}
			if !catalog.HasSlot(key) {
				row[models.DayName(day)] = "-"
				continue
			}
			row[models.DayName(day)] = strings.Join(cells[key], "\n")
		}
		rows = append(rows, row)
	}
	return export.Dataset{Title: title, Headers: headers, Rows: rows}
}

func slotTimes(catalog *scheduler.Catalog) map[models.SlotKey]string {
	out := make(map[models.SlotKey]string)
	for _, slot := range catalog.Slots() {
		out[slot.Key()] = timeRange(slot)
	}
	return out
}

// periodTimes takes the first non-empty range seen for each period.
func periodTimes(catalog *scheduler.Catalog) map[int]string {
	out := make(map[int]string)
	for _, slot := range catalog.Slots() {
		if out[slot.Period] == "" {
			out[slot.Period] = timeRange(slot)
		}
	}
	return out
}

func timeRange(slot models.TimeSlot) string {
	switch {
	case slot.Start != "" && slot.End != "":
		return slot.Start + "-" + slot.End
	default:
		return slot.Start
	}
}

func facultyName(catalog *scheduler.Catalog, id string) string {
	if f, ok := catalog.Faculty(id); ok {
		return displayName(f.Name, f.ID)
	}
	return id
}

func roomName(catalog *scheduler.Catalog, id string) string {
	if r, ok := catalog.Room(id); ok {
		return displayName(r.Name, r.ID)
	}
	return id
}

func displayName(name, id string) string {
	if name == "" {
		return id
	}
	return name
}
